package web

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// client is one connected page. send holds at most one pending update;
// a newer update replaces an unsent older one.
type client struct {
	conn *websocket.Conn
	send chan []byte
	gone chan struct{}

	mu      sync.Mutex
	version uint64 // newest version offered
}

func newClient(conn *websocket.Conn) *client {
	return &client{conn: conn, send: make(chan []byte, 1), gone: make(chan struct{})}
}

// offer queues msg for version, discarding any update the client has not
// received yet. A version no newer than one already offered is dropped, so
// the initial snapshot cannot overtake a concurrent broadcast.
func (c *client) offer(version uint64, msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if version <= c.version {
		return false
	}
	c.version = version
	select {
	case <-c.send:
	default:
	}
	c.send <- msg
	return true
}

// readLoop consumes control frames and notices when the page goes away.
func (c *client) readLoop() {
	defer close(c.gone)
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writeLoop delivers updates until the page leaves, a write fails or
// stop is closed.
func (c *client) writeLoop(stop <-chan struct{}) error {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return err
			}
		case <-ping.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return err
			}
		case <-c.gone:
			return nil
		case <-stop:
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "viewer closed")
			return c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		}
	}
}

// hub tracks connected pages.
type hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	stop    chan struct{}
	once    sync.Once
}

func newHub() *hub {
	return &hub{clients: make(map[*client]struct{}), stop: make(chan struct{})}
}

func (h *hub) add(c *client) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	return len(h.clients)
}

func (h *hub) remove(c *client) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
	return len(h.clients)
}

func (h *hub) broadcast(version uint64, msg []byte) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.offer(version, msg)
	}
	return len(h.clients)
}

// close tells every writer to say goodbye and return.
func (h *hub) close() {
	h.once.Do(func() { close(h.stop) })
}
