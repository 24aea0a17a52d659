package web

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gubarz/mdr/internal/document"
	"github.com/gubarz/mdr/internal/resolve"
)

// fakeSource hands out snapshots set by the test.
type fakeSource struct {
	mu      sync.Mutex
	snap    *document.Snapshot
	pending *document.Snapshot
}

func (f *fakeSource) Snapshot() *document.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeSource) Poll() (*document.Snapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending == nil {
		return f.snap, false
	}
	f.snap, f.pending = f.pending, nil
	return f.snap, true
}

func (f *fakeSource) set(snap *document.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = snap
}

func build(t *testing.T, src string, version uint64, resolver document.ResourceResolver) *document.Snapshot {
	t.Helper()
	p := &document.Pipeline{
		Mode:     document.ModeWhole,
		Parser:   document.NewParser(document.WithSanitizer(document.SanitizePolicy())),
		Resolver: resolver,
	}
	snap, err := p.Build(context.Background(), []byte(src))
	require.NoError(t, err)
	snap.Version = version
	return snap
}

func newTestServer(t *testing.T, src Source) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer(src, Options{Title: "mdr - doc.md", Interval: 10 * time.Millisecond})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.hub.close()
		ts.Close()
	})
	return s, ts
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readUpdate(t *testing.T, conn *websocket.Conn) update {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var u update
	require.NoError(t, conn.ReadJSON(&u))
	return u
}

func TestServePage(t *testing.T) {
	src := &fakeSource{snap: build(t, "# Hello, World!\n\ntext\n", 1, nil)}
	_, ts := newTestServer(t, src)

	status, body := get(t, ts.URL+"/")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "<title>mdr - doc.md</title>")
	assert.Contains(t, body, `<h1 id="helloworld">Hello, World!</h1>`)
	assert.Contains(t, body, `<li class="toc-h1"><a href="#helloworld">Hello, World!</a></li>`)
	assert.Contains(t, body, `data-version="1"`)
	assert.Contains(t, body, `/assets/page.js`)
}

func TestServeAssets(t *testing.T) {
	src := &fakeSource{snap: build(t, "# A\n", 1, nil)}
	_, ts := newTestServer(t, src)

	status, css := get(t, ts.URL+"/assets/github.css")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, css, ".sidebar li.toc-h2 a")
	assert.Contains(t, css, ".mermaid-error")

	status, js := get(t, ts.URL+"/assets/page.js")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, js, "'.sidebar ul'")
}

func TestServeSnapshot(t *testing.T) {
	src := &fakeSource{snap: build(t, "# A\n", 3, nil)}
	_, ts := newTestServer(t, src)

	status, body := get(t, ts.URL+"/api/snapshot")
	require.Equal(t, http.StatusOK, status)
	var u update
	require.NoError(t, json.Unmarshal([]byte(body), &u))
	assert.Equal(t, uint64(3), u.Version)
	assert.Contains(t, u.Body, `<h1 id="a">A</h1>`)
	assert.Equal(t, `<li class="toc-h1"><a href="#a">A</a></li>`, u.TOC)
}

func TestWebSocketPushesWholeUpdates(t *testing.T) {
	src := &fakeSource{snap: build(t, "# A\n", 1, nil)}
	s, ts := newTestServer(t, src)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.updateLoop(ctx) }()

	conn := dial(t, ts)
	first := readUpdate(t, conn)
	assert.Equal(t, uint64(1), first.Version)

	src.set(build(t, "# A\n## B\n", 2, nil))
	next := readUpdate(t, conn)
	assert.Equal(t, uint64(2), next.Version)
	assert.Contains(t, next.Body, `<h2 id="b">B</h2>`)
	assert.Equal(t, `<li class="toc-h1"><a href="#a">A</a></li><li class="toc-h2"><a href="#b">B</a></li>`, next.TOC)
}

func TestServeLocalOnlyReferencedFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "logo.png"), []byte("PNGDATA"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "secret.txt"), []byte("nope"), 0o644))

	r := &resolve.Resolver{BaseDir: dir, URL: resolve.PrefixURL(LocalPrefix), Prefix: LocalPrefix}
	src := &fakeSource{snap: build(t, "# A\n\n![logo](logo.png)\n", 1, r)}
	_, ts := newTestServer(t, src)

	logoURL := resolve.PrefixURL(LocalPrefix)(filepath.Join(dir, "logo.png"))
	require.Contains(t, src.Snapshot().Body, `src="`+logoURL+`"`)

	status, body := get(t, ts.URL+logoURL)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "PNGDATA", body)

	status, _ = get(t, ts.URL+resolve.PrefixURL(LocalPrefix)(filepath.Join(dir, "secret.txt")))
	assert.Equal(t, http.StatusForbidden, status)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	src := &fakeSource{snap: build(t, "# A\n", 1, nil)}
	s := NewServer(src, Options{Addr: "127.0.0.1:0", Interval: 10 * time.Millisecond})

	ln, err := s.Listen()
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	status, _ := get(t, "http://"+ln.Addr().String()+"/")
	assert.Equal(t, http.StatusOK, status)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestListenFallsBackWhenPortTaken(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	s := NewServer(&fakeSource{}, Options{Addr: busy.Addr().String()})
	ln, err := s.Listen()
	require.NoError(t, err)
	defer ln.Close()
	assert.NotEqual(t, busy.Addr().String(), ln.Addr().String())
}

func TestClientOfferKeepsLatest(t *testing.T) {
	c := &client{send: make(chan []byte, 1)}
	assert.True(t, c.offer(1, []byte("1")))
	assert.True(t, c.offer(2, []byte("2")))
	assert.True(t, c.offer(3, []byte("3")))
	assert.Equal(t, []byte("3"), <-c.send)
	assert.Empty(t, c.send)
}

func TestClientOfferDropsOlderVersions(t *testing.T) {
	c := &client{send: make(chan []byte, 1)}
	require.True(t, c.offer(2, []byte("2")))
	assert.False(t, c.offer(1, []byte("1")))
	assert.False(t, c.offer(2, []byte("2 again")))
	assert.Equal(t, []byte("2"), <-c.send)
	assert.Empty(t, c.send)
}

// racingSource runs publish the first time a snapshot is read, after the
// reader already holds the older one.
type racingSource struct {
	*fakeSource
	once    sync.Once
	publish func()
}

func (r *racingSource) Snapshot() *document.Snapshot {
	snap := r.fakeSource.Snapshot()
	r.once.Do(r.publish)
	return snap
}

func TestWebSocketInitialSnapshotDoesNotOvertakePublish(t *testing.T) {
	src := &fakeSource{snap: build(t, "# Old\n", 1, nil)}
	racing := &racingSource{fakeSource: src}
	s, ts := newTestServer(t, racing)

	newer := build(t, "# New\n", 2, nil)
	racing.publish = func() {
		src.mu.Lock()
		src.snap = newer
		src.mu.Unlock()
		s.publish(newer)
	}

	conn := dial(t, ts)
	u := readUpdate(t, conn)
	assert.Equal(t, uint64(2), u.Version)
	assert.Contains(t, u.Body, `<h1 id="new">New</h1>`)
}
