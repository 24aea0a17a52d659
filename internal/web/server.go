// Package web serves the document as a live page. Each reparse pushes the
// full rendered body and TOC over a websocket and the page replaces both.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"html/template"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/gubarz/mdr/internal/document"
	"github.com/gubarz/mdr/internal/executor"
	"github.com/gubarz/mdr/internal/resolve"
)

// LocalPrefix is the route under which referenced local images are served.
const LocalPrefix = "/_local"

//go:embed assets/*
var assetFS embed.FS

var pageTemplate = template.Must(template.ParseFS(assetFS, "assets/page.html"))

// Source supplies snapshots. reload.Coordinator implements it.
type Source interface {
	Snapshot() *document.Snapshot
	Poll() (*document.Snapshot, bool)
}

// Options tunes the server.
type Options struct {
	// Addr is the listen address. Default: 127.0.0.1:6419. When the port is
	// taken a free one is picked.
	Addr string
	// Title is the page title.
	Title string
	// Interval is how often the source is polled. Default: 500ms.
	Interval time.Duration
	// Opener opens the page once the server listens. Nil leaves it to the
	// user.
	Opener executor.Opener
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Addr == "" {
		o.Addr = "127.0.0.1:6419"
	}
	if o.Title == "" {
		o.Title = "mdr"
	}
	if o.Interval <= 0 {
		o.Interval = 500 * time.Millisecond
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Server is the webview surface.
type Server struct {
	src      Source
	opts     Options
	hub      *hub
	upgrader websocket.Upgrader
}

// NewServer creates a server for src.
func NewServer(src Source, opts Options) *Server {
	opts.defaults()
	return &Server{
		src:  src,
		opts: opts,
		hub:  newHub(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
		},
	}
}

// update is the message pushed to pages.
type update struct {
	Version uint64 `json:"version"`
	Body    string `json:"body"`
	TOC     string `json:"toc"`
}

func encodeUpdate(snap *document.Snapshot) ([]byte, error) {
	return json.Marshal(update{Version: snap.Version, Body: snap.Body, TOC: snap.TOCHTML})
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.NoCache)
	r.Use(s.logRequests)

	static, _ := fs.Sub(assetFS, "assets")
	r.Get("/", s.servePage)
	r.Get("/ws", s.serveWebSocket)
	r.Get("/api/snapshot", s.serveSnapshot)
	r.Get(LocalPrefix+"/*", s.serveLocal)
	r.Handle("/assets/*", http.StripPrefix("/assets/", http.FileServerFS(static)))
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.opts.Logger.Debug("web: request",
			"method", r.Method, "path", r.URL.Path, "status", ww.Status(), "duration", time.Since(start))
	})
}

func (s *Server) servePage(w http.ResponseWriter, _ *http.Request) {
	snap := s.src.Snapshot()
	data := struct {
		Title   string
		Version uint64
		Body    template.HTML
		TOC     template.HTML
	}{
		Title:   s.opts.Title,
		Version: snap.Version,
		Body:    template.HTML(snap.Body),
		TOC:     template.HTML(snap.TOCHTML),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTemplate.Execute(w, data); err != nil {
		s.opts.Logger.Warn("web: render page", "error", err)
	}
}

func (s *Server) serveSnapshot(w http.ResponseWriter, _ *http.Request) {
	msg, err := encodeUpdate(s.src.Snapshot())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(msg)
}

// serveLocal serves a file only if the current body references it, so the
// route cannot be used to read arbitrary files.
func (s *Server) serveLocal(w http.ResponseWriter, r *http.Request) {
	path, ok := resolve.PathFromPrefixURL(LocalPrefix, r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}
	ref := `src="` + html.EscapeString(resolve.PrefixURL(LocalPrefix)(path)) + `"`
	if !strings.Contains(s.src.Snapshot().Body, ref) {
		s.opts.Logger.Debug("web: local file not referenced", "path", path)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	http.ServeFile(w, r, path)
}

func (s *Server) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.opts.Logger.Debug("web: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	c := newClient(conn)
	n := s.hub.add(c)
	s.opts.Logger.Debug("web: page connected", "pages", n)
	defer func() {
		n := s.hub.remove(c)
		s.opts.Logger.Debug("web: page disconnected", "pages", n)
	}()

	// Registered before the read: a publish racing this offer carries a
	// higher version and wins.
	snap := s.src.Snapshot()
	if msg, err := encodeUpdate(snap); err == nil {
		c.offer(snap.Version, msg)
	}
	go c.readLoop()
	if err := c.writeLoop(s.hub.stop); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		s.opts.Logger.Debug("web: websocket write", "error", err)
	}
}

// publish pushes snap to every connected page.
func (s *Server) publish(snap *document.Snapshot) {
	msg, err := encodeUpdate(snap)
	if err != nil {
		s.opts.Logger.Warn("web: encode update", "error", err)
		return
	}
	n := s.hub.broadcast(snap.Version, msg)
	s.opts.Logger.Debug("web: pushed update", "version", snap.Version, "pages", n, "bytes", len(msg))
}

// updateLoop polls the source and publishes every new snapshot.
func (s *Server) updateLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if snap, changed := s.src.Poll(); changed {
				s.publish(snap)
			}
		}
	}
}

// Listen binds the listen address, falling back to a free port on the
// same host when the configured one is taken.
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err == nil {
		return ln, nil
	}
	if !errors.Is(err, syscall.EADDRINUSE) {
		return nil, fmt.Errorf("listen %s: %w", s.opts.Addr, err)
	}
	host, _, splitErr := net.SplitHostPort(s.opts.Addr)
	if splitErr != nil {
		return nil, fmt.Errorf("listen %s: %w", s.opts.Addr, err)
	}
	s.opts.Logger.Info("web: address in use, picking a free port", "addr", s.opts.Addr)
	ln, err = net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", host, err)
	}
	return ln, nil
}

// Serve runs the surface on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	url := "http://" + ln.Addr().String() + "/"
	s.opts.Logger.Info("web: serving", "url", url)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		s.hub.close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return s.updateLoop(ctx)
	})

	if s.opts.Opener != nil {
		if err := s.opts.Opener.Open(url); err != nil {
			s.opts.Logger.Warn("web: could not open browser, visit the URL manually", "url", url, "error", err)
		}
	}
	return g.Wait()
}

// Run listens and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}
