// Package reload keeps a document snapshot in sync with its source file.
//
// The Coordinator owns a background watcher that signals changes into a
// buffered channel. The presentation surface calls Poll from its own loop;
// Poll never blocks, drains every queued signal and reparses at most once,
// so a burst of saves costs a single rebuild. The surface loop is the only
// writer of the current snapshot; other goroutines may read it through
// Snapshot.
package reload

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gubarz/mdr/internal/document"
	"github.com/gubarz/mdr/internal/watcher"
)

// StartupError reports that the initial document could not be loaded.
type StartupError struct {
	Path string
	Err  error
}

func (e *StartupError) Error() string {
	if errors.Is(e.Err, fs.ErrNotExist) {
		return fmt.Sprintf("file '%s' not found", e.Path)
	}
	return fmt.Sprintf("cannot load '%s': %v", e.Path, e.Err)
}

func (e *StartupError) Unwrap() error { return e.Err }

// State is the coordinator's position in its Idle → Reparsing → Idle cycle.
type State int32

const (
	Idle State = iota
	Reparsing
)

func (s State) String() string {
	if s == Reparsing {
		return "reparsing"
	}
	return "idle"
}

// Stats are point-in-time counters.
type Stats struct {
	Polls          int64         `json:"polls"`
	Notifications  int64         `json:"notifications"`
	Reparses       int64         `json:"reparses"`
	ReadFailures   int64         `json:"read_failures"`
	BuildFailures  int64         `json:"build_failures"`
	AvgReparseTime time.Duration `json:"avg_reparse_time"`
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithWatcher sets the change source. Without it the coordinator watches
// the file with fsnotify and falls back to polling.
func WithWatcher(w watcher.Watcher) Option {
	return func(c *Coordinator) { c.watcher = w }
}

// WithWatcherOptions tunes the default watcher.
func WithWatcherOptions(opts watcher.Options) Option {
	return func(c *Coordinator) { c.watchOpts = opts }
}

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.log = l }
}

// WithReadFile replaces os.ReadFile.
func WithReadFile(read func(string) ([]byte, error)) Option {
	return func(c *Coordinator) { c.read = read }
}

// Coordinator ties a file, a pipeline and a watcher together.
type Coordinator struct {
	path      string
	pipeline  *document.Pipeline
	watcher   watcher.Watcher
	watchOpts watcher.Options
	read      func(string) ([]byte, error)
	log       *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	runErr error
	close  sync.Once

	pollMu sync.Mutex
	snap   atomic.Pointer[document.Snapshot]
	state  atomic.Int32

	polls         atomic.Int64
	notifications atomic.Int64
	reparses      atomic.Int64
	readFailures  atomic.Int64
	buildFailures atomic.Int64
	reparseNs     atomic.Int64
}

// Open loads path through pipeline and starts watching it. Load failures
// are returned as *StartupError. The watcher stops when ctx is cancelled
// or Close is called.
func Open(ctx context.Context, path string, pipeline *document.Pipeline, opts ...Option) (*Coordinator, error) {
	c := &Coordinator{
		path:     path,
		pipeline: pipeline,
		read:     os.ReadFile,
		log:      slog.Default(),
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}

	src, err := c.read(path)
	if err != nil {
		return nil, &StartupError{Path: path, Err: err}
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	snap, err := pipeline.Build(c.ctx, src)
	if err != nil {
		c.cancel()
		return nil, &StartupError{Path: path, Err: err}
	}
	snap.Version = 1
	c.snap.Store(snap)

	if c.watcher == nil {
		c.watcher = c.defaultWatcher()
	}
	go func() {
		defer close(c.done)
		c.runErr = c.watcher.Run(c.ctx)
	}()

	c.log.Info("reload: watching", "path", path, "headings", len(snap.TOC))
	return c, nil
}

func (c *Coordinator) defaultWatcher() watcher.Watcher {
	opts := c.watchOpts
	if opts.Logger == nil {
		opts.Logger = c.log
	}
	w, err := watcher.NewFSNotify(c.path, opts)
	if err == nil {
		return w
	}
	c.log.Warn("reload: file notifications unavailable, polling", "error", err)
	p, perr := watcher.NewPoll(c.path, opts)
	if perr != nil {
		// The path cannot be made absolute; there is nothing to watch.
		c.log.Error("reload: cannot watch file", "path", c.path, "error", perr)
		return idleWatcher{}
	}
	return p
}

// Path returns the watched file.
func (c *Coordinator) Path() string { return c.path }

// Snapshot returns the current snapshot. It is safe for concurrent use.
func (c *Coordinator) Snapshot() *document.Snapshot { return c.snap.Load() }

// State reports whether a reparse is in progress.
func (c *Coordinator) State() State { return State(c.state.Load()) }

// Poll reparses if at least one change notification is pending and
// returns the current snapshot and whether it changed. It never blocks
// waiting for a change. A failed read or build keeps the previous
// snapshot.
func (c *Coordinator) Poll() (*document.Snapshot, bool) {
	c.pollMu.Lock()
	defer c.pollMu.Unlock()
	c.polls.Add(1)

	cur := c.snap.Load()
	n := c.drain()
	if n == 0 {
		return cur, false
	}
	c.notifications.Add(int64(n))

	c.state.Store(int32(Reparsing))
	defer c.state.Store(int32(Idle))
	start := time.Now()

	src, err := c.read(c.path)
	if err != nil {
		c.readFailures.Add(1)
		c.log.Debug("reload: read failed, keeping previous snapshot", "path", c.path, "error", err)
		return cur, false
	}
	next, err := c.pipeline.Build(c.ctx, src)
	if err != nil {
		c.buildFailures.Add(1)
		c.log.Warn("reload: build failed, keeping previous snapshot", "path", c.path, "error", err)
		return cur, false
	}
	next.Version = cur.Version + 1
	c.snap.Store(next)

	elapsed := time.Since(start)
	c.reparses.Add(1)
	c.reparseNs.Add(int64(elapsed))
	c.log.Debug("reload: reparsed", "version", next.Version, "signals", n, "duration", elapsed)
	return next, true
}

// drain empties the notification channel without blocking.
func (c *Coordinator) drain() int {
	ch := c.watcher.Changes()
	n := 0
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return n
			}
			n++
		default:
			return n
		}
	}
}

// Stats returns the current counters.
func (c *Coordinator) Stats() Stats {
	s := Stats{
		Polls:         c.polls.Load(),
		Notifications: c.notifications.Load(),
		Reparses:      c.reparses.Load(),
		ReadFailures:  c.readFailures.Load(),
		BuildFailures: c.buildFailures.Load(),
	}
	if s.Reparses > 0 {
		s.AvgReparseTime = time.Duration(c.reparseNs.Load() / s.Reparses)
	}
	return s
}

// Close stops the watcher and waits for it to exit.
func (c *Coordinator) Close() error {
	c.close.Do(func() {
		c.cancel()
		<-c.done
	})
	return c.runErr
}

// idleWatcher never reports a change.
type idleWatcher struct{}

func (idleWatcher) Changes() <-chan struct{} { return nil }

func (idleWatcher) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}
