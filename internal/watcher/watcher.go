// Package watcher turns file system activity on a single file into
// coalesced change notifications.
//
// A Watcher never blocks on its consumer: notifications go into a small
// buffered channel with non-blocking sends, so a burst while the consumer
// is busy leaves at most a few queued signals behind. Consumers drain the
// channel before reacting.
//
// Typical usage:
//
//	w, err := watcher.NewFSNotify(path, watcher.Options{Debounce: 100 * time.Millisecond})
//	go w.Run(ctx)
//	for range w.Changes() { ... }
package watcher

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Watcher produces change notifications for one file.
type Watcher interface {
	// Changes delivers one value per (debounced) change.
	Changes() <-chan struct{}
	// Run watches until ctx is cancelled.
	Run(ctx context.Context) error
}

// Options tunes watcher behaviour.
type Options struct {
	// Debounce is the quiet period after a raw event before a notification
	// is sent. Further events inside the window restart it. 0 means notify
	// on every event.
	Debounce time.Duration
	// Interval is the polling frequency of Poll. Default: 500ms.
	Interval time.Duration
	// Buffer is the capacity of the notification channel. Default: 16.
	Buffer int
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Debounce < 0 {
		o.Debounce = 0
	}
	if o.Interval <= 0 {
		o.Interval = 500 * time.Millisecond
	}
	if o.Buffer <= 0 {
		o.Buffer = 16
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Stats are point-in-time counters.
type Stats struct {
	Events        int64 `json:"events"`
	Notifications int64 `json:"notifications"`
	Dropped       int64 `json:"dropped"`
	Errors        int64 `json:"errors"`
}

// notifier is the channel side shared by all implementations.
type notifier struct {
	ch   chan struct{}
	opts Options

	events        atomic.Int64
	notifications atomic.Int64
	dropped       atomic.Int64
	errors        atomic.Int64
}

func newNotifier(opts Options) notifier {
	opts.defaults()
	return notifier{ch: make(chan struct{}, opts.Buffer), opts: opts}
}

// Changes implements Watcher.
func (n *notifier) Changes() <-chan struct{} { return n.ch }

// Stats returns the current counters.
func (n *notifier) Stats() Stats {
	return Stats{
		Events:        n.events.Load(),
		Notifications: n.notifications.Load(),
		Dropped:       n.dropped.Load(),
		Errors:        n.errors.Load(),
	}
}

// notify sends without blocking. A full buffer already guarantees the
// consumer will reparse, so the signal is dropped.
func (n *notifier) notify() {
	select {
	case n.ch <- struct{}{}:
		n.notifications.Add(1)
	default:
		n.dropped.Add(1)
	}
}

// debounce collapses a burst of raw events into one notification.
type debounce struct {
	wait  time.Duration
	timer *time.Timer
}

// hit records a raw event and reports whether the caller should notify
// immediately.
func (d *debounce) hit() bool {
	if d.wait <= 0 {
		return true
	}
	if d.timer == nil {
		d.timer = time.NewTimer(d.wait)
	} else {
		d.timer.Reset(d.wait)
	}
	return false
}

// C fires when the quiet period after the last hit has elapsed.
func (d *debounce) C() <-chan time.Time {
	if d.timer == nil {
		return nil
	}
	return d.timer.C
}

func (d *debounce) stop() {
	if d.timer != nil {
		d.timer.Stop()
	}
}
