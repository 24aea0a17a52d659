package watcher

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// FSNotify watches a file through OS notifications. It watches the parent
// directory and filters by name, so editors that save by writing a new
// file and renaming it over the old one are still seen.
type FSNotify struct {
	notifier
	path string
	fs   *fsnotify.Watcher
}

var _ Watcher = (*FSNotify)(nil)

// NewFSNotify registers a watch on the directory containing path. The
// returned watcher owns the OS handle until Run returns.
func NewFSNotify(path string, opts Options) (*FSNotify, error) {
	abs, err := canonical(path)
	if err != nil {
		return nil, err
	}
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fs.Add(filepath.Dir(abs)); err != nil {
		_ = fs.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	return &FSNotify{notifier: newNotifier(opts), path: abs, fs: fs}, nil
}

// Run forwards relevant events until ctx is cancelled, then releases the
// OS handle.
func (w *FSNotify) Run(ctx context.Context) error {
	defer w.fs.Close()
	log := w.opts.Logger
	d := debounce{wait: w.opts.Debounce}
	defer d.stop()

	log.Debug("watcher: started", "mode", "notify", "path", w.path, "debounce", w.opts.Debounce)
	for {
		select {
		case <-ctx.Done():
			log.Debug("watcher: stopped", "path", w.path)
			return nil

		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			w.events.Add(1)
			log.Debug("watcher: event", "op", ev.Op.String(), "name", ev.Name)
			if d.hit() {
				w.notify()
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.errors.Add(1)
			log.Warn("watcher: error", "error", err)

		case <-d.C():
			w.notify()
		}
	}
}

func (w *FSNotify) relevant(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != w.path {
		return false
	}
	// A bare chmod fires on touch and on some indexers; content is unchanged.
	return ev.Op != fsnotify.Chmod
}

// canonical returns the absolute path with symlinks in the directory part
// resolved, and the file itself resolved when it is a link.
func canonical(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		return real, nil
	}
	if dir, err := filepath.EvalSymlinks(filepath.Dir(abs)); err == nil {
		return filepath.Join(dir, filepath.Base(abs)), nil
	}
	return abs, nil
}
