package watcher

import (
	"context"
	"os"
	"time"
)

// Poll watches a file by comparing its size and modification time at a
// fixed interval. It works on file systems without change notification
// (network mounts, some containers).
type Poll struct {
	notifier
	path string
	stat func(string) (os.FileInfo, error)
	last fingerprint
}

var _ Watcher = (*Poll)(nil)

type fingerprint struct {
	exists  bool
	size    int64
	modTime time.Time
}

// NewPoll creates a polling watcher. The current state of path is the
// baseline; only later differences are reported.
func NewPoll(path string, opts Options) (*Poll, error) {
	abs, err := canonical(path)
	if err != nil {
		return nil, err
	}
	p := &Poll{notifier: newNotifier(opts), path: abs, stat: os.Stat}
	p.last = p.fingerprint()
	return p, nil
}

// Run polls until ctx is cancelled.
func (p *Poll) Run(ctx context.Context) error {
	log := p.opts.Logger
	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()
	d := debounce{wait: p.opts.Debounce}
	defer d.stop()

	log.Debug("watcher: started", "mode", "poll", "path", p.path, "interval", p.opts.Interval)
	for {
		select {
		case <-ctx.Done():
			log.Debug("watcher: stopped", "path", p.path)
			return nil

		case <-ticker.C:
			cur := p.fingerprint()
			if cur.equal(p.last) {
				continue
			}
			p.last = cur
			p.events.Add(1)
			log.Debug("watcher: change", "path", p.path, "exists", cur.exists, "size", cur.size)
			if d.hit() {
				p.notify()
			}

		case <-d.C():
			p.notify()
		}
	}
}

func (f fingerprint) equal(o fingerprint) bool {
	return f.exists == o.exists && f.size == o.size && f.modTime.Equal(o.modTime)
}

func (p *Poll) fingerprint() fingerprint {
	info, err := p.stat(p.path)
	if err != nil {
		return fingerprint{}
	}
	return fingerprint{exists: true, size: info.Size(), modTime: info.ModTime()}
}
