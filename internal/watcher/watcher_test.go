package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 3 * time.Second

func start(t *testing.T, w Watcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(waitFor):
			t.Error("watcher did not stop")
		}
	})
}

func expectSignal(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(waitFor):
		t.Fatal("expected a change notification")
	}
}

func expectQuiet(t *testing.T, ch <-chan struct{}, d time.Duration) {
	t.Helper()
	select {
	case <-ch:
		t.Fatal("unexpected change notification")
	case <-time.After(d):
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestNotifyNeverBlocks(t *testing.T) {
	n := newNotifier(Options{Buffer: 2})
	for range 5 {
		n.notify()
	}
	s := n.Stats()
	assert.Equal(t, int64(2), s.Notifications)
	assert.Equal(t, int64(3), s.Dropped)
	assert.Len(t, n.Changes(), 2)
}

func TestDebounceImmediate(t *testing.T) {
	d := debounce{}
	assert.True(t, d.hit())
	assert.Nil(t, d.C())
}

func TestDebounceCollapses(t *testing.T) {
	d := debounce{wait: 30 * time.Millisecond}
	defer d.stop()
	for range 5 {
		assert.False(t, d.hit())
	}
	select {
	case <-d.C():
	case <-time.After(waitFor):
		t.Fatal("debounce never fired")
	}
	select {
	case <-d.C():
		t.Fatal("debounce fired twice")
	case <-time.After(60 * time.Millisecond):
	}
}

func TestFSNotifyWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.md")
	writeFile(t, path, "# one\n")

	w, err := NewFSNotify(path, Options{Debounce: 100 * time.Millisecond})
	require.NoError(t, err)
	start(t, w)

	for i := range 5 {
		writeFile(t, path, "# burst "+string(rune('a'+i))+"\n")
	}
	expectSignal(t, w.Changes())
	expectQuiet(t, w.Changes(), 300*time.Millisecond)
	assert.Equal(t, int64(1), w.Stats().Notifications)
}

func TestFSNotifyIgnoresSiblings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.md")
	writeFile(t, path, "# one\n")

	w, err := NewFSNotify(path, Options{})
	require.NoError(t, err)
	start(t, w)

	writeFile(t, filepath.Join(dir, "other.md"), "x")
	expectQuiet(t, w.Changes(), 200*time.Millisecond)
}

func TestFSNotifyAtomicSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.md")
	writeFile(t, path, "# one\n")

	w, err := NewFSNotify(path, Options{Debounce: 50 * time.Millisecond})
	require.NoError(t, err)
	start(t, w)

	tmp := filepath.Join(dir, ".doc.md.swp")
	writeFile(t, tmp, "# two\n")
	require.NoError(t, os.Rename(tmp, path))
	expectSignal(t, w.Changes())
}

func TestNewFSNotifyMissingDir(t *testing.T) {
	_, err := NewFSNotify(filepath.Join(t.TempDir(), "nope", "doc.md"), Options{})
	assert.Error(t, err)
}

// fakeStat serves a mutable FileInfo to Poll.
type fakeStat struct {
	mu   sync.Mutex
	info os.FileInfo
	err  error
}

func (f *fakeStat) set(info os.FileInfo, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.info, f.err = info, err
}

func (f *fakeStat) stat(string) (os.FileInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.info, f.err
}

func TestPollDetectsChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.md")
	writeFile(t, path, "# one\n")

	p, err := NewPoll(path, Options{Interval: 10 * time.Millisecond})
	require.NoError(t, err)

	fs := &fakeStat{}
	info, err := os.Stat(path)
	require.NoError(t, err)
	fs.set(info, nil)
	p.stat = fs.stat
	start(t, p)

	expectQuiet(t, p.Changes(), 50*time.Millisecond)

	writeFile(t, path, "# one, longer\n")
	info, err = os.Stat(path)
	require.NoError(t, err)
	fs.set(info, nil)
	expectSignal(t, p.Changes())

	fs.set(nil, os.ErrNotExist)
	expectSignal(t, p.Changes())
	assert.Equal(t, int64(2), p.Stats().Events)
}

func TestPollRealFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.md")
	writeFile(t, path, "a")

	p, err := NewPoll(path, Options{Interval: 10 * time.Millisecond, Debounce: 20 * time.Millisecond})
	require.NoError(t, err)
	start(t, p)

	writeFile(t, path, "a longer body")
	expectSignal(t, p.Changes())
}
