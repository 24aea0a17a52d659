package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/gubarz/mdr/internal/config"
	"github.com/gubarz/mdr/internal/diagram"
	"github.com/gubarz/mdr/internal/document"
	"github.com/gubarz/mdr/internal/resolve"
	"github.com/gubarz/mdr/internal/watcher"
	"github.com/gubarz/mdr/internal/web"
)

var goos = runtime.GOOS

// ============================================================================
// Backend detection
// ============================================================================

type environment struct {
	lookup    func(string) (string, bool)
	goos      string
	stdoutTTY bool
	stdinTTY  bool
}

func (e environment) has(name string) bool {
	v, ok := e.lookup(name)
	return ok && v != ""
}

// detectBackend picks the terminal viewer for remote sessions and the
// browser page wherever a display is likely.
func detectBackend(e environment) string {
	switch {
	case e.has("SSH_CONNECTION"), e.has("SSH_TTY"):
		return "tui"
	case e.has("DISPLAY"), e.has("WAYLAND_DISPLAY"):
		return "webview"
	case e.goos == "darwin", e.goos == "windows":
		return "webview"
	case e.stdoutTTY:
		return "tui"
	}
	return "webview"
}

// ============================================================================
// Input
// ============================================================================

// inputPath resolves the file argument. "-", or no argument with piped
// stdin, copies stdin to a temporary file which cleanup removes.
func inputPath(args []string, stdin io.Reader, stdinTTY bool) (path, display string, cleanup func(), err error) {
	cleanup = func() {}
	arg := "-"
	switch {
	case len(args) > 0:
		arg = args[0]
	case stdinTTY:
		return "", "", cleanup, errors.New("no file given (use - to read standard input)")
	}
	if arg != "-" {
		return arg, arg, cleanup, nil
	}

	path, err = copyStdin(stdin, filepath.Join(os.TempDir(), "mdr"))
	if err != nil {
		return "", "", cleanup, err
	}
	return path, "<stdin>", func() { os.Remove(path) }, nil
}

func copyStdin(r io.Reader, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("stdin: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("stdin-%d.md", os.Getpid()))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("stdin: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("read stdin: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("stdin: %w", err)
	}
	return path, nil
}

// ============================================================================
// Pipeline and watcher
// ============================================================================

// newPipeline builds the parse pipeline for backend. The page gets whole
// HTML with images served below web.LocalPrefix; the terminal gets Markdown
// sections with file URLs.
func newPipeline(cfg *config.Config, backend, path string, log *slog.Logger) *document.Pipeline {
	var popts []document.ParserOption
	if cfg.Sanitize {
		popts = append(popts, document.WithSanitizer(document.SanitizePolicy()))
	}

	res := resolve.New(path)
	res.Logger = log

	p := &document.Pipeline{
		Mode:     document.ModeSections,
		Parser:   document.NewParser(popts...),
		Resolver: res,
		Logger:   log,
	}
	if backend == "webview" {
		p.Mode = document.ModeWhole
		res.URL = resolve.PrefixURL(web.LocalPrefix)
		res.Prefix = web.LocalPrefix
	}

	if cfg.Diagram.Enabled {
		m := diagram.NewMermaid(cfg.Diagram.Command, cfg.Diagram.Timeout)
		m.Logger = log
		if m.Available() {
			p.Diagrams = &document.Diagrams{
				Renderer: m,
				Language: cfg.Diagram.Language,
				Logger:   log,
			}
		} else {
			log.Debug("diagram command not found, showing diagrams as code", "command", cfg.Diagram.Command)
		}
	}
	return p
}

func watchOptions(cfg *config.Config, log *slog.Logger) watcher.Options {
	return watcher.Options{
		Debounce: cfg.Debounce,
		Interval: cfg.PollInterval,
		Logger:   log,
	}
}

// newWatcher returns the polling watcher when configured. A nil watcher
// leaves the choice to the coordinator.
func newWatcher(cfg *config.Config, path string, log *slog.Logger) (watcher.Watcher, error) {
	if cfg.WatchMode != "poll" {
		return nil, nil
	}
	w, err := watcher.NewPoll(path, watchOptions(cfg, log))
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}
	return w, nil
}
