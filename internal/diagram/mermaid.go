// Package diagram renders fenced diagram blocks to SVG with an external
// command line tool.
package diagram

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gubarz/mdr/internal/executor"
)

const (
	DefaultCommand = "mmdc"
	DefaultTimeout = 15 * time.Second

	// maxCached bounds the render cache; it is reset when full.
	maxCached = 256
)

// ErrEmptyOutput is returned when the command succeeds without producing
// an SVG.
var ErrEmptyOutput = errors.New("diagram command produced no output")

// Mermaid renders Mermaid sources by invoking the Mermaid CLI. Results are
// cached by content hash so an unchanged diagram is rendered once per
// process, however often the document is reparsed.
type Mermaid struct {
	Command string
	Timeout time.Duration
	Runner  executor.Runner
	Logger  *slog.Logger

	mu    sync.Mutex
	cache map[string]string
}

// NewMermaid creates a renderer that runs command with executor.ExecRunner.
func NewMermaid(command string, timeout time.Duration) *Mermaid {
	if command == "" {
		command = DefaultCommand
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Mermaid{
		Command: command,
		Timeout: timeout,
		Runner:  executor.ExecRunner{},
	}
}

// Available reports whether the configured command is on PATH.
func (m *Mermaid) Available() bool {
	return executor.CommandExists(m.Command)
}

// RenderDiagram implements document.DiagramRenderer.
func (m *Mermaid) RenderDiagram(ctx context.Context, lang, source string) (string, error) {
	key := cacheKey(lang, source)
	if svg, ok := m.cached(key); ok {
		return svg, nil
	}

	svg, err := m.render(ctx, source)
	if err != nil {
		return "", err
	}
	m.store(key, svg)
	return svg, nil
}

func (m *Mermaid) render(ctx context.Context, source string) (string, error) {
	dir, err := os.MkdirTemp("", "mdr-diagram-")
	if err != nil {
		return "", fmt.Errorf("diagram temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "input.mmd")
	out := filepath.Join(dir, "output.svg")
	if err := os.WriteFile(in, []byte(source), 0o600); err != nil {
		return "", fmt.Errorf("write diagram source: %w", err)
	}

	timeout := m.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	_, stderr, err := m.runner().Run(ctx, m.Command, "-i", in, "-o", out, "-b", "transparent", "-q")
	if err != nil {
		if msg := firstLine(stderr); msg != "" {
			return "", fmt.Errorf("%s: %w", msg, err)
		}
		return "", err
	}

	data, err := os.ReadFile(out)
	if err != nil {
		return "", fmt.Errorf("read diagram output: %w", err)
	}
	svg := strings.TrimSpace(string(data))
	if svg == "" {
		return "", ErrEmptyOutput
	}

	m.logger().Debug("mermaid rendered", "bytes", len(svg), "elapsed", time.Since(start))
	return svg, nil
}

func (m *Mermaid) cached(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	svg, ok := m.cache[key]
	return svg, ok
}

func (m *Mermaid) store(key, svg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cache == nil || len(m.cache) >= maxCached {
		m.cache = make(map[string]string)
	}
	m.cache[key] = svg
}

func (m *Mermaid) runner() executor.Runner {
	if m.Runner == nil {
		return executor.ExecRunner{}
	}
	return m.Runner
}

func (m *Mermaid) logger() *slog.Logger {
	if m.Logger == nil {
		return slog.Default()
	}
	return m.Logger
}

func cacheKey(lang, source string) string {
	sum := sha256.Sum256([]byte(lang + "\x00" + source))
	return hex.EncodeToString(sum[:])
}

// firstLine returns the first non-blank line of command output; the Mermaid
// CLI follows its parse error with a long stack trace.
func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
