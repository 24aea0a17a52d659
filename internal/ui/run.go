package ui

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// ============================================================================
// Run TUI
// ============================================================================

// getTTY returns file handles for TUI input/output. When stdin carries the
// document ("mdr -") or stdout is captured, /dev/tty is used instead.
func getTTY() (in *os.File, out *os.File, cleanup func()) {
	var closers []func()
	in, out = os.Stdin, os.Stdout

	if !isTerminal(os.Stdout) {
		if f, err := os.OpenFile("/dev/tty", os.O_WRONLY, 0); err == nil {
			out = f
			closers = append(closers, func() { f.Close() })
		} else {
			out = os.Stderr // Last resort fallback
		}
		// Tell lipgloss to use the TTY for color detection
		lipgloss.SetDefaultRenderer(lipgloss.NewRenderer(out))
	}
	if !isTerminal(os.Stdin) {
		if f, err := os.OpenFile("/dev/tty", os.O_RDONLY, 0); err == nil {
			in = f
			closers = append(closers, func() { f.Close() })
		}
	}

	return in, out, func() {
		for _, c := range closers {
			c()
		}
	}
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Run launches the viewer and blocks until the user quits or ctx is
// cancelled.
func Run(ctx context.Context, src Source, opts Options) error {
	ttyIn, ttyOut, cleanup := getTTY()
	defer cleanup()

	// Query the terminal background now; once the program runs it owns
	// the input.
	opts.defaults()
	if g, ok := opts.Renderer.(*GlamourRenderer); ok {
		g.ResolveTheme(lipgloss.HasDarkBackground)
	}

	p := tea.NewProgram(New(src, opts),
		tea.WithContext(ctx),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithInput(ttyIn),
		tea.WithOutput(ttyOut),
	)
	_, err := p.Run()
	if ctx.Err() != nil {
		// Cancelled by the caller.
		return nil
	}
	return err
}
