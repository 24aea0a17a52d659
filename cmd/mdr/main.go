package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/gubarz/mdr/internal/config"
	"github.com/gubarz/mdr/internal/executor"
	"github.com/gubarz/mdr/internal/reload"
	"github.com/gubarz/mdr/internal/ui"
	"github.com/gubarz/mdr/internal/web"
)

var version = "0.1.0"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mdr [file|-]",
		Short: "Lightweight Markdown viewer with live reload",
		Long: `Render a Markdown file with a table of contents and keep the view in
sync while the file changes on disk.

Pass - (or pipe into mdr without a file) to view standard input.`,
		Args:          cobra.MaximumNArgs(1),
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE:          runView,
	}

	flags := cmd.Flags()
	flags.StringP("backend", "b", "auto", "Rendering backend: auto, webview, tui")
	flags.BoolP("verbose", "v", false, "Verbose logging (image resolution, diagram rendering, reloads)")
	flags.Bool("list-backends", false, "List available backends and exit")
	flags.String("addr", "", "Listen address of the webview backend")
	flags.Bool("no-browser", false, "Do not open a browser for the webview backend")
	flags.String("theme", "", "Glamour style of the tui backend (auto, dark, light, or a style file)")
	flags.String("watch-mode", "", "File watching: notify or poll")
	flags.String("config", "", "Config file (default ~/.config/mdr/mdr.yaml)")
	return cmd
}

func runView(cmd *cobra.Command, args []string) error {
	env := systemEnv()

	if list, _ := cmd.Flags().GetBool("list-backends"); list {
		printBackends(cmd.OutOrStdout(), detectBackend(env))
		return nil
	}

	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}

	path, display, cleanup, err := inputPath(args, cmd.InOrStdin(), env.stdinTTY)
	if err != nil {
		return err
	}
	defer cleanup()

	backend := cfg.Backend
	if backend == "auto" {
		backend = detectBackend(env)
	}

	logger, closeLog := newLogger(cfg, backend, cmd.ErrOrStderr())
	defer closeLog()
	slog.SetDefault(logger)
	logger.Debug("starting", "version", version, "backend", backend, "file", path, "config", cfg.File)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := newWatcher(cfg, path, logger)
	if err != nil {
		return err
	}
	opts := []reload.Option{
		reload.WithLogger(logger),
		reload.WithWatcherOptions(watchOptions(cfg, logger)),
	}
	if w != nil {
		opts = append(opts, reload.WithWatcher(w))
	}

	coord, err := reload.Open(ctx, path, newPipeline(cfg, backend, path, logger), opts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := coord.Close(); err != nil {
			logger.Debug("watcher stopped with error", "error", err)
		}
	}()

	title := "mdr - " + display
	switch backend {
	case "webview":
		srvOpts := web.Options{
			Addr:     cfg.Addr,
			Title:    title,
			Interval: cfg.PollInterval,
			Logger:   logger,
		}
		if cfg.OpenBrowser {
			srvOpts.Opener = executor.SystemOpener{}
		}
		return web.NewServer(coord, srvOpts).Run(ctx)
	default:
		return ui.Run(ctx, coord, ui.Options{
			Title:    title,
			Interval: cfg.PollInterval,
			TOCWidth: cfg.TOCWidth,
			Renderer: ui.NewGlamourRenderer(cfg.Theme),
			Logger:   logger,
		})
	}
}

// newLogger writes to stderr, except for the tui which owns the terminal:
// its log goes to a file when verbose and nowhere otherwise.
func newLogger(cfg *config.Config, backend string, stderr io.Writer) (*slog.Logger, func()) {
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	w, closeFn := stderr, func() {}

	if backend == "tui" {
		w = io.Discard
		if cfg.Verbose {
			logPath := filepath.Join(os.TempDir(), "mdr", "mdr.log")
			if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err == nil {
				if f, err := tea.LogToFile(logPath, "mdr"); err == nil {
					fmt.Fprintf(stderr, "logging to %s\n", logPath)
					w, closeFn = f, func() { f.Close() }
				}
			}
		}
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), closeFn
}

// backendInfo is printed by --list-backends
var backendInfo = []struct{ name, desc string }{
	{"webview", "browser page with live reload (default with a display)"},
	{"tui", "terminal viewer (default over SSH or without a display)"},
}

func printBackends(w io.Writer, detected string) {
	fmt.Fprintln(w, "Available backends:")
	for _, b := range backendInfo {
		fmt.Fprintf(w, "  %-8s %s\n", b.name, b.desc)
	}
	fmt.Fprintf(w, "Auto-detected: %s\n", detected)
}

// systemEnv captures what backend detection needs from the process
func systemEnv() environment {
	return environment{
		lookup:    os.LookupEnv,
		goos:      goos,
		stdoutTTY: isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()),
		stdinTTY:  isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()),
	}
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
