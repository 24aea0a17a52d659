package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

// ============================================================================
// Command Runner Interface
// ============================================================================

// Runner runs an external command to completion and returns its output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr string, err error)
}

// ExecRunner implements Runner using os/exec. The command is killed when
// ctx is done.
type ExecRunner struct{}

// Run executes name with args and captures stdout and stderr separately
func (ExecRunner) Run(ctx context.Context, name string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = os.Environ()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return stdout.String(), stderr.String(), fmt.Errorf("%s: %w", name, ctxErr)
		}
		return stdout.String(), stderr.String(), fmt.Errorf("%s: %w", name, err)
	}
	return stdout.String(), stderr.String(), nil
}

// CommandExists checks if a command is available in PATH
func CommandExists(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// ============================================================================
// Opener Interface
// ============================================================================

// ErrNoOpener is returned when no URL opener is installed.
var ErrNoOpener = errors.New("no browser opener found")

// Opener opens a URL in the user's browser.
type Opener interface {
	Open(url string) error
}

// SystemOpener implements Opener using the platform's open command
type SystemOpener struct{}

// Open starts the opener without waiting for the browser to exit
func (SystemOpener) Open(url string) error {
	cmd := findOpenCommand(runtime.GOOS, CommandExists, url)
	if cmd == nil {
		return ErrNoOpener
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("open %s: %w", url, err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

// findOpenCommand returns the open command for goos, probing PATH with
// exists on Linux and BSDs.
func findOpenCommand(goos string, exists func(string) bool, url string) *exec.Cmd {
	switch goos {
	case "darwin":
		return exec.Command("open", url)
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	}
	switch {
	case exists("xdg-open"):
		return exec.Command("xdg-open", url)
	case exists("wslview"):
		return exec.Command("wslview", url)
	case exists("sensible-browser"):
		return exec.Command("sensible-browser", url)
	default:
		return nil
	}
}
