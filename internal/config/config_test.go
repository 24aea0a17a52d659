package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate keeps the user's own mdr.yaml and MDR_* variables out of the test
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, key := range []string{"MDR_BACKEND", "MDR_ADDR", "MDR_VERBOSE", "MDR_DIAGRAM_COMMAND", "MDR_POLL_INTERVAL"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	return home
}

func testFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("mdr", pflag.ContinueOnError)
	fs.StringP("backend", "b", "auto", "")
	fs.BoolP("verbose", "v", false, "")
	fs.String("addr", "", "")
	fs.Bool("no-browser", false, "")
	fs.String("theme", "", "")
	fs.String("watch-mode", "", "")
	fs.String("config", "", "")
	return fs
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	c, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "auto", c.Backend)
	assert.Equal(t, "127.0.0.1:6419", c.Addr)
	assert.True(t, c.OpenBrowser)
	assert.Equal(t, 500*time.Millisecond, c.PollInterval)
	assert.Equal(t, 100*time.Millisecond, c.Debounce)
	assert.Equal(t, "notify", c.WatchMode)
	assert.True(t, c.Sanitize)
	assert.Equal(t, "auto", c.Theme)
	assert.Equal(t, 32, c.TOCWidth)
	assert.Equal(t, Diagram{Enabled: true, Language: "mermaid", Command: "mmdc", Timeout: 15 * time.Second}, c.Diagram)
	assert.Empty(t, c.File)
}

func TestLoadUnchangedFlagsKeepDefaults(t *testing.T) {
	isolate(t)

	c, err := Load(testFlags())
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:6419", c.Addr)
	assert.Equal(t, "notify", c.WatchMode)
	assert.Equal(t, "auto", c.Theme)
}

func TestLoadFile(t *testing.T) {
	home := isolate(t)
	dir := filepath.Join(home, ".config", "mdr")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mdr.yaml"), []byte(`
backend: tui
poll_interval: 250ms
toc_width: 40
diagram:
  command: /opt/bin/mmdc
  timeout: 3s
`), 0o644))

	c, err := Load(testFlags())
	require.NoError(t, err)
	assert.Equal(t, "tui", c.Backend)
	assert.Equal(t, 250*time.Millisecond, c.PollInterval)
	assert.Equal(t, 40, c.TOCWidth)
	assert.Equal(t, "/opt/bin/mmdc", c.Diagram.Command)
	assert.Equal(t, 3*time.Second, c.Diagram.Timeout)
	assert.Equal(t, "mermaid", c.Diagram.Language)
	assert.Equal(t, filepath.Join(dir, "mdr.yaml"), c.File)
}

func TestLoadPrecedence(t *testing.T) {
	home := isolate(t)
	file := filepath.Join(home, "custom.yaml")
	require.NoError(t, os.WriteFile(file, []byte("backend: tui\naddr: 127.0.0.1:7000\n"), 0o644))
	t.Setenv("MDR_ADDR", "127.0.0.1:8000")
	t.Setenv("MDR_DIAGRAM_COMMAND", "mermaid-cli")

	fs := testFlags()
	require.NoError(t, fs.Parse([]string{"--config", file, "-b", "webview", "--no-browser"}))

	c, err := Load(fs)
	require.NoError(t, err)
	assert.Equal(t, "webview", c.Backend, "flag beats file")
	assert.Equal(t, "127.0.0.1:8000", c.Addr, "env beats file")
	assert.Equal(t, "mermaid-cli", c.Diagram.Command)
	assert.False(t, c.OpenBrowser)
	assert.Equal(t, file, c.File)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
		env  map[string]string
		want string
	}{
		{"backend", []string{"-b", "gtk"}, nil, `invalid backend "gtk"`},
		{"watch mode", []string{"--watch-mode", "inotify"}, nil, `invalid watch_mode "inotify"`},
		{"poll interval", nil, map[string]string{"MDR_POLL_INTERVAL": "0s"}, "poll_interval must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			fs := testFlags()
			require.NoError(t, fs.Parse(tt.args))

			_, err := Load(fs)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadMalformedFile(t *testing.T) {
	home := isolate(t)
	file := filepath.Join(home, "bad.yaml")
	require.NoError(t, os.WriteFile(file, []byte("backend: [tui\n"), 0o644))

	fs := testFlags()
	require.NoError(t, fs.Parse([]string{"--config", file}))
	_, err := Load(fs)
	assert.ErrorContains(t, err, "read config")
}

func TestExpandTilde(t *testing.T) {
	home := isolate(t)
	assert.Equal(t, filepath.Join(home, "x.yaml"), expandTilde("~/x.yaml"))
	assert.Equal(t, "/abs/x.yaml", expandTilde("/abs/x.yaml"))
	assert.Equal(t, "", expandTilde(""))
}
