package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Backends accepted by the backend key
var Backends = []string{"auto", "webview", "tui"}

// Config holds the application configuration
type Config struct {
	Backend      string        `mapstructure:"backend"`
	Verbose      bool          `mapstructure:"verbose"`
	Addr         string        `mapstructure:"addr"`
	OpenBrowser  bool          `mapstructure:"open_browser"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Debounce     time.Duration `mapstructure:"debounce"`
	WatchMode    string        `mapstructure:"watch_mode"`
	Sanitize     bool          `mapstructure:"sanitize"`
	Theme        string        `mapstructure:"theme"`
	TOCWidth     int           `mapstructure:"toc_width"`
	Diagram      Diagram       `mapstructure:"diagram"`

	// File is the config file that was read, if any
	File string `mapstructure:"-"`
}

// Diagram configures fenced diagram rendering
type Diagram struct {
	Enabled  bool          `mapstructure:"enabled"`
	Language string        `mapstructure:"language"`
	Command  string        `mapstructure:"command"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// flagKeys maps command line flags onto config keys
var flagKeys = map[string]string{
	"backend":    "backend",
	"verbose":    "verbose",
	"addr":       "addr",
	"theme":      "theme",
	"watch-mode": "watch_mode",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend", "auto")
	v.SetDefault("verbose", false)
	v.SetDefault("addr", "127.0.0.1:6419")
	v.SetDefault("open_browser", true)
	v.SetDefault("poll_interval", 500*time.Millisecond) // Surface re-check cadence
	v.SetDefault("debounce", 100*time.Millisecond)      // Quiet period after a save
	v.SetDefault("watch_mode", "notify")                // notify or poll
	v.SetDefault("sanitize", true)
	v.SetDefault("theme", "auto") // glamour style for the tui
	v.SetDefault("toc_width", 32)
	v.SetDefault("diagram.enabled", true)
	v.SetDefault("diagram.language", "mermaid")
	v.SetDefault("diagram.command", "mmdc")
	v.SetDefault("diagram.timeout", 15*time.Second)
}

// Load builds the configuration from defaults, an optional mdr.yaml, MDR_*
// environment variables and flags, in increasing order of precedence.
// flags may be nil.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if file := flagString(flags, "config"); file != "" {
		v.SetConfigFile(expandTilde(file))
	} else {
		v.SetConfigName("mdr")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "mdr"))
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("MDR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	c.File = v.ConfigFileUsed()

	if flags != nil && flags.Changed("no-browser") {
		if off, err := flags.GetBool("no-browser"); err == nil && off {
			c.OpenBrowser = false
		}
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks enumerated and numeric settings
func (c *Config) Validate() error {
	if !contains(Backends, c.Backend) {
		return fmt.Errorf("invalid backend %q (want one of %s)", c.Backend, strings.Join(Backends, ", "))
	}
	if c.WatchMode != "notify" && c.WatchMode != "poll" {
		return fmt.Errorf("invalid watch_mode %q (want notify or poll)", c.WatchMode)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval)
	}
	if c.Debounce < 0 {
		return fmt.Errorf("debounce must not be negative, got %s", c.Debounce)
	}
	if c.TOCWidth < 10 {
		return fmt.Errorf("toc_width must be at least 10, got %d", c.TOCWidth)
	}
	return nil
}

// flagString returns the value of a string flag, or "" if it is absent
func flagString(flags *pflag.FlagSet, name string) string {
	if flags == nil || flags.Lookup(name) == nil {
		return ""
	}
	s, _ := flags.GetString(name)
	return s
}

// expandTilde expands ~ to the user's home directory
func expandTilde(path string) string {
	if len(path) == 0 {
		return path
	}
	if path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
