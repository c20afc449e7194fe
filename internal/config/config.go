package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigFile      = "config.yaml"
	DefaultTriggerFile     = "reload"
	DefaultSourceKind      = "json"
	DefaultSourceURL       = "https://meowfacts.herokuapp.com/?count=1"
	DefaultSourceCount     = 1
	DefaultSourceTimeout   = 30 * time.Second
	DefaultInterval        = 3 * time.Minute
	DefaultPlaceholderText = "Empty"
	DefaultStoragePath     = ".factpane/factpane.db"
	DefaultRetainDays      = 14
	DefaultWidth           = 40
	DefaultServerAddr      = "127.0.0.1:8787"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
)

// Duration wraps time.Duration for YAML unmarshaling from strings like "3m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

type Config struct {
	Source  SourceConfig  `yaml:"source"`
	Refresh RefreshConfig `yaml:"refresh"`
	Storage StorageConfig `yaml:"storage"`
	Display DisplayConfig `yaml:"display"`
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	Widget  WidgetConfig  `yaml:"widget"`
}

type SourceConfig struct {
	Kind    string        `yaml:"kind"`
	URL     string        `yaml:"url"`
	Count   int           `yaml:"count"`
	Timeout Duration      `yaml:"timeout"`
	Command CommandConfig `yaml:"command"`
}

type CommandConfig struct {
	Path string   `yaml:"path"`
	Args []string `yaml:"args"`
}

type RefreshConfig struct {
	Interval        Duration `yaml:"interval"`
	PlaceholderText string   `yaml:"placeholder_text"`
	// TriggerFile is relative to the config directory unless absolute.
	TriggerFile     string   `yaml:"trigger_file"`
}

type StorageConfig struct {
	Path       string `yaml:"path"`
	RetainDays int    `yaml:"retain_days"`
}

type DisplayConfig struct {
	Width  int          `yaml:"width"`
	Color  *bool        `yaml:"color"`
	Redact RedactConfig `yaml:"redact"`
}

type RedactConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Patterns []string `yaml:"patterns"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// WidgetConfig is the user-facing widget configuration. It is displayed
// but never changes what gets fetched.
type WidgetConfig struct {
	FavoriteEmoji string `yaml:"favorite_emoji"`
}

// ColorEnabled reports whether ANSI colors are on (default true).
func (d DisplayConfig) ColorEnabled() bool {
	return d.Color == nil || *d.Color
}

// Load reads config.yaml from dir, applies defaults, and validates.
// A missing config file yields the defaults.
func Load(dir string) (*Config, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("config dir is required")
	}

	var cfg Config
	path := filepath.Join(dir, DefaultConfigFile)
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// defaults only
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyDefaults(&cfg)
	resolvePaths(&cfg, dir)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration used when dir holds no config file.
func Default(dir string) *Config {
	var cfg Config
	applyDefaults(&cfg)
	resolvePaths(&cfg, dir)
	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Source.Kind == "" {
		cfg.Source.Kind = DefaultSourceKind
	}
	if cfg.Source.URL == "" && cfg.Source.Kind == "json" {
		cfg.Source.URL = DefaultSourceURL
	}
	if cfg.Source.Count == 0 {
		cfg.Source.Count = DefaultSourceCount
	}
	if cfg.Source.Timeout.Duration == 0 {
		cfg.Source.Timeout.Duration = DefaultSourceTimeout
	}
	if cfg.Refresh.Interval.Duration == 0 {
		cfg.Refresh.Interval.Duration = DefaultInterval
	}
	if cfg.Refresh.PlaceholderText == "" {
		cfg.Refresh.PlaceholderText = DefaultPlaceholderText
	}
	if cfg.Refresh.TriggerFile == "" {
		cfg.Refresh.TriggerFile = DefaultTriggerFile
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = DefaultStoragePath
	}
	if cfg.Storage.RetainDays == 0 {
		cfg.Storage.RetainDays = DefaultRetainDays
	}
	if cfg.Display.Width == 0 {
		cfg.Display.Width = DefaultWidth
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = DefaultServerAddr
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
}

func resolvePaths(cfg *Config, dir string) {
	if !filepath.IsAbs(cfg.Refresh.TriggerFile) {
		cfg.Refresh.TriggerFile = filepath.Join(dir, cfg.Refresh.TriggerFile)
	}
}

func validate(cfg *Config) error {
	switch cfg.Source.Kind {
	case "json", "feed":
		if strings.TrimSpace(cfg.Source.URL) == "" {
			return fmt.Errorf("source.url: required for kind %q", cfg.Source.Kind)
		}
	case "command":
		if strings.TrimSpace(cfg.Source.Command.Path) == "" {
			return errors.New("source.command.path: required for kind \"command\"")
		}
	default:
		return fmt.Errorf("source.kind: unknown kind %q (want json, feed or command)", cfg.Source.Kind)
	}

	if cfg.Source.Count < 0 {
		return fmt.Errorf("source.count: must be positive, got %d", cfg.Source.Count)
	}
	if cfg.Source.Timeout.Duration < 0 {
		return errors.New("source.timeout: must be positive")
	}
	if cfg.Refresh.Interval.Duration < time.Second {
		return fmt.Errorf("refresh.interval: must be at least 1s, got %s", cfg.Refresh.Interval.Duration)
	}
	if cfg.Storage.RetainDays < 0 {
		return errors.New("storage.retain_days: must be positive")
	}
	if cfg.Display.Width < 8 {
		return fmt.Errorf("display.width: must be at least 8, got %d", cfg.Display.Width)
	}
	if _, _, err := net.SplitHostPort(cfg.Server.Addr); err != nil {
		return fmt.Errorf("server.addr: %w", err)
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level: unknown level %q (want debug, info, warn or error)", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format: unknown format %q (want text or json)", cfg.Log.Format)
	}

	return nil
}
