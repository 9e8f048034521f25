// File: internal/config/config.go
//
// Package config defines the application configuration and its Viper
// plumbing. Defaults live here so the CLI, tests, and the library surface
// all agree on them.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config is the full application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Document DocumentConfig `mapstructure:"document" yaml:"document"`
	Recorder RecorderConfig `mapstructure:"recorder" yaml:"recorder"`
	Mirror   MirrorConfig   `mapstructure:"mirror" yaml:"mirror"`
}

// LoggerConfig controls the global zap logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"` // console or json
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`

	// File sink, rotated by lumberjack. Empty disables it.
	LogFile    string `mapstructure:"log_file" yaml:"log_file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// DocumentConfig sizes the in-process host document.
type DocumentConfig struct {
	ViewportWidth  float64 `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight float64 `mapstructure:"viewport_height" yaml:"viewport_height"`
}

// RecorderConfig tunes the interaction state machine. These are tuning
// knobs, not correctness requirements; the machine stays correct at any
// positive setting.
type RecorderConfig struct {
	ThrottleWindow        time.Duration `mapstructure:"throttle_window" yaml:"throttle_window"`
	RearmInterval         time.Duration `mapstructure:"rearm_interval" yaml:"rearm_interval"`
	ScrollRedrawPerSecond float64       `mapstructure:"scroll_redraw_per_second" yaml:"scroll_redraw_per_second"`
}

// MirrorConfig configures the optional CDP mirror sink.
type MirrorConfig struct {
	Enabled       bool          `mapstructure:"enabled" yaml:"enabled"`
	WebSocketURL  string        `mapstructure:"websocket_url" yaml:"websocket_url"`
	ActionTimeout time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "scribe-cli")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.max_size_mb", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age_days", 14)

	v.SetDefault("document.viewport_width", 1280.0)
	v.SetDefault("document.viewport_height", 720.0)

	v.SetDefault("recorder.throttle_window", 50*time.Millisecond)
	v.SetDefault("recorder.rearm_interval", 100*time.Millisecond)
	v.SetDefault("recorder.scroll_redraw_per_second", 30.0)

	v.SetDefault("mirror.enabled", false)
	v.SetDefault("mirror.action_timeout", 10*time.Second)
}

// DefaultConfigDir is where Load looks for scribe.yaml when no explicit
// file is given.
func DefaultConfigDir() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".scribe"), nil
}

// Load reads configuration from the given file (optional), the default
// config directory, and SCRIBE_* environment variables, then validates it.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		dir, err := DefaultConfigDir()
		if err != nil {
			return nil, err
		}
		v.SetConfigName("scribe")
		v.SetConfigType("yaml")
		v.AddConfigPath(dir)
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// Defaults alone are a valid configuration.
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the recorder cannot run with.
func (c *Config) Validate() error {
	if c.Document.ViewportWidth <= 0 || c.Document.ViewportHeight <= 0 {
		return fmt.Errorf("config: viewport must be positive, got %gx%g",
			c.Document.ViewportWidth, c.Document.ViewportHeight)
	}
	if c.Recorder.ThrottleWindow < 0 {
		return fmt.Errorf("config: recorder.throttle_window must not be negative")
	}
	if c.Recorder.RearmInterval <= 0 {
		return fmt.Errorf("config: recorder.rearm_interval must be positive")
	}
	if c.Recorder.ScrollRedrawPerSecond <= 0 {
		return fmt.Errorf("config: recorder.scroll_redraw_per_second must be positive")
	}
	if c.Mirror.Enabled && c.Mirror.WebSocketURL == "" {
		return fmt.Errorf("config: mirror.websocket_url is required when the mirror is enabled")
	}
	switch c.Logger.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("config: unknown logger format %q", c.Logger.Format)
	}
	return nil
}
