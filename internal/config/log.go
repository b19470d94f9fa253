package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/JaimeStill/recognition/pkg/envutil"
)

const (
	EnvLogLevel  = "RECOGNITION_LOG_LEVEL"
	EnvLogFormat = "RECOGNITION_LOG_FORMAT"
)

// LogConfig selects the slog handler and minimum level.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *LogConfig) Finalize() error {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "text"
	}
	envutil.String(EnvLogLevel, &c.Level)
	envutil.String(EnvLogFormat, &c.Format)

	if _, err := c.level(); err != nil {
		return err
	}
	switch c.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown format %q", c.Format)
	}
	return nil
}

// Merge overwrites non-zero fields from overlay.
func (c *LogConfig) Merge(overlay *LogConfig) {
	if overlay.Level != "" {
		c.Level = overlay.Level
	}
	if overlay.Format != "" {
		c.Format = overlay.Format
	}
}

// NewLogger builds a logger writing to w.
func (c *LogConfig) NewLogger(w io.Writer) *slog.Logger {
	level, _ := c.level()
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func (c *LogConfig) level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.Level))); err != nil {
		return level, fmt.Errorf("invalid level %q", c.Level)
	}
	return level, nil
}
