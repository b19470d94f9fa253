package tracing

import (
	"fmt"

	"github.com/JaimeStill/recognition/pkg/envutil"
)

// Exporter names accepted by Config.Exporter.
const (
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// Config holds OpenTelemetry tracing settings. Tracing is disabled by default,
// in which case the global no-op provider stays installed.
type Config struct {
	Enabled     bool    `toml:"enabled"`
	ServiceName string  `toml:"service_name"`
	Exporter    string  `toml:"exporter"`
	Endpoint    string  `toml:"endpoint"`
	Insecure    bool    `toml:"insecure"`
	SampleRatio float64 `toml:"sample_ratio"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	Enabled     string
	ServiceName string
	Exporter    string
	Endpoint    string
	Insecure    string
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return c.validate()
}

// Merge overwrites non-zero fields from overlay. Boolean fields always apply.
func (c *Config) Merge(overlay *Config) {
	c.Enabled = overlay.Enabled
	c.Insecure = overlay.Insecure
	if overlay.ServiceName != "" {
		c.ServiceName = overlay.ServiceName
	}
	if overlay.Exporter != "" {
		c.Exporter = overlay.Exporter
	}
	if overlay.Endpoint != "" {
		c.Endpoint = overlay.Endpoint
	}
	if overlay.SampleRatio != 0 {
		c.SampleRatio = overlay.SampleRatio
	}
}

func (c *Config) loadDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "recognition"
	}
	if c.Exporter == "" {
		c.Exporter = ExporterStdout
	}
	if c.SampleRatio == 0 {
		c.SampleRatio = 1
	}
}

func (c *Config) loadEnv(env *Env) {
	envutil.Bool(env.Enabled, &c.Enabled)
	envutil.String(env.ServiceName, &c.ServiceName)
	envutil.String(env.Exporter, &c.Exporter)
	envutil.String(env.Endpoint, &c.Endpoint)
	envutil.Bool(env.Insecure, &c.Insecure)
}

func (c *Config) validate() error {
	switch c.Exporter {
	case ExporterStdout:
	case ExporterOTLP:
		if c.Enabled && c.Endpoint == "" {
			return fmt.Errorf("endpoint required for otlp exporter")
		}
	default:
		return fmt.Errorf("unknown exporter %q", c.Exporter)
	}
	if c.SampleRatio < 0 || c.SampleRatio > 1 {
		return fmt.Errorf("sample_ratio must be within [0, 1]")
	}
	return nil
}
