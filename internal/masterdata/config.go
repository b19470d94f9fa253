package masterdata

import (
	"fmt"
	"net/url"
	"time"

	"github.com/JaimeStill/recognition/pkg/envutil"
)

// Config holds the master-data endpoint and batching settings.
type Config struct {
	BaseURL     string `toml:"base_url"`
	Token       string `toml:"token"`
	SuccessCode int    `toml:"success_code"`
	ChunkSize   int    `toml:"chunk_size"`
	Concurrency int    `toml:"concurrency"`
	Timeout     string `toml:"timeout"`
	Archive     bool   `toml:"archive"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	BaseURL     string
	Token       string
	SuccessCode string
	ChunkSize   string
	Concurrency string
	Timeout     string
	Archive     string
}

// TimeoutDuration returns the per-batch timeout as a time.Duration.
func (c *Config) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return c.validate()
}

// Merge overwrites non-zero fields from overlay. Archive always applies.
func (c *Config) Merge(overlay *Config) {
	if overlay.BaseURL != "" {
		c.BaseURL = overlay.BaseURL
	}
	if overlay.Token != "" {
		c.Token = overlay.Token
	}
	if overlay.SuccessCode != 0 {
		c.SuccessCode = overlay.SuccessCode
	}
	if overlay.ChunkSize != 0 {
		c.ChunkSize = overlay.ChunkSize
	}
	if overlay.Concurrency != 0 {
		c.Concurrency = overlay.Concurrency
	}
	if overlay.Timeout != "" {
		c.Timeout = overlay.Timeout
	}
	c.Archive = overlay.Archive
}

func (c *Config) loadDefaults() {
	if c.SuccessCode == 0 {
		c.SuccessCode = 200
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = 500
	}
	if c.Concurrency == 0 {
		c.Concurrency = 1
	}
	if c.Timeout == "" {
		c.Timeout = "30s"
	}
}

func (c *Config) loadEnv(env *Env) {
	envutil.String(env.BaseURL, &c.BaseURL)
	envutil.String(env.Token, &c.Token)
	envutil.Int(env.SuccessCode, &c.SuccessCode)
	envutil.Int(env.ChunkSize, &c.ChunkSize)
	envutil.Int(env.Concurrency, &c.Concurrency)
	envutil.String(env.Timeout, &c.Timeout)
	envutil.Bool(env.Archive, &c.Archive)
}

func (c *Config) validate() error {
	if c.BaseURL != "" {
		if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid base_url %q", c.BaseURL)
		}
	}
	if c.SuccessCode < 100 || c.SuccessCode > 599 {
		return fmt.Errorf("success_code must be an HTTP status")
	}
	if c.ChunkSize < 1 {
		return fmt.Errorf("chunk_size must be positive")
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be positive")
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return fmt.Errorf("invalid timeout: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	return nil
}
