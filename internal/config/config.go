// Package config loads the service configuration from config.toml, an optional
// per-environment overlay, and RECOGNITION_* environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/JaimeStill/recognition/internal/bus"
	"github.com/JaimeStill/recognition/internal/jobs"
	"github.com/JaimeStill/recognition/internal/masterdata"
	"github.com/JaimeStill/recognition/pkg/cache"
	"github.com/JaimeStill/recognition/pkg/database"
	"github.com/JaimeStill/recognition/pkg/envutil"
	"github.com/JaimeStill/recognition/pkg/storage"
	"github.com/JaimeStill/recognition/pkg/tracing"
)

const (
	BaseConfigFile       = "config.toml"
	OverlayConfigPattern = "config.%s.toml"

	EnvRecognitionEnv  = "RECOGNITION_ENV"
	EnvShutdownTimeout = "RECOGNITION_SHUTDOWN_TIMEOUT"
	EnvVersion         = "RECOGNITION_VERSION"
	EnvStore           = "RECOGNITION_STORE"
)

// Store backends accepted by Config.Store.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

var databaseEnv = &database.Env{
	Host:            "RECOGNITION_DB_HOST",
	Port:            "RECOGNITION_DB_PORT",
	Name:            "RECOGNITION_DB_NAME",
	User:            "RECOGNITION_DB_USER",
	Password:        "RECOGNITION_DB_PASSWORD",
	SSLMode:         "RECOGNITION_DB_SSL_MODE",
	MaxOpenConns:    "RECOGNITION_DB_MAX_OPEN_CONNS",
	MaxIdleConns:    "RECOGNITION_DB_MAX_IDLE_CONNS",
	ConnMaxLifetime: "RECOGNITION_DB_CONN_MAX_LIFETIME",
	ConnTimeout:     "RECOGNITION_DB_CONN_TIMEOUT",
}

var storageEnv = &storage.Env{
	ContainerName:    "RECOGNITION_STORAGE_CONTAINER_NAME",
	ConnectionString: "RECOGNITION_STORAGE_CONNECTION_STRING",
	AccountURL:       "RECOGNITION_STORAGE_ACCOUNT_URL",
}

var cacheEnv = &cache.Env{
	Enabled:     "RECOGNITION_CACHE_ENABLED",
	Addr:        "RECOGNITION_CACHE_ADDR",
	Password:    "RECOGNITION_CACHE_PASSWORD",
	DB:          "RECOGNITION_CACHE_DB",
	Prefix:      "RECOGNITION_CACHE_PREFIX",
	TTL:         "RECOGNITION_CACHE_TTL",
	DialTimeout: "RECOGNITION_CACHE_DIAL_TIMEOUT",
}

var tracingEnv = &tracing.Env{
	Enabled:     "RECOGNITION_TRACING_ENABLED",
	ServiceName: "RECOGNITION_TRACING_SERVICE_NAME",
	Exporter:    "RECOGNITION_TRACING_EXPORTER",
	Endpoint:    "RECOGNITION_TRACING_ENDPOINT",
	Insecure:    "RECOGNITION_TRACING_INSECURE",
}

var busEnv = &bus.Env{
	Kind:        "RECOGNITION_BUS_KIND",
	Shards:      "RECOGNITION_BUS_SHARDS",
	Buffer:      "RECOGNITION_BUS_BUFFER",
	MaxAttempts: "RECOGNITION_BUS_MAX_ATTEMPTS",
	RetryDelay:  "RECOGNITION_BUS_RETRY_DELAY",
	Brokers:     "RECOGNITION_KAFKA_BROKERS",
	Topic:       "RECOGNITION_KAFKA_TOPIC",
	GroupID:     "RECOGNITION_KAFKA_GROUP_ID",
	Version:     "RECOGNITION_KAFKA_VERSION",
}

var masterdataEnv = &masterdata.Env{
	BaseURL:     "RECOGNITION_MASTERDATA_BASE_URL",
	Token:       "RECOGNITION_MASTERDATA_TOKEN",
	SuccessCode: "RECOGNITION_MASTERDATA_SUCCESS_CODE",
	ChunkSize:   "RECOGNITION_MASTERDATA_CHUNK_SIZE",
	Concurrency: "RECOGNITION_MASTERDATA_CONCURRENCY",
	Timeout:     "RECOGNITION_MASTERDATA_TIMEOUT",
	Archive:     "RECOGNITION_MASTERDATA_ARCHIVE",
}

var jobsEnv = &jobs.Env{
	Enabled: "RECOGNITION_JOBS_ENABLED",
}

// Config is the root configuration for the recognition service.
type Config struct {
	Server          ServerConfig      `toml:"server"`
	Store           string            `toml:"store"`
	Database        database.Config   `toml:"database"`
	Storage         storage.Config    `toml:"storage"`
	Cache           cache.Config      `toml:"cache"`
	Tracing         tracing.Config    `toml:"tracing"`
	Bus             bus.Config        `toml:"bus"`
	MasterData      masterdata.Config `toml:"masterdata"`
	Jobs            jobs.Config       `toml:"jobs"`
	API             APIConfig         `toml:"api"`
	Log             LogConfig         `toml:"log"`
	ShutdownTimeout string            `toml:"shutdown_timeout"`
	Version         string            `toml:"version"`
}

// Env returns the RECOGNITION_ENV value, defaulting to "local".
func (c *Config) Env() string {
	if env := os.Getenv(EnvRecognitionEnv); env != "" {
		return env
	}
	return "local"
}

// ShutdownTimeoutDuration returns ShutdownTimeout as a time.Duration.
func (c *Config) ShutdownTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ShutdownTimeout)
	return d
}

// InMemory reports whether stores run in process instead of against PostgreSQL
// and blob storage.
func (c *Config) InMemory() bool {
	return c.Store == StoreMemory
}

// Load reads the base config (if present), applies any environment overlay,
// and finalizes all values. If no config.toml exists, defaults and environment
// variables provide all configuration.
func Load() (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat(BaseConfigFile); err == nil {
		loaded, err := load(BaseConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if path := overlayPath(); path != "" {
		overlay, err := load(path)
		if err != nil {
			return nil, fmt.Errorf("load overlay %s: %w", path, err)
		}
		cfg.Merge(overlay)
	}

	if err := cfg.finalize(); err != nil {
		return nil, fmt.Errorf("finalize config: %w", err)
	}

	return cfg, nil
}

// Merge overwrites non-zero fields from overlay across all sub-configs.
func (c *Config) Merge(overlay *Config) {
	if overlay.ShutdownTimeout != "" {
		c.ShutdownTimeout = overlay.ShutdownTimeout
	}
	if overlay.Version != "" {
		c.Version = overlay.Version
	}
	if overlay.Store != "" {
		c.Store = overlay.Store
	}
	c.Server.Merge(&overlay.Server)
	c.Database.Merge(&overlay.Database)
	c.Storage.Merge(&overlay.Storage)
	c.Cache.Merge(&overlay.Cache)
	c.Tracing.Merge(&overlay.Tracing)
	c.Bus.Merge(&overlay.Bus)
	c.MasterData.Merge(&overlay.MasterData)
	c.Jobs.Merge(&overlay.Jobs)
	c.API.Merge(&overlay.API)
	c.Log.Merge(&overlay.Log)
}

func (c *Config) finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if err := c.validate(); err != nil {
		return err
	}
	if err := c.Server.Finalize(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Log.Finalize(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if !c.InMemory() {
		if err := c.Database.Finalize(databaseEnv); err != nil {
			return fmt.Errorf("database: %w", err)
		}
		if err := c.Storage.Finalize(storageEnv); err != nil {
			return fmt.Errorf("storage: %w", err)
		}
	}
	if err := c.Cache.Finalize(cacheEnv); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	if err := c.Tracing.Finalize(tracingEnv); err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	if err := c.Bus.Finalize(busEnv); err != nil {
		return fmt.Errorf("bus: %w", err)
	}
	if err := c.MasterData.Finalize(masterdataEnv); err != nil {
		return fmt.Errorf("masterdata: %w", err)
	}
	if err := c.Jobs.Finalize(jobsEnv); err != nil {
		return fmt.Errorf("jobs: %w", err)
	}
	if err := c.API.Finalize(); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	return c.validateDependencies()
}

func (c *Config) loadDefaults() {
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = "30s"
	}
	if c.Version == "" {
		c.Version = "0.1.0"
	}
	if c.Store == "" {
		c.Store = StorePostgres
	}
}

func (c *Config) loadEnv() {
	envutil.String(EnvShutdownTimeout, &c.ShutdownTimeout)
	envutil.String(EnvVersion, &c.Version)
	envutil.String(EnvStore, &c.Store)
}

func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.ShutdownTimeout); err != nil {
		return fmt.Errorf("invalid shutdown_timeout: %w", err)
	}
	switch c.Store {
	case StorePostgres, StoreMemory:
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	return nil
}

// validateDependencies checks settings that span sections.
func (c *Config) validateDependencies() error {
	if c.Jobs.Enabled {
		if c.InMemory() {
			return fmt.Errorf("jobs: scheduled jobs require the postgres store")
		}
		if c.MasterData.BaseURL == "" {
			return fmt.Errorf("jobs: masterdata.base_url required")
		}
	}
	return nil
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

func overlayPath() string {
	if env := os.Getenv(EnvRecognitionEnv); env != "" {
		path := fmt.Sprintf(OverlayConfigPattern, env)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
