package config

import (
	"fmt"

	"github.com/JaimeStill/recognition/pkg/envutil"
	"github.com/JaimeStill/recognition/pkg/formatting"
	"github.com/JaimeStill/recognition/pkg/middleware"
	"github.com/JaimeStill/recognition/pkg/pagination"
)

const (
	EnvAPIBasePath      = "RECOGNITION_API_BASE_PATH"
	EnvAPIMaxUploadSize = "RECOGNITION_API_MAX_UPLOAD_SIZE"
	EnvAPIMaxBodySize   = "RECOGNITION_API_MAX_BODY_SIZE"
)

var corsEnv = &middleware.CORSEnv{
	Enabled:          "RECOGNITION_CORS_ENABLED",
	Origins:          "RECOGNITION_CORS_ORIGINS",
	AllowedMethods:   "RECOGNITION_CORS_ALLOWED_METHODS",
	AllowedHeaders:   "RECOGNITION_CORS_ALLOWED_HEADERS",
	AllowCredentials: "RECOGNITION_CORS_ALLOW_CREDENTIALS",
	MaxAge:           "RECOGNITION_CORS_MAX_AGE",
}

var paginationEnv = &pagination.Env{
	DefaultPageSize: "RECOGNITION_PAGINATION_DEFAULT_PAGE_SIZE",
	MaxPageSize:     "RECOGNITION_PAGINATION_MAX_PAGE_SIZE",
}

const (
	defaultMaxUploadSize = 25 * 1024 * 1024
	defaultMaxBodySize   = 10 * 1024 * 1024
)

// APIConfig holds API routing, CORS, pagination, and request size settings.
type APIConfig struct {
	BasePath      string                `toml:"base_path"`
	MaxUploadSize string                `toml:"max_upload_size"`
	MaxBodySize   string                `toml:"max_body_size"`
	CORS          middleware.CORSConfig `toml:"cors"`
	Pagination    pagination.Config     `toml:"pagination"`
}

// MaxUploadSizeBytes bounds multipart document uploads.
func (c *APIConfig) MaxUploadSizeBytes() int64 {
	size, err := formatting.ParseBytes(c.MaxUploadSize)
	if err != nil {
		return defaultMaxUploadSize
	}
	return size
}

// MaxBodySizeBytes bounds JSON request bodies, including sync row sets.
func (c *APIConfig) MaxBodySizeBytes() int64 {
	size, err := formatting.ParseBytes(c.MaxBodySize)
	if err != nil {
		return defaultMaxBodySize
	}
	return size
}

// Finalize applies defaults, environment variable overrides, and validation
// for the API config and its nested CORS and pagination configs.
func (c *APIConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if _, err := formatting.ParseBytes(c.MaxUploadSize); err != nil {
		return fmt.Errorf("invalid max_upload_size: %w", err)
	}
	if _, err := formatting.ParseBytes(c.MaxBodySize); err != nil {
		return fmt.Errorf("invalid max_body_size: %w", err)
	}
	if err := c.CORS.Finalize(corsEnv); err != nil {
		return fmt.Errorf("cors: %w", err)
	}
	if err := c.Pagination.Finalize(paginationEnv); err != nil {
		return fmt.Errorf("pagination: %w", err)
	}
	return nil
}

// Merge overwrites non-zero fields from overlay across nested configs.
func (c *APIConfig) Merge(overlay *APIConfig) {
	if overlay.BasePath != "" {
		c.BasePath = overlay.BasePath
	}
	if overlay.MaxUploadSize != "" {
		c.MaxUploadSize = overlay.MaxUploadSize
	}
	if overlay.MaxBodySize != "" {
		c.MaxBodySize = overlay.MaxBodySize
	}

	c.CORS.Merge(&overlay.CORS)
	c.Pagination.Merge(&overlay.Pagination)
}

func (c *APIConfig) loadDefaults() {
	if c.BasePath == "" {
		c.BasePath = "/api"
	}
	if c.MaxUploadSize == "" {
		c.MaxUploadSize = "25MB"
	}
	if c.MaxBodySize == "" {
		c.MaxBodySize = "10MB"
	}
}

func (c *APIConfig) loadEnv() {
	envutil.String(EnvAPIBasePath, &c.BasePath)
	envutil.String(EnvAPIMaxUploadSize, &c.MaxUploadSize)
	envutil.String(EnvAPIMaxBodySize, &c.MaxBodySize)
}
