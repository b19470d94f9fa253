package api

import (
	"github.com/JaimeStill/recognition/internal/config"
	"github.com/JaimeStill/recognition/internal/infrastructure"
	"github.com/JaimeStill/recognition/pkg/pagination"
)

// Runtime extends Infrastructure with API-specific configuration.
type Runtime struct {
	*infrastructure.Infrastructure
	Pagination    pagination.Config
	MaxUploadSize int64
	MaxBodySize   int64
}

// NewRuntime creates an API runtime with a module-scoped logger.
func NewRuntime(cfg *config.Config, infra *infrastructure.Infrastructure) *Runtime {
	return &Runtime{
		Infrastructure: &infrastructure.Infrastructure{
			Lifecycle: infra.Lifecycle,
			Logger:    infra.Logger.With("module", "api"),
			Tracing:   infra.Tracing,
			Database:  infra.Database,
			Storage:   infra.Storage,
			Cache:     infra.Cache,
			Bus:       infra.Bus,
		},
		Pagination:    cfg.API.Pagination,
		MaxUploadSize: cfg.API.MaxUploadSizeBytes(),
		MaxBodySize:   cfg.API.MaxBodySizeBytes(),
	}
}
