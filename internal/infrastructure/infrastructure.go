// Package infrastructure provides core service initialization for application startup.
// It assembles common dependencies (logging, database, storage, cache, tracing,
// event bus) that domain systems require.
package infrastructure

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/JaimeStill/recognition/internal/bus"
	"github.com/JaimeStill/recognition/internal/config"
	"github.com/JaimeStill/recognition/pkg/cache"
	"github.com/JaimeStill/recognition/pkg/database"
	"github.com/JaimeStill/recognition/pkg/lifecycle"
	"github.com/JaimeStill/recognition/pkg/storage"
	"github.com/JaimeStill/recognition/pkg/tracing"
)

// Infrastructure holds the core systems required by all domain modules.
// Database is nil when the service runs on in-memory stores, and Cache is
// nil when caching is disabled.
type Infrastructure struct {
	Lifecycle *lifecycle.Coordinator
	Logger    *slog.Logger
	Tracing   tracing.System
	Database  database.System
	Storage   storage.System
	Cache     cache.System
	Bus       bus.Bus
}

// New creates an Infrastructure from the application configuration.
// It initializes all systems but does not start them; call Start separately.
func New(cfg *config.Config) (*Infrastructure, error) {
	lc := lifecycle.New()
	logger := cfg.Log.NewLogger(os.Stderr)

	infra := &Infrastructure{
		Lifecycle: lc,
		Logger:    logger,
		Tracing:   tracing.New(&cfg.Tracing, logger),
	}

	if cfg.InMemory() {
		logger.Warn("running on in-memory stores, state is lost on exit")
		infra.Storage = storage.NewMemory()
	} else {
		db, err := database.New(&cfg.Database, logger)
		if err != nil {
			return nil, fmt.Errorf("database init failed: %w", err)
		}
		infra.Database = db

		store, err := storage.New(&cfg.Storage, logger)
		if err != nil {
			return nil, fmt.Errorf("storage init failed: %w", err)
		}
		infra.Storage = store
	}

	if cfg.Cache.Enabled {
		infra.Cache = cache.New(&cfg.Cache, logger)
	}

	eventBus, err := bus.New(&cfg.Bus, logger)
	if err != nil {
		return nil, fmt.Errorf("bus init failed: %w", err)
	}
	infra.Bus = eventBus

	return infra, nil
}

// Start registers all infrastructure systems with the lifecycle coordinator.
// Bus subscribers must be attached before Start is called.
func (i *Infrastructure) Start() error {
	if err := i.Tracing.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("tracing start failed: %w", err)
	}
	if i.Database != nil {
		if err := i.Database.Start(i.Lifecycle); err != nil {
			return fmt.Errorf("database start failed: %w", err)
		}
	}
	if err := i.Storage.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("storage start failed: %w", err)
	}
	if i.Cache != nil {
		if err := i.Cache.Start(i.Lifecycle); err != nil {
			return fmt.Errorf("cache start failed: %w", err)
		}
	}
	if err := i.Bus.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("bus start failed: %w", err)
	}
	return nil
}
