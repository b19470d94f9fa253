package api

import (
	"fmt"
	"net/http"

	"github.com/JaimeStill/recognition/internal/catalog"
	"github.com/JaimeStill/recognition/internal/config"
	"github.com/JaimeStill/recognition/internal/jobs"
	"github.com/JaimeStill/recognition/internal/masterdata"
	"github.com/JaimeStill/recognition/internal/projections"
	"github.com/JaimeStill/recognition/internal/recognitions"
	"github.com/JaimeStill/recognition/pkg/storage"
)

// Domain holds all domain systems that comprise the API.
// Sync is nil when no master-data endpoint is configured, and Jobs is nil
// unless scheduled jobs are enabled.
type Domain struct {
	Recognitions recognitions.System
	Projections  projections.System
	Sync         *masterdata.Synchronizer
	Jobs         *jobs.Scheduler
	chunkSize    int
}

// NewDomain creates all domain systems from the API runtime and subscribes
// the projection dispatcher to the event bus.
func NewDomain(cfg *config.Config, runtime *Runtime) (*Domain, error) {
	var (
		recStore  recognitions.Store
		projStore projections.Store
		lookup    catalog.Lookup
	)

	if runtime.Database != nil {
		db := runtime.Database.Connection()
		recStore = recognitions.NewPostgresStore(db)
		projStore = projections.NewPostgresStore(db)
		lookup = catalog.NewSQL(db)
	} else {
		recStore = recognitions.NewMemoryStore()
		projStore = projections.NewMemoryStore()
		lookup = catalog.Static{}
	}

	if runtime.Cache != nil {
		lookup = catalog.NewCached(lookup, runtime.Cache, runtime.Logger)
	}

	recSystem := recognitions.New(
		recStore,
		runtime.Storage,
		runtime.Bus,
		lookup,
		runtime.Logger,
	)

	projSystem := projections.New(
		projStore,
		recSystem,
		lookup,
		runtime.Logger,
		runtime.Pagination,
	)
	runtime.Bus.Subscribe(projSystem.Handle)

	domain := &Domain{
		Recognitions: recSystem,
		Projections:  projSystem,
		chunkSize:    cfg.MasterData.ChunkSize,
	}

	if cfg.MasterData.BaseURL != "" {
		var archive storage.System
		if cfg.MasterData.Archive {
			archive = runtime.Storage
		}
		writer := masterdata.NewHTTPWriter(&cfg.MasterData, &http.Client{})
		domain.Sync = masterdata.New(writer, archive, &cfg.MasterData, runtime.Logger)
	}

	if cfg.Jobs.Enabled {
		scheduler, err := jobs.New(
			&cfg.Jobs,
			jobs.NewSQLSource(runtime.Database.Connection()),
			domain.Sync,
			cfg.MasterData.ChunkSize,
			runtime.Logger,
		)
		if err != nil {
			return nil, fmt.Errorf("jobs init failed: %w", err)
		}
		if err := scheduler.Start(runtime.Lifecycle); err != nil {
			return nil, fmt.Errorf("jobs start failed: %w", err)
		}
		domain.Jobs = scheduler
	}

	return domain, nil
}
