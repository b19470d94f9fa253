package api

import (
	"net/http"

	"github.com/JaimeStill/recognition/internal/jobs"
	"github.com/JaimeStill/recognition/internal/masterdata"
	"github.com/JaimeStill/recognition/pkg/routes"
)

func registerRoutes(mux *http.ServeMux, domain *Domain, runtime *Runtime) {
	groups := []routes.Group{
		domain.Recognitions.Handler(runtime.MaxUploadSize).Routes(),
		domain.Projections.Handler().Routes(),
		newStorageHandler(runtime.Storage, runtime.Logger).routes(),
	}

	if domain.Sync != nil {
		groups = append(groups, masterdata.NewHandler(
			domain.Sync,
			runtime.Logger,
			domain.chunkSize,
			runtime.MaxBodySize,
		).Routes())
	}
	if domain.Jobs != nil {
		groups = append(groups, jobs.NewHandler(domain.Jobs, runtime.Logger).Routes())
	}

	routes.Register(mux, groups...)
}
