package jobs

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/JaimeStill/recognition/pkg/handlers"
	"github.com/JaimeStill/recognition/pkg/routes"
)

// Handler exposes the configured jobs and on-demand runs.
type Handler struct {
	scheduler *Scheduler
	logger    *slog.Logger
}

func NewHandler(scheduler *Scheduler, logger *slog.Logger) *Handler {
	return &Handler{
		scheduler: scheduler,
		logger:    logger.With("handler", "jobs"),
	}
}

// Routes returns the route group definition for job endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/jobs",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.List},
			{Method: "POST", Pattern: "/{name}/run", Handler: h.Run},
		},
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	handlers.RespondJSON(w, http.StatusOK, h.scheduler.Jobs())
}

// Run executes a job synchronously and returns its sync response.
func (h *Handler) Run(w http.ResponseWriter, r *http.Request) {
	resp, err := h.scheduler.RunNow(r.Context(), r.PathValue("name"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrUnknownJob) {
			status = http.StatusNotFound
		}
		handlers.RespondError(w, h.logger, status, err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, resp)
}
