package masterdata

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/JaimeStill/recognition/pkg/handlers"
	"github.com/JaimeStill/recognition/pkg/routes"
)

// SyncRequest is the body of an ad hoc synchronization.
// ChunkSize falls back to the configured default when omitted.
type SyncRequest struct {
	Rows      []Row `json:"rows" validate:"required,min=1"`
	ChunkSize int   `json:"chunk_size" validate:"omitempty,min=1"`
}

// Handler exposes ad hoc synchronization over HTTP.
type Handler struct {
	sync      *Synchronizer
	validate  *validator.Validate
	logger    *slog.Logger
	chunkSize int
	maxBody   int64
}

func NewHandler(sync *Synchronizer, logger *slog.Logger, chunkSize int, maxBody int64) *Handler {
	return &Handler{
		sync:      sync,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger.With("handler", "masterdata"),
		chunkSize: chunkSize,
		maxBody:   maxBody,
	}
}

// Routes returns the route group definition for synchronization endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/sync",
		Routes: []routes.Route{
			{Method: "POST", Pattern: "/{table}", Handler: h.Sync},
		},
	}
}

// Sync partitions the posted rows and writes them to the named table.
// Batch failures are reported in the response body with status 200.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	req, err := handlers.DecodeJSON[SyncRequest](w, r, h.maxBody)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, fmt.Errorf("invalid sync request: %w", err))
		return
	}

	chunkSize := req.ChunkSize
	if chunkSize == 0 {
		chunkSize = h.chunkSize
	}

	resp, err := h.sync.Sync(r.Context(), r.PathValue("table"), req.Rows, chunkSize)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrInvalidTable) || errors.Is(err, ErrInvalidChunkSize) {
			status = http.StatusBadRequest
		}
		handlers.RespondError(w, h.logger, status, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, resp)
}
