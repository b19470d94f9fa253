package recognitions

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/JaimeStill/recognition/pkg/handlers"
	"github.com/JaimeStill/recognition/pkg/routes"
)

// Handler provides HTTP endpoints for recognition commands and queries.
type Handler struct {
	sys           System
	logger        *slog.Logger
	maxUploadSize int64
}

// NewHandler creates a Handler. maxUploadSize bounds both document uploads and JSON bodies.
func NewHandler(sys System, logger *slog.Logger, maxUploadSize int64) *Handler {
	return &Handler{
		sys:           sys,
		logger:        logger.With("handler", "recognitions"),
		maxUploadSize: maxUploadSize,
	}
}

// Routes returns the route group definition for recognition endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/recognitions",
		Routes: []routes.Route{
			{Method: "POST", Pattern: "", Handler: h.Create},
			{Method: "GET", Pattern: "/pending", Handler: h.Pending},
			{Method: "GET", Pattern: "", Handler: h.FindByTask},
			{Method: "GET", Pattern: "/{id}", Handler: h.Find},
			{Method: "GET", Pattern: "/{id}/events", Handler: h.Events},
			{Method: "POST", Pattern: "/{id}/start", Handler: h.Start},
			{Method: "POST", Pattern: "/{id}/document", Handler: h.UploadDocument},
			{Method: "POST", Pattern: "/{id}/failures", Handler: h.FailValidation},
			{Method: "POST", Pattern: "/{id}/successes", Handler: h.SucceedValidation},
			{Method: "POST", Pattern: "/{id}/products", Handler: h.CreateProduct},
		},
	}
}

// Create allocates a recognition with an empty event log.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	rec, err := h.sys.Create(r.Context())
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	handlers.RespondJSON(w, http.StatusCreated, NewView(rec))
}

// Pending lists recognitions awaiting a product.
func (h *Handler) Pending(w http.ResponseWriter, r *http.Request) {
	recs, err := h.sys.FindPending(r.Context())
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	views := make([]View, len(recs))
	for i := range recs {
		views[i] = NewView(&recs[i])
	}
	handlers.RespondJSON(w, http.StatusOK, views)
}

// FindByTask returns the recognition most recently started with the task_id query parameter.
func (h *Handler) FindByTask(w http.ResponseWriter, r *http.Request) {
	taskID := r.URL.Query().Get("task_id")
	if taskID == "" {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, fmt.Errorf("%w: task_id required", ErrInvalidCommand))
		return
	}

	rec, err := h.sys.FindByTaskID(r.Context(), taskID)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, NewView(rec))
}

// Find returns the derived view of a recognition including catalog names.
func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	view, err := h.sys.Describe(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, view)
}

// Events returns the recognition's event log in append order.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	log, err := h.sys.Events(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, log)
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	command(h, w, r, h.sys.Start)
}

func (h *Handler) FailValidation(w http.ResponseWriter, r *http.Request) {
	command(h, w, r, h.sys.FailValidation)
}

func (h *Handler) SucceedValidation(w http.ResponseWriter, r *http.Request) {
	command(h, w, r, h.sys.SucceedValidation)
}

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	command(h, w, r, h.sys.CreateProduct)
}

// UploadDocument stores a multipart "file" field as the recognition's source document.
func (h *Handler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			handlers.RespondError(w, h.logger, http.StatusRequestEntityTooLarge, ErrFileTooLarge)
			return
		}
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidCommand)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidCommand)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidCommand)
		return
	}

	ev, err := h.sys.UploadDocument(r.Context(), id, UploadDocumentCommand{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	handlers.RespondJSON(w, http.StatusCreated, ev)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, fmt.Errorf("%w: invalid recognition id", ErrInvalidCommand))
		return uuid.Nil, false
	}
	return id, true
}

func command[C any, R any](
	h *Handler,
	w http.ResponseWriter,
	r *http.Request,
	exec func(ctx context.Context, id uuid.UUID, cmd C) (R, error),
) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	cmd, err := handlers.DecodeJSON[C](w, r, h.maxUploadSize)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, fmt.Errorf("%w: %w", ErrInvalidCommand, err))
		return
	}

	result, err := exec(r.Context(), id, cmd)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	handlers.RespondJSON(w, http.StatusCreated, result)
}
