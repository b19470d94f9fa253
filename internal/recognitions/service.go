package recognitions

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/JaimeStill/recognition/internal/events"
	"github.com/JaimeStill/recognition/pkg/formatting"
	"github.com/JaimeStill/recognition/pkg/storage"
	"github.com/JaimeStill/recognition/pkg/tracing"
)

type service struct {
	store     Store
	blobs     storage.System
	publisher Publisher
	lookup    Lookup
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// New creates the recognition System over the given store and collaborators.
func New(
	store Store,
	blobs storage.System,
	publisher Publisher,
	lookup Lookup,
	logger *slog.Logger,
) System {
	return &service{
		store:     store,
		blobs:     blobs,
		publisher: publisher,
		lookup:    lookup,
		logger:    logger.With("system", "recognitions"),
		tracer:    tracing.Tracer("recognitions"),
		now:       time.Now,
	}
}

func (s *service) Handler(maxUploadSize int64) *Handler {
	return NewHandler(s, s.logger, maxUploadSize)
}

func (s *service) Create(ctx context.Context) (*Recognition, error) {
	rec := Recognition{
		ID:        uuid.New(),
		CreatedAt: s.now().UTC().Truncate(time.Microsecond),
		Log:       []events.Event{},
	}

	if err := s.store.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("create recognition: %w", err)
	}

	s.logger.Info("recognition created", "id", rec.ID)
	return &rec, nil
}

func (s *service) Find(ctx context.Context, id uuid.UUID) (*Recognition, error) {
	return s.store.Find(ctx, id)
}

func (s *service) Describe(ctx context.Context, id uuid.UUID) (*View, error) {
	rec, err := s.store.Find(ctx, id)
	if err != nil {
		return nil, err
	}

	v, err := Resolve(ctx, rec, s.lookup)
	if err != nil {
		return nil, fmt.Errorf("resolve recognition %s: %w", id, err)
	}
	return &v, nil
}

func (s *service) Events(ctx context.Context, id uuid.UUID) ([]events.Event, error) {
	rec, err := s.store.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	return rec.Log, nil
}

func (s *service) FindByTaskID(ctx context.Context, taskID string) (*Recognition, error) {
	return s.store.FindByTaskID(ctx, taskID)
}

func (s *service) FindPending(ctx context.Context) ([]Recognition, error) {
	return s.store.FindPending(ctx)
}

func (s *service) Start(ctx context.Context, id uuid.UUID, cmd StartCommand) (events.Event, error) {
	return s.append(ctx, id, cmd.payload())
}

func (s *service) FailValidation(ctx context.Context, id uuid.UUID, cmd FailValidationCommand) (events.Event, error) {
	return s.append(ctx, id, cmd.payload())
}

func (s *service) SucceedValidation(ctx context.Context, id uuid.UUID, cmd SucceedValidationCommand) (events.Event, error) {
	return s.append(ctx, id, cmd.payload())
}

func (s *service) CreateProduct(ctx context.Context, id uuid.UUID, cmd CreateProductCommand) (events.Event, error) {
	return s.append(ctx, id, cmd.payload())
}

func (s *service) UploadDocument(ctx context.Context, id uuid.UUID, cmd UploadDocumentCommand) (events.Event, error) {
	if len(cmd.Data) == 0 || strings.TrimSpace(cmd.Filename) == "" {
		return events.Event{}, fmt.Errorf("%w: document data and filename required", ErrInvalidCommand)
	}

	if _, err := s.store.Find(ctx, id); err != nil {
		return events.Event{}, err
	}

	contentType := detectContentType(cmd.ContentType, cmd.Data)
	payload := events.DocumentUploaded{
		StorageKey:  buildStorageKey(id, sanitizeFilename(cmd.Filename)),
		Filename:    cmd.Filename,
		ContentType: contentType,
		SizeBytes:   int64(len(cmd.Data)),
		PageCount:   s.pageCount(cmd.Data, contentType),
	}

	if err := s.blobs.Upload(ctx, payload.StorageKey, bytes.NewReader(cmd.Data), contentType); err != nil {
		return events.Event{}, fmt.Errorf("upload document blob: %w", err)
	}

	ev, err := s.append(ctx, id, payload)
	if err != nil {
		if delErr := s.blobs.Delete(context.WithoutCancel(ctx), payload.StorageKey); delErr != nil {
			s.logger.Warn("compensating blob delete failed", "key", payload.StorageKey, "error", delErr)
		}
		return events.Event{}, err
	}

	s.logger.Info("document stored",
		"id", id,
		"key", payload.StorageKey,
		"size", formatting.FormatBytes(payload.SizeBytes, 1),
	)
	return ev, nil
}

func (s *service) append(ctx context.Context, id uuid.UUID, payload events.Payload) (ev events.Event, err error) {
	ctx, span := s.tracer.Start(ctx, "recognitions."+string(payload.Type()),
		trace.WithAttributes(attribute.String("recognition.id", id.String())),
	)
	defer func() { tracing.End(span, err) }()

	if err := payload.Validate(); err != nil {
		return events.Event{}, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}

	ev = events.New(id, payload, s.now())
	if err := s.store.Append(ctx, ev); err != nil {
		return events.Event{}, fmt.Errorf("append %s: %w", ev.Type, err)
	}

	s.logger.Info("event appended", "recognition_id", id, "event_id", ev.ID, "type", ev.Type)

	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn("event publish failed", "event_id", ev.ID, "type", ev.Type, "error", err)
	}

	return ev, nil
}

func (s *service) pageCount(data []byte, contentType string) *int {
	if contentType != "application/pdf" {
		return nil
	}

	count, err := api.PageCount(bytes.NewReader(data), nil)
	if err != nil {
		s.logger.Warn("failed to extract PDF page count", "error", err)
		return nil
	}
	return &count
}

func detectContentType(declared string, data []byte) string {
	declared = strings.TrimSpace(declared)
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	return http.DetectContentType(data)
}

func buildStorageKey(id uuid.UUID, filename string) string {
	return fmt.Sprintf("recognitions/%s/%s", id, filename)
}

func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	if name == "." || name == "/" || name == "" {
		name = "document"
	}
	return url.PathEscape(name)
}
