package projections

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/JaimeStill/recognition/internal/catalog"
	"github.com/JaimeStill/recognition/internal/events"
	"github.com/JaimeStill/recognition/internal/recognitions"
	"github.com/JaimeStill/recognition/pkg/pagination"
	"github.com/JaimeStill/recognition/pkg/tracing"
)

type service struct {
	store      Store
	source     EventSource
	catalog    catalog.Lookup
	logger     *slog.Logger
	tracer     trace.Tracer
	pagination pagination.Config
}

// New creates the projection System.
func New(
	store Store,
	source EventSource,
	lookup catalog.Lookup,
	logger *slog.Logger,
	pagination pagination.Config,
) System {
	return &service{
		store:      store,
		source:     source,
		catalog:    lookup,
		logger:     logger.With("system", "projections"),
		tracer:     tracing.Tracer("projections"),
		pagination: pagination,
	}
}

func (s *service) Handler() *Handler {
	return NewHandler(s, s.logger, s.pagination)
}

func (s *service) Handle(ctx context.Context, ev events.Event) (err error) {
	ctx, span := s.tracer.Start(ctx, "projections.apply",
		trace.WithAttributes(
			attribute.String("recognition.id", ev.RecognitionID.String()),
			attribute.String("event.id", ev.ID.String()),
			attribute.String("event.type", string(ev.Type)),
		),
	)
	defer func() { tracing.End(span, err) }()

	outcome, err := s.apply(ctx, ev)
	if err != nil {
		return err
	}

	span.SetAttributes(attribute.String("projection.outcome", outcome.String()))
	s.logger.Debug("event projected",
		"recognition_id", ev.RecognitionID,
		"event_id", ev.ID,
		"type", ev.Type,
		"outcome", outcome,
	)
	return nil
}

// Rebuild folds the recognition's log while the store holds it against live
// Apply calls, so events dispatched during the rebuild are neither lost nor
// applied twice.
func (s *service) Rebuild(ctx context.Context, id uuid.UUID) (*Projection, error) {
	var replayed int
	err := s.store.Replace(ctx, id, func(ctx context.Context) (*Projection, []uuid.UUID, error) {
		log, err := s.source.Events(ctx, id)
		if err != nil {
			if errors.Is(err, recognitions.ErrNotFound) {
				return nil, nil, ErrNotFound
			}
			return nil, nil, fmt.Errorf("load events of %s: %w", id, err)
		}

		var row *Projection
		applied := make([]uuid.UUID, 0, len(log))
		for _, ev := range log {
			product, err := s.resolveProduct(ctx, ev)
			if err != nil {
				return nil, nil, fmt.Errorf("replay event %s: %w", ev.ID, err)
			}
			if next := Reduce(row, ev, product); next != nil {
				row = next
			}
			applied = append(applied, ev.ID)
		}

		replayed = len(log)
		return row, applied, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("projection rebuilt", "recognition_id", id, "events", replayed)
	return s.store.Find(ctx, id)
}

// apply resolves catalog data outside the store transaction, then reduces.
func (s *service) apply(ctx context.Context, ev events.Event) (Outcome, error) {
	product, err := s.resolveProduct(ctx, ev)
	if err != nil {
		return 0, err
	}

	outcome, err := s.store.Apply(ctx, ev, func(current *Projection) *Projection {
		return Reduce(current, ev, product)
	})
	if err != nil {
		return 0, fmt.Errorf("apply event %s: %w", ev.ID, err)
	}
	return outcome, nil
}

func (s *service) resolveProduct(ctx context.Context, ev events.Event) (*catalog.Product, error) {
	created, ok := ev.Payload.(events.ProductCreated)
	if !ok {
		return nil, nil
	}

	p, found, err := s.catalog.Product(ctx, created.ProductRef)
	if err != nil {
		return nil, fmt.Errorf("resolve product %s: %w", created.ProductRef, err)
	}
	if !found {
		return nil, nil
	}
	return &p, nil
}

func (s *service) Find(ctx context.Context, id uuid.UUID) (*Projection, error) {
	return s.store.Find(ctx, id)
}

func (s *service) List(ctx context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Projection], error) {
	page.Normalize(s.pagination)
	return s.store.List(ctx, page, filters)
}
