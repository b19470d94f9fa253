package projections

import (
	"context"

	"github.com/google/uuid"

	"github.com/JaimeStill/recognition/internal/events"
	"github.com/JaimeStill/recognition/pkg/pagination"
)

// EventSource loads the full event log of a recognition in append order.
type EventSource interface {
	Events(ctx context.Context, id uuid.UUID) ([]events.Event, error)
}

// System defines the public contract for the projection read model.
type System interface {
	Handler() *Handler

	// Handle applies one published event. It is safe to call repeatedly with
	// the same event.
	Handle(ctx context.Context, ev events.Event) error
	// Rebuild discards the row of a recognition and replays its log.
	Rebuild(ctx context.Context, id uuid.UUID) (*Projection, error)

	Find(ctx context.Context, id uuid.UUID) (*Projection, error)
	List(ctx context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Projection], error)
}
