package recognitions

import (
	"context"

	"github.com/google/uuid"

	"github.com/JaimeStill/recognition/internal/events"
)

// Store persists recognitions and their event logs.
// Implementations return ErrNotFound for unknown recognitions.
type Store interface {
	// Create registers a recognition with an empty log.
	Create(ctx context.Context, r Recognition) error
	// Append adds ev to the end of its recognition's log.
	Append(ctx context.Context, ev events.Event) error
	// Find loads a recognition with its full log.
	Find(ctx context.Context, id uuid.UUID) (*Recognition, error)
	// FindByTaskID returns the recognition whose most recent start carries taskID.
	// When several match, the one started last wins.
	FindByTaskID(ctx context.Context, taskID string) (*Recognition, error)
	// FindPending returns recognitions with a validation outcome and no created product.
	FindPending(ctx context.Context) ([]Recognition, error)
}

// Publisher announces appended events to asynchronous subscribers.
type Publisher interface {
	Publish(ctx context.Context, ev events.Event) error
}
