package recognitions

import (
	"context"

	"github.com/google/uuid"

	"github.com/JaimeStill/recognition/internal/events"
)

// System defines the public contract for recognition commands and queries.
// Commands validate their payload, append exactly one event, and publish it.
// No command rejects a recognition for being in the wrong state.
type System interface {
	Handler(maxUploadSize int64) *Handler

	Create(ctx context.Context) (*Recognition, error)
	Find(ctx context.Context, id uuid.UUID) (*Recognition, error)
	Describe(ctx context.Context, id uuid.UUID) (*View, error)
	Events(ctx context.Context, id uuid.UUID) ([]events.Event, error)
	FindByTaskID(ctx context.Context, taskID string) (*Recognition, error)
	FindPending(ctx context.Context) ([]Recognition, error)

	Start(ctx context.Context, id uuid.UUID, cmd StartCommand) (events.Event, error)
	FailValidation(ctx context.Context, id uuid.UUID, cmd FailValidationCommand) (events.Event, error)
	SucceedValidation(ctx context.Context, id uuid.UUID, cmd SucceedValidationCommand) (events.Event, error)
	CreateProduct(ctx context.Context, id uuid.UUID, cmd CreateProductCommand) (events.Event, error)
	UploadDocument(ctx context.Context, id uuid.UUID, cmd UploadDocumentCommand) (events.Event, error)
}
