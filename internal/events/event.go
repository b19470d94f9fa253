// Package events defines the immutable facts recorded in a recognition's event log.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Type tags an event variant.
type Type string

const (
	TypeDocumentUploaded    Type = "document_uploaded"
	TypeRecognitionStarted  Type = "recognition_started"
	TypeValidationFailed    Type = "validation_failed"
	TypeValidationSucceeded Type = "validation_succeeded"
	TypeProductCreated      Type = "product_created"
)

// Types lists every known variant in lifecycle order.
var Types = []Type{
	TypeDocumentUploaded,
	TypeRecognitionStarted,
	TypeValidationFailed,
	TypeValidationSucceeded,
	TypeProductCreated,
}

// IsValidation reports whether t is one of the two validation outcomes.
func (t Type) IsValidation() bool {
	return t == TypeValidationFailed || t == TypeValidationSucceeded
}

// Payload is the variant-specific body of an event.
type Payload interface {
	Type() Type
	Validate() error
}

// Event is one appended fact. Events are never mutated once appended.
type Event struct {
	ID            uuid.UUID `json:"id"`
	RecognitionID uuid.UUID `json:"recognition_id"`
	Type          Type      `json:"type"`
	Payload       Payload   `json:"payload"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// New builds an event for recognitionID with a fresh id.
// Timestamps are truncated to microseconds so they survive a round trip through Postgres.
func New(recognitionID uuid.UUID, payload Payload, at time.Time) Event {
	return Event{
		ID:            uuid.New(),
		RecognitionID: recognitionID,
		Type:          payload.Type(),
		Payload:       payload,
		OccurredAt:    at.UTC().Truncate(time.Microsecond),
	}
}
