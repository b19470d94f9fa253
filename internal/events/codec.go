package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrUnknownType indicates an event type this build does not recognize.
	ErrUnknownType = errors.New("unknown event type")
	// ErrInvalidPayload indicates a payload that fails validation or decoding.
	ErrInvalidPayload = errors.New("invalid event payload")
)

// DecodePayload decodes raw JSON into the payload variant named by t.
// Numbers are kept as json.Number so identifiers survive exactly.
func DecodePayload(t Type, raw []byte) (Payload, error) {
	switch t {
	case TypeDocumentUploaded:
		return decode[DocumentUploaded](raw)
	case TypeRecognitionStarted:
		return decode[RecognitionStarted](raw)
	case TypeValidationFailed:
		return decode[ValidationFailed](raw)
	case TypeValidationSucceeded:
		return decode[ValidationSucceeded](raw)
	case TypeProductCreated:
		return decode[ProductCreated](raw)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
}

func decode[T Payload](raw []byte) (Payload, error) {
	var p T
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return p, nil
}

type envelope struct {
	ID            uuid.UUID       `json:"id"`
	RecognitionID uuid.UUID       `json:"recognition_id"`
	Type          Type            `json:"type"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// UnmarshalJSON decodes an event, resolving the payload variant from its type tag.
func (e *Event) UnmarshalJSON(data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}

	payload, err := DecodePayload(env.Type, env.Payload)
	if err != nil {
		return err
	}

	*e = Event{
		ID:            env.ID,
		RecognitionID: env.RecognitionID,
		Type:          env.Type,
		Payload:       payload,
		OccurredAt:    env.OccurredAt,
	}
	return nil
}
