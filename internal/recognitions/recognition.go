// Package recognitions implements the recognition domain: an append-only event log
// per recognition task, the commands that extend it, and values derived from it.
package recognitions

import (
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/recognition/internal/events"
)

// Attribute keys read from ValidationSucceeded.ProductAttributes.
const (
	MandateKey = "mandate_id"
	PlanKey    = "plan_id"
)

// Recognition owns an ordered event log. Every accessor derives its value from
// the log alone, so equal logs always yield equal values.
type Recognition struct {
	ID        uuid.UUID      `json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	Log       []events.Event `json:"-"`
}

func (r *Recognition) latest(match func(events.Type) bool) (events.Event, bool) {
	for i := len(r.Log) - 1; i >= 0; i-- {
		if match(r.Log[i].Type) {
			return r.Log[i], true
		}
	}
	return events.Event{}, false
}

func (r *Recognition) latestOf(t events.Type) (events.Event, bool) {
	return r.latest(func(candidate events.Type) bool { return candidate == t })
}

func (r *Recognition) latestValidation() (events.Event, bool) {
	return r.latest(events.Type.IsValidation)
}

// ExternalID returns the task id of the most recent start.
func (r *Recognition) ExternalID() (string, bool) {
	ev, ok := r.latestOf(events.TypeRecognitionStarted)
	if !ok {
		return "", false
	}
	return ev.Payload.(events.RecognitionStarted).TaskID, true
}

// DocumentUploadedAt returns the time of the most recent start.
func (r *Recognition) DocumentUploadedAt() (time.Time, bool) {
	ev, ok := r.latestOf(events.TypeRecognitionStarted)
	return ev.OccurredAt, ok
}

// SuccessfulValidation reports whether the most recent validation outcome is a success.
func (r *Recognition) SuccessfulValidation() bool {
	ev, ok := r.latestValidation()
	return ok && ev.Type == events.TypeValidationSucceeded
}

// ValidationErrors returns the errors of the most recent validation outcome
// when it is a failure, and an empty list otherwise.
func (r *Recognition) ValidationErrors() []string {
	ev, ok := r.latestValidation()
	if !ok || ev.Type != events.TypeValidationFailed {
		return []string{}
	}
	return append([]string{}, ev.Payload.(events.ValidationFailed).Errors...)
}

// ValidationAt returns the time of the most recent validation outcome.
func (r *Recognition) ValidationAt() (time.Time, bool) {
	ev, ok := r.latestValidation()
	return ev.OccurredAt, ok
}

// LastSuccess returns the payload of the most recent successful validation.
func (r *Recognition) LastSuccess() (events.ValidationSucceeded, bool) {
	ev, ok := r.latestOf(events.TypeValidationSucceeded)
	if !ok {
		return events.ValidationSucceeded{}, false
	}
	return ev.Payload.(events.ValidationSucceeded), true
}

// MandateID returns mandate_id from the most recent successful validation.
func (r *Recognition) MandateID() (string, bool) {
	p, ok := r.LastSuccess()
	if !ok {
		return "", false
	}
	return p.Reference(MandateKey)
}

// PlanID returns plan_id from the most recent successful validation.
func (r *Recognition) PlanID() (string, bool) {
	p, ok := r.LastSuccess()
	if !ok {
		return "", false
	}
	return p.Reference(PlanKey)
}

// Document returns the most recently uploaded document.
func (r *Recognition) Document() (events.DocumentUploaded, bool) {
	ev, ok := r.latestOf(events.TypeDocumentUploaded)
	if !ok {
		return events.DocumentUploaded{}, false
	}
	return ev.Payload.(events.DocumentUploaded), true
}

// ProductCreated reports whether a product was ever created from this recognition.
func (r *Recognition) ProductCreated() bool {
	_, ok := r.latestOf(events.TypeProductCreated)
	return ok
}

// ProductRef returns the reference of the most recently created product.
func (r *Recognition) ProductRef() (string, bool) {
	ev, ok := r.latestOf(events.TypeProductCreated)
	if !ok {
		return "", false
	}
	return ev.Payload.(events.ProductCreated).ProductRef, true
}

// Pending reports whether the recognition has a validation outcome but no product.
func (r *Recognition) Pending() bool {
	_, validated := r.latestValidation()
	return validated && !r.ProductCreated()
}
