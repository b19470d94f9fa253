package recognitions

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/recognition/internal/events"
)

// Lookup resolves identifiers from product attributes into display names.
// A missing entry is reported with ok == false and a nil error.
type Lookup interface {
	Mandate(ctx context.Context, id string) (name string, ok bool, err error)
	Category(ctx context.Context, planID string) (name string, ok bool, err error)
}

// View is the derived state of a recognition as served to clients.
type View struct {
	ID                   uuid.UUID                `json:"id"`
	CreatedAt            time.Time                `json:"created_at"`
	ExternalID           *string                  `json:"external_id"`
	DocumentUploadedAt   *time.Time               `json:"document_uploaded_at"`
	SuccessfulValidation bool                     `json:"successful_validation"`
	ValidationErrors     []string                 `json:"validation_errors"`
	ValidationAt         *time.Time               `json:"validation_at"`
	Mandate              *string                  `json:"mandate,omitempty"`
	CategoryName         *string                  `json:"category_name,omitempty"`
	Document             *events.DocumentUploaded `json:"document,omitempty"`
	ProductCreated       bool                     `json:"product_created"`
	ProductRef           *string                  `json:"product_ref"`
	Events               int                      `json:"events"`
}

// NewView derives a View from the log without consulting lookups.
func NewView(r *Recognition) View {
	v := View{
		ID:                   r.ID,
		CreatedAt:            r.CreatedAt,
		SuccessfulValidation: r.SuccessfulValidation(),
		ValidationErrors:     r.ValidationErrors(),
		ProductCreated:       r.ProductCreated(),
		Events:               len(r.Log),
	}

	if id, ok := r.ExternalID(); ok {
		v.ExternalID = &id
	}
	if at, ok := r.DocumentUploadedAt(); ok {
		v.DocumentUploadedAt = &at
	}
	if at, ok := r.ValidationAt(); ok {
		v.ValidationAt = &at
	}
	if doc, ok := r.Document(); ok {
		v.Document = &doc
	}
	if ref, ok := r.ProductRef(); ok {
		v.ProductRef = &ref
	}

	return v
}

// Resolve fills the mandate and category names referenced by the most recent
// successful validation.
func Resolve(ctx context.Context, r *Recognition, lookup Lookup) (View, error) {
	v := NewView(r)

	if id, ok := r.MandateID(); ok {
		name, found, err := lookup.Mandate(ctx, id)
		if err != nil {
			return v, err
		}
		if found {
			v.Mandate = &name
		}
	}

	if id, ok := r.PlanID(); ok {
		name, found, err := lookup.Category(ctx, id)
		if err != nil {
			return v, err
		}
		if found {
			v.CategoryName = &name
		}
	}

	return v, nil
}
