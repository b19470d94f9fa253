// Package projections maintains the BI read model: one row per recognition,
// updated incrementally from published events.
package projections

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/recognition/internal/catalog"
	"github.com/JaimeStill/recognition/internal/events"
)

// Projection is the read-model row of one recognition.
// FailedCount is the only accumulating field. VerificationRequired and
// VerifiedFields always mirror the latest validation event.
type Projection struct {
	RecognitionID        uuid.UUID  `json:"recognition_id"`
	StartedAt            *time.Time `json:"started_at"`
	FailedValidationAt   *time.Time `json:"failed_validation_at"`
	SuccessValidationAt  *time.Time `json:"success_validation_at"`
	ProductCreatedAt     *time.Time `json:"product_created_at"`
	FailedCount          int        `json:"failed_count"`
	VerificationRequired bool       `json:"verification_required"`
	VerifiedFields       []string   `json:"verified_fields"`
	CategoryName         *string    `json:"category_name"`
	CompanyName          *string    `json:"company_name"`
	SubcompanyName       *string    `json:"subcompany_name"`
	Recognizable         *string    `json:"recognizable"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// Clone returns a deep copy of p.
func (p *Projection) Clone() *Projection {
	c := *p
	c.VerifiedFields = slices.Clone(p.VerifiedFields)
	if c.VerifiedFields == nil {
		c.VerifiedFields = []string{}
	}
	return &c
}

// Reduce returns the projection that results from applying ev to current.
// current is nil when no row exists. product carries the catalog data of a
// ProductCreated event and is ignored otherwise. A nil result means the
// event leaves the read model unchanged: validation and product events for a
// recognition that was never started are dropped, and document uploads are
// not projected.
func Reduce(current *Projection, ev events.Event, product *catalog.Product) *Projection {
	at := ev.OccurredAt

	switch p := ev.Payload.(type) {
	case events.RecognitionStarted:
		next := &Projection{RecognitionID: ev.RecognitionID, VerifiedFields: []string{}}
		if current != nil {
			next = current.Clone()
		}
		next.StartedAt = &at
		return next

	case events.ValidationFailed:
		if current == nil {
			return nil
		}
		next := current.Clone()
		next.FailedValidationAt = &at
		next.FailedCount++
		verify(next, p)
		return next

	case events.ValidationSucceeded:
		if current == nil {
			return nil
		}
		next := current.Clone()
		next.SuccessValidationAt = &at
		verify(next, p)
		return next

	case events.ProductCreated:
		if current == nil {
			return nil
		}
		next := current.Clone()
		next.ProductCreatedAt = &at
		next.Recognizable = &p.ProductRef
		if product != nil {
			next.CategoryName = optional(product.CategoryName)
			next.CompanyName = optional(product.CompanyName)
			next.SubcompanyName = optional(product.SubcompanyName)
		}
		return next
	}

	return nil
}

func verify(p *Projection, payload events.Payload) {
	fields := slices.Clone(events.CorrectedFields(payload))
	p.VerificationRequired = len(fields) > 0
	p.VerifiedFields = fields
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
