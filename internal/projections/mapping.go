package projections

import (
	"encoding/json"
	"net/url"
	"strconv"
	"time"

	"github.com/JaimeStill/recognition/pkg/query"
	"github.com/JaimeStill/recognition/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "projections", "p").
	Project("recognition_id", "RecognitionID").
	Project("started_at", "StartedAt").
	Project("failed_validation_at", "FailedValidationAt").
	Project("success_validation_at", "SuccessValidationAt").
	Project("product_created_at", "ProductCreatedAt").
	Project("failed_count", "FailedCount").
	Project("verification_required", "VerificationRequired").
	Project("verified_fields", "VerifiedFields").
	Project("category_name", "CategoryName").
	Project("company_name", "CompanyName").
	Project("subcompany_name", "SubcompanyName").
	Project("recognizable", "Recognizable").
	Project("updated_at", "UpdatedAt")

var defaultSort = query.SortField{
	Field:      "StartedAt",
	Descending: true,
}

var searchFields = []string{"CategoryName", "CompanyName", "SubcompanyName", "Recognizable"}

// Filters contains optional filtering criteria for projection queries.
// Nil fields are ignored. ProductCreated selects rows with or without a
// product_created_at. StartedFrom is inclusive and StartedTo exclusive.
type Filters struct {
	VerificationRequired *bool      `json:"verification_required,omitempty"`
	ProductCreated       *bool      `json:"product_created,omitempty"`
	StartedFrom          *time.Time `json:"started_from,omitempty"`
	StartedTo            *time.Time `json:"started_to,omitempty"`
	CategoryName         *string    `json:"category_name,omitempty"`
	CompanyName          *string    `json:"company_name,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("VerificationRequired", f.VerificationRequired).
		WherePresent("ProductCreatedAt", f.ProductCreated).
		WhereAtLeast("StartedAt", f.StartedFrom).
		WhereBefore("StartedAt", f.StartedTo).
		WhereEquals("CategoryName", f.CategoryName).
		WhereEquals("CompanyName", f.CompanyName)
}

// FiltersFromQuery extracts filter values from URL query parameters.
// Unparseable values are ignored.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters

	if v, err := strconv.ParseBool(values.Get("verification_required")); err == nil {
		f.VerificationRequired = &v
	}

	if v, err := strconv.ParseBool(values.Get("product_created")); err == nil {
		f.ProductCreated = &v
	}

	if v, err := time.Parse(time.RFC3339, values.Get("started_from")); err == nil {
		f.StartedFrom = &v
	}

	if v, err := time.Parse(time.RFC3339, values.Get("started_to")); err == nil {
		f.StartedTo = &v
	}

	if c := values.Get("category_name"); c != "" {
		f.CategoryName = &c
	}

	if c := values.Get("company_name"); c != "" {
		f.CompanyName = &c
	}

	return f
}

func scanProjection(s repository.Scanner) (Projection, error) {
	var (
		p        Projection
		verified []byte
	)
	err := s.Scan(
		&p.RecognitionID,
		&p.StartedAt,
		&p.FailedValidationAt,
		&p.SuccessValidationAt,
		&p.ProductCreatedAt,
		&p.FailedCount,
		&p.VerificationRequired,
		&verified,
		&p.CategoryName,
		&p.CompanyName,
		&p.SubcompanyName,
		&p.Recognizable,
		&p.UpdatedAt,
	)
	if err != nil {
		return p, err
	}

	p.VerifiedFields = []string{}
	if len(verified) > 0 {
		if err := json.Unmarshal(verified, &p.VerifiedFields); err != nil {
			return p, err
		}
	}
	return p, nil
}
