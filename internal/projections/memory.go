package projections

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/recognition/internal/events"
	"github.com/JaimeStill/recognition/pkg/pagination"
	"github.com/JaimeStill/recognition/pkg/query"
)

type memoryStore struct {
	mu        sync.Mutex
	rows      map[uuid.UUID]*Projection
	processed map[uuid.UUID]uuid.UUID
	now       func() time.Time
}

// NewMemoryStore creates a Store held in process memory.
func NewMemoryStore() Store {
	return &memoryStore{
		rows:      make(map[uuid.UUID]*Projection),
		processed: make(map[uuid.UUID]uuid.UUID),
		now:       time.Now,
	}
}

func (m *memoryStore) Apply(ctx context.Context, ev events.Event, reduce ReduceFunc) (Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, seen := m.processed[ev.ID]; seen {
		return Duplicate, nil
	}
	m.processed[ev.ID] = ev.RecognitionID

	var current *Projection
	if row, ok := m.rows[ev.RecognitionID]; ok {
		current = row.Clone()
	}

	next := reduce(current)
	if next == nil {
		return Dropped, nil
	}

	next = next.Clone()
	next.UpdatedAt = m.now().UTC().Truncate(time.Microsecond)
	m.rows[ev.RecognitionID] = next
	return Updated, nil
}

// Replace holds the store lock across replay, which serializes it against
// every Apply.
func (m *memoryStore) Replace(ctx context.Context, id uuid.UUID, replay ReplayFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, applied, err := replay(ctx)
	if err != nil {
		return err
	}

	delete(m.rows, id)
	for eventID, recognitionID := range m.processed {
		if recognitionID == id {
			delete(m.processed, eventID)
		}
	}
	for _, eventID := range applied {
		m.processed[eventID] = id
	}

	if row != nil {
		row = row.Clone()
		row.UpdatedAt = m.now().UTC().Truncate(time.Microsecond)
		m.rows[id] = row
	}
	return nil
}

func (m *memoryStore) Find(ctx context.Context, id uuid.UUID) (*Projection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return row.Clone(), nil
}

func (m *memoryStore) List(ctx context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Projection], error) {
	m.mu.Lock()
	rows := make([]Projection, 0, len(m.rows))
	for _, row := range m.rows {
		if filters.match(row) && matchSearch(row, page.Search) {
			rows = append(rows, *row.Clone())
		}
	}
	m.mu.Unlock()

	sortRows(rows, page.Sort)

	data, total := pagination.Slice(rows, page)
	result := pagination.NewPageResult(data, total, page.Page, page.PageSize)
	return &result, nil
}

func (f Filters) match(p *Projection) bool {
	if f.VerificationRequired != nil && p.VerificationRequired != *f.VerificationRequired {
		return false
	}
	if f.ProductCreated != nil && (p.ProductCreatedAt != nil) != *f.ProductCreated {
		return false
	}
	if f.StartedFrom != nil && (p.StartedAt == nil || p.StartedAt.Before(*f.StartedFrom)) {
		return false
	}
	if f.StartedTo != nil && (p.StartedAt == nil || !p.StartedAt.Before(*f.StartedTo)) {
		return false
	}
	if f.CategoryName != nil && !equalPtr(p.CategoryName, *f.CategoryName) {
		return false
	}
	if f.CompanyName != nil && !equalPtr(p.CompanyName, *f.CompanyName) {
		return false
	}
	return true
}

func matchSearch(p *Projection, search *string) bool {
	if search == nil || *search == "" {
		return true
	}
	needle := strings.ToLower(*search)
	for _, s := range []*string{p.CategoryName, p.CompanyName, p.SubcompanyName, p.Recognizable} {
		if s != nil && strings.Contains(strings.ToLower(*s), needle) {
			return true
		}
	}
	return false
}

func equalPtr(p *string, v string) bool {
	return p != nil && *p == v
}

var comparators = map[string]func(a, b *Projection) int{
	"RecognitionID":       func(a, b *Projection) int { return strings.Compare(a.RecognitionID.String(), b.RecognitionID.String()) },
	"StartedAt":           func(a, b *Projection) int { return compareTime(a.StartedAt, b.StartedAt) },
	"FailedValidationAt":  func(a, b *Projection) int { return compareTime(a.FailedValidationAt, b.FailedValidationAt) },
	"SuccessValidationAt": func(a, b *Projection) int { return compareTime(a.SuccessValidationAt, b.SuccessValidationAt) },
	"ProductCreatedAt":    func(a, b *Projection) int { return compareTime(a.ProductCreatedAt, b.ProductCreatedAt) },
	"FailedCount":         func(a, b *Projection) int { return cmp.Compare(a.FailedCount, b.FailedCount) },
	"UpdatedAt":           func(a, b *Projection) int { return a.UpdatedAt.Compare(b.UpdatedAt) },
}

func sortRows(rows []Projection, fields []query.SortField) {
	if len(fields) == 0 {
		fields = []query.SortField{defaultSort}
	}

	slices.SortStableFunc(rows, func(a, b Projection) int {
		for _, f := range fields {
			compare, ok := comparators[f.Field]
			if !ok {
				continue
			}
			c := compare(&a, &b)
			if f.Descending {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})
}

// compareTime orders nil before any time.
func compareTime(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return a.Compare(*b)
}
