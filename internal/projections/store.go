package projections

import (
	"context"

	"github.com/google/uuid"

	"github.com/JaimeStill/recognition/internal/events"
	"github.com/JaimeStill/recognition/pkg/pagination"
)

// Outcome reports what applying an event did to the read model.
type Outcome int

const (
	// Updated means the reducer produced a row that was written.
	Updated Outcome = iota
	// Dropped means the reducer left the read model unchanged.
	Dropped
	// Duplicate means the event id had already been applied.
	Duplicate
)

func (o Outcome) String() string {
	switch o {
	case Updated:
		return "updated"
	case Dropped:
		return "dropped"
	case Duplicate:
		return "duplicate"
	}
	return "unknown"
}

// ReduceFunc computes the next row from the current one, or nil to leave it unchanged.
type ReduceFunc func(current *Projection) *Projection

// ReplayFunc folds a recognition's full log into a row. It returns nil for
// a log that produces no row, along with the ids of every folded event.
type ReplayFunc func(ctx context.Context) (row *Projection, applied []uuid.UUID, err error)

// Store persists projection rows together with the ids of applied events.
type Store interface {
	// Apply runs reduce against the current row of ev's recognition and
	// records ev.ID as applied, atomically. An already applied event id is
	// skipped without calling reduce.
	Apply(ctx context.Context, ev events.Event, reduce ReduceFunc) (Outcome, error)
	// Replace swaps the row of a recognition and its applied event ids for
	// the result of replay. Apply calls for the same recognition wait until
	// Replace returns, so no live event lands between the log read inside
	// replay and the swap.
	Replace(ctx context.Context, id uuid.UUID, replay ReplayFunc) error
	Find(ctx context.Context, id uuid.UUID) (*Projection, error)
	List(ctx context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Projection], error)
}
