package projections

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/recognition/internal/events"
	"github.com/JaimeStill/recognition/pkg/pagination"
	"github.com/JaimeStill/recognition/pkg/query"
	"github.com/JaimeStill/recognition/pkg/repository"
)

const (
	// Serializes Apply and Replace per recognition, including before the
	// projection row exists.
	lockRecognition = `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`

	markProcessed = `
		INSERT INTO projection_events(event_id, recognition_id, processed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (event_id) DO NOTHING`

	upsertProjection = `
		INSERT INTO projections(
			recognition_id, started_at, failed_validation_at, success_validation_at,
			product_created_at, failed_count, verification_required, verified_fields,
			category_name, company_name, subcompany_name, recognizable, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (recognition_id) DO UPDATE SET
			started_at = EXCLUDED.started_at,
			failed_validation_at = EXCLUDED.failed_validation_at,
			success_validation_at = EXCLUDED.success_validation_at,
			product_created_at = EXCLUDED.product_created_at,
			failed_count = EXCLUDED.failed_count,
			verification_required = EXCLUDED.verification_required,
			verified_fields = EXCLUDED.verified_fields,
			category_name = EXCLUDED.category_name,
			company_name = EXCLUDED.company_name,
			subcompany_name = EXCLUDED.subcompany_name,
			recognizable = EXCLUDED.recognizable,
			updated_at = EXCLUDED.updated_at`
)

type repo struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresStore creates a Store over the projections and projection_events tables.
func NewPostgresStore(db *sql.DB) Store {
	return &repo{db: db, now: time.Now}
}

func (r *repo) Apply(ctx context.Context, ev events.Event, reduce ReduceFunc) (Outcome, error) {
	now := r.now().UTC().Truncate(time.Microsecond)

	return repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Outcome, error) {
		if _, err := tx.ExecContext(ctx, lockRecognition, ev.RecognitionID.String()); err != nil {
			return 0, fmt.Errorf("lock recognition %s: %w", ev.RecognitionID, err)
		}

		marked, err := repository.ExecCount(ctx, tx, markProcessed, ev.ID, ev.RecognitionID, now)
		if err != nil {
			return 0, fmt.Errorf("mark event %s: %w", ev.ID, err)
		}
		if marked == 0 {
			return Duplicate, nil
		}

		current, err := r.lock(ctx, tx, ev.RecognitionID)
		if err != nil {
			return 0, err
		}

		next := reduce(current)
		if next == nil {
			return Dropped, nil
		}
		next.UpdatedAt = now

		if err := upsert(ctx, tx, next); err != nil {
			return 0, err
		}
		return Updated, nil
	})
}

func (r *repo) lock(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*Projection, error) {
	q, args := query.NewBuilder(projection).BuildSingle("RecognitionID", id)

	p, err := repository.QueryOne(ctx, tx, q+" FOR UPDATE", args, scanProjection)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load projection %s: %w", id, err)
	}
	return &p, nil
}

func upsert(ctx context.Context, tx *sql.Tx, p *Projection) error {
	verified, err := json.Marshal(p.VerifiedFields)
	if err != nil {
		return fmt.Errorf("encode verified fields: %w", err)
	}

	_, err = tx.ExecContext(ctx, upsertProjection,
		p.RecognitionID,
		p.StartedAt,
		p.FailedValidationAt,
		p.SuccessValidationAt,
		p.ProductCreatedAt,
		p.FailedCount,
		p.VerificationRequired,
		string(verified),
		p.CategoryName,
		p.CompanyName,
		p.SubcompanyName,
		p.Recognizable,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("write projection %s: %w", p.RecognitionID, err)
	}
	return nil
}

func (r *repo) Replace(ctx context.Context, id uuid.UUID, replay ReplayFunc) error {
	now := r.now().UTC().Truncate(time.Microsecond)

	_, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (struct{}, error) {
		if _, err := tx.ExecContext(ctx, lockRecognition, id.String()); err != nil {
			return struct{}{}, fmt.Errorf("lock recognition: %w", err)
		}

		row, applied, err := replay(ctx)
		if err != nil {
			return struct{}{}, err
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM projection_events WHERE recognition_id = $1", id); err != nil {
			return struct{}{}, err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM projections WHERE recognition_id = $1", id); err != nil {
			return struct{}{}, err
		}

		for _, eventID := range applied {
			if _, err := tx.ExecContext(ctx, markProcessed, eventID, id, now); err != nil {
				return struct{}{}, fmt.Errorf("mark event %s: %w", eventID, err)
			}
		}

		if row != nil {
			row.UpdatedAt = now
			if err := upsert(ctx, tx, row); err != nil {
				return struct{}{}, err
			}
		}
		return struct{}{}, nil
	})
	if err != nil {
		return fmt.Errorf("replace projection %s: %w", id, err)
	}
	return nil
}

func (r *repo) Find(ctx context.Context, id uuid.UUID) (*Projection, error) {
	q, args := query.NewBuilder(projection).BuildSingle("RecognitionID", id)

	p, err := repository.QueryOne(ctx, r.db, q, args, scanProjection)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, err)
	}
	return &p, nil
}

func (r *repo) List(ctx context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Projection], error) {
	qb := query.
		NewBuilder(projection, defaultSort).
		WhereSearch(page.Search, searchFields...)

	filters.Apply(qb)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count projections: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	rows, err := repository.QueryMany(ctx, r.db, pageSQL, pageArgs, scanProjection)
	if err != nil {
		return nil, fmt.Errorf("query projections: %w", err)
	}

	result := pagination.NewPageResult(rows, total, page.Page, page.PageSize)
	return &result, nil
}
