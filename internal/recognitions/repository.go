package recognitions

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/recognition/internal/events"
	"github.com/JaimeStill/recognition/pkg/repository"
)

const eventColumns = "id, recognition_id, type, payload, occurred_at"

type repo struct {
	db *sql.DB
}

// NewPostgresStore creates a Store over the recognitions and recognition_events tables.
func NewPostgresStore(db *sql.DB) Store {
	return &repo{db: db}
}

func (r *repo) Create(ctx context.Context, rec Recognition) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO recognitions(id, created_at) VALUES ($1, $2)",
		rec.ID, rec.CreatedAt,
	)
	return repository.MapError(err, ErrNotFound, ErrDuplicate)
}

func (r *repo) Append(ctx context.Context, ev events.Event) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", ev.Type, err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO recognition_events(`+eventColumns+`) VALUES ($1, $2, $3, $4, $5)`,
		ev.ID, ev.RecognitionID, string(ev.Type), string(payload), ev.OccurredAt,
	)
	return repository.MapError(err, ErrNotFound, ErrDuplicate)
}

func (r *repo) Find(ctx context.Context, id uuid.UUID) (*Recognition, error) {
	return repository.WithTx(ctx, r.db, func(tx *sql.Tx) (*Recognition, error) {
		rec, err := repository.QueryOne(ctx, tx,
			"SELECT id, created_at FROM recognitions WHERE id = $1",
			[]any{id}, scanRecognition,
		)
		if err != nil {
			return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
		}

		log, err := repository.QueryMany(ctx, tx,
			`SELECT `+eventColumns+` FROM recognition_events WHERE recognition_id = $1 ORDER BY position`,
			[]any{id}, scanEvent,
		)
		if err != nil {
			return nil, fmt.Errorf("load events for %s: %w", id, err)
		}

		rec.Log = log
		return &rec, nil
	})
}

func (r *repo) FindByTaskID(ctx context.Context, taskID string) (*Recognition, error) {
	q := `
		WITH latest AS (
			SELECT DISTINCT ON (recognition_id)
				recognition_id, payload->>'task_id' AS task_id, position
			FROM recognition_events
			WHERE type = $1
			ORDER BY recognition_id, position DESC
		)
		SELECT recognition_id FROM latest
		WHERE task_id = $2
		ORDER BY position DESC
		LIMIT 1`

	var id uuid.UUID
	err := r.db.QueryRowContext(ctx, q, string(events.TypeRecognitionStarted), taskID).Scan(&id)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	return r.Find(ctx, id)
}

func (r *repo) FindPending(ctx context.Context) ([]Recognition, error) {
	q := `
		SELECT r.id, r.created_at FROM recognitions r
		WHERE EXISTS (
			SELECT 1 FROM recognition_events e
			WHERE e.recognition_id = r.id AND e.type IN ($1, $2)
		)
		AND NOT EXISTS (
			SELECT 1 FROM recognition_events e
			WHERE e.recognition_id = r.id AND e.type = $3
		)
		ORDER BY r.created_at`

	args := []any{
		string(events.TypeValidationFailed),
		string(events.TypeValidationSucceeded),
		string(events.TypeProductCreated),
	}

	return repository.WithTx(ctx, r.db, func(tx *sql.Tx) ([]Recognition, error) {
		recs, err := repository.QueryMany(ctx, tx, q, args, scanRecognition)
		if err != nil {
			return nil, fmt.Errorf("query pending recognitions: %w", err)
		}
		if len(recs) == 0 {
			return recs, nil
		}

		ids := make([]string, len(recs))
		index := make(map[uuid.UUID]int, len(recs))
		for i, rec := range recs {
			ids[i] = rec.ID.String()
			index[rec.ID] = i
		}

		log, err := repository.QueryMany(ctx, tx,
			`SELECT `+eventColumns+` FROM recognition_events WHERE recognition_id = ANY($1::uuid[]) ORDER BY position`,
			[]any{ids}, scanEvent,
		)
		if err != nil {
			return nil, fmt.Errorf("load pending events: %w", err)
		}

		for _, ev := range log {
			i := index[ev.RecognitionID]
			recs[i].Log = append(recs[i].Log, ev)
		}
		return recs, nil
	})
}

func scanRecognition(s repository.Scanner) (Recognition, error) {
	var r Recognition
	err := s.Scan(&r.ID, &r.CreatedAt)
	return r, err
}

func scanEvent(s repository.Scanner) (events.Event, error) {
	var (
		ev  events.Event
		typ string
		raw []byte
		at  time.Time
	)

	if err := s.Scan(&ev.ID, &ev.RecognitionID, &typ, &raw, &at); err != nil {
		return ev, err
	}

	payload, err := events.DecodePayload(events.Type(typ), raw)
	if err != nil {
		return ev, fmt.Errorf("decode event %s: %w", ev.ID, err)
	}

	ev.Type = events.Type(typ)
	ev.Payload = payload
	ev.OccurredAt = at.UTC()
	return ev, nil
}
