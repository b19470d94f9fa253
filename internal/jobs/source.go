package jobs

import (
	"context"
	"fmt"

	"github.com/JaimeStill/recognition/internal/masterdata"
	"github.com/JaimeStill/recognition/pkg/repository"
)

// Source produces the rows a job synchronizes.
type Source interface {
	Rows(ctx context.Context, query string) ([]masterdata.Row, error)
}

type sqlSource struct {
	db repository.Querier
}

// NewSQLSource creates a Source that runs job queries against db and keys
// each row by column name.
func NewSQLSource(db repository.Querier) Source {
	return &sqlSource{db: db}
}

func (s *sqlSource) Rows(ctx context.Context, query string) ([]masterdata.Row, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query rows: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	out := make([]masterdata.Row, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		dest := make([]any, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		row := make(masterdata.Row, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		out = append(out, row)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
