// Package masterdata pushes row sets to the external master-data service in
// bounded batches, isolating per-batch failures.
package masterdata

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Row is one record in the shape the master-data service expects.
type Row = map[string]any

var (
	ErrInvalidChunkSize = errors.New("chunk size must be at least 1")
	ErrInvalidTable     = errors.New("invalid table name")
)

// Response aggregates the outcome of one synchronization run.
// Errors holds one payload per failed batch in batch order.
type Response struct {
	Success bool              `json:"success"`
	Errors  []json.RawMessage `json:"errors"`
	Batches int               `json:"batches"`
}

// Partition splits rows into contiguous batches of at most size rows,
// preserving order. Every row lands in exactly one batch.
func Partition[T any](rows []T, size int) ([][]T, error) {
	if size < 1 {
		return nil, ErrInvalidChunkSize
	}

	batches := make([][]T, 0, (len(rows)+size-1)/size)
	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		batches = append(batches, rows[start:end:end])
	}
	return batches, nil
}

func validateTable(table string) error {
	if table == "" || len(table) > 63 {
		return fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}
	for _, r := range table {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		default:
			return fmt.Errorf("%w: %q", ErrInvalidTable, table)
		}
	}
	return nil
}

func transportError(err error) json.RawMessage {
	raw, _ := json.Marshal(map[string]string{"error": err.Error()})
	return raw
}
