package masterdata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/JaimeStill/recognition/pkg/storage"
	"github.com/JaimeStill/recognition/pkg/tracing"
)

// Synchronizer writes row sets batch by batch. A failing batch never stops
// the remaining batches.
type Synchronizer struct {
	writer      Writer
	archive     storage.System
	successCode int
	concurrency int
	timeout     time.Duration
	logger      *slog.Logger
	tracer      trace.Tracer
}

// New creates a Synchronizer. archive may be nil to disable failed-batch archiving.
func New(writer Writer, archive storage.System, cfg *Config, logger *slog.Logger) *Synchronizer {
	return &Synchronizer{
		writer:      writer,
		archive:     archive,
		successCode: cfg.SuccessCode,
		concurrency: cfg.Concurrency,
		timeout:     cfg.TimeoutDuration(),
		logger:      logger.With("system", "masterdata"),
		tracer:      tracing.Tracer("masterdata"),
	}
}

type archivedBatch struct {
	Table string          `json:"table"`
	RunID uuid.UUID       `json:"run_id"`
	Batch int             `json:"batch"`
	Rows  []Row           `json:"rows"`
	Error json.RawMessage `json:"error"`
}

// Sync writes rows to table in batches of chunkSize. The writer is invoked
// once per batch. Errors in the Response follow batch order regardless of
// completion order. The returned error is reserved for invalid arguments.
func (s *Synchronizer) Sync(ctx context.Context, table string, rows []Row, chunkSize int) (*Response, error) {
	if err := validateTable(table); err != nil {
		return nil, err
	}

	batches, err := Partition(rows, chunkSize)
	if err != nil {
		return nil, err
	}

	runID := uuid.New()
	ctx, span := s.tracer.Start(ctx, "masterdata.sync",
		trace.WithAttributes(
			attribute.String("sync.table", table),
			attribute.String("sync.run_id", runID.String()),
			attribute.Int("sync.rows", len(rows)),
			attribute.Int("sync.batches", len(batches)),
		),
	)
	defer span.End()

	failures := make([]json.RawMessage, len(batches))

	var g errgroup.Group
	g.SetLimit(s.concurrency)

	for i, batch := range batches {
		g.Go(func() error {
			failures[i] = s.write(ctx, table, i+1, batch)
			return nil
		})
	}
	g.Wait()

	resp := &Response{Success: true, Errors: make([]json.RawMessage, 0), Batches: len(batches)}
	for i, failure := range failures {
		if failure == nil {
			continue
		}
		resp.Success = false
		resp.Errors = append(resp.Errors, failure)
		s.archiveBatch(ctx, table, runID, i+1, batches[i], failure)
	}

	if !resp.Success {
		span.SetStatus(codes.Error, fmt.Sprintf("%d of %d batches failed", len(resp.Errors), len(batches)))
	}

	s.logger.Info("sync complete",
		"table", table,
		"run_id", runID,
		"rows", len(rows),
		"batches", len(batches),
		"failed", len(resp.Errors),
	)
	return resp, nil
}

// write performs one batch and returns its error payload, or nil on success.
func (s *Synchronizer) write(ctx context.Context, table string, n int, batch []Row) (failure json.RawMessage) {
	ctx, span := s.tracer.Start(ctx, "masterdata.batch",
		trace.WithAttributes(
			attribute.Int("sync.batch", n),
			attribute.Int("sync.batch_rows", len(batch)),
		),
	)
	defer func() {
		if failure != nil {
			span.SetStatus(codes.Error, string(failure))
		}
		span.End()
	}()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.writer.Write(ctx, table, batch)
	if err != nil {
		s.logger.Warn("batch transport failed", "table", table, "batch", n, "error", err)
		return transportError(err)
	}

	span.SetAttributes(attribute.Int("http.status_code", result.Status))
	if result.Status == s.successCode {
		return nil
	}

	s.logger.Warn("batch rejected", "table", table, "batch", n, "status", result.Status)
	if len(result.Body) == 0 {
		return payload(result.Status, nil)
	}
	return result.Body
}

func (s *Synchronizer) archiveBatch(ctx context.Context, table string, runID uuid.UUID, n int, batch []Row, failure json.RawMessage) {
	if s.archive == nil {
		return
	}

	data, err := json.Marshal(archivedBatch{Table: table, RunID: runID, Batch: n, Rows: batch, Error: failure})
	if err != nil {
		s.logger.Warn("encode failed batch", "table", table, "batch", n, "error", err)
		return
	}

	key := fmt.Sprintf("sync/%s/%s/batch-%d.json", table, runID, n)
	if err := s.archive.Upload(context.WithoutCancel(ctx), key, bytes.NewReader(data), "application/json"); err != nil {
		s.logger.Warn("archive failed batch", "key", key, "error", err)
	}
}
