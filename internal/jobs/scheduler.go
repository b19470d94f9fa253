// Package jobs runs scheduled master-data synchronizations.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/robfig/cron"

	"github.com/JaimeStill/recognition/internal/masterdata"
	"github.com/JaimeStill/recognition/pkg/lifecycle"
)

// ErrUnknownJob indicates no configured job has the requested name.
var ErrUnknownJob = errors.New("unknown job")

// Syncer writes rows to a master-data table.
type Syncer interface {
	Sync(ctx context.Context, table string, rows []masterdata.Row, chunkSize int) (*masterdata.Response, error)
}

// Scheduler triggers configured jobs on their cron schedules.
// A job still running when its next tick fires skips that tick.
type Scheduler struct {
	cron      *cron.Cron
	jobs      []*scheduled
	source    Source
	sync      Syncer
	chunkSize int
	ctx       context.Context
	logger    *slog.Logger
}

type scheduled struct {
	Job
	running atomic.Bool
}

// New creates a Scheduler for the configured jobs. chunkSize applies to
// jobs that do not set their own.
func New(cfg *Config, source Source, sync Syncer, chunkSize int, logger *slog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:      cron.New(),
		source:    source,
		sync:      sync,
		chunkSize: chunkSize,
		ctx:       context.Background(),
		logger:    logger.With("system", "jobs"),
	}

	for _, job := range cfg.Jobs {
		sj := &scheduled{Job: job}
		if err := s.cron.AddFunc(job.Schedule, func() { s.trigger(sj) }); err != nil {
			return nil, fmt.Errorf("schedule job %s: %w", job.Name, err)
		}
		s.jobs = append(s.jobs, sj)
	}

	return s, nil
}

// Start begins scheduling on startup and stops the cron loop on shutdown.
// Runs use the coordinator context and observe its cancellation.
func (s *Scheduler) Start(lc *lifecycle.Coordinator) error {
	s.ctx = lc.Context()

	lc.OnStartup(func() {
		s.cron.Start()
		s.logger.Info("scheduler started", "jobs", len(s.jobs))
	})

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		s.cron.Stop()
		s.logger.Info("scheduler stopped")
	})

	return nil
}

// Jobs returns the configured jobs in declaration order.
func (s *Scheduler) Jobs() []Job {
	out := make([]Job, len(s.jobs))
	for i, sj := range s.jobs {
		out[i] = sj.Job
	}
	return out
}

// RunNow executes the named job immediately.
func (s *Scheduler) RunNow(ctx context.Context, name string) (*masterdata.Response, error) {
	for _, sj := range s.jobs {
		if sj.Name == name {
			return s.Run(ctx, sj.Job)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownJob, name)
}

func (s *Scheduler) trigger(sj *scheduled) {
	if !sj.running.CompareAndSwap(false, true) {
		s.logger.Warn("job still running, skipping tick", "job", sj.Name)
		return
	}
	defer sj.running.Store(false)

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job panicked", "job", sj.Name, "panic", r)
		}
	}()

	if _, err := s.Run(s.ctx, sj.Job); err != nil {
		s.logger.Error("job failed", "job", sj.Name, "error", err)
	}
}

// Run reads the job's rows and synchronizes them.
func (s *Scheduler) Run(ctx context.Context, job Job) (*masterdata.Response, error) {
	rows, err := s.source.Rows(ctx, job.Query)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", job.Name, err)
	}

	chunkSize := job.ChunkSize
	if chunkSize == 0 {
		chunkSize = s.chunkSize
	}

	resp, err := s.sync.Sync(ctx, job.Table, rows, chunkSize)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", job.Name, err)
	}

	s.logger.Info("job complete",
		"job", job.Name,
		"table", job.Table,
		"rows", len(rows),
		"success", resp.Success,
		"failed_batches", len(resp.Errors),
	)
	return resp, nil
}
