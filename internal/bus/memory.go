package bus

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/JaimeStill/recognition/internal/events"
	"github.com/JaimeStill/recognition/pkg/lifecycle"
)

// Memory is an in-process Bus. Each recognition hashes to one shard and each
// shard is drained by a single goroutine, so per-recognition order is kept.
// Shard queues grow without bound, so Publish never waits on a slow handler.
type Memory struct {
	shards   []*shard
	handlers []Handler
	policy   retryPolicy
	logger   *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
	workers   sync.WaitGroup
}

type shard struct {
	mu      sync.Mutex
	pending []events.Event
	signal  chan struct{}
}

func (s *shard) push(ev events.Event) {
	s.mu.Lock()
	s.pending = append(s.pending, ev)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// take removes and returns everything queued so far.
func (s *shard) take() []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.pending
	s.pending = make([]events.Event, 0, cap(batch))
	return batch
}

func (s *shard) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// NewMemory creates an in-process bus from cfg. cfg.Buffer sizes each
// shard's initial queue capacity.
func NewMemory(cfg *Config, logger *slog.Logger) *Memory {
	shards := make([]*shard, cfg.Shards)
	for i := range shards {
		shards[i] = &shard{
			pending: make([]events.Event, 0, cfg.Buffer),
			signal:  make(chan struct{}, 1),
		}
	}

	return &Memory{
		shards: shards,
		policy: retryPolicy{attempts: cfg.MaxAttempts, delay: cfg.RetryDelayDuration()},
		logger: logger.With("system", "bus", "kind", KindMemory),
		done:   make(chan struct{}),
	}
}

func (m *Memory) Subscribe(h Handler) {
	m.handlers = append(m.handlers, h)
}

// Publish enqueues ev on its recognition's shard and returns immediately.
// The event is already durable in the log when Publish is called, so a
// cancelled ctx does not prevent the enqueue.
func (m *Memory) Publish(ctx context.Context, ev events.Event) error {
	select {
	case <-m.done:
		return ErrClosed
	default:
	}

	m.shards[m.shard(ev.RecognitionID)].push(ev)
	return nil
}

func (m *Memory) Start(lc *lifecycle.Coordinator) error {
	m.logger.Info("starting event bus", "shards", len(m.shards))

	ctx := lc.Context()
	for i, sh := range m.shards {
		m.workers.Go(func() {
			m.drain(ctx, i, sh)
		})
	}

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		m.close()
		m.workers.Wait()
		m.logger.Info("event bus stopped")
	})

	return nil
}

func (m *Memory) close() {
	m.closeOnce.Do(func() { close(m.done) })
}

func (m *Memory) drain(ctx context.Context, index int, sh *shard) {
	for {
		select {
		case <-m.done:
			if n := sh.len(); n > 0 {
				m.logger.Warn("undelivered events discarded", "shard", index, "count", n)
			}
			return
		case <-sh.signal:
			for _, ev := range sh.take() {
				select {
				case <-m.done:
					m.logger.Warn("undelivered events discarded", "shard", index, "event_id", ev.ID)
					return
				default:
				}
				deliver(ctx, m.handlers, ev, m.policy, m.logger)
			}
		}
	}
}

func (m *Memory) shard(id uuid.UUID) int {
	h := fnv.New32a()
	h.Write(id[:])
	return int(h.Sum32() % uint32(len(m.shards)))
}
