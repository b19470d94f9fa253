package recognitions

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/JaimeStill/recognition/internal/events"
)

type memoryEntry struct {
	rec       Recognition
	positions []int64
}

type memoryStore struct {
	mu       sync.RWMutex
	entries  map[uuid.UUID]*memoryEntry
	order    []uuid.UUID
	position int64
}

// NewMemoryStore creates a Store held in process memory.
// Appends receive a global position, mirroring the Postgres sequence.
func NewMemoryStore() Store {
	return &memoryStore{entries: make(map[uuid.UUID]*memoryEntry)}
}

func (m *memoryStore) Create(ctx context.Context, r Recognition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[r.ID]; exists {
		return ErrDuplicate
	}
	r.Log = nil
	m.entries[r.ID] = &memoryEntry{rec: r}
	m.order = append(m.order, r.ID)
	return nil
}

func (m *memoryStore) Append(ctx context.Context, ev events.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[ev.RecognitionID]
	if !ok {
		return ErrNotFound
	}
	for _, existing := range entry.rec.Log {
		if existing.ID == ev.ID {
			return ErrDuplicate
		}
	}

	m.position++
	entry.rec.Log = append(entry.rec.Log, ev)
	entry.positions = append(entry.positions, m.position)
	return nil
}

func (m *memoryStore) Find(ctx context.Context, id uuid.UUID) (*Recognition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return entry.snapshot(), nil
}

func (m *memoryStore) FindByTaskID(ctx context.Context, taskID string) (*Recognition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var (
		best    *memoryEntry
		bestPos int64
	)

	for _, entry := range m.entries {
		pos, id, ok := entry.latestStart()
		if !ok || id != taskID {
			continue
		}
		if best == nil || pos > bestPos {
			best, bestPos = entry, pos
		}
	}

	if best == nil {
		return nil, ErrNotFound
	}
	return best.snapshot(), nil
}

func (m *memoryStore) FindPending(ctx context.Context) ([]Recognition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pending := make([]Recognition, 0)
	for _, id := range m.order {
		entry := m.entries[id]
		if entry.rec.Pending() {
			pending = append(pending, *entry.snapshot())
		}
	}
	return pending, nil
}

func (e *memoryEntry) latestStart() (int64, string, bool) {
	for i := len(e.rec.Log) - 1; i >= 0; i-- {
		if p, ok := e.rec.Log[i].Payload.(events.RecognitionStarted); ok {
			return e.positions[i], p.TaskID, true
		}
	}
	return 0, "", false
}

func (e *memoryEntry) snapshot() *Recognition {
	r := e.rec
	r.Log = slices.Clone(e.rec.Log)
	return &r
}
