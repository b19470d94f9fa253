package bus_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/recognition/internal/bus"
	"github.com/JaimeStill/recognition/internal/events"
	"github.com/JaimeStill/recognition/pkg/lifecycle"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func memoryConfig(t *testing.T, attempts int) *bus.Config {
	t.Helper()
	cfg := &bus.Config{Shards: 4, Buffer: 16, MaxAttempts: attempts, RetryDelay: "1ms"}
	if err := cfg.Finalize(nil); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	return cfg
}

func startMemory(t *testing.T, cfg *bus.Config, handlers ...bus.Handler) *bus.Memory {
	t.Helper()
	b := bus.NewMemory(cfg, discardLogger())
	for _, h := range handlers {
		b.Subscribe(h)
	}

	lc := lifecycle.New()
	if err := b.Start(lc); err != nil {
		t.Fatalf("Start: %v", err)
	}
	lc.WaitForStartup()
	t.Cleanup(func() {
		if err := lc.Shutdown(time.Second); err != nil {
			t.Errorf("Shutdown: %v", err)
		}
	})
	return b
}

func started(id uuid.UUID, task string) events.Event {
	return events.New(id, events.RecognitionStarted{TaskID: task}, time.Now())
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestMemoryPreservesRecognitionOrder(t *testing.T) {
	const perRecognition = 50
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}

	var (
		mu   sync.Mutex
		seen = make(map[uuid.UUID][]uuid.UUID)
		done = make(chan struct{})
		got  atomic.Int32
	)

	b := startMemory(t, memoryConfig(t, 1), func(ctx context.Context, ev events.Event) error {
		mu.Lock()
		seen[ev.RecognitionID] = append(seen[ev.RecognitionID], ev.ID)
		mu.Unlock()
		if got.Add(1) == int32(perRecognition*len(ids)) {
			close(done)
		}
		return nil
	})

	published := make(map[uuid.UUID][]uuid.UUID)
	for range perRecognition {
		for _, id := range ids {
			ev := started(id, "T")
			published[id] = append(published[id], ev.ID)
			if err := b.Publish(context.Background(), ev); err != nil {
				t.Fatalf("Publish: %v", err)
			}
		}
	}

	waitFor(t, done)

	mu.Lock()
	defer mu.Unlock()
	for _, id := range ids {
		want, have := published[id], seen[id]
		if len(want) != len(have) {
			t.Fatalf("recognition %s: delivered %d, want %d", id, len(have), len(want))
		}
		for i := range want {
			if want[i] != have[i] {
				t.Fatalf("recognition %s: event %d out of order", id, i)
			}
		}
	}
}

func TestMemoryRetriesHandler(t *testing.T) {
	var calls atomic.Int32
	done := make(chan struct{})

	b := startMemory(t, memoryConfig(t, 3), func(ctx context.Context, ev events.Event) error {
		if calls.Add(1) < 3 {
			return errors.New("transient")
		}
		close(done)
		return nil
	})

	if err := b.Publish(context.Background(), started(uuid.New(), "T")); err != nil {
		t.Fatal(err)
	}
	waitFor(t, done)

	if n := calls.Load(); n != 3 {
		t.Errorf("handler called %d times, want 3", n)
	}
}

func TestMemoryDropsAfterMaxAttempts(t *testing.T) {
	id := uuid.New()
	poison := started(id, "poison")
	next := started(id, "next")

	var poisonCalls atomic.Int32
	done := make(chan struct{})

	b := startMemory(t, memoryConfig(t, 2), func(ctx context.Context, ev events.Event) error {
		if ev.ID == poison.ID {
			poisonCalls.Add(1)
			return errors.New("permanent")
		}
		close(done)
		return nil
	})

	for _, ev := range []events.Event{poison, next} {
		if err := b.Publish(context.Background(), ev); err != nil {
			t.Fatal(err)
		}
	}
	waitFor(t, done)

	if n := poisonCalls.Load(); n != 2 {
		t.Errorf("poison event attempted %d times, want 2", n)
	}
}

func TestMemoryFansOutToSubscribers(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(2)
	handler := func(ctx context.Context, ev events.Event) error {
		wg.Done()
		return nil
	}

	b := startMemory(t, memoryConfig(t, 1), handler, handler)
	if err := b.Publish(context.Background(), started(uuid.New(), "T")); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	waitFor(t, done)
}

func TestMemoryPublishAfterShutdown(t *testing.T) {
	b := bus.NewMemory(memoryConfig(t, 1), discardLogger())
	lc := lifecycle.New()
	if err := b.Start(lc); err != nil {
		t.Fatal(err)
	}
	lc.WaitForStartup()
	if err := lc.Shutdown(time.Second); err != nil {
		t.Fatal(err)
	}

	err := b.Publish(context.Background(), started(uuid.New(), "T"))
	if !errors.Is(err, bus.ErrClosed) {
		t.Errorf("Publish error = %v, want ErrClosed", err)
	}
}

func TestMemoryPublishDoesNotWaitForHandler(t *testing.T) {
	cfg := &bus.Config{Shards: 1, Buffer: 1, MaxAttempts: 1, RetryDelay: "1ms"}
	if err := cfg.Finalize(nil); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	const total = 20
	var (
		release = make(chan struct{})
		done    = make(chan struct{})
		mu      sync.Mutex
		order   []uuid.UUID
	)

	b := startMemory(t, cfg, func(ctx context.Context, ev events.Event) error {
		<-release
		mu.Lock()
		order = append(order, ev.ID)
		if len(order) == total {
			close(done)
		}
		mu.Unlock()
		return nil
	})
	var once sync.Once
	unblock := func() { once.Do(func() { close(release) }) }
	t.Cleanup(unblock)

	id := uuid.New()
	published := make([]uuid.UUID, 0, total)
	for i := range total {
		ev := started(id, "T")
		published = append(published, ev.ID)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		start := time.Now()
		err := b.Publish(ctx, ev)
		cancel()
		if err != nil {
			t.Fatalf("Publish %d: %v", i, err)
		}
		if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
			t.Fatalf("Publish %d took %v with a stalled handler", i, elapsed)
		}
	}

	unblock()
	waitFor(t, done)

	mu.Lock()
	defer mu.Unlock()
	for i := range published {
		if order[i] != published[i] {
			t.Fatalf("event %d delivered out of order", i)
		}
	}
}

func TestMemoryPublishWithCancelledContext(t *testing.T) {
	delivered := make(chan struct{})
	b := startMemory(t, memoryConfig(t, 1), func(ctx context.Context, ev events.Event) error {
		close(delivered)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := b.Publish(ctx, started(uuid.New(), "T")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	waitFor(t, delivered)
}
