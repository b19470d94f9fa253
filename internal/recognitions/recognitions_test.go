package recognitions_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/recognition/internal/bus"
	"github.com/JaimeStill/recognition/internal/events"
	"github.com/JaimeStill/recognition/internal/recognitions"
	"github.com/JaimeStill/recognition/pkg/lifecycle"
	"github.com/JaimeStill/recognition/pkg/storage"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) published() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.events)
}

type fakeLookup struct {
	mandates   map[string]string
	categories map[string]string
	err        error
}

func (l fakeLookup) Mandate(ctx context.Context, id string) (string, bool, error) {
	if l.err != nil {
		return "", false, l.err
	}
	name, ok := l.mandates[id]
	return name, ok, nil
}

func (l fakeLookup) Category(ctx context.Context, planID string) (string, bool, error) {
	if l.err != nil {
		return "", false, l.err
	}
	name, ok := l.categories[planID]
	return name, ok, nil
}

type failingAppendStore struct {
	recognitions.Store
}

func (s failingAppendStore) Append(ctx context.Context, ev events.Event) error {
	return errors.New("disk full")
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	sys       recognitions.System
	store     recognitions.Store
	blobs     *storage.Memory
	publisher *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:     recognitions.NewMemoryStore(),
		blobs:     storage.NewMemory(),
		publisher: &recordingPublisher{},
	}
	lookup := fakeLookup{
		mandates:   map[string]string{"10": "North Mandate"},
		categories: map[string]string{"7": "Health"},
	}
	f.sys = recognitions.New(f.store, f.blobs, f.publisher, lookup, discardLogger())
	return f
}

func (f *fixture) create(t *testing.T) *recognitions.Recognition {
	t.Helper()
	rec, err := f.sys.Create(context.Background())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return rec
}

func must[T any](t *testing.T) func(T, error) T {
	return func(v T, err error) T {
		t.Helper()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return v
	}
}

func check(t *testing.T) func(events.Event, error) {
	return func(_ events.Event, err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
}

func TestValidationHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	rec := f.create(t)

	check(t)(f.sys.Start(ctx, rec.ID, recognitions.StartCommand{TaskID: "T1"}))
	check(t)(f.sys.FailValidation(ctx, rec.ID, recognitions.FailValidationCommand{Errors: []string{"x"}}))
	check(t)(f.sys.FailValidation(ctx, rec.ID, recognitions.FailValidationCommand{
		Errors:                  []string{"y"},
		ManuallyCorrectedFields: []string{"F1"},
	}))
	check(t)(f.sys.SucceedValidation(ctx, rec.ID, recognitions.SucceedValidationCommand{
		ProductAttributes: map[string]any{"mandate_id": 10},
	}))

	got := must[*recognitions.Recognition](t)(f.sys.Find(ctx, rec.ID))

	if errs := got.ValidationErrors(); len(errs) != 0 {
		t.Errorf("ValidationErrors = %v, want empty", errs)
	}
	if !got.SuccessfulValidation() {
		t.Error("SuccessfulValidation = false, want true")
	}
	if id, ok := got.ExternalID(); !ok || id != "T1" {
		t.Errorf("ExternalID = %q, %v; want T1", id, ok)
	}
	if id, ok := got.MandateID(); !ok || id != "10" {
		t.Errorf("MandateID = %q, %v; want 10", id, ok)
	}
	if _, ok := got.PlanID(); ok {
		t.Error("PlanID present, want absent")
	}
	if !got.Pending() {
		t.Error("Pending = false, want true")
	}

	if n := len(f.publisher.published()); n != 4 {
		t.Errorf("published %d events, want 4", n)
	}
}

func TestDerivedValues(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		apply      func(f *fixture, id uuid.UUID)
		errors     []string
		successful bool
		external   string
		product    string
		pending    bool
	}{
		{
			name:   "empty log",
			apply:  func(f *fixture, id uuid.UUID) {},
			errors: []string{},
		},
		{
			name: "latest failure wins",
			apply: func(f *fixture, id uuid.UUID) {
				f.sys.SucceedValidation(ctx, id, recognitions.SucceedValidationCommand{ProductAttributes: map[string]any{}})
				f.sys.FailValidation(ctx, id, recognitions.FailValidationCommand{Errors: []string{"a", "b"}})
			},
			errors:  []string{"a", "b"},
			pending: true,
		},
		{
			name: "restart changes external id",
			apply: func(f *fixture, id uuid.UUID) {
				f.sys.Start(ctx, id, recognitions.StartCommand{TaskID: "first"})
				f.sys.Start(ctx, id, recognitions.StartCommand{TaskID: "second"})
			},
			errors:   []string{},
			external: "second",
		},
		{
			name: "product created clears pending",
			apply: func(f *fixture, id uuid.UUID) {
				f.sys.SucceedValidation(ctx, id, recognitions.SucceedValidationCommand{ProductAttributes: map[string]any{}})
				f.sys.CreateProduct(ctx, id, recognitions.CreateProductCommand{ProductRef: "P-1"})
			},
			errors:     []string{},
			successful: true,
			product:    "P-1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			rec := f.create(t)
			tt.apply(f, rec.ID)

			got := must[*recognitions.Recognition](t)(f.sys.Find(ctx, rec.ID))

			if !slices.Equal(got.ValidationErrors(), tt.errors) {
				t.Errorf("ValidationErrors = %v, want %v", got.ValidationErrors(), tt.errors)
			}
			if got.ValidationErrors() == nil {
				t.Error("ValidationErrors returned nil")
			}
			if got.SuccessfulValidation() != tt.successful {
				t.Errorf("SuccessfulValidation = %v, want %v", got.SuccessfulValidation(), tt.successful)
			}
			if id, _ := got.ExternalID(); id != tt.external {
				t.Errorf("ExternalID = %q, want %q", id, tt.external)
			}
			if ref, _ := got.ProductRef(); ref != tt.product {
				t.Errorf("ProductRef = %q, want %q", ref, tt.product)
			}
			if got.Pending() != tt.pending {
				t.Errorf("Pending = %v, want %v", got.Pending(), tt.pending)
			}
		})
	}
}

func TestFindPendingExcludesCreatedProducts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	pending := f.create(t)
	check(t)(f.sys.FailValidation(ctx, pending.ID, recognitions.FailValidationCommand{Errors: []string{"x"}}))

	done := f.create(t)
	check(t)(f.sys.SucceedValidation(ctx, done.ID, recognitions.SucceedValidationCommand{ProductAttributes: map[string]any{}}))
	check(t)(f.sys.CreateProduct(ctx, done.ID, recognitions.CreateProductCommand{ProductRef: "P-9"}))
	check(t)(f.sys.FailValidation(ctx, done.ID, recognitions.FailValidationCommand{Errors: []string{"late"}}))

	idle := f.create(t)
	check(t)(f.sys.Start(ctx, idle.ID, recognitions.StartCommand{TaskID: "T"}))

	got := must[[]recognitions.Recognition](t)(f.sys.FindPending(ctx))
	if len(got) != 1 || got[0].ID != pending.ID {
		ids := make([]uuid.UUID, len(got))
		for i := range got {
			ids[i] = got[i].ID
		}
		t.Fatalf("FindPending = %v, want [%s]", ids, pending.ID)
	}
}

func TestFindByTaskID(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	a := f.create(t)
	b := f.create(t)

	check(t)(f.sys.Start(ctx, a.ID, recognitions.StartCommand{TaskID: "T1"}))
	check(t)(f.sys.Start(ctx, b.ID, recognitions.StartCommand{TaskID: "T1"}))

	got := must[*recognitions.Recognition](t)(f.sys.FindByTaskID(ctx, "T1"))
	if got.ID != b.ID {
		t.Errorf("FindByTaskID(T1) = %s, want most recently started %s", got.ID, b.ID)
	}

	check(t)(f.sys.Start(ctx, b.ID, recognitions.StartCommand{TaskID: "T2"}))

	got = must[*recognitions.Recognition](t)(f.sys.FindByTaskID(ctx, "T1"))
	if got.ID != a.ID {
		t.Errorf("after restart FindByTaskID(T1) = %s, want %s", got.ID, a.ID)
	}

	if _, err := f.sys.FindByTaskID(ctx, "missing"); !errors.Is(err, recognitions.ErrNotFound) {
		t.Errorf("FindByTaskID(missing) error = %v, want ErrNotFound", err)
	}
}

func TestInvalidCommandsAppendNothing(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		exec func(s recognitions.System, id uuid.UUID) error
	}{
		{"blank task", func(s recognitions.System, id uuid.UUID) error {
			_, err := s.Start(ctx, id, recognitions.StartCommand{TaskID: "  "})
			return err
		}},
		{"no errors", func(s recognitions.System, id uuid.UUID) error {
			_, err := s.FailValidation(ctx, id, recognitions.FailValidationCommand{})
			return err
		}},
		{"nil attributes", func(s recognitions.System, id uuid.UUID) error {
			_, err := s.SucceedValidation(ctx, id, recognitions.SucceedValidationCommand{})
			return err
		}},
		{"blank corrected field", func(s recognitions.System, id uuid.UUID) error {
			_, err := s.SucceedValidation(ctx, id, recognitions.SucceedValidationCommand{
				ProductAttributes:       map[string]any{},
				ManuallyCorrectedFields: []string{""},
			})
			return err
		}},
		{"blank product ref", func(s recognitions.System, id uuid.UUID) error {
			_, err := s.CreateProduct(ctx, id, recognitions.CreateProductCommand{})
			return err
		}},
		{"empty document", func(s recognitions.System, id uuid.UUID) error {
			_, err := s.UploadDocument(ctx, id, recognitions.UploadDocumentCommand{Filename: "a.pdf"})
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			rec := f.create(t)

			err := tt.exec(f.sys, rec.ID)
			if !errors.Is(err, recognitions.ErrInvalidCommand) {
				t.Fatalf("error = %v, want ErrInvalidCommand", err)
			}

			got := must[*recognitions.Recognition](t)(f.sys.Find(ctx, rec.ID))
			if len(got.Log) != 0 {
				t.Errorf("log has %d events, want 0", len(got.Log))
			}
			if n := len(f.publisher.published()); n != 0 {
				t.Errorf("published %d events, want 0", n)
			}
		})
	}
}

func TestCommandUnknownRecognition(t *testing.T) {
	f := newFixture(t)
	_, err := f.sys.Start(context.Background(), uuid.New(), recognitions.StartCommand{TaskID: "T"})
	if !errors.Is(err, recognitions.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestPublishFailureKeepsEvent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.publisher.err = errors.New("broker down")
	rec := f.create(t)

	ev, err := f.sys.Start(ctx, rec.ID, recognitions.StartCommand{TaskID: "T"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	got := must[[]events.Event](t)(f.sys.Events(ctx, rec.ID))
	if len(got) != 1 || got[0].ID != ev.ID {
		t.Errorf("Events = %v, want [%s]", got, ev.ID)
	}
}

func TestCommandsDoNotWaitForSlowDispatch(t *testing.T) {
	cfg := &bus.Config{Shards: 1, Buffer: 1, MaxAttempts: 1, RetryDelay: "1ms"}
	if err := cfg.Finalize(nil); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	release := make(chan struct{})
	var delivered sync.WaitGroup
	b := bus.NewMemory(cfg, discardLogger())
	b.Subscribe(func(ctx context.Context, ev events.Event) error {
		<-release
		delivered.Done()
		return nil
	})

	lc := lifecycle.New()
	if err := b.Start(lc); err != nil {
		t.Fatalf("Start bus: %v", err)
	}
	lc.WaitForStartup()
	t.Cleanup(func() {
		if err := lc.Shutdown(time.Second); err != nil {
			t.Errorf("Shutdown: %v", err)
		}
	})
	var once sync.Once
	unblock := func() { once.Do(func() { close(release) }) }
	t.Cleanup(unblock)

	store := recognitions.NewMemoryStore()
	sys := recognitions.New(store, storage.NewMemory(), b, fakeLookup{}, discardLogger())

	const commands = 5
	delivered.Add(commands)
	for i := range commands {
		rec, err := sys.Create(context.Background())
		if err != nil {
			t.Fatalf("Create: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		done := make(chan error, 1)
		go func() {
			_, err := sys.Start(ctx, rec.ID, recognitions.StartCommand{TaskID: "T"})
			done <- err
		}()

		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Start %d: %v", i, err)
			}
		case <-time.After(time.Second):
			t.Fatalf("Start %d still blocked while the dispatcher is stalled", i)
		}
		cancel()
	}

	unblock()
	finished := make(chan struct{})
	go func() {
		delivered.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("queued events were not delivered after the dispatcher resumed")
	}
}

func TestDescribe(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	rec := f.create(t)

	check(t)(f.sys.SucceedValidation(ctx, rec.ID, recognitions.SucceedValidationCommand{
		ProductAttributes: map[string]any{"mandate_id": "10", "plan_id": 7.0},
	}))

	view := must[*recognitions.View](t)(f.sys.Describe(ctx, rec.ID))
	if view.Mandate == nil || *view.Mandate != "North Mandate" {
		t.Errorf("Mandate = %v, want North Mandate", view.Mandate)
	}
	if view.CategoryName == nil || *view.CategoryName != "Health" {
		t.Errorf("CategoryName = %v, want Health", view.CategoryName)
	}
	if view.Events != 1 {
		t.Errorf("Events = %d, want 1", view.Events)
	}
}

func TestDescribeLookupError(t *testing.T) {
	ctx := context.Background()
	store := recognitions.NewMemoryStore()
	sys := recognitions.New(store, storage.NewMemory(), &recordingPublisher{}, fakeLookup{err: errors.New("db down")}, discardLogger())

	rec := must[*recognitions.Recognition](t)(sys.Create(ctx))
	check(t)(sys.SucceedValidation(ctx, rec.ID, recognitions.SucceedValidationCommand{
		ProductAttributes: map[string]any{"mandate_id": "10"},
	}))

	if _, err := sys.Describe(ctx, rec.ID); err == nil {
		t.Error("Describe succeeded, want lookup error")
	}
}

func TestUploadDocument(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	rec := f.create(t)

	ev, err := f.sys.UploadDocument(ctx, rec.ID, recognitions.UploadDocumentCommand{
		Filename: "../scan one.txt",
		Data:     []byte("plain text document"),
	})
	if err != nil {
		t.Fatalf("UploadDocument: %v", err)
	}

	doc := ev.Payload.(events.DocumentUploaded)
	wantKey := "recognitions/" + rec.ID.String() + "/scan%20one.txt"
	if doc.StorageKey != wantKey {
		t.Errorf("StorageKey = %q, want %q", doc.StorageKey, wantKey)
	}
	if doc.ContentType != "text/plain; charset=utf-8" {
		t.Errorf("ContentType = %q", doc.ContentType)
	}
	if doc.PageCount != nil {
		t.Errorf("PageCount = %d, want nil for non-PDF", *doc.PageCount)
	}

	exists, err := f.blobs.Exists(ctx, doc.StorageKey)
	if err != nil || !exists {
		t.Errorf("blob exists = %v, %v; want true", exists, err)
	}
}

func TestUploadDocumentCompensates(t *testing.T) {
	ctx := context.Background()
	inner := recognitions.NewMemoryStore()
	blobs := storage.NewMemory()
	sys := recognitions.New(failingAppendStore{inner}, blobs, &recordingPublisher{}, fakeLookup{}, discardLogger())

	rec := must[*recognitions.Recognition](t)(sys.Create(ctx))

	_, err := sys.UploadDocument(ctx, rec.ID, recognitions.UploadDocumentCommand{
		Filename: "doc.txt",
		Data:     []byte("hello"),
	})
	if err == nil {
		t.Fatal("UploadDocument succeeded, want append error")
	}
	if blobs.Len() != 0 {
		t.Errorf("blob count = %d, want 0 after compensation", blobs.Len())
	}
}

func TestUploadDocumentUnknownRecognition(t *testing.T) {
	f := newFixture(t)
	_, err := f.sys.UploadDocument(context.Background(), uuid.New(), recognitions.UploadDocumentCommand{
		Filename: "doc.txt",
		Data:     []byte("hello"),
	})
	if !errors.Is(err, recognitions.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
	if f.blobs.Len() != 0 {
		t.Errorf("blob count = %d, want 0", f.blobs.Len())
	}
}

func TestMemoryStoreDuplicateEvent(t *testing.T) {
	ctx := context.Background()
	store := recognitions.NewMemoryStore()
	rec := recognitions.Recognition{ID: uuid.New()}
	if err := store.Create(ctx, rec); err != nil {
		t.Fatal(err)
	}
	if err := store.Create(ctx, rec); !errors.Is(err, recognitions.ErrDuplicate) {
		t.Errorf("second Create error = %v, want ErrDuplicate", err)
	}

	ev := events.New(rec.ID, events.RecognitionStarted{TaskID: "T"}, rec.CreatedAt)
	if err := store.Append(ctx, ev); err != nil {
		t.Fatal(err)
	}
	if err := store.Append(ctx, ev); !errors.Is(err, recognitions.ErrDuplicate) {
		t.Errorf("second Append error = %v, want ErrDuplicate", err)
	}
}
