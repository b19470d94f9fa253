package projections_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/recognition/internal/catalog"
	"github.com/JaimeStill/recognition/internal/events"
	"github.com/JaimeStill/recognition/internal/projections"
	"github.com/JaimeStill/recognition/internal/recognitions"
	"github.com/JaimeStill/recognition/pkg/pagination"
	"github.com/JaimeStill/recognition/pkg/routes"
	"github.com/JaimeStill/recognition/pkg/storage"
)

type staticCatalog struct {
	products map[string]catalog.Product
	err      error
}

func (c staticCatalog) Mandate(ctx context.Context, id string) (string, bool, error) {
	return "", false, nil
}

func (c staticCatalog) Category(ctx context.Context, planID string) (string, bool, error) {
	return "", false, nil
}

func (c staticCatalog) Product(ctx context.Context, ref string) (catalog.Product, bool, error) {
	if c.err != nil {
		return catalog.Product{}, false, c.err
	}
	p, ok := c.products[ref]
	return p, ok, nil
}

// capture holds published events so tests control when they are dispatched.
type capture struct {
	events []events.Event
}

func (c *capture) Publish(ctx context.Context, ev events.Event) error {
	c.events = append(c.events, ev)
	return nil
}

type pipeline struct {
	recognitions recognitions.System
	projections  projections.System
	published    *capture
}

func newPipeline(t *testing.T, lookup catalog.Lookup) *pipeline {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	published := &capture{}

	recs := recognitions.New(recognitions.NewMemoryStore(), storage.NewMemory(), published, nil, logger)
	projs := projections.New(
		projections.NewMemoryStore(),
		recs,
		lookup,
		logger,
		pagination.Config{DefaultPageSize: 10, MaxPageSize: 50},
	)

	return &pipeline{recognitions: recs, projections: projs, published: published}
}

// dispatch delivers every captured event, then clears the capture.
func (p *pipeline) dispatch(t *testing.T) {
	t.Helper()
	for _, ev := range p.published.events {
		if err := p.projections.Handle(context.Background(), ev); err != nil {
			t.Fatalf("Handle(%s): %v", ev.Type, err)
		}
	}
	p.published.events = nil
}

func (p *pipeline) recognition(t *testing.T) uuid.UUID {
	t.Helper()
	rec, err := p.recognitions.Create(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return rec.ID
}

func check(t *testing.T) func(events.Event, error) {
	return func(_ events.Event, err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
}

func TestHandleValidationHistory(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, staticCatalog{})
	id := p.recognition(t)

	check(t)(p.recognitions.Start(ctx, id, recognitions.StartCommand{TaskID: "T1"}))
	check(t)(p.recognitions.FailValidation(ctx, id, recognitions.FailValidationCommand{Errors: []string{"x"}}))
	check(t)(p.recognitions.FailValidation(ctx, id, recognitions.FailValidationCommand{
		Errors:                  []string{"y"},
		ManuallyCorrectedFields: []string{"F1"},
	}))
	check(t)(p.recognitions.SucceedValidation(ctx, id, recognitions.SucceedValidationCommand{
		ProductAttributes: map[string]any{"mandate_id": 10},
	}))
	p.dispatch(t)

	got, err := p.projections.Find(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.FailedCount != 2 || got.VerificationRequired || len(got.VerifiedFields) != 0 {
		t.Errorf("projection = %+v", got)
	}
}

func TestHandleRedeliveryIsIdempotent(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, staticCatalog{})
	id := p.recognition(t)

	check(t)(p.recognitions.Start(ctx, id, recognitions.StartCommand{TaskID: "T"}))
	check(t)(p.recognitions.FailValidation(ctx, id, recognitions.FailValidationCommand{Errors: []string{"x"}}))

	for range 3 {
		for _, ev := range p.published.events {
			if err := p.projections.Handle(ctx, ev); err != nil {
				t.Fatal(err)
			}
		}
	}

	got, err := p.projections.Find(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.FailedCount != 1 {
		t.Errorf("FailedCount = %d after redelivery, want 1", got.FailedCount)
	}
}

func TestHandleDropsWithoutStart(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, staticCatalog{})
	id := p.recognition(t)

	check(t)(p.recognitions.FailValidation(ctx, id, recognitions.FailValidationCommand{Errors: []string{"x"}}))
	p.dispatch(t)

	if _, err := p.projections.Find(ctx, id); !errors.Is(err, projections.ErrNotFound) {
		t.Fatalf("Find error = %v, want ErrNotFound", err)
	}

	check(t)(p.recognitions.Start(ctx, id, recognitions.StartCommand{TaskID: "T"}))
	p.dispatch(t)

	got, err := p.projections.Find(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.FailedCount != 0 {
		t.Errorf("FailedCount = %d, dropped failure should not be queued", got.FailedCount)
	}
}

func TestHandleProductLookup(t *testing.T) {
	ctx := context.Background()
	lookup := staticCatalog{products: map[string]catalog.Product{
		"P-1": {Ref: "P-1", CategoryName: "Life", CompanyName: "Acme", SubcompanyName: "Acme North"},
	}}
	p := newPipeline(t, lookup)
	id := p.recognition(t)

	check(t)(p.recognitions.Start(ctx, id, recognitions.StartCommand{TaskID: "T"}))
	check(t)(p.recognitions.SucceedValidation(ctx, id, recognitions.SucceedValidationCommand{ProductAttributes: map[string]any{}}))
	check(t)(p.recognitions.CreateProduct(ctx, id, recognitions.CreateProductCommand{ProductRef: "P-1"}))
	p.dispatch(t)

	got, err := p.projections.Find(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.SubcompanyName == nil || *got.SubcompanyName != "Acme North" {
		t.Errorf("SubcompanyName = %v", got.SubcompanyName)
	}
	if got.Recognizable == nil || *got.Recognizable != "P-1" {
		t.Errorf("Recognizable = %v", got.Recognizable)
	}
}

func TestHandleLookupErrorIsRetryable(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, staticCatalog{err: errors.New("catalog down")})
	id := p.recognition(t)

	check(t)(p.recognitions.Start(ctx, id, recognitions.StartCommand{TaskID: "T"}))
	check(t)(p.recognitions.CreateProduct(ctx, id, recognitions.CreateProductCommand{ProductRef: "P"}))

	start, created := p.published.events[0], p.published.events[1]
	if err := p.projections.Handle(ctx, start); err != nil {
		t.Fatal(err)
	}
	if err := p.projections.Handle(ctx, created); err == nil {
		t.Fatal("Handle succeeded, want lookup error")
	}

	got, err := p.projections.Find(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.ProductCreatedAt != nil {
		t.Error("failed event was applied")
	}
}

func TestRebuild(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, staticCatalog{})
	id := p.recognition(t)

	check(t)(p.recognitions.Start(ctx, id, recognitions.StartCommand{TaskID: "T"}))
	check(t)(p.recognitions.FailValidation(ctx, id, recognitions.FailValidationCommand{Errors: []string{"x"}}))
	check(t)(p.recognitions.FailValidation(ctx, id, recognitions.FailValidationCommand{Errors: []string{"y"}}))

	p.published.events = p.published.events[:1]
	p.dispatch(t)

	got, err := p.projections.Rebuild(ctx, id)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if got.FailedCount != 2 {
		t.Errorf("FailedCount = %d after rebuild, want 2", got.FailedCount)
	}

	got, err = p.projections.Rebuild(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.FailedCount != 2 {
		t.Errorf("FailedCount = %d after second rebuild, want 2", got.FailedCount)
	}

	if _, err := p.projections.Rebuild(ctx, uuid.New()); !errors.Is(err, projections.ErrNotFound) {
		t.Errorf("Rebuild(unknown) error = %v, want ErrNotFound", err)
	}
}

type discardPublisher struct{}

func (discardPublisher) Publish(ctx context.Context, ev events.Event) error { return nil }

// interleavingSource runs during once, right after the first log read.
type interleavingSource struct {
	projections.EventSource
	during func()
	once   sync.Once
}

func (s *interleavingSource) Events(ctx context.Context, id uuid.UUID) ([]events.Event, error) {
	log, err := s.EventSource.Events(ctx, id)
	s.once.Do(s.during)
	return log, err
}

func TestRebuildKeepsEventAppendedDuringReplay(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	recs := recognitions.New(recognitions.NewMemoryStore(), storage.NewMemory(), discardPublisher{}, nil, logger)

	source := &interleavingSource{EventSource: recs}
	projs := projections.New(projections.NewMemoryStore(), source, staticCatalog{}, logger, pagination.Config{DefaultPageSize: 10, MaxPageSize: 50})

	rec, err := recs.Create(ctx)
	if err != nil {
		t.Fatal(err)
	}
	id := rec.ID

	for _, ev := range []func() (events.Event, error){
		func() (events.Event, error) { return recs.Start(ctx, id, recognitions.StartCommand{TaskID: "T"}) },
		func() (events.Event, error) {
			return recs.FailValidation(ctx, id, recognitions.FailValidationCommand{Errors: []string{"x"}})
		},
	} {
		e, err := ev()
		if err != nil {
			t.Fatal(err)
		}
		if err := projs.Handle(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	handled := make(chan error, 1)
	source.during = func() {
		ev, err := recs.FailValidation(ctx, id, recognitions.FailValidationCommand{Errors: []string{"y"}})
		if err != nil {
			handled <- err
			return
		}
		go func() { handled <- projs.Handle(ctx, ev) }()
	}

	if _, err := projs.Rebuild(ctx, id); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	select {
	case err := <-handled:
		if err != nil {
			t.Fatalf("live dispatch: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("live dispatch did not finish")
	}

	got, err := projs.Find(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.FailedCount != 2 {
		t.Errorf("FailedCount = %d, want 2 (log has two failures)", got.FailedCount)
	}

	again, err := projs.Rebuild(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if again.FailedCount != got.FailedCount {
		t.Errorf("second rebuild FailedCount = %d, want %d", again.FailedCount, got.FailedCount)
	}
}

func TestRebuildConcurrentWithDispatch(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	recs := recognitions.New(recognitions.NewMemoryStore(), storage.NewMemory(), discardPublisher{}, nil, logger)
	projs := projections.New(projections.NewMemoryStore(), recs, staticCatalog{}, logger, pagination.Config{DefaultPageSize: 10, MaxPageSize: 50})

	rec, err := recs.Create(ctx)
	if err != nil {
		t.Fatal(err)
	}
	start, err := recs.Start(ctx, rec.ID, recognitions.StartCommand{TaskID: "T"})
	if err != nil {
		t.Fatal(err)
	}
	if err := projs.Handle(ctx, start); err != nil {
		t.Fatal(err)
	}

	const failures = 25
	done := make(chan error, 1)
	go func() {
		for range failures {
			ev, err := recs.FailValidation(ctx, rec.ID, recognitions.FailValidationCommand{Errors: []string{"x"}})
			if err != nil {
				done <- err
				return
			}
			if err := projs.Handle(ctx, ev); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	for range failures {
		if _, err := projs.Rebuild(ctx, rec.ID); err != nil {
			t.Fatalf("Rebuild: %v", err)
		}
	}
	if err := <-done; err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	got, err := projs.Find(ctx, rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.FailedCount != failures {
		t.Errorf("FailedCount = %d, want %d", got.FailedCount, failures)
	}
}

func TestList(t *testing.T) {
	ctx := context.Background()
	lookup := staticCatalog{products: map[string]catalog.Product{"P": {Ref: "P", CompanyName: "Acme"}}}
	p := newPipeline(t, lookup)

	done := p.recognition(t)
	check(t)(p.recognitions.Start(ctx, done, recognitions.StartCommand{TaskID: "A"}))
	check(t)(p.recognitions.CreateProduct(ctx, done, recognitions.CreateProductCommand{ProductRef: "P"}))

	review := p.recognition(t)
	check(t)(p.recognitions.Start(ctx, review, recognitions.StartCommand{TaskID: "B"}))
	check(t)(p.recognitions.FailValidation(ctx, review, recognitions.FailValidationCommand{
		Errors:                  []string{"x"},
		ManuallyCorrectedFields: []string{"F"},
	}))

	idle := p.recognition(t)
	check(t)(p.recognitions.Start(ctx, idle, recognitions.StartCommand{TaskID: "C"}))
	p.dispatch(t)

	yes, no := true, false
	search := "acm"

	tests := []struct {
		name    string
		filters projections.Filters
		search  *string
		want    []uuid.UUID
	}{
		{"product created", projections.Filters{ProductCreated: &yes}, nil, []uuid.UUID{done}},
		{"verification required", projections.Filters{VerificationRequired: &yes}, nil, []uuid.UUID{review}},
		{"no product no review", projections.Filters{ProductCreated: &no, VerificationRequired: &no}, nil, []uuid.UUID{idle}},
		{"search", projections.Filters{}, &search, []uuid.UUID{done}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := p.projections.List(ctx, pagination.PageRequest{Search: tt.search}, tt.filters)
			if err != nil {
				t.Fatal(err)
			}
			if result.Total != len(tt.want) {
				t.Fatalf("Total = %d, want %d", result.Total, len(tt.want))
			}
			for i, id := range tt.want {
				if result.Data[i].RecognitionID != id {
					t.Errorf("Data[%d] = %s, want %s", i, result.Data[i].RecognitionID, id)
				}
			}
		})
	}

	all, err := p.projections.List(ctx, pagination.PageRequest{PageSize: 2}, projections.Filters{})
	if err != nil {
		t.Fatal(err)
	}
	if all.Total != 3 || len(all.Data) != 2 || all.TotalPages != 2 {
		t.Errorf("page = %+v", all)
	}
}

func TestHandler(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, staticCatalog{})
	id := p.recognition(t)
	check(t)(p.recognitions.Start(ctx, id, recognitions.StartCommand{TaskID: "T"}))
	p.dispatch(t)

	mux := http.NewServeMux()
	routes.Register(mux, p.projections.Handler().Routes())

	tests := []struct {
		name   string
		method string
		path   string
		status int
	}{
		{"list", "GET", "/projections?verification_required=false", http.StatusOK},
		{"find", "GET", "/projections/" + id.String(), http.StatusOK},
		{"find unknown", "GET", "/projections/" + uuid.NewString(), http.StatusNotFound},
		{"find bad id", "GET", "/projections/nope", http.StatusBadRequest},
		{"rebuild", "POST", "/projections/" + id.String() + "/rebuild", http.StatusOK},
		{"rebuild unknown", "POST", "/projections/" + uuid.NewString() + "/rebuild", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.status, rec.Body)
			}
		})
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/projections", nil))
	var page pagination.PageResult[projections.Projection]
	if err := json.NewDecoder(rec.Body).Decode(&page); err != nil {
		t.Fatal(err)
	}
	if page.Total != 1 || page.Data[0].RecognitionID != id {
		t.Errorf("list = %+v", page)
	}
}
