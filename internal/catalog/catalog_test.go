package catalog_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/JaimeStill/recognition/internal/catalog"
	"github.com/JaimeStill/recognition/pkg/cache"
)

type countingLookup struct {
	calls    int
	mandates map[string]string
	products map[string]catalog.Product
	err      error
}

func (l *countingLookup) Mandate(ctx context.Context, id string) (string, bool, error) {
	l.calls++
	if l.err != nil {
		return "", false, l.err
	}
	name, ok := l.mandates[id]
	return name, ok, nil
}

func (l *countingLookup) Category(ctx context.Context, planID string) (string, bool, error) {
	l.calls++
	return "", false, l.err
}

func (l *countingLookup) Product(ctx context.Context, ref string) (catalog.Product, bool, error) {
	l.calls++
	if l.err != nil {
		return catalog.Product{}, false, l.err
	}
	p, ok := l.products[ref]
	return p, ok, nil
}

type brokenCache struct{}

func (brokenCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	return false, errors.New("connection refused")
}

func (brokenCache) Set(ctx context.Context, key string, v any) error {
	return errors.New("connection refused")
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCachedReadThrough(t *testing.T) {
	ctx := context.Background()
	next := &countingLookup{
		mandates: map[string]string{"10": "North"},
		products: map[string]catalog.Product{"P-1": {Ref: "P-1", CategoryName: "Health", CompanyName: "Acme"}},
	}
	lookup := catalog.NewCached(next, cache.NewMemory(), discardLogger())

	for range 3 {
		name, ok, err := lookup.Mandate(ctx, "10")
		if err != nil || !ok || name != "North" {
			t.Fatalf("Mandate = %q, %v, %v", name, ok, err)
		}
	}
	if next.calls != 1 {
		t.Errorf("underlying calls = %d, want 1", next.calls)
	}

	for range 2 {
		p, ok, err := lookup.Product(ctx, "P-1")
		if err != nil || !ok || p.CompanyName != "Acme" {
			t.Fatalf("Product = %+v, %v, %v", p, ok, err)
		}
	}
	if next.calls != 2 {
		t.Errorf("underlying calls = %d, want 2", next.calls)
	}
}

func TestCachedMissesAreCached(t *testing.T) {
	ctx := context.Background()
	next := &countingLookup{}
	lookup := catalog.NewCached(next, cache.NewMemory(), discardLogger())

	for range 2 {
		if _, ok, err := lookup.Category(ctx, "unknown"); ok || err != nil {
			t.Fatalf("Category = %v, %v; want miss", ok, err)
		}
	}
	if next.calls != 1 {
		t.Errorf("underlying calls = %d, want 1", next.calls)
	}
}

func TestCachedErrorsAreNotCached(t *testing.T) {
	ctx := context.Background()
	next := &countingLookup{err: errors.New("db down")}
	lookup := catalog.NewCached(next, cache.NewMemory(), discardLogger())

	for range 2 {
		if _, _, err := lookup.Mandate(ctx, "10"); err == nil {
			t.Fatal("Mandate succeeded, want error")
		}
	}
	if next.calls != 2 {
		t.Errorf("underlying calls = %d, want 2", next.calls)
	}
}

func TestCachedFallsThroughBrokenCache(t *testing.T) {
	ctx := context.Background()
	next := &countingLookup{mandates: map[string]string{"10": "North"}}
	lookup := catalog.NewCached(next, brokenCache{}, discardLogger())

	name, ok, err := lookup.Mandate(ctx, "10")
	if err != nil || !ok || name != "North" {
		t.Errorf("Mandate = %q, %v, %v", name, ok, err)
	}
}

func TestStatic(t *testing.T) {
	ctx := context.Background()
	lookup := catalog.Static{
		Mandates: map[string]string{"10": "North Mandate"},
		Products: map[string]catalog.Product{"P-1": {Ref: "P-1", CategoryName: "Health"}},
	}

	if name, ok, err := lookup.Mandate(ctx, "10"); err != nil || !ok || name != "North Mandate" {
		t.Errorf("Mandate(10) = %q, %v, %v", name, ok, err)
	}
	if _, ok, err := lookup.Category(ctx, "7"); err != nil || ok {
		t.Errorf("Category on nil map = %v, %v", ok, err)
	}
	if p, ok, _ := lookup.Product(ctx, "P-1"); !ok || p.CategoryName != "Health" {
		t.Errorf("Product(P-1) = %+v, %v", p, ok)
	}
}
