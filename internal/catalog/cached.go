package catalog

import (
	"context"
	"log/slog"

	"github.com/JaimeStill/recognition/pkg/cache"
)

type entry[T any] struct {
	Found bool `json:"found"`
	Value T    `json:"value"`
}

type cached struct {
	next   Lookup
	cache  cache.Cache
	logger *slog.Logger
}

// NewCached wraps next with a read-through cache. Misses are cached too.
// Cache failures are logged and the lookup falls through to next.
func NewCached(next Lookup, c cache.Cache, logger *slog.Logger) Lookup {
	return &cached{
		next:   next,
		cache:  c,
		logger: logger.With("system", "catalog"),
	}
}

func (c *cached) Mandate(ctx context.Context, id string) (string, bool, error) {
	return readThrough(ctx, c, "mandate:"+id, func() (string, bool, error) {
		return c.next.Mandate(ctx, id)
	})
}

func (c *cached) Category(ctx context.Context, planID string) (string, bool, error) {
	return readThrough(ctx, c, "category:"+planID, func() (string, bool, error) {
		return c.next.Category(ctx, planID)
	})
}

func (c *cached) Product(ctx context.Context, ref string) (Product, bool, error) {
	return readThrough(ctx, c, "product:"+ref, func() (Product, bool, error) {
		return c.next.Product(ctx, ref)
	})
}

func readThrough[T any](ctx context.Context, c *cached, key string, load func() (T, bool, error)) (T, bool, error) {
	var e entry[T]
	hit, err := c.cache.Get(ctx, key, &e)
	if err != nil {
		c.logger.Warn("catalog cache read failed", "key", key, "error", err)
	}
	if hit && err == nil {
		return e.Value, e.Found, nil
	}

	value, found, err := load()
	if err != nil {
		return value, false, err
	}

	if err := c.cache.Set(ctx, key, entry[T]{Found: found, Value: value}); err != nil {
		c.logger.Warn("catalog cache write failed", "key", key, "error", err)
	}
	return value, found, nil
}
