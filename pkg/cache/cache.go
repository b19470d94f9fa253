// Package cache provides a JSON value cache backed by Redis, plus an in-memory
// implementation for tests and single-process runs.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JaimeStill/recognition/pkg/lifecycle"
)

// Cache stores JSON-encoded values under string keys.
type Cache interface {
	// Get decodes the value stored at key into dst and reports whether it was found.
	Get(ctx context.Context, key string, dst any) (bool, error)
	// Set stores v at key with the configured expiry.
	Set(ctx context.Context, key string, v any) error
}

// System is a Redis-backed Cache with lifecycle coordination.
type System interface {
	Cache
	Ready() bool
	Start(lc *lifecycle.Coordinator) error
}

type redisCache struct {
	client      *redis.Client
	prefix      string
	ttl         time.Duration
	dialTimeout time.Duration
	logger      *slog.Logger
	ready       atomic.Bool
}

// New creates a Redis cache from the given configuration.
// No connection is made until Start is called.
func New(cfg *Config, logger *slog.Logger) System {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeoutDuration(),
	})

	return &redisCache{
		client:      client,
		prefix:      cfg.Prefix,
		ttl:         cfg.TTLDuration(),
		dialTimeout: cfg.DialTimeoutDuration(),
		logger:      logger.With("system", "cache"),
	}
}

func (c *redisCache) Ready() bool {
	return c.ready.Load()
}

func (c *redisCache) Start(lc *lifecycle.Coordinator) error {
	c.logger.Info("starting cache")
	lc.RegisterReadiness("cache", c)

	lc.OnStartup(func() {
		ctx, cancel := context.WithTimeout(lc.Context(), c.dialTimeout)
		defer cancel()

		if err := c.client.Ping(ctx).Err(); err != nil {
			c.logger.Error("cache ping failed", "error", err)
			return
		}

		c.ready.Store(true)
		c.logger.Info("cache connection established")
	})

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		c.ready.Store(false)
		if err := c.client.Close(); err != nil {
			c.logger.Error("cache close failed", "error", err)
			return
		}
		c.logger.Info("cache connection closed")
	})

	return nil
}

func (c *redisCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("cache get %s: %w", key, err)
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("cache decode %s: %w", key, err)
	}
	return true, nil
}

func (c *redisCache) Set(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}

	if err := c.client.Set(ctx, c.key(key), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

func (c *redisCache) key(k string) string {
	return c.prefix + ":" + k
}
