// Package bus delivers appended recognition events to asynchronous subscribers.
// Events of one recognition are delivered in publish order.
package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/JaimeStill/recognition/internal/events"
	"github.com/JaimeStill/recognition/pkg/lifecycle"
)

// ErrClosed is returned by Publish after the bus has shut down.
var ErrClosed = errors.New("bus closed")

// Handler consumes one event. A returned error triggers redelivery up to the
// configured attempt limit.
type Handler func(ctx context.Context, ev events.Event) error

// Bus publishes events and fans them out to subscribed handlers.
type Bus interface {
	Publish(ctx context.Context, ev events.Event) error
	// Subscribe registers h for every event. Subscriptions must happen before Start.
	Subscribe(h Handler)
	Start(lc *lifecycle.Coordinator) error
}

// New creates the bus selected by cfg.Kind.
func New(cfg *Config, logger *slog.Logger) (Bus, error) {
	switch cfg.Kind {
	case KindMemory:
		return NewMemory(cfg, logger), nil
	case KindKafka:
		return NewKafka(cfg, logger)
	}
	return nil, fmt.Errorf("unknown bus kind %q", cfg.Kind)
}

type retryPolicy struct {
	attempts int
	delay    time.Duration
}

// deliver runs every handler for ev, retrying each failing handler.
// It returns the last error of any handler that exhausted its attempts,
// or ctx.Err() when cancelled between attempts.
func deliver(ctx context.Context, handlers []Handler, ev events.Event, policy retryPolicy, logger *slog.Logger) error {
	var failed error

	for _, h := range handlers {
		var err error
		for attempt := 1; attempt <= policy.attempts; attempt++ {
			if err = h(ctx, ev); err == nil {
				break
			}

			logger.Warn("event handler failed",
				"event_id", ev.ID,
				"type", ev.Type,
				"attempt", attempt,
				"error", err,
			)

			if attempt == policy.attempts {
				break
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(policy.delay):
			}
		}

		if err != nil {
			logger.Error("event dropped after retries",
				"event_id", ev.ID,
				"recognition_id", ev.RecognitionID,
				"type", ev.Type,
				"error", err,
			)
			failed = err
		}
	}

	return failed
}
