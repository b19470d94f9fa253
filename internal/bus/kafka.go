package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"

	"github.com/JaimeStill/recognition/internal/events"
	"github.com/JaimeStill/recognition/pkg/lifecycle"
)

// Kafka publishes events to a topic keyed by recognition id, so every event of
// a recognition lands on the same partition, and consumes them through a
// consumer group.
type Kafka struct {
	cfg      KafkaConfig
	sarama   *sarama.Config
	policy   retryPolicy
	logger   *slog.Logger
	handlers []Handler

	producer sarama.SyncProducer
	group    sarama.ConsumerGroup
	ready    atomic.Bool
	closed   atomic.Bool
	consumer sync.WaitGroup
}

// NewKafka prepares a Kafka bus. Broker connections are opened by Start.
func NewKafka(cfg *Config, logger *slog.Logger) (*Kafka, error) {
	version, err := sarama.ParseKafkaVersion(cfg.Kafka.Version)
	if err != nil {
		return nil, fmt.Errorf("parse kafka version: %w", err)
	}

	sc := sarama.NewConfig()
	sc.Version = version
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Return.Successes = true
	sc.Producer.Partitioner = sarama.NewHashPartitioner
	sc.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	sc.Consumer.Return.Errors = true

	return &Kafka{
		cfg:    cfg.Kafka,
		sarama: sc,
		policy: retryPolicy{attempts: cfg.MaxAttempts, delay: cfg.RetryDelayDuration()},
		logger: logger.With("system", "bus", "kind", KindKafka),
	}, nil
}

func (k *Kafka) Subscribe(h Handler) {
	k.handlers = append(k.handlers, h)
}

func (k *Kafka) Ready() bool {
	return k.ready.Load()
}

// Publish sends ev synchronously and returns once the broker acknowledged it.
func (k *Kafka) Publish(ctx context.Context, ev events.Event) error {
	if k.closed.Load() {
		return ErrClosed
	}
	if k.producer == nil {
		return fmt.Errorf("kafka producer not started")
	}

	msg, err := k.message(ctx, ev)
	if err != nil {
		return err
	}

	partition, offset, err := k.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("send event %s: %w", ev.ID, err)
	}

	k.logger.Debug("event published",
		"event_id", ev.ID,
		"partition", partition,
		"offset", offset,
	)
	return nil
}

func (k *Kafka) message(ctx context.Context, ev events.Event) (*sarama.ProducerMessage, error) {
	value, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", ev.ID, err)
	}

	headers := headerCarrier{{Key: []byte("event_type"), Value: []byte(ev.Type)}}
	otel.GetTextMapPropagator().Inject(ctx, &headers)

	return &sarama.ProducerMessage{
		Topic:   k.cfg.Topic,
		Key:     sarama.StringEncoder(ev.RecognitionID.String()),
		Value:   sarama.ByteEncoder(value),
		Headers: headers,
	}, nil
}

// Start connects the producer and consumer group and begins consuming.
func (k *Kafka) Start(lc *lifecycle.Coordinator) error {
	k.logger.Info("starting event bus", "brokers", k.cfg.Brokers, "topic", k.cfg.Topic)

	producer, err := sarama.NewSyncProducer(k.cfg.Brokers, k.sarama)
	if err != nil {
		return fmt.Errorf("create kafka producer: %w", err)
	}

	group, err := sarama.NewConsumerGroup(k.cfg.Brokers, k.cfg.GroupID, k.sarama)
	if err != nil {
		producer.Close()
		return fmt.Errorf("create kafka consumer group: %w", err)
	}

	k.attach(producer, group)
	lc.RegisterReadiness("bus", k)

	ctx := lc.Context()
	handler := &groupHandler{bus: k, ready: make(chan struct{})}

	k.consumer.Go(func() {
		k.consume(ctx, handler)
	})
	k.consumer.Go(func() {
		for err := range group.Errors() {
			k.logger.Error("kafka consumer error", "error", err)
		}
	})

	lc.OnStartup(func() {
		select {
		case <-handler.ready:
			k.ready.Store(true)
			k.logger.Info("kafka consumer joined", "group", k.cfg.GroupID)
		case <-ctx.Done():
		}
	})

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		k.closed.Store(true)
		k.ready.Store(false)

		if err := k.group.Close(); err != nil {
			k.logger.Error("kafka consumer close failed", "error", err)
		}
		k.consumer.Wait()
		if err := k.producer.Close(); err != nil {
			k.logger.Error("kafka producer close failed", "error", err)
		}
		k.logger.Info("event bus stopped")
	})

	return nil
}

func (k *Kafka) attach(producer sarama.SyncProducer, group sarama.ConsumerGroup) {
	k.producer = producer
	k.group = group
}

func (k *Kafka) consume(ctx context.Context, handler *groupHandler) {
	topics := []string{k.cfg.Topic}
	for {
		if err := k.group.Consume(ctx, topics, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return
			}
			k.logger.Error("kafka consume failed", "error", err)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// handle decodes and delivers one message. It reports whether the message
// should be marked as consumed.
func (k *Kafka) handle(ctx context.Context, msg *sarama.ConsumerMessage) bool {
	var ev events.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		k.logger.Error("undecodable event skipped",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
		return true
	}

	headers := headerCarrier(derefHeaders(msg.Headers))
	ctx = otel.GetTextMapPropagator().Extract(ctx, &headers)

	if err := deliver(ctx, k.handlers, ev, k.policy, k.logger); err != nil && ctx.Err() != nil {
		return false
	}
	return true
}

type groupHandler struct {
	bus   *Kafka
	ready chan struct{}
	once  sync.Once
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error {
	h.once.Do(func() { close(h.ready) })
	return nil
}

func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim marks a message only once delivery finished. A session that
// ends mid-delivery leaves the message for redelivery.
func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok || msg == nil {
				return nil
			}
			if h.bus.handle(session.Context(), msg) {
				session.MarkMessage(msg, "")
			}
		case <-session.Context().Done():
			return nil
		}
	}
}

// headerCarrier adapts Kafka record headers to an OpenTelemetry TextMapCarrier.
type headerCarrier []sarama.RecordHeader

func (c *headerCarrier) Get(key string) string {
	for _, h := range *c {
		if string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *headerCarrier) Set(key, value string) {
	for i, h := range *c {
		if string(h.Key) == key {
			(*c)[i].Value = []byte(value)
			return
		}
	}
	*c = append(*c, sarama.RecordHeader{Key: []byte(key), Value: []byte(value)})
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, len(*c))
	for i, h := range *c {
		keys[i] = string(h.Key)
	}
	return keys
}

func derefHeaders(headers []*sarama.RecordHeader) []sarama.RecordHeader {
	out := make([]sarama.RecordHeader, 0, len(headers))
	for _, h := range headers {
		if h != nil {
			out = append(out, *h)
		}
	}
	return out
}
