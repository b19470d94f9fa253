package bus

import (
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/JaimeStill/recognition/pkg/envutil"
)

// Bus kinds.
const (
	KindMemory = "memory"
	KindKafka  = "kafka"
)

// Config selects and tunes the event bus implementation.
type Config struct {
	Kind        string      `toml:"kind"`
	Shards      int         `toml:"shards"`
	Buffer      int         `toml:"buffer"`
	MaxAttempts int         `toml:"max_attempts"`
	RetryDelay  string      `toml:"retry_delay"`
	Kafka       KafkaConfig `toml:"kafka"`
}

// KafkaConfig holds broker connection and topic settings.
type KafkaConfig struct {
	Brokers []string `toml:"brokers"`
	Topic   string   `toml:"topic"`
	GroupID string   `toml:"group_id"`
	Version string   `toml:"version"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	Kind        string
	Shards      string
	Buffer      string
	MaxAttempts string
	RetryDelay  string
	Brokers     string
	Topic       string
	GroupID     string
	Version     string
}

// RetryDelayDuration returns RetryDelay as a time.Duration.
func (c *Config) RetryDelayDuration() time.Duration {
	d, _ := time.ParseDuration(c.RetryDelay)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.Kind != "" {
		c.Kind = overlay.Kind
	}
	if overlay.Shards != 0 {
		c.Shards = overlay.Shards
	}
	if overlay.Buffer != 0 {
		c.Buffer = overlay.Buffer
	}
	if overlay.MaxAttempts != 0 {
		c.MaxAttempts = overlay.MaxAttempts
	}
	if overlay.RetryDelay != "" {
		c.RetryDelay = overlay.RetryDelay
	}
	if len(overlay.Kafka.Brokers) > 0 {
		c.Kafka.Brokers = overlay.Kafka.Brokers
	}
	if overlay.Kafka.Topic != "" {
		c.Kafka.Topic = overlay.Kafka.Topic
	}
	if overlay.Kafka.GroupID != "" {
		c.Kafka.GroupID = overlay.Kafka.GroupID
	}
	if overlay.Kafka.Version != "" {
		c.Kafka.Version = overlay.Kafka.Version
	}
}

func (c *Config) loadDefaults() {
	if c.Kind == "" {
		c.Kind = KindMemory
	}
	if c.Shards == 0 {
		c.Shards = 8
	}
	if c.Buffer == 0 {
		c.Buffer = 256
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.RetryDelay == "" {
		c.RetryDelay = "200ms"
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "recognition-events"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "recognition-projections"
	}
	if c.Kafka.Version == "" {
		c.Kafka.Version = "3.6.0"
	}
}

func (c *Config) loadEnv(env *Env) {
	envutil.String(env.Kind, &c.Kind)
	envutil.Int(env.Shards, &c.Shards)
	envutil.Int(env.Buffer, &c.Buffer)
	envutil.Int(env.MaxAttempts, &c.MaxAttempts)
	envutil.String(env.RetryDelay, &c.RetryDelay)
	envutil.List(env.Brokers, &c.Kafka.Brokers)
	envutil.String(env.Topic, &c.Kafka.Topic)
	envutil.String(env.GroupID, &c.Kafka.GroupID)
	envutil.String(env.Version, &c.Kafka.Version)
}

func (c *Config) validate() error {
	if c.Shards < 1 {
		return fmt.Errorf("shards must be positive")
	}
	if c.Buffer < 0 {
		return fmt.Errorf("buffer must not be negative")
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be positive")
	}
	if _, err := time.ParseDuration(c.RetryDelay); err != nil {
		return fmt.Errorf("invalid retry_delay: %w", err)
	}

	switch c.Kind {
	case KindMemory:
		return nil
	case KindKafka:
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka brokers required")
		}
		if c.Kafka.Topic == "" {
			return fmt.Errorf("kafka topic required")
		}
		if c.Kafka.GroupID == "" {
			return fmt.Errorf("kafka group_id required")
		}
		if _, err := sarama.ParseKafkaVersion(c.Kafka.Version); err != nil {
			return fmt.Errorf("invalid kafka version: %w", err)
		}
		return nil
	}
	return fmt.Errorf("unknown bus kind %q", c.Kind)
}
