package events

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ILLUVRSE/outfit-review/internal/canonical"
)

const defaultWriteTimeout = 10 * time.Second

// KafkaProducerConfig contains configurable parameters for the Kafka producer.
type KafkaProducerConfig struct {
	// Brokers is the list of Kafka broker addresses (host:port).
	Brokers []string

	// Topic receives every decision event.
	Topic string

	// MaxAttempts is how many times a write is retried on error.
	// Defaults to 3 if <= 0.
	MaxAttempts int

	// WriteTimeout is the per-attempt timeout. Defaults to 10s if zero.
	WriteTimeout time.Duration
}

// MessageWriter is the subset of *kafka.Writer the producer uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducer writes canonical JSON decision events keyed by combination
// fingerprint, so every event for one combination lands on one partition.
type KafkaProducer struct {
	writer       MessageWriter
	maxAttempts  int
	writeTimeout time.Duration
	backoff      time.Duration
}

// NewKafkaProducer constructs a KafkaProducer.
func NewKafkaProducer(cfg KafkaProducerConfig) (*KafkaProducer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: at least one broker required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: topic required")
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequireOne,
	}
	return NewKafkaProducerWithWriter(w, cfg.MaxAttempts, cfg.WriteTimeout), nil
}

// NewKafkaProducerWithWriter wraps an existing writer, mainly for tests.
// writeTimeout bounds each attempt; zero means 10s.
func NewKafkaProducerWithWriter(w MessageWriter, maxAttempts int, writeTimeout time.Duration) *KafkaProducer {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	return &KafkaProducer{
		writer:       w,
		maxAttempts:  maxAttempts,
		writeTimeout: writeTimeout,
		backoff:      100 * time.Millisecond,
	}
}

// Publish writes ev, retrying with exponential backoff.
func (p *KafkaProducer) Publish(ctx context.Context, ev DecisionEvent) error {
	value, err := canonical.MarshalCanonical(ev)
	if err != nil {
		return fmt.Errorf("canonicalize event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.Fingerprint),
		Value: value,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(ev.Type)},
			{Key: "event-id", Value: []byte(ev.ID)},
		},
	}

	var lastErr error
	backoff := p.backoff
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, p.writeTimeout)
		err := p.writer.WriteMessages(attemptCtx, msg)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt == p.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("produce cancelled after %d attempts: %w", attempt, lastErr)
		case <-time.After(backoff):
		}
		if backoff < 2*time.Second {
			backoff *= 2
		}
	}
	return fmt.Errorf("produce failed after %d attempts: %w", p.maxAttempts, lastErr)
}

// Close shuts down the underlying writer.
func (p *KafkaProducer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
