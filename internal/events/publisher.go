// Package events publishes run and item lifecycle events to Kafka for
// dashboard consumers.
//
// Event publishing is best effort: a failed write is logged and dropped,
// never surfaced to the pipeline. The Item Store remains the source of truth;
// the stream only exists so dashboards can react without polling.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/scholarwatch/paper-pipeline-service/internal/domain"
)

// Publisher emits lifecycle events.
type Publisher interface {
	// Publish emits one event. Implementations must not block the caller
	// beyond their configured batch timeout.
	Publish(ctx context.Context, event domain.Event)

	// Close flushes and releases the underlying producer.
	Close() error
}

// Config holds Kafka producer settings.
type Config struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string
	// Topic is the topic lifecycle events are written to.
	Topic string
	// BatchSize is the producer batch size.
	BatchSize int
	// BatchTimeout is the producer batch flush interval.
	BatchTimeout time.Duration
}

// KafkaPublisher writes lifecycle events to a Kafka topic, keyed by run ID
// so per-run ordering is preserved within a partition.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger zerolog.Logger
}

// Ensure implementations satisfy the interface.
var (
	_ Publisher = (*KafkaPublisher)(nil)
	_ Publisher = (*NopPublisher)(nil)
)

// NewKafkaPublisher creates a Kafka-backed event publisher.
func NewKafkaPublisher(cfg Config, logger zerolog.Logger) *KafkaPublisher {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = time.Second
	}

	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      cfg.Brokers,
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    batchSize,
		BatchTimeout: batchTimeout,
	})

	return &KafkaPublisher{
		writer: writer,
		logger: logger.With().Str("component", "event_publisher").Logger(),
	}
}

// Publish writes the event, logging and dropping it on failure.
func (p *KafkaPublisher) Publish(ctx context.Context, event domain.Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	value, err := json.Marshal(event)
	if err != nil {
		p.logger.Error().Err(err).Str("type", string(event.Type)).Msg("failed to marshal lifecycle event")
		return
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.RunID),
		Value: value,
	})
	if err != nil {
		p.logger.Error().Err(err).
			Str("type", string(event.Type)).
			Str("run_id", event.RunID).
			Msg("failed to publish lifecycle event")
	}
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher drops all events. Used when event publishing is disabled.
type NopPublisher struct{}

// NewNopPublisher creates a publisher that drops everything.
func NewNopPublisher() *NopPublisher {
	return &NopPublisher{}
}

// Publish drops the event.
func (*NopPublisher) Publish(context.Context, domain.Event) {}

// Close is a no-op.
func (*NopPublisher) Close() error { return nil }
