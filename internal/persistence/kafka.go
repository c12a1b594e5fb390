package persistence

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/spec-kit/support-tickets/internal/config"
)

// KafkaProducer wraps a kafka-go writer. When disabled every write is a no-op.
type KafkaProducer struct {
	writer  *kafka.Writer
	logger  *zap.Logger
	enabled bool
}

// NewKafkaProducer creates a producer for the configured brokers.
func NewKafkaProducer(cfg config.KafkaConfig, logger *zap.Logger) *KafkaProducer {
	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		logger.Info("kafka producer disabled")
		return &KafkaProducer{logger: logger}
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}

	logger.Info("kafka producer initialized", zap.Strings("brokers", cfg.Brokers))
	return &KafkaProducer{writer: w, logger: logger, enabled: true}
}

// Enabled reports whether writes reach a broker.
func (p *KafkaProducer) Enabled() bool {
	return p != nil && p.enabled
}

// Publish sends one message. Messages with the same key land on the same
// partition, so per-ticket order is kept.
func (p *KafkaProducer) Publish(ctx context.Context, topic string, key, value []byte) error {
	if !p.Enabled() {
		return nil
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   key,
		Value: value,
	})
}

// Close shuts down the writer.
func (p *KafkaProducer) Close() error {
	if p != nil && p.writer != nil {
		return p.writer.Close()
	}
	return nil
}
