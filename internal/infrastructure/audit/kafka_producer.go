// Package audit publishes block events to monitoring consumers.
package audit

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/renewguard/internal/config"
	"github.com/turtacn/renewguard/internal/domain/models"
	"github.com/turtacn/renewguard/internal/domain/service"
	"github.com/turtacn/renewguard/pkg/logger"
)

var _ service.BlockEventPublisher = (*KafkaProducer)(nil)

// messageWriter is the subset of *kafka.Writer the producer needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducer is a Kafka-backed BlockEventPublisher. Messages are keyed by
// the block key so events for one key stay ordered within a partition.
type KafkaProducer struct {
	writer messageWriter
	logger logger.Logger
}

// NewKafkaProducer creates a new KafkaProducer.
func NewKafkaProducer(cfg config.KafkaConfig, log logger.Logger) *KafkaProducer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
	}
	return newKafkaProducer(writer, log)
}

func newKafkaProducer(w messageWriter, log logger.Logger) *KafkaProducer {
	return &KafkaProducer{
		writer: w,
		logger: log.WithComponent("KafkaProducer"),
	}
}

// Publish sends a block event to the Kafka topic.
func (p *KafkaProducer) Publish(ctx context.Context, event models.BlockEvent) error {
	bytes, err := json.Marshal(event)
	if err != nil {
		p.logger.Error(ctx, "failed to marshal block event", err)
		return err
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Key),
		Value: bytes,
		Time:  event.OccurredAt,
	})
	if err != nil {
		p.logger.Error(ctx, "failed to write message to Kafka", err, logger.Fields{
			"limit_type": event.LimitType,
		})
	}
	return err
}

// Close closes the underlying Kafka writer.
func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

// NoopPublisher drops every event. It is used when Kafka is disabled.
type NoopPublisher struct{}

// NewNoopPublisher creates a publisher that discards events.
func NewNoopPublisher() *NoopPublisher {
	return &NoopPublisher{}
}

// Publish implements service.BlockEventPublisher.
func (NoopPublisher) Publish(context.Context, models.BlockEvent) error { return nil }

// Close implements service.BlockEventPublisher.
func (NoopPublisher) Close() error { return nil }

// NewPublisher returns a Kafka producer when enabled, otherwise a no-op publisher.
func NewPublisher(cfg config.KafkaConfig, log logger.Logger) service.BlockEventPublisher {
	if !cfg.Enabled {
		return NewNoopPublisher()
	}
	log.Info(context.Background(), "Publishing block events to Kafka", logger.Fields{
		"brokers": cfg.Brokers,
		"topic":   cfg.Topic,
	})
	return NewKafkaProducer(cfg, log)
}

//Personal.AI order the ending
