package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"furniture-store/internal/model"
)

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Topics names the topics the publisher writes to.
type Topics struct {
	OrderPlaced  string
	Unreconciled string
}

// KafkaPublisher implements Publisher on top of a kafka-go writer.
type KafkaPublisher struct {
	writer MessageWriter
	topics Topics
	logger zerolog.Logger
}

// NewKafkaWriter creates a writer that routes each message by its own Topic field.
func NewKafkaWriter(brokers ...string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

// NewKafkaPublisher creates a publisher.
func NewKafkaPublisher(writer MessageWriter, topics Topics, logger zerolog.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: writer,
		topics: topics,
		logger: logger.With().Str("component", "event_publisher").Logger(),
	}
}

// PublishOrderPlaced writes ev keyed by customer so a customer's orders stay in order.
func (p *KafkaPublisher) PublishOrderPlaced(ctx context.Context, ev OrderPlaced) error {
	return p.publish(ctx, p.topics.OrderPlaced, ev.CustomerID, ev)
}

// PublishUnreconciled writes the record keyed by payment reference.
func (p *KafkaPublisher) PublishUnreconciled(ctx context.Context, up model.UnreconciledPayment) error {
	return p.publish(ctx, p.topics.Unreconciled, up.PaymentReference, up)
}

func (p *KafkaPublisher) publish(ctx context.Context, topic, key string, payload any) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", topic, err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	})
	if err != nil {
		p.logger.Error().Err(err).Str("topic", topic).Str("key", key).Msg("failed to publish event")
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.Debug().Str("topic", topic).Str("key", key).Msg("event published")
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
