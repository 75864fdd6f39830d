package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"furniture-store/internal/model"
)

// MessageReader is the part of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// StatusUpdater applies fulfillment changes to orders.
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, update model.StatusUpdate) error
}

const (
	maxApplyAttempts = 3
	retryBackoff     = 500 * time.Millisecond
)

// FulfillmentConsumer reads order.fulfillment messages and applies them.
type FulfillmentConsumer struct {
	reader  MessageReader
	updater StatusUpdater
	backoff time.Duration
	logger  zerolog.Logger
}

// NewKafkaReader creates a consumer-group reader for topic.
func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: 10e6,
	})
}

// NewFulfillmentConsumer creates a consumer.
func NewFulfillmentConsumer(reader MessageReader, updater StatusUpdater, logger zerolog.Logger) *FulfillmentConsumer {
	return &FulfillmentConsumer{
		reader:  reader,
		updater: updater,
		backoff: retryBackoff,
		logger:  logger.With().Str("component", "fulfillment_consumer").Logger(),
	}
}

// Run processes messages until ctx is cancelled. Every message is committed once handled,
// including ones that could not be applied.
func (c *FulfillmentConsumer) Run(ctx context.Context) error {
	c.logger.Info().Msg("fulfillment consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info().Msg("fulfillment consumer stopped")
				return nil
			}
			return fmt.Errorf("fetch fulfillment message: %w", err)
		}

		c.handle(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error().Err(err).Int64("offset", msg.Offset).Msg("failed to commit fulfillment message")
		}
	}
}

func (c *FulfillmentConsumer) handle(ctx context.Context, msg kafka.Message) {
	var update model.StatusUpdate
	if err := json.Unmarshal(msg.Value, &update); err != nil {
		c.logger.Warn().Err(err).Int64("offset", msg.Offset).Msg("skipping malformed fulfillment message")
		return
	}

	for attempt := 1; attempt <= maxApplyAttempts; attempt++ {
		err := c.updater.UpdateStatus(ctx, update)
		if err == nil {
			return
		}

		if errors.Is(err, model.ErrInvalidTransition) || errors.Is(err, model.ErrOrderNotFound) {
			c.logger.Warn().Err(err).Str("order_id", update.OrderID.String()).Msg("skipping fulfillment update")
			return
		}

		c.logger.Error().
			Err(err).
			Str("order_id", update.OrderID.String()).
			Int("attempt", attempt).
			Msg("failed to apply fulfillment update")

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.backoff):
		}
	}
}

// Close closes the underlying reader.
func (c *FulfillmentConsumer) Close() error {
	return c.reader.Close()
}
