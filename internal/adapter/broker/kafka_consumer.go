// Package broker feeds producer events that arrive over Kafka into the
// ingestion use case.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/V4T54L/statusboard/internal/domain"
)

// MessageReader is the subset of *kafka.Reader the consumer needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Submitter is the ingestion use case.
type Submitter interface {
	Submit(ctx context.Context, raw json.RawMessage) (domain.Event, error)
}

// NewReader creates a consumer-group reader for topic.
func NewReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  time.Second,
	})
}

// Consumer acts as a producer-side caller of Submit. Offsets are committed
// only once a message is stored or known to be malformed; a persistence
// failure is retried until it succeeds or the consumer stops.
type Consumer struct {
	reader     MessageReader
	submitter  Submitter
	logger     *slog.Logger
	retryDelay time.Duration
}

// NewConsumer creates a Consumer.
func NewConsumer(reader MessageReader, submitter Submitter, logger *slog.Logger) *Consumer {
	return &Consumer{
		reader:     reader,
		submitter:  submitter,
		logger:     logger.With("component", "kafka_consumer"),
		retryDelay: 3 * time.Second,
	}
}

// Run consumes until ctx is cancelled. It returns nil on cancellation.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("Starting kafka consumer")
	defer c.logger.Info("Kafka consumer stopped")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%w: kafka fetch: %v", domain.ErrTransport, err)
		}

		if err := c.handle(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%w: kafka commit: %v", domain.ErrTransport, err)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	for {
		_, err := c.submitter.Submit(ctx, msg.Value)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, domain.ErrMalformed):
			c.logger.Warn("Dropping malformed kafka message", "error", err, "partition", msg.Partition, "offset", msg.Offset)
			return nil
		}

		c.logger.Error("Failed to submit kafka message, retrying", "error", err, "partition", msg.Partition, "offset", msg.Offset)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.retryDelay):
		}
	}
}

// Close closes the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
