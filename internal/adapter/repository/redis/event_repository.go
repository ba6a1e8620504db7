// Package redis implements domain.EventStore on a capped Redis Stream.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/statusboard/internal/domain"
)

const payloadField = "payload"

// EventRepository appends events to a stream trimmed to roughly maxLen
// entries. Stream order is insertion order, so Recent is a reverse range.
type EventRepository struct {
	client      *redis.Client
	stream      string
	maxLen      int64
	logger      *slog.Logger
	now         func() time.Time
	isAvailable atomic.Bool
}

// NewEventRepository creates a stream-backed repository. A non-positive
// maxLen disables trimming.
func NewEventRepository(client *redis.Client, stream string, maxLen int64, logger *slog.Logger) *EventRepository {
	repo := &EventRepository{
		client: client,
		stream: stream,
		maxLen: maxLen,
		logger: logger.With("component", "redis_repository", "stream", stream),
		now:    time.Now,
	}
	repo.isAvailable.Store(true)
	return repo
}

func (r *EventRepository) Append(ctx context.Context, event domain.Event) (domain.Event, error) {
	event.ID = uuid.NewString()
	event.ReceivedAt = r.now().UTC()

	payload, err := json.Marshal(event)
	if err != nil {
		return domain.Event{}, fmt.Errorf("%w: failed to marshal event: %v", domain.ErrPersist, err)
	}

	args := &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]interface{}{payloadField: payload},
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}

	if err := r.client.XAdd(ctx, args).Err(); err != nil {
		r.markUnavailable(err)
		return domain.Event{}, fmt.Errorf("%w: failed to XADD to redis stream: %v", domain.ErrPersist, err)
	}
	r.markAvailable()
	return event, nil
}

// Recent returns up to limit events, newest first. Entries that cannot be
// decoded are skipped.
func (r *EventRepository) Recent(ctx context.Context, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		return nil, nil
	}
	messages, err := r.client.XRevRangeN(ctx, r.stream, "+", "-", int64(limit)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		r.markUnavailable(err)
		return nil, fmt.Errorf("%w: failed to XREVRANGE redis stream: %v", domain.ErrPersist, err)
	}

	events := make([]domain.Event, 0, len(messages))
	for _, msg := range messages {
		payload, ok := msg.Values[payloadField].(string)
		if !ok {
			r.logger.Warn("Invalid message format in stream, skipping", "message_id", msg.ID)
			continue
		}
		var event domain.Event
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			r.logger.Warn("Failed to unmarshal event from stream, skipping", "message_id", msg.ID, "error", err)
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

// Ping reports whether Redis answers.
func (r *EventRepository) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		r.markUnavailable(err)
		return err
	}
	r.markAvailable()
	return nil
}

// StartHealthCheck pings Redis every interval until ctx is done, so that
// Available recovers without waiting for the next append.
func (r *EventRepository) StartHealthCheck(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Stopping Redis health check")
			return
		case <-ticker.C:
			_ = r.Ping(ctx)
		}
	}
}

// Available reports the connectivity seen by the latest command.
func (r *EventRepository) Available() bool {
	return r.isAvailable.Load()
}

func (r *EventRepository) Close() error {
	return r.client.Close()
}

func (r *EventRepository) markUnavailable(err error) {
	if isNetworkError(err) && r.isAvailable.CompareAndSwap(true, false) {
		r.logger.Error("Redis connection lost", "error", err)
	}
}

func (r *EventRepository) markAvailable() {
	if r.isAvailable.CompareAndSwap(false, true) {
		r.logger.Info("Redis connection recovered")
	}
}

func isNetworkError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, redis.ErrClosed)
}
