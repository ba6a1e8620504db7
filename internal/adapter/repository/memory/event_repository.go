// Package memory provides a process-local EventStore. Events do not survive a
// restart; it backs tests and throwaway demo servers.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/V4T54L/statusboard/internal/domain"
)

// EventRepository keeps events in insertion order.
type EventRepository struct {
	mu     sync.RWMutex
	events []domain.Event
	limit  int
	now    func() time.Time
}

// NewEventRepository creates an empty repository. A positive limit bounds how
// many events are retained; older ones are discarded first.
func NewEventRepository(limit int) *EventRepository {
	return &EventRepository{limit: limit, now: time.Now}
}

func (r *EventRepository) Append(ctx context.Context, event domain.Event) (domain.Event, error) {
	if err := ctx.Err(); err != nil {
		return domain.Event{}, err
	}
	event.ID = uuid.NewString()
	event.ReceivedAt = r.now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	if r.limit > 0 && len(r.events) > r.limit {
		r.events = append([]domain.Event(nil), r.events[len(r.events)-r.limit:]...)
	}
	return event, nil
}

// Recent returns up to limit events, newest first.
func (r *EventRepository) Recent(ctx context.Context, limit int) ([]domain.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := min(limit, len(r.events))
	out := make([]domain.Event, 0, max(n, 0))
	for i := len(r.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.events[i])
	}
	return out, nil
}

func (r *EventRepository) Close() error { return nil }
