package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/V4T54L/statusboard/internal/domain"
)

// CallLog records the order in which store and publisher calls happen.
type CallLog struct {
	mu    sync.Mutex
	Calls []string
}

func (l *CallLog) add(call string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Calls = append(l.Calls, call)
}

// Snapshot returns a copy of the recorded calls.
func (l *CallLog) Snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.Calls...)
}

// MockEventStore is an in-memory domain.EventStore for tests.
type MockEventStore struct {
	mu        sync.Mutex
	Events    []domain.Event // insertion order, oldest first
	AppendErr error
	RecentErr error
	Log       *CallLog
	seq       int
}

func (m *MockEventStore) Append(ctx context.Context, event domain.Event) (domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Log.add("append:" + event.JobID)
	if m.AppendErr != nil {
		return domain.Event{}, fmt.Errorf("%w: %v", domain.ErrPersist, m.AppendErr)
	}
	m.seq++
	event.ID = fmt.Sprintf("evt-%d", m.seq)
	event.ReceivedAt = time.Now().UTC()
	m.Events = append(m.Events, event)
	return event, nil
}

func (m *MockEventStore) Recent(ctx context.Context, limit int) ([]domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RecentErr != nil {
		return nil, m.RecentErr
	}
	out := make([]domain.Event, 0, limit)
	for i := len(m.Events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.Events[i])
	}
	return out, nil
}

func (m *MockEventStore) Close() error { return nil }

// MockPublisher records published events.
type MockPublisher struct {
	commitMu  sync.Mutex
	mu        sync.Mutex
	Published []domain.Event
	Log       *CallLog
}

// Commit serializes persist and Publish like the broadcast hub does.
func (m *MockPublisher) Commit(persist func() (domain.Event, error)) (domain.Event, error) {
	m.commitMu.Lock()
	defer m.commitMu.Unlock()
	event, err := persist()
	if err != nil {
		return domain.Event{}, err
	}
	m.Publish(event)
	return event, nil
}

func (m *MockPublisher) Publish(event domain.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Log.add("publish:" + event.JobID)
	m.Published = append(m.Published, event)
}

// Count returns the number of published events.
func (m *MockPublisher) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Published)
}
