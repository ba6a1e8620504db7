package domain

import "context"

// EventStore is the durable, append-only log of events.
type EventStore interface {
	// Append persists a single event and returns the stored copy, with ID and
	// ReceivedAt populated. Failures wrap ErrPersist.
	Append(ctx context.Context, event Event) (Event, error)

	// Recent returns at most limit events ordered by insertion time, newest first.
	Recent(ctx context.Context, limit int) ([]Event, error)

	// Close releases the underlying resources.
	Close() error
}

// Publisher fans a persisted event out to live observers.
type Publisher interface {
	// Commit runs persist and publishes the stored event only if it
	// succeeds. Commits are serialized, so publish order is persistence order.
	Commit(persist func() (Event, error)) (Event, error)
}
