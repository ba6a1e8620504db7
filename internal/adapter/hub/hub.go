// Package hub fans persisted events out to registered observer connections.
package hub

import (
	"log/slog"
	"sync"

	"github.com/V4T54L/statusboard/internal/adapter/metrics"
	"github.com/V4T54L/statusboard/internal/domain"
)

// Subscriber is one observer's outbound queue. The hub only ever enqueues;
// the owning session drains C and performs the actual I/O.
type Subscriber struct {
	id   string
	ch   chan domain.Event
	done chan struct{}
	once sync.Once
}

// NewSubscriber creates a subscriber with a queue of the given capacity.
func NewSubscriber(id string, queueSize int) *Subscriber {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Subscriber{
		id:   id,
		ch:   make(chan domain.Event, queueSize),
		done: make(chan struct{}),
	}
}

func (s *Subscriber) ID() string { return s.id }

// C delivers events in publish order.
func (s *Subscriber) C() <-chan domain.Event { return s.ch }

// Done is closed once the subscriber has been unregistered, either by its
// owner or because the hub evicted it.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

func (s *Subscriber) close() {
	s.once.Do(func() { close(s.done) })
}

// Hub holds the set of live subscribers and orders commits against joins.
//
// commitMu is held exclusively by each Commit and shared by each Join, so a
// joining subscriber's snapshot is taken between two commits: every event is
// either in it or later delivered on the queue, never both.
type Hub struct {
	commitMu sync.RWMutex

	mu      sync.Mutex
	subs    map[*Subscriber]struct{}
	logger  *slog.Logger
	metrics *metrics.FeedMetrics
}

// New creates an empty hub. Metrics are optional.
func New(logger *slog.Logger, m *metrics.FeedMetrics) *Hub {
	return &Hub{
		subs:    make(map[*Subscriber]struct{}),
		logger:  logger.With("component", "broadcast_hub"),
		metrics: m,
	}
}

// Register adds the subscriber. It reports false, and does nothing, when the
// subscriber is already registered or has been closed.
func (h *Hub) Register(s *Subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s]; ok {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
	}
	h.subs[s] = struct{}{}
	h.updateGauge()
	h.logger.Debug("observer registered", "subscriber_id", s.id, "observers", len(h.subs))
	return true
}

// Unregister removes the subscriber and closes its Done channel. It is safe
// to call more than once.
func (h *Hub) Unregister(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(s)
}

// Commit runs persist and, if it succeeds, publishes the stored event before
// releasing the commit lock. Publish order is therefore persistence order.
func (h *Hub) Commit(persist func() (domain.Event, error)) (domain.Event, error) {
	h.commitMu.Lock()
	defer h.commitMu.Unlock()

	event, err := persist()
	if err != nil {
		return domain.Event{}, err
	}
	h.Publish(event)
	return event, nil
}

// Join registers s and runs snapshot while no commit is in progress. It
// reports false, without calling snapshot, when s cannot be registered.
// snapshot must not commit through this hub.
func (h *Hub) Join(s *Subscriber, snapshot func() error) (bool, error) {
	h.commitMu.RLock()
	defer h.commitMu.RUnlock()

	if !h.Register(s) {
		return false, nil
	}
	return true, snapshot()
}

// Publish enqueues the event for every registered subscriber. A subscriber
// whose queue is full is evicted instead of blocking the others; it still
// sees every event published before the eviction, in order.
func (h *Hub) Publish(event domain.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		select {
		case s.ch <- event:
		default:
			h.logger.Warn("observer queue full, evicting", "subscriber_id", s.id, "event_id", event.ID)
			if h.metrics != nil {
				h.metrics.BroadcastEvictions.Inc()
			}
			h.remove(s)
		}
	}
}

// Len returns the number of registered subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) remove(s *Subscriber) {
	if _, ok := h.subs[s]; !ok {
		s.close()
		return
	}
	delete(h.subs, s)
	s.close()
	h.updateGauge()
	h.logger.Debug("observer unregistered", "subscriber_id", s.id, "observers", len(h.subs))
}

func (h *Hub) updateGauge() {
	if h.metrics != nil {
		h.metrics.ObserversConnected.Set(float64(len(h.subs)))
	}
}
