package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/V4T54L/statusboard/internal/adapter/hub"
	"github.com/V4T54L/statusboard/internal/adapter/metrics"
	"github.com/V4T54L/statusboard/internal/domain"
)

const (
	writeTimeout = 10 * time.Second
	maxFrameSize = 64 * 1024
)

// SessionState is the lifecycle stage of one observer connection.
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateSnapshotSent
	StateLive
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateSnapshotSent:
		return "snapshot_sent"
	case StateLive:
		return "live"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// SnapshotSource serves the bounded recency query used for snapshots.
type SnapshotSource interface {
	Recent(ctx context.Context, limit int) ([]domain.Event, error)
}

// StatsProvider answers analytics requests.
type StatsProvider interface {
	PerformanceStats() (map[string]float64, error)
}

// SessionOptions tunes a session.
type SessionOptions struct {
	SnapshotSize int
	QueueSize    int
	PingInterval time.Duration
	PongWait     time.Duration
}

func (o SessionOptions) withDefaults() SessionOptions {
	if o.SnapshotSize <= 0 {
		o.SnapshotSize = 100
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.PongWait <= o.PingInterval {
		o.PongWait = 2 * o.PingInterval
	}
	return o
}

// Session streams the log to one observer: a single snapshot frame, then one
// frame per published event. All writes happen on the goroutine running Run,
// so analytics responses never interleave with event frames.
type Session struct {
	id      string
	conn    *websocket.Conn
	hub     *hub.Hub
	store   SnapshotSource
	stats   StatsProvider
	opts    SessionOptions
	sub     *hub.Subscriber
	metrics *metrics.FeedMetrics
	logger  *slog.Logger

	state    atomic.Int32
	requests chan struct{}
}

// NewSession wraps an upgraded connection. Stats and metrics are optional.
func NewSession(id string, conn *websocket.Conn, h *hub.Hub, store SnapshotSource, stats StatsProvider, m *metrics.FeedMetrics, opts SessionOptions, logger *slog.Logger) *Session {
	opts = opts.withDefaults()
	return &Session{
		id:       id,
		conn:     conn,
		hub:      h,
		store:    store,
		stats:    stats,
		opts:     opts,
		sub:      hub.NewSubscriber(id, opts.QueueSize),
		metrics:  m,
		logger:   logger.With("component", "session", "session_id", id),
		requests: make(chan struct{}, 1),
	}
}

// State returns the current lifecycle stage.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// Run performs the join and then forwards events until the connection
// closes, ctx is cancelled or the hub evicts the session. The connection is
// closed and the subscriber unregistered before Run returns.
func (s *Session) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	defer func() {
		s.state.Store(int32(StateClosed))
		s.hub.Unregister(s.sub)
		s.conn.Close()
		wg.Wait()
		s.logger.Info("observer disconnected")
	}()

	if err := s.join(ctx); err != nil {
		return err
	}

	readDone := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		readDone <- s.readLoop()
	}()

	ping := time.NewTicker(s.opts.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			s.closeFrame(websocket.CloseGoingAway, "server shutting down")
			return ctx.Err()
		case err := <-readDone:
			return err
		case <-s.sub.Done():
			s.logger.Warn("observer evicted by broadcast hub")
			s.closeFrame(websocket.ClosePolicyViolation, "observer too slow")
			return fmt.Errorf("%w: evicted", domain.ErrTransport)
		case event := <-s.sub.C():
			if err := s.writeFrame(domain.MsgNewMessage, event); err != nil {
				return err
			}
		case <-s.requests:
			if err := s.writeAnalytics(); err != nil {
				return err
			}
		case <-ping.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return fmt.Errorf("%w: ping: %v", domain.ErrTransport, err)
			}
		}
	}
}

// join registers the subscriber and reads the snapshot with no commit in
// progress, so the queue holds exactly the events persisted after it.
func (s *Session) join(ctx context.Context) error {
	ctx, span := otel.Tracer("feed-session").Start(ctx, "Session.Join")
	defer span.End()

	var events []domain.Event
	registered, err := s.hub.Join(s.sub, func() error {
		var err error
		events, err = s.store.Recent(ctx, s.opts.SnapshotSize)
		return err
	})
	if !registered {
		return fmt.Errorf("%w: subscriber %s could not be registered", domain.ErrTransport, s.id)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "snapshot failed")
		s.logger.Error("failed to read snapshot", "error", err)
		s.closeFrame(websocket.CloseInternalServerErr, "snapshot unavailable")
		return err
	}
	if events == nil {
		events = []domain.Event{}
	}

	if err := s.writeFrame(domain.MsgInitialMessages, events); err != nil {
		span.RecordError(err)
		return err
	}
	s.state.Store(int32(StateSnapshotSent))
	span.SetAttributes(attribute.Int("snapshot.events", len(events)))
	if s.metrics != nil {
		s.metrics.SnapshotEvents.Observe(float64(len(events)))
	}

	s.state.Store(int32(StateLive))
	s.logger.Info("observer live", "snapshot_events", len(events))
	return nil
}

// readLoop consumes client frames. Only analytics requests are meaningful;
// repeated requests coalesce while one is pending.
func (s *Session) readLoop() error {
	s.conn.SetReadLimit(maxFrameSize)
	s.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("%w: read: %v", domain.ErrTransport, err)
		}
		s.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))

		env, err := domain.DecodeEnvelope(data)
		if err != nil {
			s.logger.Warn("dropping undecodable observer frame", "error", err)
			continue
		}
		switch env.Type {
		case domain.MsgGetAnalytics:
			select {
			case s.requests <- struct{}{}:
			default:
			}
		default:
			s.logger.Debug("ignoring observer frame", "type", env.Type)
		}
	}
}

func (s *Session) writeAnalytics() error {
	payload := domain.AnalyticsPayload{PerformanceStats: map[string]float64{}}
	if s.stats != nil {
		stats, err := s.stats.PerformanceStats()
		if err != nil {
			s.logger.Error("failed to gather performance stats", "error", err)
		} else {
			payload.PerformanceStats = stats
		}
	}
	return s.writeFrame(domain.MsgAnalytics, payload)
}

func (s *Session) writeFrame(t domain.MessageType, data any) error {
	b, err := domain.EncodeEnvelope(t, data)
	if err != nil {
		return err
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := s.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return fmt.Errorf("%w: write %s: %v", domain.ErrTransport, t, err)
	}
	return nil
}

func (s *Session) closeFrame(code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	if err := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		s.logger.Debug("failed to send close frame", "error", err)
	}
}
