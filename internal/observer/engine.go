// Package observer keeps a local mirror of the feed server's event log.
package observer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/V4T54L/statusboard/internal/domain"
)

// DefaultReconnectDelay is the fixed pause between connection attempts.
const DefaultReconnectDelay = 3 * time.Second

// State is the engine's connection state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateSynced
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSynced:
		return "synced"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Stream is one message-oriented connection to the feed server.
type Stream interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, frame []byte) error
	Close() error
}

// Dialer opens streams.
type Dialer interface {
	Dial(ctx context.Context) (Stream, error)
}

// Options configures an Engine. All callbacks run on the engine goroutine
// and must not block for long.
type Options struct {
	ReconnectDelay time.Duration
	// MirrorLimit caps the mirror, dropping the oldest events. Zero keeps
	// everything.
	MirrorLimit int

	OnChange    func(mirror []domain.Event)
	OnState     func(State)
	OnAnalytics func(stats map[string]float64)
}

// Engine reconciles the snapshot and the incremental stream into a single
// newest-first mirror and reconnects forever until its context ends.
//
// The mirror slice is never modified after it is published: every change
// builds a new slice, so CurrentView results can be read without locking.
type Engine struct {
	dialer Dialer
	opts   Options
	logger *slog.Logger

	mu     sync.RWMutex
	mirror []domain.Event

	state atomic.Int32

	streamMu sync.Mutex
	stream   Stream
}

// NewEngine creates an engine in the Disconnected state with an empty mirror.
func NewEngine(dialer Dialer, opts Options, logger *slog.Logger) *Engine {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	return &Engine{
		dialer: dialer,
		opts:   opts,
		logger: logger.With("component", "sync_engine"),
	}
}

// CurrentView returns the mirror, newest first. The result must not be
// modified.
func (e *Engine) CurrentView() []domain.Event {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.mirror
}

// State returns the connection state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Run connects, consumes and reconnects until ctx is cancelled. A new
// attempt starts only after the previous stream is closed.
func (e *Engine) Run(ctx context.Context) error {
	for {
		e.setState(StateConnecting)
		err := e.consume(ctx)
		e.setState(StateDisconnected)
		if ctx.Err() != nil {
			return nil
		}
		e.logger.Warn("feed connection lost, reconnecting", "error", err, "delay", e.opts.ReconnectDelay)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(e.opts.ReconnectDelay):
		}
	}
}

// RequestAnalytics sends an analytics request on the current connection.
func (e *Engine) RequestAnalytics(ctx context.Context) error {
	frame, err := domain.EncodeEnvelope(domain.MsgGetAnalytics, nil)
	if err != nil {
		return err
	}
	e.streamMu.Lock()
	stream := e.stream
	e.streamMu.Unlock()
	if stream == nil {
		return fmt.Errorf("%w: not connected", domain.ErrTransport)
	}
	if err := stream.Write(ctx, frame); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	return nil
}

// consume runs one connection attempt until the stream fails.
func (e *Engine) consume(ctx context.Context) error {
	stream, err := e.dialer.Dial(ctx)
	if err != nil {
		return fmt.Errorf("%w: dial: %v", domain.ErrTransport, err)
	}
	e.setStream(stream)
	defer func() {
		e.setStream(nil)
		stream.Close()
	}()

	synced := false
	for {
		frame, err := stream.Read(ctx)
		if err != nil {
			return fmt.Errorf("%w: read: %v", domain.ErrTransport, err)
		}
		if err := e.handle(frame, &synced); err != nil {
			e.logger.Error("dropping feed frame", "error", err, "protocol_violation", errors.Is(err, domain.ErrProtocolViolation))
		}
	}
}

func (e *Engine) handle(frame []byte, synced *bool) error {
	env, err := domain.DecodeEnvelope(frame)
	if err != nil {
		return err
	}

	switch env.Type {
	case domain.MsgInitialMessages:
		var events []domain.Event
		if err := json.Unmarshal(env.Data, &events); err != nil {
			return fmt.Errorf("%w: snapshot: %v", domain.ErrMalformed, err)
		}
		e.replace(events)
		if !*synced {
			*synced = true
			e.setState(StateSynced)
		}
	case domain.MsgNewMessage:
		if !*synced {
			return fmt.Errorf("%w: incremental message before snapshot", domain.ErrProtocolViolation)
		}
		var event domain.Event
		if err := json.Unmarshal(env.Data, &event); err != nil {
			return fmt.Errorf("%w: event: %v", domain.ErrMalformed, err)
		}
		e.prepend(event)
	case domain.MsgAnalytics:
		var payload domain.AnalyticsPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return fmt.Errorf("%w: analytics: %v", domain.ErrMalformed, err)
		}
		if e.opts.OnAnalytics != nil {
			e.opts.OnAnalytics(payload.PerformanceStats)
		}
	default:
		e.logger.Debug("ignoring feed frame", "type", env.Type)
	}
	return nil
}

func (e *Engine) replace(events []domain.Event) {
	if events == nil {
		events = []domain.Event{}
	}
	if limit := e.opts.MirrorLimit; limit > 0 && len(events) > limit {
		events = events[:limit:limit]
	}
	e.publish(events)
	e.logger.Info("mirror replaced from snapshot", "events", len(events))
}

func (e *Engine) prepend(event domain.Event) {
	old := e.CurrentView()
	n := len(old) + 1
	if limit := e.opts.MirrorLimit; limit > 0 && n > limit {
		n = limit
	}
	next := make([]domain.Event, n)
	next[0] = event
	copy(next[1:], old)
	e.publish(next)
}

func (e *Engine) publish(mirror []domain.Event) {
	e.mu.Lock()
	e.mirror = mirror
	e.mu.Unlock()
	if e.opts.OnChange != nil {
		e.opts.OnChange(mirror)
	}
}

func (e *Engine) setState(s State) {
	if State(e.state.Swap(int32(s))) == s {
		return
	}
	if e.opts.OnState != nil {
		e.opts.OnState(s)
	}
}

func (e *Engine) setStream(s Stream) {
	e.streamMu.Lock()
	e.stream = s
	e.streamMu.Unlock()
}
