package observer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/V4T54L/statusboard/internal/domain"
)

// fakeStream delivers frames pushed by the test. Closing the stream or
// failing it makes Read return an error.
type fakeStream struct {
	frames chan []byte
	fail   chan error
	closed chan struct{}
	once   sync.Once

	mu      sync.Mutex
	written [][]byte
}

func newFakeStream() *fakeStream {
	return &fakeStream{frames: make(chan []byte, 16), fail: make(chan error, 1), closed: make(chan struct{})}
}

func (s *fakeStream) Read(ctx context.Context) ([]byte, error) {
	select {
	case f := <-s.frames:
		return f, nil
	case err := <-s.fail:
		return nil, err
	case <-s.closed:
		return nil, errors.New("stream closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *fakeStream) Write(ctx context.Context, frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written = append(s.written, frame)
	return nil
}

func (s *fakeStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeStream) Written() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.written...)
}

func (s *fakeStream) send(t *testing.T, typ domain.MessageType, data any) {
	t.Helper()
	b, err := domain.EncodeEnvelope(typ, data)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	s.frames <- b
}

// fakeDialer hands out streams in order; once they run out Dial fails.
type fakeDialer struct {
	mu      sync.Mutex
	streams []*fakeStream
	dials   int
}

func (d *fakeDialer) Dial(ctx context.Context) (Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if len(d.streams) == 0 {
		return nil, errors.New("connection refused")
	}
	s := d.streams[0]
	d.streams = d.streams[1:]
	return s, nil
}

func (d *fakeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startEngine(t *testing.T, d Dialer, opts Options) *Engine {
	t.Helper()
	if opts.ReconnectDelay == 0 {
		opts.ReconnectDelay = 10 * time.Millisecond
	}
	e := NewEngine(d, opts, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		e.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return e
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func ids(events []domain.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}

func equalIDs(events []domain.Event, want ...string) bool {
	got := ids(events)
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestEngine_SnapshotThenIncremental(t *testing.T) {
	stream := newFakeStream()
	e := startEngine(t, &fakeDialer{streams: []*fakeStream{stream}}, Options{})

	stream.send(t, domain.MsgInitialMessages, []domain.Event{{ID: "e2"}, {ID: "e1"}})
	waitFor(t, "sync", func() bool { return e.State() == StateSynced })
	if !equalIDs(e.CurrentView(), "e2", "e1") {
		t.Fatalf("expected mirror [e2 e1], got %v", ids(e.CurrentView()))
	}

	before := e.CurrentView()
	stream.send(t, domain.MsgNewMessage, domain.Event{ID: "e3"})
	waitFor(t, "incremental", func() bool { return equalIDs(e.CurrentView(), "e3", "e2", "e1") })

	if !equalIDs(before, "e2", "e1") {
		t.Errorf("expected earlier view to be unchanged, got %v", ids(before))
	}
}

func TestEngine_IncrementalBeforeSnapshotIsRejected(t *testing.T) {
	stream := newFakeStream()
	e := startEngine(t, &fakeDialer{streams: []*fakeStream{stream}}, Options{})

	stream.send(t, domain.MsgNewMessage, domain.Event{ID: "early"})
	stream.send(t, domain.MsgInitialMessages, []domain.Event{{ID: "e1"}})
	waitFor(t, "sync", func() bool { return e.State() == StateSynced })

	if !equalIDs(e.CurrentView(), "e1") {
		t.Errorf("expected early incremental to be dropped, got %v", ids(e.CurrentView()))
	}
}

func TestEngine_MalformedFramesAreDropped(t *testing.T) {
	stream := newFakeStream()
	e := startEngine(t, &fakeDialer{streams: []*fakeStream{stream}}, Options{})

	stream.send(t, domain.MsgInitialMessages, []domain.Event{{ID: "e1"}})
	stream.frames <- []byte(`{not json`)
	stream.frames <- []byte(`{"type":"newMessage","data":[1,2,3]}`)
	stream.frames <- []byte(`{"type":"somethingElse"}`)
	stream.send(t, domain.MsgNewMessage, domain.Event{ID: "e2"})

	waitFor(t, "valid incremental", func() bool { return equalIDs(e.CurrentView(), "e2", "e1") })
	if e.State() != StateSynced {
		t.Errorf("expected engine to stay synced, got %s", e.State())
	}
}

func TestEngine_ReconnectRetainsThenReplacesMirror(t *testing.T) {
	first, second := newFakeStream(), newFakeStream()
	dialer := &fakeDialer{streams: []*fakeStream{first, second}}

	var mu sync.Mutex
	var states []State
	e := startEngine(t, dialer, Options{
		ReconnectDelay: 50 * time.Millisecond,
		OnState: func(s State) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
		},
	})

	first.send(t, domain.MsgInitialMessages, []domain.Event{{ID: "e1"}})
	waitFor(t, "first sync", func() bool { return e.State() == StateSynced })

	first.fail <- errors.New("connection reset")
	waitFor(t, "disconnect", func() bool { return e.State() != StateSynced })
	if !equalIDs(e.CurrentView(), "e1") {
		t.Errorf("expected mirror to be retained while disconnected, got %v", ids(e.CurrentView()))
	}

	second.send(t, domain.MsgInitialMessages, []domain.Event{{ID: "e3"}, {ID: "e2"}, {ID: "e1"}})
	waitFor(t, "resync", func() bool { return equalIDs(e.CurrentView(), "e3", "e2", "e1") })

	mu.Lock()
	defer mu.Unlock()
	want := []State{StateConnecting, StateSynced, StateDisconnected, StateConnecting, StateSynced}
	if len(states) < len(want) {
		t.Fatalf("expected states %v, got %v", want, states)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("expected states %v, got %v", want, states)
		}
	}
}

func TestEngine_KeepsRetryingDialFailures(t *testing.T) {
	dialer := &fakeDialer{}
	e := startEngine(t, dialer, Options{ReconnectDelay: 5 * time.Millisecond})

	waitFor(t, "several dial attempts", func() bool { return dialer.Dials() >= 3 })
	if e.State() == StateSynced {
		t.Error("expected engine never to sync")
	}
}

func TestEngine_MirrorLimit(t *testing.T) {
	stream := newFakeStream()
	e := startEngine(t, &fakeDialer{streams: []*fakeStream{stream}}, Options{MirrorLimit: 2})

	stream.send(t, domain.MsgInitialMessages, []domain.Event{{ID: "e3"}, {ID: "e2"}, {ID: "e1"}})
	waitFor(t, "snapshot", func() bool { return equalIDs(e.CurrentView(), "e3", "e2") })

	stream.send(t, domain.MsgNewMessage, domain.Event{ID: "e4"})
	waitFor(t, "incremental", func() bool { return equalIDs(e.CurrentView(), "e4", "e3") })
}

func TestEngine_OnChange(t *testing.T) {
	stream := newFakeStream()
	changes := make(chan []domain.Event, 4)
	startEngine(t, &fakeDialer{streams: []*fakeStream{stream}}, Options{
		OnChange: func(m []domain.Event) { changes <- m },
	})

	stream.send(t, domain.MsgInitialMessages, []domain.Event{})
	select {
	case m := <-changes:
		if m == nil || len(m) != 0 {
			t.Errorf("expected empty non-nil mirror, got %v", m)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected OnChange after snapshot")
	}
}

func TestEngine_RequestAnalytics(t *testing.T) {
	stream := newFakeStream()
	got := make(chan map[string]float64, 1)
	e := NewEngine(&fakeDialer{streams: []*fakeStream{stream}}, Options{
		ReconnectDelay: 10 * time.Millisecond,
		OnAnalytics:    func(s map[string]float64) { got <- s },
	}, testLogger())

	if err := e.RequestAnalytics(context.Background()); !errors.Is(err, domain.ErrTransport) {
		t.Fatalf("expected ErrTransport while disconnected, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	stream.send(t, domain.MsgInitialMessages, []domain.Event{})
	waitFor(t, "sync", func() bool { return e.State() == StateSynced })

	if err := e.RequestAnalytics(context.Background()); err != nil {
		t.Fatalf("expected request to be sent, got %v", err)
	}
	written := stream.Written()
	if len(written) != 1 {
		t.Fatalf("expected one frame written, got %d", len(written))
	}
	env, err := domain.DecodeEnvelope(written[0])
	if err != nil {
		t.Fatalf("expected valid frame, got %v", err)
	}
	if env.Type != domain.MsgGetAnalytics {
		t.Errorf("expected getAnalytics, got %s", env.Type)
	}

	stream.send(t, domain.MsgAnalytics, domain.AnalyticsPayload{PerformanceStats: map[string]float64{"observersConnected": 2}})
	select {
	case s := <-got:
		if s["observersConnected"] != 2 {
			t.Errorf("unexpected stats %v", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected analytics callback")
	}
}
