package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/V4T54L/statusboard/internal/adapter/hub"
	"github.com/V4T54L/statusboard/internal/adapter/metrics"
	"github.com/V4T54L/statusboard/internal/domain"
	"github.com/V4T54L/statusboard/internal/domain/mocks"
)

type feedFixture struct {
	hub    *hub.Hub
	store  *mocks.MockEventStore
	server *httptest.Server
}

func newFeedFixture(t *testing.T, store SnapshotSource, backing *mocks.MockEventStore) *feedFixture {
	t.Helper()
	h := hub.New(testLogger(), nil)
	if store == nil {
		store = backing
	}
	fh := NewFeedHandler(h, store, metrics.NewFeedMetrics(), nil, SessionOptions{SnapshotSize: 100, QueueSize: 16}, testLogger())
	server := httptest.NewServer(fh)
	t.Cleanup(server.Close)
	return &feedFixture{hub: h, store: backing, server: server}
}

func (f *feedFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// publish commits like the ingest use case: append, then publish the stored copy.
func (f *feedFixture) publish(t *testing.T, job string) domain.Event {
	t.Helper()
	e, err := f.hub.Commit(func() (domain.Event, error) {
		return f.store.Append(context.Background(), domain.Event{JobID: job})
	})
	if err != nil {
		t.Errorf("commit failed: %v", err)
	}
	return e
}

func readEnvelope(t *testing.T, conn *websocket.Conn) domain.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	env, err := domain.DecodeEnvelope(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	return env
}

func readSnapshot(t *testing.T, conn *websocket.Conn) []domain.Event {
	t.Helper()
	env := readEnvelope(t, conn)
	if env.Type != domain.MsgInitialMessages {
		t.Fatalf("expected first frame to be %s, got %s", domain.MsgInitialMessages, env.Type)
	}
	var events []domain.Event
	if err := json.Unmarshal(env.Data, &events); err != nil {
		t.Fatalf("failed to decode snapshot: %v", err)
	}
	return events
}

func readIncremental(t *testing.T, conn *websocket.Conn) domain.Event {
	t.Helper()
	env := readEnvelope(t, conn)
	if env.Type != domain.MsgNewMessage {
		t.Fatalf("expected %s, got %s", domain.MsgNewMessage, env.Type)
	}
	var e domain.Event
	if err := json.Unmarshal(env.Data, &e); err != nil {
		t.Fatalf("failed to decode event: %v", err)
	}
	return e
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestFeedHandler_SnapshotThenIncremental(t *testing.T) {
	f := newFeedFixture(t, nil, &mocks.MockEventStore{})
	first := f.publish(t, "j1")
	second := f.publish(t, "j2")

	conn := f.dial(t)
	snapshot := readSnapshot(t, conn)
	if len(snapshot) != 2 || snapshot[0].ID != second.ID || snapshot[1].ID != first.ID {
		t.Fatalf("expected snapshot [%s %s], got %+v", second.ID, first.ID, snapshot)
	}

	waitFor(t, "registration", func() bool { return f.hub.Len() == 1 })
	third := f.publish(t, "j3")
	if got := readIncremental(t, conn); got.ID != third.ID {
		t.Errorf("expected incremental %s, got %s", third.ID, got.ID)
	}
}

func TestFeedHandler_EmptySnapshotIsArray(t *testing.T) {
	f := newFeedFixture(t, nil, &mocks.MockEventStore{})
	conn := f.dial(t)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if want := `{"type":"initialMessages","data":[]}`; string(data) != want {
		t.Errorf("expected %s, got %s", want, data)
	}
}

// burstStore starts a burst of commits while the snapshot is being read.
type burstStore struct {
	f     **feedFixture
	t     *testing.T
	burst int
	once  sync.Once
	done  chan struct{}
}

func (s *burstStore) Recent(ctx context.Context, limit int) ([]domain.Event, error) {
	s.once.Do(func() {
		go func() {
			defer close(s.done)
			for i := 0; i < s.burst; i++ {
				(*s.f).publish(s.t, fmt.Sprintf("burst-%d", i))
			}
		}()
		// Give the burst a chance to contend with the snapshot read.
		time.Sleep(20 * time.Millisecond)
	})
	return (*s.f).store.Recent(ctx, limit)
}

func TestFeedHandler_BurstDuringJoinIsNeitherLostNorDuplicated(t *testing.T) {
	var f *feedFixture
	backing := &mocks.MockEventStore{}
	burst := &burstStore{f: &f, t: t, burst: 5, done: make(chan struct{})}
	h := hub.New(testLogger(), nil)
	fh := NewFeedHandler(h, burst, nil, nil, SessionOptions{SnapshotSize: 2, QueueSize: 16}, testLogger())
	server := httptest.NewServer(fh)
	t.Cleanup(server.Close)
	f = &feedFixture{hub: h, store: backing, server: server}

	f.publish(t, "old-1")
	f.publish(t, "old-2")
	f.publish(t, "old-3")

	conn := f.dial(t)
	snapshot := readSnapshot(t, conn)
	if len(snapshot) == 0 {
		t.Fatal("expected a non-empty snapshot")
	}
	<-burst.done

	all, _ := backing.Recent(context.Background(), 100) // newest first
	cutoff := -1
	for i, e := range all {
		if e.ID == snapshot[0].ID {
			cutoff = i
			break
		}
	}
	if cutoff < 0 {
		t.Fatalf("snapshot head %s is not in the store", snapshot[0].ID)
	}
	for i, e := range snapshot {
		if all[cutoff+i].ID != e.ID {
			t.Fatalf("snapshot is not the newest events at its cutoff: %+v", snapshot)
		}
	}

	// Everything persisted after the cutoff must follow, oldest first, once each.
	for i := cutoff - 1; i >= 0; i-- {
		if got := readIncremental(t, conn); got.ID != all[i].ID {
			t.Fatalf("expected incremental %s (%s), got %s (%s)", all[i].ID, all[i].JobID, got.ID, got.JobID)
		}
	}

	next := f.publish(t, "after")
	if got := readIncremental(t, conn); got.ID != next.ID {
		t.Errorf("expected %s after the burst, got %s", next.ID, got.ID)
	}
}

func TestFeedHandler_CommitWaitsForSnapshot(t *testing.T) {
	var f *feedFixture
	backing := &mocks.MockEventStore{}
	burst := &burstStore{f: &f, t: t, burst: 3, done: make(chan struct{})}
	h := hub.New(testLogger(), nil)
	fh := NewFeedHandler(h, burst, nil, nil, SessionOptions{SnapshotSize: 2, QueueSize: 16}, testLogger())
	server := httptest.NewServer(fh)
	t.Cleanup(server.Close)
	f = &feedFixture{hub: h, store: backing, server: server}

	conn := f.dial(t)
	if snapshot := readSnapshot(t, conn); len(snapshot) != 0 {
		t.Fatalf("expected the burst to wait for the snapshot, got %+v", snapshot)
	}
	for i := 0; i < 3; i++ {
		if got := readIncremental(t, conn); got.JobID != fmt.Sprintf("burst-%d", i) {
			t.Fatalf("expected burst-%d, got %s", i, got.JobID)
		}
	}
}

func TestFeedHandler_Analytics(t *testing.T) {
	f := newFeedFixture(t, nil, &mocks.MockEventStore{})
	conn := f.dial(t)
	readSnapshot(t, conn)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"getAnalytics"}`)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	env := readEnvelope(t, conn)
	if env.Type != domain.MsgAnalytics {
		t.Fatalf("expected analytics frame, got %s", env.Type)
	}
	var payload domain.AnalyticsPayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		t.Fatalf("failed to decode analytics: %v", err)
	}
	if _, ok := payload.PerformanceStats["uptimeSeconds"]; !ok {
		t.Errorf("expected uptimeSeconds in %v", payload.PerformanceStats)
	}
}

func TestFeedHandler_IgnoresGarbageFrames(t *testing.T) {
	f := newFeedFixture(t, nil, &mocks.MockEventStore{})
	conn := f.dial(t)
	readSnapshot(t, conn)
	waitFor(t, "registration", func() bool { return f.hub.Len() == 1 })

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`not json`)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	e := f.publish(t, "j1")
	if got := readIncremental(t, conn); got.ID != e.ID {
		t.Errorf("expected session to survive garbage frame, got %s", got.ID)
	}
}

func TestFeedHandler_UnregistersOnClose(t *testing.T) {
	f := newFeedFixture(t, nil, &mocks.MockEventStore{})
	conn := f.dial(t)
	readSnapshot(t, conn)
	waitFor(t, "registration", func() bool { return f.hub.Len() == 1 })

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()
	waitFor(t, "unregistration", func() bool { return f.hub.Len() == 0 })
}

func TestFeedHandler_SnapshotFailureCloses(t *testing.T) {
	f := newFeedFixture(t, nil, &mocks.MockEventStore{RecentErr: errors.New("db down")})
	conn := f.dial(t)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseInternalServerErr) {
		t.Fatalf("expected internal error close, got %v", err)
	}
	waitFor(t, "unregistration", func() bool { return f.hub.Len() == 0 })
}
