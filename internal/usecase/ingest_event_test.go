package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"testing"

	"github.com/V4T54L/statusboard/internal/adapter/metrics"
	"github.com/V4T54L/statusboard/internal/adapter/normalize"
	"github.com/V4T54L/statusboard/internal/domain"
	"github.com/V4T54L/statusboard/internal/domain/mocks"
)

func newUseCase(store *mocks.MockEventStore, pub *mocks.MockPublisher) *IngestEventUseCase {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewIngestEventUseCase(store, pub, normalize.New(), metrics.NewFeedMetrics(), logger)
}

func TestIngestEventUseCase_Submit(t *testing.T) {
	t.Run("Successful Submission", func(t *testing.T) {
		calls := &mocks.CallLog{}
		store := &mocks.MockEventStore{Log: calls}
		pub := &mocks.MockPublisher{Log: calls}
		uc := newUseCase(store, pub)

		event, err := uc.Submit(context.Background(), json.RawMessage(`{"job_id":"j1","status":"Queued"}`))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if event.ID == "" {
			t.Error("expected persisted event to carry an ID")
		}
		if want := []string{"append:j1", "publish:j1"}; !reflect.DeepEqual(calls.Snapshot(), want) {
			t.Errorf("expected calls %v, got %v", want, calls.Snapshot())
		}
		if pub.Published[0] != event {
			t.Error("expected the persisted event, not the raw one, to be published")
		}
	})

	t.Run("Malformed Payload", func(t *testing.T) {
		store := &mocks.MockEventStore{}
		pub := &mocks.MockPublisher{}
		uc := newUseCase(store, pub)

		for _, raw := range []string{`[1]`, `"text"`, `42`, `{"job_id":`} {
			_, err := uc.Submit(context.Background(), json.RawMessage(raw))
			if !errors.Is(err, domain.ErrMalformed) {
				t.Errorf("payload %s: expected ErrMalformed, got %v", raw, err)
			}
		}
		if len(store.Events) != 0 || pub.Count() != 0 {
			t.Error("malformed payloads must not be stored or published")
		}
	})

	t.Run("Persist Failure", func(t *testing.T) {
		store := &mocks.MockEventStore{AppendErr: errors.New("disk full")}
		pub := &mocks.MockPublisher{}
		uc := newUseCase(store, pub)

		_, err := uc.Submit(context.Background(), json.RawMessage(`{"job_id":"j1"}`))
		if !errors.Is(err, domain.ErrPersist) {
			t.Fatalf("expected ErrPersist, got %v", err)
		}
		if pub.Count() != 0 {
			t.Error("expected nothing to be published on persist failure")
		}
	})

	t.Run("Every Published Event Is Retrievable", func(t *testing.T) {
		store := &mocks.MockEventStore{}
		var checkErr error
		var mu sync.Mutex
		pub := &checkingPublisher{check: func(e domain.Event) {
			recent, _ := store.Recent(context.Background(), 1000)
			for _, r := range recent {
				if r.ID == e.ID {
					return
				}
			}
			mu.Lock()
			checkErr = errors.New("published event " + e.ID + " not in store")
			mu.Unlock()
		}}
		uc := NewIngestEventUseCase(store, pub, normalize.New(), nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = uc.Submit(context.Background(), json.RawMessage(`{"job_id":"j"}`))
			}()
		}
		wg.Wait()

		if checkErr != nil {
			t.Fatal(checkErr)
		}
		if pub.n != 20 {
			t.Errorf("expected 20 publishes, got %d", pub.n)
		}
	})

	t.Run("Publish Order Matches Store Order", func(t *testing.T) {
		store := &mocks.MockEventStore{}
		pub := &mocks.MockPublisher{}
		uc := newUseCase(store, pub)

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = uc.Submit(context.Background(), json.RawMessage(`{}`))
			}()
		}
		wg.Wait()

		for i := range store.Events {
			if store.Events[i].ID != pub.Published[i].ID {
				t.Fatalf("order mismatch at %d: stored %s, published %s", i, store.Events[i].ID, pub.Published[i].ID)
			}
		}
	})
}

func TestIngestEventUseCase_SubmitEvent(t *testing.T) {
	store := &mocks.MockEventStore{}
	pub := &mocks.MockPublisher{}
	uc := newUseCase(store, pub)

	in := domain.Event{JobID: "j1", ContentID: "c1", Status: "Queued"}
	out, err := uc.SubmitEvent(context.Background(), in)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out.JobID != "j1" || out.ID == "" {
		t.Errorf("unexpected persisted event %+v", out)
	}
	if pub.Count() != 1 {
		t.Errorf("expected 1 publish, got %d", pub.Count())
	}
}

type checkingPublisher struct {
	mocks.MockPublisher
	check func(domain.Event)
	n     int
}

func (p *checkingPublisher) Commit(persist func() (domain.Event, error)) (domain.Event, error) {
	return p.MockPublisher.Commit(func() (domain.Event, error) {
		e, err := persist()
		if err == nil {
			p.check(e)
			p.n++
		}
		return e, err
	})
}
