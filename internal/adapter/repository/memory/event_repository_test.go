package memory

import (
	"context"
	"testing"

	"github.com/V4T54L/statusboard/internal/domain"
)

func TestEventRepository_AppendAndRecent(t *testing.T) {
	repo := NewEventRepository(0)
	ctx := context.Background()

	var ids []string
	for _, job := range []string{"a", "b", "c"} {
		e, err := repo.Append(ctx, domain.Event{JobID: job})
		if err != nil {
			t.Fatalf("append failed: %v", err)
		}
		if !e.Persisted() || e.ReceivedAt.IsZero() {
			t.Fatalf("expected id and received_at to be assigned, got %+v", e)
		}
		ids = append(ids, e.ID)
	}

	tests := []struct {
		name  string
		limit int
		want  []string
	}{
		{"All", 10, []string{ids[2], ids[1], ids[0]}},
		{"Bounded", 2, []string{ids[2], ids[1]}},
		{"Zero", 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.Recent(ctx, tt.limit)
			if err != nil {
				t.Fatalf("recent failed: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d events, got %d", len(tt.want), len(got))
			}
			for i := range got {
				if got[i].ID != tt.want[i] {
					t.Errorf("position %d: expected %s, got %s", i, tt.want[i], got[i].ID)
				}
			}
		})
	}
}

func TestEventRepository_Limit(t *testing.T) {
	repo := NewEventRepository(2)
	ctx := context.Background()
	for _, job := range []string{"a", "b", "c"} {
		if _, err := repo.Append(ctx, domain.Event{JobID: job}); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}
	got, _ := repo.Recent(ctx, 10)
	if len(got) != 2 || got[0].JobID != "c" || got[1].JobID != "b" {
		t.Errorf("expected [c b], got %+v", got)
	}
}

func TestEventRepository_CancelledContext(t *testing.T) {
	repo := NewEventRepository(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := repo.Append(ctx, domain.Event{}); err == nil {
		t.Error("expected error for cancelled context")
	}
}
