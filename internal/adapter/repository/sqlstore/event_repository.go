// Package sqlstore implements domain.EventStore on database/sql, for
// PostgreSQL (lib/pq) and SQLite (modernc.org/sqlite).
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/V4T54L/statusboard/internal/domain"
)

// EventRepository persists events in a single append-only table. Insertion
// order is the seq column, which Recent sorts on.
type EventRepository struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger
	now     func() time.Time
}

// Open connects to dsn with the dialect's driver, verifies the connection
// and creates the schema.
func Open(ctx context.Context, dialect Dialect, dsn string, logger *slog.Logger) (*EventRepository, error) {
	db, err := sql.Open(dialect.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dialect.Name, err)
	}
	if dialect.Name == SQLite.Name {
		// One connection keeps ":memory:" databases shared and serializes writers.
		db.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", dialect.Name, err)
	}

	repo := New(db, dialect, logger)
	if err := repo.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

// New wraps an existing handle. The schema is not touched.
func New(db *sql.DB, dialect Dialect, logger *slog.Logger) *EventRepository {
	return &EventRepository{
		db:      db,
		dialect: dialect,
		logger:  logger.With("component", "sql_repository", "dialect", dialect.Name),
		now:     time.Now,
	}
}

// Migrate creates the events table when it does not exist.
func (r *EventRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, r.dialect.schema); err != nil {
		return fmt.Errorf("failed to create %s schema: %w", r.dialect.Name, err)
	}
	return nil
}

func (r *EventRepository) Append(ctx context.Context, event domain.Event) (domain.Event, error) {
	event.ID = uuid.NewString()
	event.ReceivedAt = r.now().UTC()

	_, err := r.db.ExecContext(ctx, r.dialect.insert,
		event.ID, event.ReceivedAt.Format(time.RFC3339Nano), event.Time,
		event.JobID, event.ContentID, event.ContentType, event.FileName, event.Status, event.Message,
	)
	if err != nil {
		return domain.Event{}, fmt.Errorf("%w: failed to insert event: %v", domain.ErrPersist, err)
	}
	return event, nil
}

// Recent returns up to limit events, newest first.
func (r *EventRepository) Recent(ctx context.Context, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, r.dialect.recent, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query recent events: %v", domain.ErrPersist, err)
	}
	defer func() { _ = rows.Close() }()

	events := make([]domain.Event, 0, limit)
	for rows.Next() {
		var e domain.Event
		var received dbTime
		if err := rows.Scan(&e.ID, &received, &e.Time, &e.JobID, &e.ContentID, &e.ContentType, &e.FileName, &e.Status, &e.Message); err != nil {
			return nil, fmt.Errorf("%w: failed to scan event: %v", domain.ErrPersist, err)
		}
		e.ReceivedAt = received.Time
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersist, err)
	}
	return events, nil
}

func (r *EventRepository) Close() error {
	return r.db.Close()
}

// dbTime scans timestamps that arrive either as a driver time or as the
// RFC 3339 text written by Append.
type dbTime struct {
	time.Time
}

func (t *dbTime) Scan(v any) error {
	switch x := v.(type) {
	case time.Time:
		t.Time = x.UTC()
		return nil
	case string:
		return t.parse(x)
	case []byte:
		return t.parse(string(x))
	case nil:
		t.Time = time.Time{}
		return nil
	default:
		return fmt.Errorf("cannot scan %T into timestamp", v)
	}
}

func (t *dbTime) parse(s string) error {
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return err
	}
	t.Time = parsed.UTC()
	return nil
}
