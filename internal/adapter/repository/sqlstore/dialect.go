package sqlstore

import "fmt"

const tableName = "feed_events"

// Dialect holds the statements that differ between SQL engines.
type Dialect struct {
	Name   string
	Driver string

	schema string
	insert string
	recent string
}

var (
	// Postgres targets github.com/lib/pq.
	Postgres = Dialect{
		Name:   "postgres",
		Driver: "postgres",
		schema: `CREATE TABLE IF NOT EXISTS ` + tableName + ` (
			seq          BIGSERIAL PRIMARY KEY,
			event_id     UUID NOT NULL UNIQUE,
			received_at  TIMESTAMPTZ NOT NULL,
			event_time   TEXT NOT NULL,
			job_id       TEXT NOT NULL,
			content_id   TEXT NOT NULL,
			content_type TEXT NOT NULL,
			file_name    TEXT NOT NULL,
			status       TEXT NOT NULL,
			message      TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_` + tableName + `_job_id ON ` + tableName + ` (job_id);`,
		insert: `INSERT INTO ` + tableName + ` (event_id, received_at, event_time, job_id, content_id, content_type, file_name, status, message)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		recent: `SELECT event_id, received_at, event_time, job_id, content_id, content_type, file_name, status, message
			FROM ` + tableName + ` ORDER BY seq DESC LIMIT $1`,
	}

	// SQLite targets modernc.org/sqlite.
	SQLite = Dialect{
		Name:   "sqlite",
		Driver: "sqlite",
		schema: `CREATE TABLE IF NOT EXISTS ` + tableName + ` (
			seq          INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id     TEXT NOT NULL UNIQUE,
			received_at  TEXT NOT NULL,
			event_time   TEXT NOT NULL,
			job_id       TEXT NOT NULL,
			content_id   TEXT NOT NULL,
			content_type TEXT NOT NULL,
			file_name    TEXT NOT NULL,
			status       TEXT NOT NULL,
			message      TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_` + tableName + `_job_id ON ` + tableName + ` (job_id);`,
		insert: `INSERT INTO ` + tableName + ` (event_id, received_at, event_time, job_id, content_id, content_type, file_name, status, message)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		recent: `SELECT event_id, received_at, event_time, job_id, content_id, content_type, file_name, status, message
			FROM ` + tableName + ` ORDER BY seq DESC LIMIT ?`,
	}
)

// DialectFor returns the dialect registered under name.
func DialectFor(name string) (Dialect, error) {
	switch name {
	case Postgres.Name:
		return Postgres, nil
	case SQLite.Name:
		return SQLite, nil
	default:
		return Dialect{}, fmt.Errorf("unknown sql dialect %q", name)
	}
}
