package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/location-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS analytics_events (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	attributes  TEXT NOT NULL DEFAULT '{}',
	recorded_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analytics_events_name ON analytics_events(name);
CREATE INDEX IF NOT EXISTS idx_analytics_events_recorded_at ON analytics_events(recorded_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RecordEvent inserts an event. Re-recording the same id is a no-op.
func (s *SQLiteStore) RecordEvent(ctx context.Context, ev model.AnalyticsEvent) error {
	if ev.ID == "" || ev.Name == "" {
		return eris.New("sqlite: event id and name are required")
	}
	attrs, err := encodeAttributes(ev.Attributes)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO analytics_events (id, name, attributes, recorded_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		ev.ID, ev.Name, attrs, ev.RecordedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: record event")
}

func (s *SQLiteStore) ListEvents(ctx context.Context, filter EventFilter) ([]model.AnalyticsEvent, error) {
	query := `SELECT id, name, attributes, recorded_at FROM analytics_events WHERE 1=1`
	var args []any

	if filter.Name != "" {
		query += ` AND name = ?`
		args = append(args, filter.Name)
	}
	if !filter.Since.IsZero() {
		query += ` AND recorded_at >= ?`
		args = append(args, filter.Since.UTC())
	}
	query += ` ORDER BY recorded_at DESC, id LIMIT ?`
	args = append(args, filter.limit())
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list events")
	}
	defer rows.Close() //nolint:errcheck

	var events []model.AnalyticsEvent
	for rows.Next() {
		var ev model.AnalyticsEvent
		var attrs string
		if err := rows.Scan(&ev.ID, &ev.Name, &attrs, &ev.RecordedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan event")
		}
		if ev.Attributes, err = decodeAttributes([]byte(attrs)); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, eris.Wrap(rows.Err(), "sqlite: list events iterate")
}

func (s *SQLiteStore) CountEvents(ctx context.Context, since time.Time) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, COUNT(*) FROM analytics_events WHERE recorded_at >= ? GROUP BY name`,
		since.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count events")
	}
	defer rows.Close() //nolint:errcheck

	counts := make(map[string]int)
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan count")
		}
		counts[name] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: count events iterate")
}
