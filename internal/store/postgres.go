package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/location-cli/internal/db"
	"github.com/sells-group/location-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 4
	pgxCfg.MinConns = 1
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			pgxCfg.MaxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			pgxCfg.MinConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return NewPostgresWithPool(pool), nil
}

// NewPostgresWithPool wraps an existing pool.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS analytics_events (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	attributes  JSONB NOT NULL DEFAULT '{}'::jsonb,
	recorded_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analytics_events_name ON analytics_events(name);
CREATE INDEX IF NOT EXISTS idx_analytics_events_recorded_at ON analytics_events(recorded_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) RecordEvent(ctx context.Context, ev model.AnalyticsEvent) error {
	if ev.ID == "" || ev.Name == "" {
		return eris.New("postgres: event id and name are required")
	}
	attrs, err := encodeAttributes(ev.Attributes)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO analytics_events (id, name, attributes, recorded_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO NOTHING`,
		ev.ID, ev.Name, attrs, ev.RecordedAt.UTC(),
	)
	return eris.Wrap(err, "postgres: record event")
}

func (s *PostgresStore) ListEvents(ctx context.Context, filter EventFilter) ([]model.AnalyticsEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, attributes, recorded_at FROM analytics_events
		 WHERE ($1 = '' OR name = $1) AND recorded_at >= $2
		 ORDER BY recorded_at DESC, id LIMIT $3 OFFSET $4`,
		filter.Name, filter.Since.UTC(), filter.limit(), max(filter.Offset, 0),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list events")
	}
	defer rows.Close()

	var events []model.AnalyticsEvent
	for rows.Next() {
		var ev model.AnalyticsEvent
		var attrs []byte
		if err := rows.Scan(&ev.ID, &ev.Name, &attrs, &ev.RecordedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan event")
		}
		if ev.Attributes, err = decodeAttributes(attrs); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, eris.Wrap(rows.Err(), "postgres: list events iterate")
}

func (s *PostgresStore) CountEvents(ctx context.Context, since time.Time) (map[string]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name, COUNT(*) FROM analytics_events WHERE recorded_at >= $1 GROUP BY name`,
		since.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count events")
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var name string
		var n int64
		if err := rows.Scan(&name, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan count")
		}
		counts[name] = int(n)
	}
	return counts, eris.Wrap(rows.Err(), "postgres: count events iterate")
}

var eventColumns = []string{"id", "name", "attributes", "recorded_at"}

// ImportEvents bulk-loads events with COPY. Used to push a local SQLite
// buffer to the shared warehouse; ids must not already exist.
func (s *PostgresStore) ImportEvents(ctx context.Context, events []model.AnalyticsEvent) (int64, error) {
	rows := make([][]any, 0, len(events))
	for _, ev := range events {
		attrs, err := encodeAttributes(ev.Attributes)
		if err != nil {
			return 0, err
		}
		rows = append(rows, []any{ev.ID, ev.Name, attrs, ev.RecordedAt.UTC()})
	}
	n, err := db.CopyRows(ctx, s.pool, "analytics_events", eventColumns, rows)
	return n, eris.Wrap(err, "postgres: import events")
}
