package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tracefold/tracefold/internal/model"
	"github.com/tracefold/tracefold/internal/window"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id    UUID PRIMARY KEY,
	opened_at BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS events (
	run_id       UUID NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
	ts           BIGINT NOT NULL,
	event_id     TEXT NOT NULL,
	event_name   TEXT NOT NULL,
	measurements JSONB,
	metadata     JSONB,
	latency_ms   DOUBLE PRECISION,
	cost_usd     DOUBLE PRECISION,
	success      BOOLEAN,
	PRIMARY KEY (run_id, ts, event_id)
);
`

const pgEventColumns = "event_id, run_id, event_name, ts, measurements, metadata, latency_ms, cost_usd, success"

// Postgres is the pgx-backed EventStore for deployments where several
// collector instances share one history. The (run_id, ts, event_id)
// primary key gives the same container order as the other backends.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	now    func() int64
}

// PostgresOption configures a Postgres store.
type PostgresOption func(*Postgres)

// WithPostgresNow overrides the wall clock used by trailing-window
// queries, for tests.
func WithPostgresNow(now func() int64) PostgresOption {
	return func(p *Postgres) { p.now = now }
}

// NewPostgres connects to the database at dsn, verifies connectivity,
// and ensures the schema exists.
func NewPostgres(ctx context.Context, dsn string, logger *slog.Logger, opts ...PostgresOption) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: apply postgres schema: %w", err)
	}

	p := &Postgres{
		pool:   pool,
		logger: logger,
		now:    func() int64 { return time.Now().UnixMicro() },
	}
	for _, fn := range opts {
		fn(p)
	}
	return p, nil
}

// Open allocates a container row for the run.
func (p *Postgres) Open(ctx context.Context, runID uuid.UUID) error {
	tag, err := p.pool.Exec(ctx,
		`INSERT INTO runs (run_id, opened_at) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		runID, p.now(),
	)
	if err != nil {
		return fmt.Errorf("store: open run %s: %w", runID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRunExists
	}
	return nil
}

// Insert adds one record. The foreign key surfaces a missing container
// as ErrRunNotFound without a separate existence check.
func (p *Postgres) Insert(ctx context.Context, runID uuid.UUID, event model.EventRecord) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO events (run_id, ts, event_id, event_name, measurements, metadata, latency_ms, cost_usd, success)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		runID, event.Timestamp, event.EventID, event.EventName,
		event.Measurements, event.Metadata, event.LatencyMs, event.CostUSD, event.Success,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" { // foreign_key_violation
			return ErrRunNotFound
		}
		return fmt.Errorf("store: insert event %s: %w", event.EventID, err)
	}
	return nil
}

// GetAll returns every record for the run in ascending key order.
func (p *Postgres) GetAll(ctx context.Context, runID uuid.UUID) ([]model.EventRecord, error) {
	return p.selectEvents(ctx,
		`SELECT `+pgEventColumns+` FROM events WHERE run_id = $1 ORDER BY ts, event_id`,
		runID,
	)
}

// Query pushes the name, success, and timestamp-range filters into SQL;
// Fields filters are applied in Go over the narrowed rows.
func (p *Postgres) Query(ctx context.Context, runID uuid.UUID, f model.Filters) ([]model.EventRecord, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + pgEventColumns + ` FROM events WHERE run_id = $1`)
	args := []any{runID}

	if f.EventName != nil {
		args = append(args, *f.EventName)
		fmt.Fprintf(&sb, ` AND event_name = $%d`, len(args))
	}
	if f.Success != nil {
		args = append(args, *f.Success)
		fmt.Fprintf(&sb, ` AND success = $%d`, len(args))
	}
	if f.From != nil {
		args = append(args, *f.From)
		fmt.Fprintf(&sb, ` AND ts >= $%d`, len(args))
	}
	if f.To != nil {
		args = append(args, *f.To)
		fmt.Fprintf(&sb, ` AND ts <= $%d`, len(args))
	}
	sb.WriteString(` ORDER BY ts, event_id`)

	events, err := p.selectEvents(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	if len(f.Fields) == 0 {
		return events, nil
	}
	out := events[:0]
	for _, e := range events {
		if Matches(e, f) {
			out = append(out, e)
		}
	}
	return out, nil
}

// QueryWindow cuts the window in SQL, then applies the predicate.
func (p *Postgres) QueryWindow(ctx context.Context, runID uuid.UUID, q model.WindowQuery, pred Predicate) ([]model.EventRecord, error) {
	var (
		selected []model.EventRecord
		err      error
	)
	switch {
	case q.Last != nil:
		unit := q.Last.Unit.Micros()
		if q.Last.N <= 0 || unit == 0 {
			return nil, nil
		}
		now := p.now()
		selected, err = p.selectEvents(ctx,
			`SELECT `+pgEventColumns+` FROM events WHERE run_id = $1 AND ts >= $2 AND ts <= $3 ORDER BY ts, event_id`,
			runID, now-q.Last.N*unit, now,
		)
	case q.LastN != nil:
		if *q.LastN <= 0 {
			return nil, nil
		}
		selected, err = p.selectEvents(ctx,
			`SELECT `+pgEventColumns+` FROM events WHERE run_id = $1 ORDER BY ts DESC, event_id DESC LIMIT $2`,
			runID, *q.LastN,
		)
		for i, j := 0, len(selected)-1; i < j; i, j = i+1, j-1 {
			selected[i], selected[j] = selected[j], selected[i]
		}
	case q.Range != nil:
		if q.Range.End < q.Range.Start {
			return nil, nil
		}
		selected, err = p.selectEvents(ctx,
			`SELECT `+pgEventColumns+` FROM events WHERE run_id = $1 AND ts >= $2 AND ts <= $3 ORDER BY ts, event_id`,
			runID, q.Range.Start, q.Range.End,
		)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if pred == nil {
		return selected, nil
	}
	out := make([]model.EventRecord, 0, len(selected))
	for _, e := range selected {
		if pred(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

// WindowedMetrics computes sliding-window aggregates over the full
// history.
func (p *Postgres) WindowedMetrics(ctx context.Context, runID uuid.UUID, windowSize, stepSize int64) ([]model.WindowResult, error) {
	events, err := p.GetAll(ctx, runID)
	if err != nil {
		return nil, err
	}
	return window.Compute(events, windowSize, stepSize), nil
}

// Delete removes the run's container; events cascade. Idempotent.
func (p *Postgres) Delete(ctx context.Context, runID uuid.UUID) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM runs WHERE run_id = $1`, runID); err != nil {
		return fmt.Errorf("store: delete run %s: %w", runID, err)
	}
	return nil
}

// Close shuts down the connection pool.
func (p *Postgres) Close(context.Context) error {
	p.pool.Close()
	return nil
}

// Ping checks connectivity to the database.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) selectEvents(ctx context.Context, query string, args ...any) ([]model.EventRecord, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query events: %w", err)
	}
	defer rows.Close()

	var events []model.EventRecord
	for rows.Next() {
		e, err := scanPgEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// scanPgEvent decodes one row. pgx maps JSONB columns onto the Go maps
// directly, so unlike the sqlite backend no manual JSON step is needed.
func scanPgEvent(rows pgx.Rows) (model.EventRecord, error) {
	var e model.EventRecord
	if err := rows.Scan(&e.EventID, &e.RunID, &e.EventName, &e.Timestamp,
		&e.Measurements, &e.Metadata, &e.LatencyMs, &e.CostUSD, &e.Success); err != nil {
		return model.EventRecord{}, fmt.Errorf("store: scan event: %w", err)
	}
	return e, nil
}
