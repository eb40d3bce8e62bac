package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/tracefold/tracefold/internal/model"
	"github.com/tracefold/tracefold/internal/window"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id    TEXT PRIMARY KEY,
	opened_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS events (
	run_id       TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
	ts           INTEGER NOT NULL,
	event_id     TEXT NOT NULL,
	event_name   TEXT NOT NULL,
	measurements TEXT,
	metadata     TEXT,
	latency_ms   REAL,
	cost_usd     REAL,
	success      INTEGER,
	PRIMARY KEY (run_id, ts, event_id)
) WITHOUT ROWID;
`

const sqliteEventColumns = "event_id, run_id, event_name, ts, measurements, metadata, latency_ms, cost_usd, success"

// SQLite is the file-backed EventStore. The (run_id, ts, event_id)
// primary key makes the table's native order the container order, so
// every read is a single index range scan with no client-side sort.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() int64
}

// SQLiteOption configures a SQLite store.
type SQLiteOption func(*SQLite)

// WithSQLiteNow overrides the wall clock used by trailing-window
// queries, for tests.
func WithSQLiteNow(now func() int64) SQLiteOption {
	return func(s *SQLite) { s.now = now }
}

// NewSQLite opens (creating if necessary) the database at path and
// ensures the schema exists.
func NewSQLite(ctx context.Context, path string, logger *slog.Logger, opts ...SQLiteOption) (*SQLite, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite %s: %w", path, err)
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY churn under concurrent producers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply sqlite schema: %w", err)
	}

	s := &SQLite{
		db:     db,
		logger: logger,
		now:    func() int64 { return time.Now().UnixMicro() },
	}
	for _, fn := range opts {
		fn(s)
	}
	return s, nil
}

// Open allocates a container row for the run.
func (s *SQLite) Open(ctx context.Context, runID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, opened_at) VALUES (?, ?) ON CONFLICT DO NOTHING`,
		runID.String(), s.now(),
	)
	if err != nil {
		return fmt.Errorf("store: open run %s: %w", runID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: open run %s: %w", runID, err)
	}
	if n == 0 {
		return ErrRunExists
	}
	return nil
}

// Insert adds one record. Ordering is the table's primary key, so
// out-of-order arrival needs no special handling here. The existence
// check and the insert share a transaction; a Delete racing in between
// cannot leave an orphan row, and the schema FK backstops that with
// ON DELETE CASCADE.
func (s *SQLite) Insert(ctx context.Context, runID uuid.UUID, event model.EventRecord) error {
	measurements, metadata, err := encodePayload(event)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: insert event %s: %w", event.EventID, err)
	}
	defer tx.Rollback() //nolint:errcheck

	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM runs WHERE run_id = ?)`, runID.String(),
	).Scan(&exists); err != nil {
		return fmt.Errorf("store: check run %s: %w", runID, err)
	}
	if !exists {
		return ErrRunNotFound
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO events (run_id, ts, event_id, event_name, measurements, metadata, latency_ms, cost_usd, success)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID.String(), event.Timestamp, event.EventID, event.EventName,
		measurements, metadata, event.LatencyMs, event.CostUSD, event.Success,
	); err != nil {
		return fmt.Errorf("store: insert event %s: %w", event.EventID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: insert event %s: %w", event.EventID, err)
	}
	return nil
}

// GetAll returns every record for the run in ascending key order.
func (s *SQLite) GetAll(ctx context.Context, runID uuid.UUID) ([]model.EventRecord, error) {
	return s.selectEvents(ctx,
		`SELECT `+sqliteEventColumns+` FROM events WHERE run_id = ? ORDER BY ts, event_id`,
		runID.String(),
	)
}

// Query pushes the name, success, and timestamp-range filters into SQL;
// the open-ended Fields filters are applied in Go over the narrowed
// rows.
func (s *SQLite) Query(ctx context.Context, runID uuid.UUID, f model.Filters) ([]model.EventRecord, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + sqliteEventColumns + ` FROM events WHERE run_id = ?`)
	args := []any{runID.String()}

	if f.EventName != nil {
		sb.WriteString(` AND event_name = ?`)
		args = append(args, *f.EventName)
	}
	if f.Success != nil {
		sb.WriteString(` AND success = ?`)
		args = append(args, *f.Success)
	}
	if f.From != nil {
		sb.WriteString(` AND ts >= ?`)
		args = append(args, *f.From)
	}
	if f.To != nil {
		sb.WriteString(` AND ts <= ?`)
		args = append(args, *f.To)
	}
	sb.WriteString(` ORDER BY ts, event_id`)

	events, err := s.selectEvents(ctx, sb.String(), args...)
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
func (s *SQLite) QueryWindow(ctx context.Context, runID uuid.UUID, q model.WindowQuery, pred Predicate) ([]model.EventRecord, error) {
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
		now := s.now()
		selected, err = s.selectEvents(ctx,
			`SELECT `+sqliteEventColumns+` FROM events WHERE run_id = ? AND ts >= ? AND ts <= ? ORDER BY ts, event_id`,
			runID.String(), now-q.Last.N*unit, now,
		)
	case q.LastN != nil:
		if *q.LastN <= 0 {
			return nil, nil
		}
		// The tail of the container is the head of the descending scan.
		selected, err = s.selectEvents(ctx,
			`SELECT `+sqliteEventColumns+` FROM events WHERE run_id = ? ORDER BY ts DESC, event_id DESC LIMIT ?`,
			runID.String(), *q.LastN,
		)
		for i, j := 0, len(selected)-1; i < j; i, j = i+1, j-1 {
			selected[i], selected[j] = selected[j], selected[i]
		}
	case q.Range != nil:
		if q.Range.End < q.Range.Start {
			return nil, nil
		}
		selected, err = s.selectEvents(ctx,
			`SELECT `+sqliteEventColumns+` FROM events WHERE run_id = ? AND ts >= ? AND ts <= ? ORDER BY ts, event_id`,
			runID.String(), q.Range.Start, q.Range.End,
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
func (s *SQLite) WindowedMetrics(ctx context.Context, runID uuid.UUID, windowSize, stepSize int64) ([]model.WindowResult, error) {
	events, err := s.GetAll(ctx, runID)
	if err != nil {
		return nil, err
	}
	return window.Compute(events, windowSize, stepSize), nil
}

// Delete removes the run's events and container row. Idempotent.
func (s *SQLite) Delete(ctx context.Context, runID uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: delete run %s: %w", runID, err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE run_id = ?`, runID.String()); err != nil {
		return fmt.Errorf("store: delete events for %s: %w", runID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, runID.String()); err != nil {
		return fmt.Errorf("store: delete run row %s: %w", runID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: delete run %s: %w", runID, err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *SQLite) Close(context.Context) error {
	return s.db.Close()
}

func (s *SQLite) selectEvents(ctx context.Context, query string, args ...any) ([]model.EventRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query events: %w", err)
	}
	defer rows.Close()

	var events []model.EventRecord
	for rows.Next() {
		e, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// scanEvent decodes one row. The scan function abstraction lets the
// sqlite and postgres backends share the decode path.
func scanEvent(scan func(...any) error) (model.EventRecord, error) {
	var (
		e            model.EventRecord
		runID        string
		measurements sql.NullString
		metadata     sql.NullString
		latency      sql.NullFloat64
		cost         sql.NullFloat64
		success      sql.NullBool
	)
	if err := scan(&e.EventID, &runID, &e.EventName, &e.Timestamp,
		&measurements, &metadata, &latency, &cost, &success); err != nil {
		return model.EventRecord{}, fmt.Errorf("store: scan event: %w", err)
	}

	id, err := uuid.Parse(runID)
	if err != nil {
		return model.EventRecord{}, fmt.Errorf("store: parse run id %q: %w", runID, err)
	}
	e.RunID = id

	if measurements.Valid && measurements.String != "" {
		if err := json.Unmarshal([]byte(measurements.String), &e.Measurements); err != nil {
			return model.EventRecord{}, fmt.Errorf("store: decode measurements: %w", err)
		}
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &e.Metadata); err != nil {
			return model.EventRecord{}, fmt.Errorf("store: decode metadata: %w", err)
		}
	}
	if latency.Valid {
		e.LatencyMs = &latency.Float64
	}
	if cost.Valid {
		e.CostUSD = &cost.Float64
	}
	if success.Valid {
		e.Success = &success.Bool
	}
	return e, nil
}

// encodePayload serializes the open-ended maps as JSON text columns.
func encodePayload(e model.EventRecord) (measurements, metadata *string, err error) {
	if len(e.Measurements) > 0 {
		b, err := json.Marshal(e.Measurements)
		if err != nil {
			return nil, nil, fmt.Errorf("store: encode measurements: %w", err)
		}
		s := string(b)
		measurements = &s
	}
	if len(e.Metadata) > 0 {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return nil, nil, fmt.Errorf("store: encode metadata: %w", err)
		}
		s := string(b)
		metadata = &s
	}
	return measurements, metadata, nil
}
