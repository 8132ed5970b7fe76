package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// History is an append-only audit log of import and benchmark activity,
// the one persistence surface spec.md leaves unspecified (SPEC_FULL.md §3):
// every POST /api/nodes outcome, queryable by an operator via GET
// /api/history, and benchmark summaries written through RecordBenchmark.
// GET /api/history serves the imports table only; nothing in the runtime
// calls RecordBenchmark.
//
// Connection setup mirrors graph/store/sqlite.go's SQLiteStore: WAL mode
// for concurrent reads, a single writer connection, and idempotent
// CREATE TABLE IF NOT EXISTS migrations run once at open.
type History struct {
	db *sql.DB
}

// OpenHistory opens (and migrates, if needed) the sqlite database at path.
// Pass ":memory:" for an ephemeral, test-only history.
func OpenHistory(path string) (*History, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: opening history database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("store: %s: %w", pragma, err)
		}
	}

	h := &History{db: db}
	if err := h.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return h, nil
}

func (h *History) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS imports (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TIMESTAMP NOT NULL,
			ok INTEGER NOT NULL,
			message TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_imports_ts ON imports(ts)`,
		`CREATE TABLE IF NOT EXISTS benchmarks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			ts TIMESTAMP NOT NULL,
			payload TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_benchmarks_run_id ON benchmarks(run_id)`,
	}
	for _, stmt := range stmts {
		if _, err := h.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: migrating history schema: %w", err)
		}
	}
	return nil
}

// Close releases the underlying database connection.
func (h *History) Close() error { return h.db.Close() }

// ImportRecord is one row of the imports audit log.
type ImportRecord struct {
	ID      int64
	Time    time.Time
	OK      bool
	Message string
}

// RecordImport appends one row describing a nodetree import attempt's
// outcome, called by the POST /api/nodes handler once per request
// regardless of result. Imports driven by a profile load are not recorded.
func (h *History) RecordImport(ctx context.Context, ok bool, message string) error {
	_, err := h.db.ExecContext(ctx,
		`INSERT INTO imports (ts, ok, message) VALUES (?, ?, ?)`,
		time.Now().UTC(), boolToInt(ok), message,
	)
	if err != nil {
		return fmt.Errorf("store: recording import: %w", err)
	}
	return nil
}

// RecentImports returns up to limit of the most recent import records,
// newest first.
func (h *History) RecentImports(ctx context.Context, limit int) ([]ImportRecord, error) {
	rows, err := h.db.QueryContext(ctx,
		`SELECT id, ts, ok, message FROM imports ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: querying imports: %w", err)
	}
	defer rows.Close()

	var out []ImportRecord
	for rows.Next() {
		var rec ImportRecord
		var ok int
		if err := rows.Scan(&rec.ID, &rec.Time, &ok, &rec.Message); err != nil {
			return nil, fmt.Errorf("store: scanning import row: %w", err)
		}
		rec.OK = ok != 0
		out = append(out, rec)
	}
	return out, rows.Err()
}

// RecordBenchmark appends one serialized benchmark summary for runID.
func (h *History) RecordBenchmark(ctx context.Context, runID string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("store: marshaling benchmark payload: %w", err)
	}
	_, err = h.db.ExecContext(ctx,
		`INSERT INTO benchmarks (run_id, ts, payload) VALUES (?, ?, ?)`,
		runID, time.Now().UTC(), string(data),
	)
	if err != nil {
		return fmt.Errorf("store: recording benchmark: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
