// Package storage is the sqlite-backed persistence layer implementing the
// narrow repository interface the Run Controller depends on.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure-Go sqlite driver
)

// DB wraps a sqlite connection configured for a single-writer, many-reader
// embedded workload: WAL journaling, normal sync, and a generous cache.
type DB struct {
	conn *sql.DB
}

// Open creates (if needed) and opens the sqlite database at path.
func Open(path string) (*DB, error) {
	if path != ":memory:" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve db path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
		path = absPath
	}

	connStr := path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=foreign_keys(1)" +
		"&_pragma=cache_size(-64000)"

	conn, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the underlying connection.
func (d *DB) Close() error { return d.conn.Close() }

func (d *DB) migrate(ctx context.Context) error {
	_, err := d.conn.ExecContext(ctx, schema)
	return err
}

const schema = `
CREATE TABLE IF NOT EXISTS ips_configs (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	user_id TEXT NOT NULL,
	factors_json TEXT NOT NULL,
	strategies_json TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	mode TEXT NOT NULL,
	ips_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	status TEXT NOT NULL,
	initial_symbols_json TEXT NOT NULL,
	started_at TEXT NOT NULL,
	finished_at TEXT,
	error_kind TEXT,
	error_message TEXT
);

CREATE TABLE IF NOT EXISTS run_errors (
	run_id TEXT NOT NULL REFERENCES runs(id),
	kind TEXT NOT NULL,
	symbol TEXT,
	stage TEXT NOT NULL,
	message TEXT NOT NULL,
	at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS raw_option_snapshots (
	run_id TEXT NOT NULL REFERENCES runs(id),
	symbol TEXT NOT NULL,
	as_of TEXT NOT NULL,
	PRIMARY KEY (run_id, symbol)
);

CREATE TABLE IF NOT EXISTS option_contracts (
	run_id TEXT NOT NULL REFERENCES runs(id),
	symbol TEXT NOT NULL,
	expiry TEXT NOT NULL,
	strike REAL NOT NULL,
	type TEXT NOT NULL,
	bid REAL, ask REAL, last REAL,
	iv REAL, delta REAL, gamma REAL, theta REAL, vega REAL,
	open_interest INTEGER, volume INTEGER,
	as_of TEXT
);

CREATE TABLE IF NOT EXISTS candidates (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL REFERENCES runs(id),
	symbol TEXT NOT NULL,
	strategy TEXT NOT NULL,
	entry_mid REAL, max_profit REAL, max_loss REAL, breakeven REAL, est_pop REAL,
	yield_score REAL, ips_score REAL, composite REAL, tier TEXT,
	sector TEXT,
	detailed_analysis_json TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS decisions (
	run_id TEXT NOT NULL REFERENCES runs(id),
	checkpoint_id TEXT NOT NULL,
	decision TEXT NOT NULL,
	reasoning TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	payload_json TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tool_calls (
	run_id TEXT NOT NULL,
	provider TEXT NOT NULL,
	operation TEXT NOT NULL,
	symbol TEXT,
	latency_ms INTEGER,
	attempt INTEGER,
	outcome TEXT,
	err TEXT,
	at TEXT NOT NULL
);
`
