// Package store provides the embedded SQLite database that backs the
// local-first habit tracker.
//
// The store is the single source of truth for what the CLI reads: goals,
// seeds, daily logs, and integration state, plus the append-only mutation
// queue drained by the sync engine. It runs in embedded mode using the
// ncruces sqlite3 driver with WAL for concurrent reads.
//
// Workflow:
//  1. A command writes a record and its queue entry in one transaction
//  2. The sync engine drains the queue against the remote backend
//  3. Consumed queue records stay visible until an explicit purge
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Store wraps the SQLite connection with habit-tracker functionality.
type Store struct {
	conn *sql.DB
	path string
}

// Execer is the subset of *sql.DB and *sql.Tx the mutation queue needs
// to append records inside a caller-owned transaction.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// dbtx is satisfied by both *sql.DB and *sql.Tx so record operations can
// run standalone or inside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open creates a new database connection at the specified path.
//
// The database is opened in embedded mode with WAL for concurrent reads.
// If the database doesn't exist, it is created; call InitSchema before
// first use. The caller MUST call Close() when done.
//
// Example:
//
//	st, err := store.Open(".sprout/sprout.db")
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s", path)
	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	st := &Store{
		conn: conn,
		path: path,
	}

	// Enable WAL mode for concurrent reads
	if _, err := st.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := st.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := st.conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return st, nil
}

// RawDB returns the underlying sql.DB connection.
// This is useful for integrating with other components that expect *sql.DB,
// such as the mutation queue manager.
func (s *Store) RawDB() *sql.DB {
	return s.conn
}

// Path returns the database file path the store was opened with.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection.
// Performs a WAL checkpoint to ensure all changes are persisted.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	// Checkpoint WAL before closing
	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.conn = nil
	return nil
}

// InitSchema creates the database schema if it doesn't exist.
//
// This creates the record tables and the mutation queue along with the
// indexes used by list queries and the drain scan. Idempotent - safe to
// call multiple times.
func (s *Store) InitSchema() error {
	return s.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the database schema with context support.
func (s *Store) InitSchemaContext(ctx context.Context) error {
	schema := `
	-- Record tables
	CREATE TABLE IF NOT EXISTS goals (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		identity TEXT,
		persona TEXT,
		status TEXT NOT NULL DEFAULT 'active',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS seeds (
		id TEXT PRIMARY KEY,
		goal_id TEXT NOT NULL,
		title TEXT NOT NULL,
		anchor TEXT,
		action TEXT,
		status TEXT NOT NULL DEFAULT 'active',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		FOREIGN KEY (goal_id) REFERENCES goals(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS daily_logs (
		id TEXT PRIMARY KEY,
		seed_id TEXT NOT NULL,
		date TEXT NOT NULL,  -- local date, YYYY-MM-DD
		status TEXT NOT NULL,  -- done, skip
		note TEXT,
		created_at TEXT NOT NULL,
		UNIQUE (seed_id, date),
		FOREIGN KEY (seed_id) REFERENCES seeds(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS integration_state (
		id TEXT PRIMARY KEY,
		provider TEXT NOT NULL UNIQUE,
		enabled INTEGER NOT NULL DEFAULT 0,
		settings TEXT,  -- provider-specific JSON
		updated_at TEXT NOT NULL
	);

	-- Outbound mutation queue (append-only; consumed rows kept until purge)
	CREATE TABLE IF NOT EXISTS mutation_queue (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		op TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		payload TEXT,  -- full intended state, JSON
		created_at TEXT NOT NULL,
		consumed INTEGER NOT NULL DEFAULT 0,
		retries INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	);

	-- Indexes for list queries
	CREATE INDEX IF NOT EXISTS idx_goals_status ON goals(status);
	CREATE INDEX IF NOT EXISTS idx_seeds_goal ON seeds(goal_id);
	CREATE INDEX IF NOT EXISTS idx_seeds_status ON seeds(status);
	CREATE INDEX IF NOT EXISTS idx_logs_seed_date ON daily_logs(seed_id, date);
	CREATE INDEX IF NOT EXISTS idx_logs_date ON daily_logs(date);

	-- Drain scan: unconsumed records in FIFO order
	CREATE INDEX IF NOT EXISTS idx_queue_pending ON mutation_queue(consumed, id);
	CREATE INDEX IF NOT EXISTS idx_queue_entity ON mutation_queue(entity_id);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// Tx runs fn inside a transaction scoped over every record table and the
// mutation queue. The transaction commits only if fn returns nil;
// any error (or panic unwinding) rolls it back.
//
// A record write and its queue entry must share one Tx call so the two
// never diverge - no domain write without a queue entry, and no orphaned
// queue entry if the process dies between the two writes.
func (s *Store) Tx(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Tx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Tx exposes record writes inside an open transaction. It also satisfies
// Execer so the mutation queue can append in the same transaction.
type Tx struct {
	tx *sql.Tx
}

// ExecContext implements Execer against the open transaction.
func (t *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, query, args...)
}

// ClearAll destructively wipes every record table and the mutation queue
// in a single transaction. Used only by the explicit reset flow; either
// everything is cleared or nothing is.
func (s *Store) ClearAll(ctx context.Context) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Children before parents to satisfy foreign keys.
	tables := []string{"daily_logs", "seeds", "goals", "integration_state", "mutation_queue"}
	for _, table := range tables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit clear: %w", err)
	}
	return nil
}
