// Package queue manages the outbound mutation queue that bridges local
// record writes to the network-facing sync engine.
//
// Every local write appends one mutation record in the same transaction,
// so the store and the queue never diverge. Records are drained in FIFO
// order, marked consumed when their remote call succeeds, and kept around
// for inspection until an explicit purge.
package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lokigod69/sprout/internal/schema"
	"github.com/lokigod69/sprout/internal/store"
)

// Manager provides append, scan, and acknowledgment operations over the
// mutation_queue table. Every operation is a self-contained statement;
// nothing relies on in-memory state staying valid between calls.
type Manager struct {
	db *sql.DB
}

// New creates a queue manager over the store's database connection.
//
// Example:
//
//	st, _ := store.Open(".sprout/sprout.db")
//	mgr := queue.New(st.RawDB())
func New(db *sql.DB) *Manager {
	return &Manager{db: db}
}

// Enqueue appends a mutation record and returns its assigned id.
//
// ex must be the transaction of the record write this mutation
// accompanies (a *store.Tx), so both commit or neither does. Payload may
// be nil for delete operations, which need only the entity id.
func (m *Manager) Enqueue(ctx context.Context, ex store.Execer, op schema.Op, entityID string, payload any) (int64, error) {
	if !op.IsValid() {
		return 0, fmt.Errorf("invalid op: %q", op)
	}
	if entityID == "" {
		return 0, fmt.Errorf("entity_id is required")
	}

	var raw []byte
	if payload != nil {
		var err error
		raw, err = schema.MarshalPayload(payload)
		if err != nil {
			return 0, err
		}
	}

	query := `
	INSERT INTO mutation_queue (op, entity_id, payload, created_at)
	VALUES (?, ?, ?, ?)
	`

	var payloadArg any
	if raw != nil {
		payloadArg = string(raw)
	}

	res, err := ex.ExecContext(ctx, query,
		string(op),
		entityID,
		payloadArg,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue mutation: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read mutation id: %w", err)
	}
	return id, nil
}

// Pending returns unconsumed mutation records in FIFO order (ascending
// by id). The result is a snapshot; records enqueued after the call are
// not included.
func (m *Manager) Pending(ctx context.Context) ([]*schema.Mutation, error) {
	query := `
	SELECT id, op, entity_id, payload, created_at, consumed, retries, last_error
	FROM mutation_queue
	WHERE consumed = 0
	ORDER BY id ASC
	`

	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending mutations: %w", err)
	}
	defer rows.Close()

	return scanMutations(rows)
}

// MarkConsumed marks a mutation record as delivered. Idempotent: marking
// an already-consumed record again is a no-op, not an error.
func (m *Manager) MarkConsumed(ctx context.Context, id int64) error {
	if _, err := m.db.ExecContext(ctx, "UPDATE mutation_queue SET consumed = 1 WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to mark mutation %d consumed: %w", id, err)
	}
	return nil
}

// RecordFailure increments the retry counter for a record and stores the
// failure message. Returns the new retry count.
func (m *Manager) RecordFailure(ctx context.Context, id int64, msg string) (int, error) {
	if _, err := m.db.ExecContext(ctx,
		"UPDATE mutation_queue SET retries = retries + 1, last_error = ? WHERE id = ?",
		msg, id,
	); err != nil {
		return 0, fmt.Errorf("failed to record failure for mutation %d: %w", id, err)
	}

	var retries int
	if err := m.db.QueryRowContext(ctx,
		"SELECT retries FROM mutation_queue WHERE id = ?", id,
	).Scan(&retries); err != nil {
		return 0, fmt.Errorf("failed to read retry count for mutation %d: %w", id, err)
	}
	return retries, nil
}

// PurgeConsumed garbage-collects consumed records created before the
// retention window. Unconsumed records are never touched. Returns the
// number of purged records.
func (m *Manager) PurgeConsumed(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339Nano)

	res, err := m.db.ExecContext(ctx,
		"DELETE FROM mutation_queue WHERE consumed = 1 AND created_at < ?", cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to purge consumed mutations: %w", err)
	}

	purged, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read purge count: %w", err)
	}
	return purged, nil
}

// Counts returns the number of pending and consumed records.
func (m *Manager) Counts(ctx context.Context) (pending, consumed int, err error) {
	err = m.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FILTER (WHERE consumed = 0), COUNT(*) FILTER (WHERE consumed = 1) FROM mutation_queue",
	).Scan(&pending, &consumed)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count mutations: %w", err)
	}
	return pending, consumed, nil
}

// OldestPendingAge returns how long the oldest unconsumed record has been
// waiting. ok is false when the queue is empty.
func (m *Manager) OldestPendingAge(ctx context.Context) (age time.Duration, ok bool, err error) {
	var createdAt string
	err = m.db.QueryRowContext(ctx,
		"SELECT created_at FROM mutation_queue WHERE consumed = 0 ORDER BY id ASC LIMIT 1",
	).Scan(&createdAt)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read oldest pending mutation: %w", err)
	}

	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return 0, false, fmt.Errorf("failed to parse created_at: %w", err)
	}
	return time.Since(t), true, nil
}

// scanMutations is a helper to scan mutation records from query results.
func scanMutations(rows *sql.Rows) ([]*schema.Mutation, error) {
	var muts []*schema.Mutation

	for rows.Next() {
		var mut schema.Mutation
		var op, createdAt string
		var payload, lastError sql.NullString
		var consumed int

		err := rows.Scan(&mut.ID, &op, &mut.EntityID, &payload, &createdAt, &consumed, &mut.Retries, &lastError)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mutation: %w", err)
		}

		mut.Op = schema.Op(op)
		if payload.Valid {
			mut.Payload = []byte(payload.String)
		}
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			mut.CreatedAt = t
		}
		mut.Consumed = consumed != 0
		mut.LastError = lastError.String

		muts = append(muts, &mut)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating mutations: %w", err)
	}
	return muts, nil
}
