package queue

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/lokigod69/sprout/internal/schema"
	"github.com/lokigod69/sprout/internal/store"
)

// setupTestQueue opens a store and queue manager over a temp database
func setupTestQueue(t *testing.T) (*store.Store, *Manager) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	if err := st.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	return st, New(st.RawDB())
}

// enqueueGoal writes a goal and its queue record in one transaction
func enqueueGoal(t *testing.T, st *store.Store, mgr *Manager, op schema.Op, g *schema.Goal) int64 {
	t.Helper()
	ctx := context.Background()

	var id int64
	err := st.Tx(ctx, func(tx *store.Tx) error {
		if err := tx.PutGoal(ctx, g); err != nil {
			return err
		}
		var err error
		id, err = mgr.Enqueue(ctx, tx, op, g.ID, g)
		return err
	})
	if err != nil {
		t.Fatalf("enqueue transaction failed: %v", err)
	}
	return id
}

// TestEnqueue_FIFOOrder tests that pending records come back in insert order
func TestEnqueue_FIFOOrder(t *testing.T) {
	st, mgr := setupTestQueue(t)
	ctx := context.Background()

	g := schema.NewGoal("ordering")
	first := enqueueGoal(t, st, mgr, schema.OpCreateGoal, g)
	g.Title = "ordering v2"
	second := enqueueGoal(t, st, mgr, schema.OpUpdateGoal, g)

	pending, err := mgr.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending() failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("len(pending) = %d, want 2", len(pending))
	}
	if pending[0].ID != first || pending[1].ID != second {
		t.Errorf("order = [%d %d], want [%d %d]", pending[0].ID, pending[1].ID, first, second)
	}
	if pending[0].Op != schema.OpCreateGoal {
		t.Errorf("pending[0].Op = %q, want %q", pending[0].Op, schema.OpCreateGoal)
	}
	if pending[1].Op != schema.OpUpdateGoal {
		t.Errorf("pending[1].Op = %q, want %q", pending[1].Op, schema.OpUpdateGoal)
	}
}

// TestEnqueue_RejectsInvalidOp tests op validation
func TestEnqueue_RejectsInvalidOp(t *testing.T) {
	st, mgr := setupTestQueue(t)
	ctx := context.Background()

	err := st.Tx(ctx, func(tx *store.Tx) error {
		_, err := mgr.Enqueue(ctx, tx, schema.Op("explode_goal"), "some-id", nil)
		return err
	})
	if err == nil {
		t.Fatal("Enqueue() accepted an invalid op")
	}
}

// TestEnqueue_RollsBackWithRecordWrite tests the both-or-neither coupling
func TestEnqueue_RollsBackWithRecordWrite(t *testing.T) {
	st, mgr := setupTestQueue(t)
	ctx := context.Background()

	g := schema.NewGoal("never persisted")
	err := st.Tx(ctx, func(tx *store.Tx) error {
		if err := tx.PutGoal(ctx, g); err != nil {
			return err
		}
		if _, err := mgr.Enqueue(ctx, tx, schema.OpCreateGoal, g.ID, g); err != nil {
			return err
		}
		// Invalid op aborts the whole transaction.
		_, err := mgr.Enqueue(ctx, tx, schema.Op("bogus"), g.ID, nil)
		return err
	})
	if err == nil {
		t.Fatal("transaction should have failed")
	}

	pending, err := mgr.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending() failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("len(pending) = %d, want 0 after rollback", len(pending))
	}
	if _, err := st.GetGoalContext(ctx, g.ID); err == nil {
		t.Error("goal should not exist after rollback")
	}
}

// TestMarkConsumed_Idempotent tests that double-acknowledging is harmless
func TestMarkConsumed_Idempotent(t *testing.T) {
	st, mgr := setupTestQueue(t)
	ctx := context.Background()

	id := enqueueGoal(t, st, mgr, schema.OpCreateGoal, schema.NewGoal("ack me"))

	if err := mgr.MarkConsumed(ctx, id); err != nil {
		t.Fatalf("MarkConsumed() failed: %v", err)
	}
	if err := mgr.MarkConsumed(ctx, id); err != nil {
		t.Errorf("Second MarkConsumed() failed: %v", err)
	}

	pending, err := mgr.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending() failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("len(pending) = %d, want 0", len(pending))
	}
}

// TestRecordFailure_IncrementsRetries tests the retry counter
func TestRecordFailure_IncrementsRetries(t *testing.T) {
	st, mgr := setupTestQueue(t)
	ctx := context.Background()

	id := enqueueGoal(t, st, mgr, schema.OpCreateGoal, schema.NewGoal("flaky"))

	for want := 1; want <= 3; want++ {
		got, err := mgr.RecordFailure(ctx, id, "409 conflict")
		if err != nil {
			t.Fatalf("RecordFailure() failed: %v", err)
		}
		if got != want {
			t.Errorf("retries = %d, want %d", got, want)
		}
	}

	pending, err := mgr.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending() failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("len(pending) = %d, want 1", len(pending))
	}
	if pending[0].LastError != "409 conflict" {
		t.Errorf("LastError = %q, want %q", pending[0].LastError, "409 conflict")
	}
}

// TestPurgeConsumed_KeepsPending tests that purge never touches live records
func TestPurgeConsumed_KeepsPending(t *testing.T) {
	st, mgr := setupTestQueue(t)
	ctx := context.Background()

	g := schema.NewGoal("purge test")
	consumedID := enqueueGoal(t, st, mgr, schema.OpCreateGoal, g)
	g.Title = "purge test v2"
	enqueueGoal(t, st, mgr, schema.OpUpdateGoal, g)

	if err := mgr.MarkConsumed(ctx, consumedID); err != nil {
		t.Fatalf("MarkConsumed() failed: %v", err)
	}

	// Zero retention: everything consumed is already past the window.
	purged, err := mgr.PurgeConsumed(ctx, 0)
	if err != nil {
		t.Fatalf("PurgeConsumed() failed: %v", err)
	}
	if purged != 1 {
		t.Errorf("purged = %d, want 1", purged)
	}

	pending, consumed, err := mgr.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts() failed: %v", err)
	}
	if pending != 1 || consumed != 0 {
		t.Errorf("Counts() = (%d, %d), want (1, 0)", pending, consumed)
	}
}

// TestPurgeConsumed_RespectsRetention tests the retention window
func TestPurgeConsumed_RespectsRetention(t *testing.T) {
	st, mgr := setupTestQueue(t)
	ctx := context.Background()

	id := enqueueGoal(t, st, mgr, schema.OpCreateGoal, schema.NewGoal("fresh"))
	if err := mgr.MarkConsumed(ctx, id); err != nil {
		t.Fatalf("MarkConsumed() failed: %v", err)
	}

	// A week of retention: the record was created moments ago.
	purged, err := mgr.PurgeConsumed(ctx, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("PurgeConsumed() failed: %v", err)
	}
	if purged != 0 {
		t.Errorf("purged = %d, want 0", purged)
	}
}

// TestOldestPendingAge tests staleness measurement
func TestOldestPendingAge(t *testing.T) {
	st, mgr := setupTestQueue(t)
	ctx := context.Background()

	if _, ok, err := mgr.OldestPendingAge(ctx); err != nil || ok {
		t.Fatalf("OldestPendingAge() on empty queue = (ok=%v, err=%v), want (false, nil)", ok, err)
	}

	enqueueGoal(t, st, mgr, schema.OpCreateGoal, schema.NewGoal("waiting"))

	age, ok, err := mgr.OldestPendingAge(ctx)
	if err != nil {
		t.Fatalf("OldestPendingAge() failed: %v", err)
	}
	if !ok {
		t.Fatal("OldestPendingAge() ok = false, want true")
	}
	if age < 0 || age > time.Minute {
		t.Errorf("age = %v, want a small positive duration", age)
	}
}

// TestClearAll_WipesUnconsumedQueue tests the reset path against a live
// queue: a full wipe empties the mutation records along with the
// entities, consumed or not
func TestClearAll_WipesUnconsumedQueue(t *testing.T) {
	st, mgr := setupTestQueue(t)
	ctx := context.Background()

	g := schema.NewGoal("doomed")
	first := enqueueGoal(t, st, mgr, schema.OpCreateGoal, g)
	g.Title = "doomed v2"
	enqueueGoal(t, st, mgr, schema.OpUpdateGoal, g)
	if err := mgr.MarkConsumed(ctx, first); err != nil {
		t.Fatalf("MarkConsumed() failed: %v", err)
	}

	if err := st.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll() failed: %v", err)
	}

	pending, consumed, err := mgr.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts() failed: %v", err)
	}
	if pending != 0 || consumed != 0 {
		t.Errorf("Counts() = (%d, %d), want (0, 0)", pending, consumed)
	}
	count, err := st.GoalCount(ctx)
	if err != nil {
		t.Fatalf("GoalCount() failed: %v", err)
	}
	if count != 0 {
		t.Errorf("GoalCount() = %d, want 0", count)
	}
}

// BenchmarkEnqueue measures the cost of the coupled write+queue transaction
func BenchmarkEnqueue(b *testing.B) {
	st, err := store.Open(filepath.Join(b.TempDir(), "bench.db"))
	if err != nil {
		b.Fatalf("Open() failed: %v", err)
	}
	defer st.Close()
	if err := st.InitSchema(); err != nil {
		b.Fatalf("InitSchema() failed: %v", err)
	}
	mgr := New(st.RawDB())
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		g := schema.NewGoal("bench goal")
		err := st.Tx(ctx, func(tx *store.Tx) error {
			if err := tx.PutGoal(ctx, g); err != nil {
				return err
			}
			_, err := mgr.Enqueue(ctx, tx, schema.OpCreateGoal, g.ID, g)
			return err
		})
		if err != nil {
			b.Fatalf("enqueue transaction failed: %v", err)
		}
	}
}

// TestPending_PayloadRoundTrip tests that payloads survive queue storage
func TestPending_PayloadRoundTrip(t *testing.T) {
	st, mgr := setupTestQueue(t)
	ctx := context.Background()

	g := schema.NewGoal("payload check")
	g.Identity = "I am thorough"
	enqueueGoal(t, st, mgr, schema.OpCreateGoal, g)

	pending, err := mgr.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending() failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("len(pending) = %d, want 1", len(pending))
	}

	var decoded schema.Goal
	if err := pending[0].UnmarshalPayload(&decoded); err != nil {
		t.Fatalf("UnmarshalPayload() failed: %v", err)
	}
	if decoded.ID != g.ID || decoded.Identity != g.Identity {
		t.Errorf("decoded = %+v, want id=%s identity=%q", decoded, g.ID, g.Identity)
	}
}
