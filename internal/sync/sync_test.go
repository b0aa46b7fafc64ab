package sync

import (
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lokigod69/sprout/internal/queue"
	"github.com/lokigod69/sprout/internal/remote"
	"github.com/lokigod69/sprout/internal/schema"
	"github.com/lokigod69/sprout/internal/store"
)

// call records one remote invocation for order assertions
type call struct {
	op       string
	entityID string
}

// fakeClient scripts remote behavior per entity. Default is success.
type fakeClient struct {
	mu    sync.Mutex
	calls []call

	// failWith maps entity id to the error every call for it returns.
	failWith map[string]error

	// failOnce maps entity id to an error returned once, then cleared.
	failOnce map[string]error

	// block, when non-nil, is closed to release a blocked CreateGoal.
	block chan struct{}

	// onCall, when non-nil, runs on every remote invocation.
	onCall func()
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		failWith: make(map[string]error),
		failOnce: make(map[string]error),
	}
}

func (f *fakeClient) record(op, entityID string) error {
	f.mu.Lock()
	f.calls = append(f.calls, call{op: op, entityID: entityID})
	err, once := f.failOnce[entityID]
	if once {
		delete(f.failOnce, entityID)
		f.mu.Unlock()
		return err
	}
	err = f.failWith[entityID]
	hook := f.onCall
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	if f.block != nil {
		<-f.block
	}
	return err
}

func (f *fakeClient) callLog() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func (f *fakeClient) CreateGoal(ctx context.Context, g *schema.Goal) error {
	return f.record("create_goal", g.ID)
}
func (f *fakeClient) UpdateGoal(ctx context.Context, id string, g *schema.Goal) error {
	return f.record("update_goal", id)
}
func (f *fakeClient) DeleteGoal(ctx context.Context, id string) error {
	return f.record("delete_goal", id)
}
func (f *fakeClient) CreateSeed(ctx context.Context, s *schema.Seed) error {
	return f.record("create_seed", s.ID)
}
func (f *fakeClient) UpdateSeed(ctx context.Context, id string, s *schema.Seed) error {
	return f.record("update_seed", id)
}
func (f *fakeClient) DeleteSeed(ctx context.Context, id string) error {
	return f.record("delete_seed", id)
}
func (f *fakeClient) LogDone(ctx context.Context, l *schema.DailyLog) error {
	return f.record("log_done", l.ID)
}
func (f *fakeClient) LogSkip(ctx context.Context, l *schema.DailyLog) error {
	return f.record("log_skip", l.ID)
}
func (f *fakeClient) UpdateIntegration(ctx context.Context, i *schema.IntegrationState) error {
	return f.record("update_integration", i.ID)
}

// poisonRecorder collects reported poison drops
type poisonRecorder struct {
	mu      sync.Mutex
	dropped []*schema.Mutation
}

func (r *poisonRecorder) ReportPoison(mut *schema.Mutation, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropped = append(r.dropped, mut)
}

func transportErr() error {
	return &remote.Error{Kind: remote.KindTransport, Message: "connection refused"}
}

func serverErr() error {
	return &remote.Error{Kind: remote.KindServer, StatusCode: 503, Message: "service unavailable"}
}

func clientErr() error {
	return &remote.Error{Kind: remote.KindClient, StatusCode: 422, Message: "unprocessable"}
}

// setupEngine wires a store, queue, fake client, and engine
func setupEngine(t *testing.T, cfg *Config) (*store.Store, *queue.Manager, *fakeClient, *Engine) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}

	mgr := queue.New(st.RawDB())
	client := newFakeClient()

	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}
	return st, mgr, client, New(mgr, client, cfg)
}

// enqueueGoalMut appends a goal mutation in its own transaction
func enqueueGoalMut(t *testing.T, st *store.Store, mgr *queue.Manager, op schema.Op, g *schema.Goal) int64 {
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
		t.Fatalf("enqueue failed: %v", err)
	}
	return id
}

// TestDrainOnce_EmptyQueue tests that draining nothing is a clean no-op
func TestDrainOnce_EmptyQueue(t *testing.T) {
	_, _, client, engine := setupEngine(t, nil)

	res, err := engine.DrainOnce(context.Background())
	if err != nil {
		t.Fatalf("DrainOnce() failed: %v", err)
	}
	if res != (Result{}) {
		t.Errorf("Result = %+v, want zero", res)
	}
	if len(client.callLog()) != 0 {
		t.Errorf("remote was called on an empty queue")
	}
}

// TestDrainOnce_ReplaysInOrder tests FIFO replay of an offline session
func TestDrainOnce_ReplaysInOrder(t *testing.T) {
	st, mgr, client, engine := setupEngine(t, nil)
	ctx := context.Background()

	g := schema.NewGoal("offline goal")
	enqueueGoalMut(t, st, mgr, schema.OpCreateGoal, g)
	g.Title = "offline goal, renamed"
	g.Touch()
	enqueueGoalMut(t, st, mgr, schema.OpUpdateGoal, g)

	res, err := engine.DrainOnce(ctx)
	if err != nil {
		t.Fatalf("DrainOnce() failed: %v", err)
	}
	if res.Synced != 2 || res.StillPending != 0 {
		t.Errorf("Result = %+v, want Synced=2 StillPending=0", res)
	}

	calls := client.callLog()
	if len(calls) != 2 {
		t.Fatalf("len(calls) = %d, want 2", len(calls))
	}
	if calls[0].op != "create_goal" || calls[1].op != "update_goal" {
		t.Errorf("call order = %v, want create before update", calls)
	}

	pending, err := mgr.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending() failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("len(pending) = %d, want 0 after full drain", len(pending))
	}
}

// TestDrainOnce_TransientFailureLeavesQueued tests that transport errors
// keep the record pending without touching its retry budget
func TestDrainOnce_TransientFailureLeavesQueued(t *testing.T) {
	st, mgr, client, engine := setupEngine(t, nil)
	ctx := context.Background()

	g := schema.NewGoal("unlucky")
	enqueueGoalMut(t, st, mgr, schema.OpCreateGoal, g)
	client.failWith[g.ID] = transportErr()

	// Three passes fail; no in-pass retry loops, one attempt per pass.
	for i := 0; i < 3; i++ {
		res, err := engine.DrainOnce(ctx)
		if err != nil {
			t.Fatalf("DrainOnce() pass %d failed: %v", i, err)
		}
		if res.Failed != 1 || res.StillPending != 1 {
			t.Errorf("pass %d: Result = %+v, want Failed=1 StillPending=1", i, res)
		}
	}
	if got := len(client.callLog()); got != 3 {
		t.Errorf("remote calls = %d, want exactly one per pass", got)
	}

	pending, err := mgr.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending() failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("len(pending) = %d, want 1", len(pending))
	}
	if pending[0].Retries != 0 {
		t.Errorf("Retries = %d, want 0 for transient failures", pending[0].Retries)
	}

	// Connectivity returns; the next pass delivers.
	delete(client.failWith, g.ID)
	res, err := engine.DrainOnce(ctx)
	if err != nil {
		t.Fatalf("DrainOnce() failed: %v", err)
	}
	if res.Synced != 1 || res.StillPending != 0 {
		t.Errorf("Result = %+v, want Synced=1 StillPending=0", res)
	}
}

// TestDrainOnce_ServerErrorTreatedAsTransient tests 5xx handling
func TestDrainOnce_ServerErrorTreatedAsTransient(t *testing.T) {
	st, mgr, client, engine := setupEngine(t, nil)
	ctx := context.Background()

	g := schema.NewGoal("backend down")
	enqueueGoalMut(t, st, mgr, schema.OpCreateGoal, g)
	client.failWith[g.ID] = serverErr()

	if _, err := engine.DrainOnce(ctx); err != nil {
		t.Fatalf("DrainOnce() failed: %v", err)
	}

	pending, err := mgr.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending() failed: %v", err)
	}
	if len(pending) != 1 || pending[0].Retries != 0 {
		t.Errorf("pending = %d retries = %d, want record kept with 0 retries",
			len(pending), pending[0].Retries)
	}
}

// TestDrainOnce_ClientErrorCountsRetries tests the retry budget
func TestDrainOnce_ClientErrorCountsRetries(t *testing.T) {
	st, mgr, client, engine := setupEngine(t, nil)
	ctx := context.Background()

	g := schema.NewGoal("rejected")
	enqueueGoalMut(t, st, mgr, schema.OpCreateGoal, g)
	client.failWith[g.ID] = clientErr()

	if _, err := engine.DrainOnce(ctx); err != nil {
		t.Fatalf("DrainOnce() failed: %v", err)
	}

	pending, err := mgr.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending() failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("len(pending) = %d, want 1", len(pending))
	}
	if pending[0].Retries != 1 {
		t.Errorf("Retries = %d, want 1 after one definitive rejection", pending[0].Retries)
	}
	if pending[0].LastError == "" {
		t.Error("LastError is empty, want the rejection recorded")
	}
}

// TestDrainOnce_PoisonDroppedAndReported tests that a record exhausting
// its budget is consumed and surfaced, and stops blocking the queue
func TestDrainOnce_PoisonDroppedAndReported(t *testing.T) {
	reporter := &poisonRecorder{}
	st, mgr, client, engine := setupEngine(t, &Config{MaxRetries: 2, Reporter: reporter})
	ctx := context.Background()

	bad := schema.NewGoal("poison")
	enqueueGoalMut(t, st, mgr, schema.OpCreateGoal, bad)
	client.failWith[bad.ID] = clientErr()

	good := schema.NewGoal("healthy")
	enqueueGoalMut(t, st, mgr, schema.OpCreateGoal, good)

	// Pass 1: poison fails (retries=1), healthy syncs.
	res, err := engine.DrainOnce(ctx)
	if err != nil {
		t.Fatalf("DrainOnce() failed: %v", err)
	}
	if res.Synced != 1 || res.Failed != 1 || res.Poisoned != 0 {
		t.Errorf("pass 1: Result = %+v, want Synced=1 Failed=1", res)
	}

	// Pass 2: retries hits the bound; record is dropped.
	res, err = engine.DrainOnce(ctx)
	if err != nil {
		t.Fatalf("DrainOnce() failed: %v", err)
	}
	if res.Poisoned != 1 {
		t.Errorf("pass 2: Poisoned = %d, want 1", res.Poisoned)
	}

	pending, err := mgr.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending() failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("len(pending) = %d, want 0 after poison drop", len(pending))
	}

	reporter.mu.Lock()
	defer reporter.mu.Unlock()
	if len(reporter.dropped) != 1 {
		t.Fatalf("reported drops = %d, want 1", len(reporter.dropped))
	}
	if reporter.dropped[0].EntityID != bad.ID {
		t.Errorf("reported entity = %s, want %s", reporter.dropped[0].EntityID, bad.ID)
	}
}

// TestDrainOnce_FailureSkipsLaterSameEntity tests per-entity ordering:
// a failed create must not let a later update for the same record
// arrive first at the backend
func TestDrainOnce_FailureSkipsLaterSameEntity(t *testing.T) {
	st, mgr, client, engine := setupEngine(t, nil)
	ctx := context.Background()

	flaky := schema.NewGoal("flaky entity")
	enqueueGoalMut(t, st, mgr, schema.OpCreateGoal, flaky)
	flaky.Title = "flaky entity v2"
	enqueueGoalMut(t, st, mgr, schema.OpUpdateGoal, flaky)

	other := schema.NewGoal("independent entity")
	enqueueGoalMut(t, st, mgr, schema.OpCreateGoal, other)

	// Fail only the first attempt for the flaky entity.
	client.failOnce[flaky.ID] = transportErr()

	res, err := engine.DrainOnce(ctx)
	if err != nil {
		t.Fatalf("DrainOnce() failed: %v", err)
	}
	if res.Failed != 1 || res.Skipped != 1 || res.Synced != 1 {
		t.Errorf("Result = %+v, want Failed=1 Skipped=1 Synced=1", res)
	}

	// The update was never attempted this pass even though the fake
	// would have succeeded: order within the entity is preserved.
	for _, c := range client.callLog() {
		if c.op == "update_goal" {
			t.Error("update_goal was attempted after its create failed in the same pass")
		}
	}

	// Next pass replays both in order.
	res, err = engine.DrainOnce(ctx)
	if err != nil {
		t.Fatalf("DrainOnce() failed: %v", err)
	}
	if res.Synced != 2 || res.StillPending != 0 {
		t.Errorf("second pass: Result = %+v, want Synced=2 StillPending=0", res)
	}
}

// TestDrainOnce_PoisonedEntitySkipsRest tests that later records for a
// just-poisoned entity wait for the next pass
func TestDrainOnce_PoisonedEntitySkipsRest(t *testing.T) {
	st, mgr, client, engine := setupEngine(t, &Config{MaxRetries: 1})
	ctx := context.Background()

	g := schema.NewGoal("cursed")
	enqueueGoalMut(t, st, mgr, schema.OpCreateGoal, g)
	g.Title = "cursed v2"
	enqueueGoalMut(t, st, mgr, schema.OpUpdateGoal, g)

	client.failWith[g.ID] = clientErr()

	res, err := engine.DrainOnce(ctx)
	if err != nil {
		t.Fatalf("DrainOnce() failed: %v", err)
	}
	if res.Poisoned != 1 || res.Skipped != 1 {
		t.Errorf("Result = %+v, want Poisoned=1 Skipped=1", res)
	}
}

// TestDrainOnce_UnreplayablePayloadPoisons tests that corrupt payloads
// burn retry budget instead of wedging the queue
func TestDrainOnce_UnreplayablePayloadPoisons(t *testing.T) {
	reporter := &poisonRecorder{}
	st, mgr, _, engine := setupEngine(t, &Config{MaxRetries: 1, Reporter: reporter})
	ctx := context.Background()

	g := schema.NewGoal("mangled")
	enqueueGoalMut(t, st, mgr, schema.OpCreateGoal, g)

	// Corrupt the stored payload behind the queue's back.
	if _, err := st.RawDB().ExecContext(ctx,
		"UPDATE mutation_queue SET payload = 'not json'"); err != nil {
		t.Fatalf("failed to corrupt payload: %v", err)
	}

	res, err := engine.DrainOnce(ctx)
	if err != nil {
		t.Fatalf("DrainOnce() failed: %v", err)
	}
	if res.Poisoned != 1 {
		t.Errorf("Poisoned = %d, want 1", res.Poisoned)
	}

	reporter.mu.Lock()
	defer reporter.mu.Unlock()
	if len(reporter.dropped) != 1 {
		t.Errorf("reported drops = %d, want 1", len(reporter.dropped))
	}
}

// TestDrainOnce_ConcurrentCallNoOps tests the drain-in-progress guard
func TestDrainOnce_ConcurrentCallNoOps(t *testing.T) {
	st, mgr, client, engine := setupEngine(t, nil)
	ctx := context.Background()

	enqueueGoalMut(t, st, mgr, schema.OpCreateGoal, schema.NewGoal("slow"))

	client.block = make(chan struct{})

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		close(started)
		_, err := engine.DrainOnce(ctx)
		done <- err
	}()

	<-started
	// Wait until the first drain is actually inside its pass.
	for !engine.Draining() {
		time.Sleep(time.Millisecond)
	}

	if _, err := engine.DrainOnce(ctx); err != ErrAlreadyDraining {
		t.Errorf("second DrainOnce() = %v, want ErrAlreadyDraining", err)
	}

	close(client.block)
	if err := <-done; err != nil {
		t.Fatalf("first DrainOnce() failed: %v", err)
	}

	// Guard releases once the pass completes.
	if _, err := engine.DrainOnce(ctx); err != nil {
		t.Errorf("DrainOnce() after completion = %v, want nil", err)
	}
}

// TestDrainOnce_ContextCancellationStopsPass tests that cancellation
// ends the pass without corrupting queue state
func TestDrainOnce_ContextCancellationStopsPass(t *testing.T) {
	st, mgr, client, engine := setupEngine(t, nil)

	for i := 0; i < 5; i++ {
		enqueueGoalMut(t, st, mgr, schema.OpCreateGoal, schema.NewGoal(fmt.Sprintf("goal %d", i)))
	}

	// Cancel mid-pass: the second remote call pulls the plug.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var calls int32
	client.onCall = func() {
		if atomic.AddInt32(&calls, 1) == 2 {
			cancel()
		}
	}

	res, err := engine.DrainOnce(ctx)
	if err != nil {
		t.Fatalf("DrainOnce() failed: %v", err)
	}
	if res.Synced != 1 {
		t.Errorf("Synced = %d, want 1 before cancellation took effect", res.Synced)
	}

	pending, err := mgr.Pending(context.Background())
	if err != nil {
		t.Fatalf("Pending() failed: %v", err)
	}
	if len(pending) != 4 {
		t.Errorf("len(pending) = %d, want the 4 unprocessed records intact", len(pending))
	}
}

// TestDrainOnce_MixedEntities tests independent entities draining around
// one failing entity
func TestDrainOnce_MixedEntities(t *testing.T) {
	st, mgr, client, engine := setupEngine(t, nil)
	ctx := context.Background()

	var goals []*schema.Goal
	for i := 0; i < 3; i++ {
		g := schema.NewGoal(fmt.Sprintf("goal %d", i))
		goals = append(goals, g)
		enqueueGoalMut(t, st, mgr, schema.OpCreateGoal, g)
	}
	client.failWith[goals[1].ID] = transportErr()

	res, err := engine.DrainOnce(ctx)
	if err != nil {
		t.Fatalf("DrainOnce() failed: %v", err)
	}
	if res.Synced != 2 || res.Failed != 1 || res.StillPending != 1 {
		t.Errorf("Result = %+v, want Synced=2 Failed=1 StillPending=1", res)
	}
}
