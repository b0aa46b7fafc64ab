package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/lokigod69/sprout/internal/queue"
	"github.com/lokigod69/sprout/internal/remote"
	"github.com/lokigod69/sprout/internal/schema"
)

// ErrAlreadyDraining is returned when DrainOnce is invoked while another
// drain is in progress. The caller should treat it as a no-op: whatever
// the in-progress drain leaves behind is picked up by the next trigger.
var ErrAlreadyDraining = errors.New("drain already in progress")

// DefaultMaxRetries bounds how many definitive client-error failures a
// single mutation may accumulate before it is dropped as poison.
const DefaultMaxRetries = 5

// Config holds engine configuration.
type Config struct {
	// MaxRetries is the poison bound (default: DefaultMaxRetries).
	MaxRetries int

	// Reporter receives dropped poison mutations. Optional.
	Reporter Reporter

	// Logger for drain activity (default: stderr logger).
	Logger *log.Logger
}

// Result summarizes one drain pass.
type Result struct {
	// Synced mutations were delivered and marked consumed.
	Synced int
	// Failed mutations hit a retriable error and stay queued.
	Failed int
	// Skipped mutations were not attempted because an earlier mutation
	// for the same record failed in this pass.
	Skipped int
	// Poisoned mutations exhausted their retry budget and were dropped.
	Poisoned int
	// StillPending is the queue depth left behind by this pass.
	StillPending int
}

// Engine drains the mutation queue against the remote backend.
//
// The engine is restart-agnostic: it holds no persistent state of its
// own, so after a process restart it simply re-evaluates the queue. The
// drain-in-progress flag lives on the instance, never in package scope,
// so engines under test do not interfere with each other.
type Engine struct {
	queue  *queue.Manager
	client RemoteClient

	reporter   Reporter
	logger     *log.Logger
	maxRetries int

	mu       sync.Mutex
	draining bool
}

// New creates an engine over the queue manager and remote client.
//
// If cfg is nil, defaults are used. If cfg.Logger is nil, a default
// logger writing to stderr is used.
//
// Example:
//
//	mgr := queue.New(st.RawDB())
//	client := remote.NewClient(remote.Config{BaseURL: url, APIKey: key})
//	engine := sync.New(mgr, client, nil)
func New(q *queue.Manager, client RemoteClient, cfg *Config) *Engine {
	if cfg == nil {
		cfg = &Config{}
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &Engine{
		queue:      q,
		client:     client,
		reporter:   cfg.Reporter,
		logger:     logger,
		maxRetries: maxRetries,
	}
}

// Draining reports whether a drain pass is currently running.
func (e *Engine) Draining() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.draining
}

// DrainOnce performs one pass over the queue.
//
// The pending set is snapshotted at entry; mutations enqueued during the
// pass wait for the next trigger, which keeps a drain bounded under
// sustained write load. Records replay in FIFO order. A record that
// fails leaves later records for the same entity id untouched this pass,
// preserving per-entity ordering; records for other entities continue.
//
// Failures never propagate: a retriable failure leaves the record
// queued for the next trigger, and a definitive client error counts
// against the record's retry budget - past the bound the record is
// marked consumed anyway and handed to the Reporter, so one unresolvable
// mutation cannot block the queue forever.
//
// Concurrent calls do not interleave: a second caller gets
// ErrAlreadyDraining and should rely on the next trigger.
func (e *Engine) DrainOnce(ctx context.Context) (Result, error) {
	e.mu.Lock()
	if e.draining {
		e.mu.Unlock()
		return Result{}, ErrAlreadyDraining
	}
	e.draining = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.draining = false
		e.mu.Unlock()
	}()

	pending, err := e.queue.Pending(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to snapshot queue: %w", err)
	}
	if len(pending) == 0 {
		return Result{}, nil
	}

	e.logger.Printf("Draining %d pending mutations", len(pending))

	var res Result
	failedEntities := make(map[string]bool)

	for _, mut := range pending {
		if ctx.Err() != nil {
			break
		}

		if failedEntities[mut.EntityID] {
			res.Skipped++
			continue
		}

		replayErr := e.replay(ctx, mut)
		if replayErr == nil {
			if err := e.queue.MarkConsumed(ctx, mut.ID); err != nil {
				e.logger.Printf("WARNING: failed to mark mutation %d consumed: %v", mut.ID, err)
				failedEntities[mut.EntityID] = true
				res.Failed++
				continue
			}
			res.Synced++
			continue
		}

		if remote.IsClient(replayErr) {
			retries, err := e.queue.RecordFailure(ctx, mut.ID, replayErr.Error())
			if err != nil {
				e.logger.Printf("WARNING: failed to record failure for mutation %d: %v", mut.ID, err)
			} else if retries >= e.maxRetries {
				e.poison(ctx, mut, replayErr, &res)
				failedEntities[mut.EntityID] = true
				continue
			}
		}

		e.logger.Printf("Mutation %d (%s %s) failed: %v", mut.ID, mut.Op, mut.EntityID, replayErr)
		failedEntities[mut.EntityID] = true
		res.Failed++
	}

	res.StillPending = len(pending) - res.Synced - res.Poisoned
	e.logger.Printf("Drain complete: synced=%d failed=%d skipped=%d poisoned=%d pending=%d",
		res.Synced, res.Failed, res.Skipped, res.Poisoned, res.StillPending)

	return res, nil
}

// poison drops a mutation that fails deterministically so it cannot
// block the queue, and surfaces the loss.
func (e *Engine) poison(ctx context.Context, mut *schema.Mutation, cause error, res *Result) {
	if err := e.queue.MarkConsumed(ctx, mut.ID); err != nil {
		e.logger.Printf("WARNING: failed to drop poison mutation %d: %v", mut.ID, err)
		res.Failed++
		return
	}

	res.Poisoned++
	e.logger.Printf("Dropped poison mutation %d (%s %s) after %d attempts: %v",
		mut.ID, mut.Op, mut.EntityID, e.maxRetries, cause)

	if e.reporter != nil {
		e.reporter.ReportPoison(mut, cause)
	}
}

// replay translates one mutation record into its remote call.
func (e *Engine) replay(ctx context.Context, mut *schema.Mutation) error {
	switch mut.Op {
	case schema.OpCreateGoal, schema.OpUpdateGoal:
		var g schema.Goal
		if err := json.Unmarshal(mut.Payload, &g); err != nil {
			return badPayload(mut, err)
		}
		if mut.Op == schema.OpCreateGoal {
			return e.client.CreateGoal(ctx, &g)
		}
		return e.client.UpdateGoal(ctx, mut.EntityID, &g)

	case schema.OpDeleteGoal:
		return e.client.DeleteGoal(ctx, mut.EntityID)

	case schema.OpCreateSeed, schema.OpUpdateSeed:
		var s schema.Seed
		if err := json.Unmarshal(mut.Payload, &s); err != nil {
			return badPayload(mut, err)
		}
		if mut.Op == schema.OpCreateSeed {
			return e.client.CreateSeed(ctx, &s)
		}
		return e.client.UpdateSeed(ctx, mut.EntityID, &s)

	case schema.OpDeleteSeed:
		return e.client.DeleteSeed(ctx, mut.EntityID)

	case schema.OpLogDone, schema.OpLogSkip:
		var l schema.DailyLog
		if err := json.Unmarshal(mut.Payload, &l); err != nil {
			return badPayload(mut, err)
		}
		if mut.Op == schema.OpLogDone {
			return e.client.LogDone(ctx, &l)
		}
		return e.client.LogSkip(ctx, &l)

	case schema.OpUpdateIntegration:
		var i schema.IntegrationState
		if err := json.Unmarshal(mut.Payload, &i); err != nil {
			return badPayload(mut, err)
		}
		return e.client.UpdateIntegration(ctx, &i)

	default:
		return badPayload(mut, fmt.Errorf("unknown op %q", mut.Op))
	}
}

// badPayload classifies an unreplayable record as a client error: it
// fails deterministically, so the retry budget applies.
func badPayload(mut *schema.Mutation, err error) error {
	return &remote.Error{
		Kind:    remote.KindClient,
		Op:      string(mut.Op),
		Message: fmt.Sprintf("unreplayable mutation %d: %v", mut.ID, err),
		Err:     err,
	}
}
