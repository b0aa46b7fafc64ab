// Package sync provides the drain engine between the local mutation queue and the remote backend.
//
// # Overview
//
// Every local write appends a mutation record to the queue in the same
// transaction. The engine replays those records against the remote API
// and acknowledges each one only after its remote call succeeds:
//
//	CLI command (local write)
//	     ├── store tables            → goals, seeds, daily_logs, ...
//	     └── mutation_queue          → one record per write
//	                                      ↓
//	                                   Engine.DrainOnce
//	                                      ↓
//	                                   Remote backend
//	                                   (eventually-consistent mirror)
//
// # Usage
//
// Basic usage:
//
//	st, err := store.Open(".sprout/sprout.db")
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
//
//	mgr := queue.New(st.RawDB())
//	client := remote.NewClient(remote.Config{BaseURL: url, APIKey: key, Token: token})
//	engine := sync.New(mgr, client, nil)
//
//	result, err := engine.DrainOnce(ctx)
//	if err != nil {
//	    return err
//	}
//	fmt.Printf("synced %d, %d still pending\n", result.Synced, result.StillPending)
//
// # Delivery semantics
//
// Delivery is at-least-once: a record is marked consumed only after its
// remote call succeeds, so a crash mid-drain leaves the queue in a valid
// state to resume. The remote API is idempotent per record, which turns
// at-least-once into effectively exactly-once.
//
// Ordering is guaranteed per entity id only. When a record fails, later
// records for the same entity are skipped for the rest of the pass;
// records for other entities continue. No ordering holds across
// different entities.
//
// # Failure handling
//
//   - Transport and server errors leave the record queued. Retries are
//     driven by the next external trigger, never by in-process looping,
//     so a down backend is not hammered.
//   - Client errors (definitive rejections) count against the record's
//     retry budget. Past the bound the record is dropped as poison,
//     marked consumed, and handed to the Reporter.
//   - Engine failures never propagate to callers of the originating
//     write; they only affect queue state and the next trigger.
//
// # Concurrency
//
// DrainOnce never runs concurrently with itself. A second caller gets
// ErrAlreadyDraining and should simply wait for its next trigger; the
// in-progress drain leaves anything it could not deliver for that
// trigger to pick up.
package sync
