// Package sync provides the engine that drains the outbound mutation
// queue against the remote habit backend.
package sync

import (
	"context"

	"github.com/lokigod69/sprout/internal/schema"
)

// RemoteClient is the backend surface the engine replays mutations
// against. One method per mutation type, each idempotent at the
// application level - retrying the identical payload is always safe.
//
// Implementations must return errors classified via the remote package
// (transport / client error / server error); unclassified errors are
// treated as transport failures.
type RemoteClient interface {
	// CreateGoal creates a goal remotely.
	CreateGoal(ctx context.Context, g *schema.Goal) error

	// UpdateGoal replaces a goal's fields remotely.
	UpdateGoal(ctx context.Context, id string, g *schema.Goal) error

	// DeleteGoal deletes a goal remotely.
	// Returns nil if the goal doesn't exist (idempotent).
	DeleteGoal(ctx context.Context, id string) error

	// CreateSeed creates a seed remotely.
	CreateSeed(ctx context.Context, s *schema.Seed) error

	// UpdateSeed replaces a seed's fields remotely.
	UpdateSeed(ctx context.Context, id string, s *schema.Seed) error

	// DeleteSeed deletes a seed remotely.
	// Returns nil if the seed doesn't exist (idempotent).
	DeleteSeed(ctx context.Context, id string) error

	// LogDone records a completed seed for a date.
	LogDone(ctx context.Context, l *schema.DailyLog) error

	// LogSkip records a skipped seed for a date.
	LogSkip(ctx context.Context, l *schema.DailyLog) error

	// UpdateIntegration upserts integration state keyed by provider.
	UpdateIntegration(ctx context.Context, i *schema.IntegrationState) error
}

// Reporter receives mutations the engine gave up on, so dropped changes
// are never silent. Implementations must not block.
type Reporter interface {
	// ReportPoison is called once when a mutation is marked consumed
	// after exhausting its retry budget.
	ReportPoison(mut *schema.Mutation, err error)
}
