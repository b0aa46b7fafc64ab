package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lokigod69/sprout/internal/schema"
)

// PutGoal inserts or replaces a goal by id.
func (s *Store) PutGoal(g *schema.Goal) error {
	return s.PutGoalContext(context.Background(), g)
}

// PutGoalContext inserts or replaces a goal with context support.
func (s *Store) PutGoalContext(ctx context.Context, g *schema.Goal) error {
	return putGoal(ctx, s.conn, g)
}

// PutGoal inserts or replaces a goal inside the open transaction.
func (t *Tx) PutGoal(ctx context.Context, g *schema.Goal) error {
	return putGoal(ctx, t.tx, g)
}

func putGoal(ctx context.Context, db dbtx, g *schema.Goal) error {
	if err := g.Validate(); err != nil {
		return fmt.Errorf("invalid goal: %w", err)
	}

	query := `
	INSERT INTO goals (id, title, identity, persona, status, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		identity = excluded.identity,
		persona = excluded.persona,
		status = excluded.status,
		updated_at = excluded.updated_at
	`

	_, err := db.ExecContext(ctx, query,
		g.ID,
		g.Title,
		g.Identity,
		g.Persona,
		g.Status,
		g.CreatedAt.Format(time.RFC3339),
		g.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to put goal: %w", err)
	}
	return nil
}

// GetGoal retrieves a single goal by id.
// Returns sql.ErrNoRows if the goal is not found.
func (s *Store) GetGoal(id string) (*schema.Goal, error) {
	return s.GetGoalContext(context.Background(), id)
}

// GetGoalContext retrieves a single goal by id with context support.
func (s *Store) GetGoalContext(ctx context.Context, id string) (*schema.Goal, error) {
	query := `
	SELECT id, title, identity, persona, status, created_at, updated_at
	FROM goals
	WHERE id = ?
	`

	var g schema.Goal
	var createdAt, updatedAt string
	var identity, persona sql.NullString

	err := s.conn.QueryRowContext(ctx, query, id).Scan(
		&g.ID, &g.Title, &identity, &persona, &g.Status, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	g.Identity = identity.String
	g.Persona = persona.String
	g.CreatedAt = parseTimestamp(createdAt)
	g.UpdatedAt = parseTimestamp(updatedAt)
	return &g, nil
}

// GoalFilter configures the ListGoals query.
type GoalFilter struct {
	// Status filters by goal status (empty = all statuses)
	Status string
	// Limit restricts the number of results (0 = no limit)
	Limit int
}

// ListGoals retrieves goals matching the filter, oldest first.
func (s *Store) ListGoals(ctx context.Context, filter GoalFilter) ([]*schema.Goal, error) {
	var conditions []string
	var args []any

	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}

	query := `
	SELECT id, title, identity, persona, status, created_at, updated_at
	FROM goals
	`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list goals: %w", err)
	}
	defer rows.Close()

	var goals []*schema.Goal
	for rows.Next() {
		var g schema.Goal
		var createdAt, updatedAt string
		var identity, persona sql.NullString

		if err := rows.Scan(&g.ID, &g.Title, &identity, &persona, &g.Status, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan goal: %w", err)
		}

		g.Identity = identity.String
		g.Persona = persona.String
		g.CreatedAt = parseTimestamp(createdAt)
		g.UpdatedAt = parseTimestamp(updatedAt)
		goals = append(goals, &g)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating goals: %w", err)
	}
	return goals, nil
}

// DeleteGoal removes a goal inside the open transaction.
// Cascades to its seeds and their logs. Idempotent.
func (t *Tx) DeleteGoal(ctx context.Context, id string) error {
	if _, err := t.tx.ExecContext(ctx, "DELETE FROM goals WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete goal %s: %w", id, err)
	}
	return nil
}

// PutSeed inserts or replaces a seed by id.
func (s *Store) PutSeed(seed *schema.Seed) error {
	return s.PutSeedContext(context.Background(), seed)
}

// PutSeedContext inserts or replaces a seed with context support.
func (s *Store) PutSeedContext(ctx context.Context, seed *schema.Seed) error {
	return putSeed(ctx, s.conn, seed)
}

// PutSeed inserts or replaces a seed inside the open transaction.
func (t *Tx) PutSeed(ctx context.Context, seed *schema.Seed) error {
	return putSeed(ctx, t.tx, seed)
}

func putSeed(ctx context.Context, db dbtx, seed *schema.Seed) error {
	if err := seed.Validate(); err != nil {
		return fmt.Errorf("invalid seed: %w", err)
	}

	query := `
	INSERT INTO seeds (id, goal_id, title, anchor, action, status, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		goal_id = excluded.goal_id,
		title = excluded.title,
		anchor = excluded.anchor,
		action = excluded.action,
		status = excluded.status,
		updated_at = excluded.updated_at
	`

	_, err := db.ExecContext(ctx, query,
		seed.ID,
		seed.GoalID,
		seed.Title,
		seed.Anchor,
		seed.Action,
		seed.Status,
		seed.CreatedAt.Format(time.RFC3339),
		seed.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to put seed: %w", err)
	}
	return nil
}

// GetSeed retrieves a single seed by id.
// Returns sql.ErrNoRows if the seed is not found.
func (s *Store) GetSeed(id string) (*schema.Seed, error) {
	return s.GetSeedContext(context.Background(), id)
}

// GetSeedContext retrieves a single seed by id with context support.
func (s *Store) GetSeedContext(ctx context.Context, id string) (*schema.Seed, error) {
	query := `
	SELECT id, goal_id, title, anchor, action, status, created_at, updated_at
	FROM seeds
	WHERE id = ?
	`

	var seed schema.Seed
	var createdAt, updatedAt string
	var anchor, action sql.NullString

	err := s.conn.QueryRowContext(ctx, query, id).Scan(
		&seed.ID, &seed.GoalID, &seed.Title, &anchor, &action, &seed.Status, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	seed.Anchor = anchor.String
	seed.Action = action.String
	seed.CreatedAt = parseTimestamp(createdAt)
	seed.UpdatedAt = parseTimestamp(updatedAt)
	return &seed, nil
}

// SeedFilter configures the ListSeeds query.
type SeedFilter struct {
	// GoalID filters to seeds of one goal (empty = all goals)
	GoalID string
	// Status filters by seed status (empty = all statuses)
	Status string
	// Limit restricts the number of results (0 = no limit)
	Limit int
}

// ListSeeds retrieves seeds matching the filter, oldest first.
func (s *Store) ListSeeds(ctx context.Context, filter SeedFilter) ([]*schema.Seed, error) {
	var conditions []string
	var args []any

	if filter.GoalID != "" {
		conditions = append(conditions, "goal_id = ?")
		args = append(args, filter.GoalID)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}

	query := `
	SELECT id, goal_id, title, anchor, action, status, created_at, updated_at
	FROM seeds
	`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list seeds: %w", err)
	}
	defer rows.Close()

	var seeds []*schema.Seed
	for rows.Next() {
		var seed schema.Seed
		var createdAt, updatedAt string
		var anchor, action sql.NullString

		if err := rows.Scan(&seed.ID, &seed.GoalID, &seed.Title, &anchor, &action, &seed.Status, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan seed: %w", err)
		}

		seed.Anchor = anchor.String
		seed.Action = action.String
		seed.CreatedAt = parseTimestamp(createdAt)
		seed.UpdatedAt = parseTimestamp(updatedAt)
		seeds = append(seeds, &seed)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating seeds: %w", err)
	}
	return seeds, nil
}

// DeleteSeed removes a seed inside the open transaction.
// Cascades to its logs. Idempotent.
func (t *Tx) DeleteSeed(ctx context.Context, id string) error {
	if _, err := t.tx.ExecContext(ctx, "DELETE FROM seeds WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete seed %s: %w", id, err)
	}
	return nil
}

// PutLog inserts or replaces a daily log.
// A later log for the same seed and date replaces the earlier one.
func (s *Store) PutLog(l *schema.DailyLog) error {
	return s.PutLogContext(context.Background(), l)
}

// PutLogContext inserts or replaces a daily log with context support.
func (s *Store) PutLogContext(ctx context.Context, l *schema.DailyLog) error {
	return putLog(ctx, s.conn, l)
}

// PutLog inserts or replaces a daily log inside the open transaction.
func (t *Tx) PutLog(ctx context.Context, l *schema.DailyLog) error {
	return putLog(ctx, t.tx, l)
}

func putLog(ctx context.Context, db dbtx, l *schema.DailyLog) error {
	if err := l.Validate(); err != nil {
		return fmt.Errorf("invalid log: %w", err)
	}

	query := `
	INSERT INTO daily_logs (id, seed_id, date, status, note, created_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(seed_id, date) DO UPDATE SET
		status = excluded.status,
		note = excluded.note,
		created_at = excluded.created_at
	`

	_, err := db.ExecContext(ctx, query,
		l.ID,
		l.SeedID,
		l.Date,
		l.Status,
		l.Note,
		l.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to put log: %w", err)
	}
	return nil
}

// LogFilter configures the ListLogs query.
type LogFilter struct {
	// SeedID filters to logs of one seed (empty = all seeds)
	SeedID string
	// From and To bound the local date range, inclusive (empty = unbounded)
	From string
	To   string
	// Status filters by done/skip (empty = all)
	Status string
	// Limit restricts the number of results (0 = no limit)
	Limit int
}

// ListLogs retrieves daily logs matching the filter, ordered by date then seed.
func (s *Store) ListLogs(ctx context.Context, filter LogFilter) ([]*schema.DailyLog, error) {
	var conditions []string
	var args []any

	if filter.SeedID != "" {
		conditions = append(conditions, "seed_id = ?")
		args = append(args, filter.SeedID)
	}
	if filter.From != "" {
		conditions = append(conditions, "date >= ?")
		args = append(args, filter.From)
	}
	if filter.To != "" {
		conditions = append(conditions, "date <= ?")
		args = append(args, filter.To)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}

	query := `
	SELECT id, seed_id, date, status, note, created_at
	FROM daily_logs
	`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY date ASC, seed_id ASC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list logs: %w", err)
	}
	defer rows.Close()

	var logs []*schema.DailyLog
	for rows.Next() {
		var l schema.DailyLog
		var createdAt string
		var note sql.NullString

		if err := rows.Scan(&l.ID, &l.SeedID, &l.Date, &l.Status, &note, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan log: %w", err)
		}

		l.Note = note.String
		l.CreatedAt = parseTimestamp(createdAt)
		logs = append(logs, &l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating logs: %w", err)
	}
	return logs, nil
}

// PutIntegration inserts or replaces integration state inside the open
// transaction, keyed by provider.
func (t *Tx) PutIntegration(ctx context.Context, i *schema.IntegrationState) error {
	return putIntegration(ctx, t.tx, i)
}

// PutIntegrationContext inserts or replaces integration state with context support.
func (s *Store) PutIntegrationContext(ctx context.Context, i *schema.IntegrationState) error {
	return putIntegration(ctx, s.conn, i)
}

func putIntegration(ctx context.Context, db dbtx, i *schema.IntegrationState) error {
	if err := i.Validate(); err != nil {
		return fmt.Errorf("invalid integration state: %w", err)
	}

	var settings any
	if len(i.Settings) > 0 {
		settings = string(i.Settings)
	}

	query := `
	INSERT INTO integration_state (id, provider, enabled, settings, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(provider) DO UPDATE SET
		enabled = excluded.enabled,
		settings = excluded.settings,
		updated_at = excluded.updated_at
	`

	_, err := db.ExecContext(ctx, query,
		i.ID,
		i.Provider,
		boolToInt(i.Enabled),
		settings,
		i.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to put integration state: %w", err)
	}
	return nil
}

// GetIntegration retrieves integration state for a provider.
// Returns sql.ErrNoRows if no state exists.
func (s *Store) GetIntegration(ctx context.Context, provider string) (*schema.IntegrationState, error) {
	query := `
	SELECT id, provider, enabled, settings, updated_at
	FROM integration_state
	WHERE provider = ?
	`

	var i schema.IntegrationState
	var enabled int
	var settings sql.NullString
	var updatedAt string

	err := s.conn.QueryRowContext(ctx, query, provider).Scan(
		&i.ID, &i.Provider, &enabled, &settings, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	i.Enabled = enabled != 0
	if settings.Valid {
		i.Settings = []byte(settings.String)
	}
	i.UpdatedAt = parseTimestamp(updatedAt)
	return &i, nil
}

// ListIntegrations retrieves all integration state rows ordered by provider.
func (s *Store) ListIntegrations(ctx context.Context) ([]*schema.IntegrationState, error) {
	query := `
	SELECT id, provider, enabled, settings, updated_at
	FROM integration_state
	ORDER BY provider ASC
	`

	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list integrations: %w", err)
	}
	defer rows.Close()

	var out []*schema.IntegrationState
	for rows.Next() {
		var i schema.IntegrationState
		var enabled int
		var settings sql.NullString
		var updatedAt string
		if err := rows.Scan(&i.ID, &i.Provider, &enabled, &settings, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan integration state: %w", err)
		}
		i.Enabled = enabled != 0
		if settings.Valid {
			i.Settings = []byte(settings.String)
		}
		i.UpdatedAt = parseTimestamp(updatedAt)
		out = append(out, &i)
	}
	return out, rows.Err()
}

// GoalCount returns the total number of goals.
func (s *Store) GoalCount(ctx context.Context) (int, error) {
	var count int
	if err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM goals").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count goals: %w", err)
	}
	return count, nil
}

// SeedCount returns the total number of seeds.
func (s *Store) SeedCount(ctx context.Context) (int, error) {
	var count int
	if err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM seeds").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count seeds: %w", err)
	}
	return count, nil
}

// parseTimestamp parses an RFC3339 timestamp, returning the zero time on
// malformed input rather than failing the whole scan.
func parseTimestamp(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
