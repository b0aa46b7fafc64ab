package schema

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Seed statuses.
const (
	SeedStatusActive  = "active"
	SeedStatusPaused  = "paused"
	SeedStatusRetired = "retired"
)

// Seed is a tiny habit attached to a goal: after an existing anchor
// routine, do a small action.
type Seed struct {
	ID     string `json:"id"`
	GoalID string `json:"goal_id"`

	Title  string `json:"title"`
	Anchor string `json:"anchor"` // existing routine the habit attaches to
	Action string `json:"action"` // the tiny behavior itself
	Status string `json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSeed creates an active seed with a fresh UUID and timestamps.
func NewSeed(goalID, title, anchor, action string) *Seed {
	now := time.Now().UTC()
	return &Seed{
		ID:        uuid.NewString(),
		GoalID:    goalID,
		Title:     title,
		Anchor:    anchor,
		Action:    action,
		Status:    SeedStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Touch bumps the modification timestamp.
func (s *Seed) Touch() {
	s.UpdatedAt = time.Now().UTC()
}

// Validate checks if the Seed has valid field values.
func (s *Seed) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("id is required")
	}
	if s.GoalID == "" {
		return fmt.Errorf("goal_id is required")
	}
	if s.Title == "" {
		return fmt.Errorf("title is required")
	}
	switch s.Status {
	case SeedStatusActive, SeedStatusPaused, SeedStatusRetired:
	default:
		return fmt.Errorf("invalid status: %q", s.Status)
	}
	if s.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	if s.UpdatedAt.IsZero() {
		return fmt.Errorf("updated_at is required")
	}
	return nil
}
