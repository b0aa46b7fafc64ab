// Package schema defines the domain records mirrored between the local
// store and the remote habit backend.
//
// All records carry a stable UUID and flat fields with last-write-wins
// semantics: mutations queued for the remote side snapshot the full
// intended state, never a diff, so replaying them is idempotent.
package schema

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Goal statuses.
const (
	GoalStatusActive    = "active"
	GoalStatusCompleted = "completed"
	GoalStatusArchived  = "archived"
)

// Goal is a long-running outcome the user is working toward.
// Seeds (tiny habits) hang off a goal.
type Goal struct {
	ID string `json:"id"`

	Title    string `json:"title"`
	Identity string `json:"identity,omitempty"` // "I am someone who..." framing
	Persona  string `json:"persona,omitempty"`  // coaching voice key
	Status   string `json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewGoal creates an active goal with a fresh UUID and timestamps.
func NewGoal(title string) *Goal {
	now := time.Now().UTC()
	return &Goal{
		ID:        uuid.NewString(),
		Title:     title,
		Status:    GoalStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Touch bumps the modification timestamp.
func (g *Goal) Touch() {
	g.UpdatedAt = time.Now().UTC()
}

// Validate checks if the Goal has valid field values.
func (g *Goal) Validate() error {
	if g.ID == "" {
		return fmt.Errorf("id is required")
	}
	if g.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(g.Title) > 200 {
		return fmt.Errorf("title must be 200 characters or less (got %d)", len(g.Title))
	}
	switch g.Status {
	case GoalStatusActive, GoalStatusCompleted, GoalStatusArchived:
	default:
		return fmt.Errorf("invalid status: %q", g.Status)
	}
	if g.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	if g.UpdatedAt.IsZero() {
		return fmt.Errorf("updated_at is required")
	}
	return nil
}
