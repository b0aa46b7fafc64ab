package schema

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DateFormat is the canonical local-date format used for daily logs.
const DateFormat = "2006-01-02"

// Daily log statuses.
const (
	LogStatusDone = "done"
	LogStatusSkip = "skip"
)

// DailyLog records one done/skip decision for a seed on a local date.
// At most one log per seed per date; later writes replace earlier ones.
type DailyLog struct {
	ID     string `json:"id"`
	SeedID string `json:"seed_id"`

	Date   string `json:"date"` // local date, YYYY-MM-DD
	Status string `json:"status"`
	Note   string `json:"note,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// NewDailyLog creates a log entry for the given seed and local date.
func NewDailyLog(seedID, status string, day time.Time) *DailyLog {
	return &DailyLog{
		ID:        uuid.NewString(),
		SeedID:    seedID,
		Date:      day.Format(DateFormat),
		Status:    status,
		CreatedAt: time.Now().UTC(),
	}
}

// Validate checks if the DailyLog has valid field values.
func (l *DailyLog) Validate() error {
	if l.ID == "" {
		return fmt.Errorf("id is required")
	}
	if l.SeedID == "" {
		return fmt.Errorf("seed_id is required")
	}
	if _, err := time.Parse(DateFormat, l.Date); err != nil {
		return fmt.Errorf("invalid date %q: %w", l.Date, err)
	}
	if l.Status != LogStatusDone && l.Status != LogStatusSkip {
		return fmt.Errorf("invalid status: %q", l.Status)
	}
	if l.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	return nil
}
