package schema

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// IntegrationState holds per-provider connection settings (calendar,
// health, reminders). One record per provider.
type IntegrationState struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
	Enabled  bool   `json:"enabled"`

	// Settings is provider-specific configuration, stored opaque.
	Settings json.RawMessage `json:"settings,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// NewIntegrationState creates a disabled integration record for a provider.
func NewIntegrationState(provider string) *IntegrationState {
	return &IntegrationState{
		ID:        uuid.NewString(),
		Provider:  provider,
		UpdatedAt: time.Now().UTC(),
	}
}

// Touch bumps the modification timestamp.
func (i *IntegrationState) Touch() {
	i.UpdatedAt = time.Now().UTC()
}

// Validate checks if the IntegrationState has valid field values.
func (i *IntegrationState) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("id is required")
	}
	if i.Provider == "" {
		return fmt.Errorf("provider is required")
	}
	if len(i.Settings) > 0 && !json.Valid(i.Settings) {
		return fmt.Errorf("settings is not valid JSON")
	}
	if i.UpdatedAt.IsZero() {
		return fmt.Errorf("updated_at is required")
	}
	return nil
}
