package schema

import (
	"encoding/json"
	"fmt"
	"time"
)

// Op identifies the kind of remote change a queued mutation replays.
type Op string

// Queue operation types. Each carries exactly the payload needed to
// replay that mutation against the remote backend.
const (
	OpCreateGoal Op = "create_goal"
	OpUpdateGoal Op = "update_goal"
	OpDeleteGoal Op = "delete_goal"

	OpCreateSeed Op = "create_seed"
	OpUpdateSeed Op = "update_seed"
	OpDeleteSeed Op = "delete_seed"

	OpLogDone Op = "log_done"
	OpLogSkip Op = "log_skip"

	OpUpdateIntegration Op = "update_integration"
)

// IsValid reports whether op is a known operation type.
func (op Op) IsValid() bool {
	switch op {
	case OpCreateGoal, OpUpdateGoal, OpDeleteGoal,
		OpCreateSeed, OpUpdateSeed, OpDeleteSeed,
		OpLogDone, OpLogSkip, OpUpdateIntegration:
		return true
	}
	return false
}

// Mutation is one pending change in the outbound queue.
//
// The surrogate ID is assigned by the queue (auto-increment) and
// preserves FIFO order. Payload is the full intended state of the
// affected record, serialized as JSON (not a diff), so replaying the
// same mutation twice is safe under last-write-wins.
type Mutation struct {
	ID       int64           `json:"id"`
	Op       Op              `json:"op"`
	EntityID string          `json:"entity_id"`
	Payload  json.RawMessage `json:"payload,omitempty"`

	// CreatedAt orders the queue for inspection only; remote
	// timestamps are authoritative once a mutation lands.
	CreatedAt time.Time `json:"created_at"`

	Consumed  bool   `json:"consumed"`
	Retries   int    `json:"retries"`
	LastError string `json:"last_error,omitempty"`
}

// Validate checks if the Mutation has valid field values.
func (m *Mutation) Validate() error {
	if !m.Op.IsValid() {
		return fmt.Errorf("invalid op: %q", m.Op)
	}
	if m.EntityID == "" {
		return fmt.Errorf("entity_id is required")
	}
	if len(m.Payload) > 0 && !json.Valid(m.Payload) {
		return fmt.Errorf("payload is not valid JSON")
	}
	return nil
}

// UnmarshalPayload decodes the mutation payload into a domain record.
func (m *Mutation) UnmarshalPayload(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("mutation %d has no payload", m.ID)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("failed to unmarshal payload of mutation %d: %w", m.ID, err)
	}
	return nil
}

// MarshalPayload serializes a domain record into a mutation payload.
func MarshalPayload(v any) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return data, nil
}
