package audit

import "time"

// Event is an immutable, append-only audit record.
//
// Invariants:
// - Events are never updated or deleted.
// - Recording is best-effort; callers never block batch progress on audit failures.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	ProfileID string    `json:"profileId,omitempty"`

	// ActorUserID is set when a user (not a background worker) caused the event.
	ActorUserID string `json:"actorUserId,omitempty"`
	ActorRole   string `json:"actorRole,omitempty"`

	BatchID string `json:"batchId,omitempty"`
	CallID  string `json:"callId,omitempty"`

	// Message is a short human-readable description for operators.
	Message string `json:"message,omitempty"`
	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

type EventType string

const (
	EventBatchSubmitted EventType = "batch_submitted"
	EventBatchCompleted EventType = "batch_completed"
	EventBatchFailed    EventType = "batch_failed"
	EventBatchRequeued  EventType = "batch_requeued"
	EventAdminAction    EventType = "admin_action"
)
