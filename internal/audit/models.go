package audit

import "time"

// Event is an immutable, append-only audit log record of a queue-entry
// lifecycle step.
//
// Invariants:
// - Events are never updated or deleted.
// - Actor capture is best-effort; do not block interviewer flows on audit failures.
//
// Storage recommendation (Postgres):
// - Table audit_events with an INSERT-only policy.
// - Optional: trigger to prevent UPDATE/DELETE.
// - Optional: partition by time for retention.

type Event struct {
	ID       string `json:"id" db:"id"`
	SurveyID string `json:"survey_id" db:"survey_id"`

	// Type indicates the lifecycle step being recorded.
	Type EventType `json:"type" db:"type"`

	// ActorID is the interviewer (or system actor) causing the event.
	ActorID   string `json:"actor_id,omitempty" db:"actor_id"`
	ActorRole string `json:"actor_role,omitempty" db:"actor_role"`

	// Target identifiers (optional, depending on the event type).
	EntryID    string `json:"entry_id,omitempty" db:"entry_id"`
	ResponseID string `json:"response_id,omitempty" db:"response_id"`
	CallID     string `json:"call_id,omitempty" db:"call_id"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeEntryClaimed   EventType = "entry_claimed"
	EventTypeCallPlaced     EventType = "call_placed"
	EventTypeCallFailed     EventType = "call_failed"
	EventTypeEntryRequeued  EventType = "entry_requeued"
	EventTypeEntryAbandoned EventType = "entry_abandoned"
	EventTypeEntryCompleted EventType = "entry_completed"
)
