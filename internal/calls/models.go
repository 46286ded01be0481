package calls

import "time"

// CallRecord is the provisional record opened when a provider call is
// initiated for a queue entry. It correlates the entry with the provider's
// call id so asynchronous delivery-status updates (handled outside this core)
// can be matched later.
type CallRecord struct {
	ID            string `json:"id" db:"id"`
	SurveyID      string `json:"survey_id" db:"survey_id"`
	QueueEntryID  string `json:"queue_entry_id" db:"queue_entry_id"`
	InterviewerID string `json:"interviewer_id" db:"interviewer_id"`

	ProviderCallID string `json:"provider_call_id" db:"provider_call_id"`

	// FromNumber/ToNumber are stored digits-only, as sent to the provider.
	FromNumber string `json:"from_number" db:"from_number"`
	ToNumber   string `json:"to_number" db:"to_number"`

	Status CallRecordStatus `json:"status" db:"status"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type CallRecordStatus string

const (
	CallRecordStatusInitiated CallRecordStatus = "initiated"
	CallRecordStatusFailed    CallRecordStatus = "failed"
)
