package queue

import "time"

// QueueEntry is one respondent's outstanding or resolved call task for a survey.
//
// Invariants:
// - Phone is unique among non-deleted entries of the same survey (enforced at import).
// - At most one owner at any time.
// - status == pending  => Owner is empty.
// - status assigned/calling => Owner is set.
//
// Entries are never hard-deleted; the attempt log is the audit trail of every
// call made against the respondent.
type QueueEntry struct {
	ID       string `json:"id" db:"id"`
	SurveyID string `json:"survey_id" db:"survey_id"`

	Respondent Respondent `json:"respondent"`

	Status Status `json:"status" db:"status"`

	// Priority orders claiming: higher first. Tail-requeue demotes to PriorityTail,
	// call_later boosts to PriorityCallLater.
	Priority int `json:"priority" db:"priority"`

	// Owner is the interviewer currently holding the entry, empty when unowned.
	Owner     string     `json:"owner,omitempty" db:"owner"`
	ClaimedAt *time.Time `json:"claimed_at,omitempty" db:"claimed_at"`

	// CreatedAt doubles as the age tie-breaker and is rewritten on tail-requeue
	// to push the entry behind later arrivals.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	Attempts   int           `json:"attempts" db:"attempts"`
	AttemptLog []CallAttempt `json:"attempt_log,omitempty"`

	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`

	// ResponseID links the finalized interview once completion has run.
	ResponseID string `json:"response_id,omitempty" db:"response_id"`
	// CallRecordID links the most recent provisional call record.
	CallRecordID string `json:"call_record_id,omitempty" db:"call_record_id"`

	AbandonReason string     `json:"abandon_reason,omitempty" db:"abandon_reason"`
	AbandonNotes  string     `json:"abandon_notes,omitempty" db:"abandon_notes"`
	CallBackAt    *time.Time `json:"call_back_at,omitempty" db:"call_back_at"`
}

// Respondent is the contact snapshot captured at import time; immutable thereafter.
// CATI responses always carry these location codes, never interviewer-entered ones.
type Respondent struct {
	Name         string `json:"name" db:"name"`
	CountryCode  string `json:"country_code" db:"country_code"`
	Phone        string `json:"phone" db:"phone"`
	Email        string `json:"email,omitempty" db:"email"`
	Address      string `json:"address,omitempty" db:"address"`
	City         string `json:"city,omitempty" db:"city"`
	AreaCode     string `json:"area_code,omitempty" db:"area_code"`
	PrecinctCode string `json:"precinct_code,omitempty" db:"precinct_code"`
	StationCode  string `json:"station_code,omitempty" db:"station_code"`
}

// CallAttempt is one record in an entry's ordered attempt log.
type CallAttempt struct {
	Number  int            `json:"number" db:"number"`
	At      time.Time      `json:"at" db:"at"`
	Actor   string         `json:"actor" db:"actor"`
	Outcome AttemptOutcome `json:"outcome" db:"outcome"`
	Reason  string         `json:"reason,omitempty" db:"reason"`
	Notes   string         `json:"notes,omitempty" db:"notes"`

	ProviderCallID string     `json:"provider_call_id,omitempty" db:"provider_call_id"`
	CallBackAt     *time.Time `json:"call_back_at,omitempty" db:"call_back_at"`
}

type AttemptOutcome string

const (
	AttemptOutcomeInitiated AttemptOutcome = "initiated"
	AttemptOutcomeFailed    AttemptOutcome = "failed"
	// AttemptOutcomeCallLater marks attempts ended by a respondent asking to be
	// called back; the attempt did not fail, it was deferred.
	AttemptOutcomeCallLater AttemptOutcome = "call_later"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusAssigned Status = "assigned"
	StatusCalling  Status = "calling"

	StatusInterviewSuccess Status = "interview_success"
	StatusBusy             Status = "busy"
	StatusNoAnswer         Status = "no_answer"
	StatusSwitchedOff      Status = "switched_off"
	StatusNotReachable     Status = "not_reachable"
	StatusDoesNotExist     Status = "does_not_exist"
	StatusRejected         Status = "rejected"
	StatusNotInterested    Status = "not_interested"

	// call_failed and call_later are labels applied to the attempt log; the live
	// status of the entry returns to pending via the requeue policies below.
	StatusCallFailed Status = "call_failed"
	StatusCallLater  Status = "call_later"
)

// Priority bands. Tail-requeue deprioritizes repeatedly-failing entries behind
// fresh arrivals; call_later surfaces scheduled callbacks ahead of ordinary work.
const (
	PriorityTail      = -100
	PriorityNormal    = 0
	PriorityCallLater = 100
)

// RequeuePolicy describes what happens to the live entry after an outcome.
type RequeuePolicy int

const (
	// RequeueNone leaves the entry in its terminal status.
	RequeueNone RequeuePolicy = iota
	// RequeueTail returns the entry to pending at PriorityTail with refreshed age.
	RequeueTail
	// RequeueBoost returns the entry to pending at PriorityCallLater, preserving age.
	RequeueBoost
)

// ReasonPolicy is one row of the abandonment reason -> (status, requeue) table.
type ReasonPolicy struct {
	Status  Status
	Requeue RequeuePolicy
}

// abandonReasonPolicy maps interviewer-reported reasons to the transition applied.
// Unrecognized or absent reasons fall through to call_failed (tail requeue).
var abandonReasonPolicy = map[string]ReasonPolicy{
	"busy":           {Status: StatusBusy, Requeue: RequeueNone},
	"no_answer":      {Status: StatusNoAnswer, Requeue: RequeueNone},
	"switched_off":   {Status: StatusSwitchedOff, Requeue: RequeueNone},
	"not_reachable":  {Status: StatusNotReachable, Requeue: RequeueNone},
	"does_not_exist": {Status: StatusDoesNotExist, Requeue: RequeueNone},
	"rejected":       {Status: StatusRejected, Requeue: RequeueNone},
	"not_interested": {Status: StatusNotInterested, Requeue: RequeueNone},
	"call_later":     {Status: StatusCallLater, Requeue: RequeueBoost},
	"call_failed":    {Status: StatusCallFailed, Requeue: RequeueTail},
}

// PolicyForReason resolves the transition for an abandonment reason.
func PolicyForReason(reason string) ReasonPolicy {
	if p, ok := abandonReasonPolicy[reason]; ok {
		return p
	}
	return abandonReasonPolicy["call_failed"]
}

// IsTerminal reports whether no further transitions are allowed from st.
func IsTerminal(st Status) bool {
	switch st {
	case StatusInterviewSuccess, StatusBusy, StatusNoAnswer, StatusSwitchedOff,
		StatusNotReachable, StatusDoesNotExist, StatusRejected, StatusNotInterested:
		return true
	default:
		return false
	}
}
