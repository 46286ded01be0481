package queue

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound: the entry (or its survey) does not exist.
	ErrNotFound = errors.New("queue: entry not found")
	// ErrNoEligibleRespondent is the normal empty-queue result, not a failure.
	ErrNoEligibleRespondent = errors.New("queue: no eligible respondent")
	// ErrConflict: a conditional transition lost to a concurrent update
	// (the entry's status was no longer in the expected set).
	ErrConflict = errors.New("queue: entry state conflict")
	// ErrForbidden: the caller does not own the entry.
	ErrForbidden = errors.New("queue: entry owned by another interviewer")
	// ErrValidation: malformed input.
	ErrValidation = errors.New("queue: invalid argument")
)

// Store is the persistence contract for queue entries.
//
// Every transition method is a single conditional update guarded by the
// entry's current status. A separate read followed by a separate write is
// never acceptable here: that window lets two interviewers claim the same
// respondent.
type Store interface {
	Insert(ctx context.Context, e QueueEntry) error
	Get(ctx context.Context, id string) (QueueEntry, error)

	// ClaimNext atomically assigns the highest-priority, then oldest, pending
	// entry of the survey to the interviewer. Returns ErrNoEligibleRespondent
	// when the survey has no pending work.
	ClaimNext(ctx context.Context, surveyID, interviewerID string, now time.Time) (QueueEntry, error)

	// MarkCalling transitions assigned -> calling for an entry owned by owner,
	// linking the provisional call record.
	MarkCalling(ctx context.Context, id, owner, callRecordID string, now time.Time) (QueueEntry, error)

	// RequeueTail returns an assigned/calling entry to pending at PriorityTail,
	// clearing the owner and refreshing CreatedAt so the entry queues behind
	// later arrivals.
	RequeueTail(ctx context.Context, id, reason, notes string, now time.Time) (QueueEntry, error)

	// RequeueBoost returns an assigned/calling entry to pending at
	// PriorityCallLater, preserving CreatedAt and recording the scheduled
	// callback time.
	RequeueBoost(ctx context.Context, id, reason, notes string, callBackAt *time.Time, now time.Time) (QueueEntry, error)

	// Terminate moves an assigned/calling entry to a terminal non-success
	// status, clearing the owner.
	Terminate(ctx context.Context, id string, st Status, reason, notes string, now time.Time) (QueueEntry, error)

	// CompleteSuccess transitions assigned/calling -> interview_success and
	// links the finalized response. Calling it again for the same response id
	// is a no-op (idempotent completion retries).
	CompleteSuccess(ctx context.Context, id, responseID string, now time.Time) (QueueEntry, error)

	// AppendAttempt adds a record to the entry's attempt log and bumps the
	// attempt counter. The attempt number is assigned by the store.
	AppendAttempt(ctx context.Context, id string, a CallAttempt) error

	// AmendLastAttempt rewrites the outcome fields of the most recent attempt.
	// If the entry has no attempts yet (abandon before any dial), a record is
	// appended instead.
	AmendLastAttempt(ctx context.Context, id string, outcome AttemptOutcome, reason, notes string, callBackAt *time.Time) error

	// PhoneQueued reports whether a non-deleted entry with the normalized phone
	// already exists for the survey.
	PhoneQueued(ctx context.Context, surveyID, phone string) (bool, error)

	// StatusCounts returns entry counts by status for supervisor summaries.
	StatusCounts(ctx context.Context, surveyID string) (map[Status]int, error)
}
