package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.

type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal audit information.
//
// IMPORTANT:
// - Audit is internal-only. Do not expose these records to interviewers by default.
// - Callers should treat audit logging as best-effort.

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s == nil || s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.SurveyID == "" {
		return ErrInvalidEvent
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// LogClaim records an entry being claimed by an interviewer.
func (s *Service) LogClaim(ctx context.Context, surveyID, entryID, interviewerID string) error {
	return s.Append(ctx, Event{
		SurveyID: surveyID,
		Type:     EventTypeEntryClaimed,
		ActorID:  interviewerID,
		EntryID:  entryID,
		Message:  "entry claimed",
	})
}

// LogCall records a call-initiation outcome for an entry.
func (s *Service) LogCall(ctx context.Context, surveyID, entryID, interviewerID, callID, message string, ok bool) error {
	typ := EventTypeCallPlaced
	if !ok {
		typ = EventTypeCallFailed
	}
	return s.Append(ctx, Event{
		SurveyID: surveyID,
		Type:     typ,
		ActorID:  interviewerID,
		EntryID:  entryID,
		CallID:   callID,
		Message:  message,
	})
}

// LogAbandon records a terminal or requeue outcome applied by an interviewer.
func (s *Service) LogAbandon(ctx context.Context, surveyID, entryID, interviewerID, reason string, requeued bool) error {
	typ := EventTypeEntryAbandoned
	if requeued {
		typ = EventTypeEntryRequeued
	}
	return s.Append(ctx, Event{
		SurveyID: surveyID,
		Type:     typ,
		ActorID:  interviewerID,
		EntryID:  entryID,
		Message:  reason,
	})
}

// LogCompletion records a finalized interview.
func (s *Service) LogCompletion(ctx context.Context, surveyID, entryID, interviewerID, responseID string) error {
	return s.Append(ctx, Event{
		SurveyID:   surveyID,
		Type:       EventTypeEntryCompleted,
		ActorID:    interviewerID,
		EntryID:    entryID,
		ResponseID: responseID,
		Message:    "interview completed",
	})
}
