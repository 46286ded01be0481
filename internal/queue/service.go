package queue

import (
	"context"
	"fmt"
	"time"

	"cati-platform/internal/audit"
	"cati-platform/pkg/logger"
)

// Service applies the claim/abandon state machine on top of a Store.
//
// Exclusivity invariant: claiming delegates to the store's atomic conditional
// update; the service never does a read-then-write around entry status.
type Service struct {
	store Store
	audit *audit.Service
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewService(store Store, auditSvc *audit.Service) *Service {
	return &Service{store: store, audit: auditSvc, clock: time.Now}
}

// ClaimNext hands the interviewer the next eligible respondent of the survey.
// An empty queue surfaces as ErrNoEligibleRespondent, which callers report as
// a normal "no respondents available" state.
func (s *Service) ClaimNext(ctx context.Context, surveyID, interviewerID string) (QueueEntry, error) {
	if surveyID == "" || interviewerID == "" {
		return QueueEntry{}, ErrValidation
	}

	e, err := s.store.ClaimNext(ctx, surveyID, interviewerID, s.clock().UTC())
	if err != nil {
		return QueueEntry{}, err
	}

	s.logAudit(ctx, s.audit.LogClaim(ctx, e.SurveyID, e.ID, interviewerID))
	return e, nil
}

// Abandon records a terminal or requeue outcome reported by the interviewer.
// The caller must own the entry; an unowned entry is tolerated to cover the
// call-initiation-failure path where ownership was already cleared.
func (s *Service) Abandon(ctx context.Context, entryID, interviewerID, reason, notes string, callBackAt *time.Time) (QueueEntry, error) {
	if entryID == "" || interviewerID == "" {
		return QueueEntry{}, ErrValidation
	}

	e, err := s.store.Get(ctx, entryID)
	if err != nil {
		return QueueEntry{}, err
	}
	if e.Owner != "" && e.Owner != interviewerID {
		return QueueEntry{}, ErrForbidden
	}
	// Reject already-resolved entries before the attempt log is touched.
	if IsTerminal(e.Status) {
		return QueueEntry{}, ErrConflict
	}

	pol := PolicyForReason(reason)
	now := s.clock().UTC()

	// The latest attempt carries the outcome; the entry's live status carries
	// only the resulting state. A callback request is a deferral, not a failure.
	outcome := AttemptOutcomeFailed
	if pol.Requeue == RequeueBoost {
		outcome = AttemptOutcomeCallLater
	}
	if err := s.store.AmendLastAttempt(ctx, entryID, outcome, reason, notes, callBackAt); err != nil {
		return QueueEntry{}, fmt.Errorf("amend attempt: %w", err)
	}

	var out QueueEntry
	switch pol.Requeue {
	case RequeueTail:
		out, err = s.store.RequeueTail(ctx, entryID, reason, notes, now)
	case RequeueBoost:
		out, err = s.store.RequeueBoost(ctx, entryID, reason, notes, callBackAt, now)
	default:
		out, err = s.store.Terminate(ctx, entryID, pol.Status, reason, notes, now)
	}
	if err != nil {
		return QueueEntry{}, err
	}

	s.logAudit(ctx, s.audit.LogAbandon(ctx, out.SurveyID, out.ID, interviewerID, reason, pol.Requeue != RequeueNone))
	return out, nil
}

// Summary returns entry counts by status for supervisor views.
func (s *Service) Summary(ctx context.Context, surveyID string) (map[Status]int, error) {
	if surveyID == "" {
		return nil, ErrValidation
	}
	return s.store.StatusCounts(ctx, surveyID)
}

// Audit is best-effort: log and continue.
func (s *Service) logAudit(ctx context.Context, err error) {
	if err != nil {
		logger.From(ctx).Warn("audit append failed", "err", err)
	}
}
