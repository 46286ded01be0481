package interview

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"cati-platform/internal/audit"
	"cati-platform/internal/calls"
	"cati-platform/internal/queue"
	"cati-platform/pkg/logger"

	"github.com/google/uuid"
)

// ErrInconsistent marks a post-write verification mismatch between the
// response and its SetRecord mirror. Logged, never fatal: by the time it can
// occur the interview is already durably recorded.
var ErrInconsistent = errors.New("interview: set record verification mismatch")

// VerifierAutoRejection is stamped as VerifiedBy when the evaluator, not a
// human reviewer, rejects a response.
const VerifierAutoRejection = "auto_rejection"

// Processor finalizes completed interviews.
type Processor struct {
	store     queue.Store
	responses ResponseRepository
	sets      SetRecordRepository
	surveys   SurveyRepository
	records   calls.Repository
	evaluator *Evaluator
	review    ReviewIntake
	audit     *audit.Service

	clock func() time.Time
}

func NewProcessor(store queue.Store, responses ResponseRepository, sets SetRecordRepository, surveys SurveyRepository, records calls.Repository, evaluator *Evaluator, review ReviewIntake, auditSvc *audit.Service) *Processor {
	return &Processor{
		store:     store,
		responses: responses,
		sets:      sets,
		surveys:   surveys,
		records:   records,
		evaluator: evaluator,
		review:    review,
		audit:     auditSvc,
		clock:     time.Now,
	}
}

// Complete finalizes the interview for a claimed queue entry. Idempotent per
// session: a retried submission converges onto the same response record. The
// returned status is always Pending_Approval even when auto-rejection already
// decided otherwise.
func (p *Processor) Complete(ctx context.Context, entryID, interviewerID string, payload CompletionPayload) (FinalizedResponse, error) {
	if entryID == "" || interviewerID == "" || payload.SessionID == "" {
		return FinalizedResponse{}, fmt.Errorf("%w: entry id, interviewer id and session id are required", queue.ErrValidation)
	}

	e, err := p.store.Get(ctx, entryID)
	if err != nil {
		return FinalizedResponse{}, err
	}
	survey, ok, err := p.surveys.Get(ctx, e.SurveyID)
	if err != nil {
		return FinalizedResponse{}, fmt.Errorf("load survey: %w", err)
	}
	if !ok {
		return FinalizedResponse{}, fmt.Errorf("%w: survey %s", queue.ErrNotFound, e.SurveyID)
	}
	// A retried completion arrives after CompleteSuccess cleared the owner;
	// tolerate it only when this entry is already finalized AND the recorded
	// response was conducted by the same interviewer. Anyone else is forbidden.
	if e.Owner != interviewerID {
		if e.Status != queue.StatusInterviewSuccess || e.ResponseID == "" {
			return FinalizedResponse{}, queue.ErrForbidden
		}
		prior, found, err := p.responses.FindByQueueEntry(ctx, e.ID)
		if err != nil {
			return FinalizedResponse{}, fmt.Errorf("find response by entry: %w", err)
		}
		if !found || prior.InterviewerID != interviewerID {
			return FinalizedResponse{}, queue.ErrForbidden
		}
	}

	now := p.clock().UTC()

	// Location codes come from the calling list, never the interviewer.
	if e.Respondent.AreaCode != "" {
		payload.AreaCode = e.Respondent.AreaCode
	}
	if e.Respondent.PrecinctCode != "" {
		payload.PrecinctCode = e.Respondent.PrecinctCode
	}

	providerCallID := p.resolveProviderCallID(ctx, e)

	resp, existing, err := p.locateResponse(ctx, payload.SessionID, e.ID)
	if err != nil {
		return FinalizedResponse{}, err
	}
	if !existing {
		resp = Response{
			ID:        uuid.NewString(),
			SessionID: payload.SessionID,
			CreatedAt: now,
		}
	}

	resp.SurveyID = e.SurveyID
	resp.QueueEntryID = e.ID
	resp.InterviewerID = interviewerID
	resp.Answers = payload.Answers
	resp.AreaCode = payload.AreaCode
	resp.PrecinctCode = payload.PrecinctCode
	resp.ProviderCallID = providerCallID
	resp.UpdatedAt = now
	if payload.SetNumber != nil {
		resp.SetNumber = payload.SetNumber
	}

	applyTiming(&resp, payload)
	applyStatistics(&resp, payload, survey)

	if resp.ApprovalStatus == "" {
		resp.ApprovalStatus = ApprovalPending
	}

	if existing {
		err = p.responses.Update(ctx, resp)
	} else {
		err = p.responses.Insert(ctx, resp)
	}
	if err != nil {
		return FinalizedResponse{}, fmt.Errorf("persist response: %w", err)
	}

	// From here on the interview is durably recorded; later failures degrade,
	// they do not abort.
	if resp.SetNumber != nil {
		if err := p.mirrorSetRecord(ctx, resp, now); err != nil {
			logger.From(ctx).Error("set record mirror failed", "response_id", resp.ID, "err", err)
		}
	}

	autoRejected := p.applyAutoRejection(ctx, &resp, now)

	if !autoRejected && p.review != nil {
		if err := p.review.EnqueueForReview(ctx, resp.ID, resp.SurveyID, interviewerID); err != nil {
			logger.From(ctx).Error("review intake failed", "response_id", resp.ID, "err", err)
		}
	}

	if _, err := p.store.CompleteSuccess(ctx, e.ID, resp.ID, now); err != nil {
		return FinalizedResponse{}, fmt.Errorf("finalize queue entry: %w", err)
	}

	if err := p.audit.LogCompletion(ctx, e.SurveyID, e.ID, interviewerID, resp.ID); err != nil {
		logger.From(ctx).Warn("audit append failed", "err", err)
	}

	return FinalizedResponse{ResponseID: resp.ID, ApprovalStatus: ApprovalPending}, nil
}

// locateResponse implements the idempotency lookup: session id first, then
// queue entry id.
func (p *Processor) locateResponse(ctx context.Context, sessionID, entryID string) (Response, bool, error) {
	resp, ok, err := p.responses.FindBySession(ctx, sessionID)
	if err != nil {
		return Response{}, false, fmt.Errorf("find response by session: %w", err)
	}
	if ok {
		return resp, true, nil
	}
	resp, ok, err = p.responses.FindByQueueEntry(ctx, entryID)
	if err != nil {
		return Response{}, false, fmt.Errorf("find response by entry: %w", err)
	}
	return resp, ok, nil
}

func (p *Processor) resolveProviderCallID(ctx context.Context, e queue.QueueEntry) string {
	rec, ok, err := p.records.LatestForEntry(ctx, e.ID)
	if err != nil {
		logger.From(ctx).Warn("call record lookup failed", "entry_id", e.ID, "err", err)
		return ""
	}
	if !ok {
		return ""
	}
	return rec.ProviderCallID
}

// mirrorSetRecord writes the question-set identifier to the SetRecord mirror,
// verifies the read-back, and retries once on mismatch.
func (p *Processor) mirrorSetRecord(ctx context.Context, resp Response, now time.Time) error {
	rec := SetRecord{
		ResponseID: resp.ID,
		SurveyID:   resp.SurveyID,
		SetNumber:  *resp.SetNumber,
		UpdatedAt:  now,
	}
	for attempt := 0; attempt < 2; attempt++ {
		if err := p.sets.Upsert(ctx, rec); err != nil {
			return fmt.Errorf("upsert set record: %w", err)
		}
		got, ok, err := p.sets.Get(ctx, resp.ID)
		if err != nil {
			return fmt.Errorf("verify set record: %w", err)
		}
		if ok && got.SetNumber == rec.SetNumber {
			return nil
		}
	}
	return ErrInconsistent
}

// applyAutoRejection runs the evaluator and, when it fires, stamps the
// rejection onto the response without touching the set number written before.
func (p *Processor) applyAutoRejection(ctx context.Context, resp *Response, now time.Time) bool {
	if p.evaluator == nil {
		return false
	}
	verdict, err := p.evaluator.Evaluate(ctx, *resp)
	if err != nil {
		logger.From(ctx).Error("auto-rejection evaluation failed", "response_id", resp.ID, "err", err)
		return false
	}
	if !verdict.Rejected() {
		return false
	}

	resp.ApprovalStatus = ApprovalRejected
	resp.AutoRejected = true
	resp.RejectionReasons = verdict.Reasons
	resp.Feedback = verdict.Feedback
	resp.VerifiedBy = VerifierAutoRejection
	t := now
	resp.VerifiedAt = &t
	resp.UpdatedAt = now

	if err := p.responses.Update(ctx, *resp); err != nil {
		logger.From(ctx).Error("auto-rejection persist failed", "response_id", resp.ID, "err", err)
		return false
	}
	logger.From(ctx).Info("response auto-rejected",
		"response_id", resp.ID,
		"reasons", strings.Join(verdict.Reasons, "; "),
	)
	return true
}

func applyTiming(resp *Response, payload CompletionPayload) {
	if payload.StartedAt != nil {
		resp.StartedAt = payload.StartedAt
	}
	if payload.EndedAt != nil {
		resp.EndedAt = payload.EndedAt
	}
	switch {
	case payload.TotalTimeSeconds != nil:
		resp.TotalTimeSeconds = *payload.TotalTimeSeconds
	case resp.StartedAt != nil && resp.EndedAt != nil:
		d := resp.EndedAt.Sub(*resp.StartedAt)
		if d > 0 {
			resp.TotalTimeSeconds = int(d / time.Second)
		}
	}
}

func applyStatistics(resp *Response, payload CompletionPayload, survey Survey) {
	if payload.TotalQuestions != nil {
		resp.TotalQuestions = *payload.TotalQuestions
	} else {
		resp.TotalQuestions = len(survey.Questions)
	}

	if payload.AnsweredQuestions != nil {
		resp.AnsweredQuestions = *payload.AnsweredQuestions
	} else {
		answered := 0
		for _, a := range resp.Answers {
			if strings.TrimSpace(a) != "" {
				answered++
			}
		}
		resp.AnsweredQuestions = answered
	}

	if payload.CompletionPercent != nil {
		resp.CompletionPercent = *payload.CompletionPercent
	} else if resp.TotalQuestions > 0 {
		pct := float64(resp.AnsweredQuestions) / float64(resp.TotalQuestions) * 100
		resp.CompletionPercent = math.Round(pct*100) / 100
	}
}
