package calls

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cati-platform/internal/audit"
	"cati-platform/internal/queue"
	"cati-platform/internal/telephony"
	"cati-platform/pkg/logger"
	"cati-platform/pkg/utils"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrCallFailed marks a call-initiation failure. The entry has already been
// requeued to the tail by the time this error is returned; it is a reportable
// outcome, never a crash.
var ErrCallFailed = errors.New("calls: call initiation failed")

// ErrCallInProgress: the interviewer already holds the maximum number of
// in-flight provider calls.
var ErrCallInProgress = errors.New("calls: interviewer already has a call in flight")

// slotLimiter enforces the per-interviewer in-flight cap. The Redis-backed
// implementation is advisory: slots auto-expire, Release just returns them
// early.
type slotLimiter interface {
	Acquire(ctx context.Context, key string, limit int, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type redisLimiter struct{ rdb *redis.Client }

func (l redisLimiter) Acquire(ctx context.Context, key string, limit int, ttl time.Duration) (bool, error) {
	return utils.AcquireConcurrencyCap(ctx, l.rdb, key, limit, ttl)
}

func (l redisLimiter) Release(ctx context.Context, key string) error {
	return utils.ReleaseConcurrencyCap(ctx, l.rdb, key)
}

// Orchestrator dials the respondent for a claimed entry and applies the
// outcome: success moves the entry to calling, failure requeues it to the
// tail.
type Orchestrator struct {
	store    queue.Store
	records  Repository
	provider telephony.Provider
	audit    *audit.Service

	// limiter is optional; when set it enforces the per-interviewer in-flight cap.
	limiter     slotLimiter
	maxInFlight int

	ringSeconds    int
	requestTimeout time.Duration

	clock func() time.Time
}

type OrchestratorConfig struct {
	RingSeconds    int
	RequestTimeout time.Duration
	MaxInFlight    int
}

func NewOrchestrator(store queue.Store, records Repository, provider telephony.Provider, auditSvc *audit.Service, rdb *redis.Client, cfg OrchestratorConfig) *Orchestrator {
	if cfg.RingSeconds <= 0 {
		cfg.RingSeconds = 30
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 1
	}
	var limiter slotLimiter
	if rdb != nil {
		limiter = redisLimiter{rdb: rdb}
	}
	return &Orchestrator{
		store:          store,
		records:        records,
		provider:       provider,
		audit:          auditSvc,
		limiter:        limiter,
		maxInFlight:    cfg.MaxInFlight,
		ringSeconds:    cfg.RingSeconds,
		requestTimeout: cfg.RequestTimeout,
		clock:          time.Now,
	}
}

// PlacedCall is the success payload of PlaceCall.
type PlacedCall struct {
	Entry          queue.QueueEntry `json:"entry"`
	CallRecordID   string           `json:"call_record_id"`
	ProviderCallID string           `json:"provider_call_id"`
}

// PlaceCall bridges the interviewer and the claimed respondent through the
// telephony provider.
func (o *Orchestrator) PlaceCall(ctx context.Context, entryID, interviewerID, interviewerPhone string) (PlacedCall, error) {
	if entryID == "" || interviewerID == "" {
		return PlacedCall{}, queue.ErrValidation
	}

	e, err := o.store.Get(ctx, entryID)
	if err != nil {
		return PlacedCall{}, err
	}
	if e.Owner != interviewerID {
		return PlacedCall{}, queue.ErrForbidden
	}
	if e.Status != queue.StatusAssigned {
		return PlacedCall{}, queue.ErrConflict
	}

	from := utils.DigitsOnly(interviewerPhone)
	to := utils.DigitsOnly(e.Respondent.CountryCode + e.Respondent.Phone)
	if from == "" || to == "" {
		return PlacedCall{}, fmt.Errorf("%w: phone numbers must contain digits", queue.ErrValidation)
	}

	if err := o.acquireSlot(ctx, interviewerID); err != nil {
		return PlacedCall{}, err
	}

	now := o.clock().UTC()

	callCtx, cancel := telephony.WithTimeout(ctx, o.requestTimeout)
	defer cancel()

	result, callErr := o.provider.InitiateCall(callCtx, telephony.CallRequest{
		From:            from,
		To:              to,
		FromType:        "interviewer",
		ToType:          "respondent",
		FromRingSeconds: o.ringSeconds,
		ToRingSeconds:   o.ringSeconds,
	})
	if callErr != nil {
		o.releaseSlot(ctx, interviewerID)
		return PlacedCall{}, o.failCall(ctx, e, interviewerID, callErr, now)
	}

	rec := CallRecord{
		ID:             uuid.NewString(),
		SurveyID:       e.SurveyID,
		QueueEntryID:   e.ID,
		InterviewerID:  interviewerID,
		ProviderCallID: result.ProviderCallID,
		FromNumber:     from,
		ToNumber:       to,
		Status:         CallRecordStatusInitiated,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := o.records.Insert(ctx, rec); err != nil {
		// The provider call is already ringing; losing the record is a
		// traceability gap, not a reason to fail the interviewer.
		logger.From(ctx).Error("call record insert failed", "entry_id", e.ID, "err", err)
	}

	if err := o.store.AppendAttempt(ctx, e.ID, queue.CallAttempt{
		At:             now,
		Actor:          interviewerID,
		Outcome:        queue.AttemptOutcomeInitiated,
		ProviderCallID: result.ProviderCallID,
	}); err != nil {
		logger.From(ctx).Error("attempt append failed", "entry_id", e.ID, "err", err)
	}

	updated, err := o.store.MarkCalling(ctx, e.ID, interviewerID, rec.ID, now)
	if err != nil {
		o.releaseSlot(ctx, interviewerID)
		return PlacedCall{}, err
	}

	o.logAudit(ctx, o.audit.LogCall(ctx, e.SurveyID, e.ID, interviewerID, result.ProviderCallID, "call initiated", true))

	return PlacedCall{Entry: updated, CallRecordID: rec.ID, ProviderCallID: result.ProviderCallID}, nil
}

// failCall applies the call_failed transition: log the attempt, requeue to the
// tail, and surface the provider message as a reportable failure.
func (o *Orchestrator) failCall(ctx context.Context, e queue.QueueEntry, interviewerID string, callErr error, now time.Time) error {
	msg := callErr.Error()

	if err := o.store.AppendAttempt(ctx, e.ID, queue.CallAttempt{
		At:      now,
		Actor:   interviewerID,
		Outcome: queue.AttemptOutcomeFailed,
		Reason:  msg,
	}); err != nil {
		logger.From(ctx).Error("attempt append failed", "entry_id", e.ID, "err", err)
	}

	if _, err := o.store.RequeueTail(ctx, e.ID, "call_failed", msg, now); err != nil {
		logger.From(ctx).Error("tail requeue failed", "entry_id", e.ID, "err", err)
	}

	o.logAudit(ctx, o.audit.LogCall(ctx, e.SurveyID, e.ID, interviewerID, "", msg, false))

	return fmt.Errorf("%w: %s", ErrCallFailed, msg)
}

// ReleaseCall returns the interviewer's in-flight slot once the attempt has
// resolved, instead of waiting out the TTL. Called from the abandon and
// completion paths; releasing an already-expired slot is a no-op.
func (o *Orchestrator) ReleaseCall(ctx context.Context, interviewerID string) {
	o.releaseSlot(ctx, interviewerID)
}

func (o *Orchestrator) acquireSlot(ctx context.Context, interviewerID string) error {
	if o.limiter == nil {
		return nil
	}
	// TTL covers both ring budgets plus slack so a crashed process cannot
	// leak the slot.
	ttl := time.Duration(2*o.ringSeconds)*time.Second + o.requestTimeout
	ok, err := o.limiter.Acquire(ctx, inflightKey(interviewerID), o.maxInFlight, ttl)
	if err != nil {
		// Redis being down must not stop interviewing; the cap is advisory.
		logger.From(ctx).Warn("in-flight cap unavailable", "err", err)
		return nil
	}
	if !ok {
		return ErrCallInProgress
	}
	return nil
}

func (o *Orchestrator) releaseSlot(ctx context.Context, interviewerID string) {
	if o.limiter == nil {
		return
	}
	if err := o.limiter.Release(ctx, inflightKey(interviewerID)); err != nil {
		logger.From(ctx).Warn("in-flight cap release failed", "err", err)
	}
}

func inflightKey(interviewerID string) string {
	return "cati:inflight:" + interviewerID
}

func (o *Orchestrator) logAudit(ctx context.Context, err error) {
	if err != nil {
		logger.From(ctx).Warn("audit append failed", "err", err)
	}
}
