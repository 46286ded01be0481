package calls

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"cati-platform/internal/audit"
	"cati-platform/internal/queue"
	"cati-platform/internal/telephony"
)

// fakeProvider answers InitiateCall from a script.
type fakeProvider struct {
	result telephony.CallResult
	err    error
	calls  []telephony.CallRequest
}

func (f *fakeProvider) Name() string                              { return "fake" }
func (f *fakeProvider) HealthCheck(ctx context.Context) error     { return nil }
func (f *fakeProvider) InitiateCall(ctx context.Context, req telephony.CallRequest) (telephony.CallResult, error) {
	f.calls = append(f.calls, req)
	return f.result, f.err
}

func claimedEntry(t *testing.T, store *queue.MemoryStore, id, owner string) queue.QueueEntry {
	t.Helper()
	err := store.Insert(context.Background(), queue.QueueEntry{
		ID:       id,
		SurveyID: "s-1",
		Respondent: queue.Respondent{
			Name:        "R",
			CountryCode: "91",
			Phone:       "98765 43210",
		},
		Status:    queue.StatusPending,
		CreatedAt: time.Unix(1699990000, 0).UTC(),
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	e, err := store.ClaimNext(context.Background(), "s-1", owner, time.Unix(1699990100, 0).UTC())
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	return e
}

func newOrchestrator(store *queue.MemoryStore, records *MemoryRepo, p telephony.Provider) *Orchestrator {
	return NewOrchestrator(store, records, p, audit.NewService(audit.NewMemoryRepo()), nil, OrchestratorConfig{})
}

func TestPlaceCall_SuccessMovesEntryToCalling(t *testing.T) {
	store := queue.NewMemoryStore()
	records := NewMemoryRepo()
	provider := &fakeProvider{result: telephony.CallResult{ProviderCallID: "CA1", Status: "in-progress"}}
	o := newOrchestrator(store, records, provider)

	claimedEntry(t, store, "e-1", "int-1")

	out, err := o.PlaceCall(context.Background(), "e-1", "int-1", "+91 80111 22233")
	if err != nil {
		t.Fatalf("place call: %v", err)
	}
	if out.Entry.Status != queue.StatusCalling {
		t.Fatalf("expected calling, got %s", out.Entry.Status)
	}
	if out.ProviderCallID != "CA1" {
		t.Fatalf("expected provider call id, got %+v", out)
	}

	// Numbers must be digits-only on the wire.
	if len(provider.calls) != 1 {
		t.Fatalf("expected one provider call")
	}
	req := provider.calls[0]
	if req.From != "918011122233" || req.To != "919876543210" {
		t.Fatalf("expected normalized numbers, got from=%q to=%q", req.From, req.To)
	}
	if req.FromRingSeconds != 30 || req.ToRingSeconds != 30 {
		t.Fatalf("expected 30s ring budgets, got %+v", req)
	}

	// Provisional record linked for later correlation.
	rec, ok, err := records.LatestForEntry(context.Background(), "e-1")
	if err != nil || !ok {
		t.Fatalf("expected call record, ok=%v err=%v", ok, err)
	}
	if rec.ProviderCallID != "CA1" || rec.Status != CallRecordStatusInitiated {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if out.Entry.CallRecordID != rec.ID {
		t.Fatalf("entry not linked to call record")
	}

	e, _ := store.Get(context.Background(), "e-1")
	if len(e.AttemptLog) != 1 || e.AttemptLog[0].Outcome != queue.AttemptOutcomeInitiated {
		t.Fatalf("expected initiated attempt logged, got %+v", e.AttemptLog)
	}
}

func TestPlaceCall_ProviderFailureRequeuesTail(t *testing.T) {
	store := queue.NewMemoryStore()
	provider := &fakeProvider{err: fmt.Errorf("%w: Insufficient balance", telephony.ErrTransport)}
	o := newOrchestrator(store, NewMemoryRepo(), provider)

	claimedEntry(t, store, "e-1", "int-1")

	_, err := o.PlaceCall(context.Background(), "e-1", "int-1", "8011122233")
	if !errors.Is(err, ErrCallFailed) {
		t.Fatalf("expected ErrCallFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "Insufficient balance") {
		t.Fatalf("expected provider message in error, got %v", err)
	}

	e, getErr := store.Get(context.Background(), "e-1")
	if getErr != nil {
		t.Fatalf("get: %v", getErr)
	}
	if e.Status != queue.StatusPending || e.Owner != "" {
		t.Fatalf("expected unowned pending after failure, got %s owner %q", e.Status, e.Owner)
	}
	if e.Priority != queue.PriorityTail {
		t.Fatalf("expected tail priority, got %d", e.Priority)
	}
	if len(e.AttemptLog) != 1 || e.AttemptLog[0].Outcome != queue.AttemptOutcomeFailed {
		t.Fatalf("expected failed attempt logged, got %+v", e.AttemptLog)
	}
}

func TestPlaceCall_RequiresOwnership(t *testing.T) {
	store := queue.NewMemoryStore()
	o := newOrchestrator(store, NewMemoryRepo(), &fakeProvider{})

	claimedEntry(t, store, "e-1", "int-1")

	if _, err := o.PlaceCall(context.Background(), "e-1", "int-2", "8011122233"); !errors.Is(err, queue.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestPlaceCall_RejectsNonDigitPhone(t *testing.T) {
	store := queue.NewMemoryStore()
	o := newOrchestrator(store, NewMemoryRepo(), &fakeProvider{})

	claimedEntry(t, store, "e-1", "int-1")

	if _, err := o.PlaceCall(context.Background(), "e-1", "int-1", "not-a-number"); !errors.Is(err, queue.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

// fakeLimiter counts slot traffic.
type fakeLimiter struct {
	acquired int
	released int
	deny     bool
}

func (f *fakeLimiter) Acquire(ctx context.Context, key string, limit int, ttl time.Duration) (bool, error) {
	f.acquired++
	return !f.deny, nil
}

func (f *fakeLimiter) Release(ctx context.Context, key string) error {
	f.released++
	return nil
}

// markCallingConflicts simulates the entry changing underneath the dial.
type markCallingConflicts struct {
	*queue.MemoryStore
}

func (s markCallingConflicts) MarkCalling(ctx context.Context, id, owner, callRecordID string, now time.Time) (queue.QueueEntry, error) {
	return queue.QueueEntry{}, queue.ErrConflict
}

func TestPlaceCall_SlotHeldUntilAttemptResolves(t *testing.T) {
	store := queue.NewMemoryStore()
	provider := &fakeProvider{result: telephony.CallResult{ProviderCallID: "CA1", Status: "in-progress"}}
	o := newOrchestrator(store, NewMemoryRepo(), provider)
	lim := &fakeLimiter{}
	o.limiter = lim

	claimedEntry(t, store, "e-1", "int-1")

	if _, err := o.PlaceCall(context.Background(), "e-1", "int-1", "8011122233"); err != nil {
		t.Fatalf("place call: %v", err)
	}
	if lim.acquired != 1 || lim.released != 0 {
		t.Fatalf("slot must stay held while the call is live, got acquired=%d released=%d", lim.acquired, lim.released)
	}

	// Abandon/completion hand the slot back without waiting out the TTL.
	o.ReleaseCall(context.Background(), "int-1")
	if lim.released != 1 {
		t.Fatalf("expected slot returned on resolution, got released=%d", lim.released)
	}
}

func TestPlaceCall_SlotReleasedWhenDialFails(t *testing.T) {
	store := queue.NewMemoryStore()
	provider := &fakeProvider{err: fmt.Errorf("%w: provider down", telephony.ErrTransport)}
	o := newOrchestrator(store, NewMemoryRepo(), provider)
	lim := &fakeLimiter{}
	o.limiter = lim

	claimedEntry(t, store, "e-1", "int-1")

	if _, err := o.PlaceCall(context.Background(), "e-1", "int-1", "8011122233"); !errors.Is(err, ErrCallFailed) {
		t.Fatalf("expected ErrCallFailed, got %v", err)
	}
	if lim.acquired != 1 || lim.released != 1 {
		t.Fatalf("failed dial must return the slot, got acquired=%d released=%d", lim.acquired, lim.released)
	}
}

func TestPlaceCall_SlotReleasedWhenMarkCallingFails(t *testing.T) {
	base := queue.NewMemoryStore()
	store := markCallingConflicts{MemoryStore: base}
	provider := &fakeProvider{result: telephony.CallResult{ProviderCallID: "CA1", Status: "in-progress"}}
	o := NewOrchestrator(store, NewMemoryRepo(), provider, audit.NewService(audit.NewMemoryRepo()), nil, OrchestratorConfig{})
	lim := &fakeLimiter{}
	o.limiter = lim

	claimedEntry(t, base, "e-1", "int-1")

	if _, err := o.PlaceCall(context.Background(), "e-1", "int-1", "8011122233"); !errors.Is(err, queue.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if lim.acquired != 1 || lim.released != 1 {
		t.Fatalf("failed transition must return the slot, got acquired=%d released=%d", lim.acquired, lim.released)
	}
}

func TestPlaceCall_CapDeniedBeforeDialing(t *testing.T) {
	store := queue.NewMemoryStore()
	provider := &fakeProvider{result: telephony.CallResult{ProviderCallID: "CA1"}}
	o := newOrchestrator(store, NewMemoryRepo(), provider)
	o.limiter = &fakeLimiter{deny: true}

	claimedEntry(t, store, "e-1", "int-1")

	if _, err := o.PlaceCall(context.Background(), "e-1", "int-1", "8011122233"); !errors.Is(err, ErrCallInProgress) {
		t.Fatalf("expected ErrCallInProgress, got %v", err)
	}
	if len(provider.calls) != 0 {
		t.Fatalf("denied cap must not reach the provider")
	}
}
