package interview

import (
	"context"
	"errors"
	"testing"
	"time"

	"cati-platform/internal/audit"
	"cati-platform/internal/calls"
	"cati-platform/internal/queue"
)

type fakeIntake struct {
	enqueued []string
	err      error
}

func (f *fakeIntake) EnqueueForReview(ctx context.Context, responseID, surveyID, interviewerID string) error {
	if f.err != nil {
		return f.err
	}
	f.enqueued = append(f.enqueued, responseID)
	return nil
}

type fixture struct {
	store     *queue.MemoryStore
	responses *MemoryResponseRepo
	sets      *MemorySetRecordRepo
	records   *calls.MemoryRepo
	intake    *fakeIntake
	processor *Processor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:     queue.NewMemoryStore(),
		responses: NewMemoryResponseRepo(),
		sets:      NewMemorySetRecordRepo(),
		records:   calls.NewMemoryRepo(),
		intake:    &fakeIntake{},
	}
	surveys := NewMemorySurveyRepo(testSurvey())
	evaluator := NewEvaluator(f.responses, surveys, 180)
	evaluator.EnrollDuplicateRule("s-1", QuestionSelector{Tag: "contact_number"})
	f.processor = NewProcessor(f.store, f.responses, f.sets, surveys, f.records, evaluator, f.intake, audit.NewService(audit.NewMemoryRepo()))
	f.processor.clock = func() time.Time { return time.Unix(1700000000, 0).UTC() }
	return f
}

func (f *fixture) claim(t *testing.T, entryID, owner string) {
	t.Helper()
	err := f.store.Insert(context.Background(), queue.QueueEntry{
		ID:       entryID,
		SurveyID: "s-1",
		Respondent: queue.Respondent{
			Name:         "R",
			CountryCode:  "91",
			Phone:        "9000000001",
			AreaCode:     "AC-7",
			PrecinctCode: "P-12",
		},
		Status:    queue.StatusPending,
		CreatedAt: time.Unix(1699990000, 0).UTC(),
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := f.store.ClaimNext(context.Background(), "s-1", owner, time.Unix(1699990100, 0).UTC()); err != nil {
		t.Fatalf("claim: %v", err)
	}
}

func longPayload(sessionID string) CompletionPayload {
	seconds := 300
	return CompletionPayload{
		SessionID:        sessionID,
		Answers:          map[string]string{"q1": "25-34", "q2": "90000 00001", "q3": ""},
		TotalTimeSeconds: &seconds,
	}
}

func TestComplete_IdempotentPerSession(t *testing.T) {
	f := newFixture(t)
	f.claim(t, "e-1", "int-1")

	first, err := f.processor.Complete(context.Background(), "e-1", "int-1", longPayload("sess-1"))
	if err != nil {
		t.Fatalf("first complete: %v", err)
	}
	second, err := f.processor.Complete(context.Background(), "e-1", "int-1", longPayload("sess-1"))
	if err != nil {
		t.Fatalf("second complete: %v", err)
	}
	if first.ResponseID != second.ResponseID {
		t.Fatalf("expected one response id, got %s and %s", first.ResponseID, second.ResponseID)
	}
	if n := f.responses.Count(); n != 1 {
		t.Fatalf("expected exactly one response record, got %d", n)
	}
}

func TestComplete_AlwaysReturnsPendingApproval(t *testing.T) {
	f := newFixture(t)
	f.claim(t, "e-1", "int-1")

	seconds := 90 // below threshold, will auto-reject
	payload := longPayload("sess-1")
	payload.TotalTimeSeconds = &seconds

	out, err := f.processor.Complete(context.Background(), "e-1", "int-1", payload)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if out.ApprovalStatus != ApprovalPending {
		t.Fatalf("interviewer must see Pending_Approval, got %s", out.ApprovalStatus)
	}

	resp, ok, err := f.responses.FindBySession(context.Background(), "sess-1")
	if err != nil || !ok {
		t.Fatalf("find response: ok=%v err=%v", ok, err)
	}
	if resp.ApprovalStatus != ApprovalRejected || !resp.AutoRejected {
		t.Fatalf("expected stored auto-rejection, got %+v", resp)
	}
	if resp.VerifiedBy != VerifierAutoRejection || resp.VerifiedAt == nil {
		t.Fatalf("expected verification metadata, got %+v", resp)
	}
	if len(f.intake.enqueued) != 0 {
		t.Fatalf("auto-rejected responses must skip review intake")
	}
}

func TestComplete_SetNumberPersistedBothPlaces(t *testing.T) {
	f := newFixture(t)
	f.claim(t, "e-1", "int-1")

	payload := longPayload("sess-1")
	set := 2
	payload.SetNumber = &set

	out, err := f.processor.Complete(context.Background(), "e-1", "int-1", payload)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}

	resp, ok, _ := f.responses.FindBySession(context.Background(), "sess-1")
	if !ok || resp.SetNumber == nil || *resp.SetNumber != 2 {
		t.Fatalf("expected set number 2 on response, got %+v", resp)
	}
	rec, ok, err := f.sets.Get(context.Background(), out.ResponseID)
	if err != nil || !ok {
		t.Fatalf("expected set record, ok=%v err=%v", ok, err)
	}
	if rec.SetNumber != 2 || rec.SurveyID != "s-1" {
		t.Fatalf("unexpected set record: %+v", rec)
	}
}

func TestComplete_SetRecordWriteVerifyRetries(t *testing.T) {
	f := newFixture(t)
	f.claim(t, "e-1", "int-1")
	f.sets.DropNextWrite = true

	payload := longPayload("sess-1")
	set := 3
	payload.SetNumber = &set

	out, err := f.processor.Complete(context.Background(), "e-1", "int-1", payload)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	rec, ok, _ := f.sets.Get(context.Background(), out.ResponseID)
	if !ok || rec.SetNumber != 3 {
		t.Fatalf("expected retry to land the set record, got ok=%v rec=%+v", ok, rec)
	}
}

func TestComplete_AutoRejectionPreservesSetNumber(t *testing.T) {
	f := newFixture(t)
	f.claim(t, "e-1", "int-1")

	seconds := 60
	set := 4
	payload := longPayload("sess-1")
	payload.TotalTimeSeconds = &seconds
	payload.SetNumber = &set

	if _, err := f.processor.Complete(context.Background(), "e-1", "int-1", payload); err != nil {
		t.Fatalf("complete: %v", err)
	}
	resp, ok, _ := f.responses.FindBySession(context.Background(), "sess-1")
	if !ok || resp.ApprovalStatus != ApprovalRejected {
		t.Fatalf("expected rejected response, got %+v", resp)
	}
	if resp.SetNumber == nil || *resp.SetNumber != 4 {
		t.Fatalf("rejection must not clobber set number, got %+v", resp.SetNumber)
	}
}

func TestComplete_QueueEntryFinalized(t *testing.T) {
	f := newFixture(t)
	f.claim(t, "e-1", "int-1")

	out, err := f.processor.Complete(context.Background(), "e-1", "int-1", longPayload("sess-1"))
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	e, err := f.store.Get(context.Background(), "e-1")
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if e.Status != queue.StatusInterviewSuccess {
		t.Fatalf("expected interview_success, got %s", e.Status)
	}
	if e.ResponseID != out.ResponseID || e.CompletedAt == nil {
		t.Fatalf("expected response link and completion stamp, got %+v", e)
	}
	if len(f.intake.enqueued) != 1 || f.intake.enqueued[0] != out.ResponseID {
		t.Fatalf("expected review hand-off, got %+v", f.intake.enqueued)
	}
}

func TestComplete_LocationCodesFromSnapshot(t *testing.T) {
	f := newFixture(t)
	f.claim(t, "e-1", "int-1")

	payload := longPayload("sess-1")
	payload.AreaCode = "interviewer-typed"
	payload.PrecinctCode = "interviewer-typed"

	if _, err := f.processor.Complete(context.Background(), "e-1", "int-1", payload); err != nil {
		t.Fatalf("complete: %v", err)
	}
	resp, _, _ := f.responses.FindBySession(context.Background(), "sess-1")
	if resp.AreaCode != "AC-7" || resp.PrecinctCode != "P-12" {
		t.Fatalf("expected snapshot location codes, got %q %q", resp.AreaCode, resp.PrecinctCode)
	}
}

func TestComplete_ComputedStatistics(t *testing.T) {
	f := newFixture(t)
	f.claim(t, "e-1", "int-1")

	start := time.Unix(1699999000, 0).UTC()
	end := start.Add(5 * time.Minute)
	payload := CompletionPayload{
		SessionID: "sess-1",
		Answers:   map[string]string{"q1": "25-34", "q2": "90000 00001", "q3": "  "},
		StartedAt: &start,
		EndedAt:   &end,
	}

	if _, err := f.processor.Complete(context.Background(), "e-1", "int-1", payload); err != nil {
		t.Fatalf("complete: %v", err)
	}
	resp, _, _ := f.responses.FindBySession(context.Background(), "sess-1")
	if resp.TotalTimeSeconds != 300 {
		t.Fatalf("expected derived duration 300s, got %d", resp.TotalTimeSeconds)
	}
	if resp.TotalQuestions != 3 || resp.AnsweredQuestions != 2 {
		t.Fatalf("expected 2/3 answered, got %d/%d", resp.AnsweredQuestions, resp.TotalQuestions)
	}
	if resp.CompletionPercent != 66.67 {
		t.Fatalf("expected 66.67%%, got %v", resp.CompletionPercent)
	}
}

func TestComplete_ProviderCallIDResolved(t *testing.T) {
	f := newFixture(t)
	f.claim(t, "e-1", "int-1")

	err := f.records.Insert(context.Background(), calls.CallRecord{
		ID:             "cr-1",
		QueueEntryID:   "e-1",
		ProviderCallID: "CA99",
		Status:         calls.CallRecordStatusInitiated,
	})
	if err != nil {
		t.Fatalf("insert call record: %v", err)
	}

	if _, err := f.processor.Complete(context.Background(), "e-1", "int-1", longPayload("sess-1")); err != nil {
		t.Fatalf("complete: %v", err)
	}
	resp, _, _ := f.responses.FindBySession(context.Background(), "sess-1")
	if resp.ProviderCallID != "CA99" {
		t.Fatalf("expected provider call id CA99, got %q", resp.ProviderCallID)
	}
}

func TestComplete_RequiresOwnership(t *testing.T) {
	f := newFixture(t)
	f.claim(t, "e-1", "int-1")

	if _, err := f.processor.Complete(context.Background(), "e-1", "int-2", longPayload("sess-1")); !errors.Is(err, queue.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestComplete_FinalizedEntryRejectsOtherInterviewer(t *testing.T) {
	f := newFixture(t)
	f.claim(t, "e-1", "int-1")

	if _, err := f.processor.Complete(context.Background(), "e-1", "int-1", longPayload("sess-1")); err != nil {
		t.Fatalf("complete: %v", err)
	}

	// A different interviewer with a fresh session id must not be able to
	// overwrite the finished response.
	tampered := longPayload("sess-evil")
	tampered.Answers = map[string]string{"q1": "tampered"}
	if _, err := f.processor.Complete(context.Background(), "e-1", "int-2", tampered); !errors.Is(err, queue.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for non-conducting interviewer, got %v", err)
	}

	resp, ok, err := f.responses.FindBySession(context.Background(), "sess-1")
	if err != nil || !ok {
		t.Fatalf("find response: ok=%v err=%v", ok, err)
	}
	if resp.InterviewerID != "int-1" || resp.Answers["q1"] != "25-34" {
		t.Fatalf("finalized response was clobbered: %+v", resp)
	}

	// The conducting interviewer's own retry still converges.
	out, err := f.processor.Complete(context.Background(), "e-1", "int-1", longPayload("sess-1"))
	if err != nil {
		t.Fatalf("retry by owner: %v", err)
	}
	if n := f.responses.Count(); n != 1 {
		t.Fatalf("expected one response after retry, got %d (id %s)", n, out.ResponseID)
	}
}

func TestComplete_UnknownEntry(t *testing.T) {
	f := newFixture(t)

	if _, err := f.processor.Complete(context.Background(), "missing", "int-1", longPayload("sess-1")); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestComplete_ReviewFailureDoesNotAbort(t *testing.T) {
	f := newFixture(t)
	f.claim(t, "e-1", "int-1")
	f.intake.err = errors.New("redis down")

	out, err := f.processor.Complete(context.Background(), "e-1", "int-1", longPayload("sess-1"))
	if err != nil {
		t.Fatalf("complete must survive intake failure: %v", err)
	}
	if out.ApprovalStatus != ApprovalPending {
		t.Fatalf("expected Pending_Approval, got %s", out.ApprovalStatus)
	}
}
