package queue

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and early development.
// All operations run under one mutex, which gives the same effective
// serialization the Postgres store gets from conditional updates.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*QueueEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[string]*QueueEntry{}}
}

func (s *MemoryStore) Insert(ctx context.Context, e QueueEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := e
	s.entries[e.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return QueueEntry{}, ErrNotFound
	}
	return cloneEntry(e), nil
}

func (s *MemoryStore) ClaimNext(ctx context.Context, surveyID, interviewerID string, now time.Time) (QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *QueueEntry
	for _, e := range s.entries {
		if e.SurveyID != surveyID || e.Status != StatusPending {
			continue
		}
		if best == nil ||
			e.Priority > best.Priority ||
			(e.Priority == best.Priority && e.CreatedAt.Before(best.CreatedAt)) {
			best = e
		}
	}
	if best == nil {
		return QueueEntry{}, ErrNoEligibleRespondent
	}

	best.Status = StatusAssigned
	best.Owner = interviewerID
	t := now
	best.ClaimedAt = &t
	best.UpdatedAt = now
	return cloneEntry(best), nil
}

func (s *MemoryStore) MarkCalling(ctx context.Context, id, owner, callRecordID string, now time.Time) (QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return QueueEntry{}, ErrNotFound
	}
	if e.Status != StatusAssigned || e.Owner != owner {
		return QueueEntry{}, ErrConflict
	}
	e.Status = StatusCalling
	e.CallRecordID = callRecordID
	e.UpdatedAt = now
	return cloneEntry(e), nil
}

// abandonTransitionOK reports whether an entry can take an abandonment
// transition. Owned entries mid-attempt qualify, and so does an unowned
// pending entry: a failed initiation already requeued it and cleared the
// owner before the interviewer got to report the outcome.
func abandonTransitionOK(e *QueueEntry) bool {
	switch e.Status {
	case StatusAssigned, StatusCalling:
		return true
	case StatusPending:
		return e.Owner == ""
	}
	return false
}

func (s *MemoryStore) RequeueTail(ctx context.Context, id, reason, notes string, now time.Time) (QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return QueueEntry{}, ErrNotFound
	}
	if !abandonTransitionOK(e) {
		return QueueEntry{}, ErrConflict
	}
	e.Status = StatusPending
	e.Owner = ""
	e.ClaimedAt = nil
	e.Priority = PriorityTail
	e.CreatedAt = now // refreshed age: queue behind later arrivals
	e.AbandonReason = reason
	e.AbandonNotes = notes
	e.UpdatedAt = now
	return cloneEntry(e), nil
}

func (s *MemoryStore) RequeueBoost(ctx context.Context, id, reason, notes string, callBackAt *time.Time, now time.Time) (QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return QueueEntry{}, ErrNotFound
	}
	if !abandonTransitionOK(e) {
		return QueueEntry{}, ErrConflict
	}
	e.Status = StatusPending
	e.Owner = ""
	e.ClaimedAt = nil
	e.Priority = PriorityCallLater
	// CreatedAt untouched: the boost wins by priority, not by age.
	e.AbandonReason = reason
	e.AbandonNotes = notes
	e.CallBackAt = callBackAt
	e.UpdatedAt = now
	return cloneEntry(e), nil
}

func (s *MemoryStore) Terminate(ctx context.Context, id string, st Status, reason, notes string, now time.Time) (QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return QueueEntry{}, ErrNotFound
	}
	if !abandonTransitionOK(e) {
		return QueueEntry{}, ErrConflict
	}
	e.Status = st
	e.Owner = ""
	e.ClaimedAt = nil
	e.AbandonReason = reason
	e.AbandonNotes = notes
	e.UpdatedAt = now
	return cloneEntry(e), nil
}

func (s *MemoryStore) CompleteSuccess(ctx context.Context, id, responseID string, now time.Time) (QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return QueueEntry{}, ErrNotFound
	}
	if e.Status == StatusInterviewSuccess && e.ResponseID == responseID {
		return cloneEntry(e), nil
	}
	if e.Status != StatusAssigned && e.Status != StatusCalling {
		return QueueEntry{}, ErrConflict
	}
	e.Status = StatusInterviewSuccess
	e.Owner = ""
	e.ResponseID = responseID
	t := now
	e.CompletedAt = &t
	e.UpdatedAt = now
	return cloneEntry(e), nil
}

func (s *MemoryStore) AppendAttempt(ctx context.Context, id string, a CallAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return ErrNotFound
	}
	e.Attempts++
	a.Number = e.Attempts
	e.AttemptLog = append(e.AttemptLog, a)
	return nil
}

func (s *MemoryStore) AmendLastAttempt(ctx context.Context, id string, outcome AttemptOutcome, reason, notes string, callBackAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return ErrNotFound
	}
	if len(e.AttemptLog) == 0 {
		e.Attempts++
		e.AttemptLog = append(e.AttemptLog, CallAttempt{
			Number:     e.Attempts,
			At:         time.Now().UTC(),
			Outcome:    outcome,
			Reason:     reason,
			Notes:      notes,
			CallBackAt: callBackAt,
		})
		return nil
	}
	last := &e.AttemptLog[len(e.AttemptLog)-1]
	last.Outcome = outcome
	last.Reason = reason
	last.Notes = notes
	last.CallBackAt = callBackAt
	return nil
}

func (s *MemoryStore) PhoneQueued(ctx context.Context, surveyID, phone string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.SurveyID == surveyID && e.Respondent.Phone == phone {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) StatusCounts(ctx context.Context, surveyID string) (map[Status]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[Status]int{}
	for _, e := range s.entries {
		if e.SurveyID == surveyID {
			out[e.Status]++
		}
	}
	return out, nil
}

func cloneEntry(e *QueueEntry) QueueEntry {
	cp := *e
	if len(e.AttemptLog) > 0 {
		cp.AttemptLog = make([]CallAttempt, len(e.AttemptLog))
		copy(cp.AttemptLog, e.AttemptLog)
	}
	return cp
}
