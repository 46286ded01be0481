package interview

import (
	"context"
	"sync"
)

// MemoryResponseRepo is an in-memory ResponseRepository for tests.
type MemoryResponseRepo struct {
	mu        sync.Mutex
	responses map[string]Response
}

func NewMemoryResponseRepo() *MemoryResponseRepo {
	return &MemoryResponseRepo{responses: map[string]Response{}}
}

func (r *MemoryResponseRepo) FindBySession(ctx context.Context, sessionID string) (Response, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, resp := range r.responses {
		if resp.SessionID == sessionID {
			return cloneResponse(resp), true, nil
		}
	}
	return Response{}, false, nil
}

func (r *MemoryResponseRepo) FindByQueueEntry(ctx context.Context, queueEntryID string) (Response, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, resp := range r.responses {
		if resp.QueueEntryID == queueEntryID {
			return cloneResponse(resp), true, nil
		}
	}
	return Response{}, false, nil
}

func (r *MemoryResponseRepo) Insert(ctx context.Context, resp Response) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses[resp.ID] = cloneResponse(resp)
	return nil
}

func (r *MemoryResponseRepo) Update(ctx context.Context, resp Response) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses[resp.ID] = cloneResponse(resp)
	return nil
}

func (r *MemoryResponseRepo) ListBySurvey(ctx context.Context, surveyID string) ([]Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Response
	for _, resp := range r.responses {
		if resp.SurveyID == surveyID {
			out = append(out, cloneResponse(resp))
		}
	}
	return out, nil
}

func (r *MemoryResponseRepo) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.responses)
}

func cloneResponse(r Response) Response {
	cp := r
	if r.Answers != nil {
		cp.Answers = make(map[string]string, len(r.Answers))
		for k, v := range r.Answers {
			cp.Answers[k] = v
		}
	}
	if len(r.RejectionReasons) > 0 {
		cp.RejectionReasons = make([]string, len(r.RejectionReasons))
		copy(cp.RejectionReasons, r.RejectionReasons)
	}
	return cp
}

// MemorySetRecordRepo is an in-memory SetRecordRepository for tests. Toggle
// DropNextWrite to exercise the write-verify-retry path.
type MemorySetRecordRepo struct {
	mu      sync.Mutex
	records map[string]SetRecord

	DropNextWrite bool
}

func NewMemorySetRecordRepo() *MemorySetRecordRepo {
	return &MemorySetRecordRepo{records: map[string]SetRecord{}}
}

func (r *MemorySetRecordRepo) Upsert(ctx context.Context, rec SetRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.DropNextWrite {
		r.DropNextWrite = false
		return nil
	}
	r.records[rec.ResponseID] = rec
	return nil
}

func (r *MemorySetRecordRepo) Get(ctx context.Context, responseID string) (SetRecord, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[responseID]
	return rec, ok, nil
}

// MemorySurveyRepo is a fixed survey catalogue for tests.
type MemorySurveyRepo struct {
	mu      sync.Mutex
	surveys map[string]Survey
}

func NewMemorySurveyRepo(surveys ...Survey) *MemorySurveyRepo {
	m := &MemorySurveyRepo{surveys: map[string]Survey{}}
	for _, s := range surveys {
		m.surveys[s.ID] = s
	}
	return m
}

func (r *MemorySurveyRepo) Get(ctx context.Context, id string) (Survey, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.surveys[id]
	return s, ok, nil
}
