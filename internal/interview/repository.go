package interview

import "context"

// ResponseRepository persists finalized interview responses.
type ResponseRepository interface {
	FindBySession(ctx context.Context, sessionID string) (Response, bool, error)
	FindByQueueEntry(ctx context.Context, queueEntryID string) (Response, bool, error)
	Insert(ctx context.Context, r Response) error
	Update(ctx context.Context, r Response) error
	// ListBySurvey returns every response of the survey, any approval status.
	ListBySurvey(ctx context.Context, surveyID string) ([]Response, error)
}

// SetRecordRepository persists the question-set mirror rows.
type SetRecordRepository interface {
	Upsert(ctx context.Context, rec SetRecord) error
	Get(ctx context.Context, responseID string) (SetRecord, bool, error)
}

// SurveyRepository is the read side Complete needs for question trees and
// per-survey thresholds.
type SurveyRepository interface {
	Get(ctx context.Context, id string) (Survey, bool, error)
}

// ReviewIntake hands a submitted response to the external quality-review
// pipeline. Failures are logged by the caller, never fatal to completion.
type ReviewIntake interface {
	EnqueueForReview(ctx context.Context, responseID, surveyID, interviewerID string) error
}
