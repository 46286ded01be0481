package interview

import "time"

// Response is one finalized interview. At most one exists per session id and
// per queue entry; Processor.Complete detects and updates rather than
// duplicating.
type Response struct {
	ID        string `json:"id" db:"id"`
	SessionID string `json:"session_id" db:"session_id"`
	SurveyID  string `json:"survey_id" db:"survey_id"`

	QueueEntryID  string `json:"queue_entry_id" db:"queue_entry_id"`
	InterviewerID string `json:"interviewer_id" db:"interviewer_id"`

	// SetNumber is the administered question-set identifier; nil when the
	// survey has a single set.
	SetNumber *int `json:"set_number,omitempty" db:"set_number"`

	Answers map[string]string `json:"answers"`

	StartedAt        *time.Time `json:"started_at,omitempty" db:"started_at"`
	EndedAt          *time.Time `json:"ended_at,omitempty" db:"ended_at"`
	TotalTimeSeconds int        `json:"total_time_seconds" db:"total_time_seconds"`

	TotalQuestions    int     `json:"total_questions" db:"total_questions"`
	AnsweredQuestions int     `json:"answered_questions" db:"answered_questions"`
	CompletionPercent float64 `json:"completion_percent" db:"completion_percent"`

	ApprovalStatus   ApprovalStatus `json:"approval_status" db:"approval_status"`
	AutoRejected     bool           `json:"auto_rejected" db:"auto_rejected"`
	RejectionReasons []string       `json:"rejection_reasons,omitempty"`
	VerifiedBy       string         `json:"verified_by,omitempty" db:"verified_by"`
	VerifiedAt       *time.Time     `json:"verified_at,omitempty" db:"verified_at"`
	Feedback         string         `json:"feedback,omitempty" db:"feedback"`

	// Location codes always come from the calling list's respondent snapshot,
	// never from interviewer input.
	AreaCode     string `json:"area_code,omitempty" db:"area_code"`
	PrecinctCode string `json:"precinct_code,omitempty" db:"precinct_code"`

	ProviderCallID string `json:"provider_call_id,omitempty" db:"provider_call_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "Pending_Approval"
	ApprovalApproved ApprovalStatus = "Approved"
	ApprovalRejected ApprovalStatus = "Rejected"
)

// SetRecord mirrors the question-set identifier outside the response row so
// set-level aggregation survives partial response updates. Keyed by response id.
type SetRecord struct {
	ResponseID string    `json:"response_id" db:"response_id"`
	SurveyID   string    `json:"survey_id" db:"survey_id"`
	SetNumber  int       `json:"set_number" db:"set_number"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// Survey is the read model Complete needs: the question tree for statistics
// and an optional per-survey minimum-duration override.
type Survey struct {
	ID        string     `json:"id" db:"id"`
	Name      string     `json:"name" db:"name"`
	Questions []Question `json:"questions"`

	// MinInterviewSeconds overrides the global minimum-duration threshold for
	// this survey when > 0.
	MinInterviewSeconds int `json:"min_interview_seconds,omitempty" db:"min_interview_seconds"`
}

type Question struct {
	ID   string `json:"id" db:"id"`
	Text string `json:"text" db:"text"`
	// Tag is a semantic label ("contact_number") that survives question-text edits.
	Tag string `json:"tag,omitempty" db:"tag"`
}

// CompletionPayload is the interviewer's submission. Timing and statistics are
// optional; Complete recomputes whatever is absent.
type CompletionPayload struct {
	SessionID string `json:"session_id"`

	SetNumber *int              `json:"set_number,omitempty"`
	Answers   map[string]string `json:"answers"`

	StartedAt        *time.Time `json:"started_at,omitempty"`
	EndedAt          *time.Time `json:"ended_at,omitempty"`
	TotalTimeSeconds *int       `json:"total_time_seconds,omitempty"`

	TotalQuestions    *int     `json:"total_questions,omitempty"`
	AnsweredQuestions *int     `json:"answered_questions,omitempty"`
	CompletionPercent *float64 `json:"completion_percent,omitempty"`

	AreaCode     string `json:"area_code,omitempty"`
	PrecinctCode string `json:"precinct_code,omitempty"`
}

// FinalizedResponse is what the interviewer sees after Complete. ApprovalStatus
// is always Pending_Approval; auto-rejection is invisible at submission time.
type FinalizedResponse struct {
	ResponseID     string         `json:"response_id"`
	ApprovalStatus ApprovalStatus `json:"approval_status"`
}
