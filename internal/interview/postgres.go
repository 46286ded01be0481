package interview

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// PostgresResponseRepo stores responses in the interview_responses table.
// Answers and rejection reasons live in jsonb columns.
//
// NOTE: assumed schema
//
//	interview_responses (
//	  id uuid PRIMARY KEY, session_id text UNIQUE, survey_id uuid,
//	  queue_entry_id uuid UNIQUE, interviewer_id uuid, set_number int,
//	  answers jsonb, started_at timestamptz, ended_at timestamptz,
//	  total_time_seconds int, total_questions int, answered_questions int,
//	  completion_percent double precision, approval_status text,
//	  auto_rejected bool, rejection_reasons jsonb, verified_by text,
//	  verified_at timestamptz, feedback text, area_code text,
//	  precinct_code text, provider_call_id text,
//	  created_at timestamptz, updated_at timestamptz
//	)
type PostgresResponseRepo struct {
	db *sql.DB
}

func NewPostgresResponseRepo(db *sql.DB) *PostgresResponseRepo {
	return &PostgresResponseRepo{db: db}
}

const responseColumns = `
id, session_id, survey_id, queue_entry_id, interviewer_id, set_number,
answers, started_at, ended_at, total_time_seconds,
total_questions, answered_questions, completion_percent,
approval_status, auto_rejected, rejection_reasons, verified_by, verified_at, feedback,
area_code, precinct_code, provider_call_id, created_at, updated_at`

func (r *PostgresResponseRepo) FindBySession(ctx context.Context, sessionID string) (Response, bool, error) {
	q := `SELECT ` + responseColumns + ` FROM interview_responses WHERE session_id = $1`
	return r.findOne(ctx, q, sessionID)
}

func (r *PostgresResponseRepo) FindByQueueEntry(ctx context.Context, queueEntryID string) (Response, bool, error) {
	q := `SELECT ` + responseColumns + ` FROM interview_responses WHERE queue_entry_id = $1`
	return r.findOne(ctx, q, queueEntryID)
}

func (r *PostgresResponseRepo) findOne(ctx context.Context, q, arg string) (Response, bool, error) {
	resp, err := scanResponse(r.db.QueryRowContext(ctx, q, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Response{}, false, nil
		}
		return Response{}, false, err
	}
	return resp, true, nil
}

func (r *PostgresResponseRepo) Insert(ctx context.Context, resp Response) error {
	const q = `
INSERT INTO interview_responses (` + responseColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24)
`
	args, err := responseArgs(resp)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, q, args...)
	return err
}

func (r *PostgresResponseRepo) Update(ctx context.Context, resp Response) error {
	const q = `
UPDATE interview_responses SET
  session_id = $2, survey_id = $3, queue_entry_id = $4, interviewer_id = $5,
  set_number = $6, answers = $7, started_at = $8, ended_at = $9,
  total_time_seconds = $10, total_questions = $11, answered_questions = $12,
  completion_percent = $13, approval_status = $14, auto_rejected = $15,
  rejection_reasons = $16, verified_by = $17, verified_at = $18, feedback = $19,
  area_code = $20, precinct_code = $21, provider_call_id = $22,
  created_at = $23, updated_at = $24
WHERE id = $1
`
	args, err := responseArgs(resp)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("response %s not found", resp.ID)
	}
	return nil
}

func (r *PostgresResponseRepo) ListBySurvey(ctx context.Context, surveyID string) ([]Response, error) {
	q := `SELECT ` + responseColumns + ` FROM interview_responses WHERE survey_id = $1 ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, q, surveyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Response
	for rows.Next() {
		resp, err := scanResponse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, resp)
	}
	return out, rows.Err()
}

func responseArgs(resp Response) ([]any, error) {
	answers, err := json.Marshal(resp.Answers)
	if err != nil {
		return nil, fmt.Errorf("marshal answers: %w", err)
	}
	reasons, err := json.Marshal(resp.RejectionReasons)
	if err != nil {
		return nil, fmt.Errorf("marshal rejection reasons: %w", err)
	}
	return []any{
		resp.ID,
		resp.SessionID,
		resp.SurveyID,
		resp.QueueEntryID,
		resp.InterviewerID,
		resp.SetNumber,
		answers,
		resp.StartedAt,
		resp.EndedAt,
		resp.TotalTimeSeconds,
		resp.TotalQuestions,
		resp.AnsweredQuestions,
		resp.CompletionPercent,
		resp.ApprovalStatus,
		resp.AutoRejected,
		reasons,
		resp.VerifiedBy,
		resp.VerifiedAt,
		resp.Feedback,
		resp.AreaCode,
		resp.PrecinctCode,
		resp.ProviderCallID,
		resp.CreatedAt,
		resp.UpdatedAt,
	}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResponse(row rowScanner) (Response, error) {
	var (
		resp    Response
		answers []byte
		reasons []byte
	)
	err := row.Scan(
		&resp.ID,
		&resp.SessionID,
		&resp.SurveyID,
		&resp.QueueEntryID,
		&resp.InterviewerID,
		&resp.SetNumber,
		&answers,
		&resp.StartedAt,
		&resp.EndedAt,
		&resp.TotalTimeSeconds,
		&resp.TotalQuestions,
		&resp.AnsweredQuestions,
		&resp.CompletionPercent,
		&resp.ApprovalStatus,
		&resp.AutoRejected,
		&reasons,
		&resp.VerifiedBy,
		&resp.VerifiedAt,
		&resp.Feedback,
		&resp.AreaCode,
		&resp.PrecinctCode,
		&resp.ProviderCallID,
		&resp.CreatedAt,
		&resp.UpdatedAt,
	)
	if err != nil {
		return Response{}, err
	}
	if len(answers) > 0 {
		if err := json.Unmarshal(answers, &resp.Answers); err != nil {
			return Response{}, fmt.Errorf("unmarshal answers: %w", err)
		}
	}
	if len(reasons) > 0 {
		if err := json.Unmarshal(reasons, &resp.RejectionReasons); err != nil {
			return Response{}, fmt.Errorf("unmarshal rejection reasons: %w", err)
		}
	}
	return resp, nil
}

// PostgresSetRecordRepo stores the question-set mirror rows.
type PostgresSetRecordRepo struct {
	db *sql.DB
}

func NewPostgresSetRecordRepo(db *sql.DB) *PostgresSetRecordRepo {
	return &PostgresSetRecordRepo{db: db}
}

func (r *PostgresSetRecordRepo) Upsert(ctx context.Context, rec SetRecord) error {
	const q = `
INSERT INTO set_records (response_id, survey_id, set_number, updated_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (response_id)
DO UPDATE SET survey_id = $2, set_number = $3, updated_at = $4
`
	_, err := r.db.ExecContext(ctx, q, rec.ResponseID, rec.SurveyID, rec.SetNumber, rec.UpdatedAt)
	return err
}

func (r *PostgresSetRecordRepo) Get(ctx context.Context, responseID string) (SetRecord, bool, error) {
	const q = `SELECT response_id, survey_id, set_number, updated_at FROM set_records WHERE response_id = $1`
	var rec SetRecord
	err := r.db.QueryRowContext(ctx, q, responseID).Scan(&rec.ResponseID, &rec.SurveyID, &rec.SetNumber, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SetRecord{}, false, nil
		}
		return SetRecord{}, false, err
	}
	return rec, true, nil
}

// PostgresSurveyRepo reads surveys and their question trees.
type PostgresSurveyRepo struct {
	db *sql.DB
}

func NewPostgresSurveyRepo(db *sql.DB) *PostgresSurveyRepo {
	return &PostgresSurveyRepo{db: db}
}

func (r *PostgresSurveyRepo) Get(ctx context.Context, id string) (Survey, bool, error) {
	const q = `SELECT id, name, min_interview_seconds FROM surveys WHERE id = $1`
	var s Survey
	err := r.db.QueryRowContext(ctx, q, id).Scan(&s.ID, &s.Name, &s.MinInterviewSeconds)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Survey{}, false, nil
		}
		return Survey{}, false, err
	}

	const qq = `SELECT id, text, tag FROM survey_questions WHERE survey_id = $1 ORDER BY position`
	rows, err := r.db.QueryContext(ctx, qq, id)
	if err != nil {
		return Survey{}, false, err
	}
	defer rows.Close()
	for rows.Next() {
		var question Question
		if err := rows.Scan(&question.ID, &question.Text, &question.Tag); err != nil {
			return Survey{}, false, err
		}
		s.Questions = append(s.Questions, question)
	}
	if err := rows.Err(); err != nil {
		return Survey{}, false, err
	}
	return s, true, nil
}
