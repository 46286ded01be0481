package calls

import (
	"context"
	"database/sql"
	"errors"
)

// Repository persists call records.
type Repository interface {
	Insert(ctx context.Context, r CallRecord) error
	// LatestForEntry returns the most recent call record for a queue entry.
	LatestForEntry(ctx context.Context, queueEntryID string) (CallRecord, bool, error)
}

// PostgresRepo stores call records in the call_records table.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Insert(ctx context.Context, rec CallRecord) error {
	const q = `
INSERT INTO call_records (
  id, survey_id, queue_entry_id, interviewer_id, provider_call_id,
  from_number, to_number, status, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)
`
	_, err := r.db.ExecContext(ctx, q,
		rec.ID,
		rec.SurveyID,
		rec.QueueEntryID,
		rec.InterviewerID,
		rec.ProviderCallID,
		rec.FromNumber,
		rec.ToNumber,
		rec.Status,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	return err
}

func (r *PostgresRepo) LatestForEntry(ctx context.Context, queueEntryID string) (CallRecord, bool, error) {
	const q = `
SELECT id, survey_id, queue_entry_id, interviewer_id, provider_call_id,
       from_number, to_number, status, created_at, updated_at
FROM call_records
WHERE queue_entry_id = $1
ORDER BY created_at DESC
LIMIT 1
`
	var rec CallRecord
	err := r.db.QueryRowContext(ctx, q, queueEntryID).Scan(
		&rec.ID,
		&rec.SurveyID,
		&rec.QueueEntryID,
		&rec.InterviewerID,
		&rec.ProviderCallID,
		&rec.FromNumber,
		&rec.ToNumber,
		&rec.Status,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallRecord{}, false, nil
		}
		return CallRecord{}, false, err
	}
	return rec, true, nil
}
