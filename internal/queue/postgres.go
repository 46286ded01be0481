package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cati-platform/pkg/utils"
)

// PostgresStore persists queue entries in Postgres.
//
// NOTE: This store assumes the following tables exist:
// - queue_entries (text columns NOT NULL DEFAULT '', timestamps nullable)
// - call_attempts with UNIQUE (entry_id, number)
// and the partial unique index enforcing the import invariant:
// UNIQUE (survey_id, phone) WHERE deleted_at IS NULL
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

const entryColumns = `
id, survey_id, name, country_code, phone, email, address, city,
area_code, precinct_code, station_code,
status, priority, owner, claimed_at, created_at, updated_at,
attempts, completed_at, response_id, call_record_id,
abandon_reason, abandon_notes, call_back_at
`

func (s *PostgresStore) Insert(ctx context.Context, e QueueEntry) error {
	const q = `
INSERT INTO queue_entries (` + entryColumns + `) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24
)
`
	_, err := s.db.ExecContext(ctx, q,
		e.ID,
		e.SurveyID,
		e.Respondent.Name,
		e.Respondent.CountryCode,
		e.Respondent.Phone,
		e.Respondent.Email,
		e.Respondent.Address,
		e.Respondent.City,
		e.Respondent.AreaCode,
		e.Respondent.PrecinctCode,
		e.Respondent.StationCode,
		e.Status,
		e.Priority,
		e.Owner,
		e.ClaimedAt,
		e.CreatedAt,
		e.UpdatedAt,
		e.Attempts,
		e.CompletedAt,
		e.ResponseID,
		e.CallRecordID,
		e.AbandonReason,
		e.AbandonNotes,
		e.CallBackAt,
	)
	if utils.IsUniqueViolation(err) {
		return fmt.Errorf("%w: phone already queued for survey", ErrConflict)
	}
	return err
}

func (s *PostgresStore) Get(ctx context.Context, id string) (QueueEntry, error) {
	const q = `
SELECT ` + entryColumns + `
FROM queue_entries
WHERE id = $1 AND deleted_at IS NULL
`
	e, err := scanEntry(s.db.QueryRowContext(ctx, q, id))
	if err != nil {
		return QueueEntry{}, err
	}
	log, err := s.listAttempts(ctx, id)
	if err != nil {
		return QueueEntry{}, err
	}
	e.AttemptLog = log
	return e, nil
}

// ClaimNext is a single conditional update: selection and assignment happen in
// one statement so two interviewers can never claim the same entry. SKIP LOCKED
// makes the loser of a race move on to the next pending entry instead of
// blocking.
func (s *PostgresStore) ClaimNext(ctx context.Context, surveyID, interviewerID string, now time.Time) (QueueEntry, error) {
	const q = `
UPDATE queue_entries SET
  status = 'assigned',
  owner = $2,
  claimed_at = $3,
  updated_at = $3
WHERE id = (
  SELECT id FROM queue_entries
  WHERE survey_id = $1 AND status = 'pending' AND deleted_at IS NULL
  ORDER BY priority DESC, created_at ASC
  LIMIT 1
  FOR UPDATE SKIP LOCKED
)
RETURNING ` + entryColumns + `
`
	e, err := scanEntry(s.db.QueryRowContext(ctx, q, surveyID, interviewerID, now))
	if errors.Is(err, ErrNotFound) {
		return QueueEntry{}, ErrNoEligibleRespondent
	}
	return e, err
}

func (s *PostgresStore) MarkCalling(ctx context.Context, id, owner, callRecordID string, now time.Time) (QueueEntry, error) {
	const q = `
UPDATE queue_entries SET
  status = 'calling',
  call_record_id = $3,
  updated_at = $4
WHERE id = $1 AND owner = $2 AND status = 'assigned' AND deleted_at IS NULL
RETURNING ` + entryColumns + `
`
	e, err := scanEntry(s.db.QueryRowContext(ctx, q, id, owner, callRecordID, now))
	if errors.Is(err, ErrNotFound) {
		return QueueEntry{}, s.conflictOrMissing(ctx, id)
	}
	return e, err
}

func (s *PostgresStore) RequeueTail(ctx context.Context, id, reason, notes string, now time.Time) (QueueEntry, error) {
	const q = `
UPDATE queue_entries SET
  status = 'pending',
  owner = '',
  claimed_at = NULL,
  priority = $4,
  created_at = $5,
  abandon_reason = $2,
  abandon_notes = $3,
  updated_at = $5
WHERE id = $1 AND deleted_at IS NULL
  AND (status IN ('assigned','calling') OR (status = 'pending' AND owner = ''))
RETURNING ` + entryColumns + `
`
	e, err := scanEntry(s.db.QueryRowContext(ctx, q, id, reason, notes, PriorityTail, now))
	if errors.Is(err, ErrNotFound) {
		return QueueEntry{}, s.conflictOrMissing(ctx, id)
	}
	return e, err
}

func (s *PostgresStore) RequeueBoost(ctx context.Context, id, reason, notes string, callBackAt *time.Time, now time.Time) (QueueEntry, error) {
	const q = `
UPDATE queue_entries SET
  status = 'pending',
  owner = '',
  claimed_at = NULL,
  priority = $4,
  abandon_reason = $2,
  abandon_notes = $3,
  call_back_at = $5,
  updated_at = $6
WHERE id = $1 AND deleted_at IS NULL
  AND (status IN ('assigned','calling') OR (status = 'pending' AND owner = ''))
RETURNING ` + entryColumns + `
`
	e, err := scanEntry(s.db.QueryRowContext(ctx, q, id, reason, notes, PriorityCallLater, callBackAt, now))
	if errors.Is(err, ErrNotFound) {
		return QueueEntry{}, s.conflictOrMissing(ctx, id)
	}
	return e, err
}

func (s *PostgresStore) Terminate(ctx context.Context, id string, st Status, reason, notes string, now time.Time) (QueueEntry, error) {
	const q = `
UPDATE queue_entries SET
  status = $2,
  owner = '',
  claimed_at = NULL,
  abandon_reason = $3,
  abandon_notes = $4,
  updated_at = $5
WHERE id = $1 AND deleted_at IS NULL
  AND (status IN ('assigned','calling') OR (status = 'pending' AND owner = ''))
RETURNING ` + entryColumns + `
`
	e, err := scanEntry(s.db.QueryRowContext(ctx, q, id, st, reason, notes, now))
	if errors.Is(err, ErrNotFound) {
		return QueueEntry{}, s.conflictOrMissing(ctx, id)
	}
	return e, err
}

func (s *PostgresStore) CompleteSuccess(ctx context.Context, id, responseID string, now time.Time) (QueueEntry, error) {
	// The response_id guard makes completion retries converge instead of
	// failing: a second call for the same response matches the already-updated
	// row and is a no-op.
	const q = `
UPDATE queue_entries SET
  status = 'interview_success',
  owner = '',
  response_id = $2,
  completed_at = COALESCE(completed_at, $3),
  updated_at = $3
WHERE id = $1 AND deleted_at IS NULL
  AND (status IN ('assigned','calling') OR (status = 'interview_success' AND response_id = $2))
RETURNING ` + entryColumns + `
`
	e, err := scanEntry(s.db.QueryRowContext(ctx, q, id, responseID, now))
	if errors.Is(err, ErrNotFound) {
		return QueueEntry{}, s.conflictOrMissing(ctx, id)
	}
	return e, err
}

func (s *PostgresStore) AppendAttempt(ctx context.Context, id string, a CallAttempt) error {
	return utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		var n int
		const bump = `
UPDATE queue_entries SET attempts = attempts + 1, updated_at = $2
WHERE id = $1 AND deleted_at IS NULL
RETURNING attempts
`
		if err := tx.QueryRowContext(ctx, bump, id, a.At).Scan(&n); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		return insertAttempt(ctx, tx, id, n, a)
	})
}

func (s *PostgresStore) AmendLastAttempt(ctx context.Context, id string, outcome AttemptOutcome, reason, notes string, callBackAt *time.Time) error {
	return utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		const q = `
UPDATE call_attempts SET outcome = $2, reason = $3, notes = $4, call_back_at = $5
WHERE entry_id = $1 AND number = (
  SELECT COALESCE(MAX(number), 0) FROM call_attempts WHERE entry_id = $1
)
`
		res, err := tx.ExecContext(ctx, q, id, outcome, reason, notes, callBackAt)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n > 0 {
			return nil
		}

		// No attempt logged yet (abandon before any dial): append one.
		now := time.Now().UTC()
		var attempts int
		const bump = `
UPDATE queue_entries SET attempts = attempts + 1, updated_at = $2
WHERE id = $1 AND deleted_at IS NULL
RETURNING attempts
`
		if err := tx.QueryRowContext(ctx, bump, id, now).Scan(&attempts); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		return insertAttempt(ctx, tx, id, attempts, CallAttempt{
			At:         now,
			Outcome:    outcome,
			Reason:     reason,
			Notes:      notes,
			CallBackAt: callBackAt,
		})
	})
}

func (s *PostgresStore) PhoneQueued(ctx context.Context, surveyID, phone string) (bool, error) {
	const q = `
SELECT EXISTS (
  SELECT 1 FROM queue_entries
  WHERE survey_id = $1 AND phone = $2 AND deleted_at IS NULL
)
`
	var ok bool
	if err := s.db.QueryRowContext(ctx, q, surveyID, phone).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

func (s *PostgresStore) StatusCounts(ctx context.Context, surveyID string) (map[Status]int, error) {
	const q = `
SELECT status, COUNT(*)
FROM queue_entries
WHERE survey_id = $1 AND deleted_at IS NULL
GROUP BY status
`
	rows, err := s.db.QueryContext(ctx, q, surveyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[Status]int{}
	for rows.Next() {
		var st Status
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		out[st] = n
	}
	return out, rows.Err()
}

func (s *PostgresStore) listAttempts(ctx context.Context, entryID string) ([]CallAttempt, error) {
	const q = `
SELECT number, at, actor, outcome, reason, notes, provider_call_id, call_back_at
FROM call_attempts
WHERE entry_id = $1
ORDER BY number ASC
`
	rows, err := s.db.QueryContext(ctx, q, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CallAttempt
	for rows.Next() {
		var a CallAttempt
		if err := rows.Scan(&a.Number, &a.At, &a.Actor, &a.Outcome, &a.Reason, &a.Notes, &a.ProviderCallID, &a.CallBackAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func insertAttempt(ctx context.Context, tx *sql.Tx, entryID string, number int, a CallAttempt) error {
	const q = `
INSERT INTO call_attempts (
  entry_id, number, at, actor, outcome, reason, notes, provider_call_id, call_back_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9
)
`
	_, err := tx.ExecContext(ctx, q,
		entryID,
		number,
		a.At,
		a.Actor,
		a.Outcome,
		a.Reason,
		a.Notes,
		a.ProviderCallID,
		a.CallBackAt,
	)
	return err
}

// conflictOrMissing distinguishes a lost conditional update from a missing row.
func (s *PostgresStore) conflictOrMissing(ctx context.Context, id string) error {
	const q = `SELECT 1 FROM queue_entries WHERE id = $1 AND deleted_at IS NULL`
	var one int
	if err := s.db.QueryRowContext(ctx, q, id).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return ErrConflict
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (QueueEntry, error) {
	var e QueueEntry
	err := row.Scan(
		&e.ID,
		&e.SurveyID,
		&e.Respondent.Name,
		&e.Respondent.CountryCode,
		&e.Respondent.Phone,
		&e.Respondent.Email,
		&e.Respondent.Address,
		&e.Respondent.City,
		&e.Respondent.AreaCode,
		&e.Respondent.PrecinctCode,
		&e.Respondent.StationCode,
		&e.Status,
		&e.Priority,
		&e.Owner,
		&e.ClaimedAt,
		&e.CreatedAt,
		&e.UpdatedAt,
		&e.Attempts,
		&e.CompletedAt,
		&e.ResponseID,
		&e.CallRecordID,
		&e.AbandonReason,
		&e.AbandonNotes,
		&e.CallBackAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return QueueEntry{}, ErrNotFound
		}
		return QueueEntry{}, err
	}
	return e, nil
}
