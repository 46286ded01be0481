// Package review hands finalized responses to the external quality-review
// pipeline. The pipeline itself (reviewer assignment, approval workflow) lives
// outside this service; the contract here is only the intake queue.
package review

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// IntakeQueueKey is the Redis list the QC workers consume from.
const IntakeQueueKey = "cati:review:intake"

type intakeItem struct {
	ResponseID    string    `json:"response_id"`
	SurveyID      string    `json:"survey_id"`
	InterviewerID string    `json:"interviewer_id"`
	EnqueuedAt    time.Time `json:"enqueued_at"`
}

// RedisIntake pushes submissions onto a Redis list. Consumers BRPOP from the
// other end, so intake order is preserved.
type RedisIntake struct {
	rdb   *redis.Client
	clock func() time.Time
}

func NewRedisIntake(rdb *redis.Client) *RedisIntake {
	return &RedisIntake{rdb: rdb, clock: time.Now}
}

func (i *RedisIntake) EnqueueForReview(ctx context.Context, responseID, surveyID, interviewerID string) error {
	item := intakeItem{
		ResponseID:    responseID,
		SurveyID:      surveyID,
		InterviewerID: interviewerID,
		EnqueuedAt:    i.clock().UTC(),
	}
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal intake item: %w", err)
	}
	if err := i.rdb.LPush(ctx, IntakeQueueKey, payload).Err(); err != nil {
		return fmt.Errorf("enqueue for review: %w", err)
	}
	return nil
}
