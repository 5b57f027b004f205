package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"license-exam-service/internal/domain"
)

// AttemptLedger persists completed attempts in exam_attempts and derives the
// candidate history from them.
type AttemptLedger struct {
	pool *pgxpool.Pool
}

func NewAttemptLedger(pool *pgxpool.Pool) *AttemptLedger {
	return &AttemptLedger{pool: pool}
}

func (l *AttemptLedger) History(ctx context.Context, candidateID, setID string) (domain.AttemptHistory, error) {
	var (
		used   int
		last   *time.Time
		passed *bool
	)
	err := l.pool.QueryRow(ctx, `
		SELECT count(*),
		       max(completed_at),
		       (array_agg(passed ORDER BY completed_at DESC))[1]
		FROM exam_attempts
		WHERE candidate_id = $1 AND question_set_id = $2`,
		candidateID, setID).Scan(&used, &last, &passed)
	if err != nil {
		return domain.AttemptHistory{}, fmt.Errorf("load attempt history: %w", err)
	}

	h := domain.AttemptHistory{AttemptsUsed: used}
	if last != nil {
		h.LastAttemptAt = last.UTC()
	}
	if passed != nil {
		h.LastPassed = *passed
	}
	return h, nil
}

func (l *AttemptLedger) Record(ctx context.Context, record domain.AttemptRecord) error {
	categories, err := json.Marshal(record.Result.CategoryScores)
	if err != nil {
		return err
	}
	_, err = l.pool.Exec(ctx, `
		INSERT INTO exam_attempts (
			attempt_id, candidate_id, question_set_id, started_at, completed_at, completion,
			score_percent, correct_count, total_count, passed, category_scores
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (attempt_id) DO NOTHING`,
		record.AttemptID, record.CandidateID, record.QuestionSetID, record.StartedAt, record.CompletedAt,
		string(record.Completion), record.Result.ScorePercent, record.Result.CorrectCount,
		record.Result.TotalCount, record.Result.Passed, categories)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}
