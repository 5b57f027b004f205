package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"license-exam-service/internal/domain"
)

// AttemptLedger stores attempt history as one hash per candidate and question set:
//
//	HSET exam:attempts:{setID}:{candidateID} used {n} last {unix nanos} passed {0|1}
type AttemptLedger struct {
	client *redis.Client
}

func NewAttemptLedger(client *redis.Client) *AttemptLedger {
	return &AttemptLedger{client: client}
}

func (l *AttemptLedger) History(ctx context.Context, candidateID, setID string) (domain.AttemptHistory, error) {
	fields, err := l.client.HGetAll(ctx, l.key(candidateID, setID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return domain.AttemptHistory{}, err
	}

	var h domain.AttemptHistory
	if v, ok := fields["used"]; ok {
		if h.AttemptsUsed, err = strconv.Atoi(v); err != nil {
			return domain.AttemptHistory{}, err
		}
	}
	if v, ok := fields["last"]; ok {
		nanos, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return domain.AttemptHistory{}, err
		}
		h.LastAttemptAt = time.Unix(0, nanos).UTC()
	}
	h.LastPassed = fields["passed"] == "1"
	return h, nil
}

func (l *AttemptLedger) Record(ctx context.Context, record domain.AttemptRecord) error {
	key := l.key(record.CandidateID, record.QuestionSetID)
	passed := "0"
	if record.Result.Passed {
		passed = "1"
	}

	pipe := l.client.TxPipeline()
	pipe.HIncrBy(ctx, key, "used", 1)
	pipe.HSet(ctx, key, "last", record.CompletedAt.UnixNano(), "passed", passed)
	_, err := pipe.Exec(ctx)
	return err
}

func (l *AttemptLedger) key(candidateID, setID string) string {
	return "exam:attempts:" + setID + ":" + candidateID
}
