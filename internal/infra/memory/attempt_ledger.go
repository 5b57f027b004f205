package memory

import (
	"context"
	"sync"

	"license-exam-service/internal/domain"
)

// AttemptLedger keeps attempt history in process memory. It is lost on restart.
type AttemptLedger struct {
	mu      sync.RWMutex
	history map[ledgerKey]domain.AttemptHistory
	records []domain.AttemptRecord
}

type ledgerKey struct {
	candidateID string
	setID       string
}

func NewAttemptLedger() *AttemptLedger {
	return &AttemptLedger{history: make(map[ledgerKey]domain.AttemptHistory)}
}

func (l *AttemptLedger) History(_ context.Context, candidateID, setID string) (domain.AttemptHistory, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.history[ledgerKey{candidateID, setID}], nil
}

func (l *AttemptLedger) Record(_ context.Context, record domain.AttemptRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := ledgerKey{record.CandidateID, record.QuestionSetID}
	h := l.history[key]
	h.AttemptsUsed++
	h.LastAttemptAt = record.CompletedAt
	h.LastPassed = record.Result.Passed
	l.history[key] = h
	l.records = append(l.records, record)
	return nil
}

// Records returns every attempt recorded so far, oldest first.
func (l *AttemptLedger) Records() []domain.AttemptRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]domain.AttemptRecord(nil), l.records...)
}
