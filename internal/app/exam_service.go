package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"license-exam-service/internal/domain"
	"license-exam-service/internal/timer"
)

// QuestionSetRepository loads question sets (from cache/backing store).
type QuestionSetRepository interface {
	GetQuestionSet(ctx context.Context, setID string) (domain.QuestionSet, error)
}

// SessionRepository abstracts where live attempts are kept (in-memory, Redis, etc).
type SessionRepository interface {
	Put(session *Session)
	Get(attemptID string) (*Session, bool)
	Delete(attemptID string)
}

// SessionToucher is implemented by session stores whose entries expire.
type SessionToucher interface {
	Touch(ctx context.Context, attemptID string) error
}

// AttemptLedger keeps the per-candidate attempt history that drives eligibility
// and retake guidance.
type AttemptLedger interface {
	History(ctx context.Context, candidateID, setID string) (domain.AttemptHistory, error)
	Record(ctx context.Context, record domain.AttemptRecord) error
}

// ResultPublisher announces completed attempts to other systems.
type ResultPublisher interface {
	PublishResult(ctx context.Context, record domain.AttemptRecord, guidance domain.Guidance) error
}

// ServiceOption customises an ExamService.
type ServiceOption func(*ExamService)

// WithPublisher sends every completed attempt to p.
func WithPublisher(p ResultPublisher) ServiceOption {
	return func(s *ExamService) { s.publisher = p }
}

// WithTickInterval sets how often countdowns tick. Zero leaves ticking to the caller.
func WithTickInterval(d time.Duration) ServiceOption {
	return func(s *ExamService) { s.tickInterval = d }
}

// WithServiceLogger attaches a logger.
func WithServiceLogger(log zerolog.Logger) ServiceOption {
	return func(s *ExamService) { s.log = log }
}

// WithServiceClock overrides the clock used for eligibility and timestamps.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *ExamService) { s.now = now }
}

// WithTimerFactory replaces the countdown construction, mainly for tests.
func WithTimerFactory(fn func() Timer) ServiceOption {
	return func(s *ExamService) { s.newTimer = fn }
}

// ExamService contains the exam use cases around a Session.
type ExamService struct {
	cfg          domain.ExamConfig
	sets         QuestionSetRepository
	sessions     SessionRepository
	ledger       AttemptLedger
	publisher    ResultPublisher
	tickInterval time.Duration
	newTimer     func() Timer
	now          func() time.Time
	log          zerolog.Logger

	mu       sync.Mutex
	outcomes map[string]outcome
	// attempts opened but not yet recorded in the ledger, by attempt id
	pending map[string]attemptKey
}

type attemptKey struct {
	candidateID string
	setID       string
}

type outcome struct {
	record   domain.AttemptRecord
	guidance domain.Guidance
}

func NewExamService(cfg domain.ExamConfig, sets QuestionSetRepository, sessions SessionRepository, ledger AttemptLedger, opts ...ServiceOption) *ExamService {
	s := &ExamService{
		cfg:          cfg,
		sets:         sets,
		sessions:     sessions,
		ledger:       ledger,
		tickInterval: time.Second,
		now:          time.Now,
		log:          zerolog.Nop(),
		outcomes:     make(map[string]outcome),
		pending:      make(map[string]attemptKey),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.newTimer == nil {
		interval := s.tickInterval
		s.newTimer = func() Timer { return timer.NewCountdown(interval) }
	}
	s.log = s.log.With().Str("component", "exam_service").Logger()
	return s
}

// Config returns the exam rules applied to every attempt.
func (s *ExamService) Config() domain.ExamConfig { return s.cfg }

// Open prepares a new attempt for candidateID in the Instructions state.
func (s *ExamService) Open(ctx context.Context, candidateID, setID string) (*Session, error) {
	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}
	set, err := s.sets.GetQuestionSet(ctx, setID)
	if err != nil {
		return nil, err
	}
	set = set.Normalize()
	if err := set.Validate(); err != nil {
		return nil, err
	}

	history, err := s.ledger.History(ctx, candidateID, set.ID)
	if err != nil {
		return nil, fmt.Errorf("load attempt history: %w", err)
	}

	key := attemptKey{candidateID: candidateID, setID: set.ID}
	attemptID := uuid.NewString()

	// Open attempts count against the limit until the ledger has them.
	s.mu.Lock()
	reserved := history
	reserved.AttemptsUsed += s.pendingLocked(key)
	if err := CheckEligibility(s.cfg, reserved, s.now()); err != nil {
		s.mu.Unlock()
		s.log.Info().Str("candidate_id", candidateID).Str("question_set_id", set.ID).Err(err).Msg("attempt refused")
		return nil, err
	}
	s.pending[attemptID] = key
	s.mu.Unlock()

	session := NewSession(attemptID, set, s.newTimer(),
		WithCandidate(candidateID),
		WithClock(s.now),
		WithLogger(s.log),
	)
	session.OnComplete(func(record domain.AttemptRecord) {
		s.complete(record, history)
	})
	s.sessions.Put(session)

	s.log.Info().
		Str("attempt_id", session.ID()).
		Str("candidate_id", candidateID).
		Str("question_set_id", set.ID).
		Int("attempts_used", history.AttemptsUsed).
		Msg("attempt opened")
	return session, nil
}

// Start begins the countdown of an opened attempt.
func (s *ExamService) Start(_ context.Context, attemptID string) (*Session, error) {
	session, err := s.Session(attemptID)
	if err != nil {
		return nil, err
	}
	if err := session.Start(s.cfg); err != nil {
		return nil, err
	}
	return session, nil
}

// Session returns a live attempt.
func (s *ExamService) Session(attemptID string) (*Session, error) {
	session, ok := s.sessions.Get(attemptID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// Touch extends the lifetime of a live attempt in stores that expire entries.
func (s *ExamService) Touch(ctx context.Context, attemptID string) error {
	toucher, ok := s.sessions.(SessionToucher)
	if !ok {
		return nil
	}
	if _, found := s.sessions.Get(attemptID); !found {
		return domain.ErrSessionNotFound
	}
	return toucher.Touch(ctx, attemptID)
}

// Outcome returns the record and guidance of a completed attempt.
func (s *ExamService) Outcome(attemptID string) (domain.AttemptRecord, domain.Guidance, error) {
	s.mu.Lock()
	out, ok := s.outcomes[attemptID]
	s.mu.Unlock()
	if ok {
		return out.record, out.guidance, nil
	}
	if _, found := s.sessions.Get(attemptID); !found {
		return domain.AttemptRecord{}, domain.Guidance{}, domain.ErrSessionNotFound
	}
	return domain.AttemptRecord{}, domain.Guidance{}, fmt.Errorf("%w: attempt %s is not completed", domain.ErrInvalidTransition, attemptID)
}

// Close forgets an attempt. An attempt still running is submitted first so that
// leaving the exam consumes it.
func (s *ExamService) Close(attemptID string) {
	session, ok := s.sessions.Get(attemptID)
	if !ok {
		return
	}
	switch session.State().(type) {
	case domain.InProgress, domain.Review:
		if _, err := session.Submit(); err != nil {
			s.log.Warn().Str("attempt_id", attemptID).Err(err).Msg("submit on close failed")
		}
	}
	s.sessions.Delete(attemptID)

	s.mu.Lock()
	delete(s.outcomes, attemptID)
	delete(s.pending, attemptID)
	s.mu.Unlock()
}

func (s *ExamService) pendingLocked(key attemptKey) int {
	n := 0
	for _, k := range s.pending {
		if k == key {
			n++
		}
	}
	return n
}

func (s *ExamService) complete(record domain.AttemptRecord, before domain.AttemptHistory) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	log := s.log.With().Str("attempt_id", record.AttemptID).Str("candidate_id", record.CandidateID).Logger()

	history := domain.AttemptHistory{
		AttemptsUsed:  before.AttemptsUsed + 1,
		LastAttemptAt: record.CompletedAt,
		LastPassed:    record.Result.Passed,
	}
	if err := s.ledger.Record(ctx, record); err != nil {
		log.Error().Err(err).Msg("record attempt")
	} else if updated, err := s.ledger.History(ctx, record.CandidateID, record.QuestionSetID); err != nil {
		log.Error().Err(err).Msg("reload attempt history")
	} else {
		history = updated
	}

	guidance := Report(record.Result, s.cfg, history)

	s.mu.Lock()
	s.outcomes[record.AttemptID] = outcome{record: record, guidance: guidance}
	delete(s.pending, record.AttemptID)
	s.mu.Unlock()

	if s.publisher != nil {
		if err := s.publisher.PublishResult(ctx, record, guidance); err != nil {
			log.Error().Err(err).Msg("publish result")
		}
	}

	log.Info().
		Int("attempts_remaining", guidance.AttemptsRemaining).
		Bool("terminal", guidance.Terminal).
		Msg("attempt recorded")
}
