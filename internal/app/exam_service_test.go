package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"license-exam-service/internal/app"
	"license-exam-service/internal/domain"
	"license-exam-service/internal/infra/memory"
	"license-exam-service/internal/timer"
)

type recordingPublisher struct {
	mu       sync.Mutex
	records  []domain.AttemptRecord
	guidance []domain.Guidance
}

func (p *recordingPublisher) PublishResult(_ context.Context, record domain.AttemptRecord, guidance domain.Guidance) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, record)
	p.guidance = append(p.guidance, guidance)
	return nil
}

type failingLedger struct{}

func (failingLedger) History(context.Context, string, string) (domain.AttemptHistory, error) {
	return domain.AttemptHistory{}, errors.New("ledger offline")
}

func (failingLedger) Record(context.Context, domain.AttemptRecord) error {
	return errors.New("ledger offline")
}

type serviceFixture struct {
	service   *app.ExamService
	ledger    *memory.AttemptLedger
	publisher *recordingPublisher
	timers    []*timer.Countdown
	now       time.Time
}

func newServiceFixture(t *testing.T, cfg domain.ExamConfig) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		ledger:    memory.NewAttemptLedger(),
		publisher: &recordingPublisher{},
		now:       time.Date(2024, 4, 2, 8, 0, 0, 0, time.UTC),
	}
	sets := memory.NewQuestionSetRepository(
		memory.NewStaticQuestionSetLoader(map[string]domain.QuestionSet{"licence-2024": licensingSet(10)}),
		time.Minute,
	)
	f.service = app.NewExamService(cfg, sets, memory.NewSessionStore(), f.ledger,
		app.WithPublisher(f.publisher),
		app.WithServiceClock(func() time.Time { return f.now }),
		app.WithTimerFactory(func() app.Timer {
			c := timer.NewCountdown(0)
			f.timers = append(f.timers, c)
			return c
		}),
	)
	return f
}

func (f *serviceFixture) run(t *testing.T, candidate string, correct int) (domain.AttemptRecord, domain.Guidance) {
	t.Helper()
	session, err := f.service.Open(context.Background(), candidate, "licence-2024")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.service.Start(context.Background(), session.ID()); err != nil {
		t.Fatalf("start: %v", err)
	}
	for i, q := range session.QuestionSet().Questions {
		if i < correct {
			_ = session.Answer(q.ID, q.CorrectOptionID)
		}
	}
	if _, err := session.Submit(); err != nil {
		t.Fatalf("submit: %v", err)
	}
	record, guidance, err := f.service.Outcome(session.ID())
	if err != nil {
		t.Fatalf("outcome: %v", err)
	}
	f.service.Close(session.ID())
	return record, guidance
}

func TestExamServiceRecordsAndGuides(t *testing.T) {
	f := newServiceFixture(t, examConfig(600, 70))

	record, guidance := f.run(t, "cand-1", 4)
	if record.Result.ScorePercent != 40 || record.Result.Passed {
		t.Fatalf("unexpected result %+v", record.Result)
	}
	if record.CandidateID != "cand-1" || record.QuestionSetID != "licence-2024" || record.AttemptID == "" {
		t.Fatalf("unexpected record %+v", record)
	}
	if guidance.AttemptsRemaining != 2 || guidance.Terminal {
		t.Fatalf("unexpected guidance %+v", guidance)
	}
	if guidance.CanRetakeAt == nil || !guidance.CanRetakeAt.Equal(f.now.AddDate(0, 0, 14)) {
		t.Fatalf("expected retake in 14 days, got %v", guidance.CanRetakeAt)
	}
	if len(f.publisher.records) != 1 || f.publisher.records[0].AttemptID != record.AttemptID {
		t.Fatalf("expected published record, got %+v", f.publisher.records)
	}
	if h, _ := f.ledger.History(context.Background(), "cand-1", "licence-2024"); h.AttemptsUsed != 1 {
		t.Fatalf("expected one recorded attempt, got %+v", h)
	}
}

func TestExamServiceEnforcesCooldownAndAttempts(t *testing.T) {
	f := newServiceFixture(t, examConfig(600, 70))
	f.run(t, "cand-1", 2)

	if _, err := f.service.Open(context.Background(), "cand-1", "licence-2024"); !errors.Is(err, domain.ErrCooldownActive) {
		t.Fatalf("expected cooldown, got %v", err)
	}

	f.now = f.now.AddDate(0, 0, 14)
	f.run(t, "cand-1", 3)
	f.now = f.now.AddDate(0, 0, 14)
	_, guidance := f.run(t, "cand-1", 1)
	if !guidance.Terminal || guidance.AttemptsRemaining != 0 || guidance.CanRetakeAt != nil {
		t.Fatalf("expected terminal guidance, got %+v", guidance)
	}

	f.now = f.now.AddDate(1, 0, 0)
	if _, err := f.service.Open(context.Background(), "cand-1", "licence-2024"); !errors.Is(err, domain.ErrNoAttemptsRemaining) {
		t.Fatalf("expected no attempts remaining, got %v", err)
	}
	if _, err := f.service.Open(context.Background(), "cand-2", "licence-2024"); err != nil {
		t.Fatalf("other candidates are unaffected: %v", err)
	}
}

func TestExamServiceExpiryIsRecorded(t *testing.T) {
	cfg := examConfig(3, 70)
	f := newServiceFixture(t, cfg)

	session, err := f.service.Open(context.Background(), "cand-1", "licence-2024")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, _, err := f.service.Outcome(session.ID()); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("outcome before completion: %v", err)
	}
	if _, err := f.service.Start(context.Background(), session.ID()); err != nil {
		t.Fatalf("start: %v", err)
	}
	countdown := f.timers[len(f.timers)-1]
	for i := 0; i < 3; i++ {
		countdown.Tick()
	}

	record, _, err := f.service.Outcome(session.ID())
	if err != nil {
		t.Fatalf("outcome: %v", err)
	}
	if record.Completion != domain.CompletionExpired {
		t.Fatalf("expected expired completion, got %s", record.Completion)
	}
}

func TestExamServiceCloseSubmitsRunningAttempt(t *testing.T) {
	f := newServiceFixture(t, examConfig(600, 70))
	session, _ := f.service.Open(context.Background(), "cand-1", "licence-2024")
	_, _ = f.service.Start(context.Background(), session.ID())

	f.service.Close(session.ID())

	if _, ok := session.State().(domain.Completed); !ok {
		t.Fatalf("expected completed after close, got %T", session.State())
	}
	if h, _ := f.ledger.History(context.Background(), "cand-1", "licence-2024"); h.AttemptsUsed != 1 {
		t.Fatalf("closing a running attempt must consume it, got %+v", h)
	}
	if _, err := f.service.Session(session.ID()); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected session removed, got %v", err)
	}
	if _, _, err := f.service.Outcome(session.ID()); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected outcome removed, got %v", err)
	}
}

func TestExamServiceCloseBeforeStartDoesNotConsume(t *testing.T) {
	f := newServiceFixture(t, examConfig(600, 70))
	session, _ := f.service.Open(context.Background(), "cand-1", "licence-2024")
	f.service.Close(session.ID())

	if h, _ := f.ledger.History(context.Background(), "cand-1", "licence-2024"); h.AttemptsUsed != 0 {
		t.Fatalf("unstarted attempt was recorded: %+v", h)
	}
}

func TestExamServiceOpenErrors(t *testing.T) {
	f := newServiceFixture(t, examConfig(600, 70))
	if _, err := f.service.Open(context.Background(), "cand-1", "unknown"); !errors.Is(err, domain.ErrQuestionSetNotFound) {
		t.Fatalf("expected set not found, got %v", err)
	}
	if _, err := f.service.Start(context.Background(), "nope"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected session not found, got %v", err)
	}

	bad := newServiceFixture(t, examConfig(0, 70))
	if _, err := bad.service.Open(context.Background(), "cand-1", "licence-2024"); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}

	sets := memory.NewQuestionSetRepository(
		memory.NewStaticQuestionSetLoader(map[string]domain.QuestionSet{"licence-2024": licensingSet(2)}),
		time.Minute,
	)
	offline := app.NewExamService(examConfig(60, 70), sets, memory.NewSessionStore(), failingLedger{})
	if _, err := offline.Open(context.Background(), "cand-1", "licence-2024"); err == nil {
		t.Fatalf("expected ledger error")
	}
}

func TestExamServiceCountsOpenAttempts(t *testing.T) {
	cfg := examConfig(600, 70)
	cfg.MaxAttempts = 1
	f := newServiceFixture(t, cfg)
	ctx := context.Background()

	first, err := f.service.Open(ctx, "cand-1", "licence-2024")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.service.Open(ctx, "cand-1", "licence-2024"); !errors.Is(err, domain.ErrNoAttemptsRemaining) {
		t.Fatalf("second open while the first is live: expected no attempts remaining, got %v", err)
	}
	if _, err := f.service.Open(ctx, "cand-2", "licence-2024"); err != nil {
		t.Fatalf("other candidates are unaffected: %v", err)
	}

	// leaving before the start gives the reservation back
	f.service.Close(first.ID())
	second, err := f.service.Open(ctx, "cand-1", "licence-2024")
	if err != nil {
		t.Fatalf("open after close: %v", err)
	}
	if _, err := f.service.Start(ctx, second.ID()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.service.Open(ctx, "cand-1", "licence-2024"); !errors.Is(err, domain.ErrNoAttemptsRemaining) {
		t.Fatalf("open while running: expected no attempts remaining, got %v", err)
	}
	if _, err := second.Submit(); err != nil {
		t.Fatalf("submit: %v", err)
	}
	f.service.Close(second.ID())
	if _, err := f.service.Open(ctx, "cand-1", "licence-2024"); !errors.Is(err, domain.ErrNoAttemptsRemaining) {
		t.Fatalf("open after the only attempt: expected no attempts remaining, got %v", err)
	}
	if h, _ := f.ledger.History(ctx, "cand-1", "licence-2024"); h.AttemptsUsed != 1 {
		t.Fatalf("expected exactly one recorded attempt, got %+v", h)
	}
}

type touchingStore struct {
	*memory.SessionStore
	mu      sync.Mutex
	touched []string
}

func (s *touchingStore) Touch(_ context.Context, attemptID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched = append(s.touched, attemptID)
	return nil
}

func TestExamServiceTouchRefreshesExpiringStores(t *testing.T) {
	sets := memory.NewQuestionSetRepository(
		memory.NewStaticQuestionSetLoader(map[string]domain.QuestionSet{"licence-2024": licensingSet(2)}),
		time.Minute,
	)
	store := &touchingStore{SessionStore: memory.NewSessionStore()}
	service := app.NewExamService(examConfig(60, 70), sets, store, memory.NewAttemptLedger(),
		app.WithTimerFactory(func() app.Timer { return timer.NewCountdown(0) }),
	)

	session, err := service.Open(context.Background(), "cand-1", "licence-2024")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := service.Touch(context.Background(), session.ID()); err != nil {
		t.Fatalf("touch: %v", err)
	}
	if len(store.touched) != 1 || store.touched[0] != session.ID() {
		t.Fatalf("expected store touched for %s, got %v", session.ID(), store.touched)
	}
	if err := service.Touch(context.Background(), "nope"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected session not found, got %v", err)
	}

	plain := app.NewExamService(examConfig(60, 70), sets, memory.NewSessionStore(), memory.NewAttemptLedger())
	if err := plain.Touch(context.Background(), "anything"); err != nil {
		t.Fatalf("stores without expiry need no touch, got %v", err)
	}
}
