package app

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"license-exam-service/internal/domain"
)

// Timer is the countdown a session runs against.
type Timer interface {
	Start(seconds int)
	Pause()
	Resume()
	Cancel()
	OnExpire(fn func())
	Remaining() int
}

// tickNotifier is implemented by timers that report every tick.
type tickNotifier interface {
	OnTick(fn func(remaining int))
}

// EventKind names a session event.
type EventKind string

const (
	EventState     EventKind = "state"
	EventTick      EventKind = "tick"
	EventCompleted EventKind = "completed"
)

// Event is pushed to subscribers whenever the session changes.
type Event struct {
	Kind             EventKind
	State            domain.SessionState
	RemainingSeconds int
	Record           *domain.AttemptRecord
}

// QuestionStatus is one row of the review summary.
type QuestionStatus struct {
	Index      int               `json:"index"`
	QuestionID domain.QuestionID `json:"questionId"`
	Answered   bool              `json:"answered"`
	Flagged    bool              `json:"flagged"`
}

// Snapshot is a read-only summary of a session.
type Snapshot struct {
	AttemptID        string           `json:"attemptId"`
	Phase            string           `json:"phase"`
	CurrentIndex     int              `json:"currentIndex"`
	RemainingSeconds int              `json:"remainingSeconds"`
	Paused           bool             `json:"paused"`
	AnsweredCount    int              `json:"answeredCount"`
	FlaggedCount     int              `json:"flaggedCount"`
	Questions        []QuestionStatus `json:"questions"`
	Result           *domain.Result   `json:"result,omitempty"`
}

// SessionOption customises a Session.
type SessionOption func(*Session)

// WithScorer replaces the scoring function.
func WithScorer(fn ScoreFunc) SessionOption {
	return func(s *Session) { s.score = fn }
}

// WithClock allows deterministic timestamps in tests.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) { s.now = now }
}

// WithLogger attaches a logger; the default discards output.
func WithLogger(log zerolog.Logger) SessionOption {
	return func(s *Session) { s.log = log }
}

// WithCandidate records who is taking the attempt.
func WithCandidate(candidateID string) SessionOption {
	return func(s *Session) { s.candidateID = candidateID }
}

// Session is the state machine of a single exam attempt. It owns the answers,
// the flags and the cursor, and drives its Timer. A Session is never reused
// across attempts.
type Session struct {
	id          string
	candidateID string
	set         domain.QuestionSet
	timer       Timer
	score       ScoreFunc
	now         func() time.Time
	log         zerolog.Logger

	mu            sync.Mutex
	phase         domain.Phase
	nav           *Navigator
	answers       domain.AnswerMap
	flags         domain.FlagSet
	passThreshold int
	paused        bool
	startedAt     time.Time
	record        *domain.AttemptRecord
	hooks         []func(domain.AttemptRecord)
	subscribers   map[chan Event]struct{}
}

// NewSession creates a session in the Instructions state.
func NewSession(id string, set domain.QuestionSet, timer Timer, opts ...SessionOption) *Session {
	s := &Session{
		id:          id,
		set:         set,
		timer:       timer,
		score:       Score,
		now:         time.Now,
		log:         zerolog.Nop(),
		phase:       domain.PhaseInstructions,
		nav:         NewNavigator(set.Len()),
		answers:     make(domain.AnswerMap),
		flags:       make(domain.FlagSet),
		subscribers: make(map[chan Event]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With().Str("attempt_id", id).Str("question_set_id", set.ID).Logger()

	timer.OnExpire(s.expire)
	if tn, ok := timer.(tickNotifier); ok {
		tn.OnTick(s.handleTick)
	}
	return s
}

// ID returns the attempt id.
func (s *Session) ID() string { return s.id }

// CandidateID returns the candidate taking the attempt.
func (s *Session) CandidateID() string { return s.candidateID }

// QuestionSet returns the questions of this attempt.
func (s *Session) QuestionSet() domain.QuestionSet { return s.set }

// Start begins the attempt and the countdown.
func (s *Session) Start(cfg domain.ExamConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != domain.PhaseInstructions {
		return fmt.Errorf("%w: start from %s", domain.ErrInvalidTransition, s.phase)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := s.set.Validate(); err != nil {
		return err
	}

	s.nav = NewNavigator(s.set.Len())
	s.answers = make(domain.AnswerMap)
	s.flags = make(domain.FlagSet)
	s.passThreshold = cfg.PassThreshold
	s.startedAt = s.now()
	s.phase = domain.PhaseInProgress
	s.timer.Start(cfg.DurationSeconds)

	s.log.Info().
		Int("questions", s.set.Len()).
		Int("duration_seconds", cfg.DurationSeconds).
		Int("pass_threshold", cfg.PassThreshold).
		Msg("exam attempt started")
	s.broadcastLocked(Event{Kind: EventState, State: s.stateLocked()})
	return nil
}

// Answer records optionID for questionID, replacing any earlier answer. Answering
// from Review resumes the attempt.
func (s *Session) Answer(questionID domain.QuestionID, optionID domain.OptionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireActiveLocked("answer"); err != nil {
		return err
	}
	q, ok := s.set.Find(questionID)
	if !ok {
		return fmt.Errorf("%w: unknown question %q", domain.ErrInvalidSelection, questionID)
	}
	if !q.HasOption(optionID) {
		return fmt.Errorf("%w: option %q does not belong to question %q", domain.ErrInvalidSelection, optionID, questionID)
	}

	s.answers[questionID] = optionID
	s.resumeFromReviewLocked()
	s.broadcastLocked(Event{Kind: EventState, State: s.stateLocked()})
	return nil
}

// ToggleFlag adds or removes questionID from the review flags and reports the new membership.
func (s *Session) ToggleFlag(questionID domain.QuestionID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireActiveLocked("flag"); err != nil {
		return false, err
	}
	if _, ok := s.set.Find(questionID); !ok {
		return false, fmt.Errorf("%w: unknown question %q", domain.ErrInvalidSelection, questionID)
	}

	flagged := !s.flags.Has(questionID)
	if flagged {
		s.flags[questionID] = struct{}{}
	} else {
		delete(s.flags, questionID)
	}
	s.resumeFromReviewLocked()
	s.broadcastLocked(Event{Kind: EventState, State: s.stateLocked()})
	return flagged, nil
}

// EnterReview switches to the summary view. The countdown keeps running.
func (s *Session) EnterReview() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.phase {
	case domain.PhaseReview:
		return nil
	case domain.PhaseInProgress:
		s.phase = domain.PhaseReview
		s.broadcastLocked(Event{Kind: EventState, State: s.stateLocked()})
		return nil
	default:
		return fmt.Errorf("%w: review from %s", domain.ErrInvalidTransition, s.phase)
	}
}

// Next moves the cursor forward, clamping at the last question.
func (s *Session) Next() (int, error) {
	return s.move("next", func(n *Navigator) (int, error) { return n.Next(), nil })
}

// Previous moves the cursor back, clamping at the first question.
func (s *Session) Previous() (int, error) {
	return s.move("previous", func(n *Navigator) (int, error) { return n.Previous(), nil })
}

// GoTo jumps to index. Out-of-range indices return ErrInvalidNavigation and
// leave the cursor unchanged.
func (s *Session) GoTo(index int) (int, error) {
	return s.move("goto", func(n *Navigator) (int, error) {
		if err := n.GoTo(index); err != nil {
			return n.Index(), err
		}
		return n.Index(), nil
	})
}

func (s *Session) move(op string, fn func(*Navigator) (int, error)) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireActiveLocked(op); err != nil {
		return s.nav.Index(), err
	}
	before := s.nav.Index()
	idx, err := fn(s.nav)
	if err != nil {
		return idx, err
	}
	if idx != before {
		s.broadcastLocked(Event{Kind: EventState, State: s.stateLocked()})
	}
	return idx, nil
}

// Pause suspends the countdown.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireActiveLocked("pause"); err != nil {
		return err
	}
	if s.paused {
		return nil
	}
	s.paused = true
	s.timer.Pause()
	s.log.Info().Int("remaining_seconds", s.timer.Remaining()).Msg("countdown paused")
	s.broadcastLocked(Event{Kind: EventState, State: s.stateLocked()})
	return nil
}

// Resume continues a paused countdown.
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireActiveLocked("resume"); err != nil {
		return err
	}
	if !s.paused {
		return nil
	}
	s.paused = false
	s.timer.Resume()
	s.log.Info().Int("remaining_seconds", s.timer.Remaining()).Msg("countdown resumed")
	s.broadcastLocked(Event{Kind: EventState, State: s.stateLocked()})
	return nil
}

// Submit scores the attempt and completes it. Once completed, further calls
// return the stored result without scoring again.
func (s *Session) Submit() (domain.Result, error) {
	return s.finish(domain.CompletionSubmitted)
}

func (s *Session) expire() {
	_, _ = s.finish(domain.CompletionExpired)
}

func (s *Session) finish(reason domain.CompletionReason) (domain.Result, error) {
	s.mu.Lock()
	switch s.phase {
	case domain.PhaseCompleted:
		result := s.record.Result
		s.mu.Unlock()
		return result, nil
	case domain.PhaseInstructions:
		s.mu.Unlock()
		return domain.Result{}, fmt.Errorf("%w: submit from %s", domain.ErrInvalidTransition, s.phase)
	}

	result := s.score(s.set, s.answers.Clone(), s.passThreshold)
	record := domain.AttemptRecord{
		AttemptID:     s.id,
		CandidateID:   s.candidateID,
		QuestionSetID: s.set.ID,
		StartedAt:     s.startedAt,
		CompletedAt:   s.now(),
		Completion:    reason,
		Result:        result,
	}
	s.record = &record
	s.phase = domain.PhaseCompleted
	s.paused = false
	s.timer.Cancel()
	hooks := append([]func(domain.AttemptRecord){}, s.hooks...)
	s.mu.Unlock()

	s.log.Info().
		Str("completion", string(reason)).
		Int("score_percent", result.ScorePercent).
		Int("correct", result.CorrectCount).
		Int("total", result.TotalCount).
		Bool("passed", result.Passed).
		Msg("exam attempt completed")

	for _, hook := range hooks {
		hook(record)
	}

	s.mu.Lock()
	s.broadcastLocked(Event{Kind: EventCompleted, State: domain.Completed{Result: result}, Record: &record})
	s.mu.Unlock()
	return result, nil
}

func (s *Session) handleTick(remaining int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != domain.PhaseInProgress && s.phase != domain.PhaseReview {
		return
	}
	s.broadcastLocked(Event{Kind: EventTick, RemainingSeconds: remaining})
}

// OnComplete registers fn to run once, after the terminal transition, with the
// completed attempt. Hooks registered after completion run immediately.
func (s *Session) OnComplete(fn func(domain.AttemptRecord)) {
	s.mu.Lock()
	if s.phase == domain.PhaseCompleted {
		record := *s.record
		s.mu.Unlock()
		fn(record)
		return
	}
	s.hooks = append(s.hooks, fn)
	s.mu.Unlock()
}

// State returns the current state variant.
func (s *Session) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// Record returns the completed attempt, if any.
func (s *Session) Record() (domain.AttemptRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.record == nil {
		return domain.AttemptRecord{}, false
	}
	return *s.record, true
}

// Answers returns a copy of the recorded answers.
func (s *Session) Answers() domain.AnswerMap {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answers.Clone()
}

// Flags returns a copy of the flagged questions.
func (s *Session) Flags() domain.FlagSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flags.Clone()
}

// CurrentQuestion returns the question under the cursor.
func (s *Session) CurrentQuestion() (int, domain.Question) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.nav.Index()
	if idx >= s.set.Len() {
		return idx, domain.Question{}
	}
	return idx, s.set.Questions[idx]
}

// Snapshot returns the review summary of the attempt.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		AttemptID:    s.id,
		Phase:        s.phase.String(),
		CurrentIndex: s.nav.Index(),
		Paused:       s.paused,
		Questions:    make([]QuestionStatus, 0, s.set.Len()),
	}
	if s.phase == domain.PhaseInProgress || s.phase == domain.PhaseReview {
		snap.RemainingSeconds = s.timer.Remaining()
	}
	for i, q := range s.set.Questions {
		_, answered := s.answers[q.ID]
		flagged := s.flags.Has(q.ID)
		if answered {
			snap.AnsweredCount++
		}
		if flagged {
			snap.FlaggedCount++
		}
		snap.Questions = append(snap.Questions, QuestionStatus{
			Index:      i,
			QuestionID: q.ID,
			Answered:   answered,
			Flagged:    flagged,
		})
	}
	if s.record != nil {
		result := s.record.Result
		snap.Result = &result
	}
	return snap
}

// Subscribe returns a channel of session events starting with the current state.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *Session) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	ch <- Event{Kind: EventState, State: s.stateLocked(), Record: s.record}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) requireActiveLocked(op string) error {
	if s.phase == domain.PhaseInProgress || s.phase == domain.PhaseReview {
		return nil
	}
	return fmt.Errorf("%w: %s from %s", domain.ErrInvalidTransition, op, s.phase)
}

func (s *Session) resumeFromReviewLocked() {
	if s.phase == domain.PhaseReview {
		s.phase = domain.PhaseInProgress
	}
}

func (s *Session) stateLocked() domain.SessionState {
	switch s.phase {
	case domain.PhaseInProgress:
		return domain.InProgress{CurrentIndex: s.nav.Index(), RemainingSeconds: s.timer.Remaining()}
	case domain.PhaseReview:
		return domain.Review{CurrentIndex: s.nav.Index()}
	case domain.PhaseCompleted:
		return domain.Completed{Result: s.record.Result}
	default:
		return domain.Instructions{}
	}
}

func (s *Session) broadcastLocked(ev Event) {
	for ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
			// slow subscriber: drop the oldest event so the newest one lands
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}
