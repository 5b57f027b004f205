package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// QuestionID identifies a question within a question set.
type QuestionID string

// OptionID identifies an answer option within a question.
type OptionID string

// Category is a canonical topic label used for score aggregation.
type Category string

// ParseCategory canonicalises a raw label. Empty labels are rejected so a question
// can never be aggregated under a key that differs from its display label.
func ParseCategory(raw string) (Category, error) {
	label := strings.Join(strings.Fields(raw), " ")
	if label == "" {
		return "", fmt.Errorf("%w: empty category", ErrConfiguration)
	}
	return Category(label), nil
}

// Option represents a possible answer for a question.
type Option struct {
	ID   OptionID `json:"id" yaml:"id"`
	Text string   `json:"text" yaml:"text"`
}

// Question models a single-answer multiple choice question.
type Question struct {
	ID              QuestionID `json:"id" yaml:"id"`
	Prompt          string     `json:"prompt" yaml:"prompt"`
	Options         []Option   `json:"options" yaml:"options"`
	CorrectOptionID OptionID   `json:"correctOptionId" yaml:"correctOptionId"`
	Category        Category   `json:"category" yaml:"category"`
}

// HasOption reports whether id is one of the question's options.
func (q Question) HasOption(id OptionID) bool {
	for _, opt := range q.Options {
		if opt.ID == id {
			return true
		}
	}
	return false
}

// QuestionSet is the immutable ordered sequence of questions for one exam.
type QuestionSet struct {
	ID        string     `json:"id" yaml:"id"`
	Title     string     `json:"title" yaml:"title"`
	Questions []Question `json:"questions" yaml:"questions"`
}

// Len returns the number of questions.
func (s QuestionSet) Len() int {
	return len(s.Questions)
}

// Find returns the question with the given id.
func (s QuestionSet) Find(id QuestionID) (Question, bool) {
	for _, q := range s.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// Validate checks the structural invariants a session relies on.
func (s QuestionSet) Validate() error {
	if len(s.Questions) == 0 {
		return fmt.Errorf("%w: question set %q is empty", ErrConfiguration, s.ID)
	}
	seen := make(map[QuestionID]struct{}, len(s.Questions))
	for i, q := range s.Questions {
		if q.ID == "" {
			return fmt.Errorf("%w: question %d has no id", ErrConfiguration, i)
		}
		if _, dup := seen[q.ID]; dup {
			return fmt.Errorf("%w: duplicate question id %q", ErrConfiguration, q.ID)
		}
		seen[q.ID] = struct{}{}

		if len(q.Options) == 0 {
			return fmt.Errorf("%w: question %q has no options", ErrConfiguration, q.ID)
		}
		opts := make(map[OptionID]struct{}, len(q.Options))
		for _, opt := range q.Options {
			if opt.ID == "" {
				return fmt.Errorf("%w: question %q has an option without id", ErrConfiguration, q.ID)
			}
			if _, dup := opts[opt.ID]; dup {
				return fmt.Errorf("%w: question %q repeats option %q", ErrConfiguration, q.ID, opt.ID)
			}
			opts[opt.ID] = struct{}{}
		}
		if _, ok := opts[q.CorrectOptionID]; !ok {
			return fmt.Errorf("%w: question %q correct option %q is not an option", ErrConfiguration, q.ID, q.CorrectOptionID)
		}

		canonical, err := ParseCategory(string(q.Category))
		if err != nil {
			return fmt.Errorf("question %q: %w", q.ID, err)
		}
		if canonical != q.Category {
			return fmt.Errorf("%w: question %q category %q is not canonical", ErrConfiguration, q.ID, q.Category)
		}
	}
	return nil
}

// Normalize returns a copy of the set with canonical category labels.
func (s QuestionSet) Normalize() QuestionSet {
	out := QuestionSet{ID: s.ID, Title: s.Title, Questions: make([]Question, len(s.Questions))}
	for i, q := range s.Questions {
		if c, err := ParseCategory(string(q.Category)); err == nil {
			q.Category = c
		}
		q.Options = append([]Option(nil), q.Options...)
		out.Questions[i] = q
	}
	return out
}

// AnswerMap maps a question to the selected option. Missing keys are unanswered.
type AnswerMap map[QuestionID]OptionID

// Clone returns an independent copy.
func (m AnswerMap) Clone() AnswerMap {
	out := make(AnswerMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// FlagSet holds questions marked for later review.
type FlagSet map[QuestionID]struct{}

// Has reports whether id is flagged.
func (f FlagSet) Has(id QuestionID) bool {
	_, ok := f[id]
	return ok
}

// Clone returns an independent copy.
func (f FlagSet) Clone() FlagSet {
	out := make(FlagSet, len(f))
	for k := range f {
		out[k] = struct{}{}
	}
	return out
}

// CategoryScore counts correct answers out of the questions in one category.
type CategoryScore struct {
	Correct int `json:"correct"`
	Total   int `json:"total"`
}

// Result is the scored outcome of one attempt.
type Result struct {
	ScorePercent   int                        `json:"scorePercent"`
	CorrectCount   int                        `json:"correctCount"`
	TotalCount     int                        `json:"totalCount"`
	Passed         bool                       `json:"passed"`
	CategoryScores map[Category]CategoryScore `json:"categoryScores"`
}

// Categories returns the scored categories in lexical order.
func (r Result) Categories() []Category {
	out := make([]Category, 0, len(r.CategoryScores))
	for c := range r.CategoryScores {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ExamConfig holds the timing, pass mark and retake policy of an exam.
type ExamConfig struct {
	DurationSeconds int `json:"durationSeconds" yaml:"durationSeconds"`
	PassThreshold   int `json:"passThreshold" yaml:"passThreshold"`
	MaxAttempts     int `json:"maxAttempts" yaml:"maxAttempts"`
	CooldownDays    int `json:"cooldownDays" yaml:"cooldownDays"`
}

// Validate rejects configurations a session must never silently default.
func (c ExamConfig) Validate() error {
	switch {
	case c.DurationSeconds <= 0:
		return fmt.Errorf("%w: duration must be positive, got %d", ErrConfiguration, c.DurationSeconds)
	case c.PassThreshold < 0 || c.PassThreshold > 100:
		return fmt.Errorf("%w: pass threshold must be within [0,100], got %d", ErrConfiguration, c.PassThreshold)
	case c.MaxAttempts < 0:
		return fmt.Errorf("%w: max attempts must not be negative, got %d", ErrConfiguration, c.MaxAttempts)
	case c.CooldownDays < 0:
		return fmt.Errorf("%w: cooldown must not be negative, got %d", ErrConfiguration, c.CooldownDays)
	}
	return nil
}

// AttemptHistory is the externally supplied record of prior attempts.
type AttemptHistory struct {
	AttemptsUsed  int       `json:"attemptsUsed"`
	LastAttemptAt time.Time `json:"lastAttemptAt"`
	LastPassed    bool      `json:"lastPassed"`
}

// Guidance tells the candidate whether and when a retake is possible.
type Guidance struct {
	AttemptsRemaining int        `json:"attemptsRemaining"`
	CanRetakeAt       *time.Time `json:"canRetakeAt"`
	Terminal          bool       `json:"terminal"`
}

// CompletionReason records which path produced the terminal transition.
type CompletionReason string

const (
	CompletionSubmitted CompletionReason = "submitted"
	CompletionExpired   CompletionReason = "expired"
)

// AttemptRecord is the value handed to the host once an attempt completes.
type AttemptRecord struct {
	AttemptID     string           `json:"attemptId"`
	CandidateID   string           `json:"candidateId"`
	QuestionSetID string           `json:"questionSetId"`
	StartedAt     time.Time        `json:"startedAt"`
	CompletedAt   time.Time        `json:"completedAt"`
	Completion    CompletionReason `json:"completion"`
	Result        Result           `json:"result"`
}
