package domain

// Phase names the variant of a SessionState.
type Phase int

const (
	PhaseInstructions Phase = iota
	PhaseInProgress
	PhaseReview
	PhaseCompleted
)

func (p Phase) String() string {
	switch p {
	case PhaseInstructions:
		return "instructions"
	case PhaseInProgress:
		return "in_progress"
	case PhaseReview:
		return "review"
	case PhaseCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// SessionState is a closed union of Instructions, InProgress, Review and Completed.
type SessionState interface {
	Phase() Phase
	sessionState()
}

// Instructions is the pre-start state.
type Instructions struct{}

// InProgress is the active answering state.
type InProgress struct {
	CurrentIndex     int
	RemainingSeconds int
}

// Review is the summary view before final submission. It is still mutable.
type Review struct {
	CurrentIndex int
}

// Completed is terminal and carries the scored result.
type Completed struct {
	Result Result
}

func (Instructions) Phase() Phase { return PhaseInstructions }
func (InProgress) Phase() Phase   { return PhaseInProgress }
func (Review) Phase() Phase       { return PhaseReview }
func (Completed) Phase() Phase    { return PhaseCompleted }

func (Instructions) sessionState() {}
func (InProgress) sessionState()   {}
func (Review) sessionState()       {}
func (Completed) sessionState()    {}
