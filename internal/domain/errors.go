package domain

import "errors"

var (
	// ErrConfiguration is returned when a session cannot start with the supplied question set or config.
	ErrConfiguration = errors.New("invalid exam configuration")
	// ErrInvalidSelection indicates an answer referenced an unknown question or a foreign option.
	ErrInvalidSelection = errors.New("invalid selection")
	// ErrInvalidNavigation indicates a jump to an index outside the question set.
	ErrInvalidNavigation = errors.New("invalid navigation")
	// ErrInvalidTransition is returned when an operation is not allowed in the current session phase.
	ErrInvalidTransition = errors.New("operation not allowed in current session state")
	// ErrSessionNotFound is returned when an exam attempt is not registered.
	ErrSessionNotFound = errors.New("exam session not found")
	// ErrQuestionSetNotFound indicates the question set could not be loaded.
	ErrQuestionSetNotFound = errors.New("question set not found")
	// ErrNoAttemptsRemaining is returned when a candidate has used every permitted attempt.
	ErrNoAttemptsRemaining = errors.New("no further attempts")
	// ErrCooldownActive is returned when a retake is requested before the cooldown has elapsed.
	ErrCooldownActive = errors.New("retake cooldown has not elapsed")
)
