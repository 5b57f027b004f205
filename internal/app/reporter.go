package app

import (
	"fmt"
	"time"

	"license-exam-service/internal/domain"
)

const day = 24 * time.Hour

// Report derives retake guidance from a result and the candidate's attempt history.
// history is expected to already include the attempt that produced result.
// The result is read, never modified.
func Report(result domain.Result, cfg domain.ExamConfig, history domain.AttemptHistory) domain.Guidance {
	remaining := cfg.MaxAttempts - history.AttemptsUsed
	if remaining < 0 {
		remaining = 0
	}

	guidance := domain.Guidance{AttemptsRemaining: remaining}
	if remaining == 0 {
		guidance.Terminal = true
		return guidance
	}
	if !result.Passed {
		at := history.LastAttemptAt.Add(time.Duration(cfg.CooldownDays) * day)
		guidance.CanRetakeAt = &at
	}
	return guidance
}

// CheckEligibility reports whether a new attempt may be opened at now. The cooldown
// only applies after a failed attempt.
func CheckEligibility(cfg domain.ExamConfig, history domain.AttemptHistory, now time.Time) error {
	if history.AttemptsUsed >= cfg.MaxAttempts {
		return fmt.Errorf("%w: %d of %d attempts used", domain.ErrNoAttemptsRemaining, history.AttemptsUsed, cfg.MaxAttempts)
	}
	if history.AttemptsUsed == 0 || history.LastPassed {
		return nil
	}
	retakeAt := history.LastAttemptAt.Add(time.Duration(cfg.CooldownDays) * day)
	if now.Before(retakeAt) {
		return fmt.Errorf("%w: retake possible at %s", domain.ErrCooldownActive, retakeAt.UTC().Format(time.RFC3339))
	}
	return nil
}
