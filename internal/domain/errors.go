package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrAttemptNotFound indicates the attempt does not exist for this user.
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrValidation marks malformed submissions; the whole submission is rejected.
	ErrValidation = errors.New("validation failed")
	// ErrNotRegistered is returned when a quiz requires registration and the user has none.
	ErrNotRegistered = errors.New("user is not registered for this quiz")
	// ErrRegistrationClosed is returned after the registration deadline.
	ErrRegistrationClosed = errors.New("registration is closed")
	// ErrQuizNotActive is returned outside the quiz's start/end window.
	ErrQuizNotActive = errors.New("quiz is not active")
	// ErrAttemptLimitExceeded is returned once a user used all allowed attempts.
	ErrAttemptLimitExceeded = errors.New("attempt limit exceeded")
	// ErrNotParticipant is returned when a participants-only leaderboard is read by an outsider.
	ErrNotParticipant = errors.New("leaderboard is visible to participants only")
	// ErrConflict is reported by stores when a concurrent write won the race.
	ErrConflict = errors.New("concurrent write conflict")
	// ErrTransient is surfaced once conflict retries are exhausted.
	ErrTransient = errors.New("transient failure, try again")
)

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// AttemptLimitError carries the prior attempt count and the configured limit.
type AttemptLimitError struct {
	Count int
	Limit int
}

func (e *AttemptLimitError) Error() string {
	return fmt.Sprintf("attempt limit exceeded: already attempted %d of %d times", e.Count, e.Limit)
}

func (e *AttemptLimitError) Unwrap() error { return ErrAttemptLimitExceeded }

// Reasons reported by NotActiveError.
const (
	ReasonNotStarted = "not_started"
	ReasonEnded      = "ended"
)

// NotActiveError explains why a submission fell outside the quiz window.
type NotActiveError struct {
	Reason    string
	StartDate time.Time
	EndDate   time.Time
}

func (e *NotActiveError) Error() string {
	if e.Reason == ReasonNotStarted {
		return fmt.Sprintf("quiz is not active: starts at %s", e.StartDate.Format(time.RFC3339))
	}
	return fmt.Sprintf("quiz is not active: ended at %s", e.EndDate.Format(time.RFC3339))
}

func (e *NotActiveError) Unwrap() error { return ErrQuizNotActive }
