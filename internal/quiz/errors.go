package quiz

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mind-engage/mindengage-quiz/internal/grading"
)

var (
	ErrQuizNotFound            = errors.New("quiz not found")
	ErrAttemptNotFound         = errors.New("attempt not found")
	ErrAttemptAlreadySubmitted = errors.New("attempt already submitted")
	ErrAlreadyInProgress       = errors.New("attempt already in progress")

	// ErrQuizInUse rejects re-uploading a quiz that attempts already
	// reference; its questions and keys are frozen from the first start.
	ErrQuizInUse = errors.New("quiz has attempts")

	// ErrOpenAttemptExists is returned by stores when the one-open-attempt
	// constraint rejects an insert.
	ErrOpenAttemptExists = errors.New("open attempt exists")

	ErrInvalidQuizState = grading.ErrInvalidQuizState
	ErrUnknownQuestion  = grading.ErrUnknownQuestion
	ErrInvalidAnswer    = errors.New("invalid answer")
)

type DenyReason string

const (
	ReasonNotYetOpen        DenyReason = "not_yet_open"
	ReasonClosed            DenyReason = "closed"
	ReasonAttemptsExhausted DenyReason = "attempts_exhausted"
	ReasonInProgress        DenyReason = "attempt_in_progress"
)

// NotEligibleError carries the reason start was refused and, when an attempt
// is already open, its id so the client can resume it.
type NotEligibleError struct {
	Reason    DenyReason
	AttemptID string
}

func (e *NotEligibleError) Error() string {
	if e.AttemptID != "" {
		return fmt.Sprintf("not eligible: %s (attempt %s)", e.Reason, e.AttemptID)
	}
	return "not eligible: " + string(e.Reason)
}

func (e *NotEligibleError) Is(target error) bool {
	return target == ErrAlreadyInProgress && e.Reason == ReasonInProgress
}

// ValidationError lists everything wrong with an uploaded quiz.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid quiz: " + strings.Join(e.Problems, "; ")
}
