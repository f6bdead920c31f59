package proctor

import (
	"errors"
	"fmt"
)

// Lifecycle errors. Security violations are not errors; they flow through
// the Escalator.
var (
	// ErrLoadValidation means generation produced no usable questions.
	ErrLoadValidation = errors.New("no valid questions in generated set")

	// ErrGenerateTimeout means the generation request exceeded its deadline.
	ErrGenerateTimeout = errors.New("question generation timed out")

	// ErrNetwork wraps a failed or non-success remote call.
	ErrNetwork = errors.New("network failure")

	// ErrPersistence means the marks write did not succeed.
	ErrPersistence = errors.New("marks write failed")

	// ErrNotInteractive is returned for learner actions outside IN_PROGRESS
	// or while input is disabled.
	ErrNotInteractive = errors.New("exam is not accepting input")

	// ErrUnknownQuestion is returned when an answer names a question that was not loaded.
	ErrUnknownQuestion = errors.New("unknown question")

	// ErrInvalidChoice is returned when an answer letter is not one of the question's options.
	ErrInvalidChoice = errors.New("choice is not an option of the question")

	// ErrAnswersFrozen is returned when recording into a locked answer record.
	ErrAnswersFrozen = errors.New("answers are locked")

	// ErrFullscreenUnsupported is returned when the client has no fullscreen API.
	ErrFullscreenUnsupported = errors.New("fullscreen is not supported")
)

// TransitionError is the diagnostic for a rejected state change. The state is
// left untouched.
type TransitionError struct {
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("transition %s -> %s is not allowed", e.From, e.To)
}

// IncompleteError rejects a submission while questions remain unanswered.
type IncompleteError struct {
	Unanswered int
	Total      int
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("%d of %d questions are unanswered", e.Unanswered, e.Total)
}

// IsRejection reports whether err is a transition or submission rejection.
func IsRejection(err error) bool {
	var te *TransitionError
	var ie *IncompleteError
	return errors.As(err, &te) || errors.As(err, &ie)
}
