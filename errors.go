package retry

import (
	"errors"
	"fmt"

	"github.com/bjaus/retry/v2/clock"
)

// Error kinds surfaced by Do, Get and Delay. Match them with errors.Is.
var (
	// ErrCancelled reports that the deadline or the caller's context ended
	// the operation before it completed.
	ErrCancelled = errors.New("retry: cancelled")

	// ErrExhausted reports that every allowed attempt failed with a
	// retryable error.
	ErrExhausted = errors.New("retry: attempts exhausted")

	// ErrFatal reports a failure the condition classified as non-retryable,
	// or one wrapped with Stop.
	ErrFatal = errors.New("retry: non-retryable failure")

	// ErrInvalidArgument reports a malformed duration or configuration.
	ErrInvalidArgument = clock.ErrInvalidArgument
)

// Error is the failure returned when an execution ends without success.
// It matches both its Kind and the underlying error with errors.Is.
type Error struct {
	Kind     error
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Attempts > 0 {
		msg = fmt.Sprintf("%s after %d attempt(s)", msg, e.Attempts)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Stop wraps an error to signal that it should not be retried.
// The execution fails immediately with ErrFatal wrapping err.
func Stop(err error) error {
	if err == nil {
		return nil
	}
	return &stopError{err: err}
}

type stopError struct {
	err error
}

func (e *stopError) Error() string {
	return e.err.Error()
}

func (e *stopError) Unwrap() error {
	return e.err
}
