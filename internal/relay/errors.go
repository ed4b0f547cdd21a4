package relay

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrEmptyPrompt is returned when the request carries no usable prompt.
	ErrEmptyPrompt = errors.New("empty prompt")
	// ErrEmptyResult is returned when a job succeeded without a payload.
	ErrEmptyResult = errors.New("empty result")
	// ErrTimeout is returned when a job does not finish within the wait limit.
	ErrTimeout = errors.New("timeout waiting for job")
)

// SubmissionError wraps a failure to hand the job to the provider.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string { return "submit job: " + e.Err.Error() }
func (e *SubmissionError) Unwrap() error { return e.Err }

// PollingError is returned after too many consecutive poll failures.
type PollingError struct {
	JobID    string
	Attempts int
	Err      error
}

func (e *PollingError) Error() string {
	return fmt.Sprintf("poll job %s: %d consecutive failures: %v", e.JobID, e.Attempts, e.Err)
}

func (e *PollingError) Unwrap() error { return e.Err }

// ProviderFailure is a terminal failure reported by the provider.
type ProviderFailure struct {
	Reason  string
	Blocked bool
}

func (e *ProviderFailure) Error() string {
	if e.Reason == "" {
		return "provider reported failure"
	}
	return "provider reported failure: " + e.Reason
}

// failureReason returns a short machine-friendly reason for a terminal error.
func failureReason(err error) string {
	var (
		subErr  *SubmissionError
		pollErr *PollingError
		provErr *ProviderFailure
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrEmptyResult):
		return "empty result"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.As(err, &provErr):
		if provErr.Blocked {
			return "blocked"
		}
		return "provider"
	case errors.As(err, &subErr):
		return "submission"
	case errors.As(err, &pollErr):
		return "polling"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "error"
	}
}
