package errors

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Base error types
var (
	ErrNoReachableEndpoint = errors.New("no reachable engine endpoint")
	ErrProbeTimeout        = errors.New("engine probe timed out")
	ErrStream              = errors.New("event stream failure")
	ErrFetch               = errors.New("resource fetch failed")
	ErrExhausted           = errors.New("retry budget exhausted")
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeConnection   ErrorType = "connection"
	ErrorTypeProbeTimeout ErrorType = "probe_timeout"
	ErrorTypeStream       ErrorType = "stream"
	ErrorTypeFetch        ErrorType = "fetch"
	ErrorTypeExhaustion   ErrorType = "exhaustion"
)

// EngineError is a structured error for engine acquisition and synchronization.
type EngineError struct {
	Type      ErrorType
	Op        string // Operation that failed (e.g., "acquire", "list_containers")
	Endpoint  string // Engine endpoint if known
	Err       error  // Underlying error
	Timestamp time.Time
	Retryable bool
}

func (e *EngineError) Error() string {
	if e.Endpoint != "" {
		return fmt.Sprintf("%s failed on %s: %v", e.Op, e.Endpoint, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is interface
func (e *EngineError) Is(target error) bool {
	if target == nil {
		return false
	}

	switch target {
	case ErrNoReachableEndpoint:
		return e.Type == ErrorTypeConnection
	case ErrProbeTimeout:
		return e.Type == ErrorTypeProbeTimeout
	case ErrStream:
		return e.Type == ErrorTypeStream
	case ErrFetch:
		return e.Type == ErrorTypeFetch
	case ErrExhausted:
		return e.Type == ErrorTypeExhaustion
	}

	return errors.Is(e.Err, target)
}

// NewEngineError creates a new EngineError
func NewEngineError(errorType ErrorType, op, endpoint string, err error) *EngineError {
	return &EngineError{
		Type:      errorType,
		Op:        op,
		Endpoint:  endpoint,
		Err:       err,
		Timestamp: time.Now(),
		Retryable: isRetryable(errorType, err),
	}
}

func isRetryable(errorType ErrorType, err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	switch errorType {
	case ErrorTypeExhaustion:
		// The supervisor respawns exhausted tasks; callers should not retry inline.
		return false
	default:
		return true
	}
}

// WrapConnectionError wraps an acquisition failure.
func WrapConnectionError(op, endpoint string, err error) error {
	return NewEngineError(ErrorTypeConnection, op, endpoint, err)
}

// WrapProbeError classifies a failed liveness probe. Deadline overruns become
// probe timeouts; anything else is a connection failure.
func WrapProbeError(op, endpoint string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewEngineError(ErrorTypeProbeTimeout, op, endpoint, err)
	}
	return NewEngineError(ErrorTypeConnection, op, endpoint, err)
}

// WrapStreamError wraps an event stream read failure.
func WrapStreamError(op, endpoint string, err error) error {
	return NewEngineError(ErrorTypeStream, op, endpoint, err)
}

// WrapFetchError wraps a failed resource listing.
func WrapFetchError(op, endpoint string, err error) error {
	return NewEngineError(ErrorTypeFetch, op, endpoint, err)
}

// WrapExhaustionError reports a task that ran out of its internal retry budget.
func WrapExhaustionError(op, endpoint string, err error) error {
	return NewEngineError(ErrorTypeExhaustion, op, endpoint, err)
}

// IsRetryableError checks if an error should be retried
func IsRetryableError(err error) bool {
	var engErr *EngineError
	if errors.As(err, &engErr) {
		return engErr.Retryable
	}
	return errors.Is(err, ErrProbeTimeout) || errors.Is(err, ErrNoReachableEndpoint)
}

// IsConnectionError reports whether err means no engine endpoint could be reached.
func IsConnectionError(err error) bool {
	return errors.Is(err, ErrNoReachableEndpoint) || errors.Is(err, ErrProbeTimeout)
}
