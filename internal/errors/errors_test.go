package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestEngineErrorIsMatchesSentinels(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"connection", WrapConnectionError("acquire", "unix:///var/run/docker.sock", errors.New("refused")), ErrNoReachableEndpoint},
		{"probe timeout", WrapProbeError("probe", "", context.DeadlineExceeded), ErrProbeTimeout},
		{"stream", WrapStreamError("events", "", errors.New("reset")), ErrStream},
		{"fetch", WrapFetchError("list_images", "", errors.New("boom")), ErrFetch},
		{"exhaustion", WrapExhaustionError("events", "", errors.New("too many")), ErrExhausted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.sentinel) {
				t.Fatalf("expected %v to match %v", tt.err, tt.sentinel)
			}
			wrapped := fmt.Errorf("outer: %w", tt.err)
			if !errors.Is(wrapped, tt.sentinel) {
				t.Fatalf("expected wrapped error to match %v", tt.sentinel)
			}
		})
	}
}

func TestWrapProbeErrorNonTimeoutIsConnection(t *testing.T) {
	err := WrapProbeError("probe", "tcp://127.0.0.1:2375", errors.New("connection refused"))
	if errors.Is(err, ErrProbeTimeout) {
		t.Fatal("non-deadline probe failure must not be a probe timeout")
	}
	if !errors.Is(err, ErrNoReachableEndpoint) {
		t.Fatal("expected connection classification")
	}
	if !IsConnectionError(err) {
		t.Fatal("expected IsConnectionError")
	}
}

func TestEngineErrorMessage(t *testing.T) {
	err := NewEngineError(ErrorTypeFetch, "list_volumes", "unix:///run/docker.sock", errors.New("eof"))
	want := "list_volumes failed on unix:///run/docker.sock: eof"
	if err.Error() != want {
		t.Fatalf("got %q, want %q", err.Error(), want)
	}

	err = NewEngineError(ErrorTypeFetch, "list_volumes", "", errors.New("eof"))
	if err.Error() != "list_volumes failed: eof" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestIsRetryableError(t *testing.T) {
	if !IsRetryableError(WrapFetchError("fetch", "", errors.New("x"))) {
		t.Fatal("fetch errors are retryable")
	}
	if IsRetryableError(WrapExhaustionError("events", "", errors.New("x"))) {
		t.Fatal("exhaustion is handled by the supervisor, not retried inline")
	}
	if IsRetryableError(WrapConnectionError("acquire", "", context.Canceled)) {
		t.Fatal("cancelled operations are not retryable")
	}
	if IsRetryableError(errors.New("plain")) {
		t.Fatal("plain errors are not retryable")
	}
}

func TestEngineErrorUnwrap(t *testing.T) {
	root := errors.New("root cause")
	err := WrapStreamError("events", "", root)
	if !errors.Is(err, root) {
		t.Fatal("expected unwrap to reach root cause")
	}
	var engErr *EngineError
	if !errors.As(err, &engErr) || engErr.Type != ErrorTypeStream {
		t.Fatalf("expected stream EngineError, got %#v", err)
	}
}
