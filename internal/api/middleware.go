package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rcourtman/harborview/internal/engine"
	internalerrors "github.com/rcourtman/harborview/internal/errors"
	"github.com/rcourtman/harborview/internal/logging"
)

// APIError is the JSON body of every failed request.
type APIError struct {
	ErrorMessage string            `json:"error"`
	Code         string            `json:"code,omitempty"`
	ErrorType    string            `json:"error_type,omitempty"`
	StatusCode   int               `json:"status_code"`
	Timestamp    int64             `json:"timestamp"`
	RequestID    string            `json:"request_id,omitempty"`
	Details      map[string]string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return e.ErrorMessage
}

// engineFailure is how one class of engine error is reported to HTTP callers.
type engineFailure struct {
	status  int
	code    string
	message string
}

var engineFailures = map[internalerrors.ErrorType]engineFailure{
	internalerrors.ErrorTypeConnection:   {http.StatusServiceUnavailable, "engine_unreachable", "Container engine is not reachable"},
	internalerrors.ErrorTypeProbeTimeout: {http.StatusServiceUnavailable, "engine_probe_timeout", "Container engine did not answer the probe in time"},
	internalerrors.ErrorTypeFetch:        {http.StatusBadGateway, "fetch_failed", "Failed to read engine state"},
	internalerrors.ErrorTypeStream:       {http.StatusBadGateway, "event_stream_failed", "Engine event stream failed"},
	internalerrors.ErrorTypeExhaustion:   {http.StatusServiceUnavailable, "event_stream_exhausted", "Engine event stream gave up"},
}

var (
	failureShuttingDown = engineFailure{http.StatusServiceUnavailable, "shutting_down", "Server is shutting down"}
	failureTimeout      = engineFailure{http.StatusGatewayTimeout, "timeout", "Engine request did not finish"}
	failureInternal     = engineFailure{http.StatusInternalServerError, "internal_error", "Engine request failed"}
)

// classifyEngineError maps an acquisition or synchronization failure to its
// HTTP status and code. The returned type is empty for untyped errors.
func classifyEngineError(err error) (engineFailure, internalerrors.ErrorType) {
	if errors.Is(err, engine.ErrCacheClosed) {
		return failureShuttingDown, ""
	}
	var engErr *internalerrors.EngineError
	if errors.As(err, &engErr) {
		if failure, ok := engineFailures[engErr.Type]; ok {
			return failure, engErr.Type
		}
	}
	switch {
	case errors.Is(err, internalerrors.ErrNoReachableEndpoint):
		return engineFailures[internalerrors.ErrorTypeConnection], internalerrors.ErrorTypeConnection
	case errors.Is(err, internalerrors.ErrProbeTimeout):
		return engineFailures[internalerrors.ErrorTypeProbeTimeout], internalerrors.ErrorTypeProbeTimeout
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return failureTimeout, ""
	}
	return failureInternal, ""
}

// writeEngineError reports an engine failure with its operation and endpoint
// in the details and counts it against the request's route.
func writeEngineError(w http.ResponseWriter, r *http.Request, err error, details map[string]string) {
	failure, errType := classifyEngineError(err)

	merged := make(map[string]string, len(details)+2)
	for k, v := range details {
		merged[k] = v
	}
	var engErr *internalerrors.EngineError
	if errors.As(err, &engErr) {
		if engErr.Op != "" {
			merged["op"] = engErr.Op
		}
		if engErr.Endpoint != "" {
			merged["endpoint"] = engErr.Endpoint
		}
	}
	if len(merged) == 0 {
		merged = nil
	}

	route := routeFromContext(r.Context())
	recordEngineError(route, failure.code)

	event := log.Warn()
	if failure.status >= http.StatusInternalServerError && errType == "" {
		event = log.Error()
	}
	event.Err(err).
		Str("route", route).
		Str("code", failure.code).
		Str("request_id", logging.RequestIDFromContext(r.Context())).
		Msg("Engine request failed")

	writeError(w, r, APIError{
		ErrorMessage: failure.message,
		Code:         failure.code,
		ErrorType:    string(errType),
		StatusCode:   failure.status,
		Details:      merged,
	})
}

type routeKey struct{}

func routeFromContext(ctx context.Context) string {
	if route, ok := ctx.Value(routeKey{}).(string); ok {
		return route
	}
	return unmatchedRoute
}

// ErrorHandler tags each request with an ID and its route label, records HTTP
// metrics and turns handler panics into a JSON 500.
func ErrorHandler(next http.Handler, routeOf func(*http.Request) string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" {
			r.URL.Path = "/"
		}

		// The hub hijacks the connection.
		if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			next.ServeHTTP(w, r)
			return
		}

		route := unmatchedRoute
		if routeOf != nil {
			route = routeOf(r)
		}
		ctx, requestID := logging.WithRequestID(r.Context(), strings.TrimSpace(r.Header.Get("X-Request-ID")))
		r = r.WithContext(context.WithValue(ctx, routeKey{}, route))

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		rw.Header().Set("X-Request-ID", requestID)
		start := time.Now()

		defer func() {
			if rec := recover(); rec != nil {
				log.Error().
					Interface("panic", rec).
					Str("route", route).
					Str("method", r.Method).
					Str("request_id", requestID).
					Bytes("stack", debug.Stack()).
					Msg("Panic recovered in API handler")
				writeErrorResponse(rw, r, http.StatusInternalServerError, "internal_error", "An unexpected error occurred", nil)
			}

			elapsed := time.Since(start)
			recordAPIRequest(r.Method, route, rw.status, elapsed)
			if rw.status >= http.StatusBadRequest {
				log.Debug().
					Str("route", route).
					Str("method", r.Method).
					Int("status", rw.status).
					Int("bytes", rw.bytes).
					Dur("duration", elapsed).
					Str("request_id", requestID).
					Msg("Request failed")
			}
		}()

		next.ServeHTTP(rw, r)
	})
}

// writeErrorResponse writes an APIError that does not come from the engine.
func writeErrorResponse(w http.ResponseWriter, r *http.Request, statusCode int, code, message string, details map[string]string) {
	writeError(w, r, APIError{
		ErrorMessage: message,
		Code:         code,
		StatusCode:   statusCode,
		Details:      details,
	})
}

func writeError(w http.ResponseWriter, r *http.Request, apiErr APIError) {
	apiErr.Timestamp = time.Now().Unix()
	if r != nil {
		apiErr.RequestID = logging.RequestIDFromContext(r.Context())
	}
	writeJSON(w, apiErr.StatusCode, apiErr)
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, err := w.Write(append(payload, '\n')); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

// responseWriter records the status and body size a handler produced.
type responseWriter struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.status = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += n
	return n, err
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}

func (rw *responseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
