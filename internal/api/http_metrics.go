package api

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// unmatchedRoute labels requests that no registered pattern serves, so
// arbitrary paths cannot grow label cardinality.
const unmatchedRoute = "unmatched"

var (
	httpMetricsOnce sync.Once

	apiRequestDuration *prometheus.HistogramVec
	apiRequestTotal    *prometheus.CounterVec
	apiEngineErrors    *prometheus.CounterVec
)

func initHTTPMetrics() {
	apiRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "harborview",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "API request latency by route pattern. Engine-backed routes include probe and listing time.",
			// Foreground acquisition is bounded by the probe timeout, 5s by default.
			Buckets: []float64{0.005, 0.025, 0.1, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)

	apiRequestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "harborview",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "API requests by route pattern and status code.",
		},
		[]string{"method", "route", "status"},
	)

	apiEngineErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "harborview",
			Subsystem: "http",
			Name:      "engine_errors_total",
			Help:      "Engine failures surfaced to API callers, by route and error code.",
		},
		[]string{"route", "code"},
	)

	prometheus.MustRegister(apiRequestDuration, apiRequestTotal, apiEngineErrors)
}

func recordAPIRequest(method, route string, status int, elapsed time.Duration) {
	httpMetricsOnce.Do(initHTTPMetrics)
	apiRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
	apiRequestTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

func recordEngineError(route, code string) {
	httpMetricsOnce.Do(initHTTPMetrics)
	apiEngineErrors.WithLabelValues(route, code).Inc()
}

// routePattern labels a request with the mux pattern that serves it.
func routePattern(mux *http.ServeMux) func(*http.Request) string {
	return func(r *http.Request) string {
		if _, pattern := mux.Handler(r); pattern != "" {
			return pattern
		}
		return unmatchedRoute
	}
}
