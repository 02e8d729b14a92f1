package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/rcourtman/harborview/internal/engine"
	"github.com/rcourtman/harborview/internal/logging"
	"github.com/rcourtman/harborview/internal/models"
	"github.com/rcourtman/harborview/internal/monitoring"
)

// MonitorController is the slice of the engine monitor the API drives.
type MonitorController interface {
	Start(ctx context.Context) (*logging.Session, error)
	Stop(ctx context.Context) error
	State() monitoring.RunState
	Session() *logging.Session
	LastState() (models.EngineState, bool)
	Refresh(ctx context.Context) (models.EngineState, error)
	Freshness() monitoring.Freshness
}

// EngineProbe performs foreground engine acquisition.
type EngineProbe interface {
	Acquire(ctx context.Context) (*engine.Handle, models.EngineStatus, error)
	Release(handle *engine.Handle)
}

// Options carries the router's collaborators.
type Options struct {
	Monitor MonitorController
	Engine  EngineProbe
	// WebSocket serves /ws; nil leaves the route unregistered.
	WebSocket http.Handler
	// Clients reports connected UI clients for /api/health.
	Clients func() int
	Version string
	// StopTimeout bounds POST /api/monitor/stop.
	StopTimeout time.Duration
}

// Router handles HTTP routing
type Router struct {
	mux     *http.ServeMux
	opts    Options
	started time.Time
}

// NewRouter creates a new router wrapped in the error middleware.
func NewRouter(opts Options) http.Handler {
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 10 * time.Second
	}
	r := &Router{
		mux:     http.NewServeMux(),
		opts:    opts,
		started: time.Now(),
	}
	r.setupRoutes()
	return ErrorHandler(r, routePattern(r.mux))
}

func (r *Router) setupRoutes() {
	r.mux.HandleFunc("/api/health", r.handleHealth)
	r.mux.HandleFunc("/api/state", r.handleState)
	r.mux.HandleFunc("/api/state/refresh", r.handleRefresh)
	r.mux.HandleFunc("/api/engine", r.handleEngine)
	r.mux.HandleFunc("/api/monitor/start", r.handleMonitorStart)
	r.mux.HandleFunc("/api/monitor/stop", r.handleMonitorStop)
	r.mux.HandleFunc("/api/monitor/logs", r.handleMonitorLogs)
	r.mux.Handle("/metrics", promhttp.Handler())
	if r.opts.WebSocket != nil {
		r.mux.Handle("/ws", r.opts.WebSocket)
	}
}

// ServeHTTP implements http.Handler
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if strings.HasPrefix(req.URL.Path, "/api/") {
		addSecurityHeaders(w)
	}

	start := time.Now()
	r.mux.ServeHTTP(w, req)
	log.Debug().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Dur("duration", time.Since(start)).
		Msg("Request handled")
}

func addSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store")
}

func requireMethod(w http.ResponseWriter, req *http.Request, method string) bool {
	if req.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	writeErrorResponse(w, req, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed", nil)
	return false
}

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	if !requireMethod(w, req, http.MethodGet) {
		return
	}

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"uptime":    time.Since(r.started).Seconds(),
		"version":   r.opts.Version,
		"monitor":   r.opts.Monitor.State(),
		"freshness": r.opts.Monitor.Freshness(),
	}
	if r.opts.Clients != nil {
		health["clients"] = r.opts.Clients()
	}
	writeJSON(w, http.StatusOK, health)
}

func (r *Router) handleState(w http.ResponseWriter, req *http.Request) {
	if !requireMethod(w, req, http.MethodGet) {
		return
	}

	state, ok := r.opts.Monitor.LastState()
	if !ok {
		writeErrorResponse(w, req, http.StatusNotFound, "no_snapshot", "No engine snapshot has been captured yet", nil)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (r *Router) handleRefresh(w http.ResponseWriter, req *http.Request) {
	if !requireMethod(w, req, http.MethodPost) {
		return
	}

	state, err := r.opts.Monitor.Refresh(req.Context())
	if err != nil {
		writeEngineError(w, req, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (r *Router) handleEngine(w http.ResponseWriter, req *http.Request) {
	if !requireMethod(w, req, http.MethodGet) {
		return
	}
	if r.opts.Engine == nil {
		writeErrorResponse(w, req, http.StatusServiceUnavailable, "engine_unavailable", "Engine probing is disabled", nil)
		return
	}

	handle, status, err := r.opts.Engine.Acquire(req.Context())
	if err != nil {
		writeEngineError(w, req, err, map[string]string{"status": status.String()})
		return
	}
	defer r.opts.Engine.Release(handle)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"endpoint": handle.Endpoint(),
		"status":   status,
	})
}

func (r *Router) handleMonitorStart(w http.ResponseWriter, req *http.Request) {
	if !requireMethod(w, req, http.MethodPost) {
		return
	}

	session, err := r.opts.Monitor.Start(req.Context())
	if err != nil {
		writeErrorResponse(w, req, http.StatusServiceUnavailable, "start_failed", "Failed to start engine monitor", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"state":   r.opts.Monitor.State(),
		"session": session.ID(),
		"started": session.Started(),
	})
}

func (r *Router) handleMonitorStop(w http.ResponseWriter, req *http.Request) {
	if !requireMethod(w, req, http.MethodPost) {
		return
	}

	ctx, cancel := context.WithTimeout(req.Context(), r.opts.StopTimeout)
	defer cancel()
	if err := r.opts.Monitor.Stop(ctx); err != nil {
		writeErrorResponse(w, req, http.StatusGatewayTimeout, "stop_timeout", "Engine monitor did not stop in time", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"state": r.opts.Monitor.State()})
}

func (r *Router) handleMonitorLogs(w http.ResponseWriter, req *http.Request) {
	if !requireMethod(w, req, http.MethodGet) {
		return
	}

	session := r.opts.Monitor.Session()
	if session == nil {
		writeErrorResponse(w, req, http.StatusNotFound, "no_session", "Engine monitor has not been started", nil)
		return
	}
	lines := session.Drain()
	if lines == nil {
		lines = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session": session.ID(),
		"lines":   lines,
		"dropped": session.Dropped(),
	})
}
