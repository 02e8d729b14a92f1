// Package monitoring keeps a mirror of the engine's state current and
// broadcasts a snapshot whenever it changes.
package monitoring

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rcourtman/harborview/internal/engine"
	"github.com/rcourtman/harborview/internal/logging"
	"github.com/rcourtman/harborview/internal/models"
)

const (
	DefaultPollInterval      = 5 * time.Second
	DefaultFirstEventTimeout = 10 * time.Second
	DefaultBaselineTimeout   = 5 * time.Second
	DefaultMaxEventFailures  = 5
)

// HandleSource is the monitor's view of the engine handle cache.
type HandleSource interface {
	Acquire(ctx context.Context) (*engine.Handle, models.EngineStatus, error)
	Release(handle *engine.Handle)
	MarkUnavailable(reason error)
}

// StateFetcher captures one snapshot from a handle.
type StateFetcher interface {
	Fetch(ctx context.Context, handle *engine.Handle, status models.EngineStatus) (models.EngineState, error)
}

// Config tunes the synchronization loop. Zero values take the defaults.
type Config struct {
	PollInterval       time.Duration
	FirstEventTimeout  time.Duration
	BaselineTimeout    time.Duration
	MaxEventFailures   int
	BackoffBase        time.Duration
	BackoffMaxExponent int
	// BackoffJitter spreads respawn delays by up to this fraction; zero disables it.
	BackoffJitter      float64
	SessionCapacity    int
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.FirstEventTimeout <= 0 {
		c.FirstEventTimeout = DefaultFirstEventTimeout
	}
	if c.BaselineTimeout <= 0 {
		c.BaselineTimeout = DefaultBaselineTimeout
	}
	if c.MaxEventFailures <= 0 {
		c.MaxEventFailures = DefaultMaxEventFailures
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = defaultRespawnBase
	}
	if c.BackoffMaxExponent <= 0 {
		c.BackoffMaxExponent = defaultBackoffMaxExponent
	}
	if c.BackoffJitter < 0 {
		c.BackoffJitter = 0
	} else if c.BackoffJitter > 1 {
		c.BackoffJitter = 1
	}
	return c
}

// RunState is the monitor's lifecycle position.
type RunState string

const (
	StateStopped  RunState = "stopped"
	StateStarting RunState = "starting"
	StateRunning  RunState = "running"
)

// Monitor combines the engine event stream with periodic polling and
// broadcasts a snapshot whenever HasChanged says so.
type Monitor struct {
	cache       HandleSource
	fetcher     StateFetcher
	broadcaster Broadcaster
	cfg         Config
	logger      zerolog.Logger
	metrics     *Metrics
	freshness   *freshnessTracker

	// lifecycleMu serializes Start and Stop.
	lifecycleMu sync.Mutex
	cancel      context.CancelFunc
	done        chan struct{}
	session     *logging.Session

	activeMu sync.RWMutex
	runState RunState

	stateMu sync.RWMutex
	last    *models.EngineState

	// cycleMu serializes fetch+detect+broadcast cycles and guards counter.
	cycleMu sync.Mutex
	counter uint64
}

// New builds a stopped monitor.
func New(cache HandleSource, fetcher StateFetcher, broadcaster Broadcaster, cfg Config, logger zerolog.Logger) *Monitor {
	if broadcaster == nil {
		broadcaster = NewFanout()
	}
	cfg = cfg.withDefaults()
	return &Monitor{
		cache:       cache,
		fetcher:     fetcher,
		broadcaster: broadcaster,
		cfg:         cfg,
		logger:      logger.With().Str("component", "engine-monitor").Logger(),
		metrics:     getMetrics(),
		freshness:   newFreshnessTracker(12 * cfg.PollInterval),
		runState:    StateStopped,
	}
}

// Start begins monitoring. It emits a baseline snapshot before returning and
// then keeps the mirror current in the background. Calling Start while running
// is a no-op that returns the existing session.
func (m *Monitor) Start(ctx context.Context) (*logging.Session, error) {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	if m.State() == StateRunning {
		return m.session, nil
	}
	m.setRunState(StateStarting)

	session := logging.NewSession(m.cfg.SessionCapacity)
	logger := logging.NewSessionLogger(session).With().Str("component", "engine-monitor").Logger()
	logger.Info().
		Dur("pollInterval", m.cfg.PollInterval).
		Dur("firstEventTimeout", m.cfg.FirstEventTimeout).
		Msg("Starting engine monitor")

	baselineCtx, cancelBaseline := context.WithTimeout(ctx, m.cfg.BaselineTimeout)
	if err := m.cycle(baselineCtx, logger, true); err != nil {
		logger.Warn().Err(err).Msg("Baseline snapshot degraded")
	}
	cancelBaseline()

	if err := ctx.Err(); err != nil {
		m.setRunState(StateStopped)
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done
	m.session = session
	m.setRunState(StateRunning)

	go m.supervise(runCtx, logger, done)
	return session, nil
}

// Stop clears the active flag, cancels the background work and waits for it
// to exit or for ctx to expire.
func (m *Monitor) Stop(ctx context.Context) error {
	m.lifecycleMu.Lock()
	if m.State() != StateRunning {
		m.lifecycleMu.Unlock()
		return nil
	}
	m.setRunState(StateStopped)
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.lifecycleMu.Unlock()

	cancel()
	select {
	case <-done:
		m.logger.Info().Msg("Engine monitor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsActive reports whether the monitor is running.
func (m *Monitor) IsActive() bool {
	return m.State() == StateRunning
}

// State is the monitor's lifecycle position.
func (m *Monitor) State() RunState {
	m.activeMu.RLock()
	defer m.activeMu.RUnlock()
	return m.runState
}

func (m *Monitor) setRunState(state RunState) {
	m.activeMu.Lock()
	m.runState = state
	m.activeMu.Unlock()
}

// Session is the log session of the current run, or nil when stopped.
func (m *Monitor) Session() *logging.Session {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()
	if m.State() != StateRunning {
		return nil
	}
	return m.session
}

// LastState returns the last broadcast snapshot. It survives Stop.
func (m *Monitor) LastState() (models.EngineState, bool) {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	if m.last == nil {
		return models.EngineState{}, false
	}
	return *m.last, true
}

// ClearLastState forgets the last snapshot so the next cycle broadcasts unconditionally.
func (m *Monitor) ClearLastState() {
	m.stateMu.Lock()
	m.last = nil
	m.stateMu.Unlock()
}

func (m *Monitor) lastStatePtr() *models.EngineState {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.last
}

func (m *Monitor) setLastState(state models.EngineState) {
	m.stateMu.Lock()
	m.last = &state
	m.stateMu.Unlock()
}

// Freshness reports when the mirror last synchronized with the engine.
func (m *Monitor) Freshness() Freshness {
	return m.freshness.snapshot(nowFn())
}

// Refresh runs one cycle in the foreground. Acquisition and fetch errors are
// returned to the caller; a status-only snapshot may still have been broadcast.
func (m *Monitor) Refresh(ctx context.Context) (models.EngineState, error) {
	err := m.cycle(ctx, m.logger, false)
	state, _ := m.LastState()
	return state, err
}

// supervise runs the polling tick and keeps the event task alive until ctx is cancelled.
func (m *Monitor) supervise(ctx context.Context, logger zerolog.Logger, done chan struct{}) {
	defer close(done)

	ticker := newTickerFn(m.cfg.PollInterval)
	defer ticker.Stop()

	backoff := respawnBackoff(m.cfg.BackoffBase, m.cfg.BackoffMaxExponent, m.cfg.BackoffJitter)
	consecutive := 0

	eventDone := m.spawnEventTask(ctx, logger)
	var respawnTimer *time.Timer
	var respawn <-chan time.Time

	defer func() {
		if respawnTimer != nil {
			respawnTimer.Stop()
		}
		if eventDone != nil {
			<-eventDone
		}
		logger.Info().Msg("Engine monitor loop exited")
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			if !m.IsActive() {
				return
			}
			if err := m.cycle(ctx, logger, false); err != nil && ctx.Err() == nil {
				logger.Debug().Err(err).Msg("Polling cycle failed")
			}

		case result := <-eventDone:
			eventDone = nil
			if ctx.Err() != nil {
				return
			}
			if result.processed > 0 {
				consecutive = 0
			}
			consecutive++
			delay := respawnDelay(backoff, consecutive, jitterFn())
			m.metrics.respawns.Inc()
			logger.Warn().
				Err(result.err).
				Int("processed", result.processed).
				Int("consecutive", consecutive).
				Dur("delay", delay).
				Msg("Engine event task terminated; scheduling respawn")
			respawnTimer = respawnTimerFn(delay)
			respawn = respawnTimer.C

		case <-respawn:
			respawn = nil
			respawnTimer = nil
			if !m.IsActive() {
				return
			}
			eventDone = m.spawnEventTask(ctx, logger)
		}
	}
}

// cycle acquires a handle, fetches a snapshot and broadcasts it when it
// differs from the last one. force broadcasts regardless and relaxes the
// fetch failure rule to a status-only snapshot; the baseline uses it.
func (m *Monitor) cycle(ctx context.Context, logger zerolog.Logger, force bool) error {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()

	started := time.Now()
	var (
		next     models.EngineState
		cycleErr error
	)

	handle, status, err := m.cache.Acquire(ctx)
	if err != nil {
		if ctx.Err() != nil && !force {
			return err
		}
		logger.Debug().Err(err).Str("status", status.String()).Msg("Engine handle unavailable")
		m.metrics.observeCycle("acquire_error", started)
		m.metrics.setEngineUp(false)
		m.freshness.recordError(nowFn(), err)
		next = models.StatusOnlyState(status, nowFn())
		cycleErr = err
	} else {
		state, fetchErr := m.fetcher.Fetch(ctx, handle, status)
		m.cache.Release(handle)
		if fetchErr != nil {
			m.metrics.observeCycle("fetch_error", started)
			m.freshness.recordError(nowFn(), fetchErr)
			if ctx.Err() == nil {
				m.cache.MarkUnavailable(fetchErr)
			}
			if !force {
				logger.Warn().Err(fetchErr).Msg("Snapshot fetch failed; keeping last state")
				return fetchErr
			}
			next = models.StatusOnlyState(status, nowFn())
			cycleErr = fetchErr
		} else {
			m.metrics.setEngineUp(status.IsRunning())
			next = state
		}
	}

	changed := force || HasChanged(m.lastStatePtr(), next)
	if cycleErr == nil {
		m.freshness.recordSuccess(nowFn(), changed)
	}
	if !changed {
		if cycleErr == nil {
			m.metrics.observeCycle("unchanged", started)
		}
		return cycleErr
	}

	m.counter++
	stamped := next.WithCounter(m.counter)
	m.setLastState(stamped)
	m.broadcaster.Broadcast(StateUpdatedEvent, stamped)

	if cycleErr == nil {
		m.metrics.observeCycle("broadcast", started)
	}
	m.metrics.observeBroadcast(stamped.UpdateCounter, stamped.CapturedAt)
	logger.Debug().
		Uint64("updateCounter", stamped.UpdateCounter).
		Int("containers", len(stamped.Containers)).
		Int("images", len(stamped.Images)).
		Int("volumes", len(stamped.Volumes)).
		Int("networks", len(stamped.Networks)).
		Str("status", stamped.EngineStatus.String()).
		Msg("Broadcast engine state")
	return cycleErr
}
