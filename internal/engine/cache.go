package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/rcourtman/harborview/internal/models"
)

// ErrCacheClosed is returned by Acquire after Close.
var ErrCacheClosed = errors.New("engine cache closed")

// CacheState is the slot's position in its lifecycle.
type CacheState int32

const (
	CacheEmpty CacheState = iota
	CacheAcquiring
	CacheReady
)

func (s CacheState) String() string {
	switch s {
	case CacheEmpty:
		return "empty"
	case CacheAcquiring:
		return "acquiring"
	case CacheReady:
		return "ready"
	default:
		return "invalid"
	}
}

// CacheConfig tunes liveness checks.
type CacheConfig struct {
	// RevalidateInterval forces a re-probe of a Ready handle whose last
	// successful check is older than this. Zero trusts the status alone.
	RevalidateInterval time.Duration
	ProbeTimeout       time.Duration
}

// Cache owns at most one live engine handle and hands out clones of it.
type Cache struct {
	connector Connector
	cfg       CacheConfig
	logger    zerolog.Logger

	// sem is the exclusive section for every slot transition. Unlike a mutex,
	// waiters can give up through their context.
	sem   *semaphore.Weighted
	state atomic.Int32

	mu            sync.RWMutex
	handle        *Handle
	status        models.EngineStatus
	lastValidated time.Time
	closed        bool
}

// NewCache returns an empty cache backed by connector.
func NewCache(connector Connector, cfg CacheConfig, logger zerolog.Logger) *Cache {
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	return &Cache{
		connector: connector,
		cfg:       cfg,
		logger:    logger.With().Str("component", "engine-cache").Logger(),
		sem:       semaphore.NewWeighted(1),
		status:    models.UnknownStatus(),
	}
}

// Acquire returns a clone of the cached handle, replacing it first when it is
// missing or no longer running. The caller owns the clone and should Release it.
// On failure the handle is nil and the status says whether tooling is installed.
func (c *Cache) Acquire(ctx context.Context) (*Handle, models.EngineStatus, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, c.Status(), err
	}
	defer c.sem.Release(1)

	c.mu.RLock()
	handle, status, lastValidated, closed := c.handle, c.status, c.lastValidated, c.closed
	c.mu.RUnlock()

	if closed {
		return nil, status, ErrCacheClosed
	}

	if handle != nil {
		if status.IsRunning() && c.validate(ctx, handle, lastValidated) {
			return handle.Clone(), status, nil
		}
		c.logger.Info().
			Str("endpoint", handle.Endpoint()).
			Str("status", status.String()).
			Msg("Replacing stale engine handle")
		c.state.Store(int32(CacheAcquiring))
		c.mu.Lock()
		c.handle = nil
		c.mu.Unlock()
		if err := handle.Release(); err != nil {
			c.logger.Debug().Err(err).Msg("Error closing stale engine client")
		}
	}

	c.state.Store(int32(CacheAcquiring))
	conn, err := c.connector.Connect(ctx)
	if err != nil {
		failed := c.failureStatus()
		c.mu.Lock()
		c.status = failed
		c.lastValidated = time.Time{}
		c.mu.Unlock()
		c.state.Store(int32(CacheEmpty))
		return nil, failed, err
	}

	fresh := NewHandle(conn.Client, conn.Endpoint)
	running := models.RunningStatus(conn.Info)
	c.mu.Lock()
	c.handle = fresh
	c.status = running
	c.lastValidated = nowFn()
	c.mu.Unlock()
	c.state.Store(int32(CacheReady))

	c.logger.Debug().Str("endpoint", conn.Endpoint).Str("kind", string(conn.Info.Kind)).Msg("Engine handle acquired")
	return fresh.Clone(), running, nil
}

// validate re-probes the handle when its last check is older than the
// revalidation interval.
func (c *Cache) validate(ctx context.Context, handle *Handle, lastValidated time.Time) bool {
	if c.cfg.RevalidateInterval <= 0 || nowFn().Sub(lastValidated) < c.cfg.RevalidateInterval {
		return true
	}

	probeCtx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
	defer cancel()
	if _, err := handle.Client().Ping(probeCtx); err != nil {
		c.logger.Debug().Err(err).Str("endpoint", handle.Endpoint()).Msg("Engine revalidation probe failed")
		return false
	}

	c.mu.Lock()
	c.lastValidated = nowFn()
	c.mu.Unlock()
	return true
}

func (c *Cache) failureStatus() models.EngineStatus {
	if detector, ok := c.connector.(InstallDetector); ok {
		if path, installed := detector.Installed(); installed {
			return models.InstalledStatus(installedInfo(path))
		}
	}
	return models.UnknownStatus()
}

// Release drops a reference obtained from Acquire.
func (c *Cache) Release(handle *Handle) {
	if err := handle.Release(); err != nil {
		c.logger.Debug().Err(err).Msg("Error closing engine client")
	}
}

// MarkUnavailable demotes the cached status to Unknown so the next Acquire
// replaces the handle. Consumers call it after engine-level failures.
func (c *Cache) MarkUnavailable(reason error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handle == nil || !c.status.IsRunning() {
		return
	}
	c.logger.Warn().Err(reason).Str("endpoint", c.handle.Endpoint()).Msg("Marking engine unavailable")
	c.status = models.UnknownStatus()
}

// Status is the last known engine status.
func (c *Cache) Status() models.EngineStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// State is the slot's lifecycle position.
func (c *Cache) State() CacheState {
	return CacheState(c.state.Load())
}

// Close drops the slot's reference and refuses further acquisitions. It waits
// for an in-flight acquisition to finish.
func (c *Cache) Close() error {
	if err := c.sem.Acquire(context.Background(), 1); err != nil {
		return err
	}
	defer c.sem.Release(1)

	c.mu.Lock()
	handle := c.handle
	c.handle = nil
	c.closed = true
	c.status = models.UnknownStatus()
	c.mu.Unlock()
	c.state.Store(int32(CacheEmpty))

	if handle != nil {
		return handle.Release()
	}
	return nil
}
