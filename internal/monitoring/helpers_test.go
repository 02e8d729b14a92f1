package monitoring

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/rcourtman/harborview/internal/engine"
	"github.com/rcourtman/harborview/internal/engine/enginetest"
	internalerrors "github.com/rcourtman/harborview/internal/errors"
	"github.com/rcourtman/harborview/internal/models"
)

func swap[T any](t *testing.T, target *T, value T) {
	t.Helper()
	prev := *target
	*target = value
	t.Cleanup(func() {
		*target = prev
	})
}

// recorder is a Broadcaster that keeps every snapshot it receives.
type recorder struct {
	mu      sync.Mutex
	events  []string
	updates []models.EngineState
	notify  chan struct{}
}

func newRecorder() *recorder {
	return &recorder{notify: make(chan struct{}, 256)}
}

func (r *recorder) Broadcast(event string, state models.EngineState) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.updates = append(r.updates, state)
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.updates)
}

func (r *recorder) eventNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) snapshot() []models.EngineState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.EngineState(nil), r.updates...)
}

func (r *recorder) last() models.EngineState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updates[len(r.updates)-1]
}

// waitFor blocks until at least n broadcasts arrived.
func (r *recorder) waitFor(t *testing.T, n int, timeout time.Duration) {
	t.Helper()
	deadline := time.After(timeout)
	for r.count() < n {
		select {
		case <-r.notify:
		case <-deadline:
			t.Fatalf("timed out waiting for %d broadcasts, got %d", n, r.count())
		}
	}
}

func fakeConnector(e *enginetest.Engine) engine.ConnectorFunc {
	return func(ctx context.Context) (*engine.Connection, error) {
		if _, err := e.Ping(ctx); err != nil {
			return nil, internalerrors.WrapConnectionError("connect", e.DaemonHost(),
				fmt.Errorf("%w: %v", internalerrors.ErrNoReachableEndpoint, err))
		}
		return &engine.Connection{
			Client:   e,
			Endpoint: e.DaemonHost(),
			Info:     models.EngineInfo{Kind: models.EngineKindNative, Endpoint: e.DaemonHost()},
		}, nil
	}
}

type harness struct {
	engine   *enginetest.Engine
	cache    *engine.Cache
	recorder *recorder
	monitor  *Monitor
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	fake := enginetest.New("unix:///var/run/docker.sock")
	cache := engine.NewCache(fakeConnector(fake), engine.CacheConfig{}, zerolog.Nop())
	rec := newRecorder()
	m := New(cache, NewFetcher(FetcherConfig{}, zerolog.Nop()), rec, cfg, zerolog.Nop())

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Stop(ctx)
		_ = cache.Close()
	})
	return &harness{engine: fake, cache: cache, recorder: rec, monitor: m}
}

func (h *harness) seed(containers int) {
	for i := 1; i <= containers; i++ {
		h.engine.AddContainer(fmt.Sprintf("c%d", i), fmt.Sprintf("app-%d", i), "running")
	}
	h.engine.AddImage("sha256:aaa", "alpine:3")
	h.engine.AddVolume("data")
	h.engine.AddNetwork("n1", "bridge")
}

// staticSource hands out clones of one handle and never fails.
type staticSource struct {
	handle *engine.Handle
	status models.EngineStatus
}

func newStaticSource() *staticSource {
	return &staticSource{
		handle: engine.NewHandle(enginetest.New("unix:///static.sock"), ""),
		status: models.RunningStatus(models.EngineInfo{Kind: models.EngineKindNative}),
	}
}

func (s *staticSource) Acquire(context.Context) (*engine.Handle, models.EngineStatus, error) {
	return s.handle.Clone(), s.status, nil
}

func (s *staticSource) Release(h *engine.Handle) { _ = h.Release() }

func (s *staticSource) MarkUnavailable(error) {}

// scriptedFetcher returns its states in order, repeating the last one.
type scriptedFetcher struct {
	mu     sync.Mutex
	states []models.EngineState
	next   int
}

func (f *scriptedFetcher) Fetch(context.Context, *engine.Handle, models.EngineStatus) (models.EngineState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state := f.states[f.next]
	if f.next < len(f.states)-1 {
		f.next++
	}
	return state, nil
}
