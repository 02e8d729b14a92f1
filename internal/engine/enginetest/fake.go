// Package enginetest provides an in-memory engine for exercising the engine and
// monitoring packages without a daemon.
package enginetest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/docker/docker/api/types"
	containertypes "github.com/docker/docker/api/types/container"
	eventtypes "github.com/docker/docker/api/types/events"
	imagetypes "github.com/docker/docker/api/types/image"
	networktypes "github.com/docker/docker/api/types/network"
	systemtypes "github.com/docker/docker/api/types/system"
	volumetypes "github.com/docker/docker/api/types/volume"
)

// ErrEngineDown is returned by every call while the engine is marked down.
var ErrEngineDown = errors.New("fake engine: connection refused")

// Engine is a stateful fake satisfying engine.Client. Resources are returned in
// insertion order. Zero value is not usable; call New.
type Engine struct {
	host string

	mu         sync.Mutex
	containers []containertypes.Summary
	images     []imagetypes.Summary
	volumes    []*volumetypes.Volume
	networks   []networktypes.Summary
	info       systemtypes.Info
	down       bool
	listErr    error
	listDelay  time.Duration
	subs       []*subscription

	pingCalls   atomic.Int64
	listCalls   atomic.Int64
	eventsCalls atomic.Int64
	closeCalls  atomic.Int64
}

type subscription struct {
	msgs chan eventtypes.Message
	errs chan error

	mu     sync.Mutex
	closed bool
}

func (s *subscription) sendErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.errs <- err:
	default:
	}
}

func (s *subscription) end(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if err != nil {
		select {
		case s.errs <- err:
		default:
		}
	}
	s.closed = true
	close(s.errs)
}

// New returns an engine reachable at host.
func New(host string) *Engine {
	return &Engine{
		host: host,
		info: systemtypes.Info{Name: "fake", ServerVersion: "28.5.2", OperatingSystem: "FakeOS"},
	}
}

// AddContainer appends a container.
func (e *Engine) AddContainer(id, name, state string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.containers = append(e.containers, containertypes.Summary{
		ID:     id,
		Names:  []string{"/" + name},
		Image:  "alpine:3",
		State:  containertypes.ContainerState(state),
		Status: state,
	})
}

// SetContainerState changes the lifecycle state of id. It reports whether id exists.
func (e *Engine) SetContainerState(id, state string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.containers {
		if e.containers[i].ID == id {
			e.containers[i].State = containertypes.ContainerState(state)
			e.containers[i].Status = state
			return true
		}
	}
	return false
}

// RemoveContainer deletes id.
func (e *Engine) RemoveContainer(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	kept := e.containers[:0]
	for _, c := range e.containers {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	e.containers = kept
}

// AddImage appends an image.
func (e *Engine) AddImage(id string, tags ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.images = append(e.images, imagetypes.Summary{ID: id, RepoTags: tags, Size: 1024})
}

// AddVolume appends a volume.
func (e *Engine) AddVolume(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.volumes = append(e.volumes, &volumetypes.Volume{Name: name, Driver: "local"})
}

// AddNetwork appends a network.
func (e *Engine) AddNetwork(id, name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.networks = append(e.networks, networktypes.Summary{ID: id, Name: name, Driver: "bridge"})
}

// SetDown makes every call fail with ErrEngineDown.
func (e *Engine) SetDown(down bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.down = down
}

// SetListError makes the listing calls fail with err while Ping keeps working.
func (e *Engine) SetListError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listErr = err
}

// SetListDelay slows every listing call down.
func (e *Engine) SetListDelay(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listDelay = d
}

// SetInfo replaces the daemon summary.
func (e *Engine) SetInfo(info systemtypes.Info) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.info = info
}

func (e *Engine) listGate(ctx context.Context) error {
	e.listCalls.Add(1)
	e.mu.Lock()
	down, listErr, delay := e.down, e.listErr, e.listDelay
	e.mu.Unlock()
	if down {
		return ErrEngineDown
	}
	if listErr != nil {
		return listErr
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (e *Engine) Ping(ctx context.Context) (types.Ping, error) {
	e.pingCalls.Add(1)
	if err := ctx.Err(); err != nil {
		return types.Ping{}, err
	}
	e.mu.Lock()
	down := e.down
	e.mu.Unlock()
	if down {
		return types.Ping{}, ErrEngineDown
	}
	return types.Ping{APIVersion: "1.51", OSType: "linux"}, nil
}

func (e *Engine) Info(ctx context.Context) (systemtypes.Info, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.down {
		return systemtypes.Info{}, ErrEngineDown
	}
	info := e.info
	info.Containers = len(e.containers)
	info.Images = len(e.images)
	return info, nil
}

func (e *Engine) ContainerList(ctx context.Context, _ containertypes.ListOptions) ([]containertypes.Summary, error) {
	if err := e.listGate(ctx); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]containertypes.Summary(nil), e.containers...), nil
}

func (e *Engine) ImageList(ctx context.Context, _ imagetypes.ListOptions) ([]imagetypes.Summary, error) {
	if err := e.listGate(ctx); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]imagetypes.Summary(nil), e.images...), nil
}

func (e *Engine) VolumeList(ctx context.Context, _ volumetypes.ListOptions) (volumetypes.ListResponse, error) {
	if err := e.listGate(ctx); err != nil {
		return volumetypes.ListResponse{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return volumetypes.ListResponse{Volumes: append([]*volumetypes.Volume(nil), e.volumes...)}, nil
}

func (e *Engine) NetworkList(ctx context.Context, _ networktypes.ListOptions) ([]networktypes.Summary, error) {
	if err := e.listGate(ctx); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]networktypes.Summary(nil), e.networks...), nil
}

// Events mirrors the daemon client's contract: messages are never closed, the
// error channel receives at most the terminating error and is then closed.
// Unlike the real client, FailStream can deliver transient errors without
// ending the stream.
func (e *Engine) Events(ctx context.Context, _ eventtypes.ListOptions) (<-chan eventtypes.Message, <-chan error) {
	e.eventsCalls.Add(1)
	sub := &subscription{
		msgs: make(chan eventtypes.Message),
		errs: make(chan error, 8),
	}

	e.mu.Lock()
	down := e.down
	if !down {
		e.subs = append(e.subs, sub)
	}
	e.mu.Unlock()

	if down {
		sub.end(ErrEngineDown)
		return sub.msgs, sub.errs
	}

	go func() {
		<-ctx.Done()
		e.removeSub(sub)
		sub.end(ctx.Err())
	}()
	return sub.msgs, sub.errs
}

func (e *Engine) removeSub(target *subscription) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, sub := range e.subs {
		if sub == target {
			e.subs = append(e.subs[:i], e.subs[i+1:]...)
			return
		}
	}
}

func (e *Engine) snapshotSubs() []*subscription {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*subscription(nil), e.subs...)
}

// Emit delivers msg to every open subscription, waiting up to timeout for each
// reader. It returns the number of deliveries.
func (e *Engine) Emit(msg eventtypes.Message, timeout time.Duration) int {
	delivered := 0
	for _, sub := range e.snapshotSubs() {
		timer := time.NewTimer(timeout)
		select {
		case sub.msgs <- msg:
			delivered++
		case <-timer.C:
		}
		timer.Stop()
	}
	return delivered
}

// EmitContainerEvent is a convenience wrapper around Emit.
func (e *Engine) EmitContainerEvent(id string, action eventtypes.Action, timeout time.Duration) int {
	return e.Emit(eventtypes.Message{
		Type:     eventtypes.ContainerEventType,
		Action:   action,
		Actor:    eventtypes.Actor{ID: id},
		Scope:    "local",
		Time:     time.Now().Unix(),
		TimeNano: time.Now().UnixNano(),
	}, timeout)
}

// FailStream sends a transient error to every open subscription.
func (e *Engine) FailStream(err error) {
	for _, sub := range e.snapshotSubs() {
		sub.sendErr(err)
	}
}

// EndStreams terminates every open subscription the way a daemon restart would.
func (e *Engine) EndStreams(err error) {
	e.mu.Lock()
	subs := e.subs
	e.subs = nil
	e.mu.Unlock()
	for _, sub := range subs {
		sub.end(err)
	}
}

// WaitForSubscribers blocks until at least n subscriptions are open or timeout passes.
func (e *Engine) WaitForSubscribers(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if len(e.snapshotSubs()) >= n {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (e *Engine) DaemonHost() string { return e.host }

func (e *Engine) Close() error {
	e.closeCalls.Add(1)
	return nil
}

// PingCalls reports how many probes were issued.
func (e *Engine) PingCalls() int64 { return e.pingCalls.Load() }

// ListCalls reports how many listing calls were issued.
func (e *Engine) ListCalls() int64 { return e.listCalls.Load() }

// EventsCalls reports how many event streams were opened.
func (e *Engine) EventsCalls() int64 { return e.eventsCalls.Load() }

// CloseCalls reports how many times Close was called.
func (e *Engine) CloseCalls() int64 { return e.closeCalls.Load() }
