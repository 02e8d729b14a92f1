package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rcourtman/harborview/internal/engine/enginetest"
)

func swap[T any](t *testing.T, target *T, value T) {
	t.Helper()
	prev := *target
	*target = value
	t.Cleanup(func() {
		*target = prev
	})
}

// fakeDialer routes dialEngineFn to fake engines by host. The empty host is the
// environment default.
type fakeDialer struct {
	mu      sync.Mutex
	engines map[string]*enginetest.Engine
	dials   []string
}

func installDialer(t *testing.T, engines map[string]*enginetest.Engine) *fakeDialer {
	t.Helper()
	d := &fakeDialer{engines: engines}
	swap(t, &dialEngineFn, d.dial)
	swap(t, &getenvFn, func(string) string { return "" })
	return d
}

func (d *fakeDialer) dial(host string) (Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials = append(d.dials, host)
	engine, ok := d.engines[host]
	if !ok {
		return nil, errors.New("no such host: " + host)
	}
	return engine, nil
}

func (d *fakeDialer) dialed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.dials...)
}

type countingEnumerator struct {
	mu        sync.Mutex
	endpoints []Endpoint
	err       error
	calls     int
	installed string
}

func (e *countingEnumerator) Enumerate(context.Context) ([]Endpoint, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	return e.endpoints, e.err
}

func (e *countingEnumerator) Installed() (string, bool) {
	return e.installed, e.installed != ""
}

func (e *countingEnumerator) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func downEngine(host string) *enginetest.Engine {
	e := enginetest.New(host)
	e.SetDown(true)
	return e
}
