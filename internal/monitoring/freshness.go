package monitoring

import (
	"sync"
	"time"
)

const defaultMaxStale = 5 * time.Minute

// Freshness reports when the mirror last synchronized with the engine.
type Freshness struct {
	LastSuccess time.Time `json:"lastSuccess,omitzero"`
	LastError   time.Time `json:"lastError,omitzero"`
	LastChanged time.Time `json:"lastChanged,omitzero"`
	Error       string    `json:"error,omitempty"`
	// Score is 0 right after a successful cycle and grows linearly to 1 at
	// the staleness ceiling. It is 1 before the first success.
	Score float64 `json:"score"`
}

type freshnessTracker struct {
	mu       sync.RWMutex
	snap     Freshness
	maxStale time.Duration
}

func newFreshnessTracker(maxStale time.Duration) *freshnessTracker {
	if maxStale <= 0 {
		maxStale = defaultMaxStale
	}
	return &freshnessTracker{maxStale: maxStale}
}

func (t *freshnessTracker) recordSuccess(at time.Time, changed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if at.After(t.snap.LastSuccess) {
		t.snap.LastSuccess = at
	}
	if changed && at.After(t.snap.LastChanged) {
		t.snap.LastChanged = at
	}
}

func (t *freshnessTracker) recordError(at time.Time, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if at.After(t.snap.LastError) {
		t.snap.LastError = at
		if err != nil {
			t.snap.Error = err.Error()
		}
	}
}

func (t *freshnessTracker) snapshot(now time.Time) Freshness {
	t.mu.RLock()
	snap := t.snap
	t.mu.RUnlock()

	if snap.LastSuccess.IsZero() {
		snap.Score = 1
		return snap
	}
	age := now.Sub(snap.LastSuccess)
	if age <= 0 {
		return snap
	}
	snap.Score = age.Seconds() / t.maxStale.Seconds()
	if snap.Score > 1 {
		snap.Score = 1
	}
	return snap
}
