package monitoring

import (
	"sync"

	"github.com/google/uuid"

	"github.com/rcourtman/harborview/internal/models"
)

// StateUpdatedEvent is the name of the notification carrying a new snapshot.
const StateUpdatedEvent = "engine-state-updated"

// Broadcaster delivers a named snapshot notification to subscribers.
type Broadcaster interface {
	Broadcast(event string, state models.EngineState)
}

// BroadcasterFunc adapts a function to Broadcaster.
type BroadcasterFunc func(event string, state models.EngineState)

func (f BroadcasterFunc) Broadcast(event string, state models.EngineState) {
	f(event, state)
}

// Update is one notification as seen by a Fanout subscriber.
type Update struct {
	Event string
	State models.EngineState
}

// Fanout forwards every broadcast to registered sinks and channel subscribers.
// Subscribers that fall behind lose their oldest pending update; only the
// latest state matters.
type Fanout struct {
	mu          sync.RWMutex
	sinks       []Broadcaster
	subscribers map[string]chan Update
}

// NewFanout returns a fanout forwarding to sinks.
func NewFanout(sinks ...Broadcaster) *Fanout {
	return &Fanout{
		sinks:       sinks,
		subscribers: make(map[string]chan Update),
	}
}

// AddSink registers another downstream broadcaster.
func (f *Fanout) AddSink(sink Broadcaster) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks = append(f.sinks, sink)
}

// Subscribe returns a subscription id and its channel.
func (f *Fanout) Subscribe(buffer int) (string, <-chan Update) {
	if buffer < 1 {
		buffer = 1
	}
	id := uuid.NewString()
	ch := make(chan Update, buffer)

	f.mu.Lock()
	f.subscribers[id] = ch
	f.mu.Unlock()
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (f *Fanout) Unsubscribe(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok := f.subscribers[id]; ok {
		close(ch)
		delete(f.subscribers, id)
	}
}

// Subscribers is the number of channel subscribers.
func (f *Fanout) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subscribers)
}

func (f *Fanout) Broadcast(event string, state models.EngineState) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, sink := range f.sinks {
		sink.Broadcast(event, state)
	}

	update := Update{Event: event, State: state}
	for _, ch := range f.subscribers {
		select {
		case ch <- update:
			continue
		default:
		}
		// Full: drop the oldest pending update and retry once.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- update:
		default:
		}
	}
}
