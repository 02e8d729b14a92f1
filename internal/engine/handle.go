package engine

import (
	"sync"
	"sync/atomic"
)

// Handle is a shareable reference to a live engine connection. Every holder owns
// exactly one reference: Clone adds one, Release drops it, and the underlying
// client is closed when the last reference goes away.
type Handle struct {
	conn     *sharedConn
	released atomic.Bool
}

type sharedConn struct {
	client   Client
	endpoint string
	refs     atomic.Int64
	once     sync.Once
	closeErr error
}

// NewHandle wraps client in a handle holding the first reference.
func NewHandle(client Client, endpoint string) *Handle {
	if endpoint == "" && client != nil {
		endpoint = client.DaemonHost()
	}
	conn := &sharedConn{client: client, endpoint: endpoint}
	conn.refs.Store(1)
	return &Handle{conn: conn}
}

// Clone returns a new reference to the same connection.
func (h *Handle) Clone() *Handle {
	h.conn.refs.Add(1)
	return &Handle{conn: h.conn}
}

// Client returns the engine client behind the handle.
func (h *Handle) Client() Client {
	return h.conn.client
}

// Endpoint is the daemon address the handle is connected to.
func (h *Handle) Endpoint() string {
	return h.conn.endpoint
}

// Release drops this holder's reference. Calling it twice on the same Handle is a no-op.
func (h *Handle) Release() error {
	if h == nil || !h.released.CompareAndSwap(false, true) {
		return nil
	}
	if h.conn.refs.Add(-1) > 0 {
		return nil
	}
	h.conn.once.Do(func() {
		if h.conn.client != nil {
			h.conn.closeErr = h.conn.client.Close()
		}
	})
	return h.conn.closeErr
}

// Refs reports the number of live references.
func (h *Handle) Refs() int64 {
	return h.conn.refs.Load()
}
