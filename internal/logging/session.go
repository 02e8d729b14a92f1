package logging

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rcourtman/harborview/internal/buffer"
)

// DefaultSessionCapacity is the number of lines a session keeps before dropping the oldest.
const DefaultSessionCapacity = 1000

// Session collects the log lines of one long-running operation. It is owned by
// whoever started the operation and goes away with its owner.
type Session struct {
	id      string
	started time.Time
	lines   *buffer.Queue[string]
	dropped atomic.Int64
}

// NewSession returns an empty session. Non-positive capacity uses the default.
func NewSession(capacity int) *Session {
	if capacity <= 0 {
		capacity = DefaultSessionCapacity
	}
	return &Session{
		id:      uuid.NewString(),
		started: time.Now(),
		lines:   buffer.New[string](capacity),
	}
}

// ID identifies the session in log output and API responses.
func (s *Session) ID() string {
	return s.id
}

// Started is when the session was created.
func (s *Session) Started() time.Time {
	return s.started
}

// Write implements io.Writer so a session can sit behind a zerolog writer.
func (s *Session) Write(p []byte) (int, error) {
	s.Append(string(p))
	return len(p), nil
}

// Append records one line. Trailing newlines are trimmed and empty lines ignored.
func (s *Session) Append(line string) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return
	}
	if s.lines.Push(line) {
		s.dropped.Add(1)
	}
}

// Drain returns and removes every buffered line, oldest first.
func (s *Session) Drain() []string {
	return s.lines.Drain()
}

// Len is the number of buffered lines.
func (s *Session) Len() int {
	return s.lines.Len()
}

// Dropped is how many lines were discarded because the buffer was full.
func (s *Session) Dropped() int64 {
	return s.dropped.Load()
}
