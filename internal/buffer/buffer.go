package buffer

import (
	"sync"
)

// Queue is a thread-safe bounded FIFO that drops its oldest item when full.
type Queue[T any] struct {
	mu       sync.Mutex
	data     []T
	capacity int
}

// New creates a new Queue with the specified capacity.
func New[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[T]{
		data:     make([]T, 0, capacity),
		capacity: capacity,
	}
}

// Push adds an item to the queue. If the queue is full, the oldest item is
// dropped and Push reports true.
func (q *Queue[T]) Push(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	dropped := false
	if len(q.data) >= q.capacity {
		q.data = q.data[1:]
		dropped = true
	}
	q.data = append(q.data, item)
	return dropped
}

// Pop removes and returns the oldest item from the queue.
// Returns zero value and false if empty.
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.data) == 0 {
		var zero T
		return zero, false
	}

	item := q.data[0]
	q.data = q.data[1:]
	return item, true
}

// Drain removes and returns every item, oldest first. It returns nil when empty.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.data) == 0 {
		return nil
	}
	out := make([]T, len(q.data))
	copy(out, q.data)
	q.data = make([]T, 0, q.capacity)
	return out
}

// Len returns the current number of items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.data)
}

// IsEmpty returns true if the queue is empty.
func (q *Queue[T]) IsEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.data) == 0
}
