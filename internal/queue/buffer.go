// Package queue provides the unbounded FIFO used between transport read loops
// and message consumers.
//
// A slow consumer (a blocked UI handler, a database flush) never causes the
// transport to drop or reorder frames: the queue grows instead.
package queue

import (
	"sync"
)

// Queue is a thread-safe ring buffer that doubles its capacity when it
// reaches 70% occupancy. Items come out in the order they went in.
type Queue[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	ring   []T
	head   int
	tail   int
	count  int
	closed bool

	enqueued int64
	dequeued int64
	grows    int
}

// Stats is a point-in-time view of a queue.
type Stats struct {
	Len      int
	Cap      int
	Enqueued int64
	Dequeued int64
	Grows    int
	Closed   bool
}

// New creates a queue with the given initial capacity (minimum 1).
func New[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	q := &Queue[T]{ring: make([]T, capacity)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends an item. It reports false once the queue is closed.
func (q *Queue[T]) Push(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	threshold := len(q.ring) * 70 / 100
	if threshold < 1 {
		threshold = 1
	}
	if q.count+1 >= threshold {
		q.grow()
	}

	q.ring[q.tail] = item
	q.tail = (q.tail + 1) % len(q.ring)
	q.count++
	q.enqueued++

	q.cond.Signal()
	return true
}

// Pop blocks until an item is available or the queue is closed and empty.
// The boolean is false only in the latter case.
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.count == 0 {
		var zero T
		return zero, false
	}
	return q.take(), true
}

// TryPop returns the oldest item without blocking.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		var zero T
		return zero, false
	}
	return q.take(), true
}

// Drain removes up to max items (all of them when max <= 0).
func (q *Queue[T]) Drain(max int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		return nil
	}

	n := q.count
	if max > 0 && max < n {
		n = max
	}
	out := make([]T, n)
	for i := range out {
		out[i] = q.take()
	}
	return out
}

// Close stops further pushes and wakes blocked receivers. Items already
// queued can still be popped.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.cond.Broadcast()
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Cap returns the current ring capacity.
func (q *Queue[T]) Cap() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ring)
}

// Stats returns counters for monitoring.
func (q *Queue[T]) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Len:      q.count,
		Cap:      len(q.ring),
		Enqueued: q.enqueued,
		Dequeued: q.dequeued,
		Grows:    q.grows,
		Closed:   q.closed,
	}
}

// take pops the head. Caller holds q.mu and has checked count > 0.
func (q *Queue[T]) take() T {
	item := q.ring[q.head]
	var zero T
	q.ring[q.head] = zero
	q.head = (q.head + 1) % len(q.ring)
	q.count--
	q.dequeued++
	return item
}

// grow doubles the ring, unwrapping it so head is at index 0.
func (q *Queue[T]) grow() {
	ring := make([]T, len(q.ring)*2)
	if q.count > 0 {
		if q.head < q.tail {
			copy(ring, q.ring[q.head:q.tail])
		} else {
			n := copy(ring, q.ring[q.head:])
			copy(ring[n:], q.ring[:q.tail])
		}
	}
	q.ring = ring
	q.head = 0
	q.tail = q.count
	q.grows++
}
