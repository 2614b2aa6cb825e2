// Package queue provides the fixed-capacity FIFO that connects adjacent
// pipeline stages.
//
// A BoundedQueue is a buffered channel plus a shutdown signal. Items move
// by channel send, so a value handed to Push belongs to whichever goroutine
// later receives it from Pop. The producer must not touch it again.
//
// Two families of operations are offered:
//
//	Push / Pop        block until space (or an item) is available, or until Shutdown
//	TryPush / TryPop  never block; report whether the operation happened
//
// Shutdown wakes every blocked caller. Items already queued remain
// poppable after Shutdown so a consumer can drain them; once the queue is
// both shut down and empty, Pop returns the zero value and false.
package queue

import "sync"

// BoundedQueue is a concurrent FIFO with a fixed capacity.
// All methods are safe for concurrent use.
type BoundedQueue[T any] struct {
	items chan T

	done     chan struct{}
	doneOnce sync.Once
}

// New creates a queue holding at most capacity items.
// Capacities below 1 are raised to 1.
func New[T any](capacity int) *BoundedQueue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &BoundedQueue[T]{
		items: make(chan T, capacity),
		done:  make(chan struct{}),
	}
}

// Push blocks until the item is enqueued or the queue is shut down.
// Returns false, without enqueuing, if the queue was shut down.
func (q *BoundedQueue[T]) Push(item T) bool {
	// Checked first so a shut-down queue never accepts an item even when
	// it also has free space.
	select {
	case <-q.done:
		return false
	default:
	}

	select {
	case q.items <- item:
		return true
	case <-q.done:
		return false
	}
}

// TryPush enqueues the item only if there is space right now.
// Returns false when the queue is full or shut down.
func (q *BoundedQueue[T]) TryPush(item T) bool {
	select {
	case <-q.done:
		return false
	default:
	}

	select {
	case q.items <- item:
		return true
	default:
		return false
	}
}

// Pop blocks until an item is available. After Shutdown it keeps returning
// queued items until the queue is empty, then returns the zero value and
// false.
func (q *BoundedQueue[T]) Pop() (T, bool) {
	select {
	case item := <-q.items:
		return item, true
	case <-q.done:
		return q.TryPop()
	}
}

// TryPop returns the head item if one is queued.
func (q *BoundedQueue[T]) TryPop() (T, bool) {
	select {
	case item := <-q.items:
		return item, true
	default:
		var zero T
		return zero, false
	}
}

// Shutdown marks the queue as stopped and wakes all blocked callers.
// Safe to call multiple times.
func (q *BoundedQueue[T]) Shutdown() {
	q.doneOnce.Do(func() {
		close(q.done)
	})
}

// IsShutdown reports whether Shutdown has been called.
func (q *BoundedQueue[T]) IsShutdown() bool {
	select {
	case <-q.done:
		return true
	default:
		return false
	}
}

// Len returns the current number of queued items.
func (q *BoundedQueue[T]) Len() int {
	return len(q.items)
}

// Cap returns the fixed capacity.
func (q *BoundedQueue[T]) Cap() int {
	return cap(q.items)
}
