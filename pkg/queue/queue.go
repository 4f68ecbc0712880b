// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package queue provides a bounded FIFO shared between a producer that must
// never block (an edge callback) and a consumer goroutine.
package queue

import (
	"context"
	"sync"
	"time"
)

// Queue is a fixed capacity ring buffer. When full, Enqueue evicts the oldest element.
type Queue[T any] struct {
	mu      sync.Mutex
	buf     []T
	head    int
	count   int
	dropped uint64
	notify  chan struct{}
}

// New creates a queue holding at most capacity elements
func New[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[T]{
		buf:    make([]T, capacity),
		notify: make(chan struct{}, 1),
	}
}

// Enqueue appends v without blocking. It reports false when the oldest element was evicted.
func (q *Queue[T]) Enqueue(v T) bool {
	q.mu.Lock()
	kept := true
	if q.count == len(q.buf) {
		q.head = (q.head + 1) % len(q.buf)
		q.count--
		q.dropped++
		kept = false
	}
	q.buf[(q.head+q.count)%len(q.buf)] = v
	q.count++
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return kept
}

// TryDequeue removes and returns the oldest element if one is available
func (q *Queue[T]) TryDequeue() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if q.count == 0 {
		return zero, false
	}
	v := q.buf[q.head]
	q.buf[q.head] = zero
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	return v, true
}

// DequeueIf removes and returns the oldest element only when match accepts it
func (q *Queue[T]) DequeueIf(match func(T) bool) (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if q.count == 0 || !match(q.buf[q.head]) {
		return zero, false
	}
	v := q.buf[q.head]
	q.buf[q.head] = zero
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	return v, true
}

// Drain discards every queued element and returns how many were removed
func (q *Queue[T]) Drain() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.count
	var zero T
	for i := range q.buf {
		q.buf[i] = zero
	}
	q.head = 0
	q.count = 0
	return n
}

// Dequeue blocks until an element is available or ctx is done
func (q *Queue[T]) Dequeue(ctx context.Context) (T, error) {
	for {
		if v, ok := q.TryDequeue(); ok {
			return v, nil
		}
		select {
		case <-q.notify:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// DequeueTimeout blocks for at most d. It reports false on timeout.
func (q *Queue[T]) DequeueTimeout(ctx context.Context, d time.Duration) (T, bool, error) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		if v, ok := q.TryDequeue(); ok {
			return v, true, nil
		}
		select {
		case <-q.notify:
		case <-timer.C:
			v, ok := q.TryDequeue()
			return v, ok, nil
		case <-ctx.Done():
			var zero T
			return zero, false, ctx.Err()
		}
	}
}

// Peek returns the oldest element without removing it
func (q *Queue[T]) Peek() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.count == 0 {
		var zero T
		return zero, false
	}
	return q.buf[q.head], true
}

// Len returns the number of queued elements
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Cap returns the queue capacity
func (q *Queue[T]) Cap() int {
	return len(q.buf)
}

// Dropped returns how many elements were evicted since creation
func (q *Queue[T]) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Notify returns a channel signalled after each Enqueue.
// The signal is coalesced; drain the queue after receiving it.
func (q *Queue[T]) Notify() <-chan struct{} {
	return q.notify
}
