// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bus

import (
	"context"
	"sync"
	"time"

	"github.com/Thermoquad/hwpbus/pkg/hwp"
	"github.com/Thermoquad/hwpbus/pkg/queue"
)

// Line is the physical single-wire connection
type Line interface {
	// Watch registers handler for every level transition. level is the new
	// level and at the time of the transition.
	Watch(handler func(level bool, at time.Time)) error
	// Level reads the current line level
	Level() (bool, error)
	// Drive switches the line to output, emits pulses with their timing and
	// switches back to input
	Drive(ctx context.Context, pulses []hwp.Pulse) error
	Close() error
}

// Capture turns line transitions into pulses. OnEdge only timestamps and
// enqueues, so it is safe to call from an interrupt-style callback.
type Capture struct {
	mu      sync.Mutex
	queue   *queue.Queue[hwp.Pulse]
	level   bool
	last    time.Time
	started bool
}

// NewCapture creates a capture feeding q
func NewCapture(q *queue.Queue[hwp.Pulse]) *Capture {
	return &Capture{queue: q}
}

// OnEdge records a transition to level at time at. The pulse that just
// ended, the previous level and its duration, is enqueued.
func (c *Capture) OnEdge(level bool, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		c.queue.Enqueue(hwp.Pulse{Level: c.level, Duration: at.Sub(c.last)})
	}
	c.level = level
	c.last = at
	c.started = true
}

// Dropped returns how many pulses were evicted from a full queue
func (c *Capture) Dropped() uint64 {
	return c.queue.Dropped()
}
