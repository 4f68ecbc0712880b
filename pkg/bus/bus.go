// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bus arbitrates the shared heat pump line. It receives frames from
// the heat pump and its controller and transmits queued commands in the gaps
// between the controller's broadcasts.
package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Thermoquad/hwpbus/pkg/heatpump"
	"github.com/Thermoquad/hwpbus/pkg/hwp"
	"github.com/Thermoquad/hwpbus/pkg/queue"
)

var (
	// ErrNoLine is returned when the bus has no line configured
	ErrNoLine = errors.New("no line configured")
	// ErrPassive is returned when sending on a listen-only bus
	ErrPassive = errors.New("bus is passive")
)

// ReceiveTimeout bounds each wait on the pulse queue
const ReceiveTimeout = 120 * time.Millisecond

// Mode is the bus direction
type Mode int32

const (
	ModeReceiving Mode = iota
	ModeTransmitting
)

// String returns the mode name
func (m Mode) String() string {
	if m == ModeTransmitting {
		return "TRANSMITTING"
	}
	return "RECEIVING"
}

// Config holds the bus settings
type Config struct {
	PulseQueueDepth int
	QueueDepth      int // outbound frames
	RepeatCount     int
	Passive         bool
	StartDelay      time.Duration // before the first transmit pass
	PassInterval    time.Duration // between transmit passes
	SendInterval    time.Duration // minimum gap between local sends
}

// DefaultConfig returns the standard bus settings
func DefaultConfig() Config {
	return Config{
		PulseQueueDepth: 512,
		QueueDepth:      8,
		RepeatCount:     hwp.DefaultRepeatCount,
		StartDelay:      15 * time.Second,
		PassInterval:    1500 * time.Millisecond,
		SendInterval:    hwp.MinSendInterval,
	}
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.PulseQueueDepth <= 0 {
		c.PulseQueueDepth = d.PulseQueueDepth
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = d.QueueDepth
	}
	if c.RepeatCount <= 0 {
		c.RepeatCount = d.RepeatCount
	}
	if c.StartDelay < 0 {
		c.StartDelay = 0
	}
	if c.PassInterval <= 0 {
		c.PassInterval = d.PassInterval
	}
	if c.SendInterval <= 0 {
		c.SendInterval = d.SendInterval
	}
	return c
}

// FrameHandler observes every decoded frame or decode error
type FrameHandler func(f *hwp.Frame, err error)

// Bus owns the line, the decoder and the outbound queue
type Bus struct {
	cfg      Config
	line     Line
	registry *heatpump.Registry
	model    *heatpump.Model
	log      log.FieldLogger
	now      func() time.Time
	boot     time.Time

	pulses   *queue.Queue[hwp.Pulse]
	outbound *queue.Queue[*hwp.Frame]
	capture  *Capture
	decoder  *hwp.Decoder

	mode            atomic.Int32
	frameInProgress atomic.Bool
	lastPulse       time.Time // receive goroutine only

	mu             sync.Mutex
	stats          *hwp.Statistics
	lastSend       time.Time
	lastController time.Time
	handlers       []FrameHandler

	noLine sync.Once
	wg     sync.WaitGroup
}

// New creates a bus on line. Frames are parsed through registry into model;
// either may be nil for a bus that only decodes. A nil logger uses the
// standard logger.
func New(line Line, registry *heatpump.Registry, model *heatpump.Model, cfg Config, logger log.FieldLogger) *Bus {
	if logger == nil {
		logger = log.StandardLogger()
	}
	cfg = cfg.normalized()
	pulses := queue.New[hwp.Pulse](cfg.PulseQueueDepth)
	b := &Bus{
		cfg:      cfg,
		line:     line,
		registry: registry,
		model:    model,
		log:      logger,
		now:      time.Now,
		pulses:   pulses,
		outbound: queue.New[*hwp.Frame](cfg.QueueDepth),
		capture:  NewCapture(pulses),
		decoder:  hwp.NewDecoder(),
		stats:    hwp.NewStatistics(),
	}
	b.boot = b.now()
	return b
}

// HandleFrames registers h to observe decoded frames and errors.
// Handlers run on the receive goroutine and must not block.
func (b *Bus) HandleFrames(h FrameHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Mode returns the current bus direction
func (b *Bus) Mode() Mode {
	return Mode(b.mode.Load())
}

// Passive reports whether the bus never transmits
func (b *Bus) Passive() bool {
	return b.cfg.Passive
}

// Pending returns the number of queued outbound frames
func (b *Bus) Pending() int {
	return b.outbound.Len()
}

// Statistics returns a snapshot of the frame statistics
func (b *Bus) Statistics() hwp.Statistics {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stats.CalculateRates()
	return *b.stats
}

// ResetStatistics clears the frame statistics
func (b *Bus) ResetStatistics() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stats.Reset()
}

func (b *Bus) reportNoLine() error {
	b.noLine.Do(func() {
		b.log.Error("no line configured, bus disabled")
	})
	return ErrNoLine
}

// Start watches the line and runs the receive and transmit goroutines until
// ctx is done. A passive bus runs only the receive goroutine.
func (b *Bus) Start(ctx context.Context) error {
	if b.line == nil {
		return b.reportNoLine()
	}
	if err := b.line.Watch(b.capture.OnEdge); err != nil {
		return err
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.receive(ctx)
	}()

	if b.cfg.Passive {
		b.log.Info("passive mode, transmit disabled")
		return nil
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.transmitLoop(ctx)
	}()
	return nil
}

// Wait blocks until the goroutines started by Start have returned
func (b *Bus) Wait() {
	b.wg.Wait()
}

// Send queues f for transmission. A full queue evicts the oldest command.
func (b *Bus) Send(f *hwp.Frame) error {
	if b.line == nil {
		return b.reportNoLine()
	}
	if b.cfg.Passive {
		return ErrPassive
	}
	if !b.outbound.Enqueue(f) {
		b.log.WithField("type", hwp.FormatFrameType(f)).Warn("outbound queue full, oldest command dropped")
	}
	return nil
}

func (b *Bus) receive(ctx context.Context) {
	for {
		p, ok, err := b.pulses.DequeueTimeout(ctx, ReceiveTimeout)
		if err != nil {
			return
		}
		if !ok {
			b.flushIdle()
			continue
		}
		if b.Mode() == ModeTransmitting {
			b.decoder.Reset()
			b.frameInProgress.Store(false)
			continue
		}

		b.lastPulse = b.now()
		f, err := b.decoder.DecodePulse(p)
		b.frameInProgress.Store(b.decoder.InFrame())
		b.handle(f, err)
	}
}

// flushIdle ends a frame once the line has been quiet for the frame end threshold
func (b *Bus) flushIdle() {
	if !b.decoder.InFrame() || b.now().Sub(b.lastPulse) <= hwp.FrameEndThreshold {
		return
	}
	f, err := b.decoder.Flush()
	b.frameInProgress.Store(false)
	b.handle(f, err)
}

func (b *Bus) handle(f *hwp.Frame, err error) {
	if f == nil && err == nil {
		return
	}

	b.mu.Lock()
	b.stats.Update(f, err)
	if f != nil && f.Source() == hwp.SourceController {
		b.lastController = b.now()
	}
	handlers := b.handlers
	b.mu.Unlock()

	if err != nil {
		b.log.WithError(err).Debug("frame dropped")
	} else if b.registry != nil && b.model != nil {
		b.registry.Process(f, b.model)
	}

	for _, h := range handlers {
		h(f, err)
	}
}

// HasTimeToSend reports whether repeat copies of a frame fit before the
// controller's next predicted broadcast
func (b *Bus) HasTimeToSend(repeat int) bool {
	return b.hasTimeFor(time.Duration(repeat) * hwp.SingleFrameMaxDuration)
}

func (b *Bus) hasTimeFor(need time.Duration) bool {
	now := b.now()

	b.mu.Lock()
	ref := b.lastController
	b.mu.Unlock()
	if ref.IsZero() {
		ref = b.boot
	}

	if now.Sub(ref) > hwp.ControllerTimeout {
		return true
	}
	next := ref.Add(hwp.ControllerCadence)
	return now.Add(need).Before(next)
}

func (b *Bus) transmitLoop(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(b.cfg.StartDelay):
	}

	ticker := time.NewTicker(b.cfg.PassInterval)
	defer ticker.Stop()

	for {
		b.process(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-b.outbound.Notify():
		}
	}
}

// process runs one transmit pass, sending at most one queued frame
func (b *Bus) process(ctx context.Context) {
	f, ok := b.outbound.Peek()
	if !ok {
		return
	}
	if b.frameInProgress.Load() {
		return
	}

	b.mu.Lock()
	lastSend := b.lastSend
	b.mu.Unlock()
	if !lastSend.IsZero() && b.now().Sub(lastSend) < b.cfg.SendInterval {
		return
	}

	if !b.HasTimeToSend(b.cfg.RepeatCount) {
		b.mu.Lock()
		b.stats.RecordDeferred()
		b.mu.Unlock()
		b.log.WithFields(log.Fields{
			"type":   hwp.FormatFrameType(f),
			"repeat": b.cfg.RepeatCount,
		}).Warn("not enough time before the next controller broadcast, send deferred")
		return
	}

	// A concurrent Send may have evicted f since it was peeked
	if _, ok := b.outbound.DequeueIf(func(head *hwp.Frame) bool { return head == f }); !ok {
		return
	}
	if err := b.transmit(ctx, f); err != nil {
		b.log.WithError(err).Error("transmit failed")
	}
}

func (b *Bus) transmit(ctx context.Context, f *hwp.Frame) error {
	pulses, err := hwp.EncodeTransmission(f, b.cfg.RepeatCount)
	if err != nil {
		return err
	}

	entry := b.log.WithFields(log.Fields{
		"type":   hwp.FormatFrameType(f),
		"len":    f.Len(),
		"repeat": b.cfg.RepeatCount,
	})
	entry.Infof("sending %s", hwp.FormatHex(f.Bytes()))

	b.mode.Store(int32(ModeTransmitting))
	err = b.line.Drive(ctx, pulses)
	// Our own transitions were captured while driving
	b.pulses.Drain()
	b.mode.Store(int32(ModeReceiving))

	b.mu.Lock()
	b.lastSend = b.now()
	if err == nil {
		b.stats.RecordSent()
	}
	b.mu.Unlock()
	return err
}
