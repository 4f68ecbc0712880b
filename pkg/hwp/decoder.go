// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hwp

import (
	"fmt"
	"time"
)

// DecoderState is the state of the frame decoder
type DecoderState int

const (
	StateIdle DecoderState = iota
	StateStarted
	StateComplete
)

// String returns the state name
func (s DecoderState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateStarted:
		return "STARTED"
	case StateComplete:
		return "COMPLETE"
	default:
		return fmt.Sprintf("STATE(%d)", int(s))
	}
}

// Decoder implements the frame decoder state machine.
// It consumes pulses and produces validated frames.
type Decoder struct {
	state    DecoderState
	buffer   [MaxFrameLength]byte
	length   int // bytes accumulated, may exceed MaxFrameLength
	current  byte
	bitIndex int

	pendingLow time.Duration
	hasLow     bool
}

// NewDecoder creates a new frame decoder
func NewDecoder() *Decoder {
	return &Decoder{state: StateIdle}
}

// Reset resets the decoder state to idle and discards any partial frame
func (d *Decoder) Reset() {
	d.state = StateIdle
	d.length = 0
	d.current = 0
	d.bitIndex = 0
	d.pendingLow = 0
	d.hasLow = false
}

// State returns the current decoder state
func (d *Decoder) State() DecoderState {
	return d.state
}

// InFrame reports whether a frame is being assembled
func (d *Decoder) InFrame() bool {
	return d.state == StateStarted
}

// Length returns the number of whole bytes accumulated in the current frame
func (d *Decoder) Length() int {
	return d.length
}

// DecodePulse processes a single pulse through the decoder state machine.
// Returns a completed frame, or nil if no frame was completed.
// Returns an error if a frame was dropped.
func (d *Decoder) DecodePulse(p Pulse) (*Frame, error) {
	if !p.Level {
		d.pendingLow = p.Duration
		d.hasLow = true
		return nil, nil
	}

	low, hadLow := d.pendingLow, d.hasLow
	d.pendingLow, d.hasLow = 0, false

	if !hadLow {
		if d.state != StateStarted {
			return nil, nil
		}
		// A lone high pulse can only end a frame
		if IsFrameEnd(p.Duration) {
			return d.finalize()
		}
		return nil, d.collision(fmt.Sprintf("unpaired high pulse %v", p.Duration),
			map[string]interface{}{"high": p.Duration})
	}

	switch sym := Classify(low, p.Duration); sym {
	case SymbolStart:
		var frame *Frame
		var err error
		if d.state == StateStarted {
			frame, err = d.finalize()
		}
		d.begin()
		return frame, err

	case SymbolLongBit, SymbolShortBit:
		if d.state == StateStarted {
			d.pushBit(sym == SymbolLongBit)
		}
		return nil, nil

	case SymbolFrameEnd:
		if d.state == StateStarted {
			return d.finalize()
		}
		return nil, nil

	default:
		if d.state != StateStarted {
			return nil, nil
		}
		return nil, d.collision(fmt.Sprintf("unexpected pulse low=%v high=%v", low, p.Duration),
			map[string]interface{}{"low": low, "high": p.Duration})
	}
}

// collision drops the frame in progress
func (d *Decoder) collision(msg string, details map[string]interface{}) error {
	received := d.length
	d.Reset()
	details["received"] = received
	return &ValidationError{
		Type:    AnomalyCollision,
		Message: fmt.Sprintf("%s after %d bytes", msg, received),
		Details: details,
	}
}

// Flush finalizes the frame in progress, if any.
// It is called when the line has been idle for FrameEndThreshold.
func (d *Decoder) Flush() (*Frame, error) {
	if d.state != StateStarted {
		return nil, nil
	}
	return d.finalize()
}

func (d *Decoder) begin() {
	d.Reset()
	d.state = StateStarted
}

// pushBit appends one bit, least significant first
func (d *Decoder) pushBit(set bool) {
	if set {
		d.current |= 1 << d.bitIndex
	}
	d.bitIndex++
	if d.bitIndex < 8 {
		return
	}
	if d.length < MaxFrameLength {
		d.buffer[d.length] = d.current
	}
	d.length++
	d.current = 0
	d.bitIndex = 0
}

func (d *Decoder) finalize() (*Frame, error) {
	length := d.length
	d.Reset()
	d.state = StateComplete

	if length == 0 {
		return nil, nil
	}
	if length > MaxFrameLength {
		return nil, &ValidationError{
			Type:    AnomalyOverflow,
			Message: fmt.Sprintf("frame overflow: %d bytes received (max %d)", length, MaxFrameLength),
			Details: map[string]interface{}{"length": length, "dropped": length - MaxFrameLength},
		}
	}

	frame := NewFrame(d.buffer[:length])
	if err := ValidateFrame(frame); err != nil {
		return nil, err
	}
	return frame, nil
}
