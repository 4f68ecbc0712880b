// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package heatpump

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/Thermoquad/hwpbus/pkg/hwp"
)

var (
	// ErrOutOfRange is returned for requested values the heat pump cannot accept
	ErrOutOfRange = errors.New("value out of range")
	// ErrNoBaseline is returned when a change needs a frame that has not been observed yet
	ErrNoBaseline = errors.New("waiting for first heat pump frame")
	// ErrWrongSource is returned by Parse when a frame's source carries no state
	ErrWrongSource = errors.New("frame source ignored")
)

// Codec decodes one frame subtype into the model
type Codec interface {
	// Parse updates only the fields the frame carries
	Parse(f *hwp.Frame, s *State) error
}

// Commander is a codec that can also build command frames
type Commander interface {
	Codec
	// Handles reports whether the change touches a field this codec encodes
	Handles(ch Change) bool
	// BuildCommand returns a command frame derived from baseline, or nil when
	// there is no baseline or nothing would change.
	BuildCommand(baseline *hwp.Frame, s State, ch Change) (*hwp.Frame, error)
}

// Change is a requested set of field changes. Nil fields are left untouched.
type Change struct {
	Mode        *Mode
	Target      *float64
	Restriction *Restriction

	ReturnDiffCooling   *float64
	ShutdownDiffCooling *float64
	ReturnDiffHeating   *float64
	ShutdownDiffHeating *float64

	FanMode             *FanMode
	DefrostStart        *float64
	DefrostEnd          *float64
	DefrostCycleMinutes *float64
	MaxDefrostMinutes   *float64

	DefrostEco           *DefrostMode
	FlowMeter            *bool
	MinEcoDefrostMinutes *float64
	PulsesPerLiter       *uint16
}

// SetMode returns a change requesting mode m
func SetMode(m Mode) Change {
	return Change{Mode: &m}
}

// SetTarget returns a change requesting target temperature t
func SetTarget(t float64) Change {
	return Change{Target: &t}
}

// SetFanMode returns a change requesting fan mode f
func SetFanMode(f FanMode) Change {
	return Change{FanMode: &f}
}

// SetDefrost returns a change requesting defrost mode d
func SetDefrost(d DefrostMode) Change {
	return Change{DefrostEco: &d}
}

// SetFlowMeter returns a change enabling or disabling the flow meter
func SetFlowMeter(on bool) Change {
	return Change{FlowMeter: &on}
}

// IsEmpty reports whether the change requests nothing
func (c Change) IsEmpty() bool {
	return c == Change{}
}

// frameEdit applies byte edits on top of a baseline frame
// checkRange rejects a requested value outside [lo, hi]
func checkRange(name string, v *float64, lo, hi float64) error {
	if v == nil || (*v >= lo && *v <= hi) {
		return nil
	}
	return fmt.Errorf("%w: %s %.1f must be between %.1f and %.1f", ErrOutOfRange, name, *v, lo, hi)
}

type frameEdit struct {
	data []byte
}

func editFrame(baseline *hwp.Frame) *frameEdit {
	return &frameEdit{data: baseline.Bytes()}
}

func (e *frameEdit) set(i int, b byte) {
	if i > 0 && i < len(e.data)-1 {
		e.data[i] = b
	}
}

func (e *frameEdit) setBits(i int, mask byte, on bool) {
	if on {
		e.set(i, e.data[i]|mask)
	} else {
		e.set(i, e.data[i]&^mask)
	}
}

// build returns the finalized local frame, or nil if it matches the baseline
func (e *frameEdit) build(baseline *hwp.Frame) *hwp.Frame {
	f := hwp.NewLocalFrame(e.data)
	if bytes.Equal(f.Bytes(), baseline.Bytes()) {
		return nil
	}
	return f
}
