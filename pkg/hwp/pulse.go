// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hwp

import "time"

// Pulse is one timed level observed on the line
type Pulse struct {
	Level    bool // true = high
	Duration time.Duration
}

// Low returns a low pulse of duration d
func Low(d time.Duration) Pulse {
	return Pulse{Level: false, Duration: d}
}

// High returns a high pulse of duration d
func High(d time.Duration) Pulse {
	return Pulse{Level: true, Duration: d}
}

// Symbol is the classification of a low/high pulse pair
type Symbol int

const (
	SymbolInvalid Symbol = iota
	SymbolStart
	SymbolShortBit
	SymbolLongBit
	SymbolFrameEnd
)

// String returns the symbol name
func (s Symbol) String() string {
	switch s {
	case SymbolStart:
		return "START"
	case SymbolShortBit:
		return "SHORT"
	case SymbolLongBit:
		return "LONG"
	case SymbolFrameEnd:
		return "END"
	default:
		return "INVALID"
	}
}

// Matches reports whether actual lies within Tolerance of target.
// Both edges of the window are inclusive.
func Matches(target, actual time.Duration) bool {
	diff := actual - target
	if diff < 0 {
		diff = -diff
	}
	return diff <= Tolerance
}

// IsFrameEnd reports whether a high duration terminates the current frame
func IsFrameEnd(high time.Duration) bool {
	return high == 0 || high >= FrameEndThreshold-Tolerance
}

// Classify classifies a low pulse followed by a high pulse
func Classify(low, high time.Duration) Symbol {
	switch {
	case IsFrameEnd(high):
		return SymbolFrameEnd
	case Matches(StartLowDuration, low) && Matches(StartHighDuration, high):
		return SymbolStart
	case !Matches(BitLowDuration, low):
		return SymbolInvalid
	case Matches(BitLongHighDuration, high):
		return SymbolLongBit
	case Matches(BitShortHighDuration, high):
		return SymbolShortBit
	default:
		return SymbolInvalid
	}
}
