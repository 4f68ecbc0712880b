// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package hwp implements the single-wire, pulse-timed protocol spoken between a
// pool heat pump and its wired controller.
//
// The line carries 9-byte (short) and 12-byte (long) frames. Each frame starts
// with a 9 ms low / 5 ms high marker, followed by bits encoded as a 1 ms low
// pulse and a 1 ms (short) or 3 ms (long) high pulse. The heat pump and the
// controller use opposite polarities, so the decoder records the physical
// long/short distinction and the validator resolves the source from the
// checksum.
package hwp

import "time"

// Frame lengths
const (
	FrameLengthShort = 9
	FrameLengthLong  = 12
	MaxFrameLength   = FrameLengthLong
)

// Pulse timings
const (
	Tolerance = 600 * time.Microsecond

	StartLowDuration  = 9 * time.Millisecond
	StartHighDuration = 5 * time.Millisecond

	BitLowDuration       = 1 * time.Millisecond
	BitShortHighDuration = 1 * time.Millisecond
	BitLongHighDuration  = 3 * time.Millisecond

	// FrameEndThreshold is the line idle time that terminates a frame.
	FrameEndThreshold = 50 * time.Millisecond
)

// Bus cadence
const (
	FrameSpacing = 100 * time.Millisecond // between repeats of the same frame
	GroupSpacing = 250 * time.Millisecond // after the last repeat

	// MinSendInterval is the minimum gap between two locally originated sends.
	MinSendInterval = 10 * time.Second

	// ControllerCadence is the controller's broadcast period.
	ControllerCadence = 60 * time.Second
	// ControllerTimeout marks the controller absent.
	ControllerTimeout = ControllerCadence * 3 / 2

	DefaultRepeatCount = 8
)

// SingleFrameMaxDuration is the worst case time to emit one long frame,
// including the start marker and the spacing that follows it.
const SingleFrameMaxDuration = FrameLengthLong*8*(BitLowDuration+BitLongHighDuration) +
	FrameSpacing + StartLowDuration + StartHighDuration

// Source identifies which talker produced a frame
type Source uint8

const (
	SourceUnknown Source = iota
	SourceHeater
	SourceController
	SourceLocal
)

// String returns the short log tag for the source
func (s Source) String() string {
	switch s {
	case SourceHeater:
		return "HEAT"
	case SourceController:
		return "CONT"
	case SourceLocal:
		return "LOC"
	default:
		return "UNK"
	}
}

// Frame type identifiers (byte 0, controller polarity)
const (
	TypeConfig1     = 0x81
	TypeConfig2     = 0x82
	TypeConfig3     = 0x83
	TypeConfig4     = 0x84
	TypeConfig5     = 0x85
	TypeConfig6     = 0x86
	TypeClock       = 0xCF
	TypeConditions1 = 0xD1
	TypeConditions2 = 0xD2
)
