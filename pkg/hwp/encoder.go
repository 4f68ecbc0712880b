// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hwp

import (
	"fmt"
	"time"
)

// EncodeFrame returns the start marker and bit pulses for a frame.
// Bits are emitted least significant first using controller polarity:
// a set bit is a long high pulse.
func EncodeFrame(f *Frame) []Pulse {
	pulses := make([]Pulse, 0, 2+f.Len()*16)
	pulses = append(pulses, Low(StartLowDuration), High(StartHighDuration))

	for _, b := range f.data {
		for bit := 0; bit < 8; bit++ {
			high := BitShortHighDuration
			if b&(1<<bit) != 0 {
				high = BitLongHighDuration
			}
			pulses = append(pulses, Low(BitLowDuration), High(high))
		}
	}
	return pulses
}

// EncodeTransmission returns the full pulse train for sending a frame repeat times.
// Repeats are separated by FrameSpacing and the train ends with GroupSpacing.
func EncodeTransmission(f *Frame, repeat int) ([]Pulse, error) {
	if repeat < 1 {
		return nil, fmt.Errorf("invalid repeat count: %d", repeat)
	}
	if !f.IsShort() && !f.IsLong() {
		return nil, fmt.Errorf("invalid frame length: %d", f.Len())
	}

	one := EncodeFrame(f)
	pulses := make([]Pulse, 0, repeat*(len(one)+2))
	for i := 0; i < repeat; i++ {
		pulses = append(pulses, one...)
		spacing := FrameSpacing
		if i == repeat-1 {
			spacing = GroupSpacing
		}
		pulses = append(pulses, Low(BitLowDuration), High(spacing))
	}
	return pulses, nil
}

// TotalDuration returns the summed duration of a pulse train
func TotalDuration(pulses []Pulse) time.Duration {
	var total time.Duration
	for _, p := range pulses {
		total += p.Duration
	}
	return total
}
