// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hwp

import (
	"fmt"
	"strings"
)

// FormatFrame formats a frame into a single human-readable line
func FormatFrame(f *Frame) string {
	timestamp := f.capturedAt.Format("15:04:05.000")
	return fmt.Sprintf("[%s] %-4s %-8s (0x%02X) len=%-2d %s",
		timestamp, f.source, FormatFrameType(f), f.Type(), f.Len(), FormatHex(f.data))
}

// FormatFrameType returns the human-readable name for a frame's type byte
func FormatFrameType(f *Frame) string {
	switch f.Type() {
	case TypeConfig1:
		return "CONFIG_1"
	case TypeConfig2:
		return "CONFIG_2"
	case TypeConfig3:
		return "CONFIG_3"
	case TypeConfig4:
		return "CONFIG_4"
	case TypeConfig5:
		return "CONFIG_5"
	case TypeConfig6:
		return "CONFIG_6"
	case TypeClock:
		return "CLOCK"
	case TypeConditions1:
		if f.Byte(2) == 0x05 {
			return "COND_1"
		}
		return "COND_1B"
	case TypeConditions2:
		if f.IsShort() {
			return "COND_2B"
		}
		return "COND_2"
	default:
		return "UNKNOWN"
	}
}

// FormatHex returns space separated hex bytes
func FormatHex(data []byte) string {
	var sb strings.Builder
	for i, b := range data {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", b)
	}
	return sb.String()
}

// FormatPulses returns a compact trace of a pulse train, e.g. "L9000 H5000 L1000 H3000"
func FormatPulses(pulses []Pulse) string {
	var sb strings.Builder
	for i, p := range pulses {
		if i > 0 {
			sb.WriteByte(' ')
		}
		level := 'L'
		if p.Level {
			level = 'H'
		}
		fmt.Fprintf(&sb, "%c%d", level, p.Duration.Microseconds())
	}
	return sb.String()
}
