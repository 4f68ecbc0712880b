// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hwp

import (
	"errors"
	"fmt"
)

// AnomalyType represents different types of frame anomalies
type AnomalyType int

const (
	AnomalyChecksum AnomalyType = iota
	AnomalyLength
	AnomalyOverflow
	AnomalyCollision
)

// String returns a short name for the anomaly
func (a AnomalyType) String() string {
	switch a {
	case AnomalyChecksum:
		return "checksum"
	case AnomalyLength:
		return "length"
	case AnomalyOverflow:
		return "overflow"
	case AnomalyCollision:
		return "collision"
	default:
		return "unknown"
	}
}

// Sentinel errors matched by errors.Is against a ValidationError
var (
	ErrChecksum  = errors.New("checksum mismatch")
	ErrLength    = errors.New("invalid frame length")
	ErrOverflow  = errors.New("frame overflow")
	ErrCollision = errors.New("pulse collision")
)

// ValidationError represents a frame that was dropped
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// Is reports whether target is the sentinel for this anomaly
func (v *ValidationError) Is(target error) bool {
	switch v.Type {
	case AnomalyChecksum:
		return target == ErrChecksum
	case AnomalyLength:
		return target == ErrLength
	case AnomalyOverflow:
		return target == ErrOverflow
	case AnomalyCollision:
		return target == ErrCollision
	}
	return false
}

// AnomalyOf extracts the anomaly type carried by err
func AnomalyOf(err error) (AnomalyType, bool) {
	var v *ValidationError
	if errors.As(err, &v) {
		return v.Type, true
	}
	return 0, false
}

// ValidateFrame checks the frame length and resolves its source from the checksum.
//
// The frame is tried as captured first (controller polarity). If that fails every
// byte is complemented and the checksum retried; a match there means the heat pump
// sent it, and the frame keeps the complemented bytes so codecs always see
// controller polarity.
func ValidateFrame(f *Frame) error {
	if !f.IsShort() && !f.IsLong() {
		return &ValidationError{
			Type:    AnomalyLength,
			Message: fmt.Sprintf("invalid frame length: %d (expected %d or %d)", f.Len(), FrameLengthShort, FrameLengthLong),
			Details: map[string]interface{}{"length": f.Len()},
		}
	}

	if ChecksumValid(f.data) {
		f.source = SourceController
		return nil
	}

	f.complement()
	if ChecksumValid(f.data) {
		f.source = SourceHeater
		return nil
	}
	f.complement()

	return &ValidationError{
		Type: AnomalyChecksum,
		Message: fmt.Sprintf("checksum mismatch in both polarities: got 0x%02X, expected 0x%02X",
			f.Checksum(), CalculateChecksum(f.data)),
		Details: map[string]interface{}{"length": f.Len(), "type": f.Type()},
	}
}
