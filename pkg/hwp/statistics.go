// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hwp

import (
	"fmt"
	"time"
)

// Statistics tracks frame statistics and error rates
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalFrames      uint64
	ValidFrames      uint64
	ChecksumErrors   uint64
	LengthErrors     uint64
	Overflows        uint64
	Collisions       uint64
	OtherErrors      uint64
	HeaterFrames     uint64
	ControllerFrames uint64
	SentFrames       uint64
	DeferredSends    uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update updates statistics based on a decoded frame or a decode error
func (s *Statistics) Update(frame *Frame, decodeErr error) {
	if frame == nil && decodeErr == nil {
		return
	}
	s.TotalFrames++
	s.LastUpdateTime = time.Now()

	if decodeErr != nil {
		anomaly, ok := AnomalyOf(decodeErr)
		if !ok {
			s.OtherErrors++
			return
		}
		switch anomaly {
		case AnomalyChecksum:
			s.ChecksumErrors++
		case AnomalyLength:
			s.LengthErrors++
		case AnomalyOverflow:
			s.Overflows++
		case AnomalyCollision:
			s.Collisions++
		}
		return
	}

	s.ValidFrames++
	switch frame.Source() {
	case SourceHeater:
		s.HeaterFrames++
	case SourceController:
		s.ControllerFrames++
	}
}

// RecordSent counts a locally transmitted frame
func (s *Statistics) RecordSent() {
	s.SentFrames++
}

// RecordDeferred counts a send postponed for lack of bus time
func (s *Statistics) RecordDeferred() {
	s.DeferredSends++
}

// Errors returns the total number of dropped frames
func (s *Statistics) Errors() uint64 {
	return s.ChecksumErrors + s.LengthErrors + s.Overflows + s.Collisions + s.OtherErrors
}

// CalculateRates calculates frame and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		s.ErrorRate = float64(s.Errors()) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var validPercent, errorPercent float64
	if s.TotalFrames > 0 {
		validPercent = float64(s.ValidFrames) * 100.0 / float64(s.TotalFrames)
		errorPercent = float64(s.Errors()) * 100.0 / float64(s.TotalFrames)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", s.TotalFrames)
	result += fmt.Sprintf("Valid Frames:    %8d (%.1f%%)\n", s.ValidFrames, validPercent)
	result += fmt.Sprintf("  Heater:           %5d\n", s.HeaterFrames)
	result += fmt.Sprintf("  Controller:       %5d\n", s.ControllerFrames)

	if s.Errors() > 0 {
		result += fmt.Sprintf("Dropped Frames:  %8d (%.1f%%)\n", s.Errors(), errorPercent)
		if s.ChecksumErrors > 0 {
			result += fmt.Sprintf("  Checksum:         %5d\n", s.ChecksumErrors)
		}
		if s.LengthErrors > 0 {
			result += fmt.Sprintf("  Length:           %5d\n", s.LengthErrors)
		}
		if s.Overflows > 0 {
			result += fmt.Sprintf("  Overflow:         %5d\n", s.Overflows)
		}
		if s.Collisions > 0 {
			result += fmt.Sprintf("  Collision:        %5d\n", s.Collisions)
		}
		if s.OtherErrors > 0 {
			result += fmt.Sprintf("  Other:            %5d\n", s.OtherErrors)
		}
	}
	if s.SentFrames > 0 || s.DeferredSends > 0 {
		result += fmt.Sprintf("Sent Frames:     %8d (deferred %d)\n", s.SentFrames, s.DeferredSends)
	}

	result += fmt.Sprintf("Frame Rate:      %8.2f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.2f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
