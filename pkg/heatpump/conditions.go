// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package heatpump

import "github.com/Thermoquad/hwpbus/pkg/hwp"

// Conditions layouts
const (
	cond1VariantByte = 2
	cond1Variant     = 0x05
	cond1FlowByte    = 4 // S02, COND_1B only
	cond1FlowFlag    = 0x02
	cond1InletByte   = 9 // t02

	cond2OutletByte  = 4 // t03
	cond2ExhaustByte = 5 // t06
	cond2CoilByte    = 6 // t04
)

// isCond1 matches the COND_1 variant of 0xD1
func isCond1(f *hwp.Frame) bool {
	return f.Byte(cond1VariantByte) == cond1Variant
}

// isCond1B matches every other 0xD1 frame
func isCond1B(f *hwp.Frame) bool {
	return f.Byte(cond1VariantByte) != cond1Variant
}

// Conditions1Codec handles COND_1: inlet water temperature
type Conditions1Codec struct{}

// Parse updates t02
func (Conditions1Codec) Parse(f *hwp.Frame, s *State) error {
	s.InletTemperature = ptr(hwp.DecodeTemperature(f.Byte(cond1InletByte)))
	return nil
}

// Conditions1BCodec handles COND_1B: inlet water temperature and water flow
type Conditions1BCodec struct{}

// Parse updates t02 and S02
func (Conditions1BCodec) Parse(f *hwp.Frame, s *State) error {
	s.WaterFlow = ptr(f.Byte(cond1FlowByte)&cond1FlowFlag != 0)
	s.InletTemperature = ptr(hwp.DecodeTemperature(f.Byte(cond1InletByte)))
	return nil
}

// Conditions2Codec handles COND_2: outlet, exhaust and coil temperatures
type Conditions2Codec struct{}

// Parse updates t03, t04 and t06
func (Conditions2Codec) Parse(f *hwp.Frame, s *State) error {
	s.OutletTemperature = ptr(hwp.DecodeTemperature(f.Byte(cond2OutletByte)))
	s.ExhaustTemperature = ptr(hwp.DecodeTemperature(f.Byte(cond2ExhaustByte)))
	s.CoilTemperature = ptr(hwp.DecodeTemperature(f.Byte(cond2CoilByte)))
	return nil
}

// Clock layout
const (
	clockYearByte   = 4
	clockMonthByte  = 5
	clockDayByte    = 6
	clockHourByte   = 7
	clockMinuteByte = 8
)

// ClockCodec handles CLOCK frames
type ClockCodec struct{}

// Parse updates the clock counters
func (ClockCodec) Parse(f *hwp.Frame, s *State) error {
	s.Clock = &Clock{
		Year:   int(f.Byte(clockYearByte)),
		Month:  int(f.Byte(clockMonthByte)),
		Day:    int(f.Byte(clockDayByte)),
		Hour:   int(f.Byte(clockHourByte)),
		Minute: int(f.Byte(clockMinuteByte)),
	}
	return nil
}

// RawCodec tracks a frame type whose payload is not decoded
type RawCodec struct{}

// Parse does nothing; the registry keeps the frame for dumps and change tracking
func (RawCodec) Parse(*hwp.Frame, *State) error {
	return nil
}
