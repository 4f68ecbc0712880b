// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package heatpump

import (
	"fmt"

	"github.com/Thermoquad/hwpbus/pkg/hwp"
)

// CONFIG_2 layout
const (
	conf2FanByte          = 2 // high nibble
	conf2DefrostStartByte = 3 // d01, extended
	conf2DefrostEndByte   = 4 // d02, temperature
	conf2CycleByte        = 5 // d03, decimal
	conf2MaxDefrostByte   = 6 // d04, decimal

	fanShift = 4
)

// Conf2Codec handles CONFIG_2: fan mode and defrost settings
type Conf2Codec struct{}

// Parse updates fan mode and d01-d04
func (Conf2Codec) Parse(f *hwp.Frame, s *State) error {
	fan := FanMode(f.Byte(conf2FanByte) >> fanShift)
	if fan.Valid() {
		s.FanMode = ptr(fan)
	}
	s.DefrostStart = ptr(hwp.DecodeExtendedTemperature(f.Byte(conf2DefrostStartByte)))
	s.DefrostEnd = ptr(hwp.DecodeTemperature(f.Byte(conf2DefrostEndByte)))
	s.DefrostCycleMinutes = ptr(hwp.DecodeDecimal(f.Byte(conf2CycleByte)))
	s.MaxDefrostMinutes = ptr(hwp.DecodeDecimal(f.Byte(conf2MaxDefrostByte)))
	if !fan.Valid() {
		return fmt.Errorf("unknown fan mode %d", fan)
	}
	return nil
}

// Handles reports whether ch touches CONFIG_2
func (Conf2Codec) Handles(ch Change) bool {
	return ch.FanMode != nil || ch.DefrostStart != nil || ch.DefrostEnd != nil ||
		ch.DefrostCycleMinutes != nil || ch.MaxDefrostMinutes != nil
}

// BuildCommand applies fan mode and defrost changes to baseline
func (c Conf2Codec) BuildCommand(baseline *hwp.Frame, s State, ch Change) (*hwp.Frame, error) {
	if baseline == nil || !c.Handles(ch) {
		return nil, nil
	}
	if ch.FanMode != nil && !ch.FanMode.Valid() {
		return nil, fmt.Errorf("%w: fan mode %d", ErrOutOfRange, *ch.FanMode)
	}
	if err := checkRange("d01 defrost start", ch.DefrostStart, hwp.MinExtendedTemperature, hwp.MaxExtendedTemperature); err != nil {
		return nil, err
	}
	if err := checkRange("d02 defrost end", ch.DefrostEnd, -hwp.MaxTemperature, hwp.MaxTemperature); err != nil {
		return nil, err
	}
	if err := checkRange("d03 defrost cycle minutes", ch.DefrostCycleMinutes, 0, hwp.MaxDecimal); err != nil {
		return nil, err
	}
	if err := checkRange("d04 max defrost minutes", ch.MaxDefrostMinutes, 0, hwp.MaxDecimal); err != nil {
		return nil, err
	}

	e := editFrame(baseline)

	if ch.FanMode != nil {
		e.set(conf2FanByte, e.data[conf2FanByte]&0x0F|byte(*ch.FanMode)<<fanShift)
	}
	if ch.DefrostStart != nil {
		e.set(conf2DefrostStartByte, hwp.EncodeExtendedTemperature(*ch.DefrostStart))
	}
	if ch.DefrostEnd != nil {
		e.set(conf2DefrostEndByte, hwp.EncodeTemperature(*ch.DefrostEnd))
	}
	if ch.DefrostCycleMinutes != nil {
		e.set(conf2CycleByte, hwp.EncodeDecimal(*ch.DefrostCycleMinutes))
	}
	if ch.MaxDefrostMinutes != nil {
		e.set(conf2MaxDefrostByte, hwp.EncodeDecimal(*ch.MaxDefrostMinutes))
	}

	return e.build(baseline), nil
}
