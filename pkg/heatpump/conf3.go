// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package heatpump

import "github.com/Thermoquad/hwpbus/pkg/hwp"

// CONFIG_3 layout, all extended temperatures
const (
	conf3MinCoolingByte = 7  // r08
	conf3MaxCoolingByte = 8  // r09
	conf3MinHeatingByte = 9  // r10
	conf3MaxHeatingByte = 10 // r11
)

// Conf3Codec handles CONFIG_3: setpoint limits
type Conf3Codec struct{}

// Parse updates r08-r11 and the accepted target range.
// The target range follows the heating limits.
func (Conf3Codec) Parse(f *hwp.Frame, s *State) error {
	s.MinCoolingSetpoint = ptr(hwp.DecodeExtendedTemperature(f.Byte(conf3MinCoolingByte)))
	s.MaxCoolingSetpoint = ptr(hwp.DecodeExtendedTemperature(f.Byte(conf3MaxCoolingByte)))
	s.MinHeatingSetpoint = ptr(hwp.DecodeExtendedTemperature(f.Byte(conf3MinHeatingByte)))
	s.MaxHeatingSetpoint = ptr(hwp.DecodeExtendedTemperature(f.Byte(conf3MaxHeatingByte)))

	s.MinTarget = s.MinHeatingSetpoint
	s.MaxTarget = s.MaxHeatingSetpoint
	return nil
}
