// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package export mirrors the heat pump state into Modbus holding registers.
package export

import (
	"math"
	"time"

	"github.com/Thermoquad/hwpbus/pkg/heatpump"
)

// Register slots, relative to the configured base address.
// Temperatures are signed tenths of a degree; enums are ordinals.
const (
	SlotHeaterOnline = iota
	SlotMode
	SlotRestriction
	SlotTarget
	SlotMinTarget
	SlotMaxTarget
	SlotInlet
	SlotOutlet
	SlotCoil
	SlotExhaust
	SlotSuction
	SlotAmbient
	SlotFanMode
	SlotDefrostMode
	SlotFlowMeter
	SlotWaterFlow
	SlotPulsesPerLiter

	SlotCount
)

// Absent marks a value the heat pump has not reported
const Absent uint16 = 0x8000

// Encode converts a state snapshot into the register block.
// No IO. No side effects.
func Encode(s heatpump.State, now time.Time) []uint16 {
	regs := make([]uint16, SlotCount)

	online := s.HeaterOnline(now)
	regs[SlotHeaterOnline] = boolRegister(&online)
	regs[SlotMode] = enumRegister(s.Mode)
	regs[SlotRestriction] = enumRegister(s.Restriction)
	regs[SlotTarget] = tempRegister(s.TargetTemperature)
	regs[SlotMinTarget] = tempRegister(s.MinTarget)
	regs[SlotMaxTarget] = tempRegister(s.MaxTarget)
	regs[SlotInlet] = tempRegister(s.InletTemperature)
	regs[SlotOutlet] = tempRegister(s.OutletTemperature)
	regs[SlotCoil] = tempRegister(s.CoilTemperature)
	regs[SlotExhaust] = tempRegister(s.ExhaustTemperature)
	regs[SlotSuction] = tempRegister(s.SuctionTemperature)
	regs[SlotAmbient] = tempRegister(s.AmbientTemperature)
	regs[SlotFanMode] = enumRegister(s.FanMode)
	regs[SlotDefrostMode] = enumRegister(s.DefrostEco)
	regs[SlotFlowMeter] = boolRegister(s.FlowMeter)
	regs[SlotWaterFlow] = boolRegister(s.WaterFlow)
	regs[SlotPulsesPerLiter] = Absent
	if s.PulsesPerLiter != nil {
		regs[SlotPulsesPerLiter] = *s.PulsesPerLiter
	}

	return regs
}

func tempRegister(t *float64) uint16 {
	if t == nil {
		return Absent
	}
	return uint16(int16(math.Round(*t * 10)))
}

func boolRegister(b *bool) uint16 {
	switch {
	case b == nil:
		return Absent
	case *b:
		return 1
	default:
		return 0
	}
}

func enumRegister[T ~uint8](v *T) uint16 {
	if v == nil {
		return Absent
	}
	return uint16(*v)
}
