// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package heatpump

import (
	"fmt"
	"math"

	"github.com/Thermoquad/hwpbus/pkg/hwp"
)

// CONFIG_1 layout
const (
	conf1ModeByte         = 2
	conf1CoolingByte      = 3 // r01
	conf1HeatingByte      = 4 // r02
	conf1AutoByte         = 5 // r03
	conf1ReturnCoolByte   = 6 // r04
	conf1ShutdownCoolByte = 7 // r05
	conf1ReturnHeatByte   = 8 // r06
	conf1ShutdownHeatByte = 9 // r07

	modePower       = 0x01
	modeEnableAuto  = 0x04
	modeHeatingOnly = 0x08
	modeHeat        = 0x10
	modeAuto        = 0x20
)

// Conf1Codec handles CONFIG_1: operating mode, restriction and setpoints
type Conf1Codec struct{}

func conf1ActiveMode(b byte) Mode {
	switch {
	case b&modePower == 0:
		return ModeOff
	case b&modeAuto != 0:
		return ModeAuto
	case b&modeHeat != 0:
		return ModeHeat
	default:
		return ModeCool
	}
}

func conf1Restriction(b byte) Restriction {
	switch {
	case b&modeHeatingOnly != 0:
		return RestrictHeating
	case b&modeEnableAuto != 0:
		return RestrictAny
	default:
		return RestrictCooling
	}
}

// conf1SetpointByte returns the setpoint offset used by mode, given the restriction
func conf1SetpointByte(m Mode, r Restriction) int {
	switch m {
	case ModeCool:
		return conf1CoolingByte
	case ModeAuto:
		return conf1AutoByte
	case ModeHeat:
		return conf1HeatingByte
	default:
		if r == RestrictCooling {
			return conf1CoolingByte
		}
		return conf1HeatingByte
	}
}

// Parse updates mode, restriction, target and r01-r07. Only heater frames are applied.
func (Conf1Codec) Parse(f *hwp.Frame, s *State) error {
	if f.Source() != hwp.SourceHeater {
		return fmt.Errorf("%w: CONFIG_1 from %s", ErrWrongSource, f.Source())
	}
	b := f.Byte(conf1ModeByte)
	mode := conf1ActiveMode(b)
	restriction := conf1Restriction(b)

	s.Mode = ptr(mode)
	s.Restriction = ptr(restriction)
	s.SetpointCooling = ptr(hwp.DecodeTemperature(f.Byte(conf1CoolingByte)))
	s.SetpointHeating = ptr(hwp.DecodeTemperature(f.Byte(conf1HeatingByte)))
	s.SetpointAuto = ptr(hwp.DecodeTemperature(f.Byte(conf1AutoByte)))
	s.ReturnDiffCooling = ptr(hwp.DecodeExtendedTemperature(f.Byte(conf1ReturnCoolByte)))
	s.ShutdownDiffCooling = ptr(hwp.DecodeExtendedTemperature(f.Byte(conf1ShutdownCoolByte)))
	s.ReturnDiffHeating = ptr(hwp.DecodeExtendedTemperature(f.Byte(conf1ReturnHeatByte)))
	s.ShutdownDiffHeating = ptr(hwp.DecodeExtendedTemperature(f.Byte(conf1ShutdownHeatByte)))

	// Off reports the heating setpoint, matching the keypad display
	target := conf1HeatingByte
	if mode != ModeOff {
		target = conf1SetpointByte(mode, restriction)
	}
	s.TargetTemperature = ptr(hwp.DecodeTemperature(f.Byte(target)))
	return nil
}

// Handles reports whether ch touches CONFIG_1
func (Conf1Codec) Handles(ch Change) bool {
	return ch.Mode != nil || ch.Target != nil || ch.Restriction != nil ||
		ch.ReturnDiffCooling != nil || ch.ShutdownDiffCooling != nil ||
		ch.ReturnDiffHeating != nil || ch.ShutdownDiffHeating != nil
}

// BuildCommand applies mode, restriction, target and differential changes to baseline
func (c Conf1Codec) BuildCommand(baseline *hwp.Frame, s State, ch Change) (*hwp.Frame, error) {
	if baseline == nil || !c.Handles(ch) {
		return nil, nil
	}
	e := editFrame(baseline)

	if ch.Target != nil {
		t := *ch.Target
		if !s.IsTemperatureValid(t) || math.Abs(t) > hwp.MaxTemperature {
			return nil, fmt.Errorf("%w: target %.1f°C must be between %.1f°C and %.1f°C",
				ErrOutOfRange, t, s.MinTargetOrDefault(), s.MaxTargetOrDefault())
		}
	}
	for _, r := range []struct {
		name string
		v    *float64
	}{
		{"r04 cooling return differential", ch.ReturnDiffCooling},
		{"r05 cooling shutdown differential", ch.ShutdownDiffCooling},
		{"r06 heating return differential", ch.ReturnDiffHeating},
		{"r07 heating shutdown differential", ch.ShutdownDiffHeating},
	} {
		if err := checkRange(r.name, r.v, hwp.MinExtendedTemperature, hwp.MaxExtendedTemperature); err != nil {
			return nil, err
		}
	}

	if ch.Mode != nil {
		b := e.data[conf1ModeByte] &^ (modePower | modeHeat | modeAuto)
		switch *ch.Mode {
		case ModeAuto:
			b |= modeAuto | modePower
		case ModeHeat:
			b |= modeHeat | modePower
		case ModeCool:
			b |= modePower
		}
		e.set(conf1ModeByte, b)
	}

	if ch.Restriction != nil {
		e.setBits(conf1ModeByte, modeHeatingOnly, *ch.Restriction == RestrictHeating)
		e.setBits(conf1ModeByte, modeEnableAuto, *ch.Restriction == RestrictAny)
	}

	if ch.Target != nil {
		b := e.data[conf1ModeByte]
		idx := conf1SetpointByte(conf1ActiveMode(b), conf1Restriction(b))
		e.set(idx, hwp.EncodeTemperature(*ch.Target))
	}

	if ch.ReturnDiffCooling != nil {
		e.set(conf1ReturnCoolByte, hwp.EncodeExtendedTemperature(*ch.ReturnDiffCooling))
	}
	if ch.ShutdownDiffCooling != nil {
		e.set(conf1ShutdownCoolByte, hwp.EncodeExtendedTemperature(*ch.ShutdownDiffCooling))
	}
	if ch.ReturnDiffHeating != nil {
		e.set(conf1ReturnHeatByte, hwp.EncodeExtendedTemperature(*ch.ReturnDiffHeating))
	}
	if ch.ShutdownDiffHeating != nil {
		e.set(conf1ShutdownHeatByte, hwp.EncodeExtendedTemperature(*ch.ShutdownDiffHeating))
	}

	return e.build(baseline), nil
}
