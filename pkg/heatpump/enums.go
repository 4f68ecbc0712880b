// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package heatpump

import (
	"fmt"
	"strings"
)

// Mode is the operating mode of the heat pump
type Mode uint8

const (
	ModeOff Mode = iota
	ModeHeat
	ModeCool
	ModeAuto
)

var modeNames = []string{"off", "heat", "cool", "auto"}

// String returns the lowercase mode name
func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return "unknown"
}

// ParseMode parses a mode name
func ParseMode(s string) (Mode, error) {
	for i, name := range modeNames {
		if strings.EqualFold(s, name) {
			return Mode(i), nil
		}
	}
	return ModeOff, fmt.Errorf("invalid mode %q (valid: %s)", s, strings.Join(modeNames, ", "))
}

// Restriction limits which modes the heat pump accepts
type Restriction uint8

const (
	RestrictCooling Restriction = iota
	RestrictHeating
	RestrictAny
)

var restrictionNames = []string{"cooling", "heating", "any"}

// String returns the lowercase restriction name
func (r Restriction) String() string {
	if int(r) < len(restrictionNames) {
		return restrictionNames[r]
	}
	return "unknown"
}

// ParseRestriction parses a restriction name
func ParseRestriction(s string) (Restriction, error) {
	for i, name := range restrictionNames {
		if strings.EqualFold(s, name) {
			return Restriction(i), nil
		}
	}
	return RestrictAny, fmt.Errorf("invalid restriction %q (valid: %s)", s, strings.Join(restrictionNames, ", "))
}

// Allows reports whether mode m is permitted under the restriction
func (r Restriction) Allows(m Mode) bool {
	switch r {
	case RestrictCooling:
		return m == ModeOff || m == ModeCool
	case RestrictHeating:
		return m == ModeOff || m == ModeHeat
	default:
		return true
	}
}

// FanMode is the fan operating mode, stored in the high nibble of CONFIG_2 byte 2
type FanMode uint8

const (
	FanLow FanMode = iota
	FanHigh
	FanAmbient
	FanScheduled
	FanAmbientScheduled
)

var fanModeNames = []string{"low", "high", "ambient", "scheduled", "ambient_scheduled"}

// String returns the lowercase fan mode name
func (f FanMode) String() string {
	if int(f) < len(fanModeNames) {
		return fanModeNames[f]
	}
	return "unknown"
}

// Valid reports whether f is a known fan mode
func (f FanMode) Valid() bool {
	return int(f) < len(fanModeNames)
}

// ParseFanMode parses a fan mode name
func ParseFanMode(s string) (FanMode, error) {
	for i, name := range fanModeNames {
		if strings.EqualFold(s, name) {
			return FanMode(i), nil
		}
	}
	return FanLow, fmt.Errorf("invalid fan mode %q (valid: %s)", s, strings.Join(fanModeNames, ", "))
}

// DefrostMode selects economy or normal defrosting. The values match the CONFIG_5 bit.
type DefrostMode uint8

const (
	DefrostEco DefrostMode = iota
	DefrostNormal
)

// String returns the lowercase defrost mode name
func (d DefrostMode) String() string {
	if d == DefrostEco {
		return "eco"
	}
	return "normal"
}

// ParseDefrostMode parses "eco" or "normal"
func ParseDefrostMode(s string) (DefrostMode, error) {
	switch strings.ToLower(s) {
	case "eco":
		return DefrostEco, nil
	case "normal":
		return DefrostNormal, nil
	}
	return DefrostNormal, fmt.Errorf("invalid defrost mode %q (valid: eco, normal)", s)
}

// ParseEnabled parses "enabled"/"disabled" (also on/off, true/false)
func ParseEnabled(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "enabled", "on", "true", "1":
		return true, nil
	case "disabled", "off", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("invalid switch value %q (valid: enabled, disabled)", s)
}
