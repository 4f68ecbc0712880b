// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package heatpump maps protocol frames to a canonical heat pump model and
// builds command frames from requested changes.
package heatpump

import (
	"sync"
	"time"
)

// Target limits used until CONFIG_3 reports the heating range
const (
	DefaultMinTarget = 15.0
	DefaultMaxTarget = 33.0
)

// HeaterTimeout marks the heat pump offline
const HeaterTimeout = 90 * time.Second

// Clock holds the heat pump clock counters. Year, month and day are
// uptime counters rather than a calendar date.
type Clock struct {
	Year   int `json:"year"`
	Month  int `json:"month"`
	Day    int `json:"day"`
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

// State is the canonical heat pump data model. Every field is optional:
// nil means the value has not been observed yet. Codecs replace pointers,
// they never write through them, so shallow copies are safe to share.
type State struct {
	Mode              *Mode        `json:"mode,omitempty"`
	Restriction       *Restriction `json:"restriction,omitempty"`
	TargetTemperature *float64     `json:"target_temperature,omitempty"`
	MinTarget         *float64     `json:"min_target,omitempty"`
	MaxTarget         *float64     `json:"max_target,omitempty"`

	// Setpoints and differentials (r01-r11)
	SetpointCooling     *float64 `json:"r01_setpoint_cooling,omitempty"`
	SetpointHeating     *float64 `json:"r02_setpoint_heating,omitempty"`
	SetpointAuto        *float64 `json:"r03_setpoint_auto,omitempty"`
	ReturnDiffCooling   *float64 `json:"r04_return_diff_cooling,omitempty"`
	ShutdownDiffCooling *float64 `json:"r05_shutdown_diff_cooling,omitempty"`
	ReturnDiffHeating   *float64 `json:"r06_return_diff_heating,omitempty"`
	ShutdownDiffHeating *float64 `json:"r07_shutdown_diff_heating,omitempty"`
	MinCoolingSetpoint  *float64 `json:"r08_min_cooling_setpoint,omitempty"`
	MaxCoolingSetpoint  *float64 `json:"r09_max_cooling_setpoint,omitempty"`
	MinHeatingSetpoint  *float64 `json:"r10_min_heating_setpoint,omitempty"`
	MaxHeatingSetpoint  *float64 `json:"r11_max_heating_setpoint,omitempty"`

	// Fan and defrost (d01-d06)
	FanMode              *FanMode     `json:"fan_mode,omitempty"`
	DefrostStart         *float64     `json:"d01_defrost_start,omitempty"`
	DefrostEnd           *float64     `json:"d02_defrost_end,omitempty"`
	DefrostCycleMinutes  *float64     `json:"d03_defrost_cycle_minutes,omitempty"`
	MaxDefrostMinutes    *float64     `json:"d04_max_defrost_minutes,omitempty"`
	MinEcoDefrostMinutes *float64     `json:"d05_min_eco_defrost_minutes,omitempty"`
	DefrostEco           *DefrostMode `json:"d06_defrost_eco_mode,omitempty"`

	// Flow (U01, U02, S02)
	FlowMeter      *bool   `json:"u01_flow_meter,omitempty"`
	PulsesPerLiter *uint16 `json:"u02_pulses_per_liter,omitempty"`
	WaterFlow      *bool   `json:"s02_water_flow,omitempty"`

	// Sensors (t01-t06). Suction and ambient offsets are unknown and stay nil.
	SuctionTemperature *float64 `json:"t01_suction,omitempty"`
	InletTemperature   *float64 `json:"t02_inlet,omitempty"`
	OutletTemperature  *float64 `json:"t03_outlet,omitempty"`
	CoilTemperature    *float64 `json:"t04_coil,omitempty"`
	AmbientTemperature *float64 `json:"t05_ambient,omitempty"`
	ExhaustTemperature *float64 `json:"t06_exhaust,omitempty"`

	Clock *Clock `json:"clock,omitempty"`

	LastHeaterFrame     *time.Time `json:"last_heater_frame,omitempty"`
	LastControllerFrame *time.Time `json:"last_controller_frame,omitempty"`
}

// ptr returns a pointer to a copy of v
func ptr[T any](v T) *T {
	return &v
}

// MinTargetOrDefault returns the lowest accepted target temperature
func (s *State) MinTargetOrDefault() float64 {
	if s.MinTarget != nil {
		return *s.MinTarget
	}
	return DefaultMinTarget
}

// MaxTargetOrDefault returns the highest accepted target temperature
func (s *State) MaxTargetOrDefault() float64 {
	if s.MaxTarget != nil {
		return *s.MaxTarget
	}
	return DefaultMaxTarget
}

// IsTemperatureValid reports whether t lies in the accepted target range
func (s *State) IsTemperatureValid(t float64) bool {
	return t >= s.MinTargetOrDefault() && t <= s.MaxTargetOrDefault()
}

// HeaterOnline reports whether a heater frame was seen within HeaterTimeout of now
func (s *State) HeaterOnline(now time.Time) bool {
	return s.LastHeaterFrame != nil && now.Sub(*s.LastHeaterFrame) <= HeaterTimeout
}

// ActiveMode returns the current mode, or ModeOff when unknown
func (s *State) ActiveMode() Mode {
	if s.Mode != nil {
		return *s.Mode
	}
	return ModeOff
}

// ModeRestriction returns the current restriction, or RestrictAny when unknown
func (s *State) ModeRestriction() Restriction {
	if s.Restriction != nil {
		return *s.Restriction
	}
	return RestrictAny
}

// Model holds the shared State. The receive goroutine is the single writer.
type Model struct {
	mu          sync.RWMutex
	state       State
	subscribers []chan struct{}
}

// NewModel creates an empty model
func NewModel() *Model {
	return &Model{}
}

// Update applies fn to the state under the write lock and notifies subscribers
func (m *Model) Update(fn func(*State)) {
	m.mu.Lock()
	fn(&m.state)
	subs := m.subscribers
	m.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Snapshot returns a copy of the current state
func (m *Model) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Subscribe returns a channel signalled after every update.
// Signals are coalesced; read a Snapshot after each one.
func (m *Model) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	m.mu.Lock()
	m.subscribers = append(m.subscribers, ch)
	m.mu.Unlock()
	return ch
}
