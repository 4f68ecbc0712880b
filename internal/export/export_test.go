// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package export

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	log "github.com/sirupsen/logrus"

	"github.com/Thermoquad/hwpbus/pkg/heatpump"
)

type writeCall struct {
	unitID uint8
	addr   uint16
	regs   []uint16
}

type fakeWriter struct {
	mu     sync.Mutex
	writes []writeCall
	err    error
}

func (f *fakeWriter) WriteRegisters(unitID uint8, addr uint16, regs []uint16) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, writeCall{unitID, addr, append([]uint16(nil), regs...)})
	return f.err
}

func (f *fakeWriter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

func quietLogger() log.FieldLogger {
	l := log.New()
	l.SetOutput(io.Discard)
	return l
}

func TestEncodeEmptyState(t *testing.T) {
	c := qt.New(t)
	regs := Encode(heatpump.State{}, time.Now())
	c.Assert(regs, qt.HasLen, SlotCount)
	c.Assert(regs[SlotHeaterOnline], qt.Equals, uint16(0))
	for i := SlotMode; i < SlotCount; i++ {
		c.Assert(regs[i], qt.Equals, Absent, qt.Commentf("slot %d", i))
	}
}

func TestEncodeValues(t *testing.T) {
	c := qt.New(t)
	m := heatpump.NewModel()
	now := time.Now()
	m.Update(func(s *heatpump.State) {
		mode, fan, eco := heatpump.ModeCool, heatpump.FanAmbient, heatpump.DefrostEco
		target, inlet, coil := 24.5, 27.0, -3.5
		flow, pulses := true, uint16(450)
		s.Mode = &mode
		s.FanMode = &fan
		s.DefrostEco = &eco
		s.TargetTemperature = &target
		s.InletTemperature = &inlet
		s.CoilTemperature = &coil
		s.WaterFlow = &flow
		s.PulsesPerLiter = &pulses
		s.LastHeaterFrame = &now
	})

	regs := Encode(m.Snapshot(), now)
	c.Assert(regs[SlotHeaterOnline], qt.Equals, uint16(1))
	c.Assert(regs[SlotMode], qt.Equals, uint16(heatpump.ModeCool))
	c.Assert(regs[SlotFanMode], qt.Equals, uint16(heatpump.FanAmbient))
	c.Assert(regs[SlotDefrostMode], qt.Equals, uint16(0))
	c.Assert(regs[SlotTarget], qt.Equals, uint16(245))
	c.Assert(regs[SlotInlet], qt.Equals, uint16(270))
	c.Assert(int16(regs[SlotCoil]), qt.Equals, int16(-35))
	c.Assert(regs[SlotWaterFlow], qt.Equals, uint16(1))
	c.Assert(regs[SlotFlowMeter], qt.Equals, Absent)
	c.Assert(regs[SlotPulsesPerLiter], qt.Equals, uint16(450))

	c.Run("heater offline after timeout", func(c *qt.C) {
		regs := Encode(m.Snapshot(), now.Add(heatpump.HeaterTimeout+time.Second))
		c.Assert(regs[SlotHeaterOnline], qt.Equals, uint16(0))
	})
}

func TestWriteOnce(t *testing.T) {
	c := qt.New(t)
	w := &fakeWriter{}
	e := New(w, heatpump.NewModel(), Config{UnitID: 3, Address: 100}, quietLogger())

	c.Assert(e.WriteOnce(), qt.IsNil)
	c.Assert(w.writes, qt.HasLen, 1)
	c.Assert(w.writes[0].unitID, qt.Equals, uint8(3))
	c.Assert(w.writes[0].addr, qt.Equals, uint16(100))
	c.Assert(w.writes[0].regs, qt.HasLen, SlotCount)

	w.err = errors.New("connection refused")
	c.Assert(e.WriteOnce(), qt.ErrorMatches, `modbus export: unit=3 addr=100: connection refused`)
}

func TestRunWritesUntilCancelled(t *testing.T) {
	c := qt.New(t)
	w := &fakeWriter{err: errors.New("timeout")}
	e := New(w, heatpump.NewModel(), Config{Interval: 5 * time.Millisecond}, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for w.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done
	c.Assert(w.count() >= 3, qt.IsTrue)
}

func TestPackRegisters(t *testing.T) {
	c := qt.New(t)
	c.Assert(packRegisters([]uint16{0x1234, 0x8000}), qt.DeepEquals, []byte{0x12, 0x34, 0x80, 0x00})
}
