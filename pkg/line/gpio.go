// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package line provides the physical connections to the heat pump line:
// a GPIO pin on the host, or a capture probe reached over serial or websocket.
package line

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kidoman/embd"
	_ "github.com/kidoman/embd/host/rpi" // register the Raspberry Pi GPIO driver
	log "github.com/sirupsen/logrus"

	"github.com/Thermoquad/hwpbus/pkg/hwp"
)

// spinWindow is how long before a deadline waitUntil stops sleeping and polls
const spinWindow = 200 * time.Microsecond

// GPIOLine is the line wired directly to a host GPIO pin
type GPIOLine struct {
	pin     embd.DigitalPin
	log     log.FieldLogger
	mu      sync.Mutex
	closeFn func() error
}

// OpenGPIO initializes the GPIO driver and opens pin n as an input
func OpenGPIO(n int, logger log.FieldLogger) (*GPIOLine, error) {
	if err := embd.InitGPIO(); err != nil {
		return nil, fmt.Errorf("failed to initialize GPIO: %w", err)
	}
	pin, err := embd.NewDigitalPin(n)
	if err != nil {
		embd.CloseGPIO()
		return nil, fmt.Errorf("failed to open GPIO pin %d: %w", n, err)
	}
	l, err := newGPIOLine(pin, logger)
	if err != nil {
		pin.Close()
		embd.CloseGPIO()
		return nil, err
	}
	l.closeFn = embd.CloseGPIO
	return l, nil
}

func newGPIOLine(pin embd.DigitalPin, logger log.FieldLogger) (*GPIOLine, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	if err := pin.SetDirection(embd.In); err != nil {
		return nil, fmt.Errorf("failed to set pin %d as input: %w", pin.N(), err)
	}
	return &GPIOLine{pin: pin, log: logger}, nil
}

// Watch calls handler on both edges with the level read after the transition
func (g *GPIOLine) Watch(handler func(level bool, at time.Time)) error {
	return g.pin.Watch(embd.EdgeBoth, func(p embd.DigitalPin) {
		at := time.Now()
		v, err := p.Read()
		if err != nil {
			g.log.WithError(err).Debug("edge read failed")
			return
		}
		handler(v == embd.High, at)
	})
}

// Level reads the pin
func (g *GPIOLine) Level() (bool, error) {
	v, err := g.pin.Read()
	if err != nil {
		return false, err
	}
	return v == embd.High, nil
}

// Drive switches the pin to output, writes each pulse for its duration and
// returns the pin to input. The line is released even when ctx ends early.
func (g *GPIOLine) Drive(ctx context.Context, pulses []hwp.Pulse) (err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.pin.SetDirection(embd.Out); err != nil {
		return fmt.Errorf("failed to set pin %d as output: %w", g.pin.N(), err)
	}
	defer func() {
		if derr := g.pin.SetDirection(embd.In); derr != nil && err == nil {
			err = fmt.Errorf("failed to release pin %d: %w", g.pin.N(), derr)
		}
	}()

	deadline := time.Now()
	for _, p := range pulses {
		v := embd.Low
		if p.Level {
			v = embd.High
		}
		if err := g.pin.Write(v); err != nil {
			return fmt.Errorf("failed to write pin %d: %w", g.pin.N(), err)
		}
		deadline = deadline.Add(p.Duration)
		if err := waitUntil(ctx, deadline); err != nil {
			return err
		}
	}
	return nil
}

// waitUntil sleeps until shortly before t, then polls so pulse edges land
// within the protocol tolerance
func waitUntil(ctx context.Context, t time.Time) error {
	if d := time.Until(t) - spinWindow; d > 0 {
		timer := time.NewTimer(d)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
	for time.Now().Before(t) {
	}
	return nil
}

func (g *GPIOLine) Close() error {
	if err := g.pin.StopWatching(); err != nil {
		g.log.WithError(err).Debug("stop watching failed")
	}
	err := g.pin.Close()
	if g.closeFn != nil {
		if cerr := g.closeFn(); err == nil {
			err = cerr
		}
	}
	return err
}
