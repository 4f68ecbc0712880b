// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mqttbridge

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	qt "github.com/frankban/quicktest"
	log "github.com/sirupsen/logrus"

	"github.com/Thermoquad/hwpbus/pkg/bus"
	"github.com/Thermoquad/hwpbus/pkg/heatpump"
	"github.com/Thermoquad/hwpbus/pkg/hwp"
)

// doneToken is an already completed token
type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

type publish struct {
	topic    string
	retained bool
	payload  string
}

// recordingClient records publishes and keeps the subscribed handler
type recordingClient struct {
	mu        sync.Mutex
	published []publish
	handler   mqtt.MessageHandler
	subTopic  string
}

func (r *recordingClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	r.mu.Lock()
	defer r.mu.Unlock()
	var s string
	switch p := payload.(type) {
	case string:
		s = p
	case []byte:
		s = string(p)
	}
	r.published = append(r.published, publish{topic, retained, s})
	return doneToken{}
}

func (r *recordingClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subTopic = topic
	r.handler = callback
	return doneToken{}
}

func (r *recordingClient) last(topic string) (publish, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.published) - 1; i >= 0; i-- {
		if r.published[i].topic == topic {
			return r.published[i], true
		}
	}
	return publish{}, false
}

func (r *recordingClient) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.published)
}

type message struct {
	topic   string
	payload []byte
}

func (m message) Duplicate() bool   { return false }
func (m message) Qos() byte         { return 0 }
func (m message) Retained() bool    { return false }
func (m message) Topic() string     { return m.topic }
func (m message) MessageID() uint16 { return 0 }
func (m message) Payload() []byte   { return m.payload }
func (m message) Ack()              {}

type fakeSender struct {
	passive bool
	sent    []*hwp.Frame
}

func (s *fakeSender) Send(f *hwp.Frame) error {
	s.sent = append(s.sent, f)
	return nil
}

func (s *fakeSender) Passive() bool { return s.passive }

func quietLogger() log.FieldLogger {
	l := log.New()
	l.SetOutput(io.Discard)
	return l
}

// heaterFrame returns a validated heater frame carrying data
func heaterFrame(c *qt.C, data []byte) *hwp.Frame {
	d := append([]byte(nil), data...)
	d[len(d)-1] = hwp.CalculateChecksum(d)
	for i := range d {
		d[i] = ^d[i]
	}
	f := hwp.NewFrame(d)
	c.Assert(hwp.ValidateFrame(f), qt.IsNil)
	return f
}

type fixture struct {
	client   *recordingClient
	sender   *fakeSender
	registry *heatpump.Registry
	model    *heatpump.Model
	bridge   *Bridge
}

func newFixture(c *qt.C, passive bool) *fixture {
	f := &fixture{
		client:   &recordingClient{},
		sender:   &fakeSender{passive: passive},
		registry: heatpump.NewDefaultRegistry(quietLogger()),
		model:    heatpump.NewModel(),
	}
	f.bridge = New(f.client, f.registry, f.model, f.sender, Config{Prefix: "pool/hp/"}, quietLogger())

	// Baselines: heating at 24.5 with any mode allowed, and CONFIG_5
	f.registry.Process(heaterFrame(c, []byte{
		hwp.TypeConfig1, 0, 0x15,
		hwp.EncodeTemperature(26), hwp.EncodeTemperature(24.5), hwp.EncodeTemperature(27),
		0, 0, 0, 0, 0, 0,
	}), f.model)
	f.registry.Process(heaterFrame(c, []byte{
		hwp.TypeConfig5, 0, 0x44, 0, 0, 0, 0, 0, 0, 0x01, 0x2C, 0,
	}), f.model)
	return f
}

func TestTopics(t *testing.T) {
	c := qt.New(t)
	b := New(&recordingClient{}, nil, heatpump.NewModel(), &fakeSender{}, Config{Prefix: "pool/hp/"}, quietLogger())
	c.Assert(b.Topic(TopicState), qt.Equals, "pool/hp/state")
	c.Assert(b.Topic(TopicAvailability), qt.Equals, "pool/hp/availability")
}

func TestPublishState(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, false)

	c.Assert(f.bridge.PublishState(), qt.IsNil)

	state, ok := f.client.last("pool/hp/state")
	c.Assert(ok, qt.IsTrue)
	c.Assert(state.retained, qt.IsTrue)

	var doc map[string]interface{}
	c.Assert(json.Unmarshal([]byte(state.payload), &doc), qt.IsNil)
	c.Assert(doc["target_temperature"], qt.Equals, 24.5)
	c.Assert(doc["online"], qt.Equals, true)

	avail, ok := f.client.last("pool/hp/availability")
	c.Assert(ok, qt.IsTrue)
	c.Assert(avail.payload, qt.Equals, PayloadOnline)
	c.Assert(avail.retained, qt.IsTrue)

	c.Run("offline after heater timeout", func(c *qt.C) {
		f.bridge.now = func() time.Time { return time.Now().Add(2 * heatpump.HeaterTimeout) }
		c.Assert(f.bridge.PublishState(), qt.IsNil)
		avail, _ := f.client.last("pool/hp/availability")
		c.Assert(avail.payload, qt.Equals, PayloadOffline)
	})
}

func TestSetViaSubscription(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, false)

	c.Assert(f.bridge.Subscribe(), qt.IsNil)
	c.Assert(f.client.subTopic, qt.Equals, "pool/hp/set/+")

	f.client.handler(nil, message{topic: "pool/hp/set/target", payload: []byte(" 28\n")})
	c.Assert(f.sender.sent, qt.HasLen, 1)
	c.Assert(f.sender.sent[0].Type(), qt.Equals, uint8(hwp.TypeConfig1))
	c.Assert(f.sender.sent[0].Source(), qt.Equals, hwp.SourceLocal)
}

func TestHandleSet(t *testing.T) {
	c := qt.New(t)
	tests := []struct {
		name   string
		value  string
		frames int
		err    string
	}{
		{SetMode, "cool", 1, ""},
		{SetMode, "dry", 0, `invalid mode "dry".*`},
		{SetTarget, "30", 1, ""},
		{SetTarget, "40", 0, `CONFIG_1: value out of range.*`},
		{SetTarget, "warm", 0, `invalid target "warm".*`},
		{SetFanMode, "high", 0, `waiting for first heat pump frame`},
		{SetEcoMode, "eco", 1, ""},
		{SetEcoMode, "normal", 0, ""},
		{SetFlowMeter, "enabled", 0, ""},
		{SetFlowMeter, "disabled", 1, ""},
		{"color", "blue", 0, `unknown set topic "color"`},
	}
	for _, tt := range tests {
		c.Run(tt.name+"="+tt.value, func(c *qt.C) {
			f := newFixture(c, false)
			err := f.bridge.HandleSet(tt.name, tt.value)
			if tt.err == "" {
				c.Assert(err, qt.IsNil)
			} else {
				c.Assert(err, qt.ErrorMatches, tt.err)
			}
			c.Assert(f.sender.sent, qt.HasLen, tt.frames)
		})
	}
}

func TestHandleSetNoBaseline(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, false)

	err := f.bridge.HandleSet(SetFanMode, "high")
	c.Assert(err, qt.ErrorIs, heatpump.ErrNoBaseline)
	c.Assert(f.sender.sent, qt.HasLen, 0)
}

func TestHandleSetRestricted(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, false)

	// Cooling only
	f.registry.Process(heaterFrame(c, []byte{
		hwp.TypeConfig1, 0, 0x01,
		hwp.EncodeTemperature(26), hwp.EncodeTemperature(24.5), hwp.EncodeTemperature(27),
		0, 0, 0, 0, 0, 0,
	}), f.model)

	err := f.bridge.HandleSet(SetMode, "heat")
	c.Assert(err, qt.ErrorMatches, `mode heat not allowed while restricted to cooling`)
	c.Assert(f.sender.sent, qt.HasLen, 0)
}

func TestHandleSetPassive(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, true)

	err := f.bridge.HandleSet(SetTarget, "28")
	c.Assert(err, qt.ErrorIs, bus.ErrPassive)
	c.Assert(f.sender.sent, qt.HasLen, 0)
}

func TestRunPublishesOnUpdate(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.bridge.Run(ctx)
		close(done)
	}()

	waitForCount := func(n int) {
		deadline := time.Now().Add(2 * time.Second)
		for f.client.count() < n {
			if time.Now().After(deadline) {
				c.Fatalf("expected %d publishes, got %d", n, f.client.count())
			}
			time.Sleep(time.Millisecond)
		}
	}

	// Initial state and availability
	waitForCount(2)
	f.model.Update(func(s *heatpump.State) {
		inlet := 26.5
		s.InletTemperature = &inlet
	})
	waitForCount(4)

	cancel()
	<-done
	avail, _ := f.client.last("pool/hp/availability")
	c.Assert(avail.payload, qt.Equals, PayloadOffline)
}
