// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package mqttbridge publishes the heat pump state over MQTT and turns set
// topics into bus commands.
package mqttbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/Thermoquad/hwpbus/pkg/bus"
	"github.com/Thermoquad/hwpbus/pkg/heatpump"
	"github.com/Thermoquad/hwpbus/pkg/hwp"
)

// Topic suffixes below the prefix
const (
	TopicState        = "state"
	TopicAvailability = "availability"
	TopicSet          = "set"

	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// Settable names, published as <prefix>/set/<name>
const (
	SetMode      = "mode"
	SetTarget    = "target"
	SetFanMode   = "fan_mode"
	SetEcoMode   = "eco_mode"
	SetFlowMeter = "flow_meter"
)

const tokenTimeout = 5 * time.Second

// Client is the part of the paho client the bridge uses
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
}

// Sender queues command frames on the bus
type Sender interface {
	Send(f *hwp.Frame) error
	Passive() bool
}

// Config holds the bridge settings
type Config struct {
	Prefix          string
	PublishInterval time.Duration
	QoS             byte
}

// Bridge connects the model and registry to an MQTT broker
type Bridge struct {
	client   Client
	registry *heatpump.Registry
	model    *heatpump.Model
	sender   Sender
	cfg      Config
	log      log.FieldLogger
	now      func() time.Time
}

// statePayload is the JSON document published on the state topic
type statePayload struct {
	heatpump.State
	Online bool `json:"online"`
}

// New creates a bridge. A nil logger uses the standard logger.
func New(client Client, registry *heatpump.Registry, model *heatpump.Model, sender Sender, cfg Config, logger log.FieldLogger) *Bridge {
	if logger == nil {
		logger = log.StandardLogger()
	}
	if cfg.PublishInterval <= 0 {
		cfg.PublishInterval = 30 * time.Second
	}
	cfg.Prefix = strings.TrimSuffix(cfg.Prefix, "/")
	return &Bridge{
		client:   client,
		registry: registry,
		model:    model,
		sender:   sender,
		cfg:      cfg,
		log:      logger,
		now:      time.Now,
	}
}

// Topic returns the full topic for suffix
func (b *Bridge) Topic(suffix string) string {
	return b.cfg.Prefix + "/" + suffix
}

func wait(t mqtt.Token) error {
	if !t.WaitTimeout(tokenTimeout) {
		return errors.New("mqtt: timed out")
	}
	return t.Error()
}

// Subscribe registers the set topics. Call it from the connect handler so
// subscriptions survive reconnects.
func (b *Bridge) Subscribe() error {
	topic := b.Topic(TopicSet + "/+")
	if err := wait(b.client.Subscribe(topic, b.cfg.QoS, b.onMessage)); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	b.log.Infof("subscribed to %s", topic)
	return nil
}

func (b *Bridge) onMessage(_ mqtt.Client, msg mqtt.Message) {
	name := strings.TrimPrefix(msg.Topic(), b.Topic(TopicSet)+"/")
	payload := strings.TrimSpace(string(msg.Payload()))
	entry := b.log.WithFields(log.Fields{"topic": msg.Topic(), "payload": payload})

	if err := b.HandleSet(name, payload); err != nil {
		entry.WithError(err).Warn("set command rejected")
		return
	}
	entry.Info("set command queued")
}

// HandleSet applies one set command: it parses the value, builds the
// command frames against the current model and queues them
func (b *Bridge) HandleSet(name, value string) error {
	if b.sender.Passive() {
		return bus.ErrPassive
	}

	ch, err := b.parseChange(name, value)
	if err != nil {
		return err
	}

	frames, err := b.registry.RequestChange(ch, b.model)
	if err != nil {
		return err
	}
	for _, f := range frames {
		if err := b.sender.Send(f); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bridge) parseChange(name, value string) (heatpump.Change, error) {
	switch name {
	case SetMode:
		mode, err := heatpump.ParseMode(value)
		if err != nil {
			return heatpump.Change{}, err
		}
		state := b.model.Snapshot()
		if r := state.ModeRestriction(); !r.Allows(mode) {
			return heatpump.Change{}, fmt.Errorf("mode %s not allowed while restricted to %s", mode, r)
		}
		return heatpump.SetMode(mode), nil

	case SetTarget:
		t, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return heatpump.Change{}, fmt.Errorf("invalid target %q: %w", value, err)
		}
		return heatpump.SetTarget(t), nil

	case SetFanMode:
		fan, err := heatpump.ParseFanMode(value)
		if err != nil {
			return heatpump.Change{}, err
		}
		return heatpump.SetFanMode(fan), nil

	case SetEcoMode:
		d, err := heatpump.ParseDefrostMode(value)
		if err != nil {
			return heatpump.Change{}, err
		}
		return heatpump.SetDefrost(d), nil

	case SetFlowMeter:
		on, err := heatpump.ParseEnabled(value)
		if err != nil {
			return heatpump.Change{}, err
		}
		return heatpump.SetFlowMeter(on), nil
	}
	return heatpump.Change{}, fmt.Errorf("unknown set topic %q", name)
}

// PublishState publishes the retained state document and the availability
func (b *Bridge) PublishState() error {
	state := b.model.Snapshot()
	online := state.HeaterOnline(b.now())

	data, err := json.Marshal(statePayload{State: state, Online: online})
	if err != nil {
		return err
	}
	if err := wait(b.client.Publish(b.Topic(TopicState), b.cfg.QoS, true, data)); err != nil {
		return fmt.Errorf("publish state: %w", err)
	}
	return b.publishAvailability(online)
}

func (b *Bridge) publishAvailability(online bool) error {
	payload := PayloadOffline
	if online {
		payload = PayloadOnline
	}
	if err := wait(b.client.Publish(b.Topic(TopicAvailability), b.cfg.QoS, true, payload)); err != nil {
		return fmt.Errorf("publish availability: %w", err)
	}
	return nil
}

// Run publishes after every model update and every publish interval until
// ctx is done, then marks the heat pump offline
func (b *Bridge) Run(ctx context.Context) {
	updates := b.model.Subscribe()
	ticker := time.NewTicker(b.cfg.PublishInterval)
	defer ticker.Stop()

	for {
		if err := b.PublishState(); err != nil {
			b.log.WithError(err).Warn("state publish failed")
		}
		select {
		case <-ctx.Done():
			if err := b.publishAvailability(false); err != nil {
				b.log.WithError(err).Debug("offline publish failed")
			}
			return
		case <-updates:
		case <-ticker.C:
		}
	}
}
