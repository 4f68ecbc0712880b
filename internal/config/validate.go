// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	log "github.com/sirupsen/logrus"
)

// MaxRepeatCount bounds bus.repeat_count so a burst fits the controller's quiet period
const MaxRepeatCount = 20

// Validate checks configuration correctness.
// It performs declarative validation only and does not mutate cfg.
func Validate(cfg *Config) error {
	// ------------------------------------------------------------
	// LINE
	// ------------------------------------------------------------

	selected := 0
	if cfg.Line.GPIO != nil {
		selected++
		if *cfg.Line.GPIO < 0 {
			return fmt.Errorf("line: gpio must not be negative, got %d", *cfg.Line.GPIO)
		}
	}
	if cfg.Line.Port != "" {
		selected++
	}
	if cfg.Line.URL != "" {
		selected++
		u, err := url.Parse(cfg.Line.URL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			return fmt.Errorf("line: url %q must use ws:// or wss://", cfg.Line.URL)
		}
	}
	if selected > 1 {
		return fmt.Errorf("line: gpio, port and url are mutually exclusive")
	}
	if cfg.Line.Baud < 0 {
		return fmt.Errorf("line: baud must not be negative, got %d", cfg.Line.Baud)
	}

	// ------------------------------------------------------------
	// BUS
	// ------------------------------------------------------------

	if cfg.Bus.QueueDepth < 0 {
		return fmt.Errorf("bus: queue_depth must not be negative, got %d", cfg.Bus.QueueDepth)
	}
	if cfg.Bus.RepeatCount < 0 || cfg.Bus.RepeatCount > MaxRepeatCount {
		return fmt.Errorf("bus: repeat_count must be between 1 and %d (0 for the default), got %d", MaxRepeatCount, cfg.Bus.RepeatCount)
	}
	if cfg.Bus.StartDelayMs < 0 || cfg.Bus.SendIntervalMs < 0 {
		return fmt.Errorf("bus: delays must not be negative")
	}

	// ------------------------------------------------------------
	// MQTT (OPT-IN)
	// ------------------------------------------------------------

	if cfg.MQTT.Broker != "" {
		u, err := url.Parse(cfg.MQTT.Broker)
		if err != nil || u.Host == "" {
			return fmt.Errorf("mqtt: invalid broker %q", cfg.MQTT.Broker)
		}
		switch u.Scheme {
		case "tcp", "ssl", "tls", "ws", "wss", "mqtt", "mqtts":
		default:
			return fmt.Errorf("mqtt: unsupported broker scheme %q", u.Scheme)
		}
	}
	if strings.ContainsAny(cfg.MQTT.TopicPrefix, "+#") {
		return fmt.Errorf("mqtt: topic_prefix %q must not contain wildcards", cfg.MQTT.TopicPrefix)
	}
	if cfg.MQTT.PublishIntervalMs < 0 {
		return fmt.Errorf("mqtt: publish_interval_ms must not be negative")
	}

	// ------------------------------------------------------------
	// MODBUS (OPT-IN)
	// ------------------------------------------------------------

	if cfg.Modbus.Endpoint != "" {
		if _, _, err := net.SplitHostPort(cfg.Modbus.Endpoint); err != nil {
			return fmt.Errorf("modbus: endpoint %q must be host:port: %w", cfg.Modbus.Endpoint, err)
		}
	}
	if cfg.Modbus.IntervalMs < 0 || cfg.Modbus.TimeoutMs < 0 {
		return fmt.Errorf("modbus: intervals must not be negative")
	}

	// ------------------------------------------------------------
	// LOG
	// ------------------------------------------------------------

	if cfg.Log.Level != "" {
		if _, err := log.ParseLevel(cfg.Log.Level); err != nil {
			return fmt.Errorf("log: %w", err)
		}
	}

	return nil
}
