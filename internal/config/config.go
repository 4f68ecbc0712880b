// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the YAML configuration used by the long running commands.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// MQTTPasswordEnv overrides mqtt.password when set
const MQTTPasswordEnv = "HWPBUS_MQTT_PASSWORD"

type Config struct {
	Line   LineConfig   `yaml:"line"`
	Bus    BusConfig    `yaml:"bus"`
	MQTT   MQTTConfig   `yaml:"mqtt"`
	Modbus ModbusConfig `yaml:"modbus"`
	Log    LogConfig    `yaml:"log"`
}

// ---- LINE ----

// LineConfig selects exactly one line: a GPIO pin, a serial probe or a websocket probe
type LineConfig struct {
	GPIO *int `yaml:"gpio"`

	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`

	URL         string `yaml:"url"`
	Username    string `yaml:"username"`
	NoSSLVerify bool   `yaml:"no_ssl_verify"`
}

// Configured reports whether any line is selected
func (l LineConfig) Configured() bool {
	return l.GPIO != nil || l.Port != "" || l.URL != ""
}

// ---- BUS ----

type BusConfig struct {
	QueueDepth     int  `yaml:"queue_depth"`
	RepeatCount    int  `yaml:"repeat_count"`
	Passive        bool `yaml:"passive"`
	StartDelayMs   int  `yaml:"start_delay_ms"`
	SendIntervalMs int  `yaml:"send_interval_ms"`
}

func (b BusConfig) StartDelay() time.Duration {
	return time.Duration(b.StartDelayMs) * time.Millisecond
}

func (b BusConfig) SendInterval() time.Duration {
	return time.Duration(b.SendIntervalMs) * time.Millisecond
}

// ---- MQTT ----

// MQTTConfig enables the MQTT bridge when Broker is set
type MQTTConfig struct {
	Broker            string `yaml:"broker"`
	ClientID          string `yaml:"client_id"`
	Username          string `yaml:"username"`
	Password          string `yaml:"password"`
	TopicPrefix       string `yaml:"topic_prefix"`
	PublishIntervalMs int    `yaml:"publish_interval_ms"`
}

func (m MQTTConfig) Enabled() bool {
	return m.Broker != ""
}

func (m MQTTConfig) PublishInterval() time.Duration {
	return time.Duration(m.PublishIntervalMs) * time.Millisecond
}

// ---- MODBUS ----

// ModbusConfig enables the holding register export when Endpoint is set
type ModbusConfig struct {
	Endpoint   string `yaml:"endpoint"`
	UnitID     uint8  `yaml:"unit_id"`
	Address    uint16 `yaml:"address"`
	IntervalMs int    `yaml:"interval_ms"`
	TimeoutMs  int    `yaml:"timeout_ms"`
}

func (m ModbusConfig) Enabled() bool {
	return m.Endpoint != ""
}

func (m ModbusConfig) Interval() time.Duration {
	return time.Duration(m.IntervalMs) * time.Millisecond
}

func (m ModbusConfig) Timeout() time.Duration {
	return time.Duration(m.TimeoutMs) * time.Millisecond
}

// ---- LOG ----

type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads, validates and normalizes the configuration at path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML, rejecting unknown keys, then validates and normalizes it
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}

	if pw := os.Getenv(MQTTPasswordEnv); pw != "" {
		cfg.MQTT.Password = pw
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	Normalize(&cfg)
	return &cfg, nil
}
