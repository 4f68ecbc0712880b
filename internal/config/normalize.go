// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

// Defaults applied by Normalize
const (
	DefaultBaud              = 115200
	DefaultQueueDepth        = 8
	DefaultRepeatCount       = 8
	DefaultStartDelayMs      = 15000
	DefaultSendIntervalMs    = 10000
	DefaultTopicPrefix       = "hwpbus"
	DefaultClientID          = "hwpbus"
	DefaultPublishIntervalMs = 30000
	DefaultModbusIntervalMs  = 5000
	DefaultModbusTimeoutMs   = 1000
	DefaultLogLevel          = "info"
)

// Normalize fills defaults. It must be called only after Validate.
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Line.Port != "" && cfg.Line.Baud == 0 {
		cfg.Line.Baud = DefaultBaud
	}

	if cfg.Bus.QueueDepth == 0 {
		cfg.Bus.QueueDepth = DefaultQueueDepth
	}
	if cfg.Bus.RepeatCount == 0 {
		cfg.Bus.RepeatCount = DefaultRepeatCount
	}
	if cfg.Bus.StartDelayMs == 0 {
		cfg.Bus.StartDelayMs = DefaultStartDelayMs
	}
	if cfg.Bus.SendIntervalMs == 0 {
		cfg.Bus.SendIntervalMs = DefaultSendIntervalMs
	}

	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = DefaultTopicPrefix
	}
	for len(cfg.MQTT.TopicPrefix) > 1 && cfg.MQTT.TopicPrefix[len(cfg.MQTT.TopicPrefix)-1] == '/' {
		cfg.MQTT.TopicPrefix = cfg.MQTT.TopicPrefix[:len(cfg.MQTT.TopicPrefix)-1]
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = DefaultClientID
	}
	if cfg.MQTT.PublishIntervalMs == 0 {
		cfg.MQTT.PublishIntervalMs = DefaultPublishIntervalMs
	}

	if cfg.Modbus.IntervalMs == 0 {
		cfg.Modbus.IntervalMs = DefaultModbusIntervalMs
	}
	if cfg.Modbus.TimeoutMs == 0 {
		cfg.Modbus.TimeoutMs = DefaultModbusTimeoutMs
	}
	if cfg.Modbus.UnitID == 0 {
		cfg.Modbus.UnitID = 1
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
}
