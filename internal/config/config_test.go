// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"os"
	"path/filepath"
	"testing"

	qt "github.com/frankban/quicktest"
)

const fullConfig = `
line:
  port: /dev/ttyUSB0
bus:
  repeat_count: 4
  passive: true
mqtt:
  broker: tcp://localhost:1883
  topic_prefix: pool/heatpump/
modbus:
  endpoint: 192.168.1.20:502
  address: 100
log:
  level: debug
`

func intPtr(v int) *int { return &v }

func TestParseAppliesDefaults(t *testing.T) {
	c := qt.New(t)
	cfg, err := Parse([]byte(fullConfig))
	c.Assert(err, qt.IsNil)

	c.Assert(cfg.Line.Port, qt.Equals, "/dev/ttyUSB0")
	c.Assert(cfg.Line.Baud, qt.Equals, DefaultBaud)
	c.Assert(cfg.Line.Configured(), qt.IsTrue)

	c.Assert(cfg.Bus.RepeatCount, qt.Equals, 4)
	c.Assert(cfg.Bus.Passive, qt.IsTrue)
	c.Assert(cfg.Bus.QueueDepth, qt.Equals, DefaultQueueDepth)
	c.Assert(cfg.Bus.StartDelay().Seconds(), qt.Equals, 15.0)
	c.Assert(cfg.Bus.SendInterval().Seconds(), qt.Equals, 10.0)

	c.Assert(cfg.MQTT.Enabled(), qt.IsTrue)
	c.Assert(cfg.MQTT.TopicPrefix, qt.Equals, "pool/heatpump")
	c.Assert(cfg.MQTT.ClientID, qt.Equals, DefaultClientID)
	c.Assert(cfg.MQTT.PublishInterval().Seconds(), qt.Equals, 30.0)

	c.Assert(cfg.Modbus.Enabled(), qt.IsTrue)
	c.Assert(cfg.Modbus.UnitID, qt.Equals, uint8(1))
	c.Assert(cfg.Modbus.Address, qt.Equals, uint16(100))
	c.Assert(cfg.Modbus.Interval().Seconds(), qt.Equals, 5.0)

	c.Assert(cfg.Log.Level, qt.Equals, "debug")
}

func TestParseEmpty(t *testing.T) {
	c := qt.New(t)
	cfg, err := Parse(nil)
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.Line.Configured(), qt.IsFalse)
	c.Assert(cfg.MQTT.Enabled(), qt.IsFalse)
	c.Assert(cfg.Modbus.Enabled(), qt.IsFalse)
	c.Assert(cfg.Log.Level, qt.Equals, DefaultLogLevel)
	c.Assert(cfg.MQTT.TopicPrefix, qt.Equals, DefaultTopicPrefix)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	c := qt.New(t)
	_, err := Parse([]byte("bus:\n  repeats: 3\n"))
	c.Assert(err, qt.ErrorMatches, `(?s)invalid YAML: .*repeats.*`)
}

func TestMQTTPasswordFromEnvironment(t *testing.T) {
	c := qt.New(t)
	c.Setenv(MQTTPasswordEnv, "s3cret")
	cfg, err := Parse([]byte("mqtt:\n  broker: tcp://broker:1883\n  password: plain\n"))
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.MQTT.Password, qt.Equals, "s3cret")
}

func TestLoad(t *testing.T) {
	c := qt.New(t)
	path := filepath.Join(c.TempDir(), "hwpbus.yaml")
	c.Assert(os.WriteFile(path, []byte(fullConfig), 0o600), qt.IsNil)

	cfg, err := Load(path)
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.Bus.RepeatCount, qt.Equals, 4)

	_, err = Load(filepath.Join(c.TempDir(), "missing.yaml"))
	c.Assert(err, qt.ErrorMatches, `failed to read config: .*`)
}

func TestValidate(t *testing.T) {
	c := qt.New(t)
	tests := []struct {
		name string
		cfg  Config
		err  string
	}{
		{"empty", Config{}, ""},
		{"gpio", Config{Line: LineConfig{GPIO: intPtr(17)}}, ""},
		{"negative gpio", Config{Line: LineConfig{GPIO: intPtr(-1)}}, `line: gpio must not be negative.*`},
		{"two lines", Config{Line: LineConfig{GPIO: intPtr(4), Port: "/dev/ttyUSB0"}}, `line: gpio, port and url are mutually exclusive`},
		{"http url", Config{Line: LineConfig{URL: "http://probe.local/pulses"}}, `line: url .* must use ws:// or wss://`},
		{"repeat too high", Config{Bus: BusConfig{RepeatCount: MaxRepeatCount + 1}}, `bus: repeat_count .*`},
		{"negative queue", Config{Bus: BusConfig{QueueDepth: -1}}, `bus: queue_depth .*`},
		{"broker scheme", Config{MQTT: MQTTConfig{Broker: "udp://broker:1883"}}, `mqtt: unsupported broker scheme "udp"`},
		{"wildcard prefix", Config{MQTT: MQTTConfig{TopicPrefix: "pool/#"}}, `mqtt: topic_prefix .* wildcards`},
		{"modbus endpoint", Config{Modbus: ModbusConfig{Endpoint: "plc.local"}}, `modbus: endpoint "plc.local" must be host:port.*`},
		{"log level", Config{Log: LogConfig{Level: "loud"}}, `log: .*`},
	}
	for _, tt := range tests {
		c.Run(tt.name, func(c *qt.C) {
			err := Validate(&tt.cfg)
			if tt.err == "" {
				c.Assert(err, qt.IsNil)
				return
			}
			c.Assert(err, qt.ErrorMatches, tt.err)
		})
	}
}

func TestValidateDoesNotMutate(t *testing.T) {
	c := qt.New(t)
	cfg := Config{Line: LineConfig{Port: "/dev/ttyUSB0"}}
	c.Assert(Validate(&cfg), qt.IsNil)
	c.Assert(cfg.Line.Baud, qt.Equals, 0)
	c.Assert(cfg.Bus.RepeatCount, qt.Equals, 0)
}
