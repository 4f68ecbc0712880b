// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mqttbridge

import (
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// DialOptions configures the broker connection
type DialOptions struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Prefix   string
	QoS      byte
}

// Dial connects to the broker with auto reconnect. onConnect runs after
// every (re)connect. The availability topic is set as the last will.
func Dial(opts DialOptions, onConnect func(mqtt.Client), logger log.FieldLogger) (mqtt.Client, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}

	o := mqtt.NewClientOptions()
	o.AddBroker(opts.Broker)
	if opts.Username != "" {
		o.SetUsername(opts.Username)
		o.SetPassword(opts.Password)
	}
	o.SetClientID(opts.ClientID)
	o.SetAutoReconnect(true)
	o.SetWill(opts.Prefix+"/"+TopicAvailability, PayloadOffline, opts.QoS, true)
	o.SetOnConnectHandler(func(c mqtt.Client) {
		logger.Infof("connected to MQTT broker %s", opts.Broker)
		if onConnect != nil {
			onConnect(c)
		}
	})
	o.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.WithError(err).Warn("MQTT connection lost")
	})

	client := mqtt.NewClient(o)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", opts.Broker, token.Error())
	}
	return client, nil
}
