// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/hwpbus/internal/export"
	"github.com/Thermoquad/hwpbus/internal/mqttbridge"
)

const bridgeQoS = 1

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Run the bus with MQTT and Modbus integrations",
	Long: `Run the heat pump bus as a long-lived service.

The mqtt section of the configuration file publishes the heat pump state to a
broker and accepts commands on <prefix>/set/<name>. The modbus section copies
the state into holding registers of a Modbus TCP device at a fixed interval.

Both integrations are optional; with neither configured the bridge only keeps
the bus running and logs frames.

Example:
  hwpbus bridge --config /etc/hwpbus.yaml`,
	RunE: runBridge,
}

func init() {
	rootCmd.AddCommand(bridgeCmd)
}

func runBridge(cmd *cobra.Command, args []string) error {
	if appConfig == nil {
		return errors.New("--config is required")
	}

	l, connInfo, err := OpenLine()
	if err != nil {
		return err
	}
	defer l.Close()
	log.Infof("line open (%s)", connInfo)

	b, registry, state := newBus(l, busConfig())

	ctx, stop := signalContext()
	defer stop()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := b.Start(runCtx); err != nil {
		return err
	}

	var wg sync.WaitGroup

	if mc := appConfig.MQTT; mc.Enabled() {
		var current atomic.Pointer[mqttbridge.Bridge]
		client, err := mqttbridge.Dial(mqttbridge.DialOptions{
			Broker:   mc.Broker,
			ClientID: mc.ClientID,
			Username: mc.Username,
			Password: mc.Password,
			Prefix:   mc.TopicPrefix,
			QoS:      bridgeQoS,
		}, func(mqtt.Client) {
			// Subscriptions are lost on reconnect
			if br := current.Load(); br != nil {
				if err := br.Subscribe(); err != nil {
					log.WithError(err).Error("MQTT subscribe failed")
				}
			}
		}, log.StandardLogger())
		if err != nil {
			cancel()
			b.Wait()
			return err
		}
		defer client.Disconnect(250)

		br := mqttbridge.New(client, registry, state, b, mqttbridge.Config{
			Prefix:          mc.TopicPrefix,
			PublishInterval: mc.PublishInterval(),
			QoS:             bridgeQoS,
		}, log.WithField("component", "mqtt"))
		current.Store(br)
		if err := br.Subscribe(); err != nil {
			log.WithError(err).Error("MQTT subscribe failed")
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			br.Run(runCtx)
		}()
	}

	if mb := appConfig.Modbus; mb.Enabled() {
		client, err := export.NewEndpointClient(mb.Endpoint, mb.Timeout())
		if err != nil {
			cancel()
			wg.Wait()
			b.Wait()
			return err
		}
		defer client.Close()

		exp := export.New(client, state, export.Config{
			UnitID:   mb.UnitID,
			Address:  mb.Address,
			Interval: mb.Interval(),
		}, log.WithField("component", "modbus"))

		wg.Add(1)
		go func() {
			defer wg.Done()
			exp.Run(runCtx)
		}()
	}

	waitLine(runCtx, l)
	log.Info("shutting down")
	cancel()
	wg.Wait()
	b.Wait()

	stats := b.Statistics()
	log.Infof("frames: %d valid, %d dropped, %d sent, %d deferred",
		stats.ValidFrames, stats.Errors(), stats.SentFrames, stats.DeferredSends)
	return nil
}
