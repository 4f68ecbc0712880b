// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/hwpbus/internal/config"
)

var (
	// Serial probe flags
	portName string
	baudRate int

	// WebSocket probe flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Direct GPIO flag
	gpioPin int

	configPath string
	logLevel   string
	passive    bool

	// appConfig is set when --config is given
	appConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "hwpbus",
	Short: "Pool heat pump bus tool",
	Long: `hwpbus - A CLI tool for monitoring and controlling pool heat pumps on their
single-wire pulse bus.

Provides commands for frame logging, error detection, interactive control and
a long-running bridge to MQTT and Modbus.

Line modes:
  GPIO:      --gpio 17
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]

Serial and WebSocket connect to a capture probe that streams pulse timings.

For WebSocket authentication, the password is read from the HWPBUS_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	// Serial probe flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port of the capture probe")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", config.DefaultBaud, "Baud rate (serial only)")

	// WebSocket probe flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL of the capture probe (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().IntVarP(&gpioPin, "gpio", "g", -1, "GPIO pin wired to the bus")

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", config.DefaultLogLevel, "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&passive, "passive", false, "Listen only, never transmit")
}

// setup loads the configuration file and applies it under any explicit flags
func setup(cmd *cobra.Command, args []string) error {
	if configPath != "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		appConfig = cfg
		applyConfig(cmd, cfg)
	}

	level, err := log.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	return nil
}

func applyConfig(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if !flags.Changed("gpio") && cfg.Line.GPIO != nil {
		gpioPin = *cfg.Line.GPIO
	}
	if !flags.Changed("port") && cfg.Line.Port != "" {
		portName = cfg.Line.Port
	}
	if !flags.Changed("baud") && cfg.Line.Baud != 0 {
		baudRate = cfg.Line.Baud
	}
	if !flags.Changed("url") && cfg.Line.URL != "" {
		wsURL = cfg.Line.URL
	}
	if !flags.Changed("username") && cfg.Line.Username != "" {
		wsUsername = cfg.Line.Username
	}
	if !flags.Changed("no-ssl-verify") {
		wsNoSSLVerify = cfg.Line.NoSSLVerify
	}
	if !flags.Changed("log-level") && cfg.Log.Level != "" {
		logLevel = cfg.Log.Level
	}
	if !flags.Changed("passive") {
		passive = cfg.Bus.Passive
	}
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
