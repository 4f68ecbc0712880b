// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"
	"golang.org/x/term"

	"github.com/Thermoquad/hwpbus/pkg/bus"
	"github.com/Thermoquad/hwpbus/pkg/heatpump"
	"github.com/Thermoquad/hwpbus/pkg/line"
)

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	// First check environment variable
	if pw := os.Getenv("HWPBUS_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if stdin is not a terminal
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// OpenLine opens the GPIO pin or capture probe selected by flags
func OpenLine() (bus.Line, string, error) {
	logger := log.StandardLogger()

	if gpioPin >= 0 {
		l, err := line.OpenGPIO(gpioPin, logger)
		if err != nil {
			return nil, "", err
		}
		return l, fmt.Sprintf("GPIO: pin %d", gpioPin), nil
	}

	if wsURL != "" {
		password := ""
		if wsUsername != "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return nil, "", err
			}
		}

		conn, err := line.OpenWebSocketConnection(wsURL, wsUsername, password, wsNoSSLVerify)
		if err != nil {
			return nil, "", err
		}
		return line.NewProbeLine(conn, logger), fmt.Sprintf("WebSocket: %s", wsURL), nil
	}

	if portName != "" {
		conn, err := line.OpenSerialConnection(portName, baudRate)
		if err != nil {
			return nil, "", err
		}
		return line.NewProbeLine(conn, logger), fmt.Sprintf("Serial: %s @ %d baud", portName, baudRate), nil
	}

	return nil, "", errors.New("one of --gpio, --port or --url must be specified")
}

// lineDone returns a channel closed when a probe stream ends. Lines without
// a stream never end on their own.
func lineDone(l bus.Line) <-chan struct{} {
	if p, ok := l.(interface{ Done() <-chan struct{} }); ok {
		return p.Done()
	}
	return nil
}

// busConfig returns the bus settings from the configuration file and flags
func busConfig() bus.Config {
	cfg := bus.DefaultConfig()
	if appConfig != nil {
		cfg.QueueDepth = appConfig.Bus.QueueDepth
		cfg.RepeatCount = appConfig.Bus.RepeatCount
		cfg.StartDelay = appConfig.Bus.StartDelay()
		cfg.SendInterval = appConfig.Bus.SendInterval()
	}
	cfg.Passive = passive
	return cfg
}

// newBus creates a bus with the default frame registry and an empty model
func newBus(l bus.Line, cfg bus.Config) (*bus.Bus, *heatpump.Registry, *heatpump.Model) {
	registry := heatpump.NewDefaultRegistry(log.StandardLogger())
	model := heatpump.NewModel()
	return bus.New(l, registry, model, cfg, log.StandardLogger()), registry, model
}

// signalContext is cancelled on Ctrl+C or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// waitLine blocks until ctx is done or the probe stream ends
func waitLine(ctx context.Context, l bus.Line) {
	select {
	case <-ctx.Done():
	case <-lineDone(l):
		log.Info("connection closed")
	}
}
