// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/hwpbus/pkg/line"
)

var (
	wsPingTimeout int
	wsPingCount   int
)

var wsPingCmd = &cobra.Command{
	Use:   "ws_ping",
	Short: "Test a WebSocket probe with ping round trips",
	Long: `Send WebSocket pings to the capture probe and wait for each pong.

Pulse records keep streaming while pinging, so this also shows whether the
probe is hearing the bus.

This is useful for verifying:
  - WebSocket connection is established
  - HTTP Basic authentication works
  - The probe answers promptly enough to drive the line

Exit codes:
  0 - All pings successful
  1 - One or more pings failed/timed out
  2 - Connection error`,
	RunE: runWsPing,
}

func init() {
	rootCmd.AddCommand(wsPingCmd)
	wsPingCmd.Flags().IntVar(&wsPingTimeout, "timeout", 5, "Timeout in seconds for each ping")
	wsPingCmd.Flags().IntVar(&wsPingCount, "count", 3, "Number of pings to send")
}

func runWsPing(cmd *cobra.Command, args []string) error {
	if wsURL == "" {
		return errors.New("--url must be specified")
	}

	password := ""
	if wsUsername != "" {
		var err error
		password, err = GetPassword()
		if err != nil {
			return err
		}
	}

	conn, err := line.OpenWebSocketConnection(wsURL, wsUsername, password, wsNoSSLVerify)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	l := line.NewProbeLine(conn, log.StandardLogger())
	defer l.Close()

	fmt.Printf("hwpbus - WebSocket Ping Test\n")
	fmt.Printf("Connection: WebSocket: %s\n", wsURL)
	fmt.Printf("Timeout: %d seconds per ping\n", wsPingTimeout)
	fmt.Printf("Count: %d pings\n\n", wsPingCount)

	// The read loop must run for pongs to be processed
	edges := 0
	if err := l.Watch(func(bool, time.Time) { edges++ }); err != nil {
		return err
	}

	successCount := 0
	failCount := 0
	var total time.Duration

	for i := 1; i <= wsPingCount; i++ {
		fmt.Printf("Ping %d/%d: ", i, wsPingCount)

		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(wsPingTimeout)*time.Second)
		rtt, err := conn.Ping(ctx)
		cancel()
		if err != nil {
			fmt.Printf("FAILED: %v\n", err)
			failCount++
		} else {
			fmt.Printf("OK (%s)\n", rtt.Round(time.Microsecond))
			successCount++
			total += rtt
		}

		if i < wsPingCount {
			time.Sleep(time.Second)
		}
	}

	fmt.Printf("\nResults: %d/%d successful", successCount, wsPingCount)
	if successCount > 0 {
		fmt.Printf(", avg %s", (total / time.Duration(successCount)).Round(time.Microsecond))
	}
	fmt.Println()

	l.Close()
	<-l.Done()
	fmt.Printf("Edges seen while pinging: %d\n", edges)

	if failCount > 0 {
		os.Exit(1)
	}
	return nil
}
