// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.bug.st/serial/enumerator"

	"github.com/Thermoquad/hwpbus/pkg/line"
)

var (
	discoveryTimeout int
	discoveryAll     bool
)

var discoveryCmd = &cobra.Command{
	Use:   "discovery",
	Short: "Discover capture probes on serial ports",
	Long: `List serial ports and listen on each for pulse records.

A port is reported as a probe when it streams at least one pulse record
within the timeout. Only USB ports are tried unless --all is given.

Examples:
  hwpbus discovery
  hwpbus discovery --all --timeout 5

Exit codes:
  0 - Discovery successful (at least one probe found)
  1 - Discovery failed (no probes)
  2 - Ports could not be listed`,
	RunE: runDiscovery,
}

func init() {
	rootCmd.AddCommand(discoveryCmd)
	discoveryCmd.Flags().IntVar(&discoveryTimeout, "timeout", 3, "Seconds to listen on each port")
	discoveryCmd.Flags().BoolVar(&discoveryAll, "all", false, "Also try ports that are not USB")
}

func runDiscovery(cmd *cobra.Command, args []string) error {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list serial ports: %v\n", err)
		os.Exit(2)
	}

	fmt.Printf("hwpbus - Probe Discovery\n")
	fmt.Printf("Listening %d seconds per port at %d baud\n\n", discoveryTimeout, baudRate)

	found := 0
	for _, port := range ports {
		if !port.IsUSB && !discoveryAll {
			continue
		}

		desc := port.Name
		if port.IsUSB {
			desc = fmt.Sprintf("%s [%s:%s] %s", port.Name, port.VID, port.PID, port.Product)
		}

		pulses, err := probePort(port.Name, time.Duration(discoveryTimeout)*time.Second)
		switch {
		case err != nil:
			fmt.Printf("  %-40s error: %v\n", desc, err)
		case pulses == 0:
			fmt.Printf("  %-40s silent\n", desc)
		default:
			found++
			fmt.Printf("  %-40s PROBE (%d pulses)\n", desc, pulses)
		}
	}

	fmt.Println()
	if found == 0 {
		fmt.Println("No probes found")
		os.Exit(1)
	}
	fmt.Printf("Found %d probe(s)\n", found)
	return nil
}

// probePort counts the edges a port reports within timeout
func probePort(name string, timeout time.Duration) (int64, error) {
	conn, err := line.OpenSerialConnection(name, baudRate)
	if err != nil {
		return 0, err
	}

	var edges atomic.Int64
	l := line.NewProbeLine(conn, log.WithField("port", name))
	if err := l.Watch(func(bool, time.Time) { edges.Add(1) }); err != nil {
		l.Close()
		return 0, err
	}

	select {
	case <-time.After(timeout):
	case <-l.Done():
	}
	l.Close()
	<-l.Done()
	return edges.Load(), nil
}
