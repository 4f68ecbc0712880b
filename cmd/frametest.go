// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/hwpbus/pkg/hwp"
)

var (
	frameTestTimeout int
)

var frameTestCmd = &cobra.Command{
	Use:   "frame_test",
	Short: "Test the line by waiting for a valid frame",
	Long: `Wait for a valid frame on the line until timeout.

This command opens the GPIO pin or capture probe and waits for any frame that
passes the checksum in either polarity. Dropped frames are counted but do
not end the test.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection error

Useful for checking the wiring and the probe before running the bridge.`,
	RunE: runFrameTest,
}

func init() {
	rootCmd.AddCommand(frameTestCmd)
	frameTestCmd.Flags().IntVar(&frameTestTimeout, "timeout", 10, "Timeout in seconds to wait for a frame")
}

func runFrameTest(cmd *cobra.Command, args []string) error {
	l, connInfo, err := OpenLine()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer l.Close()

	fmt.Printf("hwpbus - Frame Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", frameTestTimeout)
	fmt.Printf("Waiting for valid frame...\n\n")

	cfg := busConfig()
	cfg.Passive = true
	b, _, _ := newBus(l, cfg)

	frameChan := make(chan *hwp.Frame, 1)
	dropped := 0
	b.HandleFrames(func(f *hwp.Frame, err error) {
		if err != nil {
			dropped++
			return
		}
		select {
		case frameChan <- f:
		default:
		}
	})

	ctx, stop := signalContext()
	defer stop()
	if err := b.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	select {
	case f := <-frameChan:
		fmt.Printf("SUCCESS: Received valid frame\n")
		fmt.Printf("  Type: %s (0x%02X)\n", hwp.FormatFrameType(f), f.Type())
		fmt.Printf("  Source: %s\n", f.Source())
		fmt.Printf("  Length: %d bytes\n", f.Len())
		fmt.Printf("  Checksum: 0x%02X\n", f.Checksum())
		if dropped > 0 {
			fmt.Printf("  (dropped %d frames before sync)\n", dropped)
		}
		os.Exit(0)

	case <-lineDone(l):
		fmt.Fprintf(os.Stderr, "Read error: %v\n", probeErr(l))
		os.Exit(2)

	case <-ctx.Done():
		fmt.Fprintf(os.Stderr, "Interrupted\n")
		os.Exit(1)

	case <-time.After(time.Duration(frameTestTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid frame received within %d seconds\n", frameTestTimeout)
		os.Exit(1)
	}

	return nil
}

// probeErr returns why a probe stream ended, if the line is a probe
func probeErr(l any) error {
	if p, ok := l.(interface{ Err() error }); ok {
		return p.Err()
	}
	return nil
}
