// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/hwpbus/pkg/bus"
	"github.com/Thermoquad/hwpbus/pkg/heatpump"
	"github.com/Thermoquad/hwpbus/pkg/hwp"
)

var changesOnly bool

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw frame log in human-readable format",
	Long: `Continuously decode and display heat pump bus frames as they arrive.

Each frame is shown with timestamp, source, frame type and hex bytes, tagged
New, Chg or Same against the last frame of its type. Dropped frames are shown
with the reason they were rejected.

The bus is never driven by this command.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().BoolVar(&changesOnly, "changes", false, "Only show new and changed frames")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	l, connInfo, err := OpenLine()
	if err != nil {
		return err
	}
	defer l.Close()

	fmt.Printf("hwpbus - Raw Frame Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	// The bus only decodes; frames are classified here so the status can be shown
	cfg := busConfig()
	cfg.Passive = true
	b := bus.New(l, nil, nil, cfg, log.StandardLogger())
	registry := heatpump.NewDefaultRegistry(log.StandardLogger())
	state := heatpump.NewModel()

	b.HandleFrames(func(f *hwp.Frame, err error) {
		if err != nil {
			fmt.Printf("[ERROR] %v\n", err)
			return
		}
		_, status := registry.Process(f, state)
		if changesOnly && status == heatpump.StatusSame {
			return
		}
		fmt.Printf("%-4s %s\n", status, hwp.FormatFrame(f))
	})

	ctx, stop := signalContext()
	defer stop()
	if err := b.Start(ctx); err != nil {
		return err
	}
	waitLine(ctx, l)
	stop()
	b.Wait()
	return nil
}
