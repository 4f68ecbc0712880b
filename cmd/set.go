// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/hwpbus/pkg/bus"
	"github.com/Thermoquad/hwpbus/pkg/heatpump"
)

var (
	setMode      string
	setTarget    float64
	setFanMode   string
	setEcoMode   string
	setFlowMeter string
	setTimeout   int
)

var setCmd = &cobra.Command{
	Use:   "set",
	Short: "Send a one-shot command to the heat pump",
	Long: `Change heat pump settings and exit once the command has been sent.

The command waits until the heat pump has sent the frames the change is built
from, queues the command frames, and waits for the bus to transmit them in the
gap after the next controller broadcast.

Examples:
  hwpbus set --gpio 17 --mode heat --target 28
  hwpbus set --port /dev/ttyUSB0 --fan-mode ambient --eco-mode eco`,
	RunE: runSet,
}

func init() {
	rootCmd.AddCommand(setCmd)
	setCmd.Flags().StringVar(&setMode, "mode", "", "Operating mode (off, heat, cool, auto)")
	setCmd.Flags().Float64Var(&setTarget, "target", 0, "Target water temperature in °C")
	setCmd.Flags().StringVar(&setFanMode, "fan-mode", "", "Fan mode (low, high, ambient, scheduled, ambient_scheduled)")
	setCmd.Flags().StringVar(&setEcoMode, "eco-mode", "", "Defrost mode (eco, normal)")
	setCmd.Flags().StringVar(&setFlowMeter, "flow-meter", "", "Flow meter (enabled, disabled)")
	setCmd.Flags().IntVar(&setTimeout, "timeout", 180, "Seconds to wait for the command to be sent")
}

// buildChange collects the requested fields from flags
func buildChange(cmd *cobra.Command) (heatpump.Change, error) {
	var ch heatpump.Change
	if setMode != "" {
		m, err := heatpump.ParseMode(setMode)
		if err != nil {
			return ch, err
		}
		ch.Mode = &m
	}
	if cmd.Flags().Changed("target") {
		t := setTarget
		ch.Target = &t
	}
	if setFanMode != "" {
		f, err := heatpump.ParseFanMode(setFanMode)
		if err != nil {
			return ch, err
		}
		ch.FanMode = &f
	}
	if setEcoMode != "" {
		d, err := heatpump.ParseDefrostMode(setEcoMode)
		if err != nil {
			return ch, err
		}
		ch.DefrostEco = &d
	}
	if setFlowMeter != "" {
		on, err := heatpump.ParseEnabled(setFlowMeter)
		if err != nil {
			return ch, err
		}
		ch.FlowMeter = &on
	}
	if ch.IsEmpty() {
		return ch, errors.New("nothing to set: use --mode, --target, --fan-mode, --eco-mode or --flow-meter")
	}
	return ch, nil
}

func runSet(cmd *cobra.Command, args []string) error {
	ch, err := buildChange(cmd)
	if err != nil {
		return err
	}
	if passive {
		return bus.ErrPassive
	}

	l, connInfo, err := OpenLine()
	if err != nil {
		return err
	}
	defer l.Close()

	log.Infof("connected (%s)", connInfo)

	b, registry, state := newBus(l, busConfig())
	updates := state.Subscribe()

	sigCtx, stop := signalContext()
	defer stop()
	ctx, cancel := context.WithTimeout(sigCtx, time.Duration(setTimeout)*time.Second)
	defer cancel()

	if err := b.Start(ctx); err != nil {
		return err
	}
	defer b.Wait()
	defer cancel()

	log.Info("waiting for heat pump frames")
	for !registry.Ready(ch) {
		select {
		case <-updates:
		case <-lineDone(l):
			return errors.New("connection closed before the heat pump was heard")
		case <-ctx.Done():
			return fmt.Errorf("heat pump not heard: %w", ctx.Err())
		}
	}

	snap := state.Snapshot()
	if ch.Mode != nil {
		if r := snap.ModeRestriction(); !r.Allows(*ch.Mode) {
			return fmt.Errorf("mode %s not allowed while restricted to %s", *ch.Mode, r)
		}
	}

	frames, err := registry.RequestChange(ch, state)
	if err != nil {
		return err
	}
	if len(frames) == 0 {
		log.Info("heat pump already has the requested settings")
		return nil
	}

	sent := b.Statistics().SentFrames
	for _, f := range frames {
		if err := b.Send(f); err != nil {
			return err
		}
	}
	log.Infof("queued %d command frames", len(frames))

	return waitSent(ctx, b, sent+uint64(len(frames)))
}

// waitSent polls until the bus has transmitted want frames in total
func waitSent(ctx context.Context, b *bus.Bus, want uint64) error {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		if b.Statistics().SentFrames >= want {
			log.Info("command sent")
			return nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return fmt.Errorf("command not sent (%d still queued): %w", b.Pending(), ctx.Err())
		}
	}
}
