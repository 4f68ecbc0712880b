// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/hwpbus/pkg/hwp"
)

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Interactive TUI for controlling the heat pump",
	Long: `Control the heat pump via an interactive terminal UI.

This command provides a TUI for monitoring and controlling a heat pump over a
GPIO pin or a capture probe.

Features:
  - Live heat pump state (mode, target, water temperatures)
  - Mode selection, limited to the modes the heat pump allows
  - Target temperature entry, limited to the reported heating range
  - Statistics tracking
  - Event logging

Controls unlock once the heat pump has sent the frames a command is built
from. Commands are queued and sent in the gap after the next controller
broadcast. Tab switches between the mode list and the target field.`,
	RunE: runControl,
}

func init() {
	rootCmd.AddCommand(controlCmd)
}

func runControl(cmd *cobra.Command, args []string) error {
	l, connInfo, err := OpenLine()
	if err != nil {
		return err
	}
	defer l.Close()

	b, registry, state := newBus(l, busConfig())

	ctx, stop := signalContext()
	defer stop()

	m := initialControlModel(connInfo, b, registry, state)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))

	b.HandleFrames(func(f *hwp.Frame, err error) {
		p.Send(frameMsg{frame: f, err: err})
	})

	log.AddHook(&logHook{p: p})
	log.SetOutput(io.Discard)
	defer func() {
		log.StandardLogger().ReplaceHooks(make(log.LevelHooks))
		log.SetOutput(os.Stderr)
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := b.Start(runCtx); err != nil {
		return err
	}
	go func() {
		waitLine(runCtx, l)
		if runCtx.Err() == nil {
			p.Send(lineClosedMsg{})
		}
	}()

	_, err = p.Run()
	cancel()
	b.Wait()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("TUI error: %w", err)
	}
	if n := b.Pending(); n > 0 {
		log.Warnf("%d queued commands were not sent", n)
	}
	return nil
}
