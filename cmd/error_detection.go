// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/hwpbus/pkg/bus"
	"github.com/Thermoquad/hwpbus/pkg/heatpump"
	"github.com/Thermoquad/hwpbus/pkg/hwp"
)

var (
	showAll       bool
	statsInterval int
	useTUI        bool
)

var errorDetectionCmd = &cobra.Command{
	Use:   "error_detection",
	Short: "Detect and analyze dropped frames and errors",
	Long: `Track dropped frames with statistics.

This command validates each frame and detects:
  - Checksum failures in both polarities
  - Frames that are neither 9 nor 12 bytes
  - Overflows past 12 bytes
  - Collisions (pulses that match no symbol)
  - Statistics and trends (frame rate, error rate, heat pump and controller share)

By default, only errors are displayed. Use --show-all to display valid frames too.

Frames are validated in real-time, with errors highlighted immediately and
periodic statistics summaries displayed at configurable intervals.

The bus is never driven by this command.`,
	RunE: runErrorDetection,
}

func init() {
	rootCmd.AddCommand(errorDetectionCmd)
	errorDetectionCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all frames (not just errors)")
	errorDetectionCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	errorDetectionCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
}

func runErrorDetection(cmd *cobra.Command, args []string) error {
	l, connInfo, err := OpenLine()
	if err != nil {
		return err
	}
	defer l.Close()

	cfg := busConfig()
	cfg.Passive = true
	b, _, state := newBus(l, cfg)

	ctx, stop := signalContext()
	defer stop()

	if useTUI {
		return runTUIMode(ctx, l, b, connInfo, b.Statistics, state.Snapshot)
	}
	return runTextMode(ctx, l, b, connInfo)
}

// printDecodeError prints a dropped frame in highlighted format
func printDecodeError(err error) {
	timestamp := time.Now().Format("15:04:05.000")
	anomaly, _ := hwp.AnomalyOf(err)
	fmt.Printf("[%s] \033[1;31mDROPPED (%s):\033[0m %v\n", timestamp, anomaly, err)
	fmt.Printf("  >>> FRAME REJECTED <<<\n\n")
}

// runTUIMode runs error detection in TUI mode
func runTUIMode(ctx context.Context, l bus.Line, b *bus.Bus, connInfo string, statsFn func() hwp.Statistics, stateFn func() heatpump.State) error {
	m := initialModel(connInfo, showAll, statsFn, stateFn)
	p := tea.NewProgram(m, tea.WithContext(ctx))

	b.HandleFrames(func(f *hwp.Frame, err error) {
		p.Send(frameMsg{frame: f, err: err})
	})

	// Log entries go to the event log while the screen is taken
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

	_, err := p.Run()
	cancel()
	b.Wait()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// runTextMode runs error detection in text mode
func runTextMode(ctx context.Context, l bus.Line, b *bus.Bus, connInfo string) error {
	fmt.Printf("hwpbus - Error Detection Mode\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All frames\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	// Sync tracking - the first frame is usually cut when joining the line
	synchronized := false
	dropped := 0

	b.HandleFrames(func(f *hwp.Frame, err error) {
		if err != nil {
			if synchronized {
				printDecodeError(err)
			} else {
				dropped++
			}
			return
		}
		if !synchronized {
			synchronized = true
			if dropped > 0 {
				fmt.Printf("[SYNC] Synchronized after dropping %d frames\n\n", dropped)
			} else {
				fmt.Printf("[SYNC] Synchronized\n\n")
			}
		}
		if showAll {
			fmt.Println(hwp.FormatFrame(f))
		}
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := b.Start(runCtx); err != nil {
		return err
	}

	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	done := lineDone(l)
	for {
		select {
		case <-statsTicker.C:
			stats := b.Statistics()
			fmt.Println()
			fmt.Print(stats.String())
			fmt.Println()

		case <-done:
			log.Info("connection closed")
			cancel()
			b.Wait()
			return nil

		case <-ctx.Done():
			cancel()
			b.Wait()
			stats := b.Statistics()
			fmt.Println()
			fmt.Print(stats.String())
			return nil
		}
	}
}
