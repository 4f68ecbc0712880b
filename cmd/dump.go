// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/hwpbus/pkg/heatpump"
	"github.com/Thermoquad/hwpbus/pkg/hwp"
)

var (
	dumpDuration int
	dumpOut      string
	dumpIn       string
)

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Collect every frame type and print the decoded state",
	Long: `Listen for a while, then print the last frame of every frame type seen
and the heat pump state decoded from them.

With --out every valid frame is also appended to a CBOR archive. An archive
can be decoded again later with --in, without a line.

Examples:
  hwpbus dump --gpio 17 --duration 120 --out capture.cbor
  hwpbus dump --in capture.cbor`,
	RunE: runDump,
}

func init() {
	rootCmd.AddCommand(dumpCmd)
	dumpCmd.Flags().IntVar(&dumpDuration, "duration", 90, "Seconds to listen")
	dumpCmd.Flags().StringVarP(&dumpOut, "out", "o", "", "Append valid frames to this CBOR archive")
	dumpCmd.Flags().StringVarP(&dumpIn, "in", "i", "", "Decode a CBOR archive instead of listening")
}

func runDump(cmd *cobra.Command, args []string) error {
	registry := heatpump.NewDefaultRegistry(log.StandardLogger())
	state := heatpump.NewModel()

	if dumpIn != "" {
		if err := replayArchive(dumpIn, registry, state); err != nil {
			return err
		}
		return printDump(os.Stdout, registry, state.Snapshot())
	}

	l, connInfo, err := OpenLine()
	if err != nil {
		return err
	}
	defer l.Close()

	var archive *hwp.FrameWriter
	if dumpOut != "" {
		f, err := os.OpenFile(dumpOut, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open archive: %w", err)
		}
		defer f.Close()
		archive = hwp.NewFrameWriter(f)
	}

	cfg := busConfig()
	cfg.Passive = true
	b, registry, state := newBus(l, cfg)

	var mu sync.Mutex
	b.HandleFrames(func(f *hwp.Frame, err error) {
		if err != nil || archive == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if werr := archive.Write(f); werr != nil {
			log.WithError(werr).Error("archive write failed")
		}
	})

	log.Infof("listening %d seconds (%s)", dumpDuration, connInfo)

	sigCtx, stop := signalContext()
	defer stop()
	ctx, cancel := context.WithTimeout(sigCtx, time.Duration(dumpDuration)*time.Second)
	defer cancel()

	if err := b.Start(ctx); err != nil {
		return err
	}
	waitLine(ctx, l)
	cancel()
	b.Wait()

	return printDump(os.Stdout, registry, state.Snapshot())
}

// replayArchive feeds every archived frame through the registry
func replayArchive(path string, registry *heatpump.Registry, state *heatpump.Model) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	r := hwp.NewFrameReader(f)
	n := 0
	for {
		frame, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("archive frame %d: %w", n+1, err)
		}
		registry.Process(frame, state)
		n++
	}
	log.Infof("replayed %d frames from %s", n, path)
	return nil
}

func printDump(w io.Writer, registry *heatpump.Registry, s heatpump.State) error {
	known := registry.KnownFrames()
	fmt.Fprintf(w, "=== Frames (%d types) ===\n", len(known))
	for _, k := range known {
		fmt.Fprintf(w, "%-8s x%-5d %-4s %s\n", k.Name, k.Count, k.Frame.Source(), hwp.FormatHex(k.Frame.Bytes()))
	}

	fmt.Fprintf(w, "\n=== State ===\n")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}
