// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package export

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Thermoquad/hwpbus/pkg/heatpump"
)

// RegisterWriter is the contract the exporter writes through
type RegisterWriter interface {
	WriteRegisters(unitID uint8, addr uint16, regs []uint16) error
}

// Config places the register block
type Config struct {
	UnitID   uint8
	Address  uint16
	Interval time.Duration
}

// Exporter periodically writes the model snapshot to a Modbus device
type Exporter struct {
	writer RegisterWriter
	model  *heatpump.Model
	cfg    Config
	log    log.FieldLogger
	now    func() time.Time
}

// New creates an exporter. A nil logger uses the standard logger.
func New(w RegisterWriter, m *heatpump.Model, cfg Config, logger log.FieldLogger) *Exporter {
	if logger == nil {
		logger = log.StandardLogger()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	return &Exporter{
		writer: w,
		model:  m,
		cfg:    cfg,
		log:    logger,
		now:    time.Now,
	}
}

// WriteOnce encodes the current snapshot and writes it
func (e *Exporter) WriteOnce() error {
	regs := Encode(e.model.Snapshot(), e.now())
	if err := e.writer.WriteRegisters(e.cfg.UnitID, e.cfg.Address, regs); err != nil {
		return fmt.Errorf("modbus export: unit=%d addr=%d: %w", e.cfg.UnitID, e.cfg.Address, err)
	}
	return nil
}

// Run writes the snapshot every interval until ctx is done.
// Write failures are logged and retried on the next tick.
func (e *Exporter) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := e.WriteOnce(); err != nil {
			e.log.WithError(err).Warn("register write failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
