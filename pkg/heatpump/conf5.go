// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package heatpump

import "github.com/Thermoquad/hwpbus/pkg/hwp"

// CONFIG_5 layout
const (
	conf5FlagsByte         = 2
	conf5MinEcoByte        = 3 // d05, decimal
	conf5PulsesHighByte    = 9 // U02, big-endian
	conf5PulsesLowByte     = 10
	conf5FlowMeterFlag     = 0x04 // U01, set when enabled
	conf5DefrostNormalFlag = 0x40 // d06, clear for eco
)

// Conf5Codec handles CONFIG_5: flow meter and economy defrost
type Conf5Codec struct{}

// Parse updates U01, U02, d05 and d06
func (Conf5Codec) Parse(f *hwp.Frame, s *State) error {
	flags := f.Byte(conf5FlagsByte)
	s.FlowMeter = ptr(flags&conf5FlowMeterFlag != 0)

	defrost := DefrostEco
	if flags&conf5DefrostNormalFlag != 0 {
		defrost = DefrostNormal
	}
	s.DefrostEco = ptr(defrost)
	s.MinEcoDefrostMinutes = ptr(hwp.DecodeDecimal(f.Byte(conf5MinEcoByte)))
	s.PulsesPerLiter = ptr(hwp.DecodeLargeInteger(f.Byte(conf5PulsesHighByte), f.Byte(conf5PulsesLowByte)))
	return nil
}

// Handles reports whether ch touches CONFIG_5
func (Conf5Codec) Handles(ch Change) bool {
	return ch.DefrostEco != nil || ch.FlowMeter != nil ||
		ch.MinEcoDefrostMinutes != nil || ch.PulsesPerLiter != nil
}

// BuildCommand applies flow meter and defrost changes to baseline
func (c Conf5Codec) BuildCommand(baseline *hwp.Frame, s State, ch Change) (*hwp.Frame, error) {
	if baseline == nil || !c.Handles(ch) {
		return nil, nil
	}
	if err := checkRange("d05 min eco defrost minutes", ch.MinEcoDefrostMinutes, 0, hwp.MaxDecimal); err != nil {
		return nil, err
	}
	e := editFrame(baseline)

	if ch.DefrostEco != nil {
		e.setBits(conf5FlagsByte, conf5DefrostNormalFlag, *ch.DefrostEco == DefrostNormal)
	}
	if ch.FlowMeter != nil {
		e.setBits(conf5FlagsByte, conf5FlowMeterFlag, *ch.FlowMeter)
	}
	if ch.MinEcoDefrostMinutes != nil {
		e.set(conf5MinEcoByte, hwp.EncodeDecimal(*ch.MinEcoDefrostMinutes))
	}
	if ch.PulsesPerLiter != nil {
		hi, lo := hwp.EncodeLargeInteger(*ch.PulsesPerLiter)
		e.set(conf5PulsesHighByte, hi)
		e.set(conf5PulsesLowByte, lo)
	}

	return e.build(baseline), nil
}
