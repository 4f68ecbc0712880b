// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hwp

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

// ============================================================
// Test Helpers
// ============================================================

// buildFrameData returns frame bytes of the given length with a valid checksum
func buildFrameData(length int, frameType byte) []byte {
	data := make([]byte, length)
	data[0] = frameType
	for i := 1; i < length-1; i++ {
		data[i] = byte(i * 17)
	}
	data[length-1] = CalculateChecksum(data)
	return data
}

// complementBytes returns the bitwise complement of data
func complementBytes(data []byte) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = ^b
	}
	return out
}

// feedPulses runs pulses through d and returns every frame and error produced
func feedPulses(d *Decoder, pulses []Pulse) ([]*Frame, []error) {
	var frames []*Frame
	var errs []error
	for _, p := range pulses {
		frame, err := d.DecodePulse(p)
		if err != nil {
			errs = append(errs, err)
		}
		if frame != nil {
			frames = append(frames, frame)
		}
	}
	return frames, errs
}

// linePulses returns the pulses a raw byte sequence produces on the line, followed by a frame end
func linePulses(data []byte) []Pulse {
	pulses := EncodeFrame(NewFrame(data))
	return append(pulses, Low(BitLowDuration), High(FrameSpacing))
}

// ============================================================
// Checksum Tests
// ============================================================

func TestCalculateChecksum_ShortFrameSkipsType(t *testing.T) {
	data := []byte{0xAA, 1, 2, 3, 4, 5, 6, 7, 0}
	if got := CalculateChecksum(data); got != 28 {
		t.Errorf("expected checksum 28 over [1,8), got %d", got)
	}

	data[0] = 0x55
	if got := CalculateChecksum(data); got != 28 {
		t.Errorf("type byte must not affect short checksum, got %d", got)
	}
}

func TestCalculateChecksum_LongFrameIncludesType(t *testing.T) {
	data := []byte{0x81, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 0}
	expected := byte(0x81 + 55)
	if got := CalculateChecksum(data); got != expected {
		t.Errorf("expected checksum 0x%02X, got 0x%02X", expected, got)
	}
}

func TestCalculateChecksum_Wraps(t *testing.T) {
	data := []byte{0x81, 0xFF, 0xFF, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	expected := byte((0x81 + 0xFF + 0xFF) % 256)
	if got := CalculateChecksum(data); got != expected {
		t.Errorf("expected 0x%02X, got 0x%02X", expected, got)
	}
}

func TestChecksumValid(t *testing.T) {
	data := buildFrameData(FrameLengthLong, TypeConfig1)
	if !ChecksumValid(data) {
		t.Error("expected valid checksum")
	}
	data[3]++
	if ChecksumValid(data) {
		t.Error("expected invalid checksum after corruption")
	}
	if ChecksumValid([]byte{0x01}) {
		t.Error("single byte cannot carry a checksum")
	}
}

// ============================================================
// Validator Tests
// ============================================================

func TestValidateFrame_Controller(t *testing.T) {
	data := buildFrameData(FrameLengthLong, TypeConfig1)
	f := NewFrame(data)
	if err := ValidateFrame(f); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Source() != SourceController {
		t.Errorf("expected Controller, got %s", f.Source())
	}
	if !bytes.Equal(f.Bytes(), data) {
		t.Errorf("controller frame bytes must be unchanged")
	}
}

func TestValidateFrame_HeaterKeepsComplement(t *testing.T) {
	data := buildFrameData(FrameLengthShort, TypeConditions1)
	f := NewFrame(complementBytes(data))
	if err := ValidateFrame(f); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Source() != SourceHeater {
		t.Errorf("expected Heater, got %s", f.Source())
	}
	if !bytes.Equal(f.Bytes(), data) {
		t.Errorf("expected stored bytes % X, got % X", data, f.Bytes())
	}
}

func TestValidateFrame_ChecksumError(t *testing.T) {
	data := buildFrameData(FrameLengthLong, TypeConfig1)
	data[len(data)-1] ^= 0x01
	f := NewFrame(data)
	err := ValidateFrame(f)
	if !errors.Is(err, ErrChecksum) {
		t.Fatalf("expected ErrChecksum, got %v", err)
	}
	if !bytes.Equal(f.Bytes(), data) {
		t.Error("rejected frame must be restored to captured polarity")
	}
	if anomaly, ok := AnomalyOf(err); !ok || anomaly != AnomalyChecksum {
		t.Errorf("expected checksum anomaly, got %v", anomaly)
	}
}

func TestValidateFrame_Length(t *testing.T) {
	for _, length := range []int{1, 8, 10, 11, 13} {
		f := NewFrame(make([]byte, length))
		if err := ValidateFrame(f); !errors.Is(err, ErrLength) {
			t.Errorf("length %d: expected ErrLength, got %v", length, err)
		}
	}
}

// ============================================================
// Pulse Classification Tests
// ============================================================

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		low      time.Duration
		high     time.Duration
		expected Symbol
	}{
		{"start", StartLowDuration, StartHighDuration, SymbolStart},
		{"short bit", BitLowDuration, BitShortHighDuration, SymbolShortBit},
		{"long bit", BitLowDuration, BitLongHighDuration, SymbolLongBit},
		{"frame end", BitLowDuration, FrameSpacing, SymbolFrameEnd},
		{"frame end at threshold", BitLowDuration, FrameEndThreshold - Tolerance, SymbolFrameEnd},
		{"zero high", BitLowDuration, 0, SymbolFrameEnd},
		{"garbage", 5 * time.Millisecond, 10 * time.Millisecond, SymbolInvalid},
		{"start low with bit high", StartLowDuration, BitShortHighDuration, SymbolInvalid},
		{"bit low with start high", BitLowDuration, StartHighDuration, SymbolInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.low, tt.high); got != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestClassify_ToleranceBoundary(t *testing.T) {
	tests := []struct {
		name     string
		low      time.Duration
		high     time.Duration
		expected Symbol
	}{
		{"long +600us", BitLowDuration, BitLongHighDuration + Tolerance, SymbolLongBit},
		{"long -600us", BitLowDuration, BitLongHighDuration - Tolerance, SymbolLongBit},
		{"long +601us", BitLowDuration, BitLongHighDuration + Tolerance + time.Microsecond, SymbolInvalid},
		{"long -601us", BitLowDuration, BitLongHighDuration - Tolerance - time.Microsecond, SymbolInvalid},
		{"short +600us", BitLowDuration, BitShortHighDuration + Tolerance, SymbolShortBit},
		{"low +600us", BitLowDuration + Tolerance, BitShortHighDuration, SymbolShortBit},
		{"low -601us", BitLowDuration - Tolerance - time.Microsecond, BitShortHighDuration, SymbolInvalid},
		{"start +600us", StartLowDuration + Tolerance, StartHighDuration - Tolerance, SymbolStart},
		{"start +601us", StartLowDuration + Tolerance + time.Microsecond, StartHighDuration, SymbolInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.low, tt.high); got != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}

// ============================================================
// Decoder Tests
// ============================================================

func TestDecoder_ControllerFrame(t *testing.T) {
	data := buildFrameData(FrameLengthLong, TypeConfig1)
	d := NewDecoder()

	frames, errs := feedPulses(d, linePulses(data))
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	if frames[0].Source() != SourceController {
		t.Errorf("expected Controller, got %s", frames[0].Source())
	}
	if !bytes.Equal(frames[0].Bytes(), data) {
		t.Errorf("expected % X, got % X", data, frames[0].Bytes())
	}
	if d.State() != StateComplete {
		t.Errorf("expected COMPLETE, got %s", d.State())
	}
}

func TestDecoder_HeaterFrame(t *testing.T) {
	data := buildFrameData(FrameLengthLong, TypeConfig1)
	d := NewDecoder()

	frames, errs := feedPulses(d, linePulses(complementBytes(data)))
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	if frames[0].Source() != SourceHeater {
		t.Errorf("expected Heater, got %s", frames[0].Source())
	}
	if !bytes.Equal(frames[0].Bytes(), data) {
		t.Errorf("expected % X, got % X", data, frames[0].Bytes())
	}
}

func TestDecoder_LSBFirst(t *testing.T) {
	d := NewDecoder()
	pulses := []Pulse{Low(StartLowDuration), High(StartHighDuration)}
	// 0x01: only the first bit on the wire is long
	pulses = append(pulses, Low(BitLowDuration), High(BitLongHighDuration))
	for i := 0; i < 7; i++ {
		pulses = append(pulses, Low(BitLowDuration), High(BitShortHighDuration))
	}
	feedPulses(d, pulses)

	if d.Length() != 1 {
		t.Fatalf("expected 1 byte, got %d", d.Length())
	}
	if d.buffer[0] != 0x01 {
		t.Errorf("expected 0x01, got 0x%02X", d.buffer[0])
	}
}

func TestDecoder_Flush(t *testing.T) {
	data := buildFrameData(FrameLengthShort, TypeConditions1)
	d := NewDecoder()

	frames, _ := feedPulses(d, EncodeFrame(NewFrame(data)))
	if len(frames) != 0 {
		t.Fatal("frame must not complete before the line goes idle")
	}
	if !d.InFrame() {
		t.Fatal("expected decoder to be in a frame")
	}

	frame, err := d.Flush()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if frame == nil || !bytes.Equal(frame.Bytes(), data) {
		t.Fatalf("expected flushed frame % X", data)
	}

	frame, err = d.Flush()
	if frame != nil || err != nil {
		t.Error("flush while not in a frame must be a no-op")
	}
}

func TestDecoder_StartFinalizesInFlight(t *testing.T) {
	first := buildFrameData(FrameLengthShort, TypeConditions1)
	second := buildFrameData(FrameLengthLong, TypeConfig1)
	d := NewDecoder()

	pulses := EncodeFrame(NewFrame(first))
	pulses = append(pulses, linePulses(second)...)

	frames, errs := feedPulses(d, pulses)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if !bytes.Equal(frames[0].Bytes(), first) || !bytes.Equal(frames[1].Bytes(), second) {
		t.Error("frames decoded out of order or corrupted")
	}
}

func TestDecoder_Collision(t *testing.T) {
	d := NewDecoder()
	pulses := []Pulse{
		Low(StartLowDuration), High(StartHighDuration),
		Low(BitLowDuration), High(BitLongHighDuration),
		Low(BitLowDuration), High(10 * time.Millisecond),
	}

	_, errs := feedPulses(d, pulses)
	if len(errs) != 1 || !errors.Is(errs[0], ErrCollision) {
		t.Fatalf("expected one collision, got %v", errs)
	}
	if d.State() != StateIdle {
		t.Errorf("expected IDLE after collision, got %s", d.State())
	}
}

func TestDecoder_UnpairedHighIsCollision(t *testing.T) {
	d := NewDecoder()
	pulses := []Pulse{
		Low(StartLowDuration), High(StartHighDuration),
		Low(BitLowDuration), High(BitShortHighDuration),
		High(BitLongHighDuration),
	}

	_, errs := feedPulses(d, pulses)
	if len(errs) != 1 || !errors.Is(errs[0], ErrCollision) {
		t.Fatalf("expected one collision, got %v", errs)
	}
	if d.State() != StateIdle {
		t.Errorf("expected IDLE after collision, got %s", d.State())
	}

	// An unpaired frame-end high still completes the frame
	data := buildFrameData(FrameLengthShort, TypeConditions1)
	frames, errs := feedPulses(d, append(EncodeFrame(NewFrame(data)), High(FrameSpacing)))
	if len(errs) != 0 || len(frames) != 1 || !bytes.Equal(frames[0].Bytes(), data) {
		t.Fatalf("expected frame % X, got %d frames %v", data, len(frames), errs)
	}
}

func TestDecoder_GarbageWhileIdle(t *testing.T) {
	d := NewDecoder()
	_, errs := feedPulses(d, []Pulse{
		Low(BitLowDuration), High(BitLongHighDuration),
		Low(5 * time.Millisecond), High(7 * time.Millisecond),
		High(StartHighDuration),
	})
	if len(errs) != 0 {
		t.Errorf("pulses outside a frame must be ignored, got %v", errs)
	}
}

func TestDecoder_Overflow(t *testing.T) {
	d := NewDecoder()
	data := make([]byte, MaxFrameLength+1)

	_, errs := feedPulses(d, linePulses(data))
	if len(errs) != 1 || !errors.Is(errs[0], ErrOverflow) {
		t.Fatalf("expected overflow, got %v", errs)
	}
}

func TestDecoder_InvalidLength(t *testing.T) {
	d := NewDecoder()
	_, errs := feedPulses(d, linePulses(make([]byte, 10)))
	if len(errs) != 1 || !errors.Is(errs[0], ErrLength) {
		t.Fatalf("expected length error, got %v", errs)
	}
}

func TestDecoder_EmptyFrameIgnored(t *testing.T) {
	d := NewDecoder()
	frames, errs := feedPulses(d, []Pulse{
		Low(StartLowDuration), High(StartHighDuration),
		Low(BitLowDuration), High(FrameSpacing),
	})
	if len(frames) != 0 || len(errs) != 0 {
		t.Errorf("start marker alone must produce nothing, got %d frames %v", len(frames), errs)
	}
}

// ============================================================
// Encoder Tests
// ============================================================

func TestEncodeFrame_Shape(t *testing.T) {
	f := NewLocalFrame(buildFrameData(FrameLengthLong, TypeConfig1))
	pulses := EncodeFrame(f)

	if len(pulses) != 2+FrameLengthLong*16 {
		t.Fatalf("expected %d pulses, got %d", 2+FrameLengthLong*16, len(pulses))
	}
	if pulses[0] != Low(StartLowDuration) || pulses[1] != High(StartHighDuration) {
		t.Error("frame must begin with the start marker")
	}
	if TotalDuration(pulses) > SingleFrameMaxDuration {
		t.Errorf("frame duration %v exceeds %v", TotalDuration(pulses), SingleFrameMaxDuration)
	}
}

func TestEncodeTransmission_Spacing(t *testing.T) {
	f := NewLocalFrame(buildFrameData(FrameLengthShort, TypeConfig5))
	pulses, err := EncodeTransmission(f, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	single := len(EncodeFrame(f)) + 2
	if len(pulses) != 3*single {
		t.Fatalf("expected %d pulses, got %d", 3*single, len(pulses))
	}
	if pulses[single-1] != High(FrameSpacing) {
		t.Errorf("expected frame spacing between repeats, got %v", pulses[single-1])
	}
	if pulses[len(pulses)-1] != High(GroupSpacing) {
		t.Errorf("expected group spacing at end, got %v", pulses[len(pulses)-1])
	}
}

func TestEncodeTransmission_RoundTrip(t *testing.T) {
	data := buildFrameData(FrameLengthLong, TypeConfig1)
	pulses, err := EncodeTransmission(NewLocalFrame(data), DefaultRepeatCount)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	frames, errs := feedPulses(NewDecoder(), pulses)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(frames) != DefaultRepeatCount {
		t.Fatalf("expected %d frames, got %d", DefaultRepeatCount, len(frames))
	}
	for _, f := range frames {
		if f.Source() != SourceController || !bytes.Equal(f.Bytes(), data) {
			t.Errorf("unexpected frame %s", FormatFrame(f))
		}
	}
}

func TestEncodeTransmission_Invalid(t *testing.T) {
	f := NewLocalFrame(buildFrameData(FrameLengthShort, TypeConfig5))
	if _, err := EncodeTransmission(f, 0); err == nil {
		t.Error("expected error for zero repeat count")
	}
	if _, err := EncodeTransmission(NewFrame(make([]byte, 5)), 1); err == nil {
		t.Error("expected error for invalid length")
	}
}

// ============================================================
// Frame Tests
// ============================================================

func TestFrame_WithByteAndFinalize(t *testing.T) {
	base := NewFrame(buildFrameData(FrameLengthLong, TypeConfig1))
	edited := base.WithByte(3, 0x6D)
	edited.Finalize()

	if edited.Source() != SourceLocal {
		t.Errorf("edited frame must be Local, got %s", edited.Source())
	}
	if edited.Byte(3) != 0x6D {
		t.Errorf("expected 0x6D, got 0x%02X", edited.Byte(3))
	}
	if !ChecksumValid(edited.Bytes()) {
		t.Error("finalized frame must carry a valid checksum")
	}
	if base.Byte(3) == 0x6D {
		t.Error("WithByte must not modify the original")
	}
	if base.Equal(edited) {
		t.Error("frames with different bytes must not be equal")
	}
}

func TestFrame_ByteOutOfRange(t *testing.T) {
	f := NewFrame(buildFrameData(FrameLengthShort, TypeConfig5))
	if f.Byte(-1) != 0 || f.Byte(FrameLengthShort) != 0 {
		t.Error("out of range bytes must read as zero")
	}
}

// ============================================================
// Value Encoding Tests
// ============================================================

func TestTemperature_RoundTrip(t *testing.T) {
	for _, temp := range []float64{0, 0.5, 1.5, 2, 15, 24.5, 26, 33, 33.5, -5, -12.5} {
		b := EncodeTemperature(temp)
		if got := DecodeTemperature(b); got != temp {
			t.Errorf("%.1f: encoded 0x%02X decoded %.1f", temp, b, got)
		}
	}
}

func TestTemperature_KnownByte(t *testing.T) {
	if b := EncodeTemperature(24.5); b != 0x6D {
		t.Errorf("expected 0x6D for 24.5, got 0x%02X", b)
	}
	if temp := DecodeTemperature(0x6D); temp != 24.5 {
		t.Errorf("expected 24.5, got %.1f", temp)
	}
}

func TestExtendedTemperature_RoundTrip(t *testing.T) {
	for _, temp := range []float64{-30, -7, -0.5, 0, 8.5, 40, 97.5} {
		b := EncodeExtendedTemperature(temp)
		if got := DecodeExtendedTemperature(b); got != temp {
			t.Errorf("%.1f: encoded 0x%02X decoded %.1f", temp, b, got)
		}
	}
}

func TestDecimal_RoundTrip(t *testing.T) {
	for _, v := range []float64{0, 1, 2.5, 45, 63.5, -3, -20.5} {
		b := EncodeDecimal(v)
		if got := DecodeDecimal(b); got != v {
			t.Errorf("%.1f: encoded 0x%02X decoded %.1f", v, b, got)
		}
	}
}

func TestLargeInteger(t *testing.T) {
	hi, lo := EncodeLargeInteger(0x1234)
	if hi != 0x12 || lo != 0x34 {
		t.Errorf("expected 12 34, got %02X %02X", hi, lo)
	}
	if v := DecodeLargeInteger(hi, lo); v != 0x1234 {
		t.Errorf("expected 0x1234, got 0x%04X", v)
	}
}

// ============================================================
// Statistics Tests
// ============================================================

func TestStatistics_Update(t *testing.T) {
	s := NewStatistics()

	controller := NewFrame(buildFrameData(FrameLengthLong, TypeConfig1))
	_ = ValidateFrame(controller)
	heater := NewFrame(complementBytes(buildFrameData(FrameLengthLong, TypeConfig1)))
	_ = ValidateFrame(heater)

	s.Update(controller, nil)
	s.Update(heater, nil)
	s.Update(nil, &ValidationError{Type: AnomalyChecksum})
	s.Update(nil, &ValidationError{Type: AnomalyCollision})
	s.Update(nil, io.ErrUnexpectedEOF)
	s.Update(nil, nil)
	s.RecordSent()
	s.RecordDeferred()

	if s.TotalFrames != 5 {
		t.Errorf("expected 5 total, got %d", s.TotalFrames)
	}
	if s.ValidFrames != 2 || s.HeaterFrames != 1 || s.ControllerFrames != 1 {
		t.Errorf("unexpected valid counters: %+v", s)
	}
	if s.ChecksumErrors != 1 || s.Collisions != 1 || s.OtherErrors != 1 || s.Errors() != 3 {
		t.Errorf("unexpected error counters: %+v", s)
	}

	summary := s.String()
	for _, want := range []string{"Total Frames", "Checksum", "Collision", "Other", "Sent Frames"} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q", want)
		}
	}

	s.Reset()
	if s.TotalFrames != 0 || s.SentFrames != 0 {
		t.Error("reset must clear counters")
	}
}

// ============================================================
// Formatter Tests
// ============================================================

func TestFormatFrame(t *testing.T) {
	f := NewFrame(buildFrameData(FrameLengthLong, TypeConfig1))
	_ = ValidateFrame(f)

	out := FormatFrame(f)
	if !strings.Contains(out, "CONFIG_1") || !strings.Contains(out, "CONT") {
		t.Errorf("unexpected format: %s", out)
	}
	if !strings.Contains(out, FormatHex(f.Bytes())) {
		t.Errorf("format must include hex bytes: %s", out)
	}
}

func TestFormatFrameType_Subtypes(t *testing.T) {
	cond1 := NewFrame([]byte{TypeConditions1, 0, 0x05, 0, 0, 0, 0, 0, 0})
	cond1b := NewFrame([]byte{TypeConditions1, 0, 0x01, 0, 0, 0, 0, 0, 0})
	cond2b := NewFrame([]byte{TypeConditions2, 0, 0, 0, 0, 0, 0, 0, 0})

	if FormatFrameType(cond1) != "COND_1" || FormatFrameType(cond1b) != "COND_1B" || FormatFrameType(cond2b) != "COND_2B" {
		t.Error("conditions subtypes misnamed")
	}
}

func TestFormatPulses(t *testing.T) {
	out := FormatPulses([]Pulse{Low(StartLowDuration), High(BitLongHighDuration)})
	if out != "L9000 H3000" {
		t.Errorf("unexpected trace: %s", out)
	}
}

// ============================================================
// CBOR Record Tests
// ============================================================

func TestPulseRecord_RoundTrip(t *testing.T) {
	p := High(BitLongHighDuration)
	data, err := MarshalPulse(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := UnmarshalPulse(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != p {
		t.Errorf("expected %v, got %v", p, got)
	}
}

func TestDriveRequest_RoundTrip(t *testing.T) {
	pulses, _ := EncodeTransmission(NewLocalFrame(buildFrameData(FrameLengthShort, TypeConfig5)), 2)
	data, err := MarshalDriveRequest(pulses)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := UnmarshalDriveRequest(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got) != len(pulses) {
		t.Fatalf("expected %d pulses, got %d", len(pulses), len(got))
	}
	for i := range pulses {
		if got[i] != pulses[i] {
			t.Fatalf("pulse %d: expected %v, got %v", i, pulses[i], got[i])
		}
	}
}

func TestPulseReader_Stream(t *testing.T) {
	data := buildFrameData(FrameLengthLong, TypeConfig1)
	var buf bytes.Buffer
	for _, p := range linePulses(data) {
		rec, err := MarshalPulse(p)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		buf.Write(rec)
	}

	r := NewPulseReader(&buf)
	d := NewDecoder()
	var frame *Frame
	for {
		p, err := r.Next()
		if err != nil {
			break
		}
		if f, _ := d.DecodePulse(p); f != nil {
			frame = f
		}
	}
	if frame == nil || !bytes.Equal(frame.Bytes(), data) {
		t.Fatal("expected frame decoded from pulse stream")
	}
}

func TestFrameRecord_RoundTrip(t *testing.T) {
	f := NewFrame(buildFrameData(FrameLengthLong, TypeConfig1))
	_ = ValidateFrame(f)

	var buf bytes.Buffer
	if err := NewFrameWriter(&buf).Write(f); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := UnmarshalFrame(buf.Bytes())
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !got.Equal(f) || got.Source() != f.Source() {
		t.Errorf("expected %s, got %s", FormatFrame(f), FormatFrame(got))
	}
}

func TestFrameReader_Stream(t *testing.T) {
	frames := []*Frame{
		NewFrame(buildFrameData(FrameLengthLong, TypeConfig1)),
		NewFrame(buildFrameData(FrameLengthShort, TypeConfig5)),
	}
	var buf bytes.Buffer
	w := NewFrameWriter(&buf)
	for _, f := range frames {
		_ = ValidateFrame(f)
		if err := w.Write(f); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	r := NewFrameReader(&buf)
	for i, want := range frames {
		got, err := r.Next()
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if !got.Equal(want) {
			t.Errorf("frame %d: expected %s, got %s", i, FormatHex(want.Bytes()), FormatHex(got.Bytes()))
		}
	}
	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF at end of stream, got %v", err)
	}
}
