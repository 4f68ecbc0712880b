// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hwp

import (
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Probe operations sent host -> probe
const (
	ProbeOpDrive = 0x01
)

// pulseRecord is the probe wire form of a pulse: [level, duration_us]
type pulseRecord struct {
	_          struct{} `cbor:",toarray"`
	Level      bool
	DurationUS uint64
}

// driveRequest asks the probe to replay a pulse train: [op, [[level, duration_us], ...]]
type driveRequest struct {
	_      struct{} `cbor:",toarray"`
	Op     uint8
	Pulses []pulseRecord
}

// frameRecord is the archived form of a frame: [bytes, source, captured_at_ms]
type frameRecord struct {
	_          struct{} `cbor:",toarray"`
	Data       []byte
	Source     uint8
	CapturedAt int64
}

func toRecord(p Pulse) pulseRecord {
	d := p.Duration
	if d < 0 {
		d = 0
	}
	return pulseRecord{Level: p.Level, DurationUS: uint64(d / time.Microsecond)}
}

func fromRecord(r pulseRecord) Pulse {
	return Pulse{Level: r.Level, Duration: time.Duration(r.DurationUS) * time.Microsecond}
}

// MarshalPulse encodes one pulse record
func MarshalPulse(p Pulse) ([]byte, error) {
	return cbor.Marshal(toRecord(p))
}

// UnmarshalPulse decodes one pulse record
func UnmarshalPulse(data []byte) (Pulse, error) {
	var r pulseRecord
	if err := cbor.Unmarshal(data, &r); err != nil {
		return Pulse{}, fmt.Errorf("failed to decode pulse record: %w", err)
	}
	return fromRecord(r), nil
}

// MarshalDriveRequest encodes a drive request for a pulse train
func MarshalDriveRequest(pulses []Pulse) ([]byte, error) {
	req := driveRequest{Op: ProbeOpDrive, Pulses: make([]pulseRecord, len(pulses))}
	for i, p := range pulses {
		req.Pulses[i] = toRecord(p)
	}
	return cbor.Marshal(req)
}

// UnmarshalDriveRequest decodes a drive request back into its pulse train
func UnmarshalDriveRequest(data []byte) ([]Pulse, error) {
	var req driveRequest
	if err := cbor.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to decode drive request: %w", err)
	}
	if req.Op != ProbeOpDrive {
		return nil, fmt.Errorf("unexpected probe op: 0x%02X", req.Op)
	}
	pulses := make([]Pulse, len(req.Pulses))
	for i, r := range req.Pulses {
		pulses[i] = fromRecord(r)
	}
	return pulses, nil
}

// MarshalFrame encodes a frame record
func MarshalFrame(f *Frame) ([]byte, error) {
	return cbor.Marshal(frameRecord{
		Data:       f.data,
		Source:     uint8(f.source),
		CapturedAt: f.capturedAt.UnixMilli(),
	})
}

// UnmarshalFrame decodes a frame record
func UnmarshalFrame(data []byte) (*Frame, error) {
	var r frameRecord
	if err := cbor.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode frame record: %w", err)
	}
	if len(r.Data) != FrameLengthShort && len(r.Data) != FrameLengthLong {
		return nil, fmt.Errorf("invalid frame length: %d", len(r.Data))
	}
	return &Frame{
		data:       append([]byte(nil), r.Data...),
		source:     Source(r.Source),
		capturedAt: time.UnixMilli(r.CapturedAt),
	}, nil
}

// PulseReader reads a stream of pulse records
type PulseReader struct {
	dec *cbor.Decoder
}

// NewPulseReader creates a pulse reader over r
func NewPulseReader(r io.Reader) *PulseReader {
	return &PulseReader{dec: cbor.NewDecoder(r)}
}

// Next blocks until the next pulse record is read
func (pr *PulseReader) Next() (Pulse, error) {
	var r pulseRecord
	if err := pr.dec.Decode(&r); err != nil {
		return Pulse{}, err
	}
	return fromRecord(r), nil
}

// FrameWriter writes a stream of frame records
type FrameWriter struct {
	enc *cbor.Encoder
}

// NewFrameWriter creates a frame writer over w
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{enc: cbor.NewEncoder(w)}
}

// Write appends one frame record to the stream
func (fw *FrameWriter) Write(f *Frame) error {
	return fw.enc.Encode(frameRecord{
		Data:       f.data,
		Source:     uint8(f.source),
		CapturedAt: f.capturedAt.UnixMilli(),
	})
}

// FrameReader reads a stream of frame records
type FrameReader struct {
	dec *cbor.Decoder
}

// NewFrameReader creates a frame reader over r
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{dec: cbor.NewDecoder(r)}
}

// Next returns the next frame, or io.EOF at the end of the stream
func (fr *FrameReader) Next() (*Frame, error) {
	var raw cbor.RawMessage
	if err := fr.dec.Decode(&raw); err != nil {
		return nil, err
	}
	return UnmarshalFrame(raw)
}
