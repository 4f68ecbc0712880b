// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package heatpump

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Thermoquad/hwpbus/pkg/hwp"
	log "github.com/sirupsen/logrus"
)

// Descriptor binds a frame subtype to its codec
type Descriptor struct {
	TypeID byte
	Name   string
	Length int                   // 0 accepts both lengths
	Match  func(*hwp.Frame) bool // nil accepts every frame of TypeID
	Codec  Codec
}

func (d *Descriptor) matches(f *hwp.Frame) bool {
	if f.Type() != d.TypeID {
		return false
	}
	if d.Length != 0 && f.Len() != d.Length {
		return false
	}
	return d.Match == nil || d.Match(f)
}

// ChangeStatus compares a frame with the previous frame of the same descriptor
type ChangeStatus int

const (
	StatusNew ChangeStatus = iota
	StatusChanged
	StatusSame
)

// String returns the short log tag
func (c ChangeStatus) String() string {
	switch c {
	case StatusNew:
		return "New"
	case StatusChanged:
		return "Chg"
	default:
		return "Same"
	}
}

// KnownFrame is the last frame observed for a descriptor
type KnownFrame struct {
	Name  string
	Frame *hwp.Frame
	Count uint64
}

type slot struct {
	last        *hwp.Frame
	count       uint64
	commanded   *hwp.Frame
	commandedAt time.Time
}

type unknownKey struct {
	typeID byte
	length int
}

// UnknownName is the descriptor name reported for unrecognized frames
const UnknownName = "UNKNOWN"

// Registry is the ordered list of frame descriptors plus the last frame seen for each
type Registry struct {
	mu          sync.Mutex
	descriptors []*Descriptor
	slots       map[*Descriptor]*slot
	unknown     map[unknownKey]*slot
	unknownKeys []unknownKey
	log         log.FieldLogger
	now         func() time.Time
}

// NewRegistry creates an empty registry. A nil logger uses the standard logger.
func NewRegistry(logger log.FieldLogger) *Registry {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Registry{
		slots:   make(map[*Descriptor]*slot),
		unknown: make(map[unknownKey]*slot),
		log:     logger,
		now:     time.Now,
	}
}

// NewDefaultRegistry creates a registry holding every known frame subtype
func NewDefaultRegistry(logger log.FieldLogger) *Registry {
	r := NewRegistry(logger)
	long := hwp.FrameLengthLong
	r.Register(&Descriptor{TypeID: hwp.TypeConfig1, Name: "CONFIG_1", Length: long, Codec: Conf1Codec{}})
	r.Register(&Descriptor{TypeID: hwp.TypeConfig2, Name: "CONFIG_2", Length: long, Codec: Conf2Codec{}})
	r.Register(&Descriptor{TypeID: hwp.TypeConfig3, Name: "CONFIG_3", Length: long, Codec: Conf3Codec{}})
	r.Register(&Descriptor{TypeID: hwp.TypeConfig4, Name: "CONFIG_4", Codec: RawCodec{}})
	r.Register(&Descriptor{TypeID: hwp.TypeConfig5, Name: "CONFIG_5", Length: long, Codec: Conf5Codec{}})
	r.Register(&Descriptor{TypeID: hwp.TypeConfig6, Name: "CONFIG_6", Codec: RawCodec{}})
	r.Register(&Descriptor{TypeID: hwp.TypeClock, Name: "CLOCK", Length: long, Codec: ClockCodec{}})
	r.Register(&Descriptor{TypeID: hwp.TypeConditions1, Name: "COND_1", Length: long, Match: isCond1, Codec: Conditions1Codec{}})
	r.Register(&Descriptor{TypeID: hwp.TypeConditions1, Name: "COND_1B", Length: long, Match: isCond1B, Codec: Conditions1BCodec{}})
	r.Register(&Descriptor{TypeID: hwp.TypeConditions2, Name: "COND_2", Length: long, Codec: Conditions2Codec{}})
	r.Register(&Descriptor{TypeID: hwp.TypeConditions2, Name: "COND_2B", Length: hwp.FrameLengthShort, Codec: RawCodec{}})
	return r
}

// Register appends a descriptor. Earlier descriptors win on overlap.
func (r *Registry) Register(d *Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.descriptors = append(r.descriptors, d)
	r.slots[d] = &slot{}
}

// Descriptors returns the registered descriptors in order
func (r *Registry) Descriptors() []*Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Descriptor(nil), r.descriptors...)
}

// Dispatch returns the first descriptor matching f
func (r *Registry) Dispatch(f *hwp.Frame) (*Descriptor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.dispatch(f)
	return d, d != nil
}

func (r *Registry) dispatch(f *hwp.Frame) *Descriptor {
	for _, d := range r.descriptors {
		if d.matches(f) {
			return d
		}
	}
	return nil
}

// Lookup returns the descriptor registered under name
func (r *Registry) Lookup(name string) (*Descriptor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.descriptors {
		if d.Name == name {
			return d, true
		}
	}
	return nil, false
}

// Observe records f as the latest frame of its descriptor. The returned
// descriptor is nil for unrecognized frames, which are tracked by type and length.
func (r *Registry) Observe(f *hwp.Frame) (*Descriptor, ChangeStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d := r.dispatch(f)
	var s *slot
	if d != nil {
		s = r.slots[d]
	} else {
		key := unknownKey{typeID: f.Type(), length: f.Len()}
		s = r.unknown[key]
		if s == nil {
			s = &slot{}
			r.unknown[key] = s
			r.unknownKeys = append(r.unknownKeys, key)
		}
	}

	status := StatusSame
	switch {
	case s.last == nil:
		status = StatusNew
	case !s.last.Equal(f):
		status = StatusChanged
	}
	s.last = f
	s.count++

	// A fresh baseline releases the pending command so it may be requested again
	if s.commanded != nil && (status != StatusSame || f.CapturedAt().Sub(s.commandedAt) > hwp.MinSendInterval) {
		s.commanded = nil
	}
	return d, status
}

// Process observes f, parses it into m and records the source's last-seen time
func (r *Registry) Process(f *hwp.Frame, m *Model) (*Descriptor, ChangeStatus) {
	d, status := r.Observe(f)

	name := UnknownName
	if d != nil {
		name = d.Name
	}
	entry := r.log.WithFields(log.Fields{
		"source": f.Source().String(),
		"type":   name,
		"len":    f.Len(),
	})
	if status == StatusSame {
		entry.Tracef("%s %s", status, hwp.FormatHex(f.Bytes()))
	} else {
		entry.Debugf("%s %s", status, hwp.FormatHex(f.Bytes()))
	}

	m.Update(func(s *State) {
		if d != nil {
			if err := d.Codec.Parse(f, s); err != nil {
				entry.Debugf("parse skipped: %v", err)
			}
		}
		seen := f.CapturedAt()
		switch f.Source() {
		case hwp.SourceHeater:
			s.LastHeaterFrame = &seen
		case hwp.SourceController:
			s.LastControllerFrame = &seen
		}
	})
	return d, status
}

// Baseline returns the last frame observed for d
func (r *Registry) Baseline(d *Descriptor) *hwp.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.slots[d]; s != nil {
		return s.last
	}
	return nil
}

// RequestChange builds the command frames implementing ch against the current
// model. It returns no frames when nothing would change or an identical
// command is already pending, and ErrNoBaseline when every codec involved is
// still waiting for its first frame.
func (r *Registry) RequestChange(ch Change, m *Model) ([]*hwp.Frame, error) {
	if ch.IsEmpty() {
		return nil, nil
	}
	state := m.Snapshot()

	r.mu.Lock()
	defer r.mu.Unlock()

	type pending struct {
		slot  *slot
		frame *hwp.Frame
	}
	var built []pending
	waiting := false

	for _, d := range r.descriptors {
		cmd, ok := d.Codec.(Commander)
		if !ok || !cmd.Handles(ch) {
			continue
		}
		s := r.slots[d]
		if s.last == nil {
			r.log.WithField("type", d.Name).Warn("cannot control yet, waiting for first frame")
			waiting = true
			continue
		}
		f, err := cmd.BuildCommand(s.last, state, ch)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.Name, err)
		}
		if f == nil {
			r.log.WithField("type", d.Name).Debug("no changes to send")
			continue
		}
		if s.commanded != nil && s.commanded.Equal(f) {
			r.log.WithField("type", d.Name).Debug("identical command already pending")
			continue
		}
		built = append(built, pending{slot: s, frame: f})
	}

	if len(built) == 0 && waiting {
		return nil, ErrNoBaseline
	}

	now := r.now()
	frames := make([]*hwp.Frame, 0, len(built))
	for _, p := range built {
		p.slot.commanded = p.frame
		p.slot.commandedAt = now
		frames = append(frames, p.frame)
	}
	return frames, nil
}

// KnownFrames lists the last frame of every descriptor seen so far,
// followed by unrecognized frames in order of first appearance
func (r *Registry) KnownFrames() []KnownFrame {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []KnownFrame
	for _, d := range r.descriptors {
		if s := r.slots[d]; s.last != nil {
			out = append(out, KnownFrame{Name: d.Name, Frame: s.last, Count: s.count})
		}
	}
	for _, key := range r.unknownKeys {
		s := r.unknown[key]
		out = append(out, KnownFrame{Name: UnknownName, Frame: s.last, Count: s.count})
	}
	return out
}

// Ready reports whether every codec touched by ch has its baseline frame
func (r *Registry) Ready(ch Change) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.descriptors {
		cmd, ok := d.Codec.(Commander)
		if ok && cmd.Handles(ch) && r.slots[d].last == nil {
			return false
		}
	}
	return true
}

// IsWaiting reports whether err means a baseline frame is still missing
func IsWaiting(err error) bool {
	return errors.Is(err, ErrNoBaseline)
}
