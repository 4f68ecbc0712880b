// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hwp

import (
	"bytes"
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// randomFrameData returns random frame bytes of a random valid length with a valid checksum
func randomFrameData(rng *rand.Rand) []byte {
	length := FrameLengthShort
	if rng.Intn(2) == 1 {
		length = FrameLengthLong
	}
	data := make([]byte, length)
	rng.Read(data)
	data[length-1] = CalculateChecksum(data)
	return data
}

// jitter returns d shifted by a random amount inside the tolerance window
func jitter(rng *rand.Rand, d time.Duration) time.Duration {
	return d + time.Duration(rng.Int63n(int64(2*Tolerance)+1)) - Tolerance
}

// ============================================================
// Validator Fuzz Tests
// ============================================================

// TestFuzzValidator_NeverBothPolarities checks that no frame validates
// as captured and complemented at the same time
func TestFuzzValidator_NeverBothPolarities(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)

	for i := 0; i < rounds; i++ {
		data := randomFrameData(rng)
		if !ChecksumValid(data) {
			t.Fatalf("round %d: generated frame invalid: % X", i, data)
		}
		if ChecksumValid(complementBytes(data)) {
			t.Fatalf("round %d: frame valid in both polarities: % X", i, data)
		}

		// Random bytes: at most one polarity may hold
		raw := make([]byte, len(data))
		rng.Read(raw)
		if ChecksumValid(raw) && ChecksumValid(complementBytes(raw)) {
			t.Fatalf("round %d: frame valid in both polarities: % X", i, raw)
		}
	}
}

// ============================================================
// Decoder Fuzz Tests
// ============================================================

// TestFuzzDecoder_RandomPulses feeds random pulses to the decoder
// and verifies it doesn't crash or panic
func TestFuzzDecoder_RandomPulses(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)

	for i := 0; i < rounds; i++ {
		d := NewDecoder()
		count := rng.Intn(512) + 1
		for j := 0; j < count; j++ {
			p := Pulse{
				Level:    rng.Intn(2) == 1,
				Duration: time.Duration(rng.Int63n(int64(60 * time.Millisecond))),
			}
			frame, err := d.DecodePulse(p)
			if frame != nil && err != nil {
				t.Fatalf("round %d: decoder returned both a frame and an error", i)
			}
			if frame != nil && !ChecksumValid(frame.Bytes()) {
				t.Fatalf("round %d: decoder emitted invalid frame % X", i, frame.Bytes())
			}
		}
		d.Flush()
	}
}

// TestFuzzDecoder_JitteredFrames encodes random valid frames, jitters every
// pulse within tolerance and verifies they decode intact
func TestFuzzDecoder_JitteredFrames(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)

	for i := 0; i < rounds; i++ {
		data := randomFrameData(rng)
		wire := data
		expected := SourceController
		if rng.Intn(2) == 1 {
			wire = complementBytes(data)
			expected = SourceHeater
		}

		pulses := EncodeFrame(NewFrame(wire))
		for j := range pulses {
			pulses[j].Duration = jitter(rng, pulses[j].Duration)
		}

		d := NewDecoder()
		frames, errs := feedPulses(d, pulses)
		if len(frames) != 0 || len(errs) != 0 {
			t.Fatalf("round %d: unexpected output before idle", i)
		}
		frame, err := d.Flush()
		if err != nil {
			t.Fatalf("round %d: unexpected error: %v", i, err)
		}
		if frame == nil || frame.Source() != expected || !bytes.Equal(frame.Bytes(), data) {
			t.Fatalf("round %d: expected %s % X", i, expected, data)
		}
	}
}

// TestFuzzDecoder_Resync verifies the decoder recovers after random noise
func TestFuzzDecoder_Resync(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)

	for i := 0; i < rounds; i++ {
		d := NewDecoder()
		for j := rng.Intn(64); j > 0; j-- {
			d.DecodePulse(Pulse{
				Level:    j%2 == 0,
				Duration: time.Duration(rng.Int63n(int64(20 * time.Millisecond))),
			})
		}

		data := randomFrameData(rng)
		frames, _ := feedPulses(d, linePulses(data))
		if len(frames) == 0 {
			t.Fatalf("round %d: no frame after noise", i)
		}
		last := frames[len(frames)-1]
		if !bytes.Equal(last.Bytes(), data) {
			t.Fatalf("round %d: expected % X, got % X", i, data, last.Bytes())
		}
	}
}
