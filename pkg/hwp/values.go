// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hwp

import "math"

// Temperature byte layout (bit 0 first):
//
//	bit 0     half degree
//	bits 1-5  integer part
//	bit 6     +2 offset
//	bit 7     negative
const (
	tempHalfMask     = 0x01
	tempIntegerMask  = 0x3E
	tempIntegerShift = 1
	tempOffsetMask   = 0x40
	tempNegativeMask = 0x80

	// MaxTemperature is the largest magnitude a temperature byte can carry
	MaxTemperature = 33.5
)

// DecodeTemperature decodes a temperature byte to degrees Celsius
func DecodeTemperature(b byte) float64 {
	t := float64((b & tempIntegerMask) >> tempIntegerShift)
	if b&tempHalfMask != 0 {
		t += 0.5
	}
	if b&tempOffsetMask != 0 {
		t += 2
	}
	if b&tempNegativeMask != 0 {
		t = -t
	}
	return t
}

// EncodeTemperature encodes degrees Celsius to a temperature byte.
// Values are truncated to half degrees. Magnitudes above MaxTemperature wrap.
func EncodeTemperature(t float64) byte {
	var b byte
	if t < 0 {
		b |= tempNegativeMask
	}
	abs := math.Abs(t)
	if abs >= 2 {
		b |= tempOffsetMask
		abs -= 2
	}
	if abs-math.Trunc(abs) >= 0.5 {
		b |= tempHalfMask
	}
	b |= (byte(abs) << tempIntegerShift) & tempIntegerMask
	return b
}

// Extended temperature byte: bit 0 half degree, bits 1-7 integer offset by 30
const (
	extendedOffset = 30

	// MinExtendedTemperature and MaxExtendedTemperature bound an extended byte
	MinExtendedTemperature = -extendedOffset
	MaxExtendedTemperature = 97.5
)

// DecodeExtendedTemperature decodes an extended temperature byte
func DecodeExtendedTemperature(b byte) float64 {
	t := float64(b>>1) - extendedOffset
	if b&0x01 != 0 {
		t += 0.5
	}
	return t
}

// EncodeExtendedTemperature encodes degrees Celsius to an extended byte.
// Callers range-check against MinExtendedTemperature and MaxExtendedTemperature.
func EncodeExtendedTemperature(t float64) byte {
	shifted := t + extendedOffset
	if shifted < 0 {
		shifted = 0
	}
	var b byte
	if shifted-math.Floor(shifted) >= 0.5 {
		b |= 0x01
	}
	return b | byte(math.Floor(shifted))<<1
}

// Decimal byte: bit 0 half, bits 1-6 integer, bit 7 negative

// MaxDecimal is the largest magnitude a decimal byte can carry
const MaxDecimal = 63.5

// DecodeDecimal decodes a decimal number byte
func DecodeDecimal(b byte) float64 {
	v := float64((b >> 1) & 0x3F)
	if b&0x01 != 0 {
		v += 0.5
	}
	if b&0x80 != 0 {
		v = -v
	}
	return v
}

// EncodeDecimal encodes a value to a decimal number byte. Magnitudes above
// MaxDecimal wrap.
func EncodeDecimal(v float64) byte {
	var b byte
	if v < 0 {
		b |= 0x80
	}
	abs := math.Abs(v)
	if abs-math.Trunc(abs) >= 0.5 {
		b |= 0x01
	}
	return b | (byte(abs)&0x3F)<<1
}

// DecodeLargeInteger decodes a 16-bit big-endian value
func DecodeLargeInteger(hi, lo byte) uint16 {
	return uint16(hi)<<8 | uint16(lo)
}

// EncodeLargeInteger encodes a 16-bit value big-endian
func EncodeLargeInteger(v uint16) (hi, lo byte) {
	return byte(v >> 8), byte(v)
}
