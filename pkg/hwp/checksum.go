// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hwp

// checksumStart returns the first byte covered by the checksum.
// Short frames skip their leading type byte.
func checksumStart(length int) int {
	if length == FrameLengthShort {
		return 1
	}
	return 0
}

// CalculateChecksum sums data[start:len-1] modulo 256
func CalculateChecksum(data []byte) byte {
	var sum byte
	for i := checksumStart(len(data)); i < len(data)-1; i++ {
		sum += data[i]
	}
	return sum
}

// ChecksumValid reports whether the last byte of data matches its checksum
func ChecksumValid(data []byte) bool {
	if len(data) < 2 {
		return false
	}
	return CalculateChecksum(data) == data[len(data)-1]
}
