// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// hwpbus - Pool Heat Pump Bus Tool
//
// A CLI tool for listening to, decoding, and commanding pool heat pumps on
// their single-wire pulse-timed bus.

package main

import (
	"os"

	"github.com/Thermoquad/hwpbus/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
