// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Owslave - 1-Wire "send variable" slave emulator
//
// Emulates a 1-Wire peripheral that receives typed values from a bus master
// over a serial port or WebSocket bridge, and provides the matching master
// side for testing.

package main

import (
	"os"

	"github.com/Thermoquad/owslave/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
