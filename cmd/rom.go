// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/owslave/pkg/owvar"
)

var romCmd = &cobra.Command{
	Use:   "rom [id]",
	Short: "Show a device ROM id with its CRC",
	Long: `Parse a ROM id and print its family code, serial number, CRC and the 8 byte
code a master sees during ROM search.

The id may be 14 hex digits or the canonical ff.ssssssssssss.cc form; use
"--" as the crc to have it computed. Without an argument the configured
device ROM is shown.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRom,
}

func init() {
	rootCmd.AddCommand(romCmd)
}

func runRom(cmd *cobra.Command, args []string) error {
	rom := cfg.RomID()
	if len(args) == 1 {
		var err error
		rom, err = owvar.ParseRomID(args[0])
		if err != nil {
			return err
		}
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "ROM:    %s\n", rom)
	fmt.Fprintf(w, "Family: 0x%02X\n", rom.Family())
	fmt.Fprintf(w, "Serial: 0x%012X\n", rom.Serial())
	fmt.Fprintf(w, "CRC:    0x%02X\n", rom.CRC())
	fmt.Fprintf(w, "Bytes:  % X\n", rom.Bytes())
	return nil
}
