// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/owslave/pkg/bus"
	"github.com/Thermoquad/owslave/pkg/owvar"
)

var decodeCmd = &cobra.Command{
	Use:   "decode <hex bytes>...",
	Short: "Run captured bytes through an offline device",
	Long: `Feed hex bytes to an emulated device on an in-memory bus and print what
it would have done: every frame, the ACK bytes, the device errors raised and
the final register values.

Several frames may be given back to back. Struct payloads are also shown as
CBOR when they decode as one.

Example:
  owslave decode 01 0F 01 05 A4`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDecode,
}

func init() {
	rootCmd.AddCommand(decodeCmd)
}

func runDecode(cmd *cobra.Command, args []string) error {
	data, err := owvar.ParseHex(strings.Join(args, " "))
	if err != nil {
		return err
	}
	return decodeBytes(cmd.OutOrStdout(), data)
}

// decodeBytes polls an offline device until every byte is consumed
func decodeBytes(w io.Writer, data []byte) error {
	lb := bus.NewLoopback(data)

	var opts []owvar.Option
	if tags := cfg.HookTags(); len(tags) > 0 {
		opts = append(opts, owvar.WithHandler(owvar.NewTagHandler(tags...)))
	}
	dev := owvar.NewDevice(cfg.RomID(), opts...)

	stats := owvar.NewStatistics()
	for lb.Pending() > 0 {
		res, _ := dev.Poll(lb)
		stats.Update(res)
		regs := dev.Snapshot()
		fmt.Fprint(w, owvar.FormatResult(res, &regs))
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "ACK bytes sent: %d\n", len(lb.Sent()))
	if errs := lb.DeviceErrors(); len(errs) > 0 {
		fmt.Fprintf(w, "Device errors:  % X\n", errs)
	}
	fmt.Fprintf(w, "Accepted %d of %d frames\n\n", stats.AcceptedPackets, stats.TotalPackets)

	regs := dev.Snapshot()
	fmt.Fprint(w, owvar.FormatSnapshot(&regs))
	if regs.RawLen > 0 {
		if diag, err := owvar.FormatRawCBOR(regs.RawBytes()); err == nil {
			fmt.Fprintf(w, "Raw as CBOR: %s\n", diag)
		}
	}

	if stats.Errors() > 0 {
		fmt.Fprintln(os.Stderr, "one or more frames were rejected")
	}
	return nil
}
