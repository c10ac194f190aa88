// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/owslave/pkg/bus"
	"github.com/Thermoquad/owslave/pkg/owvar"
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display bus traffic without answering",
	Long: `Passively decode "send variable" frames as they cross the connection.

Unlike serve, nothing is ever written back: use this next to a real slave to
watch what the master sends and whether the slave acknowledges it. Frames are
shown with their CRC status; ACK bytes from the slave and stray bytes are
listed separately.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
}

func runRawLog(cmd *cobra.Command, args []string) error {
	log := newLogger("raw_log")

	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("Owslave - Raw Bus Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	stream := bus.NewStream(conn,
		bus.WithIdleTimeout(cfg.Transport.IdleTimeout),
		bus.WithByteTimeout(cfg.Transport.ByteTimeout),
		bus.WithLogger(log),
	)

	for {
		if err := stream.Err(); err != nil {
			if isConnectionClosed(err) {
				log.Info().Msg("connection closed")
				return nil
			}
			return fmt.Errorf("connection lost: %w", err)
		}

		f, err := owvar.Receive(stream)
		// Nothing is ever sent, so every packet ends here
		stream.EndPacket()
		if err != nil {
			var se *owvar.SelectorError
			if errors.As(err, &se) {
				stamp := time.Now().Format("15:04:05.000")
				if se.Selector == owvar.AckCode {
					fmt.Printf("[%s] <- ACK\n", stamp)
				} else {
					fmt.Printf("[%s] stray byte 0x%02X\n", stamp, se.Selector)
				}
				continue
			}
			fmt.Printf("[ERROR] %v\n", err)
			continue
		}
		if f != nil {
			fmt.Print(owvar.FormatFrame(f))
		}
	}
}
