// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/owslave/pkg/owvar"
)

var (
	sendType    string
	sendValue   string
	sendCBOR    bool
	sendTimeout int
	sendCount   int
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Act as the bus master and push one typed value to a slave",
	Long: `Encode a "send variable" packet and wait for the slave's ACK.

--type is a type name (int8, int16, uint16, int32, uint32, float32, char8,
struct) or a numeric tag such as 0x40. --value is parsed for that type;
struct and unknown tags take hex bytes ("01 02 ff").

With --cbor the value is read as JSON, CBOR-encoded and sent as a STRUCT.
The slave keeps at most 32 bytes of it.

Exit codes:
  0 - Every packet was acknowledged
  1 - One or more packets got no ACK before the timeout
  2 - Connection or encoding error`,
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVarP(&sendType, "type", "t", "", "Value type or numeric tag")
	sendCmd.Flags().StringVarP(&sendValue, "value", "v", "", "Value to send")
	sendCmd.Flags().BoolVar(&sendCBOR, "cbor", false, "Encode a JSON value as a CBOR STRUCT")
	sendCmd.Flags().IntVar(&sendTimeout, "timeout", 2, "Seconds to wait for each ACK")
	sendCmd.Flags().IntVar(&sendCount, "count", 1, "Number of times to send the packet")
}

// buildSendFrame encodes the packet described by the send flags
func buildSendFrame(typeName, value string, asCBOR bool) ([]byte, error) {
	if asCBOR {
		var v interface{}
		if err := json.Unmarshal([]byte(value), &v); err != nil {
			return nil, fmt.Errorf("invalid JSON value: %w", err)
		}
		return owvar.EncodeStructCBOR(v)
	}

	if typeName == "" {
		return nil, fmt.Errorf("--type is required")
	}
	tag, err := owvar.ParseTag(typeName)
	if err != nil {
		return nil, err
	}
	payload, err := owvar.ParseValue(tag, value)
	if err != nil {
		return nil, err
	}
	return owvar.EncodeFrame(tag, payload)
}

func runSend(cmd *cobra.Command, args []string) error {
	frame, err := buildSendFrame(sendType, sendValue, sendCBOR)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Encoding error: %v\n", err)
		os.Exit(2)
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	log := newLogger("send")

	fmt.Printf("Owslave - Send Variable\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Frame: % X\n", frame)
	fmt.Printf("Timeout: %d seconds per packet\n\n", sendTimeout)

	// Reader goroutine forwards every response byte
	respChan := make(chan byte, 64)
	errChan := make(chan error, 1)
	go func() {
		buf := make([]byte, 64)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				errChan <- err
				return
			}
			for i := 0; i < n; i++ {
				respChan <- buf[i]
			}
		}
	}()

	successCount := 0
	failCount := 0

	for i := 1; i <= sendCount; i++ {
		fmt.Printf("Packet %d/%d: ", i, sendCount)

		startTime := time.Now()
		if _, err := conn.Write(frame); err != nil {
			fmt.Printf("SEND FAILED: %v\n", err)
			os.Exit(2)
		}
		log.Debug().Int("len", len(frame)).Msg("frame written")

		timeout := time.After(time.Duration(sendTimeout) * time.Second)
		done := false
		for !done {
			select {
			case b := <-respChan:
				if b == owvar.AckCode {
					fmt.Printf("ACK in %v\n", time.Since(startTime).Round(time.Microsecond))
					done = true
					successCount++
					continue
				}
				log.Debug().Str("byte", fmt.Sprintf("0x%02X", b)).Msg("ignoring non-ACK byte")

			case err := <-errChan:
				fmt.Printf("READ FAILED: %v\n", err)
				os.Exit(2)

			case <-timeout:
				fmt.Printf("TIMEOUT (no ACK)\n")
				failCount++
				done = true
			}
		}
	}

	fmt.Printf("\n%d/%d acknowledged\n", successCount, sendCount)
	if failCount > 0 {
		os.Exit(1)
	}
	return nil
}
