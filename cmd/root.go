// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"os"

	"github.com/loopholelabs/logging"
	"github.com/loopholelabs/logging/types"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/owslave/pkg/config"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// General flags
	configPath string
	romFlag    string
	debugLog   bool
	traceLog   bool

	// cfg is the effective configuration: file values overridden by flags
	cfg = config.Default()
)

var rootCmd = &cobra.Command{
	Use:   "owslave",
	Short: "1-Wire \"send variable\" slave emulator",
	Long: `Owslave - emulates a 1-Wire peripheral that accepts typed values from a bus master.

The master pushes INT8, INT16, UINT16, INT32, UINT32, FLOAT32, CHAR8 and raw
STRUCT values in CRC-8 protected frames; the emulator stores them and answers
with an ACK byte. Unknown tags can be accepted through the [hook] config section.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]

Settings may also come from a TOML file (--config); flags take precedence.
For WebSocket authentication, the password is read from the OWSLAVE_PASSWORD
environment variable, or prompted interactively if not set.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "TOML configuration file")
	rootCmd.PersistentFlags().StringVar(&romFlag, "rom", "", "Device ROM id (ff.ssssssssssss.cc or 14 hex digits)")
	rootCmd.PersistentFlags().BoolVarP(&debugLog, "debug", "d", false, "Debug logging")
	rootCmd.PersistentFlags().BoolVar(&traceLog, "trace", false, "Trace logging (every frame)")
}

// loadConfig merges the config file and explicitly set flags into cfg
func loadConfig(cmd *cobra.Command, args []string) error {
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Transport.Port = portName
		cfg.Transport.URL = ""
	}
	if flags.Changed("url") {
		cfg.Transport.URL = wsURL
		cfg.Transport.Port = ""
	}
	if flags.Changed("baud") {
		cfg.Transport.Baud = baudRate
	}
	if flags.Changed("username") {
		cfg.Transport.Username = wsUsername
	}
	if flags.Changed("no-ssl-verify") {
		cfg.Transport.NoSSLVerify = wsNoSSLVerify
	}
	if flags.Changed("rom") {
		cfg.Device.Rom = romFlag
	}

	return config.Validate(cfg)
}

// newLogger creates the structured logger for a command. Without --debug or
// --trace only warnings and errors are shown.
func newLogger(name string) types.RootLogger {
	log := logging.New(logging.Zerolog, "owslave."+name, os.Stderr)
	switch {
	case traceLog:
		log.SetLevel(types.TraceLevel)
	case debugLog:
		log.SetLevel(types.DebugLevel)
	default:
		log.SetLevel(types.WarnLevel)
	}
	return log
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
