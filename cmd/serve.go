// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/loopholelabs/logging/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/owslave/pkg/bus"
	"github.com/Thermoquad/owslave/pkg/metrics"
	"github.com/Thermoquad/owslave/pkg/owvar"
)

var (
	serveShowRejected bool
	serveStatsEvery   int
	serveTUI          bool
	serveMetrics      string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the emulated slave on a serial or WebSocket connection",
	Long: `Attach the emulated device to the connection and answer "send variable"
packets until interrupted.

Every accepted packet is printed with its decoded value. Rejected packets
(CRC errors, length mismatches, unknown commands, short reads) are printed
with --show-rejected and always counted in the periodic statistics.

Tags listed in [hook] accept_tags of the config file are acknowledged by the
extension handler instead of being rejected as unknown.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveShowRejected, "show-rejected", true, "Print rejected packets")
	serveCmd.Flags().IntVar(&serveStatsEvery, "stats-interval", 10, "Statistics update interval (seconds, 0 disables)")
	serveCmd.Flags().BoolVar(&serveTUI, "tui", false, "Use terminal UI")
	serveCmd.Flags().StringVarP(&serveMetrics, "metrics", "m", "", "Prometheus metrics address (overrides [metrics] addr)")
}

// emulator is everything a serve session needs to poll the device
type emulator struct {
	session string
	device  *owvar.Device
	handler *owvar.TagHandler
	stream  *bus.Stream
	stats   *owvar.Statistics
	metrics *metrics.Metrics
	log     types.Logger
}

func newEmulator(conn Connection, log types.Logger, met *metrics.Metrics) *emulator {
	e := &emulator{
		session: uuid.NewString(),
		stats:   owvar.NewStatistics(),
		metrics: met,
		log:     log,
	}

	opts := []bus.Option{
		bus.WithIdleTimeout(cfg.Transport.IdleTimeout),
		bus.WithByteTimeout(cfg.Transport.ByteTimeout),
		bus.WithLogger(log),
	}
	if met != nil {
		opts = append(opts, bus.WithErrorHook(met.DeviceError))
	}
	e.stream = bus.NewStream(conn, opts...)

	devOpts := []owvar.Option{owvar.WithLogger(log)}
	if tags := cfg.HookTags(); len(tags) > 0 {
		e.handler = owvar.NewTagHandler(tags...)
		devOpts = append(devOpts, owvar.WithHandler(e.handler))
	}
	e.device = owvar.NewDevice(cfg.RomID(), devOpts...)

	return e
}

// poll runs one cycle on the device
func (e *emulator) poll() owvar.Result {
	res, _ := e.device.Poll(e.stream)
	return res
}

// record adds a poll result to the statistics and metrics
func (e *emulator) record(res owvar.Result) {
	e.stats.Update(res)
	if e.metrics != nil {
		e.metrics.Observe(res)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	log := newLogger("serve")

	met, err := startMetrics(log)
	if err != nil {
		return err
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	emu := newEmulator(conn, log, met)
	log.Info().Str("session", emu.session).Str("rom", emu.device.Rom().String()).Msg("device attached")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if serveTUI {
		return runServeTUI(ctx, emu, connInfo)
	}
	return runServeText(ctx, emu, connInfo)
}

// startMetrics serves /metrics when an address is configured
func startMetrics(log types.Logger) (*metrics.Metrics, error) {
	addr := cfg.Metrics.Addr
	if serveMetrics != "" {
		addr = serveMetrics
	}
	if addr == "" {
		return nil, nil
	}

	reg := prometheus.NewRegistry()
	met := metrics.New(reg)
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", addr).Msg("metrics server stopped")
		}
	}()
	return met, nil
}

func runServeText(ctx context.Context, emu *emulator, connInfo string) error {
	fmt.Printf("Owslave - Emulated Slave\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("ROM: %s\n", emu.device.Rom())
	fmt.Printf("Session: %s\n", emu.session)
	if emu.handler != nil {
		fmt.Printf("Handler tags: % X\n", emu.handler.Tags())
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	var statsTick <-chan time.Time
	if serveStatsEvery > 0 {
		ticker := time.NewTicker(time.Duration(serveStatsEvery) * time.Second)
		defer ticker.Stop()
		statsTick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			fmt.Print(emu.stats.String())
			return nil
		case <-statsTick:
			fmt.Println()
			fmt.Print(emu.stats.String())
			fmt.Println()
		default:
		}

		if err := emu.stream.Err(); err != nil {
			fmt.Print(emu.stats.String())
			if isConnectionClosed(err) {
				emu.log.Info().Msg("connection closed")
				return nil
			}
			return fmt.Errorf("connection lost: %w", err)
		}

		res := emu.poll()
		emu.record(res)
		switch res.Outcome {
		case owvar.OutcomeAccepted:
			regs := emu.device.Snapshot()
			fmt.Print(owvar.FormatResult(res, &regs))
			if res.Frame.Tag() == owvar.TagStruct {
				fmt.Print(owvar.FormatRaw(&regs))
			}
		case owvar.OutcomeRejected, owvar.OutcomeIgnored:
			if serveShowRejected {
				regs := emu.device.Snapshot()
				fmt.Print(owvar.FormatResult(res, &regs))
			}
		}
	}
}
