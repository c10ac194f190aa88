// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package metrics exports poll outcomes as Prometheus metrics.
package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Thermoquad/owslave/pkg/owvar"
)

const namespace = "owslave"

// Metrics holds the collectors for one device
type Metrics struct {
	frames       *prometheus.CounterVec
	rejections   *prometheus.CounterVec
	deviceErrors *prometheus.CounterVec
	acks         prometheus.Counter
	lastCommand  prometheus.Gauge
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "frames_total", Help: "Frames processed by outcome"}, []string{"outcome"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "rejections_total", Help: "Rejected frames by error kind"}, []string{"kind"}),
		deviceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "device_errors_total", Help: "Device errors raised on the bus by tag"}, []string{"tag"}),
		acks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "acks_total", Help: "ACK bytes sent"}),
		lastCommand: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "last_command", Help: "Tag of the last accepted command"}),
	}

	reg.MustRegister(m.frames, m.rejections, m.deviceErrors, m.acks, m.lastCommand)
	return m
}

// Observe records one poll result. Idle polls are skipped.
func (m *Metrics) Observe(res owvar.Result) {
	if res.Outcome == owvar.OutcomeIdle {
		return
	}
	m.frames.WithLabelValues(res.Outcome.String()).Inc()

	switch res.Outcome {
	case owvar.OutcomeAccepted:
		m.acks.Inc()
		if res.Frame != nil {
			m.lastCommand.Set(float64(res.Frame.Tag()))
		}
	case owvar.OutcomeRejected:
		kind := "send_failure"
		var pe *owvar.ProtocolError
		if errors.As(res.Err, &pe) {
			kind = pe.Kind.String()
		}
		m.rejections.WithLabelValues(kind).Inc()
	}
}

// DeviceError records a device error raised on the bus
func (m *Metrics) DeviceError(tag uint8) {
	m.deviceErrors.WithLabelValues(fmt.Sprintf("0x%02X", tag)).Inc()
}
