// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package owvar

import (
	"github.com/loopholelabs/logging/types"
)

// Outcome summarises what a single poll did
type Outcome int

const (
	OutcomeIdle     Outcome = iota // no selector byte available
	OutcomeIgnored                 // selector not handled by this device
	OutcomeAccepted                // ACK sent, state updated
	OutcomeRejected                // packet aborted, device error raised
)

// String returns the outcome name
func (o Outcome) String() string {
	switch o {
	case OutcomeIdle:
		return "idle"
	case OutcomeIgnored:
		return "ignored"
	case OutcomeAccepted:
		return "accepted"
	case OutcomeRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Result describes one poll cycle
type Result struct {
	Outcome   Outcome
	Frame     *Frame // nil for idle, ignored and receive failures
	Handled   bool
	ByHandler bool // the extension handler consumed the tag
	Err       error
}

// Device is the emulated slave: its ROM identity, register file and
// optional extension handler. A Device must only be driven from one
// goroutine; nothing in it is locked.
type Device struct {
	rom        RomID
	regs       Registers
	scratchpad [ScratchpadSize]byte
	handler    Handler
	log        types.Logger
	staging    [StagingSize]byte
}

// Option configures a Device
type Option func(*Device)

// WithHandler installs the extension handler
func WithHandler(h Handler) Option {
	return func(d *Device) {
		d.handler = h
	}
}

// WithLogger attaches a logger. Without one the device is silent.
func WithLogger(log types.Logger) Option {
	return func(d *Device) {
		d.log = log
	}
}

// NewDevice creates a device with all registers zeroed
func NewDevice(rom RomID, opts ...Option) *Device {
	d := &Device{rom: rom}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SetHandler installs or replaces the extension handler (nil removes it)
func (d *Device) SetHandler(h Handler) {
	d.handler = h
}

// Poll runs at most one packet through receive, dispatch and response.
// The returned error is nil for idle polls and accepted packets.
func (d *Device) Poll(bus Bus) (Result, error) {
	f, err := receiveInto(bus, d.staging[:])
	if err != nil {
		if se, ok := err.(*SelectorError); ok {
			if d.log != nil {
				d.log.Trace().Str("selector", hexByte(se.Selector)).Msg("ignoring selector")
			}
			endPacket(bus)
			return Result{Outcome: OutcomeIgnored, Err: err}, err
		}
		d.logReject(nil, err)
		return Result{Outcome: OutcomeRejected, Err: err}, err
	}
	if f == nil {
		return Result{Outcome: OutcomeIdle}, nil
	}

	if d.log != nil {
		d.log.Trace().
			Str("tag", hexByte(f.tag)).
			Int("length", int(f.length)).
			Str("crc", hexByte(f.checksum)).
			Msg("frame received")
	}

	return d.dispatch(bus, f)
}

// Rom returns the device ROM identity
func (d *Device) Rom() RomID { return d.rom }

// Int8 returns the last accepted INT8 value
func (d *Device) Int8() int8 { return d.regs.Int8 }

// Int16 returns the last accepted INT16 value
func (d *Device) Int16() int16 { return d.regs.Int16 }

// UInt16 returns the last accepted UINT16 value
func (d *Device) UInt16() uint16 { return d.regs.UInt16 }

// Int32 returns the last accepted INT32 value
func (d *Device) Int32() int32 { return d.regs.Int32 }

// UInt32 returns the last accepted UINT32 value
func (d *Device) UInt32() uint32 { return d.regs.UInt32 }

// Float returns the last accepted FLOAT32 value
func (d *Device) Float() float32 { return d.regs.Float }

// Char returns the last accepted CHAR8 value
func (d *Device) Char() byte { return d.regs.Char }

// Raw returns a copy of the valid part of the raw buffer
func (d *Device) Raw() []byte {
	out := make([]byte, d.regs.RawLen)
	copy(out, d.regs.RawBytes())
	return out
}

// RawLen returns the number of valid bytes in the raw buffer
func (d *Device) RawLen() uint8 { return d.regs.RawLen }

// LastCommand returns the tag of the most recently accepted packet
func (d *Device) LastCommand() uint8 { return d.regs.LastCommand }

// Snapshot returns a copy of the register file
func (d *Device) Snapshot() Registers { return d.regs }

// CaptureRaw copies data into the raw buffer from the owner side,
// truncating to RawBufferSize.
func (d *Device) CaptureRaw(data []byte) {
	d.regs.captureRaw(data)
}

// SetValue stores the low byte of value in the scratchpad
func (d *Device) SetValue(value int) {
	d.scratchpad[0] = byte(value & 0xFF)
}

// Value returns scratchpad byte 0
func (d *Device) Value() int {
	return int(d.scratchpad[0])
}

func (d *Device) logAccept(f *Frame, byHandler bool) {
	if d.log == nil {
		return
	}
	if byHandler {
		d.log.Info().Str("tag", hexByte(f.tag)).Msg("custom handler processed command")
		return
	}
	d.log.Info().
		Str("type", FormatTag(f.tag)).
		Str("value", formatRegisterValue(&d.regs, f.tag)).
		Msg("value received")
}

func (d *Device) logReject(f *Frame, err error) {
	if d.log == nil {
		return
	}
	ev := d.log.Warn().Err(err)
	if pe, ok := err.(*ProtocolError); ok {
		ev = ev.Str("kind", pe.Kind.String()).Str("stage", pe.Stage.String()).Str("tag", hexByte(pe.Tag))
	}
	if f != nil {
		ev = ev.Int("length", int(f.length))
	}
	ev.Msg("packet rejected")
}

func (d *Device) logSendFailure(f *Frame, err error) {
	if d.log == nil {
		return
	}
	d.log.Error().Err(err).Str("tag", hexByte(f.tag)).Msg("ACK not delivered, state unchanged")
}
