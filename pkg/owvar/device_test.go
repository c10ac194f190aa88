// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package owvar

import (
	"bytes"
	"errors"
	"io"
	"math"
	"testing"

	"github.com/loopholelabs/logging"
	"github.com/loopholelabs/logging/types"

	"github.com/Thermoquad/owslave/pkg/bus"
)

var testRom = NewRomID(0x42, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06)

// pollOne feeds wire to a fresh loopback and runs a single poll
func pollOne(t *testing.T, d *Device, wire []byte) (Result, *bus.Loopback) {
	t.Helper()
	lb := bus.NewLoopback(wire)
	res, _ := d.Poll(lb)
	return res, lb
}

func assertAcked(t *testing.T, lb *bus.Loopback) {
	t.Helper()
	if !bytes.Equal(lb.Sent(), []byte{AckCode}) {
		t.Errorf("expected a single ACK, sent % X", lb.Sent())
	}
	if len(lb.DeviceErrors()) != 0 {
		t.Errorf("accepted frame raised device errors: %X", lb.DeviceErrors())
	}
}

func assertRejected(t *testing.T, lb *bus.Loopback, tag uint8) {
	t.Helper()
	if len(lb.Sent()) != 0 {
		t.Errorf("rejected frame must not be answered, sent % X", lb.Sent())
	}
	if devErrs := lb.DeviceErrors(); len(devErrs) != 1 || devErrs[0] != tag {
		t.Errorf("device errors = %X, want [%02X]", devErrs, tag)
	}
}

// ============================================================
// Scenario Tests
// ============================================================

func TestDevice_Int8Accepted(t *testing.T) {
	d := NewDevice(testRom)

	res, lb := pollOne(t, d, EncodeInt8(42))
	if res.Outcome != OutcomeAccepted || res.Err != nil {
		t.Fatalf("outcome = %s, err = %v", res.Outcome, res.Err)
	}
	if d.Int8() != 42 {
		t.Errorf("Int8 = %d, want 42", d.Int8())
	}
	if d.LastCommand() != TagInt8 {
		t.Errorf("LastCommand = 0x%02X, want 0x%02X", d.LastCommand(), TagInt8)
	}
	assertAcked(t, lb)
}

func TestDevice_ChecksumMismatch(t *testing.T) {
	d := NewDevice(testRom)
	wire := EncodeInt8(42)
	wire[len(wire)-1] ^= 0xFF

	res, lb := pollOne(t, d, wire)
	if res.Outcome != OutcomeRejected {
		t.Fatalf("outcome = %s, want rejected", res.Outcome)
	}
	if !errors.Is(res.Err, ErrChecksumMismatch) {
		t.Errorf("expected ErrChecksumMismatch, got %v", res.Err)
	}
	if d.Int8() != 0 || d.LastCommand() != 0 {
		t.Errorf("state mutated: Int8=%d LastCommand=0x%02X", d.Int8(), d.LastCommand())
	}
	assertRejected(t, lb, TagInt8)
}

func TestDevice_UInt32ShortPayload(t *testing.T) {
	d := NewDevice(testRom)
	wire, err := EncodeFrame(TagUInt32, []byte{0x01, 0x02, 0x03})
	if err != nil {
		t.Fatal(err)
	}

	res, lb := pollOne(t, d, wire)
	if !errors.Is(res.Err, ErrLengthMismatch) {
		t.Fatalf("expected ErrLengthMismatch, got %v", res.Err)
	}
	if d.UInt32() != 0 {
		t.Errorf("UInt32 = %d, want 0", d.UInt32())
	}
	assertRejected(t, lb, TagUInt32)
}

func TestDevice_StructTruncated(t *testing.T) {
	d := NewDevice(testRom)
	payload := make([]byte, 40)
	for i := range payload {
		payload[i] = byte(i + 1)
	}
	wire, err := EncodeStruct(payload)
	if err != nil {
		t.Fatal(err)
	}

	res, lb := pollOne(t, d, wire)
	if res.Outcome != OutcomeAccepted {
		t.Fatalf("outcome = %s, err = %v", res.Outcome, res.Err)
	}
	if d.RawLen() != RawBufferSize {
		t.Errorf("RawLen = %d, want %d", d.RawLen(), RawBufferSize)
	}
	if !bytes.Equal(d.Raw(), payload[:RawBufferSize]) {
		t.Errorf("Raw = % X", d.Raw())
	}
	assertAcked(t, lb)
}

func TestDevice_UnknownTagWithoutHandler(t *testing.T) {
	d := NewDevice(testRom)
	wire, _ := EncodeFrame(0x99, []byte{0x01})

	res, lb := pollOne(t, d, wire)
	if !errors.Is(res.Err, ErrUnrecognizedCommand) {
		t.Fatalf("expected ErrUnrecognizedCommand, got %v", res.Err)
	}
	if d.LastCommand() != 0 {
		t.Errorf("LastCommand = 0x%02X, want 0", d.LastCommand())
	}
	assertRejected(t, lb, 0x99)
}

func TestDevice_UnknownTagAcceptedByHandler(t *testing.T) {
	h := NewTagHandler(0x99)
	d := NewDevice(testRom, WithHandler(h))
	wire, _ := EncodeFrame(0x99, []byte{0xAA, 0xBB})

	res, lb := pollOne(t, d, wire)
	if res.Outcome != OutcomeAccepted || !res.ByHandler {
		t.Fatalf("outcome = %s byHandler = %v err = %v", res.Outcome, res.ByHandler, res.Err)
	}
	if d.LastCommand() != 0x99 {
		t.Errorf("LastCommand = 0x%02X, want 0x99", d.LastCommand())
	}

	want := Registers{LastCommand: 0x99}
	if d.Snapshot() != want {
		t.Errorf("handler frame touched registers: %+v", d.Snapshot())
	}
	if h.Hits(0x99) != 1 {
		t.Errorf("handler hits = %d, want 1", h.Hits(0x99))
	}
	assertAcked(t, lb)
}

// ============================================================
// Handler Tests
// ============================================================

func TestDevice_HandlerDeclines(t *testing.T) {
	var seen []uint8
	d := NewDevice(testRom, WithHandler(HandlerFunc(func(tag uint8) bool {
		seen = append(seen, tag)
		return false
	})))
	wire, _ := EncodeFrame(0x77, nil)

	res, lb := pollOne(t, d, wire)
	if !errors.Is(res.Err, ErrUnrecognizedCommand) {
		t.Fatalf("expected ErrUnrecognizedCommand, got %v", res.Err)
	}
	var pe *ProtocolError
	if errors.As(res.Err, &pe) && pe.Details["handler"] != true {
		t.Errorf("error should record that a handler declined: %v", pe.Details)
	}
	if len(seen) != 1 || seen[0] != 0x77 {
		t.Errorf("handler calls = %X, want [77]", seen)
	}
	assertRejected(t, lb, 0x77)
}

func TestDevice_HandlerNotCalledForNativeTags(t *testing.T) {
	calls := 0
	d := NewDevice(testRom, WithHandler(HandlerFunc(func(tag uint8) bool {
		calls++
		return true
	})))

	frames := [][]byte{
		EncodeInt8(1),
		EncodeInt16(2),
		EncodeUInt16(3),
		EncodeInt32(4),
		EncodeUInt32(5),
		EncodeFloat32(6),
		EncodeChar('x'),
	}
	for _, wire := range frames {
		pollOne(t, d, wire)
	}
	if calls != 0 {
		t.Errorf("handler called %d times for native tags", calls)
	}
}

func TestDevice_HandlerNotCalledForBadChecksum(t *testing.T) {
	calls := 0
	d := NewDevice(testRom, WithHandler(HandlerFunc(func(tag uint8) bool {
		calls++
		return true
	})))
	wire, _ := EncodeFrame(0x50, nil)
	wire[len(wire)-1]++

	pollOne(t, d, wire)
	if calls != 0 {
		t.Error("handler must not see frames with a bad checksum")
	}
}

func TestDevice_SetHandler(t *testing.T) {
	d := NewDevice(testRom)
	wire, _ := EncodeFrame(0x60, nil)

	if res, _ := pollOne(t, d, wire); res.Outcome != OutcomeRejected {
		t.Fatalf("without handler: outcome = %s", res.Outcome)
	}

	d.SetHandler(NewTagHandler(0x60))
	if res, _ := pollOne(t, d, wire); res.Outcome != OutcomeAccepted {
		t.Fatalf("with handler: outcome = %s", res.Outcome)
	}

	d.SetHandler(nil)
	if res, _ := pollOne(t, d, wire); res.Outcome != OutcomeRejected {
		t.Fatalf("handler removed: outcome = %s", res.Outcome)
	}
}

func TestTagHandler_Tags(t *testing.T) {
	h := NewTagHandler(0x70, 0x40, 0x55, 0x40)
	got := h.Tags()
	if !bytes.Equal(got, []byte{0x40, 0x55, 0x70}) {
		t.Errorf("Tags = % X", got)
	}
	if h.TryHandle(0x41) {
		t.Error("0x41 was not configured")
	}
	if h.Hits(0x41) != 0 {
		t.Error("declined tags must not be counted")
	}
}

// ============================================================
// Length and Round-Trip Tests
// ============================================================

func TestDevice_LengthMismatchEveryFixedType(t *testing.T) {
	for tag, width := range fixedWidths {
		for length := 0; length <= 6; length++ {
			if length == width {
				continue
			}
			d := NewDevice(testRom)
			wire, _ := EncodeFrame(tag, bytes.Repeat([]byte{0x7F}, length))

			res, lb := pollOne(t, d, wire)
			if !errors.Is(res.Err, ErrLengthMismatch) {
				t.Errorf("tag 0x%02X len %d: expected ErrLengthMismatch, got %v", tag, length, res.Err)
				continue
			}
			if d.Snapshot() != (Registers{}) {
				t.Errorf("tag 0x%02X len %d: registers mutated", tag, length)
			}
			assertRejected(t, lb, tag)
		}
	}
}

func TestDevice_RoundTrip(t *testing.T) {
	d := NewDevice(testRom)

	tests := []struct {
		name  string
		wire  []byte
		check func() bool
	}{
		{"int8 min", EncodeInt8(math.MinInt8), func() bool { return d.Int8() == math.MinInt8 }},
		{"int8 max", EncodeInt8(math.MaxInt8), func() bool { return d.Int8() == math.MaxInt8 }},
		{"int16 negative", EncodeInt16(-12345), func() bool { return d.Int16() == -12345 }},
		{"int16 min", EncodeInt16(math.MinInt16), func() bool { return d.Int16() == math.MinInt16 }},
		{"uint16 max", EncodeUInt16(math.MaxUint16), func() bool { return d.UInt16() == math.MaxUint16 }},
		{"uint16 byte order", EncodeUInt16(0x0102), func() bool { return d.UInt16() == 0x0102 }},
		{"int32 negative", EncodeInt32(-123456789), func() bool { return d.Int32() == -123456789 }},
		{"int32 min", EncodeInt32(math.MinInt32), func() bool { return d.Int32() == math.MinInt32 }},
		{"uint32 max", EncodeUInt32(math.MaxUint32), func() bool { return d.UInt32() == math.MaxUint32 }},
		{"uint32 byte order", EncodeUInt32(0x01020304), func() bool { return d.UInt32() == 0x01020304 }},
		{"float pi", EncodeFloat32(3.14159), func() bool { return d.Float() == float32(3.14159) }},
		{"float negative zero", EncodeFloat32(float32(math.Copysign(0, -1))), func() bool {
			return math.Signbit(float64(d.Float()))
		}},
		{"float max", EncodeFloat32(math.MaxFloat32), func() bool { return d.Float() == math.MaxFloat32 }},
		{"char", EncodeChar('Z'), func() bool { return d.Char() == 'Z' }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, lb := pollOne(t, d, tt.wire)
			if res.Outcome != OutcomeAccepted {
				t.Fatalf("outcome = %s, err = %v", res.Outcome, res.Err)
			}
			if !tt.check() {
				t.Errorf("decoded value does not match (registers %+v)", d.Snapshot())
			}
			assertAcked(t, lb)
		})
	}
}

func TestDevice_FloatNaNBitPattern(t *testing.T) {
	d := NewDevice(testRom)
	bits := uint32(0x7FC00001)

	pollOne(t, d, EncodeFloat32(math.Float32frombits(bits)))
	if got := math.Float32bits(d.Float()); got != bits {
		t.Errorf("NaN bits = 0x%08X, want 0x%08X", got, bits)
	}
}

func TestDevice_RegistersAreIndependent(t *testing.T) {
	d := NewDevice(testRom)
	pollOne(t, d, EncodeInt16(100))
	pollOne(t, d, EncodeUInt16(200))

	if d.Int16() != 100 || d.UInt16() != 200 {
		t.Errorf("Int16=%d UInt16=%d", d.Int16(), d.UInt16())
	}
	if d.LastCommand() != TagUInt16 {
		t.Errorf("LastCommand = 0x%02X", d.LastCommand())
	}
}

func TestDevice_EmptyStructClearsRaw(t *testing.T) {
	d := NewDevice(testRom)
	d.CaptureRaw([]byte{1, 2, 3})

	wire, _ := EncodeStruct(nil)
	res, lb := pollOne(t, d, wire)
	if res.Outcome != OutcomeAccepted {
		t.Fatalf("outcome = %s", res.Outcome)
	}
	if d.RawLen() != 0 {
		t.Errorf("RawLen = %d, want 0", d.RawLen())
	}
	assertAcked(t, lb)
}

// ============================================================
// Atomicity Tests
// ============================================================

func TestDevice_RejectedFrameKeepsPreviousState(t *testing.T) {
	d := NewDevice(testRom)
	pollOne(t, d, EncodeInt8(5))
	before := d.Snapshot()

	bad := EncodeInt8(9)
	bad[len(bad)-1] ^= 0x10
	short, _ := EncodeFrame(TagInt8, []byte{9, 9})
	unknown, _ := EncodeFrame(0x98, []byte{9})

	for _, wire := range [][]byte{bad, short, unknown, {0x01, TagInt8}} {
		pollOne(t, d, wire)
		if d.Snapshot() != before {
			t.Fatalf("state changed after rejecting % X", wire)
		}
	}
}

func TestDevice_AckFailureCommitsNothing(t *testing.T) {
	d := NewDevice(testRom)
	lb := bus.NewLoopback(EncodeInt32(77))
	sendErr := errors.New("bus collision")
	lb.FailSends(sendErr)

	res, err := d.Poll(lb)
	if res.Outcome != OutcomeRejected || res.Handled {
		t.Fatalf("outcome = %s handled = %v", res.Outcome, res.Handled)
	}
	if !errors.Is(err, sendErr) {
		t.Errorf("expected send error, got %v", err)
	}
	var pe *ProtocolError
	if errors.As(err, &pe) {
		t.Error("send failure is not a protocol error")
	}
	if d.Int32() != 0 || d.LastCommand() != 0 {
		t.Errorf("state committed without ACK: Int32=%d LastCommand=0x%02X", d.Int32(), d.LastCommand())
	}
}

func TestDevice_AckIffHandled(t *testing.T) {
	d := NewDevice(testRom, WithHandler(NewTagHandler(0x40)))
	good, _ := EncodeFrame(0x40, nil)
	bad, _ := EncodeFrame(0x41, nil)
	shortStruct := []byte{0x01, TagStruct, 0x04, 0x00}

	for _, wire := range [][]byte{EncodeInt8(1), good, bad, shortStruct, EncodeChar('q')} {
		lb := bus.NewLoopback(wire)
		handled := false
		if f, err := Receive(lb); err == nil && f != nil {
			handled, _ = d.Dispatch(lb, f)
		}

		acked := bytes.Equal(lb.Sent(), []byte{AckCode})
		if acked != handled {
			t.Errorf("% X: handled=%v acked=%v", wire, handled, acked)
		}
		if len(lb.Sent()) > 1 {
			t.Errorf("% X: more than one response byte: % X", wire, lb.Sent())
		}
	}
}

// ============================================================
// Poll Tests
// ============================================================

func TestDevice_PollIdle(t *testing.T) {
	d := NewDevice(testRom)
	res, err := d.Poll(bus.NewLoopback())
	if err != nil || res.Outcome != OutcomeIdle {
		t.Errorf("outcome = %s err = %v, want idle", res.Outcome, err)
	}
}

func TestDevice_PollIgnoredSelector(t *testing.T) {
	d := NewDevice(testRom)
	res, lb := pollOne(t, d, []byte{0xCC})

	if res.Outcome != OutcomeIgnored {
		t.Fatalf("outcome = %s, want ignored", res.Outcome)
	}
	var se *SelectorError
	if !errors.As(res.Err, &se) || se.Selector != 0xCC {
		t.Errorf("expected SelectorError(0xCC), got %v", res.Err)
	}
	if len(lb.DeviceErrors()) != 0 || len(lb.Sent()) != 0 {
		t.Error("ignored selector should be silent")
	}
}

func TestDevice_PollBackToBackFrames(t *testing.T) {
	d := NewDevice(testRom)
	lb := bus.NewLoopback(EncodeInt8(-1), EncodeUInt16(513), EncodeChar('k'))

	for i := 0; i < 3; i++ {
		if res, err := d.Poll(lb); err != nil || res.Outcome != OutcomeAccepted {
			t.Fatalf("frame %d: outcome = %s err = %v", i, res.Outcome, err)
		}
	}
	if res, _ := d.Poll(lb); res.Outcome != OutcomeIdle {
		t.Errorf("expected idle after the last frame, got %s", res.Outcome)
	}
	if !bytes.Equal(lb.Sent(), []byte{AckCode, AckCode, AckCode}) {
		t.Errorf("sent % X", lb.Sent())
	}
	if d.Int8() != -1 || d.UInt16() != 513 || d.Char() != 'k' {
		t.Errorf("registers %+v", d.Snapshot())
	}
}

func TestDevice_PollRecoversAfterError(t *testing.T) {
	d := NewDevice(testRom)
	bad := EncodeInt8(3)
	bad[len(bad)-1]++
	lb := bus.NewLoopback(bad, EncodeInt8(4))

	if res, _ := d.Poll(lb); res.Outcome != OutcomeRejected {
		t.Fatalf("first frame: outcome = %s", res.Outcome)
	}
	if res, _ := d.Poll(lb); res.Outcome != OutcomeAccepted {
		t.Fatalf("second frame: outcome = %s", res.Outcome)
	}
	if d.Int8() != 4 {
		t.Errorf("Int8 = %d, want 4", d.Int8())
	}
}

func TestDevice_PollWithLogger(t *testing.T) {
	log := logging.New(logging.Zerolog, "owvar.test", io.Discard)
	log.SetLevel(types.TraceLevel)
	d := NewDevice(testRom, WithLogger(log), WithHandler(NewTagHandler(0x40)))

	hooked, _ := EncodeFrame(0x40, nil)
	unknown, _ := EncodeFrame(0x41, nil)
	lb := bus.NewLoopback(EncodeFloat32(1.5), hooked, unknown, []byte{0x02}, []byte{0x01, 0x0F})

	for lb.Pending() > 0 {
		d.Poll(lb)
	}
	if d.Float() != 1.5 {
		t.Errorf("Float = %v", d.Float())
	}
}

// ============================================================
// Owner Accessor Tests
// ============================================================

func TestDevice_RawReturnsCopy(t *testing.T) {
	d := NewDevice(testRom)
	d.CaptureRaw([]byte{0x10, 0x20})

	raw := d.Raw()
	raw[0] = 0xFF
	if d.Raw()[0] != 0x10 {
		t.Error("Raw() exposes the internal buffer")
	}
}

func TestDevice_CaptureRawTruncates(t *testing.T) {
	d := NewDevice(testRom)
	d.CaptureRaw(bytes.Repeat([]byte{0xAB}, 50))
	if d.RawLen() != RawBufferSize {
		t.Errorf("RawLen = %d, want %d", d.RawLen(), RawBufferSize)
	}
}

func TestDevice_ScratchpadValue(t *testing.T) {
	d := NewDevice(testRom)
	if d.Value() != 0 {
		t.Errorf("initial Value = %d", d.Value())
	}
	d.SetValue(0x1234)
	if d.Value() != 0x34 {
		t.Errorf("Value = 0x%X, want 0x34", d.Value())
	}
	d.SetValue(-1)
	if d.Value() != 0xFF {
		t.Errorf("Value = 0x%X, want 0xFF", d.Value())
	}
}

func TestDevice_Rom(t *testing.T) {
	d := NewDevice(testRom)
	if d.Rom() != testRom {
		t.Errorf("Rom = %s", d.Rom())
	}
}

func TestDevice_DispatchDirect(t *testing.T) {
	d := NewDevice(testRom)
	unsigned := NewFrame(TagInt8, []byte{7}, 0)
	f := NewFrame(TagInt8, []byte{7}, unsigned.ComputeChecksum())
	lb := bus.NewLoopback()

	handled, err := d.Dispatch(lb, f)
	if !handled || err != nil {
		t.Fatalf("handled = %v err = %v", handled, err)
	}
	if d.Int8() != 7 {
		t.Errorf("Int8 = %d", d.Int8())
	}
	assertAcked(t, lb)
}
