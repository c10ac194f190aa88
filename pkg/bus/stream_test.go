// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bus

import (
	"bytes"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/owslave/pkg/owvar"
)

// pipeConn reads from an io.Pipe and records writes
type pipeConn struct {
	*io.PipeReader

	mu  sync.Mutex
	out bytes.Buffer
}

func (c *pipeConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out.Write(p)
}

func (c *pipeConn) written() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.out.Bytes()...)
}

func newTestStream(t *testing.T, opts ...Option) (*Stream, *pipeConn, *io.PipeWriter) {
	t.Helper()
	pr, pw := io.Pipe()
	conn := &pipeConn{PipeReader: pr}
	s := NewStream(conn, opts...)
	t.Cleanup(func() {
		pw.Close()
		s.Close()
	})
	return s, conn, pw
}

func feed(pw *io.PipeWriter, data []byte) {
	go pw.Write(data)
}

func TestStreamRecv(t *testing.T) {
	s, _, pw := newTestStream(t)
	feed(pw, []byte{0x01, 0x0F, 0x01})

	p := make([]byte, 3)
	require.NoError(t, s.Recv(p))
	assert.Equal(t, []byte{0x01, 0x0F, 0x01}, p)
}

func TestStreamIdleTimeout(t *testing.T) {
	s, _, _ := newTestStream(t, WithIdleTimeout(20*time.Millisecond))

	start := time.Now()
	err := s.Recv(make([]byte, 1))
	assert.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	assert.NoError(t, s.Err())
}

func TestStreamByteTimeoutMidPacket(t *testing.T) {
	s, _, pw := newTestStream(t,
		WithIdleTimeout(time.Second),
		WithByteTimeout(20*time.Millisecond),
	)
	feed(pw, []byte{0x01, 0x0E})

	require.NoError(t, s.Recv(make([]byte, 1)))

	start := time.Now()
	err := s.Recv(make([]byte, 2))
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 500*time.Millisecond, "mid-packet reads should use the byte timeout")
}

func TestStreamIgnoredSelectorEndsPacket(t *testing.T) {
	s, _, pw := newTestStream(t,
		WithIdleTimeout(200*time.Millisecond),
		WithByteTimeout(20*time.Millisecond),
	)
	d := owvar.NewDevice(owvar.NewRomID(0x42, 1, 2, 3, 4, 5, 6))
	feed(pw, []byte{0xCC})

	res, _ := d.Poll(s)
	require.Equal(t, owvar.OutcomeIgnored, res.Outcome)

	start := time.Now()
	err := s.Recv(make([]byte, 1))
	assert.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond, "next selector should use the idle timeout")
}

func TestStreamEndPacket(t *testing.T) {
	s, _, pw := newTestStream(t,
		WithIdleTimeout(200*time.Millisecond),
		WithByteTimeout(20*time.Millisecond),
	)
	feed(pw, []byte{0x01})
	require.NoError(t, s.Recv(make([]byte, 1)))
	s.EndPacket()

	start := time.Now()
	assert.ErrorIs(t, s.Recv(make([]byte, 1)), ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestStreamClosed(t *testing.T) {
	s, _, pw := newTestStream(t, WithIdleTimeout(time.Second))
	require.NoError(t, pw.Close())

	assert.ErrorIs(t, s.Recv(make([]byte, 1)), ErrClosed)
	assert.ErrorIs(t, s.Err(), io.EOF)
}

func TestStreamSend(t *testing.T) {
	s, conn, _ := newTestStream(t)

	require.NoError(t, s.Send([]byte{owvar.AckCode}))
	assert.Equal(t, []byte{owvar.AckCode}, conn.written())
}

func TestStreamDeviceErrors(t *testing.T) {
	var hooked []uint8
	s, _, _ := newTestStream(t, WithErrorHook(func(tag uint8) {
		hooked = append(hooked, tag)
	}))

	_, ok := s.LastDeviceError()
	assert.False(t, ok)

	s.RaiseDeviceError(0x12)
	s.RaiseDeviceError(0x12)
	s.RaiseDeviceError(0)

	tag, ok := s.LastDeviceError()
	assert.True(t, ok)
	assert.Equal(t, uint8(0), tag)
	assert.Equal(t, uint64(2), s.DeviceErrorCount(0x12))
	assert.Equal(t, uint64(1), s.DeviceErrorCount(0))
	assert.Equal(t, []uint8{0x12, 0x12, 0}, hooked)
}

func TestStreamDrivesDevice(t *testing.T) {
	s, conn, pw := newTestStream(t,
		WithIdleTimeout(100*time.Millisecond),
		WithByteTimeout(100*time.Millisecond),
	)
	d := owvar.NewDevice(owvar.NewRomID(0x42, 1, 2, 3, 4, 5, 6))

	bad := owvar.EncodeInt16(7)
	bad[len(bad)-1] ^= 0x01
	var wire []byte
	wire = append(wire, owvar.EncodeInt8(42)...)
	wire = append(wire, bad...)
	wire = append(wire, owvar.EncodeFloat32(0.5)...)
	feed(pw, wire)

	res, err := d.Poll(s)
	require.NoError(t, err)
	assert.Equal(t, owvar.OutcomeAccepted, res.Outcome)

	res, err = d.Poll(s)
	assert.ErrorIs(t, err, owvar.ErrChecksumMismatch)
	assert.Equal(t, owvar.OutcomeRejected, res.Outcome)

	res, err = d.Poll(s)
	require.NoError(t, err)
	assert.Equal(t, owvar.OutcomeAccepted, res.Outcome)

	res, err = d.Poll(s)
	require.NoError(t, err)
	assert.Equal(t, owvar.OutcomeIdle, res.Outcome)

	assert.Equal(t, int8(42), d.Int8())
	assert.Equal(t, int16(0), d.Int16())
	assert.Equal(t, float32(0.5), d.Float())
	assert.Equal(t, []byte{owvar.AckCode, owvar.AckCode}, conn.written())
	assert.Equal(t, uint64(1), s.DeviceErrorCount(owvar.TagInt16))
}
