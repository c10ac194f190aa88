// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bus provides owvar.Bus implementations: a stream adapter for
// serial ports and WebSocket bridges, and an in-memory loopback for tests.
package bus

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/loopholelabs/logging/types"
)

// ErrTimeout is returned by Recv when the requested bytes did not arrive
var ErrTimeout = errors.New("bus: receive timeout")

// ErrClosed is returned once the underlying connection failed
var ErrClosed = errors.New("bus: connection closed")

// Default timeouts
const (
	DefaultIdleTimeout = 250 * time.Millisecond
	DefaultByteTimeout = 50 * time.Millisecond
)

// Stream adapts a byte stream to owvar.Bus. A single goroutine reads from
// the connection; Recv waits IdleTimeout for the first byte of a packet and
// ByteTimeout for every byte after that.
type Stream struct {
	conn        io.ReadWriter
	bytes       chan byte
	idleTimeout time.Duration
	byteTimeout time.Duration
	log         types.Logger
	onError     func(tag uint8)

	// idle is true until a packet has started arriving
	idle bool

	mu          sync.Mutex
	readErr     error
	lastErrTag  uint8
	hasErrTag   bool
	errorCounts map[uint8]uint64
}

// Option configures a Stream
type Option func(*Stream)

// WithIdleTimeout sets how long Recv waits for a new packet
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Stream) {
		if d > 0 {
			s.idleTimeout = d
		}
	}
}

// WithByteTimeout sets how long Recv waits for each byte inside a packet
func WithByteTimeout(d time.Duration) Option {
	return func(s *Stream) {
		if d > 0 {
			s.byteTimeout = d
		}
	}
}

// WithLogger attaches a logger
func WithLogger(log types.Logger) Option {
	return func(s *Stream) {
		s.log = log
	}
}

// WithErrorHook registers a callback run for every raised device error
func WithErrorHook(fn func(tag uint8)) Option {
	return func(s *Stream) {
		s.onError = fn
	}
}

// NewStream starts reading from conn and returns the bus
func NewStream(conn io.ReadWriter, opts ...Option) *Stream {
	s := &Stream{
		conn:        conn,
		bytes:       make(chan byte, 4096),
		idleTimeout: DefaultIdleTimeout,
		byteTimeout: DefaultByteTimeout,
		idle:        true,
		errorCounts: make(map[uint8]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.pump()
	return s
}

func (s *Stream) pump() {
	buf := make([]byte, 256)
	for {
		n, err := s.conn.Read(buf)
		for i := 0; i < n; i++ {
			s.bytes <- buf[i]
		}
		if err != nil {
			s.mu.Lock()
			s.readErr = err
			s.mu.Unlock()
			if s.log != nil {
				s.log.Debug().Err(err).Msg("bus reader stopped")
			}
			close(s.bytes)
			return
		}
	}
}

// Recv implements owvar.Bus
func (s *Stream) Recv(p []byte) error {
	timeout := s.byteTimeout
	if s.idle {
		timeout = s.idleTimeout
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for i := range p {
		select {
		case b, ok := <-s.bytes:
			if !ok {
				s.idle = true
				return ErrClosed
			}
			p[i] = b
			s.idle = false
		case <-timer.C:
			s.idle = true
			return ErrTimeout
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(s.byteTimeout)
	}
	return nil
}

// EndPacket implements owvar.PacketEnder. The next Recv waits for a new
// packet with the idle timeout.
func (s *Stream) EndPacket() {
	s.idle = true
}

// Send implements owvar.Bus. It also ends the current packet.
func (s *Stream) Send(p []byte) error {
	s.EndPacket()
	_, err := s.conn.Write(p)
	return err
}

// RaiseDeviceError implements owvar.Bus. The stream has no electrical error
// line, so the error is logged and counted; the master sees the missing ACK.
func (s *Stream) RaiseDeviceError(tag uint8) {
	s.EndPacket()

	s.mu.Lock()
	s.lastErrTag = tag
	s.hasErrTag = true
	s.errorCounts[tag]++
	s.mu.Unlock()

	if s.log != nil {
		s.log.Debug().Int("tag", int(tag)).Msg("device error raised")
	}
	if s.onError != nil {
		s.onError(tag)
	}
}

// LastDeviceError returns the tag of the most recent device error
func (s *Stream) LastDeviceError() (tag uint8, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErrTag, s.hasErrTag
}

// DeviceErrorCount returns how many device errors were raised for tag
func (s *Stream) DeviceErrorCount(tag uint8) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errorCounts[tag]
}

// Err returns the error that stopped the reader, if any. Queued bytes may
// still be pending after the reader stopped.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil && len(s.bytes) == 0 {
		return s.readErr
	}
	return nil
}

// Close closes the underlying connection when it supports it
func (s *Stream) Close() error {
	if c, ok := s.conn.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
