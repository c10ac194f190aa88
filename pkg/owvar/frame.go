// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package owvar

import "time"

// Frame is one received "send variable" packet. It only lives for the
// duration of a single dispatch.
type Frame struct {
	selector  uint8
	tag       uint8
	length    uint8
	payload   []byte
	checksum  uint8
	timestamp time.Time
}

// NewFrame creates a frame from its wire fields. Payloads longer than
// MaxPayloadSize are truncated so the length field always matches.
func NewFrame(tag uint8, payload []byte, checksum uint8) *Frame {
	if len(payload) > MaxPayloadSize {
		payload = payload[:MaxPayloadSize]
	}
	return &Frame{
		selector:  SelectorSendVariable,
		tag:       tag,
		length:    uint8(len(payload)),
		payload:   payload,
		checksum:  checksum,
		timestamp: time.Now(),
	}
}

// Selector returns the low-level selector byte
func (f *Frame) Selector() uint8 {
	return f.selector
}

// Tag returns the type tag
func (f *Frame) Tag() uint8 {
	return f.tag
}

// Length returns the declared payload length
func (f *Frame) Length() uint8 {
	return f.length
}

// Payload returns the payload bytes
func (f *Frame) Payload() []byte {
	return f.payload
}

// Checksum returns the trailing checksum byte as received
func (f *Frame) Checksum() uint8 {
	return f.checksum
}

// Timestamp returns when the frame finished arriving
func (f *Frame) Timestamp() time.Time {
	return f.timestamp
}

// Header returns the two header bytes the checksum starts with
func (f *Frame) Header() [HeaderSize]byte {
	return [HeaderSize]byte{f.tag, f.length}
}

// ComputeChecksum recomputes the CRC-8 over header and payload
func (f *Frame) ComputeChecksum() uint8 {
	header := f.Header()
	crc := CRC8(header[:], crcInitial)
	return CRC8(f.payload, crc)
}

// ChecksumValid reports whether the trailing checksum matches the contents
func (f *Frame) ChecksumValid() bool {
	return f.ComputeChecksum() == f.checksum
}
