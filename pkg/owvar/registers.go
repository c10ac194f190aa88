// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package owvar

import (
	"encoding/binary"
	"math"
)

// Registers holds the last accepted value of every native type.
// The zero value is the power-on state.
type Registers struct {
	Int8   int8
	Int16  int16
	UInt16 uint16
	Int32  int32
	UInt32 uint32
	Float  float32
	Char   byte

	Raw    [RawBufferSize]byte
	RawLen uint8

	LastCommand uint8
}

// RawBytes returns the valid portion of the raw buffer
func (r *Registers) RawBytes() []byte {
	return r.Raw[:r.RawLen]
}

// captureRaw stores up to RawBufferSize bytes of data, dropping the rest
func (r *Registers) captureRaw(data []byte) {
	n := copy(r.Raw[:], data)
	r.RawLen = uint8(n)
}

// store decodes payload into the register selected by tag. The caller has
// already checked the payload width for fixed-width tags.
func (r *Registers) store(tag uint8, payload []byte) {
	switch tag {
	case TagInt8:
		r.Int8 = int8(payload[0])
	case TagChar8:
		r.Char = payload[0]
	case TagInt16:
		r.Int16 = int16(binary.LittleEndian.Uint16(payload))
	case TagUInt16:
		r.UInt16 = binary.LittleEndian.Uint16(payload)
	case TagInt32:
		r.Int32 = int32(binary.LittleEndian.Uint32(payload))
	case TagUInt32:
		r.UInt32 = binary.LittleEndian.Uint32(payload)
	case TagFloat32:
		r.Float = math.Float32frombits(binary.LittleEndian.Uint32(payload))
	case TagStruct:
		r.captureRaw(payload)
	}
}
