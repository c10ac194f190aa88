// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package owvar implements the "send variable" application protocol spoken by
// the owslave 1-Wire peripheral emulator.
//
// A master pushes typed values to the slave in small framed packets:
//
//	[SELECTOR=0x01] [TYPE] [LEN] [PAYLOAD (LEN bytes)] [CRC8]
//
// The slave validates the Dallas/Maxim CRC-8 over TYPE, LEN and PAYLOAD,
// decodes the payload into the register for that type and answers with a
// single ACK byte. Failures are reported through the bus device-error signal
// and by the absence of the ACK.
package owvar

// Low-level selectors (first byte of every frame)
const (
	SelectorSendVariable = 0x01
)

// Type tags
const (
	TagInt16   = 0x0E
	TagUInt16  = 0x0D
	TagInt8    = 0x0F
	TagInt32   = 0x10
	TagFloat32 = 0x11
	TagUInt32  = 0x12
	TagChar8   = 0x13
	TagStruct  = 0x14

	// TagRequest is reserved for master-initiated reads. Nothing produces or
	// consumes it yet.
	TagRequest = 0x20
)

// Response codes
const (
	AckCode  = 0x30
	NackCode = 0x31 // defined by the protocol, never emitted
)

// Size limits
const (
	HeaderSize     = 2   // type + length
	StagingSize    = 256 // payload staging area
	MaxPayloadSize = 255 // largest value the length byte can carry
	RawBufferSize  = 32
	ScratchpadSize = 9
	RomIDSize      = 7
)

// CRC-8 (Dallas/Maxim, reflected)
const (
	crcPolynomial = 0x8C
	crcInitial    = 0x00
)

// Stage identifies how far a packet got through the receive pipeline.
type Stage int

// Pipeline stages
const (
	StageIdle Stage = iota
	StageHeaderRead
	StagePayloadRead
	StageChecksumRead
	StageDispatched
)

// String returns the stage name
func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageHeaderRead:
		return "header"
	case StagePayloadRead:
		return "payload"
	case StageChecksumRead:
		return "checksum"
	case StageDispatched:
		return "dispatch"
	default:
		return "unknown"
	}
}

// fixedWidths lists the required payload length for every fixed-width tag.
var fixedWidths = map[uint8]int{
	TagInt8:    1,
	TagChar8:   1,
	TagInt16:   2,
	TagUInt16:  2,
	TagInt32:   4,
	TagUInt32:  4,
	TagFloat32: 4,
}

// FixedWidth returns the payload width required by a fixed-width tag.
// ok is false for STRUCT and for tags the dispatcher does not know.
func FixedWidth(tag uint8) (width int, ok bool) {
	width, ok = fixedWidths[tag]
	return width, ok
}

// IsNative reports whether the dispatcher decodes tag itself
func IsNative(tag uint8) bool {
	if tag == TagStruct {
		return true
	}
	_, ok := fixedWidths[tag]
	return ok
}
