// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package owvar

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// RomID is the 7 byte 1-Wire identity of the device: family code followed
// by a 48-bit serial number, least significant byte first. The eighth ROM
// byte on the wire is CRC().
type RomID [RomIDSize]byte

// NewRomID builds a RomID from its seven bytes
func NewRomID(family, s1, s2, s3, s4, s5, s6 byte) RomID {
	return RomID{family, s1, s2, s3, s4, s5, s6}
}

// Family returns the family code
func (r RomID) Family() byte {
	return r[0]
}

// Serial returns the 48-bit serial number
func (r RomID) Serial() uint64 {
	var sn uint64
	for i := RomIDSize - 1; i >= 1; i-- {
		sn = sn<<8 | uint64(r[i])
	}
	return sn
}

// CRC returns the ROM CRC-8 over family and serial
func (r RomID) CRC() uint8 {
	return CalculateCRC(r[:])
}

// Bytes returns the full 8 byte ROM code as sent during ROM search
func (r RomID) Bytes() []byte {
	out := make([]byte, 0, RomIDSize+1)
	out = append(out, r[:]...)
	return append(out, r.CRC())
}

// String renders the canonical family.serial.crc form
func (r RomID) String() string {
	return fmt.Sprintf("%02x.%012x.%02x", r.Family(), r.Serial(), r.CRC())
}

// ParseRomID parses either the canonical "ff.ssssssssssss.cc" form or 14
// plain hex digits (family first, then the serial bytes in wire order).
// A crc of "--" is computed instead of checked.
func ParseRomID(s string) (RomID, error) {
	var r RomID
	s = strings.TrimSpace(s)

	if !strings.Contains(s, ".") {
		raw, err := hex.DecodeString(s)
		if err != nil || len(raw) != RomIDSize {
			return r, fmt.Errorf("invalid ROM id %q: expected %d hex bytes", s, RomIDSize)
		}
		copy(r[:], raw)
		return r, nil
	}

	parts := strings.Split(s, ".")
	if len(parts) != 3 || len(parts[0]) != 2 || len(parts[1]) != 12 || len(parts[2]) != 2 {
		return r, fmt.Errorf("invalid ROM id %q: expected ff.ssssssssssss.cc", s)
	}

	family, err := hex.DecodeString(parts[0])
	if err != nil {
		return r, fmt.Errorf("invalid ROM family %q: %w", parts[0], err)
	}
	serial, err := hex.DecodeString(parts[1])
	if err != nil {
		return r, fmt.Errorf("invalid ROM serial %q: %w", parts[1], err)
	}

	// The serial is printed most significant byte first
	r[0] = family[0]
	for i, b := range serial {
		r[len(serial)-i] = b
	}

	if parts[2] != "--" {
		crc, err := hex.DecodeString(parts[2])
		if err != nil {
			return r, fmt.Errorf("invalid ROM crc %q: %w", parts[2], err)
		}
		if crc[0] != r.CRC() {
			return r, fmt.Errorf("ROM crc mismatch: expected %02x, got %02x", r.CRC(), crc[0])
		}
	}

	return r, nil
}
