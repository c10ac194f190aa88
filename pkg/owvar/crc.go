// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package owvar

// CRC8 computes the Dallas/Maxim CRC-8 of data, continuing from seed.
// Pass 0 to start a new checksum; pass a previous result to chain buffers.
func CRC8(data []byte, seed uint8) uint8 {
	crc := seed
	for _, b := range data {
		in := b
		for i := 0; i < 8; i++ {
			mix := (crc ^ in) & 0x01
			crc >>= 1
			if mix != 0 {
				crc ^= crcPolynomial
			}
			in >>= 1
		}
	}
	return crc
}

// CalculateCRC computes the CRC-8 of data from the initial seed
func CalculateCRC(data []byte) uint8 {
	return CRC8(data, crcInitial)
}
