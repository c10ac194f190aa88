// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package owvar

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// EncodeFrame builds the master-side wire bytes for a "send variable" packet:
// selector, tag, length, payload and the CRC-8 over tag, length and payload.
func EncodeFrame(tag uint8, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("payload too large: %d bytes (max %d)", len(payload), MaxPayloadSize)
	}

	data := make([]byte, 0, 1+HeaderSize+len(payload)+1)
	data = append(data, SelectorSendVariable, tag, uint8(len(payload)))
	data = append(data, payload...)

	crc := CRC8(data[1:], crcInitial)
	return append(data, crc), nil
}

// mustEncode is used by the fixed-width helpers whose payload size is
// known to fit.
func mustEncode(tag uint8, payload []byte) []byte {
	data, err := EncodeFrame(tag, payload)
	if err != nil {
		panic(fmt.Sprintf("owvar: encode error: %v", err))
	}
	return data
}

// EncodeInt8 encodes an INT8 frame
func EncodeInt8(v int8) []byte {
	return mustEncode(TagInt8, []byte{byte(v)})
}

// EncodeChar encodes a CHAR8 frame
func EncodeChar(c byte) []byte {
	return mustEncode(TagChar8, []byte{c})
}

// EncodeInt16 encodes an INT16 frame
func EncodeInt16(v int16) []byte {
	return mustEncode(TagInt16, binary.LittleEndian.AppendUint16(nil, uint16(v)))
}

// EncodeUInt16 encodes a UINT16 frame
func EncodeUInt16(v uint16) []byte {
	return mustEncode(TagUInt16, binary.LittleEndian.AppendUint16(nil, v))
}

// EncodeInt32 encodes an INT32 frame
func EncodeInt32(v int32) []byte {
	return mustEncode(TagInt32, binary.LittleEndian.AppendUint32(nil, uint32(v)))
}

// EncodeUInt32 encodes a UINT32 frame
func EncodeUInt32(v uint32) []byte {
	return mustEncode(TagUInt32, binary.LittleEndian.AppendUint32(nil, v))
}

// EncodeFloat32 encodes a FLOAT32 frame
func EncodeFloat32(v float32) []byte {
	return mustEncode(TagFloat32, binary.LittleEndian.AppendUint32(nil, math.Float32bits(v)))
}

// EncodeStruct encodes a STRUCT frame carrying raw bytes
func EncodeStruct(data []byte) ([]byte, error) {
	return EncodeFrame(TagStruct, data)
}

// ParseTag accepts a type name (int8, uint16, float32, struct, ...) or a
// numeric tag such as 0x40.
func ParseTag(s string) (uint8, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "int8":
		return TagInt8, nil
	case "int16":
		return TagInt16, nil
	case "uint16":
		return TagUInt16, nil
	case "int32":
		return TagInt32, nil
	case "uint32":
		return TagUInt32, nil
	case "float", "float32":
		return TagFloat32, nil
	case "char", "char8":
		return TagChar8, nil
	case "struct", "raw":
		return TagStruct, nil
	}

	n, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("unknown type %q", s)
	}
	return uint8(n), nil
}

// ParseValue converts text into the payload for tag. STRUCT and unknown
// tags take hex bytes ("01 02 ff" or "0102ff").
func ParseValue(tag uint8, text string) ([]byte, error) {
	text = strings.TrimSpace(text)

	switch tag {
	case TagInt8:
		v, err := strconv.ParseInt(text, 0, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid int8 %q: %w", text, err)
		}
		return []byte{byte(int8(v))}, nil
	case TagChar8:
		if len(text) == 1 {
			return []byte{text[0]}, nil
		}
		v, err := strconv.ParseUint(text, 0, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid char %q: %w", text, err)
		}
		return []byte{byte(v)}, nil
	case TagInt16:
		v, err := strconv.ParseInt(text, 0, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid int16 %q: %w", text, err)
		}
		return binary.LittleEndian.AppendUint16(nil, uint16(int16(v))), nil
	case TagUInt16:
		v, err := strconv.ParseUint(text, 0, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid uint16 %q: %w", text, err)
		}
		return binary.LittleEndian.AppendUint16(nil, uint16(v)), nil
	case TagInt32:
		v, err := strconv.ParseInt(text, 0, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid int32 %q: %w", text, err)
		}
		return binary.LittleEndian.AppendUint32(nil, uint32(int32(v))), nil
	case TagUInt32:
		v, err := strconv.ParseUint(text, 0, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid uint32 %q: %w", text, err)
		}
		return binary.LittleEndian.AppendUint32(nil, uint32(v)), nil
	case TagFloat32:
		v, err := strconv.ParseFloat(text, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid float32 %q: %w", text, err)
		}
		return binary.LittleEndian.AppendUint32(nil, math.Float32bits(float32(v))), nil
	}

	return ParseHex(text)
}

// ParseHex decodes hex bytes, ignoring whitespace, commas and 0x prefixes
func ParseHex(text string) ([]byte, error) {
	cleaned := strings.NewReplacer(" ", "", ",", "", "0x", "", "0X", "", "\n", "", "\t", "").Replace(text)
	if len(cleaned)%2 != 0 {
		return nil, fmt.Errorf("odd number of hex digits in %q", text)
	}

	out := make([]byte, len(cleaned)/2)
	for i := range out {
		v, err := strconv.ParseUint(cleaned[i*2:i*2+2], 16, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid hex byte %q", cleaned[i*2:i*2+2])
		}
		out[i] = byte(v)
	}
	return out, nil
}
