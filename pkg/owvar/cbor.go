// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package owvar

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// EncodeStructCBOR CBOR-encodes v and wraps it in a STRUCT frame.
// The device stores at most RawBufferSize bytes, so larger documents are
// truncated on the slave side.
func EncodeStructCBOR(v interface{}) ([]byte, error) {
	data, err := cbor.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode CBOR payload: %w", err)
	}
	return EncodeStruct(data)
}

// DecodeRawCBOR interprets a raw buffer as a CBOR document. It is a
// display helper; the dispatcher never looks inside STRUCT payloads.
func DecodeRawCBOR(raw []byte) (interface{}, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty raw buffer")
	}
	var v interface{}
	if err := cbor.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("failed to decode CBOR: %w", err)
	}
	return v, nil
}

// FormatRawCBOR renders the raw buffer as CBOR diagnostic notation, or
// returns an error if it does not hold a complete CBOR item.
func FormatRawCBOR(raw []byte) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("empty raw buffer")
	}
	return cbor.Diagnose(raw)
}
