// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package owvar

import "time"

// Receive reads one frame from the bus.
//
// It returns (nil, nil) when no selector byte is available, which is the
// normal idle case. A *SelectorError means a selector the device does not
// speak was consumed. A *ProtocolError means the packet was aborted part way;
// the device error has already been raised on the bus.
func Receive(bus Bus) (*Frame, error) {
	var staging [StagingSize]byte
	return receiveInto(bus, staging[:])
}

func receiveInto(bus Bus, staging []byte) (*Frame, error) {
	var selector [1]byte
	if err := bus.Recv(selector[:]); err != nil {
		return nil, nil
	}

	if selector[0] != SelectorSendVariable {
		return nil, &SelectorError{Selector: selector[0]}
	}

	// Past this point the packet is committed; every short read is an error.
	var header [HeaderSize]byte
	if err := bus.Recv(header[:]); err != nil {
		bus.RaiseDeviceError(0)
		return nil, readFailure(StageHeaderRead, 0, err)
	}

	tag := header[0]
	length := int(header[1])

	if length > len(staging) {
		bus.RaiseDeviceError(tag)
		return nil, payloadTooLarge(tag, length)
	}

	if length > 0 {
		if err := bus.Recv(staging[:length]); err != nil {
			bus.RaiseDeviceError(tag)
			return nil, readFailure(StagePayloadRead, tag, err)
		}
	}

	var checksum [1]byte
	if err := bus.Recv(checksum[:]); err != nil {
		bus.RaiseDeviceError(tag)
		return nil, readFailure(StageChecksumRead, tag, err)
	}

	payload := make([]byte, length)
	copy(payload, staging[:length])

	return &Frame{
		selector:  selector[0],
		tag:       tag,
		length:    header[1],
		payload:   payload,
		checksum:  checksum[0],
		timestamp: time.Now(),
	}, nil
}
