// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package owvar

// Bus is the byte-level transport the device is attached to. The electrical
// side of the bus, ROM search and timing all live behind it.
type Bus interface {
	// Recv fills p completely or returns an error. How long it waits for
	// data is up to the implementation.
	Recv(p []byte) error

	// Send writes p to the master.
	Send(p []byte) error

	// RaiseDeviceError signals a failed packet to the bus, tagged with the
	// best known type tag (0 when the header was never read).
	RaiseDeviceError(tag uint8)
}

// PacketEnder is implemented by buses that track packet boundaries
// themselves. The device calls EndPacket when it drops a packet without
// sending a response or raising a device error.
type PacketEnder interface {
	EndPacket()
}

func endPacket(bus Bus) {
	if pe, ok := bus.(PacketEnder); ok {
		pe.EndPacket()
	}
}
