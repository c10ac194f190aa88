// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package owvar

import "fmt"

// respond writes the ACK for a handled packet. Rejected packets get no
// response at all; the device error raised earlier is the only signal.
func respond(bus Bus, handled bool) error {
	if !handled {
		return nil
	}
	ack := [1]byte{AckCode}
	if err := bus.Send(ack[:]); err != nil {
		return fmt.Errorf("failed to send ACK: %w", err)
	}
	return nil
}
