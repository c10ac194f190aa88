// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bus

// Loopback is an in-memory bus. Bytes queued with Feed are handed to the
// device; everything it sends and every device error it raises is recorded.
type Loopback struct {
	in        []byte
	sent      []byte
	devErrors []uint8
	sendErr   error
}

// NewLoopback creates a loopback bus pre-loaded with frames
func NewLoopback(frames ...[]byte) *Loopback {
	l := &Loopback{}
	for _, f := range frames {
		l.Feed(f)
	}
	return l
}

// Feed queues bytes for the device to receive
func (l *Loopback) Feed(data []byte) {
	l.in = append(l.in, data...)
}

// Recv implements owvar.Bus. A read larger than what is queued consumes the
// remaining bytes and fails, like a master that stopped mid-packet.
func (l *Loopback) Recv(p []byte) error {
	if len(l.in) < len(p) {
		copy(p, l.in)
		l.in = l.in[:0]
		return ErrTimeout
	}
	copy(p, l.in[:len(p)])
	l.in = l.in[len(p):]
	return nil
}

// Send implements owvar.Bus
func (l *Loopback) Send(p []byte) error {
	if l.sendErr != nil {
		return l.sendErr
	}
	l.sent = append(l.sent, p...)
	return nil
}

// RaiseDeviceError implements owvar.Bus
func (l *Loopback) RaiseDeviceError(tag uint8) {
	l.devErrors = append(l.devErrors, tag)
}

// FailSends makes every following Send return err (nil restores sending)
func (l *Loopback) FailSends(err error) {
	l.sendErr = err
}

// Sent returns everything the device wrote
func (l *Loopback) Sent() []byte {
	return l.sent
}

// DeviceErrors returns the tags of all raised device errors, oldest first
func (l *Loopback) DeviceErrors() []uint8 {
	return l.devErrors
}

// Pending returns the number of queued bytes not yet received
func (l *Loopback) Pending() int {
	return len(l.in)
}

// Clear drops recorded output and device errors
func (l *Loopback) Clear() {
	l.sent = nil
	l.devErrors = nil
}
