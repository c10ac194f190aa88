// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package owvar

// decision is what the dispatcher concluded about one frame
type decision struct {
	staged    Registers // register file to commit once the ACK is out
	handled   bool
	byHandler bool
}

// decide validates a frame and computes its effect without touching the
// device. Rejections raise the device error on bus before returning.
func (d *Device) decide(bus Bus, f *Frame) (decision, error) {
	out := decision{staged: d.regs}

	calculated := f.ComputeChecksum()
	if calculated != f.checksum {
		bus.RaiseDeviceError(f.tag)
		return out, checksumMismatch(f, calculated)
	}

	if width, ok := FixedWidth(f.tag); ok {
		if len(f.payload) != width {
			bus.RaiseDeviceError(f.tag)
			return out, lengthMismatch(f.tag, len(f.payload), width)
		}
		out.staged.store(f.tag, f.payload)
		out.staged.LastCommand = f.tag
		out.handled = true
		return out, nil
	}

	if f.tag == TagStruct {
		out.staged.store(f.tag, f.payload)
		out.staged.LastCommand = f.tag
		out.handled = true
		return out, nil
	}

	if d.handler != nil && d.handler.TryHandle(f.tag) {
		out.staged.LastCommand = f.tag
		out.handled = true
		out.byHandler = true
		return out, nil
	}

	bus.RaiseDeviceError(f.tag)
	return out, unrecognizedCommand(f.tag, d.handler != nil)
}

// Dispatch validates f, decodes it into the device registers and answers on
// bus. handled is true only when the ACK went out; registers and the last
// command are updated in the same step.
func (d *Device) Dispatch(bus Bus, f *Frame) (handled bool, err error) {
	res, err := d.dispatch(bus, f)
	return res.Handled, err
}

func (d *Device) dispatch(bus Bus, f *Frame) (Result, error) {
	res := Result{Outcome: OutcomeRejected, Frame: f}

	dec, err := d.decide(bus, f)
	if err != nil {
		res.Err = err
		d.logReject(f, err)
		return res, err
	}

	if err := respond(bus, dec.handled); err != nil {
		res.Err = err
		d.logSendFailure(f, err)
		return res, err
	}

	d.regs = dec.staged
	res.Outcome = OutcomeAccepted
	res.Handled = true
	res.ByHandler = dec.byHandler
	d.logAccept(f, dec.byHandler)
	return res, nil
}
