// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package owvar

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a packet was rejected
type ErrorKind int

const (
	KindReadFailure ErrorKind = iota
	KindPayloadTooLarge
	KindChecksumMismatch
	KindLengthMismatch
	KindUnrecognizedCommand
)

// String returns the kind name used in logs and metrics labels
func (k ErrorKind) String() string {
	switch k {
	case KindReadFailure:
		return "read_failure"
	case KindPayloadTooLarge:
		return "payload_too_large"
	case KindChecksumMismatch:
		return "checksum_mismatch"
	case KindLengthMismatch:
		return "length_mismatch"
	case KindUnrecognizedCommand:
		return "unrecognized_command"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is
var (
	ErrReadFailure         = errors.New("bus read failed")
	ErrPayloadTooLarge     = errors.New("payload exceeds staging area")
	ErrChecksumMismatch    = errors.New("CRC mismatch")
	ErrLengthMismatch      = errors.New("payload length mismatch")
	ErrUnrecognizedCommand = errors.New("unrecognized command")
)

func (k ErrorKind) sentinel() error {
	switch k {
	case KindReadFailure:
		return ErrReadFailure
	case KindPayloadTooLarge:
		return ErrPayloadTooLarge
	case KindChecksumMismatch:
		return ErrChecksumMismatch
	case KindLengthMismatch:
		return ErrLengthMismatch
	case KindUnrecognizedCommand:
		return ErrUnrecognizedCommand
	}
	return nil
}

// ProtocolError describes a rejected packet. Every ProtocolError has already
// been signalled to the bus as a device error carrying Tag.
type ProtocolError struct {
	Kind    ErrorKind
	Stage   Stage
	Tag     uint8
	Message string
	Details map[string]interface{}
	Err     error // underlying transport error, if any
}

// Error implements the error interface
func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying transport error
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error kind
func (e *ProtocolError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// SelectorError is returned for frames whose selector is not handled by the
// device. Such frames are dropped without a device error.
type SelectorError struct {
	Selector uint8
}

// Error implements the error interface
func (e *SelectorError) Error() string {
	return fmt.Sprintf("unsupported selector 0x%02X", e.Selector)
}

func readFailure(stage Stage, tag uint8, err error) *ProtocolError {
	return &ProtocolError{
		Kind:    KindReadFailure,
		Stage:   stage,
		Tag:     tag,
		Message: fmt.Sprintf("short read at %s stage (tag 0x%02X)", stage, tag),
		Err:     err,
	}
}

func payloadTooLarge(tag uint8, length int) *ProtocolError {
	return &ProtocolError{
		Kind:    KindPayloadTooLarge,
		Stage:   StageHeaderRead,
		Tag:     tag,
		Message: fmt.Sprintf("payload length %d exceeds staging area (%d bytes)", length, StagingSize),
		Details: map[string]interface{}{"length": length, "max": StagingSize},
	}
}

func checksumMismatch(f *Frame, calculated uint8) *ProtocolError {
	return &ProtocolError{
		Kind:    KindChecksumMismatch,
		Stage:   StageChecksumRead,
		Tag:     f.tag,
		Message: fmt.Sprintf("CRC mismatch: expected 0x%02X, got 0x%02X", calculated, f.checksum),
		Details: map[string]interface{}{"calculated": calculated, "received": f.checksum},
	}
}

func lengthMismatch(tag uint8, length, expected int) *ProtocolError {
	return &ProtocolError{
		Kind:    KindLengthMismatch,
		Stage:   StageDispatched,
		Tag:     tag,
		Message: fmt.Sprintf("%s payload length mismatch: received %d, expected %d", FormatTag(tag), length, expected),
		Details: map[string]interface{}{"received": length, "expected": expected},
	}
}

func unrecognizedCommand(tag uint8, hooked bool) *ProtocolError {
	msg := fmt.Sprintf("unknown command 0x%02X", tag)
	if hooked {
		msg = fmt.Sprintf("command 0x%02X declined by handler", tag)
	}
	return &ProtocolError{
		Kind:    KindUnrecognizedCommand,
		Stage:   StageDispatched,
		Tag:     tag,
		Message: msg,
		Details: map[string]interface{}{"handler": hooked},
	}
}
