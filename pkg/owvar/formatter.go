// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package owvar

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatTag returns the human-readable name for a type tag
func FormatTag(tag uint8) string {
	switch tag {
	case TagInt8:
		return "INT8"
	case TagInt16:
		return "INT16"
	case TagUInt16:
		return "UINT16"
	case TagInt32:
		return "INT32"
	case TagUInt32:
		return "UINT32"
	case TagFloat32:
		return "FLOAT32"
	case TagChar8:
		return "CHAR8"
	case TagStruct:
		return "STRUCT"
	case TagRequest:
		return "REQUEST"
	case AckCode:
		return "ACK"
	case NackCode:
		return "NACK"
	default:
		return "UNKNOWN"
	}
}

// FormatFrame formats a frame into a human-readable string
func FormatFrame(f *Frame) string {
	timestamp := f.timestamp.Format("15:04:05.000")
	crcState := "OK"
	if !f.ChecksumValid() {
		crcState = fmt.Sprintf("BAD (calc 0x%02X)", f.ComputeChecksum())
	}

	result := fmt.Sprintf("[%s] %s (0x%02X) len=%d crc=0x%02X %s\n",
		timestamp, FormatTag(f.tag), f.tag, f.length, f.checksum, crcState)
	if len(f.payload) > 0 {
		result += "  Payload: " + hexDump(f.payload, "           ")
	}
	return result
}

// FormatResult formats the outcome of one poll, including the stored value
// for accepted native packets. regs should be the register file after the poll.
func FormatResult(res Result, regs *Registers) string {
	switch res.Outcome {
	case OutcomeIdle:
		return ""
	case OutcomeIgnored:
		return fmt.Sprintf("IGNORED: %v\n", res.Err)
	case OutcomeRejected:
		if res.Frame != nil {
			return FormatFrame(res.Frame) + fmt.Sprintf("  >>> REJECTED: %v <<<\n", res.Err)
		}
		return fmt.Sprintf(">>> REJECTED: %v <<<\n", res.Err)
	}

	f := res.Frame
	result := FormatFrame(f)
	if res.ByHandler {
		return result + fmt.Sprintf("  Custom handler processed CMD: 0x%02X -> ACK\n", f.tag)
	}
	return result + fmt.Sprintf("  Received %s: %s -> ACK\n", FormatTag(f.tag), formatRegisterValue(regs, f.tag))
}

// FormatRaw renders the raw buffer as a hex dump
func FormatRaw(regs *Registers) string {
	result := fmt.Sprintf("Raw buffer [%d bytes]:\n", regs.RawLen)
	if regs.RawLen == 0 {
		return result
	}
	return result + "  " + hexDump(regs.RawBytes(), "  ")
}

// FormatSnapshot renders every register
func FormatSnapshot(regs *Registers) string {
	var b strings.Builder
	fmt.Fprintf(&b, "INT8:    %d\n", regs.Int8)
	fmt.Fprintf(&b, "INT16:   %d\n", regs.Int16)
	fmt.Fprintf(&b, "UINT16:  %d\n", regs.UInt16)
	fmt.Fprintf(&b, "INT32:   %d\n", regs.Int32)
	fmt.Fprintf(&b, "UINT32:  %d\n", regs.UInt32)
	fmt.Fprintf(&b, "FLOAT32: %s\n", formatFloat(regs.Float))
	fmt.Fprintf(&b, "CHAR8:   %s\n", formatChar(regs.Char))
	fmt.Fprintf(&b, "Last CMD: 0x%02X (%s)\n", regs.LastCommand, FormatTag(regs.LastCommand))
	b.WriteString(FormatRaw(regs))
	return b.String()
}

func formatRegisterValue(regs *Registers, tag uint8) string {
	switch tag {
	case TagInt8:
		return strconv.Itoa(int(regs.Int8))
	case TagInt16:
		return strconv.Itoa(int(regs.Int16))
	case TagUInt16:
		return strconv.FormatUint(uint64(regs.UInt16), 10)
	case TagInt32:
		return strconv.FormatInt(int64(regs.Int32), 10)
	case TagUInt32:
		return strconv.FormatUint(uint64(regs.UInt32), 10)
	case TagFloat32:
		return formatFloat(regs.Float)
	case TagChar8:
		return formatChar(regs.Char)
	case TagStruct:
		return fmt.Sprintf("%d bytes", regs.RawLen)
	}
	return ""
}

func formatFloat(v float32) string {
	return strconv.FormatFloat(float64(v), 'f', 4, 32)
}

func formatChar(c byte) string {
	if c >= 0x20 && c < 0x7F {
		return fmt.Sprintf("'%c' (0x%02X)", c, c)
	}
	return fmt.Sprintf("0x%02X", c)
}

func hexByte(b uint8) string {
	return fmt.Sprintf("0x%02X", b)
}

// hexDump prints 16 bytes per line, continuation lines prefixed by indent
func hexDump(data []byte, indent string) string {
	var b strings.Builder
	for i, v := range data {
		if i > 0 && i%16 == 0 {
			b.WriteString("\n" + indent)
		}
		fmt.Fprintf(&b, "%02X ", v)
	}
	b.WriteString("\n")
	return b.String()
}
