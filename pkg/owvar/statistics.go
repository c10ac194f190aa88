// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package owvar

import (
	"errors"
	"fmt"
	"time"
)

// Statistics tracks poll outcomes and error rates
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalPackets      uint64
	AcceptedPackets   uint64
	HandlerPackets    uint64
	IgnoredSelectors  uint64
	ReadFailures      uint64
	OversizedPayloads uint64
	CRCErrors         uint64
	LengthMismatches  uint64
	UnknownCommands   uint64
	SendFailures      uint64

	// Rates (calculated)
	PacketRate float64 // packets/sec
	ErrorRate  float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update records one poll result. Idle polls are not counted.
func (s *Statistics) Update(res Result) {
	switch res.Outcome {
	case OutcomeIdle:
		return
	case OutcomeIgnored:
		s.IgnoredSelectors++
		s.LastUpdateTime = time.Now()
		return
	}

	s.TotalPackets++
	s.LastUpdateTime = time.Now()

	if res.Outcome == OutcomeAccepted {
		s.AcceptedPackets++
		if res.ByHandler {
			s.HandlerPackets++
		}
		return
	}

	var pe *ProtocolError
	if !errors.As(res.Err, &pe) {
		s.SendFailures++
		return
	}

	switch pe.Kind {
	case KindReadFailure:
		s.ReadFailures++
	case KindPayloadTooLarge:
		s.OversizedPayloads++
	case KindChecksumMismatch:
		s.CRCErrors++
	case KindLengthMismatch:
		s.LengthMismatches++
	case KindUnrecognizedCommand:
		s.UnknownCommands++
	}
}

// Errors returns the number of rejected packets
func (s *Statistics) Errors() uint64 {
	return s.TotalPackets - s.AcceptedPackets
}

// CalculateRates calculates packet and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.PacketRate = float64(s.TotalPackets) / elapsed
		s.ErrorRate = float64(s.Errors()) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	percent := func(n uint64) float64 {
		if s.TotalPackets == 0 {
			return 0
		}
		return float64(n) * 100.0 / float64(s.TotalPackets)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Packets:   %8d\n", s.TotalPackets)
	result += fmt.Sprintf("Accepted (ACK):  %8d (%.1f%%)\n", s.AcceptedPackets, percent(s.AcceptedPackets))
	if s.HandlerPackets > 0 {
		result += fmt.Sprintf("  Via Handler:      %5d\n", s.HandlerPackets)
	}
	if s.CRCErrors > 0 {
		result += fmt.Sprintf("CRC Errors:      %8d (%.1f%%)\n", s.CRCErrors, percent(s.CRCErrors))
	}
	if s.LengthMismatches > 0 {
		result += fmt.Sprintf("Length Mismatch: %8d (%.1f%%)\n", s.LengthMismatches, percent(s.LengthMismatches))
	}
	if s.UnknownCommands > 0 {
		result += fmt.Sprintf("Unknown CMDs:    %8d (%.1f%%)\n", s.UnknownCommands, percent(s.UnknownCommands))
	}
	if s.ReadFailures > 0 {
		result += fmt.Sprintf("Short Reads:     %8d (%.1f%%)\n", s.ReadFailures, percent(s.ReadFailures))
	}
	if s.OversizedPayloads > 0 {
		result += fmt.Sprintf("Oversized:       %8d (%.1f%%)\n", s.OversizedPayloads, percent(s.OversizedPayloads))
	}
	if s.SendFailures > 0 {
		result += fmt.Sprintf("ACK Failures:    %8d (%.1f%%)\n", s.SendFailures, percent(s.SendFailures))
	}
	if s.IgnoredSelectors > 0 {
		result += fmt.Sprintf("Ignored Selectors:%7d\n", s.IgnoredSelectors)
	}

	result += fmt.Sprintf("Packet Rate:     %8.1f pkts/sec\n", s.PacketRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
