// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/owslave/pkg/owvar"
)

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

type monitorKeys struct {
	Quit      key.Binding
	ResetStat key.Binding
	ToggleRaw key.Binding
}

func (k monitorKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Quit, k.ResetStat, k.ToggleRaw}
}

func (k monitorKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var defaultMonitorKeys = monitorKeys{
	Quit:      key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	ResetStat: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reset stats")),
	ToggleRaw: key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "raw as CBOR")),
}

// TUI model
type model struct {
	emu           *emulator
	connInfo      string
	regs          owvar.Registers
	lastDevError  string
	eventLog      []eventLogEntry
	maxLogEntries int
	showCBOR      bool
	keys          monitorKeys
	help          help.Model
	width         int
	height        int
	quitting      bool
}

// Messages
type tickMsg time.Time
type pollMsg struct {
	res  owvar.Result
	regs owvar.Registers
}
type connLostMsg struct {
	err error
}

func initialModel(emu *emulator, connInfo string) model {
	return model{
		emu:           emu,
		connInfo:      connInfo,
		eventLog:      make([]eventLogEntry, 0),
		maxLogEntries: 100,
		keys:          defaultMonitorKeys,
		help:          help.New(),
		width:         80,
		height:        24,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		tea.EnterAltScreen,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.ResetStat):
			m.emu.stats.Reset()
			m.addLogEntry("Statistics reset", false)
		case key.Matches(msg, m.keys.ToggleRaw):
			m.showCBOR = !m.showCBOR
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.emu.stats.CalculateRates()
		return m, tickCmd()

	case connLostMsg:
		m.addLogEntry(fmt.Sprintf("Connection lost: %v", msg.err), true)

	case pollMsg:
		m.emu.record(msg.res)
		m.regs = msg.regs

		switch msg.res.Outcome {
		case owvar.OutcomeAccepted:
			f := msg.res.Frame
			if msg.res.ByHandler {
				m.addLogEntry(fmt.Sprintf("Custom handler processed CMD 0x%02X", f.Tag()), false)
			} else {
				m.addLogEntry(lastLine(owvar.FormatResult(msg.res, &msg.regs)), false)
			}
		case owvar.OutcomeRejected:
			m.lastDevError = msg.res.Err.Error()
			m.addLogEntry(msg.res.Err.Error(), true)
		case owvar.OutcomeIgnored:
			m.addLogEntry(msg.res.Err.Error(), false)
		}
	}

	return m, nil
}

// lastLine returns the final non-empty line of s
func lastLine(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

func (m *model) addLogEntry(message string, isError bool) {
	entry := eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	infoStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	var s strings.Builder
	s.WriteString(titleStyle.Render("OWSLAVE - EMULATED SLAVE"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | ROM %s | session %s",
		m.connInfo, m.emu.device.Rom(), m.emu.session)))
	s.WriteString("\n\n")

	// Statistics
	stats := m.emu.stats
	var okPercent float64
	if stats.TotalPackets > 0 {
		okPercent = float64(stats.AcceptedPackets) * 100.0 / float64(stats.TotalPackets)
	}

	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		labelStyle.Render("Total:"), valueStyle.Render(fmt.Sprintf("%d", stats.TotalPackets)),
		labelStyle.Render("ACK:"), valueStyle.Render(fmt.Sprintf("%d (%.1f%%)", stats.AcceptedPackets, okPercent)),
		labelStyle.Render("Rejected:"), errorStyle.Render(fmt.Sprintf("%d", stats.Errors())),
	))
	if stats.Errors() > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %d  %s %d  %s %d  %s %d\n",
			headerStyle.Render("crc"), stats.CRCErrors,
			headerStyle.Render("length"), stats.LengthMismatches,
			headerStyle.Render("unknown"), stats.UnknownCommands,
			headerStyle.Render("short read"), stats.ReadFailures,
		))
	}
	errorRate := valueStyle.Render(fmt.Sprintf("%.1f err/s", stats.ErrorRate))
	if stats.ErrorRate > 0 {
		errorRate = errorStyle.Render(fmt.Sprintf("%.1f err/s", stats.ErrorRate))
	}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s",
		labelStyle.Render("Packet Rate:"), valueStyle.Render(fmt.Sprintf("%.1f pkts/s", stats.PacketRate)),
		labelStyle.Render("Error Rate:"), errorRate,
	))

	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Registers
	s.WriteString(labelStyle.Render("Registers:"))
	s.WriteString("\n")
	regContent := owvar.FormatSnapshot(&m.regs)
	if m.showCBOR && m.regs.RawLen > 0 {
		if diag, err := owvar.FormatRawCBOR(m.regs.RawBytes()); err == nil {
			regContent += "CBOR: " + diag + "\n"
		} else {
			regContent += "CBOR: " + err.Error() + "\n"
		}
	}
	if m.lastDevError != "" {
		regContent += errorStyle.Render("Last device error: "+m.lastDevError) + "\n"
	}
	s.WriteString(boxStyle.Render(strings.TrimRight(regContent, "\n")))
	s.WriteString("\n\n")

	// Event log
	s.WriteString(labelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	logHeight := m.height - 24
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.eventLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					infoStyle.Render("✓ "+entry.message),
				))
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))
	s.WriteString("\n")
	s.WriteString(m.help.View(m.keys))

	return s.String()
}

// runServeTUI polls the device on its own goroutine and feeds every result
// into the TUI. Only the poll goroutine touches the device.
func runServeTUI(ctx context.Context, emu *emulator, connInfo string) error {
	p := tea.NewProgram(initialModel(emu, connInfo), tea.WithContext(ctx))

	go func() {
		for ctx.Err() == nil {
			if err := emu.stream.Err(); err != nil {
				p.Send(connLostMsg{err: err})
				return
			}
			res := emu.poll()
			if res.Outcome == owvar.OutcomeIdle {
				continue
			}
			p.Send(pollMsg{res: res, regs: emu.device.Snapshot()})
		}
	}()

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
