// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	log "github.com/sirupsen/logrus"

	"github.com/Thermoquad/hwpbus/pkg/heatpump"
	"github.com/Thermoquad/hwpbus/pkg/hwp"
)

// Error log entry
type errorLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for warnings
}

// TUI model
type model struct {
	connInfo      string
	showAll       bool
	stats         hwp.Statistics
	statsFn       func() hwp.Statistics
	stateFn       func() heatpump.State
	state         heatpump.State
	errorLog      []errorLogEntry
	maxLogEntries int
	synchronized  bool
	skipped       int // frames dropped before the first valid frame
	width         int
	height        int
	quitting      bool
}

// Messages
type tickMsg time.Time
type frameMsg struct {
	frame *hwp.Frame
	err   error
}
type logMsg struct {
	at      time.Time
	level   log.Level
	message string
}
type lineClosedMsg struct{}

// logHook forwards log entries into the event log of a running program
type logHook struct {
	p *tea.Program
}

func (h *logHook) Levels() []log.Level {
	return log.AllLevels
}

// Fire must not block: entries may be logged from inside Update
func (h *logHook) Fire(e *log.Entry) error {
	msg := logMsg{at: e.Time, level: e.Level, message: e.Message}
	go h.p.Send(msg)
	return nil
}

var elapsedUnits = []struct {
	name string
	size time.Duration
}{
	{"day", 24 * time.Hour},
	{"hour", time.Hour},
	{"minute", time.Minute},
	{"second", time.Second},
}

// formatElapsed formats a duration as a human-friendly string
func formatElapsed(d time.Duration) string {
	if d < time.Second {
		return "0 seconds"
	}

	parts := []string{}
	for _, u := range elapsedUnits {
		n := d / u.size
		d -= n * u.size
		switch {
		case n == 1:
			parts = append(parts, "1 "+u.name)
		case n > 1:
			parts = append(parts, fmt.Sprintf("%d %ss", n, u.name))
		}
	}

	// Join with commas and "and" for last item
	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

func initialModel(connInfo string, showAll bool, statsFn func() hwp.Statistics, stateFn func() heatpump.State) model {
	return model{
		connInfo:      connInfo,
		showAll:       showAll,
		stats:         statsFn(),
		statsFn:       statsFn,
		stateFn:       stateFn,
		errorLog:      make([]errorLogEntry, 0),
		maxLogEntries: 100,
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
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.stats = m.statsFn()
		m.state = m.stateFn()
		return m, tickCmd()

	case frameMsg:
		m.handleFrame(msg)

	case logMsg:
		if msg.level <= log.InfoLevel {
			m.addLogEntry(msg.at, msg.message, msg.level <= log.ErrorLevel)
		} else if m.showAll {
			m.addLogEntry(msg.at, msg.message, false)
		}

	case lineClosedMsg:
		m.addLogEntry(time.Now(), "Connection closed", true)
	}

	return m, nil
}

func (m *model) handleFrame(msg frameMsg) {
	if msg.err != nil {
		// Joining the line mid-frame drops the first frame
		if !m.synchronized {
			m.skipped++
			return
		}
		m.addLogEntry(time.Now(), fmt.Sprintf("DROPPED: %v", msg.err), true)
		return
	}

	if !m.synchronized {
		m.synchronized = true
		if m.skipped > 0 {
			m.addLogEntry(time.Now(), fmt.Sprintf("Synchronized after dropping %d frames", m.skipped), false)
		} else {
			m.addLogEntry(time.Now(), "Synchronized", false)
		}
	}
	if m.showAll {
		m.addLogEntry(msg.frame.CapturedAt(), fmt.Sprintf("%s %s %s",
			msg.frame.Source(), hwp.FormatFrameType(msg.frame), hwp.FormatHex(msg.frame.Bytes())), false)
	}
}

func (m *model) addLogEntry(at time.Time, message string, isError bool) {
	entry := errorLogEntry{
		timestamp: at,
		message:   message,
		isError:   isError,
	}
	m.errorLog = append(m.errorLog, entry)

	// Keep only last N entries
	if len(m.errorLog) > m.maxLogEntries {
		m.errorLog = m.errorLog[len(m.errorLog)-m.maxLogEntries:]
	}
}

// formatTemp renders an optional temperature
func formatTemp(t *float64) string {
	if t == nil {
		return "--"
	}
	return fmt.Sprintf("%.1f°C", *t)
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

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("HWPBUS - ERROR DETECTION"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Mode: %s | Press 'q' to quit",
		m.connInfo, func() string {
			if m.showAll {
				return "All frames"
			}
			return "Errors only"
		}())))
	s.WriteString("\n\n")

	// Sync status
	if !m.synchronized {
		s.WriteString(warningStyle.Render("⏳ Waiting for first valid frame..."))
		s.WriteString("\n\n")
	} else {
		s.WriteString(statsValueStyle.Render("✓ Synchronized"))
		if m.skipped > 0 {
			s.WriteString(headerStyle.Render(fmt.Sprintf(" (dropped %d frames)", m.skipped)))
		}
		s.WriteString("\n\n")
	}

	// Statistics
	var validPercent, errorPercent float64
	if m.stats.TotalFrames > 0 {
		validPercent = float64(m.stats.ValidFrames) * 100.0 / float64(m.stats.TotalFrames)
		errorPercent = float64(m.stats.Errors()) * 100.0 / float64(m.stats.TotalFrames)
	}

	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Total:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.TotalFrames)),
		statsLabelStyle.Render("Valid:"), statsValueStyle.Render(fmt.Sprintf("%d (%.1f%%)", m.stats.ValidFrames, validPercent)),
		statsLabelStyle.Render("Dropped:"), errorStyle.Render(fmt.Sprintf("%d (%.1f%%)", m.stats.Errors(), errorPercent)),
	))

	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s\n",
		statsLabelStyle.Render("Heat pump:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.HeaterFrames)),
		statsLabelStyle.Render("Controller:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.ControllerFrames)),
	))

	if m.stats.Errors() > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s   %s %s   %s %s\n",
			statsLabelStyle.Render("Checksum:"), errorStyle.Render(fmt.Sprintf("%d", m.stats.ChecksumErrors)),
			statsLabelStyle.Render("Length:"), errorStyle.Render(fmt.Sprintf("%d", m.stats.LengthErrors)),
			statsLabelStyle.Render("Overflow:"), errorStyle.Render(fmt.Sprintf("%d", m.stats.Overflows)),
			statsLabelStyle.Render("Collision:"), errorStyle.Render(fmt.Sprintf("%d", m.stats.Collisions)),
			statsLabelStyle.Render("Other:"), errorStyle.Render(fmt.Sprintf("%d", m.stats.OtherErrors)),
		))
	}

	if m.stats.SentFrames > 0 || m.stats.DeferredSends > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s   %s %s\n",
			statsLabelStyle.Render("Sent:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.SentFrames)),
			statsLabelStyle.Render("Deferred:"), warningStyle.Render(fmt.Sprintf("%d", m.stats.DeferredSends)),
		))
	}

	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s",
		statsLabelStyle.Render("Frame Rate:"), statsValueStyle.Render(fmt.Sprintf("%.2f frames/s", m.stats.FrameRate)),
		statsLabelStyle.Render("Error Rate:"), func() string {
			if m.stats.ErrorRate > 0 {
				return errorStyle.Render(fmt.Sprintf("%.2f err/s", m.stats.ErrorRate))
			}
			return statsValueStyle.Render(fmt.Sprintf("%.2f err/s", m.stats.ErrorRate))
		}(),
	))

	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Heat pump section (only shown once the heat pump has been heard)
	if m.state.LastHeaterFrame != nil {
		s.WriteString(statsLabelStyle.Render("Heat Pump:"))
		s.WriteString("\n")

		stateContent := strings.Builder{}
		online := statsValueStyle.Render("online")
		if !m.state.HeaterOnline(time.Now()) {
			online = errorStyle.Render("offline")
		}
		stateContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
			statsLabelStyle.Render("Status:"), online,
			statsLabelStyle.Render("Mode:"), statsValueStyle.Render(m.state.ActiveMode().String()),
			statsLabelStyle.Render("Target:"), statsValueStyle.Render(formatTemp(m.state.TargetTemperature)),
		))
		stateContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s",
			statsLabelStyle.Render("Inlet:"), statsValueStyle.Render(formatTemp(m.state.InletTemperature)),
			statsLabelStyle.Render("Outlet:"), statsValueStyle.Render(formatTemp(m.state.OutletTemperature)),
			statsLabelStyle.Render("Coil:"), statsValueStyle.Render(formatTemp(m.state.CoilTemperature)),
		))
		stateContent.WriteString(fmt.Sprintf("\n%s %s",
			statsLabelStyle.Render("Last frame:"),
			statsValueStyle.Render(formatElapsed(time.Since(*m.state.LastHeaterFrame))+" ago"),
		))

		s.WriteString(boxStyle.Render(stateContent.String()))
		s.WriteString("\n\n")
	}

	// Event log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	// Reserve space for header, stats and heat pump section
	logHeight := m.height - 20
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.errorLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.errorLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.errorLog); i++ {
			entry := m.errorLog[i]
			timestamp := entry.timestamp.Format("01/02/06 15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}
