// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	log "github.com/sirupsen/logrus"

	"github.com/Thermoquad/hwpbus/pkg/bus"
	"github.com/Thermoquad/hwpbus/pkg/heatpump"
	"github.com/Thermoquad/hwpbus/pkg/hwp"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

// Focus states
const (
	focusModeList = iota
	focusTargetInput
	focusButton
)

var controlModes = []heatpump.Mode{heatpump.ModeOff, heatpump.ModeHeat, heatpump.ModeCool, heatpump.ModeAuto}

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// modeItem is one selectable operating mode
type modeItem struct {
	mode    heatpump.Mode
	allowed bool
	active  bool
}

// Implement list.Item interface
func (i modeItem) Title() string {
	title := strings.ToUpper(i.mode.String())
	if i.active {
		title += " *"
	}
	return title
}

func (i modeItem) Description() string {
	if !i.allowed {
		return "restricted"
	}
	return "available"
}

func (i modeItem) FilterValue() string { return i.mode.String() }

// Sender queues command frames; *bus.Bus in production
type Sender interface {
	Send(f *hwp.Frame) error
	Pending() int
	Mode() bus.Mode
}

// controlModel is the Bubble Tea model for the control TUI
type controlModel struct {
	connInfo string
	sender   Sender
	registry *heatpump.Registry
	hp       *heatpump.Model
	statsFn  func() hwp.Statistics

	// Mirrors refreshed every tick
	state heatpump.State
	stats hwp.Statistics

	modeList    list.Model
	targetInput textinput.Model
	focused     int

	errorLog      []errorLogEntry
	maxLogEntries int

	width          int
	height         int
	quitting       bool
	connectionLost bool
	now            func() time.Time
}

type controlTickMsg time.Time

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialControlModel(connInfo string, b *bus.Bus, registry *heatpump.Registry, hp *heatpump.Model) controlModel {
	return newControlModel(connInfo, b, registry, hp, b.Statistics)
}

func newControlModel(connInfo string, sender Sender, registry *heatpump.Registry, hp *heatpump.Model, statsFn func() hwp.Statistics) controlModel {
	ti := textinput.New()
	ti.Placeholder = "27.0"
	ti.CharLimit = 5
	ti.Width = 8

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	modeList := list.New([]list.Item{}, delegate, 20, 10)
	modeList.Title = "Mode"
	modeList.SetShowStatusBar(false)
	modeList.SetShowHelp(false)
	modeList.SetFilteringEnabled(false)

	m := controlModel{
		connInfo:      connInfo,
		sender:        sender,
		registry:      registry,
		hp:            hp,
		statsFn:       statsFn,
		modeList:      modeList,
		targetInput:   ti,
		focused:       focusModeList,
		errorLog:      make([]errorLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
		now:           time.Now,
	}
	m.refresh()
	return m
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m controlModel) Init() tea.Cmd {
	return controlTickCmd()
}

func controlTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return controlTickMsg(t)
	})
}

func (m controlModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateListSize()

	case controlTickMsg:
		m.refresh()
		return m, controlTickCmd()

	case frameMsg:
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("Dropped frame: %v", msg.err), true)
			break
		}
		// First heat pump frame unlocks the controls
		wasOnline := m.state.LastHeaterFrame != nil
		m.refresh()
		if !wasOnline && m.state.LastHeaterFrame != nil {
			m.addLogEntry("Heat pump found", false)
		}

	case logMsg:
		if msg.level <= log.WarnLevel {
			m.addLogEntry(msg.message, msg.level <= log.ErrorLevel)
		}

	case lineClosedMsg:
		m.connectionLost = true
		m.addLogEntry("Connection lost", true)
	}

	var cmd tea.Cmd
	if m.focused == focusTargetInput {
		m.targetInput, cmd = m.targetInput.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *controlModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.focused != focusTargetInput || msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}

	case "tab":
		return m.cycleFocus(1), nil

	case "shift+tab":
		return m.cycleFocus(-1), nil

	case "enter":
		return m.handleEnter()

	case "up", "k", "down", "j":
		if m.focused == focusModeList {
			var cmd tea.Cmd
			m.modeList, cmd = m.modeList.Update(msg)
			return m, cmd
		}
	}

	// Pass through to focused component
	if m.focused == focusTargetInput {
		var cmd tea.Cmd
		m.targetInput, cmd = m.targetInput.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *controlModel) cycleFocus(delta int) *controlModel {
	m.focused = (m.focused + delta + focusButton + 1) % (focusButton + 1)

	if m.focused == focusTargetInput {
		m.targetInput.Focus()
	} else {
		m.targetInput.Blur()
	}
	return m
}

func (m *controlModel) handleEnter() (tea.Model, tea.Cmd) {
	if m.connectionLost {
		m.addLogEntry("Cannot send command: connection lost", true)
		return m, nil
	}

	switch m.focused {
	case focusModeList:
		item, ok := m.modeList.SelectedItem().(modeItem)
		if !ok {
			return m, nil
		}
		if !item.allowed {
			m.addLogEntry(fmt.Sprintf("Mode %s not allowed while restricted to %s", item.mode, m.state.ModeRestriction()), true)
			return m, nil
		}
		m.apply(heatpump.SetMode(item.mode), "mode "+item.mode.String())

	case focusTargetInput, focusButton:
		value := strings.TrimSpace(m.targetInput.Value())
		if value == "" {
			value = m.targetInput.Placeholder
		}
		t, err := strconv.ParseFloat(value, 64)
		if err != nil {
			m.addLogEntry(fmt.Sprintf("Invalid target %q", value), true)
			return m, nil
		}
		m.apply(heatpump.SetTarget(t), fmt.Sprintf("target %.1f°C", t))
	}
	return m, nil
}

// apply builds the command frames for ch and queues them
func (m *controlModel) apply(ch heatpump.Change, what string) {
	frames, err := m.registry.RequestChange(ch, m.hp)
	if err != nil {
		m.addLogEntry(fmt.Sprintf("Cannot set %s: %v", what, err), true)
		return
	}
	if len(frames) == 0 {
		m.addLogEntry(fmt.Sprintf("No change for %s", what), false)
		return
	}
	for _, f := range frames {
		if err := m.sender.Send(f); err != nil {
			m.addLogEntry(fmt.Sprintf("Cannot send %s: %v", what, err), true)
			return
		}
	}
	m.addLogEntry(fmt.Sprintf("Queued %s (%d frames)", what, len(frames)), false)
}

func (m controlModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

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

	focusedBoxStyle := boxStyle.
		BorderForeground(lipgloss.Color("12"))

	buttonStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("0")).
		Background(lipgloss.Color("12")).
		Padding(0, 2)

	focusedButtonStyle := buttonStyle.
		Background(lipgloss.Color("10"))

	// Header
	s.WriteString(titleStyle.Render("HWPBUS CONTROL"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if m.connectionLost {
		connStatus = errorStyle.Render("DISCONNECTED")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | q=quit Tab=switch", connStatus)))
	s.WriteString("\n\n")

	if m.state.LastHeaterFrame == nil {
		s.WriteString(warningStyle.Render("Waiting for heat pump..."))
		s.WriteString("\n\n")
		s.WriteString(m.renderEventLog(statsLabelStyle, warningStyle, boxStyle))
		return s.String()
	}

	// Layout: left panel (modes) | right panel (control)
	leftWidth := 22
	rightWidth := m.width - leftWidth - 6
	if rightWidth < 30 {
		rightWidth = 30
	}

	listStyle := boxStyle.Width(leftWidth)
	if m.focused == focusModeList {
		listStyle = focusedBoxStyle.Width(leftWidth)
	}
	modePanel := listStyle.Render(m.modeList.View())

	controlContent := m.renderControlPanel(statsLabelStyle, statsValueStyle, errorStyle, headerStyle, buttonStyle, focusedButtonStyle)
	controlPanel := boxStyle.Width(rightWidth).Render(controlContent)

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, modePanel, " ", controlPanel))
	s.WriteString("\n\n")

	s.WriteString(m.renderStatisticsBar(statsLabelStyle, statsValueStyle, errorStyle, warningStyle, boxStyle))
	s.WriteString("\n\n")

	s.WriteString(m.renderEventLog(statsLabelStyle, warningStyle, boxStyle))

	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

func (m controlModel) renderControlPanel(statsLabelStyle, statsValueStyle, errorStyle, headerStyle, buttonStyle, focusedButtonStyle lipgloss.Style) string {
	var s strings.Builder

	online := statsValueStyle.Render("online")
	if !m.state.HeaterOnline(m.now()) {
		online = errorStyle.Render("offline")
	}
	s.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Heat pump:"), online,
		statsLabelStyle.Render("Mode:"), statsValueStyle.Render(m.state.ActiveMode().String()),
		statsLabelStyle.Render("Allowed:"), statsValueStyle.Render(m.state.ModeRestriction().String()),
	))
	s.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n\n",
		statsLabelStyle.Render("Target:"), statsValueStyle.Render(formatTemp(m.state.TargetTemperature)),
		statsLabelStyle.Render("Inlet:"), statsValueStyle.Render(formatTemp(m.state.InletTemperature)),
		statsLabelStyle.Render("Outlet:"), statsValueStyle.Render(formatTemp(m.state.OutletTemperature)),
	))

	// Target entry
	s.WriteString(statsLabelStyle.Render("New target: "))
	if m.focused == focusTargetInput {
		s.WriteString(m.targetInput.View())
	} else {
		val := m.targetInput.Value()
		if val == "" {
			val = m.targetInput.Placeholder
		}
		s.WriteString(fmt.Sprintf("[%s]", val))
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("  (%.0f-%.0f°C)", m.state.MinTargetOrDefault(), m.state.MaxTargetOrDefault())))
	s.WriteString("\n\n")

	btnText := "[ Set Target ]"
	if m.focused == focusButton {
		s.WriteString(focusedButtonStyle.Render(btnText))
	} else {
		s.WriteString(buttonStyle.Render(btnText))
	}

	s.WriteString("\n\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("Bus: %s | Queued: %d", m.sender.Mode(), m.sender.Pending())))

	return s.String()
}

func (m controlModel) renderStatisticsBar(statsLabelStyle, statsValueStyle, errorStyle, warningStyle, boxStyle lipgloss.Style) string {
	var validPercent, errorPercent float64
	if m.stats.TotalFrames > 0 {
		validPercent = float64(m.stats.ValidFrames) * 100.0 / float64(m.stats.TotalFrames)
		errorPercent = float64(m.stats.Errors()) * 100.0 / float64(m.stats.TotalFrames)
	}

	content := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s  %s %s",
		statsLabelStyle.Render("Total:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.TotalFrames)),
		statsLabelStyle.Render("Valid:"), statsValueStyle.Render(fmt.Sprintf("%.1f%%", validPercent)),
		statsLabelStyle.Render("Dropped:"), func() string {
			if errorPercent > 0 {
				return errorStyle.Render(fmt.Sprintf("%.1f%%", errorPercent))
			}
			return statsValueStyle.Render("0.0%")
		}(),
		statsLabelStyle.Render("Sent:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.SentFrames)),
		statsLabelStyle.Render("Deferred:"), warningStyle.Render(fmt.Sprintf("%d", m.stats.DeferredSends)),
	)

	return boxStyle.Width(m.width - 4).Render(content)
}

func (m controlModel) renderEventLog(statsLabelStyle, warningStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(statsLabelStyle.Render("EVENTS"))
	s.WriteString("\n")

	headerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyleLocal := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)

	logHeight := 8
	if len(m.errorLog) < logHeight {
		logHeight = len(m.errorLog)
	}
	startIdx := len(m.errorLog) - logHeight

	if len(m.errorLog) == 0 {
		s.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.errorLog); i++ {
			entry := m.errorLog[i]
			timestamp := entry.timestamp.Format("15:04:05.000")
			icon := "i"
			style := warningStyle
			if entry.isError {
				icon = "x"
				style = errorStyleLocal
			}
			s.WriteString(fmt.Sprintf("%s %s %s\n",
				headerStyle.Render(timestamp),
				style.Render(icon),
				entry.message))
		}
	}

	return boxStyle.Width(m.width - 4).Render(s.String())
}

//////////////////////////////////////////////////////////////
// Data Processing
//////////////////////////////////////////////////////////////

// refresh copies the model state and statistics and rebuilds the mode list
func (m *controlModel) refresh() {
	m.state = m.hp.Snapshot()
	m.stats = m.statsFn()

	restriction := m.state.ModeRestriction()
	active := m.state.ActiveMode()
	items := make([]list.Item, len(controlModes))
	for i, mode := range controlModes {
		items[i] = modeItem{
			mode:    mode,
			allowed: restriction.Allows(mode),
			active:  m.state.Mode != nil && mode == active,
		}
	}
	m.modeList.SetItems(items)
}

func (m *controlModel) addLogEntry(message string, isError bool) {
	m.errorLog = append(m.errorLog, errorLogEntry{
		timestamp: m.now(),
		message:   message,
		isError:   isError,
	})
	if len(m.errorLog) > m.maxLogEntries {
		m.errorLog = m.errorLog[len(m.errorLog)-m.maxLogEntries:]
	}
}

func (m *controlModel) updateListSize() {
	listHeight := m.height / 3
	if listHeight < 8 {
		listHeight = 8
	}
	m.modeList.SetSize(20, listHeight)
}
