// ABOUTME: Bubbletea model for the visualizer TUI
// ABOUTME: Shows the live color, brightness, capture state and delivery stats
package ui

import (
	"fmt"
	"strings"

	"github.com/FruityPi/fruitypi-go/pkg/color"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// historyLen is how many recent colors the strip shows
const historyLen = 48

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("208"))

	helpStyle = lipgloss.NewStyle().Faint(true)
)

// Model represents the TUI state
type Model struct {
	// Connection
	connected  bool
	serverName string
	transports string

	// Capture
	state  string
	format string
	paused bool

	// Color
	current color.Color
	history []color.Color

	// Stats
	buffers      uint64
	colors       uint64
	empty        uint64
	formatErrors uint64
	sent         uint64
	dropped      uint64

	// Debug
	showDebug  bool
	goroutines int
	memAlloc   uint64

	control *Control

	// Dimensions
	width  int
	height int
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case ColorMsg:
		m.pushColor(color.Color(msg))
	case StatusMsg:
		m.applyStatus(msg)
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("FruityPi Visualizer"))
	b.WriteString("\n\n")
	b.WriteString(m.renderHeader())
	b.WriteString(m.renderColor())
	b.WriteString(m.renderStats())
	if m.showDebug {
		b.WriteString(m.renderDebug())
	}
	b.WriteString(m.renderHelp())
	return b.String()
}

// renderHeader renders connection and capture status
func (m Model) renderHeader() string {
	connStatus := warnStyle.Render("Disconnected")
	if m.connected {
		connStatus = valueStyle.Render(fmt.Sprintf("Sending to %s (%s)", m.serverName, m.transports))
	}

	state := m.state
	if m.paused {
		state += " (paused)"
	}

	return fmt.Sprintf("%s %s\n%s %s\n%s %s\n\n",
		labelStyle.Render("Target:"), connStatus,
		labelStyle.Render("Capture:"), valueStyle.Render(state),
		labelStyle.Render("Format:"), valueStyle.Render(m.format))
}

// renderColor renders the swatch, brightness bar and history strip
func (m Model) renderColor() string {
	swatch := lipgloss.NewStyle().
		Background(lipgloss.Color(m.current.Hex())).
		Render(strings.Repeat(" ", 12))

	brightness := m.current.Brightness()

	var strip strings.Builder
	for _, c := range m.history {
		strip.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(c.Hex())).Render("█"))
	}

	return fmt.Sprintf("%s %s\n%s %s\n%s [%s] %3d\n%s\n\n",
		swatch, valueStyle.Render(m.current.Hex()),
		swatch, "",
		labelStyle.Render("Brightness:"), renderBar(brightness, 255, 20), brightness,
		strip.String())
}

// renderStats renders capture and delivery counters
func (m Model) renderStats() string {
	s := fmt.Sprintf("%s buffers %d  colors %d  empty %d\n%s sent %d  dropped %d\n",
		labelStyle.Render("Capture:"), m.buffers, m.colors, m.empty,
		labelStyle.Render("Sink:   "), m.sent, m.dropped)
	if m.formatErrors > 0 {
		s += warnStyle.Render(fmt.Sprintf("Unsupported sample format: %d buffers skipped", m.formatErrors)) + "\n"
	}
	return s + "\n"
}

// renderDebug renders runtime information
func (m Model) renderDebug() string {
	return fmt.Sprintf("%s goroutines %d  heap %.1f MB\n\n",
		labelStyle.Render("Debug:"), m.goroutines, float64(m.memAlloc)/(1024*1024))
}

// renderHelp renders keyboard shortcuts
func (m Model) renderHelp() string {
	return helpStyle.Render("p:Pause/Resume  d:Debug  q:Quit") + "\n"
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.control != nil {
			select {
			case m.control.Quit <- struct{}{}:
			default:
			}
		}
		return m, tea.Quit
	case "p", " ":
		m.paused = !m.paused
		if m.control != nil {
			select {
			case m.control.Pause <- m.paused:
			default:
			}
		}
	case "d":
		m.showDebug = !m.showDebug
	}

	return m, nil
}

// pushColor records a new color, keeping the last historyLen
func (m *Model) pushColor(c color.Color) {
	m.current = c
	m.history = append(m.history, c)
	if len(m.history) > historyLen {
		m.history = m.history[len(m.history)-historyLen:]
	}
}

// applyStatus updates model from status message
func (m *Model) applyStatus(msg StatusMsg) {
	if msg.Connected != nil {
		m.connected = *msg.Connected
	}
	if msg.ServerName != "" {
		m.serverName = msg.ServerName
	}
	if len(msg.Transports) > 0 {
		m.transports = strings.Join(msg.Transports, ", ")
	}
	if msg.State != "" {
		m.state = msg.State
	}
	if msg.Format != "" {
		m.format = msg.Format
	}
	if msg.Buffers != 0 {
		m.buffers = msg.Buffers
		m.colors = msg.Colors
		m.empty = msg.Empty
		m.formatErrors = msg.FormatErrors
	}
	if msg.Sent != 0 || msg.Dropped != 0 {
		m.sent = msg.Sent
		m.dropped = msg.Dropped
	}
	if msg.Goroutines != 0 {
		m.goroutines = msg.Goroutines
		m.memAlloc = msg.MemAlloc
	}
}

// ColorMsg carries the newest color
type ColorMsg color.Color

// StatusMsg updates TUI state; zero fields leave the current value alone
type StatusMsg struct {
	Connected    *bool
	ServerName   string
	Transports   []string
	State        string
	Format       string
	Buffers      uint64
	Colors       uint64
	Empty        uint64
	FormatErrors uint64
	Sent         uint64
	Dropped      uint64
	Goroutines   int
	MemAlloc     uint64
}

func renderBar(value, max, width int) string {
	filled := (value * width) / max
	bar := ""
	for i := 0; i < width; i++ {
		if i < filled {
			bar += "█"
		} else {
			bar += "░"
		}
	}
	return bar
}
