// ABOUTME: Listener TUI showing the live color and connected visualizers
// ABOUTME: Real-time status display using bubbletea
package listener

import (
	"fmt"
	"strings"
	"time"

	"github.com/FruityPi/fruitypi-go/pkg/color"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ServerTUI manages the listener TUI
type ServerTUI struct {
	program  *tea.Program
	quitChan chan struct{}
}

// tuiModel is the bubbletea model for the listener TUI
type tuiModel struct {
	name      string
	port      int
	startTime time.Time
	quitting  bool
	quitChan  chan struct{}

	last     Event
	received uint64
	clients  []ClientInfo
}

type tickMsg time.Time
type colorMsg Event
type clientsMsg []ClientInfo

func (m tuiModel) Init() tea.Cmd {
	return tickEvery()
}

func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.quitting = true
			select {
			case m.quitChan <- struct{}{}:
			default:
			}
			return m, tea.Quit
		}

	case tickMsg:
		return m, tickEvery()

	case colorMsg:
		m.last = Event(msg)
		m.received++

	case clientsMsg:
		m.clients = msg
	}

	return m, nil
}

func (m tuiModel) View() string {
	if m.quitting {
		return "Shutting down listener...\n"
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205")).
		MarginBottom(1)

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("86"))

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("250"))

	clientHeaderStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("220"))

	var b strings.Builder

	b.WriteString(titleStyle.Render("FruityPi Listener"))
	b.WriteString("\n\n")

	b.WriteString(headerStyle.Render("Name: "))
	b.WriteString(valueStyle.Render(m.name))
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("Port: "))
	b.WriteString(valueStyle.Render(fmt.Sprintf("%d (udp + ws)", m.port)))
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("Uptime: "))
	b.WriteString(valueStyle.Render(time.Since(m.startTime).Round(time.Second).String()))
	b.WriteString("\n\n")

	b.WriteString(lamp(m.last.Color))
	b.WriteString("\n")
	if m.received == 0 {
		b.WriteString(valueStyle.Render("Waiting for colors..."))
	} else {
		b.WriteString(valueStyle.Render(fmt.Sprintf("%s from %s over %s (%d received)",
			m.last.Color.Hex(), m.last.Source, m.last.Transport, m.received)))
	}
	b.WriteString("\n\n")

	b.WriteString(clientHeaderStyle.Render(fmt.Sprintf("WebSocket Visualizers (%d)", len(m.clients))))
	b.WriteString("\n\n")

	if len(m.clients) == 0 {
		b.WriteString(valueStyle.Render("  No visualizers connected"))
		b.WriteString("\n")
	} else {
		for _, c := range m.clients {
			b.WriteString(fmt.Sprintf("  • %s", c.Name))
			b.WriteString(valueStyle.Render(fmt.Sprintf(" (%s, %d colors)", c.Addr, c.Colors)))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Faint(true).Render("Press 'q' or Ctrl+C to quit"))

	return b.String()
}

// lamp renders a block filled with c
func lamp(c color.Color) string {
	style := lipgloss.NewStyle().
		Background(lipgloss.Color(c.Hex())).
		Width(24).
		Height(3)
	return style.Render("")
}

// NewServerTUI creates the program; Start runs it
func NewServerTUI(name string, port int) *ServerTUI {
	quitChan := make(chan struct{}, 1)
	m := tuiModel{
		name:      name,
		port:      port,
		startTime: time.Now(),
		quitChan:  quitChan,
	}
	return &ServerTUI{
		program:  tea.NewProgram(m, tea.WithAltScreen()),
		quitChan: quitChan,
	}
}

// Start runs the TUI until Stop or the user quits
func (t *ServerTUI) Start() error {
	_, err := t.program.Run()
	return err
}

// Color shows a received color
func (t *ServerTUI) Color(ev Event) {
	t.program.Send(colorMsg(ev))
}

// Clients replaces the connected visualizer list
func (t *ServerTUI) Clients(clients []ClientInfo) {
	t.program.Send(clientsMsg(clients))
}

// Stop stops the TUI
func (t *ServerTUI) Stop() {
	t.program.Quit()
}

// QuitChan returns the channel that signals when user wants to quit
func (t *ServerTUI) QuitChan() <-chan struct{} {
	return t.quitChan
}

// updateTUI sends the current client list to the TUI
func (s *Server) updateTUI() {
	if s.tui == nil {
		return
	}
	s.tui.Clients(s.clientInfo())
}
