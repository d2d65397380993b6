// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program and the channels it reports keys on
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Control carries user actions out of the TUI
type Control struct {
	// Pause receives true to pause capture and false to resume
	Pause chan bool
	Quit  chan struct{}
}

// NewControl creates the control channels
func NewControl() *Control {
	return &Control{
		Pause: make(chan bool, 4),
		Quit:  make(chan struct{}, 1),
	}
}

// NewModel creates a new TUI model
func NewModel(ctrl *Control) Model {
	return Model{
		state:   "starting",
		control: ctrl,
	}
}

// Run creates the TUI program; the caller runs it
func Run(ctrl *Control) (*tea.Program, error) {
	p := tea.NewProgram(NewModel(ctrl), tea.WithAltScreen())
	return p, nil
}
