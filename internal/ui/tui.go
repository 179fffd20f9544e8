// ABOUTME: TUI initialization and control
// ABOUTME: Wraps bubbletea program for the previewer UI
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Command is a user intent raised by the TUI. The session maps each one
// onto an engine command.
type Command int

const (
	CmdTogglePlay Command = iota
	CmdSeekBack
	CmdSeekForward
	CmdJumpBack
	CmdJumpForward
	CmdRateUp
	CmdRateDown
	CmdClearLoop
	CmdUndo
	CmdRedo
	CmdSave
)

// Control holds channels for TUI to session communication
type Control struct {
	Commands chan Command
	Quit     chan struct{}
}

// NewControl creates a control channel pair
func NewControl() *Control {
	return &Control{
		Commands: make(chan Command, 10),
		Quit:     make(chan struct{}, 1),
	}
}

// NewModel creates a new TUI model
func NewModel(ctrl *Control) Model {
	return Model{
		ctrl: ctrl,
		rate: 1.0,
	}
}

// NewProgram builds the TUI program. The caller runs it.
func NewProgram(ctrl *Control) *tea.Program {
	return tea.NewProgram(NewModel(ctrl), tea.WithAltScreen())
}
