// ABOUTME: Bubbletea model for the previewer transport TUI
// ABOUTME: Defines application state and update logic
package ui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
)

// Model represents the TUI state
type Model struct {
	ctrl *Control

	// Document
	sequence string

	// Transport
	playing   bool
	position  float64
	duration  float64
	rate      float64
	loopStart float64
	loopEnd   float64
	loopSet   bool

	// History
	canUndo   bool
	canRedo   bool
	undoLabel string
	redoLabel string

	// Engine stats
	activeLayers int
	openHandles  int
	ticks        int64
	corrections  int64
	clients      int

	lastSaved string

	// Debug
	showDebug bool

	// Dimensions
	width  int
	height int

	quitting bool
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
	case StatusMsg:
		m.applyStatus(msg)
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}
	if m.width == 0 {
		return "Loading..."
	}

	s := ""
	s += m.renderHeader()
	s += m.renderTransport()
	s += m.renderEdit()
	s += m.renderStats()

	if m.showDebug {
		s += m.renderDebug()
	}

	s += m.renderHelp()

	return s
}

// renderHeader renders the sequence title
func (m Model) renderHeader() string {
	title := m.sequence
	if title == "" {
		title = "(no sequence)"
	}

	return fmt.Sprintf(`┌─ Previz Previewer ───────────────────────────────────┐
│ Sequence: %-42s │
├──────────────────────────────────────────────────────┤
`, truncate(title, 42))
}

// renderTransport renders the clock, position bar, and loop region
func (m Model) renderTransport() string {
	state := "paused "
	if m.playing {
		state = "playing"
	}

	bar := renderBar(m.position, m.duration, 30)
	timeline := fmt.Sprintf("%s %6.1f / %.1fs", bar, m.position, m.duration)

	loop := "off"
	if m.loopSet {
		loop = fmt.Sprintf("%.1f - %.1fs", m.loopStart, m.loopEnd)
	}

	return fmt.Sprintf("│ %s  %.2fx  loop: %-28s │\n"+
		"│ %-52s │\n",
		state, m.rate, truncate(loop, 28), timeline)
}

// renderEdit renders undo and redo availability
func (m Model) renderEdit() string {
	undo := "(nothing)"
	if m.canUndo {
		undo = m.undoLabel
		if undo == "" {
			undo = "edit"
		}
	}
	redo := "(nothing)"
	if m.canRedo {
		redo = m.redoLabel
		if redo == "" {
			redo = "edit"
		}
	}

	saved := ""
	if m.lastSaved != "" {
		saved = fmt.Sprintf("│ Saved: %-45s │\n", truncate(m.lastSaved, 45))
	}

	return fmt.Sprintf("│ Undo: %-20s Redo: %-19s │\n", truncate(undo, 20), truncate(redo, 19)) + saved
}

// renderStats renders compositor and connection statistics
func (m Model) renderStats() string {
	return fmt.Sprintf(`├──────────────────────────────────────────────────────┤
│ Layers: %-3d Handles: %-3d Clients: %-3d%-15s │
`, m.activeLayers, m.openHandles, m.clients, "")
}

// renderDebug renders tick counters
func (m Model) renderDebug() string {
	return fmt.Sprintf("│ DEBUG: ticks=%-10d corrections=%-10d%-6s │\n",
		m.ticks, m.corrections, "")
}

// renderHelp renders keyboard shortcuts
func (m Model) renderHelp() string {
	return `│ space:Play  ←/→:Seek  u:Undo  r:Redo  s:Save  q:Quit │
└──────────────────────────────────────────────────────┘
`
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		m.requestQuit()
		return m, tea.Quit
	case " ":
		m.sendCommand(CmdTogglePlay)
	case "left":
		m.sendCommand(CmdSeekBack)
	case "right":
		m.sendCommand(CmdSeekForward)
	case "shift+left":
		m.sendCommand(CmdJumpBack)
	case "shift+right":
		m.sendCommand(CmdJumpForward)
	case "+", "=":
		m.sendCommand(CmdRateUp)
	case "-":
		m.sendCommand(CmdRateDown)
	case "l":
		m.sendCommand(CmdClearLoop)
	case "u":
		m.sendCommand(CmdUndo)
	case "r":
		m.sendCommand(CmdRedo)
	case "s":
		m.sendCommand(CmdSave)
	case "d":
		m.showDebug = !m.showDebug
	}

	return m, nil
}

// sendCommand forwards a user intent without blocking
func (m Model) sendCommand(cmd Command) {
	if m.ctrl == nil {
		return
	}
	select {
	case m.ctrl.Commands <- cmd:
	default:
	}
}

func (m Model) requestQuit() {
	if m.ctrl == nil {
		return
	}
	select {
	case m.ctrl.Quit <- struct{}{}:
	default:
	}
}

// applyStatus updates model state from a status message. Nil fields leave
// the current value alone, so senders can push partial updates.
func (m *Model) applyStatus(msg StatusMsg) {
	if msg.Sequence != "" {
		m.sequence = msg.Sequence
	}
	if msg.Playing != nil {
		m.playing = *msg.Playing
	}
	if msg.Position != nil {
		m.position = *msg.Position
	}
	if msg.Duration != nil {
		m.duration = *msg.Duration
	}
	if msg.Rate != nil {
		m.rate = *msg.Rate
	}
	if msg.LoopSet != nil {
		m.loopSet = *msg.LoopSet
		m.loopStart = msg.LoopStart
		m.loopEnd = msg.LoopEnd
	}
	if msg.CanUndo != nil {
		m.canUndo = *msg.CanUndo
		m.undoLabel = msg.UndoLabel
	}
	if msg.CanRedo != nil {
		m.canRedo = *msg.CanRedo
		m.redoLabel = msg.RedoLabel
	}
	if msg.ActiveLayers != nil {
		m.activeLayers = *msg.ActiveLayers
	}
	if msg.OpenHandles != nil {
		m.openHandles = *msg.OpenHandles
	}
	if msg.Ticks != nil {
		m.ticks = *msg.Ticks
	}
	if msg.Corrections != nil {
		m.corrections = *msg.Corrections
	}
	if msg.Clients != nil {
		m.clients = *msg.Clients
	}
	if msg.LastSaved != "" {
		m.lastSaved = msg.LastSaved
	}
}

// StatusMsg updates TUI state. Pointer fields distinguish "unchanged"
// from a real zero.
type StatusMsg struct {
	Sequence     string
	Playing      *bool
	Position     *float64
	Duration     *float64
	Rate         *float64
	LoopStart    float64
	LoopEnd      float64
	LoopSet      *bool
	CanUndo      *bool
	CanRedo      *bool
	UndoLabel    string
	RedoLabel    string
	ActiveLayers *int
	OpenHandles  *int
	Ticks        *int64
	Corrections  *int64
	Clients      *int
	LastSaved    string
}

// Utility functions
func renderBar(value, max float64, width int) string {
	filled := 0
	if max > 0 {
		filled = int(value / max * float64(width))
		if filled > width {
			filled = width
		}
		if filled < 0 {
			filled = 0
		}
	}
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

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}
