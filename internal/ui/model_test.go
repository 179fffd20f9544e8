// ABOUTME: Tests for TUI model and state management
// ABOUTME: Tests status updates, key handling, and render helpers
package ui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func bptr(v bool) *bool       { return &v }
func fptr(v float64) *float64 { return &v }
func iptr(v int) *int         { return &v }

func TestNewModel(t *testing.T) {
	model := NewModel(nil) // Control is optional for testing

	if model.playing {
		t.Error("expected paused initially")
	}
	if model.rate != 1.0 {
		t.Errorf("expected default rate 1.0, got %g", model.rate)
	}
	if model.showDebug {
		t.Error("expected showDebug to be false initially")
	}
}

func TestStatusMsgTransport(t *testing.T) {
	model := NewModel(nil)

	model.applyStatus(StatusMsg{
		Sequence: "Launch Reel",
		Playing:  bptr(true),
		Position: fptr(12.5),
		Duration: fptr(45),
		Rate:     fptr(2),
	})

	if model.sequence != "Launch Reel" {
		t.Errorf("expected sequence 'Launch Reel', got '%s'", model.sequence)
	}
	if !model.playing {
		t.Error("expected playing after status update")
	}
	if model.position != 12.5 {
		t.Errorf("expected position 12.5, got %g", model.position)
	}
	if model.rate != 2 {
		t.Errorf("expected rate 2, got %g", model.rate)
	}
}

func TestStatusMsgPartialUpdate(t *testing.T) {
	model := NewModel(nil)

	model.applyStatus(StatusMsg{
		Sequence: "Show",
		Playing:  bptr(true),
		Position: fptr(5),
	})

	// A partial update leaves unrelated fields alone
	model.applyStatus(StatusMsg{Position: fptr(6)})

	if model.sequence != "Show" {
		t.Error("sequence was lost by partial update")
	}
	if !model.playing {
		t.Error("playing flag was lost by partial update")
	}
	if model.position != 6 {
		t.Errorf("expected position 6, got %g", model.position)
	}
}

func TestStatusMsgZeroPosition(t *testing.T) {
	model := NewModel(nil)

	model.applyStatus(StatusMsg{Position: fptr(10)})
	model.applyStatus(StatusMsg{Position: fptr(0)})

	// A pointer to zero is a real update, not an omission
	if model.position != 0 {
		t.Errorf("expected position reset to 0, got %g", model.position)
	}
}

func TestStatusMsgLoop(t *testing.T) {
	model := NewModel(nil)

	model.applyStatus(StatusMsg{LoopSet: bptr(true), LoopStart: 2, LoopEnd: 4.5})
	if !model.loopSet || model.loopStart != 2 || model.loopEnd != 4.5 {
		t.Errorf("expected loop [2, 4.5], got set=%v [%g, %g]",
			model.loopSet, model.loopStart, model.loopEnd)
	}

	model.applyStatus(StatusMsg{LoopSet: bptr(false)})
	if model.loopSet {
		t.Error("expected loop cleared")
	}
}

func TestStatusMsgHistory(t *testing.T) {
	model := NewModel(nil)

	model.applyStatus(StatusMsg{
		CanUndo:   bptr(true),
		UndoLabel: "add title",
		CanRedo:   bptr(false),
	})

	if !model.canUndo {
		t.Error("expected canUndo set")
	}
	if model.undoLabel != "add title" {
		t.Errorf("expected undo label 'add title', got '%s'", model.undoLabel)
	}
	if model.canRedo {
		t.Error("expected canRedo false")
	}
}

func TestStatusMsgStats(t *testing.T) {
	model := NewModel(nil)

	model.applyStatus(StatusMsg{
		ActiveLayers: iptr(3),
		OpenHandles:  iptr(2),
		Clients:      iptr(1),
	})

	if model.activeLayers != 3 {
		t.Errorf("expected 3 layers, got %d", model.activeLayers)
	}
	if model.openHandles != 2 {
		t.Errorf("expected 2 handles, got %d", model.openHandles)
	}
	if model.clients != 1 {
		t.Errorf("expected 1 client, got %d", model.clients)
	}
}

func TestKeysSendCommands(t *testing.T) {
	ctrl := NewControl()
	model := NewModel(ctrl)

	tests := []struct {
		key  string
		want Command
	}{
		{" ", CmdTogglePlay},
		{"left", CmdSeekBack},
		{"right", CmdSeekForward},
		{"shift+left", CmdJumpBack},
		{"shift+right", CmdJumpForward},
		{"+", CmdRateUp},
		{"-", CmdRateDown},
		{"l", CmdClearLoop},
		{"u", CmdUndo},
		{"r", CmdRedo},
		{"s", CmdSave},
	}

	for _, tt := range tests {
		var key tea.KeyMsg
		switch tt.key {
		case " ":
			key = tea.KeyMsg{Type: tea.KeySpace}
		case "left":
			key = tea.KeyMsg{Type: tea.KeyLeft}
		case "right":
			key = tea.KeyMsg{Type: tea.KeyRight}
		case "shift+left":
			key = tea.KeyMsg{Type: tea.KeyShiftLeft}
		case "shift+right":
			key = tea.KeyMsg{Type: tea.KeyShiftRight}
		default:
			key = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(tt.key)}
		}

		model.handleKey(key)

		select {
		case got := <-ctrl.Commands:
			if got != tt.want {
				t.Errorf("key %q sent command %d, want %d", tt.key, got, tt.want)
			}
		default:
			t.Errorf("key %q sent no command", tt.key)
		}
	}
}

func TestQuitKeySignals(t *testing.T) {
	ctrl := NewControl()
	model := NewModel(ctrl)

	_, cmd := model.handleKey(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Error("expected a quit command from q")
	}

	select {
	case <-ctrl.Quit:
	default:
		t.Error("expected quit signal on control channel")
	}
}

func TestDebugToggle(t *testing.T) {
	model := NewModel(nil)

	updated, _ := model.handleKey(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("d")})
	if !updated.(Model).showDebug {
		t.Error("expected d to enable debug display")
	}
}

func TestViewShowsSequence(t *testing.T) {
	model := NewModel(nil)
	model.width = 80
	model.height = 24
	model.applyStatus(StatusMsg{
		Sequence: "Launch Reel",
		Playing:  bptr(true),
		Position: fptr(10),
		Duration: fptr(40),
		Rate:     fptr(1),
	})

	view := model.View()
	if !strings.Contains(view, "Launch Reel") {
		t.Error("expected view to contain the sequence name")
	}
	if !strings.Contains(view, "playing") {
		t.Error("expected view to show the transport state")
	}
}

func TestViewBeforeSize(t *testing.T) {
	model := NewModel(nil)
	if got := model.View(); got != "Loading..." {
		t.Errorf("expected loading placeholder, got %q", got)
	}
}

func TestRenderBar(t *testing.T) {
	tests := []struct {
		value, max float64
		width      int
		wantFilled int
	}{
		{0, 100, 10, 0},
		{50, 100, 10, 5},
		{100, 100, 10, 10},
		{150, 100, 10, 10}, // clamped
		{10, 0, 10, 0},     // no duration yet
	}

	for _, tt := range tests {
		bar := renderBar(tt.value, tt.max, tt.width)
		filled := strings.Count(bar, "█")
		if filled != tt.wantFilled {
			t.Errorf("renderBar(%g, %g, %d) filled %d cells, want %d",
				tt.value, tt.max, tt.width, filled, tt.wantFilled)
		}
	}
}

func TestTruncateFunction(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"short", 10, "short"},
		{"this is longer than allowed", 10, "this is..."},
		{"", 10, ""},
		{"abcd", 4, "abcd"},
		{"abcde", 4, "a..."},
	}

	for _, tt := range tests {
		result := truncate(tt.input, tt.maxLen)
		if result != tt.expected {
			t.Errorf("truncate(%q, %d) = %q, expected %q",
				tt.input, tt.maxLen, result, tt.expected)
		}
	}
}
