// ABOUTME: Bridge status TUI showing connected clients and transport state
// ABOUTME: Real-time display using bubbletea
package bridge

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// StatusTUI manages the bridge status display
type StatusTUI struct {
	program  *tea.Program
	updates  chan ServerStatus
	quitChan chan struct{}
}

// ServerStatus holds bridge state for display
type ServerStatus struct {
	Name     string
	Port     int
	Uptime   time.Duration
	Clients  []ClientInfo
	Sequence string
	Playing  bool
	Position float64
	Duration float64
}

// ClientInfo holds client information for display
type ClientInfo struct {
	ID    string
	Name  string
	Roles []string
}

// statusModel is the bubbletea model for the status display
type statusModel struct {
	status    ServerStatus
	startTime time.Time
	quitting  bool
	quitChan  chan struct{}
}

type tickMsg time.Time
type statusMsg ServerStatus

func (m statusModel) Init() tea.Cmd {
	return tickEvery()
}

func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m statusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
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

	case statusMsg:
		m.status = ServerStatus(msg)
		return m, nil
	}

	return m, nil
}

func (m statusModel) View() string {
	if m.quitting {
		return "Shutting down bridge...\n"
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

	b.WriteString(titleStyle.Render("Previz Engine"))
	b.WriteString("\n\n")

	b.WriteString(headerStyle.Render("Name: "))
	b.WriteString(valueStyle.Render(m.status.Name))
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("Port: "))
	b.WriteString(valueStyle.Render(fmt.Sprintf("%d", m.status.Port)))
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("Uptime: "))
	uptime := time.Since(m.startTime).Round(time.Second)
	b.WriteString(valueStyle.Render(uptime.String()))
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("Sequence: "))
	seq := m.status.Sequence
	if seq == "" {
		seq = "(none)"
	}
	b.WriteString(valueStyle.Render(seq))
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("Transport: "))
	b.WriteString(valueStyle.Render(transportLine(m.status)))
	b.WriteString("\n\n")

	b.WriteString(clientHeaderStyle.Render(fmt.Sprintf("Connected Clients (%d)", len(m.status.Clients))))
	b.WriteString("\n\n")

	if len(m.status.Clients) == 0 {
		b.WriteString(valueStyle.Render("  No clients connected"))
		b.WriteString("\n")
	} else {
		for _, client := range m.status.Clients {
			b.WriteString(fmt.Sprintf("  - %s", client.Name))
			roles := strings.Join(client.Roles, ", ")
			if roles == "" {
				roles = "editor"
			}
			b.WriteString(valueStyle.Render(fmt.Sprintf(" (%s)", roles)))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Faint(true).Render("Press 'q' or Ctrl+C to quit"))

	return b.String()
}

func transportLine(st ServerStatus) string {
	state := "paused"
	if st.Playing {
		state = "playing"
	}
	return fmt.Sprintf("%s %.1fs / %.1fs", state, st.Position, st.Duration)
}

// NewStatusTUI creates a bridge status display
func NewStatusTUI() *StatusTUI {
	return &StatusTUI{
		updates:  make(chan ServerStatus, 10),
		quitChan: make(chan struct{}, 1),
	}
}

// Start runs the display until it quits. Blocks.
func (t *StatusTUI) Start(name string, port int) error {
	m := statusModel{
		status: ServerStatus{
			Name:    name,
			Port:    port,
			Clients: []ClientInfo{},
		},
		startTime: time.Now(),
		quitChan:  t.quitChan,
	}

	t.program = tea.NewProgram(m, tea.WithAltScreen())

	go func() {
		for status := range t.updates {
			if t.program != nil {
				t.program.Send(statusMsg(status))
			}
		}
	}()

	_, err := t.program.Run()
	return err
}

// UpdateStatus sends a status update to the display
func (t *StatusTUI) UpdateStatus(status ServerStatus) {
	select {
	case t.updates <- status:
	default:
		// Don't block if channel is full
	}
}

// Stop stops the display
func (t *StatusTUI) Stop() {
	if t.program != nil {
		t.program.Quit()
	}
	close(t.updates)
}

// QuitChan signals when the user asked to quit
func (t *StatusTUI) QuitChan() <-chan struct{} {
	return t.quitChan
}
