// ABOUTME: Relay TUI listing the stream and connected players
// ABOUTME: Refreshed from relay status snapshots, styled with lipgloss
package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// RelayStatus is a snapshot of relay state
type RelayStatus struct {
	Name    string
	Listen  string
	Stream  string
	Format  string
	Chunks  uint64
	Clients []RelayClient
}

// RelayClient describes one connected player
type RelayClient struct {
	Name   string
	ID     string
	Remote string
}

type relayStatusMsg RelayStatus

type tickMsg time.Time

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginBottom(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250"))

	clientHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("220"))

	helpStyle = lipgloss.NewStyle().Faint(true)
)

// RelayModel is the bubbletea model for the relay TUI
type RelayModel struct {
	status    RelayStatus
	startTime time.Time
	now       time.Time
	quitting  bool
	quit      chan<- QuitMsg
}

// NewRelayModel creates a relay model that signals quit on the given channel
func NewRelayModel(status RelayStatus, quit chan<- QuitMsg) RelayModel {
	now := time.Now()
	return RelayModel{status: status, startTime: now, now: now, quit: quit}
}

func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m RelayModel) Init() tea.Cmd {
	return tickEvery()
}

func (m RelayModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.quitting = true
			if m.quit != nil {
				select {
				case m.quit <- QuitMsg{}:
				default:
				}
			}
			return m, tea.Quit
		}
	case tickMsg:
		m.now = time.Time(msg)
		return m, tickEvery()
	case relayStatusMsg:
		m.status = RelayStatus(msg)
	}
	return m, nil
}

func (m RelayModel) View() string {
	if m.quitting {
		return "Shutting down relay...\n"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("WSAudio Relay"))
	b.WriteString("\n\n")

	field := func(name, value string) {
		b.WriteString(headerStyle.Render(name + ": "))
		b.WriteString(valueStyle.Render(value))
		b.WriteString("\n")
	}
	field("Relay", m.status.Name)
	field("Listen", m.status.Listen)
	field("Uptime", m.now.Sub(m.startTime).Round(time.Second).String())
	field("Playing", m.status.Stream)
	field("Format", m.status.Format)
	field("Chunks", fmt.Sprintf("%d", m.status.Chunks))
	b.WriteString("\n")

	b.WriteString(clientHeaderStyle.Render(fmt.Sprintf("Connected Players (%d)", len(m.status.Clients))))
	b.WriteString("\n\n")

	if len(m.status.Clients) == 0 {
		b.WriteString(valueStyle.Render("  No players connected"))
		b.WriteString("\n")
	}
	for _, c := range m.status.Clients {
		name := c.Name
		if name == "" {
			name = c.ID
		}
		b.WriteString("  • " + name)
		b.WriteString(valueStyle.Render(" (" + c.Remote + ")"))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("Press 'q' or Ctrl+C to quit"))
	return b.String()
}

// RelayTUI runs the relay model and accepts status updates
type RelayTUI struct {
	program *tea.Program
	quit    chan QuitMsg
}

// NewRelayTUI creates the relay TUI program; the caller runs it
func NewRelayTUI(status RelayStatus) *RelayTUI {
	quit := make(chan QuitMsg, 1)
	return &RelayTUI{
		program: tea.NewProgram(NewRelayModel(status, quit), tea.WithAltScreen()),
		quit:    quit,
	}
}

// Run blocks until the program exits
func (t *RelayTUI) Run() error {
	_, err := t.program.Run()
	return err
}

// Update sends a status snapshot
func (t *RelayTUI) Update(status RelayStatus) {
	t.program.Send(relayStatusMsg(status))
}

// Quit stops the program
func (t *RelayTUI) Quit() {
	t.program.Quit()
}

// QuitChan signals when the user asked to quit
func (t *RelayTUI) QuitChan() <-chan QuitMsg {
	return t.quit
}
