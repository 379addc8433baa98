// ABOUTME: Bubbletea model for player TUI
// ABOUTME: Shows stream format, buffer depth, underflows and volume
package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// Model represents the TUI state
type Model struct {
	volumeCtrl *VolumeControl

	// Connection
	connected  bool
	serverName string

	// Stream
	streamName string
	codec      string
	sampleRate int
	channels   int
	deviceRate int
	backend    string

	// Playback
	state  string
	volume int
	muted  bool

	// Stats
	chunks       uint64
	decodeErrors uint64
	ticks        uint64
	underflows   uint64
	dropped      uint64
	buffered     time.Duration

	// Debug
	showDebug  bool
	goroutines int
	memAlloc   uint64
	memSys     uint64

	// Dimensions
	width  int
	height int
}

// StatusMsg updates TUI state. Zero fields are left unchanged.
type StatusMsg struct {
	Connected  *bool
	ServerName string
	State      string

	StreamName string
	Codec      string
	SampleRate int
	Channels   int
	DeviceRate int
	Backend    string

	Stats *PlayoutStats

	Goroutines int
	MemAlloc   uint64
	MemSys     uint64
}

// PlayoutStats mirrors the playout controller counters
type PlayoutStats struct {
	Chunks       uint64
	DecodeErrors uint64
	Ticks        uint64
	Underflows   uint64
	Dropped      uint64
	Buffered     time.Duration
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
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString(m.renderStreamInfo())
	b.WriteString(m.renderControls())
	b.WriteString(m.renderStats())
	if m.showDebug {
		b.WriteString(m.renderDebug())
	}
	b.WriteString(m.renderHelp())
	return b.String()
}

func (m Model) renderHeader() string {
	connStatus := "Disconnected"
	if m.connected {
		connStatus = fmt.Sprintf("Connected to %s", m.serverName)
	}

	return fmt.Sprintf(`┌─ WSAudio Player ─────────────────────────────────────┐
│ Status: %-45s │
│ State:  %-45s │
├──────────────────────────────────────────────────────┤
`, truncate(connStatus, 45), truncate(m.state, 45))
}

func (m Model) renderStreamInfo() string {
	if !m.connected || m.codec == "" {
		return "│ No stream                                            │\n"
	}

	s := fmt.Sprintf("│ Stream: %-45s │\n", truncate(m.streamName, 45))
	format := fmt.Sprintf("%s %dHz %s", m.codec, m.sampleRate, channelName(m.channels))
	s += fmt.Sprintf("│ Format: %-45s │\n", format)
	device := fmt.Sprintf("%s @ %dHz", m.backend, m.deviceRate)
	if m.deviceRate != 0 && m.deviceRate != m.sampleRate {
		device += " (resampled)"
	}
	s += fmt.Sprintf("│ Output: %-45s │\n", truncate(device, 45))
	return s
}

func (m Model) renderControls() string {
	muteIcon := ""
	if m.muted {
		muteIcon = " (muted)"
	}

	volume := fmt.Sprintf("[%s] %d%%%s", renderBar(m.volume, 100, 10), m.volume, muteIcon)
	buffer := fmt.Sprintf("%dms", m.buffered.Milliseconds())

	return "│                                                      │\n" +
		fmt.Sprintf("│ Volume: %-45s │\n", volume) +
		fmt.Sprintf("│ Buffer: %-45s │\n", buffer)
}

func (m Model) renderStats() string {
	line1 := fmt.Sprintf("Chunks: %d  Errors: %d  Dropped: %d", m.chunks, m.decodeErrors, m.dropped)
	line2 := fmt.Sprintf("Ticks: %d  Underflows: %d", m.ticks, m.underflows)
	return "├──────────────────────────────────────────────────────┤\n" +
		fmt.Sprintf("│ %-52s │\n", line1) +
		fmt.Sprintf("│ %-52s │\n", line2)
}

func (m Model) renderHelp() string {
	return `│ ↑/↓:Volume  m:Mute  d:Debug  q:Quit                  │
└──────────────────────────────────────────────────────┘
`
}

func (m Model) renderDebug() string {
	return fmt.Sprintf("│ DEBUG: goroutines %d, alloc %dKiB, sys %dKiB%-8s │\n",
		m.goroutines, m.memAlloc/1024, m.memSys/1024, "")
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.volumeCtrl != nil {
			select {
			case m.volumeCtrl.Quit <- QuitMsg{}:
			default:
			}
		}
		return m, tea.Quit
	case "up", "+":
		m.volume = min(m.volume+5, 100)
		m.notifyVolume()
	case "down", "-":
		m.volume = max(m.volume-5, 0)
		m.notifyVolume()
	case "m":
		m.muted = !m.muted
		m.notifyVolume()
	case "d":
		m.showDebug = !m.showDebug
	}

	return m, nil
}

func (m Model) notifyVolume() {
	if m.volumeCtrl == nil {
		return
	}
	select {
	case m.volumeCtrl.Changes <- VolumeChangeMsg{Volume: m.volume, Muted: m.muted}:
	default:
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
	if msg.State != "" {
		m.state = msg.State
	}
	if msg.Codec != "" {
		m.streamName = msg.StreamName
		m.codec = msg.Codec
		m.sampleRate = msg.SampleRate
		m.channels = msg.Channels
	}
	if msg.DeviceRate != 0 {
		m.deviceRate = msg.DeviceRate
		m.backend = msg.Backend
	}
	if msg.Stats != nil {
		m.chunks = msg.Stats.Chunks
		m.decodeErrors = msg.Stats.DecodeErrors
		m.ticks = msg.Stats.Ticks
		m.underflows = msg.Stats.Underflows
		m.dropped = msg.Stats.Dropped
		m.buffered = msg.Stats.Buffered
	}
	if msg.Goroutines != 0 {
		m.goroutines = msg.Goroutines
		m.memAlloc = msg.MemAlloc
		m.memSys = msg.MemSys
	}
}

func renderBar(value, max, width int) string {
	filled := (value * width) / max
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}

func channelName(channels int) string {
	switch channels {
	case 1:
		return "Mono"
	case 2:
		return "Stereo"
	default:
		return fmt.Sprintf("%dch", channels)
	}
}
