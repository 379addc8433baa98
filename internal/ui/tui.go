// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program and the channels it reports through
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// VolumeChangeMsg reports a volume or mute change made in the TUI
type VolumeChangeMsg struct {
	Volume int // percent, 0-100
	Muted  bool
}

// Gain converts the change to a linear gain value
func (v VolumeChangeMsg) Gain() float64 {
	if v.Muted {
		return 0
	}
	return float64(v.Volume) / 100
}

// QuitMsg reports that the user asked to quit
type QuitMsg struct{}

// VolumeControl holds channels for volume control communication
type VolumeControl struct {
	Changes chan VolumeChangeMsg
	Quit    chan QuitMsg
}

// NewVolumeControl creates a new volume control handler
func NewVolumeControl() *VolumeControl {
	return &VolumeControl{
		Changes: make(chan VolumeChangeMsg, 10),
		Quit:    make(chan QuitMsg, 1),
	}
}

// NewModel creates a new TUI model
func NewModel(volCtrl *VolumeControl) Model {
	return Model{
		volume:     100,
		state:      "connecting",
		volumeCtrl: volCtrl,
	}
}

// Run creates the TUI program; the caller runs it
func Run(volCtrl *VolumeControl) *tea.Program {
	return tea.NewProgram(NewModel(volCtrl), tea.WithAltScreen())
}
