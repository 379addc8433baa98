//go:build !portaudio

// ABOUTME: PortAudio stub when library not available
// ABOUTME: Reports that the backend needs the portaudio build tag
package output

import "errors"

// ErrPortAudioDisabled is returned when the binary was built without PortAudio
var ErrPortAudioDisabled = errors.New("output: PortAudio support not enabled (build with -tags portaudio)")

// NewPortAudio reports that PortAudio is unavailable
func NewPortAudio(sampleRate int) (Device, error) {
	return nil, ErrPortAudioDisabled
}
