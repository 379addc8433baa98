// ABOUTME: Audio output interface definition
// ABOUTME: Pull-driven device contract shared by every playback backend
package output

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAlreadyRegistered is returned when a pull callback is already installed
	ErrAlreadyRegistered = errors.New("output: pull callback already registered")

	// ErrClosed is returned when the device has been closed
	ErrClosed = errors.New("output: device closed")
)

// PullFunc fills one block of audio. It is called with exactly one slice
// per registered channel, each exactly blockSize samples long, and must
// overwrite every sample.
type PullFunc func(out [][]float32)

// Device is an audio sink that pulls fixed-size blocks at its own cadence.
type Device interface {
	// SampleRate returns the rate the device consumes samples at
	SampleRate() int

	// Register installs the pull callback and starts pulling
	Register(channels, blockSize int, pull PullFunc) error

	// Unregister stops pulling. No pull is in flight or started after it returns.
	Unregister() error

	// Gain returns the device gain stage
	Gain() *Gain

	// Close releases device resources
	Close() error
}

// Backend names accepted by New
const (
	BackendMalgo     = "malgo"
	BackendOto       = "oto"
	BackendBeep      = "beep"
	BackendPortAudio = "portaudio"
	BackendNull      = "null"
)

// New creates a device for the named backend
func New(backend string, sampleRate int) (Device, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %d", sampleRate)
	}

	switch strings.ToLower(backend) {
	case BackendMalgo, "":
		return NewMalgo(sampleRate), nil
	case BackendOto:
		return NewOto(sampleRate), nil
	case BackendBeep:
		return NewBeep(sampleRate), nil
	case BackendPortAudio:
		return NewPortAudio(sampleRate)
	case BackendNull:
		return NewVirtual(sampleRate), nil
	default:
		return nil, fmt.Errorf("unknown output backend: %s", backend)
	}
}

func checkRegistration(channels, blockSize int, pull PullFunc) error {
	if channels <= 0 {
		return fmt.Errorf("invalid channel count: %d", channels)
	}
	if blockSize <= 0 {
		return fmt.Errorf("invalid block size: %d", blockSize)
	}
	if pull == nil {
		return errors.New("output: nil pull callback")
	}
	return nil
}
