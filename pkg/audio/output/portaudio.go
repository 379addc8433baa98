//go:build portaudio

// ABOUTME: PortAudio output implementation
// ABOUTME: Cross-platform audio output using a non-interleaved PortAudio callback
package output

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/sirupsen/logrus"
)

// PortAudio output implementation
type PortAudio struct {
	sampleRate int
	gain       *Gain
	log        logrus.FieldLogger

	slot pumpSlot

	mu     sync.Mutex
	stream *portaudio.Stream
	closed bool
}

// NewPortAudio initializes PortAudio and creates an output
func NewPortAudio(sampleRate int) (Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}
	return &PortAudio{
		sampleRate: sampleRate,
		gain:       NewGain(),
		log:        logrus.WithField("component", "output.portaudio"),
	}, nil
}

// SampleRate returns the device rate
func (p *PortAudio) SampleRate() int { return p.sampleRate }

// Gain returns the device gain stage
func (p *PortAudio) Gain() *Gain { return p.gain }

// Register opens the default stream with one buffer per block
func (p *PortAudio) Register(channels, blockSize int, pull PullFunc) error {
	if err := checkRegistration(channels, blockSize, pull); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if err := p.slot.install(newBlockPump(channels, blockSize, pull, p.gain)); err != nil {
		return err
	}

	stream, err := portaudio.OpenDefaultStream(0, channels, float64(p.sampleRate), blockSize, func(out [][]float32) {
		p.slot.planar(out)
	})
	if err != nil {
		p.slot.remove()
		return fmt.Errorf("failed to open stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		p.slot.remove()
		return fmt.Errorf("failed to start stream: %w", err)
	}
	p.stream = stream

	p.log.WithFields(logrus.Fields{
		"sample_rate": p.sampleRate,
		"channels":    channels,
		"block_size":  blockSize,
	}).Info("Audio output started (portaudio)")

	return nil
}

// Unregister stops and closes the stream
func (p *PortAudio) Unregister() error {
	p.slot.remove()

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeStream()
}

func (p *PortAudio) closeStream() error {
	if p.stream == nil {
		return nil
	}
	stream := p.stream
	p.stream = nil
	if err := stream.Stop(); err != nil {
		return err
	}
	return stream.Close()
}

// Close releases resources
func (p *PortAudio) Close() error {
	p.slot.remove()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if err := p.closeStream(); err != nil {
		p.log.WithError(err).Warn("stream close error")
	}
	return portaudio.Terminate()
}
