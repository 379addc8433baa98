// ABOUTME: Playout controller configuration with documented defaults
// ABOUTME: Validated once when a controller is created
package playout

import (
	"fmt"
	"time"
)

const (
	// DefaultSampleRate is the decoder rate of a WSAudio stream
	DefaultSampleRate = 24000
	// DefaultChannels is stereo
	DefaultChannels = 2
	// DefaultBlockSize is the samples per channel per device pull
	DefaultBlockSize = 4096
)

// Config describes the stream a controller plays
type Config struct {
	// SampleRate the decoder produces samples at
	SampleRate int
	// Channels in every decoded block and every pull
	Channels int
	// BlockSize is the samples per channel handed to the device per pull
	BlockSize int
	// MaxLatency caps queued audio; the oldest samples are dropped past
	// it. Zero leaves the queue unbounded.
	MaxLatency time.Duration
}

// DefaultConfig returns the stock configuration
func DefaultConfig() Config {
	return Config{
		SampleRate: DefaultSampleRate,
		Channels:   DefaultChannels,
		BlockSize:  DefaultBlockSize,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", c.Channels)
	}
	if c.BlockSize <= 0 {
		return fmt.Errorf("block size must be positive, got %d", c.BlockSize)
	}
	if c.MaxLatency < 0 {
		return fmt.Errorf("max latency must not be negative, got %s", c.MaxLatency)
	}
	return nil
}
