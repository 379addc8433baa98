// ABOUTME: Hardware-free output device driven by explicit ticks or a wall clock
// ABOUTME: Used by tests and by the null backend for headless playback
package output

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// Virtual is a Device without hardware. Each Tick performs one pull,
// exactly as a sound card's periodic callback would.
type Virtual struct {
	sampleRate int
	gain       *Gain

	mu        sync.Mutex
	channels  int
	blockSize int
	pull      PullFunc
	block     [][]float32
	closed    bool

	pulls atomic.Uint64
}

// NewVirtual creates a virtual device
func NewVirtual(sampleRate int) *Virtual {
	return &Virtual{
		sampleRate: sampleRate,
		gain:       NewGain(),
	}
}

// SampleRate returns the device rate
func (v *Virtual) SampleRate() int { return v.sampleRate }

// Gain returns the device gain stage
func (v *Virtual) Gain() *Gain { return v.gain }

// Register installs the pull callback
func (v *Virtual) Register(channels, blockSize int, pull PullFunc) error {
	if err := checkRegistration(channels, blockSize, pull); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return ErrClosed
	}
	if v.pull != nil {
		return ErrAlreadyRegistered
	}

	v.channels = channels
	v.blockSize = blockSize
	v.pull = pull
	v.block = make([][]float32, channels)
	for ch := range v.block {
		v.block[ch] = make([]float32, blockSize)
	}
	return nil
}

// Unregister removes the pull callback, waiting for an in-flight tick
func (v *Virtual) Unregister() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pull = nil
	return nil
}

// Registered reports whether a pull callback is installed
func (v *Virtual) Registered() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pull != nil
}

// Tick performs one pull and returns a copy of the block after gain.
// It returns false when no callback is registered.
func (v *Virtual) Tick() ([][]float32, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.pull == nil {
		return nil, false
	}

	v.pull(v.block)
	v.gain.Apply(v.block)
	v.pulls.Add(1)

	out := make([][]float32, len(v.block))
	for ch := range v.block {
		out[ch] = append([]float32(nil), v.block[ch]...)
	}
	return out, true
}

// Pulls returns the number of completed ticks
func (v *Virtual) Pulls() uint64 { return v.pulls.Load() }

// RunClock ticks at the real-time block period until ctx is done or the
// callback is unregistered.
func (v *Virtual) RunClock(ctx context.Context) error {
	v.mu.Lock()
	blockSize := v.blockSize
	registered := v.pull != nil
	v.mu.Unlock()

	if !registered {
		return errors.New("output: no pull callback registered")
	}

	period := time.Duration(blockSize) * time.Second / time.Duration(v.sampleRate)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, ok := v.Tick(); !ok {
				return nil
			}
		}
	}
}

// Close releases the device
func (v *Virtual) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pull = nil
	v.closed = true
	return nil
}
