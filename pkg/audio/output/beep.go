// ABOUTME: Beep speaker audio output implementation
// ABOUTME: Feeds the beep speaker mixer from the pull callback as a stereo streamer
package output

import (
	"fmt"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/sirupsen/logrus"
)

// Beep output implementation using the beep speaker. The speaker is
// always stereo: mono streams are duplicated, wider streams are rejected.
type Beep struct {
	sampleRate int
	gain       *Gain
	log        logrus.FieldLogger

	slot pumpSlot

	mu          sync.Mutex
	initialized bool
	closed      bool

	frames []float32
}

// NewBeep creates a new beep speaker output
func NewBeep(sampleRate int) *Beep {
	return &Beep{
		sampleRate: sampleRate,
		gain:       NewGain(),
		log:        logrus.WithField("component", "output.beep"),
	}
}

// SampleRate returns the device rate
func (b *Beep) SampleRate() int { return b.sampleRate }

// Gain returns the device gain stage
func (b *Beep) Gain() *Gain { return b.gain }

// Register initializes the speaker and plays the pull streamer
func (b *Beep) Register(channels, blockSize int, pull PullFunc) error {
	if err := checkRegistration(channels, blockSize, pull); err != nil {
		return err
	}
	if channels > 2 {
		return fmt.Errorf("beep speaker supports at most 2 channels, got %d", channels)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	if err := b.slot.install(newBlockPump(channels, blockSize, pull, b.gain)); err != nil {
		return err
	}

	if !b.initialized {
		sr := beep.SampleRate(b.sampleRate)
		bufferSize := sr.N(time.Duration(blockSize) * time.Second / time.Duration(b.sampleRate))
		if err := speaker.Init(sr, bufferSize); err != nil {
			b.slot.remove()
			return fmt.Errorf("failed to initialize speaker: %w", err)
		}
		b.initialized = true
	}

	speaker.Play(beep.StreamerFunc(b.stream))

	b.log.WithFields(logrus.Fields{
		"sample_rate": b.sampleRate,
		"channels":    channels,
		"block_size":  blockSize,
	}).Info("Audio output started (beep speaker)")

	return nil
}

// stream is called by the speaker mixer with the speaker lock held
func (b *Beep) stream(samples [][2]float64) (int, bool) {
	need := len(samples) * 2
	if cap(b.frames) < need {
		b.frames = make([]float32, need)
	}
	frames := b.frames[:need]
	b.slot.interleaved(frames, 2)

	for i := range samples {
		samples[i][0] = float64(frames[i*2])
		samples[i][1] = float64(frames[i*2+1])
	}
	return len(samples), true
}

// Unregister removes the streamer from the speaker
func (b *Beep) Unregister() error {
	b.slot.remove()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.initialized {
		speaker.Clear()
	}
	return nil
}

// Close shuts the speaker down
func (b *Beep) Close() error {
	b.slot.remove()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.initialized {
		speaker.Clear()
		speaker.Close()
		b.initialized = false
	}
	b.closed = true
	return nil
}
