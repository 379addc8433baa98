// ABOUTME: Oto-based audio output implementation
// ABOUTME: The oto player reads float32 frames straight from the pull callback
package output

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/ebitengine/oto/v3"
	"github.com/sirupsen/logrus"
)

// Oto output implementation using oto library. oto allows a single
// context per process, so the channel count is fixed by the first Register.
type Oto struct {
	sampleRate int
	gain       *Gain
	log        logrus.FieldLogger

	slot pumpSlot

	mu       sync.Mutex
	otoCtx   *oto.Context
	player   *oto.Player
	channels int
	closed   bool

	// reader state, touched only by the oto player goroutine
	frames  []float32
	scratch []byte
	pending []byte
}

// NewOto creates a new Oto output
func NewOto(sampleRate int) *Oto {
	return &Oto{
		sampleRate: sampleRate,
		gain:       NewGain(),
		log:        logrus.WithField("component", "output.oto"),
	}
}

// SampleRate returns the device rate
func (o *Oto) SampleRate() int { return o.sampleRate }

// Gain returns the device gain stage
func (o *Oto) Gain() *Gain { return o.gain }

// Register creates the oto context on first use and starts a player
func (o *Oto) Register(channels, blockSize int, pull PullFunc) error {
	if err := checkRegistration(channels, blockSize, pull); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrClosed
	}
	if o.otoCtx != nil && o.channels != channels {
		return fmt.Errorf("oto context already open with %d channels, cannot reopen with %d", o.channels, channels)
	}
	if err := o.slot.install(newBlockPump(channels, blockSize, pull, o.gain)); err != nil {
		return err
	}

	if o.otoCtx == nil {
		op := &oto.NewContextOptions{
			SampleRate:   o.sampleRate,
			ChannelCount: channels,
			Format:       oto.FormatFloat32LE,
		}

		ctx, readyChan, err := oto.NewContext(op)
		if err != nil {
			o.slot.remove()
			return fmt.Errorf("failed to create oto context: %w", err)
		}
		<-readyChan

		o.otoCtx = ctx
		o.channels = channels
	} else if err := o.otoCtx.Resume(); err != nil {
		o.slot.remove()
		return fmt.Errorf("failed to resume oto context: %w", err)
	}

	o.pending = nil
	o.player = o.otoCtx.NewPlayer(o)
	o.player.SetBufferSize(blockSize * channels * 4)
	o.player.Play()

	o.log.WithFields(logrus.Fields{
		"sample_rate": o.sampleRate,
		"channels":    channels,
		"block_size":  blockSize,
	}).Info("Audio output started (oto/float32)")

	return nil
}

// Read implements io.Reader for the oto player
func (o *Oto) Read(p []byte) (int, error) {
	n := copy(p, o.pending)
	o.pending = o.pending[n:]
	if n == len(p) {
		return n, nil
	}

	frameBytes := o.channels * 4
	frames := (len(p) - n + frameBytes - 1) / frameBytes
	need := frames * o.channels
	if cap(o.frames) < need {
		o.frames = make([]float32, need)
	}
	samples := o.frames[:need]
	o.slot.interleaved(samples, o.channels)

	// pending is drained before scratch is refilled
	if cap(o.scratch) < need*4 {
		o.scratch = make([]byte, need*4)
	}
	buf := o.scratch[:need*4]
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(s))
	}

	m := copy(p[n:], buf)
	o.pending = buf[m:]
	return n + m, nil
}

// Unregister stops the player
func (o *Oto) Unregister() error {
	o.slot.remove()

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.player != nil {
		o.player.Pause()
		if err := o.player.Close(); err != nil {
			o.log.WithError(err).Warn("oto player close error")
		}
		o.player = nil
	}
	if o.otoCtx != nil {
		if err := o.otoCtx.Suspend(); err != nil {
			o.log.WithError(err).Warn("oto suspend error")
		}
	}
	return nil
}

// Close releases output resources. The oto context itself lives until
// process exit.
func (o *Oto) Close() error {
	if err := o.Unregister(); err != nil {
		return err
	}
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	return nil
}
