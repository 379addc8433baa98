// ABOUTME: Malgo-based audio output implementation
// ABOUTME: Uses miniaudio via malgo with a float32 pull callback
package output

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/sirupsen/logrus"
)

// Malgo output implementation using malgo/miniaudio library
type Malgo struct {
	sampleRate int
	gain       *Gain
	log        logrus.FieldLogger

	slot pumpSlot

	mu       sync.Mutex
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
	channels int
	scratch  []float32
	closed   bool
}

// NewMalgo creates a new Malgo output
func NewMalgo(sampleRate int) *Malgo {
	return &Malgo{
		sampleRate: sampleRate,
		gain:       NewGain(),
		log:        logrus.WithField("component", "output.malgo"),
	}
}

// SampleRate returns the device rate
func (m *Malgo) SampleRate() int { return m.sampleRate }

// Gain returns the device gain stage
func (m *Malgo) Gain() *Gain { return m.gain }

// Register opens the playback device and starts pulling
func (m *Malgo) Register(channels, blockSize int, pull PullFunc) error {
	if err := checkRegistration(channels, blockSize, pull); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if err := m.slot.install(newBlockPump(channels, blockSize, pull, m.gain)); err != nil {
		return err
	}

	if m.malgoCtx == nil {
		ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
		if err != nil {
			m.slot.remove()
			return fmt.Errorf("failed to initialize malgo context: %w", err)
		}
		m.malgoCtx = ctx
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = uint32(channels)
	deviceConfig.SampleRate = uint32(m.sampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(blockSize)
	deviceConfig.Alsa.NoMMap = 1

	m.channels = channels
	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutputSample, pInputSamples []byte, frameCount uint32) {
			m.dataCallback(pOutputSample, frameCount)
		},
	}

	device, err := malgo.InitDevice(m.malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		m.slot.remove()
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		m.slot.remove()
		return fmt.Errorf("failed to start device: %w", err)
	}
	m.device = device

	m.log.WithFields(logrus.Fields{
		"sample_rate": m.sampleRate,
		"channels":    channels,
		"block_size":  blockSize,
	}).Info("Audio output started (malgo/F32)")

	return nil
}

// dataCallback is called by malgo to fill the audio output buffer
func (m *Malgo) dataCallback(pOutput []byte, frameCount uint32) {
	channels := m.channels
	need := int(frameCount) * channels
	if cap(m.scratch) < need {
		m.scratch = make([]float32, need)
	}
	samples := m.scratch[:need]

	m.slot.interleaved(samples, channels)

	for i, s := range samples {
		binary.LittleEndian.PutUint32(pOutput[i*4:], math.Float32bits(s))
	}
}

// Unregister stops the callback and the device
func (m *Malgo) Unregister() error {
	// Detach first: the callback may be waiting on the slot lock and
	// miniaudio's stop waits for the callback.
	m.slot.remove()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeDevice()
	return nil
}

// Close releases output resources
func (m *Malgo) Close() error {
	m.slot.remove()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.closeDevice()
	if m.malgoCtx != nil {
		if err := m.malgoCtx.Uninit(); err != nil {
			m.log.WithError(err).Warn("malgo context uninit error")
		}
		m.malgoCtx.Free()
		m.malgoCtx = nil
	}
	m.closed = true
	return nil
}

// closeDevice stops and uninitializes the device (must hold m.mu)
func (m *Malgo) closeDevice() {
	if m.device == nil {
		return
	}
	if err := m.device.Stop(); err != nil {
		m.log.WithError(err).Warn("device stop error")
	}
	m.device.Uninit()
	m.device = nil
}
