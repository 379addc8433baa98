// ABOUTME: Playout controller feeding a pull-driven device from network chunks
// ABOUTME: Decodes, resamples and queues chunks; serves each pull with audio or silence
package playout

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wsaudio/wsaudio-go/pkg/audio"
	"github.com/wsaudio/wsaudio-go/pkg/audio/decode"
	"github.com/wsaudio/wsaudio-go/pkg/audio/output"
	"github.com/wsaudio/wsaudio-go/pkg/audio/resample"
	"github.com/wsaudio/wsaudio-go/pkg/protocol"
	"github.com/wsaudio/wsaudio-go/pkg/transport"
)

var (
	// ErrNotRunning is returned by operations that need a started controller
	ErrNotRunning = errors.New("playout: not running")

	// ErrAlreadyRunning is returned by a second Start
	ErrAlreadyRunning = errors.New("playout: already running")

	// ErrStopped is returned by Start after Stop
	ErrStopped = errors.New("playout: stopped")

	// ErrDecode wraps codec failures; the chunk is dropped
	ErrDecode = errors.New("playout: decode failed")
)

// State is the controller lifecycle state
type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Stats is a snapshot of controller counters. Sample counts are per channel.
type Stats struct {
	State          State
	Ticks          uint64
	Underflows     uint64
	Chunks         uint64
	DecodeErrors   uint64
	SamplesWritten uint64
	SamplesRead    uint64
	SamplesDropped uint64
	Queued         int
	Buffered       time.Duration
}

// Option configures a Controller
type Option func(*Controller)

// WithTransport attaches a transport. An owned transport is closed by
// Stop; a borrowed one gets its previous handler back.
func WithTransport(t transport.Transport, owned bool) Option {
	return func(c *Controller) {
		c.transport = t
		c.ownsTransport = owned
	}
}

// WithLogger sets the logger
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Controller) { c.log = log }
}

// WithMetrics records controller activity in Prometheus metrics
func WithMetrics(m *Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithErrorHandler receives chunk failures from the transport path
func WithErrorHandler(fn func(error)) Option {
	return func(c *Controller) { c.onError = fn }
}

// Controller owns one ChannelQueue per channel and the optional resampler.
//
// Two paths touch the queues: producers calling AddChunk and the device
// calling the pull callback. Producers are serialized by produceMu and do
// all decoding outside mu; mu is held only for appends, prefix copies and
// lifecycle changes, so a pull never waits on a decode.
type Controller struct {
	cfg     Config
	decoder decode.Decoder
	device  output.Device
	log     logrus.FieldLogger
	metrics *Metrics
	onError func(error)

	transport     transport.Transport
	ownsTransport bool
	savedHandler  transport.Handler

	// guards decoder and resampler
	produceMu sync.Mutex
	resampler *resample.Resampler

	mu       sync.Mutex
	state    State
	gen      uint64
	queues   []*ChannelQueue[float32]
	silence  []float32
	maxQueue int
	stats    Stats
}

// New creates an idle controller
func New(cfg Config, dec decode.Decoder, dev output.Device, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid playout config: %w", err)
	}
	if dec == nil {
		return nil, errors.New("playout: nil decoder")
	}
	if dev == nil {
		return nil, errors.New("playout: nil output device")
	}

	c := &Controller{
		cfg:     cfg,
		decoder: dec,
		device:  dev,
		log:     logrus.WithField("component", "playout"),
	}
	for _, opt := range opts {
		opt(c)
	}

	if cfg.MaxLatency > 0 {
		c.maxQueue = int(cfg.MaxLatency.Seconds() * float64(dev.SampleRate()))
		c.maxQueue = max(c.maxQueue, cfg.BlockSize)
	}

	return c, nil
}

// State returns the lifecycle state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start allocates the queues, registers the pull callback and, when a
// transport is attached, takes over its message handler.
func (c *Controller) Start() error {
	c.produceMu.Lock()
	defer c.produceMu.Unlock()

	c.mu.Lock()
	switch c.state {
	case StateRunning:
		c.mu.Unlock()
		return ErrAlreadyRunning
	case StateStopped:
		c.mu.Unlock()
		return ErrStopped
	}

	c.queues = make([]*ChannelQueue[float32], c.cfg.Channels)
	for ch := range c.queues {
		c.queues[ch] = NewChannelQueue[float32]()
	}
	c.silence = make([]float32, c.cfg.BlockSize)
	c.state = StateRunning
	c.gen++
	c.mu.Unlock()

	deviceRate := c.device.SampleRate()
	if resample.Needed(c.cfg.SampleRate, deviceRate) {
		r, err := resample.New(c.cfg.SampleRate, deviceRate, c.cfg.Channels)
		if err != nil {
			c.abortStart()
			return fmt.Errorf("failed to create resampler: %w", err)
		}
		c.resampler = r
	}

	c.device.Gain().Connect()
	if err := c.device.Register(c.cfg.Channels, c.cfg.BlockSize, c.pull); err != nil {
		c.device.Gain().Disconnect()
		c.abortStart()
		return fmt.Errorf("failed to register pull callback: %w", err)
	}

	if c.transport != nil {
		c.savedHandler = c.transport.Handler()
		c.transport.SetHandler(c.handleMessage)
	}

	c.log.WithFields(logrus.Fields{
		"sample_rate": c.cfg.SampleRate,
		"device_rate": deviceRate,
		"channels":    c.cfg.Channels,
		"block_size":  c.cfg.BlockSize,
		"resampling":  c.resampler != nil,
		"owned":       c.ownsTransport,
	}).Info("Playout started")

	return nil
}

// abortStart returns a half-started controller to idle (must hold
// produceMu). A Stop that arrived meanwhile keeps the controller stopped.
func (c *Controller) abortStart() {
	c.resampler = nil
	c.mu.Lock()
	if c.state == StateRunning {
		c.state = StateIdle
	}
	c.gen++
	c.queues = nil
	c.mu.Unlock()
}

// AddChunk decodes one chunk and appends it to every channel queue. The
// write is all-or-nothing: a chunk that fails to decode, or that races a
// Stop, leaves the queues untouched.
func (c *Controller) AddChunk(chunk []byte) error {
	c.produceMu.Lock()
	defer c.produceMu.Unlock()

	c.mu.Lock()
	if c.state != StateRunning {
		c.mu.Unlock()
		return ErrNotRunning
	}
	gen := c.gen
	c.mu.Unlock()

	block, err := c.decoder.Decode(chunk)
	if err == nil {
		err = block.Validate(c.cfg.Channels)
	}
	if err == nil && c.resampler != nil {
		block, err = c.resampler.Convert(block)
	}
	if err != nil {
		c.mu.Lock()
		c.stats.DecodeErrors++
		c.mu.Unlock()
		c.metrics.chunkError()
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}

	return c.write(gen, block)
}

// write appends a block produced during session gen
func (c *Controller) write(gen uint64, block audio.Block) error {
	c.mu.Lock()
	if c.state != StateRunning || c.gen != gen {
		c.mu.Unlock()
		return ErrNotRunning
	}

	for ch, q := range c.queues {
		q.Write(block[ch])
	}
	frames := block.Frames()
	c.stats.Chunks++
	c.stats.SamplesWritten += uint64(frames)

	dropped := 0
	if c.maxQueue > 0 {
		if over := c.queues[0].Len() - c.maxQueue; over > 0 {
			for _, q := range c.queues {
				_ = q.Discard(over)
			}
			dropped = over
			c.stats.SamplesDropped += uint64(over)
		}
	}
	queued := c.queues[0].Len()
	c.mu.Unlock()

	c.metrics.chunk()
	c.metrics.dropped(dropped)
	c.metrics.buffered(c.seconds(queued))
	if dropped > 0 {
		c.log.WithField("dropped", dropped).Debug("Latency cap exceeded, dropped oldest samples")
	}
	return nil
}

// pull is the device callback. It reads one block from every channel or,
// when any channel is short, emits silence on every channel.
func (c *Controller) pull(out [][]float32) {
	c.mu.Lock()

	ready := c.state == StateRunning && len(out) == len(c.queues)
	if ready {
		for ch, q := range c.queues {
			if q.Len() < len(out[ch]) {
				ready = false
				break
			}
		}
	}

	if ready {
		for ch, q := range c.queues {
			_ = q.ReadInto(out[ch])
		}
		c.stats.SamplesRead += uint64(len(out[0]))
	} else {
		for ch := range out {
			n := copy(out[ch], c.silence)
			clear(out[ch][n:])
		}
		c.stats.Underflows++
	}
	c.stats.Ticks++

	queued := 0
	if len(c.queues) > 0 {
		queued = c.queues[0].Len()
	}
	c.mu.Unlock()

	c.metrics.tick(!ready)
	c.metrics.buffered(c.seconds(queued))
}

// handleMessage routes transport messages: audio chunks are played, every
// other message goes to the handler that was installed before Start.
func (c *Controller) handleMessage(msg []byte) {
	kind, payload, err := protocol.Decode(msg)
	if err == nil && kind == protocol.KindAudio {
		if err := c.AddChunk(payload); err != nil && !errors.Is(err, ErrNotRunning) {
			c.reportError(err)
		}
		return
	}

	if c.savedHandler != nil {
		c.savedHandler(msg)
	} else if err != nil {
		c.log.WithError(err).Debug("Ignoring unframed message")
	}
}

func (c *Controller) reportError(err error) {
	c.log.WithError(err).Warn("Dropped chunk")
	if c.onError != nil {
		c.onError(err)
	}
}

// Volume returns the device gain
func (c *Controller) Volume() (float64, error) {
	if c.State() != StateRunning {
		return 0, ErrNotRunning
	}
	return c.device.Gain().Value(), nil
}

// SetVolume sets the device gain; 1 is unity
func (c *Controller) SetVolume(v float64) error {
	if c.State() != StateRunning {
		return ErrNotRunning
	}
	return c.device.Gain().SetValue(v)
}

// Stats returns a snapshot of the counters
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.State = c.state
	if len(c.queues) > 0 {
		s.Queued = c.queues[0].Len()
	}
	s.Buffered = time.Duration(c.seconds(s.Queued) * float64(time.Second))
	return s
}

// Stop releases the queues, unregisters the pull callback, disconnects the
// gain and releases the transport. After Stop returns no chunk is written
// and the decoder is no longer in use. Stop must not be called from the
// pull callback. Repeated calls return nil.
func (c *Controller) Stop() error {
	c.mu.Lock()
	prev := c.state
	if prev == StateStopped {
		c.mu.Unlock()
		return nil
	}
	c.state = StateStopped
	c.gen++
	c.queues = nil
	c.silence = nil
	c.mu.Unlock()

	// Waits out a producer still decoding, or a Start still registering
	c.produceMu.Lock()
	defer c.produceMu.Unlock()

	var errs []error
	if prev == StateRunning {
		if err := c.device.Unregister(); err != nil {
			errs = append(errs, fmt.Errorf("failed to unregister pull callback: %w", err))
		}
		c.device.Gain().Disconnect()
	}

	if c.transport != nil {
		if c.ownsTransport {
			if err := c.transport.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close transport: %w", err))
			}
		} else if prev == StateRunning {
			c.transport.SetHandler(c.savedHandler)
		}
	}

	c.resampler = nil

	c.metrics.buffered(0)
	c.log.WithField("previous", prev.String()).Info("Playout stopped")

	return errors.Join(errs...)
}

func (c *Controller) seconds(frames int) float64 {
	return float64(frames) / float64(c.device.SampleRate())
}
