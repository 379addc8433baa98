// ABOUTME: Tests for the playout controller
// ABOUTME: Drives a virtual device tick by tick against fake decoders and transports
package playout

import (
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wsaudio/wsaudio-go/pkg/audio"
	"github.com/wsaudio/wsaudio-go/pkg/audio/output"
	"github.com/wsaudio/wsaudio-go/pkg/protocol"
	"github.com/wsaudio/wsaudio-go/pkg/transport"
)

var errBadChunk = errors.New("bad chunk")

// seqDecoder turns a chunk of n bytes into n stereo frames carrying an
// increasing counter on the left channel and its negation on the right.
// A chunk starting with 0xFF fails to decode.
type seqDecoder struct {
	next float32
}

func (d *seqDecoder) Decode(chunk []byte) (audio.Block, error) {
	if len(chunk) > 0 && chunk[0] == 0xFF {
		return nil, errBadChunk
	}
	b := audio.NewBlock(2, len(chunk))
	for i := range chunk {
		b[0][i] = d.next
		b[1][i] = -d.next
		d.next++
	}
	return b, nil
}

func (d *seqDecoder) Close() error { return nil }

// monoDecoder always returns a one-channel block
type monoDecoder struct{}

func (monoDecoder) Decode(chunk []byte) (audio.Block, error) {
	return audio.NewBlock(1, len(chunk)), nil
}

func (monoDecoder) Close() error { return nil }

// gateDecoder blocks inside Decode until released
type gateDecoder struct {
	seqDecoder
	entered chan struct{}
	release chan struct{}
}

func (d *gateDecoder) Decode(chunk []byte) (audio.Block, error) {
	close(d.entered)
	<-d.release
	return d.seqDecoder.Decode(chunk)
}

type fakeTransport struct {
	mu      sync.Mutex
	handler transport.Handler
	closed  int
}

func (f *fakeTransport) Handler() transport.Handler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handler
}

func (f *fakeTransport) SetHandler(h transport.Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeTransport) deliver(msg []byte) {
	if h := f.Handler(); h != nil {
		h(msg)
	}
}

// gatedDevice blocks inside Register until released, then fails
type gatedDevice struct {
	*output.Virtual
	entered  chan struct{}
	release  chan struct{}
	mu       sync.Mutex
	attempts int
}

func newGatedDevice() *gatedDevice {
	return &gatedDevice{
		Virtual: output.NewVirtual(DefaultSampleRate),
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
}

func (d *gatedDevice) Register(channels, blockSize int, pull output.PullFunc) error {
	d.mu.Lock()
	d.attempts++
	d.mu.Unlock()
	d.entered <- struct{}{}
	<-d.release
	return errors.New("device unavailable")
}

func testConfig(blockSize int) Config {
	cfg := DefaultConfig()
	cfg.BlockSize = blockSize
	return cfg
}

func newTestController(t *testing.T, cfg Config, opts ...Option) (*Controller, *output.Virtual) {
	t.Helper()
	dev := output.NewVirtual(cfg.SampleRate)
	c, err := New(cfg, &seqDecoder{}, dev, opts...)
	require.NoError(t, err)
	return c, dev
}

func chunk(n int) []byte {
	return make([]byte, n)
}

func isSilent(block [][]float32) bool {
	for ch := range block {
		for _, v := range block[ch] {
			if v != 0 {
				return false
			}
		}
	}
	return true
}

func TestNewValidates(t *testing.T) {
	dev := output.NewVirtual(24000)

	_, err := New(Config{SampleRate: 24000, Channels: 2}, &seqDecoder{}, dev)
	assert.Error(t, err, "zero block size")

	_, err = New(DefaultConfig(), nil, dev)
	assert.Error(t, err)

	_, err = New(DefaultConfig(), &seqDecoder{}, nil)
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.MaxLatency = -time.Second
	_, err = New(cfg, &seqDecoder{}, dev)
	assert.Error(t, err)
}

func TestLifecycleErrors(t *testing.T) {
	c, _ := newTestController(t, testConfig(64))

	assert.Equal(t, StateIdle, c.State())
	assert.ErrorIs(t, c.AddChunk(chunk(10)), ErrNotRunning)
	_, err := c.Volume()
	assert.ErrorIs(t, err, ErrNotRunning)
	assert.ErrorIs(t, c.SetVolume(0.5), ErrNotRunning)

	require.NoError(t, c.Start())
	assert.Equal(t, StateRunning, c.State())
	assert.ErrorIs(t, c.Start(), ErrAlreadyRunning)

	require.NoError(t, c.Stop())
	assert.Equal(t, StateStopped, c.State())
	assert.NoError(t, c.Stop(), "second stop is a no-op")
	assert.ErrorIs(t, c.Start(), ErrStopped)
	assert.ErrorIs(t, c.AddChunk(chunk(10)), ErrNotRunning)
	_, err = c.Volume()
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestFullBlockThenUnderflow(t *testing.T) {
	c, dev := newTestController(t, testConfig(4096))
	dev.Gain().SetValue(1)
	require.NoError(t, c.Start())
	defer c.Stop()

	require.NoError(t, c.AddChunk(chunk(4096)))
	assert.Equal(t, 4096, c.Stats().Queued)

	block, ok := dev.Tick()
	require.True(t, ok)
	require.Len(t, block, 2)
	assert.Equal(t, float32(0), block[0][0])
	assert.Equal(t, float32(4095), block[0][4095])
	assert.Equal(t, float32(-4095), block[1][4095])
	assert.Equal(t, 0, c.Stats().Queued)

	block, ok = dev.Tick()
	require.True(t, ok)
	assert.True(t, isSilent(block))

	stats := c.Stats()
	assert.Equal(t, 0, stats.Queued)
	assert.Equal(t, uint64(2), stats.Ticks)
	assert.Equal(t, uint64(1), stats.Underflows)
	assert.Equal(t, uint64(4096), stats.SamplesRead)
}

func TestPartialBufferYieldsSilenceAndKeepsSamples(t *testing.T) {
	c, dev := newTestController(t, testConfig(128))
	require.NoError(t, c.Start())
	defer c.Stop()

	require.NoError(t, c.AddChunk(chunk(100)))

	for i := 0; i < 3; i++ {
		block, ok := dev.Tick()
		require.True(t, ok)
		assert.True(t, isSilent(block))
		assert.Equal(t, 100, c.Stats().Queued)
	}

	require.NoError(t, c.AddChunk(chunk(28)))
	block, _ := dev.Tick()
	assert.Equal(t, seq(0, 128), block[0])
	assert.Equal(t, 0, c.Stats().Queued)
}

func TestSilenceOnEmptyStartIsIdempotent(t *testing.T) {
	c, dev := newTestController(t, testConfig(256))
	require.NoError(t, c.Start())
	defer c.Stop()

	for i := 0; i < 10; i++ {
		block, ok := dev.Tick()
		require.True(t, ok)
		assert.True(t, isSilent(block))
	}
	assert.Equal(t, 0, c.Stats().Queued)
	assert.Equal(t, uint64(10), c.Stats().Underflows)
}

func TestRoundTripIsExactWithoutResampling(t *testing.T) {
	const blockSize = 512
	c, dev := newTestController(t, testConfig(blockSize))
	require.NoError(t, c.Start())
	defer c.Stop()

	rng := rand.New(rand.NewSource(7))
	total := 0
	for total < 20*blockSize {
		n := 1 + rng.Intn(700)
		require.NoError(t, c.AddChunk(chunk(n)))
		total += n
	}

	var left, right []float32
	for c.Stats().Queued >= blockSize {
		block, ok := dev.Tick()
		require.True(t, ok)
		left = append(left, block[0]...)
		right = append(right, block[1]...)
	}

	expected := seq(0, len(left))
	assert.Equal(t, expected, left)
	for i := range right {
		require.Equal(t, -expected[i], right[i])
	}
	assert.Equal(t, total-len(left), c.Stats().Queued)
}

func TestChannelsStayInSync(t *testing.T) {
	const blockSize = 64
	c, dev := newTestController(t, testConfig(blockSize))
	require.NoError(t, c.Start())
	defer c.Stop()

	rng := rand.New(rand.NewSource(3))
	var next float32
	for step := 0; step < 500; step++ {
		if rng.Intn(3) == 0 {
			require.NoError(t, c.AddChunk(chunk(rng.Intn(150))))
			continue
		}

		block, ok := dev.Tick()
		require.True(t, ok)
		if isSilent(block) {
			continue
		}
		require.Equal(t, seq(int(next), blockSize), block[0])
		for i := 0; i < blockSize; i++ {
			require.Equal(t, block[0][i], -block[1][i], "channels diverged")
		}
		next += blockSize
	}

	stats := c.Stats()
	assert.Equal(t, stats.SamplesWritten-stats.SamplesRead, uint64(stats.Queued))
}

func TestResamplingPath(t *testing.T) {
	cfg := testConfig(1024)
	dev := output.NewVirtual(48000)
	c, err := New(cfg, &seqDecoder{}, dev)
	require.NoError(t, err)
	require.NoError(t, c.Start())
	defer c.Stop()

	// 24kHz -> 48kHz doubles the frame count, minus the first frame's history
	require.NoError(t, c.AddChunk(chunk(512)))
	assert.Equal(t, 1023, c.Stats().Queued)

	block, _ := dev.Tick()
	assert.True(t, isSilent(block), "one frame short of a block")

	require.NoError(t, c.AddChunk(chunk(512)))
	block, _ = dev.Tick()
	require.False(t, isSilent(block))
	for i, v := range block[0] {
		assert.InDelta(t, float32(i)/2, v, 1e-3)
		assert.InDelta(t, -float32(i)/2, block[1][i], 1e-3)
	}
}

func TestDecodeFailureLeavesQueuesUntouched(t *testing.T) {
	var reported []error
	c, dev := newTestController(t, testConfig(16), WithErrorHandler(func(err error) {
		reported = append(reported, err)
	}))
	require.NoError(t, c.Start())
	defer c.Stop()

	require.NoError(t, c.AddChunk(chunk(10)))

	bad := append([]byte{0xFF}, chunk(20)...)
	err := c.AddChunk(bad)
	assert.ErrorIs(t, err, ErrDecode)
	assert.ErrorIs(t, err, errBadChunk)

	stats := c.Stats()
	assert.Equal(t, 10, stats.Queued)
	assert.Equal(t, uint64(1), stats.DecodeErrors)
	assert.Equal(t, uint64(1), stats.Chunks)

	block, _ := dev.Tick()
	assert.True(t, isSilent(block))
	assert.Empty(t, reported, "direct calls return errors instead of reporting")
}

func TestChannelMismatchIsDropped(t *testing.T) {
	dev := output.NewVirtual(24000)
	c, err := New(testConfig(16), monoDecoder{}, dev)
	require.NoError(t, err)
	require.NoError(t, c.Start())
	defer c.Stop()

	err = c.AddChunk(chunk(32))
	assert.ErrorIs(t, err, ErrDecode)
	assert.ErrorIs(t, err, audio.ErrChannelMismatch)
	assert.Equal(t, 0, c.Stats().Queued)
}

func TestVolumeDelegatesToDeviceGain(t *testing.T) {
	c, dev := newTestController(t, testConfig(4))
	require.NoError(t, c.Start())

	v, err := c.Volume()
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)

	require.NoError(t, c.SetVolume(0.5))
	v, err = c.Volume()
	require.NoError(t, err)
	assert.Equal(t, 0.5, v)
	assert.Error(t, c.SetVolume(-2))

	require.NoError(t, c.AddChunk(chunk(4)))
	block, _ := dev.Tick()
	assert.Equal(t, []float32{0, 0.5, 1, 1.5}, block[0])

	require.NoError(t, c.Stop())
	assert.False(t, dev.Gain().Connected())
	assert.False(t, dev.Registered())
}

func TestStopReleasesQueuesAndCallback(t *testing.T) {
	c, dev := newTestController(t, testConfig(32))
	require.NoError(t, c.Start())
	require.NoError(t, c.AddChunk(chunk(100)))

	require.NoError(t, c.Stop())
	assert.Equal(t, 0, c.Stats().Queued)

	_, ok := dev.Tick()
	assert.False(t, ok, "pull callback unregistered")
}

func TestStopRacingAddChunkDiscardsWrite(t *testing.T) {
	dec := &gateDecoder{entered: make(chan struct{}), release: make(chan struct{})}
	dev := output.NewVirtual(24000)
	c, err := New(testConfig(16), dec, dev)
	require.NoError(t, err)
	require.NoError(t, c.Start())

	addErr := make(chan error, 1)
	go func() { addErr <- c.AddChunk(chunk(64)) }()
	<-dec.entered

	stopped := make(chan error, 1)
	go func() { stopped <- c.Stop() }()

	// Stop flips the state at once but waits for the decode to finish
	require.Eventually(t, func() bool { return c.State() == StateStopped }, time.Second, time.Millisecond)
	select {
	case <-stopped:
		t.Fatal("Stop returned while a decode was in flight")
	case <-time.After(20 * time.Millisecond):
	}

	close(dec.release)
	require.NoError(t, <-stopped)
	assert.ErrorIs(t, <-addErr, ErrNotRunning)

	stats := c.Stats()
	assert.Equal(t, 0, stats.Queued)
	assert.Equal(t, uint64(0), stats.SamplesWritten)
}

func TestConcurrentProducersTicksAndStop(t *testing.T) {
	const blockSize = 32
	c, dev := newTestController(t, testConfig(blockSize))
	require.NoError(t, c.Start())

	var wg sync.WaitGroup
	done := make(chan struct{})
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				err := c.AddChunk(chunk(blockSize / 2))
				if err != nil {
					assert.ErrorIs(t, err, ErrNotRunning)
					return
				}
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			block, ok := dev.Tick()
			if !ok {
				return
			}
			for i := range block[0] {
				assert.Equal(t, block[0][i], -block[1][i])
			}
		}
	}()

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, c.Stop())
	close(done)
	wg.Wait()

	assert.Equal(t, 0, c.Stats().Queued)
	assert.ErrorIs(t, c.AddChunk(chunk(8)), ErrNotRunning)
}

func TestOwnedTransportIsClosed(t *testing.T) {
	tr := &fakeTransport{}
	c, dev := newTestController(t, testConfig(8), WithTransport(tr, true))
	require.NoError(t, c.Start())

	tr.deliver(protocol.Encode(protocol.KindAudio, chunk(8)))
	block, _ := dev.Tick()
	assert.Equal(t, seq(0, 8), block[0])

	require.NoError(t, c.Stop())
	assert.Equal(t, 1, tr.closed)
}

func TestBorrowedTransportHandlerIsRestored(t *testing.T) {
	tr := &fakeTransport{}
	var forwarded [][]byte
	parent := func(msg []byte) { forwarded = append(forwarded, msg) }
	tr.SetHandler(parent)

	var reported []error
	c, dev := newTestController(t, testConfig(8),
		WithTransport(tr, false),
		WithErrorHandler(func(err error) { reported = append(reported, err) }))
	require.NoError(t, c.Start())

	tr.deliver(protocol.Encode(protocol.KindAudio, chunk(8)))
	tr.deliver(protocol.Encode(protocol.KindPanadapter, []byte(`{}`)))
	tr.deliver(protocol.Encode(protocol.KindAudio, []byte{0xFF}))

	block, _ := dev.Tick()
	assert.Equal(t, seq(0, 8), block[0])
	require.Len(t, forwarded, 1)
	assert.Equal(t, []byte(`P {}`), forwarded[0])
	require.Len(t, reported, 1)
	assert.ErrorIs(t, reported[0], ErrDecode)

	require.NoError(t, c.Stop())
	assert.Equal(t, 0, tr.closed)

	// The parent handler is back in place
	tr.deliver(protocol.Encode(protocol.KindAudio, chunk(4)))
	require.Len(t, forwarded, 2)
}

func TestStopBeforeStartClosesOwnedTransport(t *testing.T) {
	tr := &fakeTransport{}
	c, _ := newTestController(t, testConfig(8), WithTransport(tr, true))

	require.NoError(t, c.Stop())
	assert.Equal(t, 1, tr.closed)
	assert.ErrorIs(t, c.Start(), ErrStopped)
}

func TestStartFailureReturnsToIdle(t *testing.T) {
	c, dev := newTestController(t, testConfig(8))
	require.NoError(t, dev.Register(2, 8, func([][]float32) {}))

	err := c.Start()
	assert.ErrorIs(t, err, output.ErrAlreadyRegistered)
	assert.Equal(t, StateIdle, c.State())
	assert.False(t, dev.Gain().Connected())
	assert.ErrorIs(t, c.AddChunk(chunk(8)), ErrNotRunning)
}

func TestStopDuringFailedStartStaysStopped(t *testing.T) {
	dev := newGatedDevice()
	tr := &fakeTransport{}
	c, err := New(testConfig(8), &seqDecoder{}, dev, WithTransport(tr, true))
	require.NoError(t, err)

	startErr := make(chan error, 1)
	go func() { startErr <- c.Start() }()
	<-dev.entered

	stopped := make(chan error, 1)
	go func() { stopped <- c.Stop() }()
	require.Eventually(t, func() bool { return c.State() == StateStopped }, time.Second, time.Millisecond)

	close(dev.release)
	assert.ErrorContains(t, <-startErr, "device unavailable")
	require.NoError(t, <-stopped)

	assert.Equal(t, StateStopped, c.State())
	assert.Equal(t, 1, tr.closed)
	assert.False(t, dev.Gain().Connected())

	assert.ErrorIs(t, c.Start(), ErrStopped)
	assert.ErrorIs(t, c.AddChunk(chunk(8)), ErrNotRunning)
	dev.mu.Lock()
	defer dev.mu.Unlock()
	assert.Equal(t, 1, dev.attempts)
}

func TestMaxLatencyDropsOldestSamples(t *testing.T) {
	cfg := testConfig(1024)
	cfg.MaxLatency = 100 * time.Millisecond // 2400 frames at 24kHz
	c, dev := newTestController(t, cfg)
	require.NoError(t, c.Start())
	defer c.Stop()

	require.NoError(t, c.AddChunk(chunk(5000)))

	stats := c.Stats()
	assert.Equal(t, 2400, stats.Queued)
	assert.Equal(t, uint64(2600), stats.SamplesDropped)
	assert.Equal(t, 100*time.Millisecond, stats.Buffered)

	block, _ := dev.Tick()
	assert.Equal(t, float32(2600), block[0][0])
	assert.Equal(t, float32(-2600), block[1][0])
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	c, dev := newTestController(t, testConfig(8), WithMetrics(m))
	require.NoError(t, c.Start())
	defer c.Stop()

	dev.Tick()
	require.NoError(t, c.AddChunk(chunk(12)))
	assert.Error(t, c.AddChunk([]byte{0xFF}))
	dev.Tick()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Ticks))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Underflows))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Chunks))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChunkErrors))
	assert.InDelta(t, 4.0/24000, testutil.ToFloat64(m.BufferedSeconds), 1e-9)
}
