// ABOUTME: Adapter from variable-size device requests to fixed-size pulls
// ABOUTME: Shared by the callback and reader based backends
package output

import "sync"

// blockPump serves device requests of any size from fixed-size pulls,
// carrying the unread tail of a pulled block over to the next request.
type blockPump struct {
	channels  int
	blockSize int
	pull      PullFunc
	gain      *Gain
	block     [][]float32
	pos       int
}

func newBlockPump(channels, blockSize int, pull PullFunc, gain *Gain) *blockPump {
	block := make([][]float32, channels)
	for ch := range block {
		block[ch] = make([]float32, blockSize)
	}
	return &blockPump{
		channels:  channels,
		blockSize: blockSize,
		pull:      pull,
		gain:      gain,
		block:     block,
		pos:       blockSize,
	}
}

func (p *blockPump) refill() {
	p.pull(p.block)
	p.gain.Apply(p.block)
	p.pos = 0
}

// sample maps a device channel onto a pulled channel. Devices with more
// channels than the stream repeat the last stream channel.
func (p *blockPump) sample(ch int) float32 {
	if ch >= p.channels {
		ch = p.channels - 1
	}
	return p.block[ch][p.pos]
}

// readInterleaved fills dst with whole frames of deviceChannels samples
func (p *blockPump) readInterleaved(dst []float32, deviceChannels int) {
	frames := len(dst) / deviceChannels
	for f := 0; f < frames; f++ {
		if p.pos == p.blockSize {
			p.refill()
		}
		for ch := 0; ch < deviceChannels; ch++ {
			dst[f*deviceChannels+ch] = p.sample(ch)
		}
		p.pos++
	}
}

// readPlanar fills one slice per device channel
func (p *blockPump) readPlanar(dst [][]float32) {
	if len(dst) == 0 {
		return
	}
	frames := len(dst[0])
	for f := 0; f < frames; f++ {
		if p.pos == p.blockSize {
			p.refill()
		}
		for ch := range dst {
			dst[ch][f] = p.sample(ch)
		}
		p.pos++
	}
}

// pumpSlot holds the active pump. Readers hold mu for the whole request,
// so remove waits for an in-flight pull to finish.
type pumpSlot struct {
	mu   sync.Mutex
	pump *blockPump
}

func (s *pumpSlot) install(p *blockPump) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pump != nil {
		return ErrAlreadyRegistered
	}
	s.pump = p
	return nil
}

func (s *pumpSlot) remove() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	had := s.pump != nil
	s.pump = nil
	return had
}

func (s *pumpSlot) active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pump != nil
}

func (s *pumpSlot) interleaved(dst []float32, deviceChannels int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pump == nil {
		clear(dst)
		return
	}
	s.pump.readInterleaved(dst, deviceChannels)
}

func (s *pumpSlot) planar(dst [][]float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pump == nil {
		for ch := range dst {
			clear(dst[ch])
		}
		return
	}
	s.pump.readPlanar(dst)
}
