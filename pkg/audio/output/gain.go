// ABOUTME: Scalar gain stage sitting between the pull callback and the device
// ABOUTME: Emits silence while disconnected, scales samples while connected
package output

import (
	"fmt"
	"math"
	"sync/atomic"
)

// Gain is a volume control with a connect/disconnect lifecycle.
// It is safe for concurrent use.
type Gain struct {
	bits      atomic.Uint64
	connected atomic.Bool
}

// NewGain creates a disconnected gain at unity
func NewGain() *Gain {
	g := &Gain{}
	g.bits.Store(math.Float64bits(1))
	return g
}

// Connect routes audio through the gain
func (g *Gain) Connect() { g.connected.Store(true) }

// Disconnect mutes the path entirely
func (g *Gain) Disconnect() { g.connected.Store(false) }

// Connected reports whether the gain passes audio
func (g *Gain) Connected() bool { return g.connected.Load() }

// Value returns the current linear gain
func (g *Gain) Value() float64 {
	return math.Float64frombits(g.bits.Load())
}

// SetValue sets the linear gain; 0 mutes, 1 is unity
func (g *Gain) SetValue(v float64) error {
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("invalid gain: %v", v)
	}
	g.bits.Store(math.Float64bits(v))
	return nil
}

// Apply scales the block in place
func (g *Gain) Apply(block [][]float32) {
	if !g.Connected() {
		for ch := range block {
			clear(block[ch])
		}
		return
	}

	v := float32(g.Value())
	if v == 1 {
		return
	}
	for ch := range block {
		buf := block[ch]
		for i := range buf {
			buf[i] *= v
		}
	}
}
