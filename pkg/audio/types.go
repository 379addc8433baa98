// ABOUTME: Audio type definitions
// ABOUTME: Defines stream formats, per-channel sample blocks and sample conversions
package audio

import (
	"errors"
	"fmt"
)

const (
	// 24-bit audio range constants
	Max24Bit = 8388607  // 2^23 - 1
	Min24Bit = -8388608 // -2^23
)

var (
	// ErrChannelMismatch is returned when a block's channels differ in length
	// or its channel count is not the expected one.
	ErrChannelMismatch = errors.New("audio: channel mismatch")
)

// Format describes audio stream format
type Format struct {
	Codec      string
	SampleRate int
	Channels   int
	BitDepth   int
}

// Validate checks that the format describes a playable stream
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate: %d", f.SampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("invalid channel count: %d", f.Channels)
	}
	return nil
}

func (f Format) String() string {
	return fmt.Sprintf("%s %dHz %dch", f.Codec, f.SampleRate, f.Channels)
}

// Block holds one run of decoded audio, one slice per channel.
// Every channel of a block has the same length.
type Block [][]float32

// NewBlock allocates a zeroed block
func NewBlock(channels, frames int) Block {
	b := make(Block, channels)
	for ch := range b {
		b[ch] = make([]float32, frames)
	}
	return b
}

// Channels returns the channel count
func (b Block) Channels() int {
	return len(b)
}

// Frames returns the number of samples in each channel
func (b Block) Frames() int {
	if len(b) == 0 {
		return 0
	}
	return len(b[0])
}

// Validate checks the block has the given channel count and equal-length channels
func (b Block) Validate(channels int) error {
	if len(b) != channels {
		return fmt.Errorf("%w: got %d channels, want %d", ErrChannelMismatch, len(b), channels)
	}
	frames := b.Frames()
	for ch := range b {
		if len(b[ch]) != frames {
			return fmt.Errorf("%w: channel %d has %d samples, channel 0 has %d",
				ErrChannelMismatch, ch, len(b[ch]), frames)
		}
	}
	return nil
}

// Deinterleave splits interleaved samples into a block. Trailing samples
// that do not complete a frame are ignored.
func Deinterleave(samples []float32, channels int) Block {
	frames := len(samples) / channels
	b := NewBlock(channels, frames)
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			b[ch][i] = samples[i*channels+ch]
		}
	}
	return b
}

// Interleave merges the block into dst, growing it when needed
func (b Block) Interleave(dst []float32) []float32 {
	channels := len(b)
	frames := b.Frames()
	need := frames * channels
	if cap(dst) < need {
		dst = make([]float32, need)
	}
	dst = dst[:need]
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			dst[i*channels+ch] = b[ch][i]
		}
	}
	return dst
}

// Remix duplicates mono to every channel or averages down to mono copies.
// A block already at the channel count is returned as is.
func (b Block) Remix(channels int) Block {
	switch {
	case b.Channels() == channels:
		return b
	case b.Channels() == 1:
		out := make(Block, channels)
		out[0] = b[0]
		for ch := 1; ch < channels; ch++ {
			out[ch] = append([]float32(nil), b[0]...)
		}
		return out
	default:
		out := NewBlock(channels, b.Frames())
		for i := 0; i < b.Frames(); i++ {
			var sum float32
			for ch := range b {
				sum += b[ch][i]
			}
			out[0][i] = sum / float32(b.Channels())
		}
		for ch := 1; ch < channels; ch++ {
			copy(out[ch], out[0])
		}
		return out
	}
}

// Float32FromInt16 scales a 16-bit sample to [-1, 1)
func Float32FromInt16(sample int16) float32 {
	return float32(sample) / 32768
}

// Float32ToInt16 scales and clips a float sample to 16-bit
func Float32ToInt16(sample float32) int16 {
	v := sample * 32768
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

// Float32From24Bit scales a sign-extended 24-bit sample to [-1, 1)
func Float32From24Bit(sample int32) float32 {
	return float32(sample) / 8388608
}

// SampleFrom24Bit converts 24-bit packed bytes to int32 (little-endian)
func SampleFrom24Bit(b [3]byte) int32 {
	val := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
	// Sign extend from 24-bit to 32-bit
	if val&0x800000 != 0 {
		val |= ^0xFFFFFF
	}
	return val
}

// SampleTo24Bit converts int32 to 24-bit packed bytes (little-endian)
func SampleTo24Bit(sample int32) [3]byte {
	return [3]byte{
		byte(sample),
		byte(sample >> 8),
		byte(sample >> 16),
	}
}

// Float32To24Bit scales and clips a float sample to the 24-bit range
func Float32To24Bit(sample float32) int32 {
	v := float64(sample) * 8388608
	if v > Max24Bit {
		return Max24Bit
	}
	if v < Min24Bit {
		return Min24Bit
	}
	return int32(v)
}
