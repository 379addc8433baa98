// ABOUTME: Tests for audio types
// ABOUTME: Tests blocks, interleaving and sample conversion functions
package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFloat32FromInt16(t *testing.T) {
	tests := []struct {
		name     string
		input    int16
		expected float32
	}{
		{"zero", 0, 0},
		{"half", 16384, 0.5},
		{"negative half", -16384, -0.5},
		{"min", -32768, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Float32FromInt16(tt.input))
		})
	}
}

func TestFloat32ToInt16Clips(t *testing.T) {
	tests := []struct {
		name     string
		input    float32
		expected int16
	}{
		{"zero", 0, 0},
		{"half", 0.5, 16384},
		{"over", 1.5, 32767},
		{"under", -1.5, -32768},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Float32ToInt16(tt.input))
		})
	}
}

func TestSampleFrom24Bit(t *testing.T) {
	tests := []struct {
		name     string
		input    [3]byte
		expected int32
	}{
		{"zero", [3]byte{0, 0, 0}, 0},
		{"one", [3]byte{1, 0, 0}, 1},
		{"max", [3]byte{0xFF, 0xFF, 0x7F}, Max24Bit},
		{"min", [3]byte{0x00, 0x00, 0x80}, Min24Bit},
		{"minus one", [3]byte{0xFF, 0xFF, 0xFF}, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SampleFrom24Bit(tt.input))
			assert.Equal(t, tt.input, SampleTo24Bit(tt.expected))
		})
	}
}

func TestFloat32To24BitClips(t *testing.T) {
	assert.Equal(t, int32(Max24Bit), Float32To24Bit(2))
	assert.Equal(t, int32(Min24Bit), Float32To24Bit(-2))
	assert.Equal(t, int32(4194304), Float32To24Bit(0.5))
}

func TestDeinterleaveInterleave(t *testing.T) {
	interleaved := []float32{1, -1, 2, -2, 3, -3, 9}

	block := Deinterleave(interleaved, 2)
	require.NoError(t, block.Validate(2))
	assert.Equal(t, 3, block.Frames())
	assert.Equal(t, []float32{1, 2, 3}, block[0])
	assert.Equal(t, []float32{-1, -2, -3}, block[1])

	out := block.Interleave(nil)
	assert.Equal(t, interleaved[:6], out)
}

func TestBlockValidate(t *testing.T) {
	tests := []struct {
		name     string
		block    Block
		channels int
		wantErr  bool
	}{
		{"ok", NewBlock(2, 10), 2, false},
		{"empty ok", NewBlock(2, 0), 2, false},
		{"wrong channel count", NewBlock(1, 10), 2, true},
		{"uneven", Block{make([]float32, 3), make([]float32, 4)}, 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.block.Validate(tt.channels)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrChannelMismatch)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFormatValidate(t *testing.T) {
	assert.NoError(t, Format{Codec: "opus", SampleRate: 24000, Channels: 2}.Validate())
	assert.Error(t, Format{Codec: "opus", SampleRate: 0, Channels: 2}.Validate())
	assert.Error(t, Format{Codec: "opus", SampleRate: 24000, Channels: 0}.Validate())
}

func TestBlockRemix(t *testing.T) {
	mono := Block{{0.5, -0.5}}
	stereo := mono.Remix(2)
	require.NoError(t, stereo.Validate(2))
	assert.Equal(t, stereo[0], stereo[1])

	down := Block{{1, 0}, {0, 1}}.Remix(1)
	require.NoError(t, down.Validate(1))
	assert.Equal(t, []float32{0.5, 0.5}, down[0])

	same := Block{{1}, {2}}
	assert.Equal(t, same, same.Remix(2))
}
