// ABOUTME: PCM audio decoder
// ABOUTME: Decodes interleaved 16-bit and 24-bit little-endian PCM to float32 blocks
package decode

import (
	"encoding/binary"
	"fmt"

	"github.com/wsaudio/wsaudio-go/pkg/audio"
)

// PCMDecoder decodes PCM audio
type PCMDecoder struct {
	bitDepth int
	channels int
}

// NewPCM creates a new PCM decoder. A zero bit depth means 16-bit.
func NewPCM(format audio.Format) (Decoder, error) {
	if format.Codec != "pcm" {
		return nil, fmt.Errorf("invalid codec for PCM decoder: %s", format.Codec)
	}

	bitDepth := format.BitDepth
	if bitDepth == 0 {
		bitDepth = 16
	}
	if bitDepth != 16 && bitDepth != 24 {
		return nil, fmt.Errorf("unsupported bit depth: %d (supported: 16, 24)", format.BitDepth)
	}

	return &PCMDecoder{
		bitDepth: bitDepth,
		channels: format.Channels,
	}, nil
}

// Decode converts PCM bytes to a block
func (d *PCMDecoder) Decode(data []byte) (audio.Block, error) {
	width := d.bitDepth / 8
	frameBytes := width * d.channels
	if len(data)%frameBytes != 0 {
		return nil, fmt.Errorf("pcm chunk of %d bytes is not a whole number of %d-byte frames", len(data), frameBytes)
	}

	numSamples := len(data) / width
	samples := make([]float32, numSamples)
	if d.bitDepth == 24 {
		for i := 0; i < numSamples; i++ {
			b := [3]byte{data[i*3], data[i*3+1], data[i*3+2]}
			samples[i] = audio.Float32From24Bit(audio.SampleFrom24Bit(b))
		}
	} else {
		for i := 0; i < numSamples; i++ {
			samples[i] = audio.Float32FromInt16(int16(binary.LittleEndian.Uint16(data[i*2:])))
		}
	}

	return audio.Deinterleave(samples, d.channels), nil
}

// Close releases resources
func (d *PCMDecoder) Close() error {
	return nil
}
