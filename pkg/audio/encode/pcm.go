// ABOUTME: PCM audio encoder
// ABOUTME: Encodes float32 blocks to interleaved 16-bit or 24-bit PCM bytes
package encode

import (
	"encoding/binary"
	"fmt"

	"github.com/wsaudio/wsaudio-go/pkg/audio"
)

// PCMEncoder encodes PCM audio
type PCMEncoder struct {
	bitDepth int
	channels int
	pcm      []float32
}

// NewPCM creates a new PCM encoder. A zero bit depth means 16-bit.
func NewPCM(format audio.Format) (Encoder, error) {
	if format.Codec != "pcm" {
		return nil, fmt.Errorf("invalid codec for PCM encoder: %s", format.Codec)
	}

	bitDepth := format.BitDepth
	if bitDepth == 0 {
		bitDepth = 16
	}
	if bitDepth != 16 && bitDepth != 24 {
		return nil, fmt.Errorf("unsupported bit depth: %d (supported: 16, 24)", format.BitDepth)
	}

	return &PCMEncoder{
		bitDepth: bitDepth,
		channels: format.Channels,
	}, nil
}

// Encode converts a block to PCM bytes
func (e *PCMEncoder) Encode(block audio.Block) ([]byte, error) {
	if err := block.Validate(e.channels); err != nil {
		return nil, err
	}

	e.pcm = block.Interleave(e.pcm)
	if e.bitDepth == 24 {
		output := make([]byte, len(e.pcm)*3)
		for i, sample := range e.pcm {
			b := audio.SampleTo24Bit(audio.Float32To24Bit(sample))
			copy(output[i*3:], b[:])
		}
		return output, nil
	}

	output := make([]byte, len(e.pcm)*2)
	for i, sample := range e.pcm {
		binary.LittleEndian.PutUint16(output[i*2:], uint16(audio.Float32ToInt16(sample)))
	}
	return output, nil
}

// Close releases resources
func (e *PCMEncoder) Close() error {
	return nil
}
