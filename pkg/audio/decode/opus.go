// ABOUTME: Opus audio decoder backed by libopus
// ABOUTME: Decodes Opus packets to float32 blocks
package decode

import (
	"fmt"

	"github.com/wsaudio/wsaudio-go/pkg/audio"
	"gopkg.in/hraban/opus.v2"
)

// maxOpusFrame is 120ms at 48kHz, the longest frame a packet can carry
const maxOpusFrame = 5760

// OpusDecoder decodes Opus audio
type OpusDecoder struct {
	decoder *opus.Decoder
	format  audio.Format
	pcm     []float32
}

// NewOpus creates a new Opus decoder
func NewOpus(format audio.Format) (Decoder, error) {
	if err := checkOpusFormat(format); err != nil {
		return nil, err
	}

	dec, err := opus.NewDecoder(format.SampleRate, format.Channels)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus decoder: %w", err)
	}

	return &OpusDecoder{
		decoder: dec,
		format:  format,
		pcm:     make([]float32, maxOpusFrame*format.Channels),
	}, nil
}

// Decode converts an Opus packet to a block
func (d *OpusDecoder) Decode(data []byte) (audio.Block, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("opus decode failed: empty packet")
	}

	n, err := d.decoder.DecodeFloat32(data, d.pcm)
	if err != nil {
		return nil, fmt.Errorf("opus decode failed: %w", err)
	}

	return audio.Deinterleave(d.pcm[:n*d.format.Channels], d.format.Channels), nil
}

// Close releases decoder resources
func (d *OpusDecoder) Close() error {
	return nil
}
