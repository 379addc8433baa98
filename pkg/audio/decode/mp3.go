// ABOUTME: MP3 audio decoder
// ABOUTME: Decodes chunks made of whole MP3 frames to float32 blocks
package decode

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
	"github.com/wsaudio/wsaudio-go/pkg/audio"
)

// MP3Decoder decodes MP3 audio. Every chunk must start on a frame
// boundary; go-mp3 always yields 16-bit stereo.
type MP3Decoder struct {
	format audio.Format
}

// NewMP3 creates a new MP3 decoder
func NewMP3(format audio.Format) (Decoder, error) {
	if format.Codec != "mp3" {
		return nil, fmt.Errorf("invalid codec for MP3 decoder: %s", format.Codec)
	}
	if format.Channels != 1 && format.Channels != 2 {
		return nil, fmt.Errorf("unsupported mp3 channel count: %d", format.Channels)
	}

	return &MP3Decoder{format: format}, nil
}

// Decode converts MP3 frames to a block
func (d *MP3Decoder) Decode(data []byte) (audio.Block, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create mp3 decoder: %w", err)
	}
	if decoder.SampleRate() != d.format.SampleRate {
		return nil, fmt.Errorf("mp3 sample rate %d does not match stream rate %d", decoder.SampleRate(), d.format.SampleRate)
	}

	raw, err := io.ReadAll(decoder)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("mp3 decode error: %w", err)
	}

	numSamples := len(raw) / 2
	samples := make([]float32, numSamples)
	for i := 0; i < numSamples; i++ {
		samples[i] = audio.Float32FromInt16(int16(binary.LittleEndian.Uint16(raw[i*2:])))
	}

	return audio.Deinterleave(samples, 2).Remix(d.format.Channels), nil
}

// Close releases decoder resources
func (d *MP3Decoder) Close() error {
	return nil
}
