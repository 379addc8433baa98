// ABOUTME: Opus audio encoder
// ABOUTME: Encodes float32 blocks to Opus packets
package encode

import (
	"fmt"

	"github.com/wsaudio/wsaudio-go/pkg/audio"
	"gopkg.in/hraban/opus.v2"
)

// maxPacketSize is the largest packet libopus is asked to produce
const maxPacketSize = 4000

// OpusEncoder encodes Opus audio
type OpusEncoder struct {
	encoder  *opus.Encoder
	channels int
	pcm      []float32
	data     []byte
}

// NewOpus creates a new Opus encoder
func NewOpus(format audio.Format, opts Options) (Encoder, error) {
	if format.Codec != "opus" {
		return nil, fmt.Errorf("invalid codec for Opus encoder: %s", format.Codec)
	}

	app := opus.AppAudio
	switch opts.Application {
	case 0, int(opus.AppAudio):
	case int(opus.AppVoIP):
		app = opus.AppVoIP
	case int(opus.AppRestrictedLowdelay):
		app = opus.AppRestrictedLowdelay
	default:
		return nil, fmt.Errorf("unknown opus application: %d", opts.Application)
	}

	encoder, err := opus.NewEncoder(format.SampleRate, format.Channels, app)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}

	if opts.Bitrate > 0 {
		if err := encoder.SetBitrate(opts.Bitrate); err != nil {
			return nil, fmt.Errorf("failed to set opus bitrate: %w", err)
		}
	}

	return &OpusEncoder{
		encoder:  encoder,
		channels: format.Channels,
		data:     make([]byte, maxPacketSize),
	}, nil
}

// Encode converts one frame to an Opus packet. The block must hold a
// valid Opus frame size (2.5, 5, 10, 20, 40 or 60ms).
func (e *OpusEncoder) Encode(block audio.Block) ([]byte, error) {
	if err := block.Validate(e.channels); err != nil {
		return nil, err
	}

	e.pcm = block.Interleave(e.pcm)
	n, err := e.encoder.EncodeFloat32(e.pcm, e.data)
	if err != nil {
		return nil, fmt.Errorf("opus encode error: %w", err)
	}

	return append([]byte(nil), e.data[:n]...), nil
}

// Close releases resources
func (e *OpusEncoder) Close() error {
	return nil
}
