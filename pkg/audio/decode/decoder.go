// ABOUTME: Decoder interface definition and codec factory
// ABOUTME: Common interface for all audio decoders producing per-channel blocks
package decode

import (
	"fmt"
	"strings"

	"github.com/wsaudio/wsaudio-go/pkg/audio"
)

// Decoder decodes one encoded chunk into one block per channel.
// Decoders are stateful and not safe for concurrent use.
type Decoder interface {
	// Decode converts encoded audio data to a block of float32 samples
	Decode(data []byte) (audio.Block, error)

	// Close releases decoder resources
	Close() error
}

// Opus decoder backends
const (
	BackendLibopus = "libopus"
	BackendPion    = "pion"
)

// New creates a decoder for the format's codec. backend selects the Opus
// implementation and is ignored for other codecs.
func New(format audio.Format, backend string) (Decoder, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}

	switch strings.ToLower(format.Codec) {
	case "opus":
		switch strings.ToLower(backend) {
		case BackendLibopus, "":
			return NewOpus(format)
		case BackendPion:
			return NewPionOpus(format)
		default:
			return nil, fmt.Errorf("unknown opus backend: %s", backend)
		}
	case "pcm":
		return NewPCM(format)
	case "mp3":
		return NewMP3(format)
	default:
		return nil, fmt.Errorf("unsupported codec: %s", format.Codec)
	}
}

// opusRates lists the sample rates an Opus decoder can run at
var opusRates = map[int]bool{8000: true, 12000: true, 16000: true, 24000: true, 48000: true}

func checkOpusFormat(format audio.Format) error {
	if format.Codec != "opus" {
		return fmt.Errorf("invalid codec for Opus decoder: %s", format.Codec)
	}
	if !opusRates[format.SampleRate] {
		return fmt.Errorf("unsupported opus sample rate: %d (supported: 8000, 12000, 16000, 24000, 48000)", format.SampleRate)
	}
	if format.Channels != 1 && format.Channels != 2 {
		return fmt.Errorf("unsupported opus channel count: %d", format.Channels)
	}
	return nil
}
