// ABOUTME: Encoder interface definition and codec factory
// ABOUTME: Common interface for all audio encoders consuming per-channel blocks
package encode

import (
	"fmt"
	"strings"

	"github.com/wsaudio/wsaudio-go/pkg/audio"
)

// Encoder encodes one block into one wire chunk
type Encoder interface {
	// Encode converts a block to encoded audio data
	Encode(block audio.Block) ([]byte, error)

	// Close releases encoder resources
	Close() error
}

// Options tunes lossy encoders
type Options struct {
	// Application is the Opus application code (2048 voip, 2049 audio, 2051 low delay)
	Application int
	// Bitrate in bits per second; zero keeps the codec default
	Bitrate int
}

// New creates an encoder for the format's codec
func New(format audio.Format, opts Options) (Encoder, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}

	switch strings.ToLower(format.Codec) {
	case "opus":
		return NewOpus(format, opts)
	case "pcm":
		return NewPCM(format)
	default:
		return nil, fmt.Errorf("unsupported codec: %s", format.Codec)
	}
}
