// ABOUTME: Pure-Go Opus decoder backed by pion/opus
// ABOUTME: Decodes SILK packets without cgo and converts them to the stream format
package decode

import (
	"encoding/binary"
	"fmt"

	"github.com/pion/opus"
	"github.com/wsaudio/wsaudio-go/pkg/audio"
	"github.com/wsaudio/wsaudio-go/pkg/audio/resample"
)

// PionOpusDecoder decodes Opus audio without libopus. pion/opus emits
// 16-bit PCM at the packet's bandwidth rate, so output is resampled to
// the stream rate and mapped to the stream channel count.
type PionOpusDecoder struct {
	decoder   opus.Decoder
	format    audio.Format
	out       []byte
	resampler *resample.Resampler
}

// NewPionOpus creates a new pure-Go Opus decoder
func NewPionOpus(format audio.Format) (Decoder, error) {
	if err := checkOpusFormat(format); err != nil {
		return nil, err
	}

	return &PionOpusDecoder{
		decoder: opus.NewDecoder(),
		format:  format,
		out:     make([]byte, maxOpusFrame*2*2),
	}, nil
}

// Decode converts an Opus packet to a block
func (d *PionOpusDecoder) Decode(data []byte) (audio.Block, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("opus decode failed: empty packet")
	}
	frames, err := packetFrames(data)
	if err != nil {
		return nil, fmt.Errorf("opus decode failed: %w", err)
	}

	bandwidth, isStereo, err := d.decoder.Decode(data, d.out)
	if err != nil {
		return nil, fmt.Errorf("opus decode failed: %w", err)
	}

	rate := bandwidth.SampleRate()
	decodedChannels := 1
	if isStereo {
		decodedChannels = 2
	}

	samples := rate * packetDurationMicros(data[0]) * frames / 1_000_000 * decodedChannels
	if limit := len(d.out) / 2; samples > limit {
		samples = limit
	}

	pcm := make([]float32, samples)
	for i := range pcm {
		pcm[i] = audio.Float32FromInt16(int16(binary.LittleEndian.Uint16(d.out[i*2:])))
	}

	block := audio.Deinterleave(pcm, decodedChannels).Remix(d.format.Channels)

	if !resample.Needed(rate, d.format.SampleRate) {
		return block, nil
	}
	if d.resampler == nil || d.resampler.InputRate() != rate {
		r, err := resample.New(rate, d.format.SampleRate, d.format.Channels)
		if err != nil {
			return nil, err
		}
		d.resampler = r
	}
	return d.resampler.Convert(block)
}

// Close releases decoder resources
func (d *PionOpusDecoder) Close() error {
	return nil
}

// packetDurationMicros reads the frame duration from an Opus TOC byte
func packetDurationMicros(toc byte) int {
	config := toc >> 3
	switch {
	case config < 12: // SILK
		return []int{10000, 20000, 40000, 60000}[config%4]
	case config < 16: // Hybrid
		return []int{10000, 20000}[config%2]
	default: // CELT
		return []int{2500, 5000, 10000, 20000}[config%4]
	}
}

// packetFrames returns how many frames a packet carries, from the TOC
// frame-count code and, for code 3, the frame count byte
func packetFrames(packet []byte) (int, error) {
	switch packet[0] & 0x03 {
	case 0:
		return 1, nil
	case 1, 2:
		return 2, nil
	default:
		if len(packet) < 2 {
			return 0, fmt.Errorf("code 3 packet missing frame count byte")
		}
		n := int(packet[1] & 0x3F)
		if n == 0 {
			return 0, fmt.Errorf("code 3 packet with zero frames")
		}
		return n, nil
	}
}
