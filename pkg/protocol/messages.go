// ABOUTME: WSAudio wire framing and message type definitions
// ABOUTME: Every message is a one-byte kind, a space, then the payload
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/wsaudio/wsaudio-go/pkg/audio"
)

// Kind identifies the payload of a message
type Kind byte

// Message kinds. Audio chunks carry one encoded codec frame; the other
// radio kinds are passed through to whoever handles them.
const (
	KindPanadapter Kind = 'P'
	KindSlice      Kind = 'S'
	KindFFT        Kind = 'F'
	KindWaterfall  Kind = 'W'
	KindAudio      Kind = 'O'
	KindStreamInfo Kind = 'T'
	KindHello      Kind = 'H'
)

const separator = ' '

var (
	// ErrShortMessage is returned for messages without a full prefix
	ErrShortMessage = errors.New("protocol: message shorter than prefix")

	// ErrMalformed is returned when the prefix separator is missing
	ErrMalformed = errors.New("protocol: malformed prefix")
)

func (k Kind) String() string {
	switch k {
	case KindPanadapter:
		return "panadapter"
	case KindSlice:
		return "slice"
	case KindFFT:
		return "fft"
	case KindWaterfall:
		return "waterfall"
	case KindAudio:
		return "audio"
	case KindStreamInfo:
		return "stream-info"
	case KindHello:
		return "hello"
	default:
		return fmt.Sprintf("unknown(%q)", byte(k))
	}
}

// Encode frames a payload
func Encode(kind Kind, payload []byte) []byte {
	msg := make([]byte, 2+len(payload))
	msg[0] = byte(kind)
	msg[1] = separator
	copy(msg[2:], payload)
	return msg
}

// Decode splits a message into kind and payload. The payload aliases msg.
func Decode(msg []byte) (Kind, []byte, error) {
	if len(msg) < 2 {
		return 0, nil, ErrShortMessage
	}
	if msg[1] != separator {
		return 0, nil, ErrMalformed
	}
	return Kind(msg[0]), msg[2:], nil
}

// EncodeJSON frames a JSON payload
func EncodeJSON(kind Kind, v interface{}) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", kind, err)
	}
	return Encode(kind, payload), nil
}

// StreamInfo is sent by the relay when a client connects
type StreamInfo struct {
	Name            string `json:"name,omitempty"`
	Codec           string `json:"codec"`
	SampleRate      int    `json:"sample_rate"`
	Channels        int    `json:"channels"`
	BitDepth        int    `json:"bit_depth,omitempty"`
	FrameDurationMs int    `json:"frame_duration_ms"`
}

// Format returns the audio format the stream is encoded in
func (s StreamInfo) Format() audio.Format {
	return audio.Format{
		Codec:      s.Codec,
		SampleRate: s.SampleRate,
		Channels:   s.Channels,
		BitDepth:   s.BitDepth,
	}
}

// ClientHello is sent by players after connecting
type ClientHello struct {
	ClientID string `json:"client_id"`
	Name     string `json:"name"`
	Version  string `json:"version"`
}

// ParseStreamInfo decodes a stream info payload
func ParseStreamInfo(payload []byte) (StreamInfo, error) {
	var info StreamInfo
	if err := json.Unmarshal(payload, &info); err != nil {
		return info, fmt.Errorf("failed to parse stream info: %w", err)
	}
	return info, nil
}

// ParseClientHello decodes a hello payload
func ParseClientHello(payload []byte) (ClientHello, error) {
	var hello ClientHello
	if err := json.Unmarshal(payload, &hello); err != nil {
		return hello, fmt.Errorf("failed to parse client hello: %w", err)
	}
	return hello, nil
}
