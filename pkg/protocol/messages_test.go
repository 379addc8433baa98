// ABOUTME: Tests for WSAudio message framing
// ABOUTME: Verifies prefix encoding, decoding and JSON payloads
package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wsaudio/wsaudio-go/pkg/audio"
)

func TestEncodeDecode(t *testing.T) {
	msg := Encode(KindAudio, []byte{1, 2, 3})
	assert.Equal(t, []byte{'O', ' ', 1, 2, 3}, msg)

	kind, payload, err := Decode(msg)
	require.NoError(t, err)
	assert.Equal(t, KindAudio, kind)
	assert.Equal(t, []byte{1, 2, 3}, payload)
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		msg  []byte
		want error
	}{
		{"empty", nil, ErrShortMessage},
		{"one byte", []byte{'O'}, ErrShortMessage},
		{"no separator", []byte{'O', 'x', 1}, ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Decode(tt.msg)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDecodeEmptyPayload(t *testing.T) {
	kind, payload, err := Decode([]byte("P "))
	require.NoError(t, err)
	assert.Equal(t, KindPanadapter, kind)
	assert.Empty(t, payload)
}

func TestStreamInfoRoundTrip(t *testing.T) {
	info := StreamInfo{Name: "shack", Codec: "opus", SampleRate: 24000, Channels: 2, FrameDurationMs: 10}

	msg, err := EncodeJSON(KindStreamInfo, info)
	require.NoError(t, err)

	kind, payload, err := Decode(msg)
	require.NoError(t, err)
	assert.Equal(t, KindStreamInfo, kind)

	got, err := ParseStreamInfo(payload)
	require.NoError(t, err)
	assert.Equal(t, info, got)
	assert.Equal(t, audio.Format{Codec: "opus", SampleRate: 24000, Channels: 2}, got.Format())
}

func TestParseErrors(t *testing.T) {
	_, err := ParseStreamInfo([]byte("{"))
	assert.Error(t, err)
	_, err = ParseClientHello([]byte("nope"))
	assert.Error(t, err)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "audio", KindAudio.String())
	assert.Equal(t, "waterfall", KindWaterfall.String())
	assert.Contains(t, Kind('Z').String(), "unknown")
}
