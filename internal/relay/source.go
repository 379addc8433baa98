// ABOUTME: Audio sources the relay streams from
// ABOUTME: Test tone generator plus looping MP3 and FLAC file readers
package relay

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/hajimehoshi/go-mp3"
	"github.com/mewkiz/flac"

	"github.com/wsaudio/wsaudio-go/pkg/audio"
)

// Source produces blocks of float32 audio at its native rate
type Source interface {
	// Read returns exactly frames frames
	Read(frames int) (audio.Block, error)
	SampleRate() int
	Channels() int
	// Name describes the source for logs and stream info
	Name() string
	Close() error
}

// Source kinds accepted by NewSource
const (
	SourceTone = "tone"
	SourceFile = "file"
)

// NewSource creates a tone source or, for kind "file", a looping reader
// chosen by extension.
func NewSource(kind, path string, toneHz float64, sampleRate, channels int) (Source, error) {
	switch strings.ToLower(kind) {
	case SourceTone, "":
		return NewToneSource(toneHz, sampleRate, channels), nil
	case SourceFile:
		switch ext := strings.ToLower(filepath.Ext(path)); ext {
		case ".mp3":
			return NewMP3Source(path)
		case ".flac":
			return NewFLACSource(path)
		default:
			return nil, fmt.Errorf("unsupported audio format: %s (supported: .mp3, .flac)", ext)
		}
	default:
		return nil, fmt.Errorf("unknown source: %s", kind)
	}
}

// ToneSource generates a sine wave at half scale on every channel
type ToneSource struct {
	frequency  float64
	sampleRate int
	channels   int
	index      uint64
}

// NewToneSource creates a tone generator
func NewToneSource(frequency float64, sampleRate, channels int) *ToneSource {
	if frequency <= 0 {
		frequency = 440
	}
	return &ToneSource{
		frequency:  frequency,
		sampleRate: sampleRate,
		channels:   channels,
	}
}

func (s *ToneSource) Read(frames int) (audio.Block, error) {
	block := audio.NewBlock(s.channels, frames)
	for i := 0; i < frames; i++ {
		t := float64(s.index+uint64(i)) / float64(s.sampleRate)
		v := float32(0.5 * math.Sin(2*math.Pi*s.frequency*t))
		for ch := range block {
			block[ch][i] = v
		}
	}
	s.index += uint64(frames)
	return block, nil
}

func (s *ToneSource) SampleRate() int { return s.sampleRate }
func (s *ToneSource) Channels() int   { return s.channels }
func (s *ToneSource) Name() string    { return fmt.Sprintf("Test Tone %.0fHz", s.frequency) }
func (s *ToneSource) Close() error    { return nil }

// MP3Source loops an MP3 file. go-mp3 always yields 16-bit stereo.
type MP3Source struct {
	file    *os.File
	decoder *mp3.Decoder
	title   string
	buf     []byte
}

// NewMP3Source opens an MP3 file
func NewMP3Source(path string) (*MP3Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open MP3 file: %w", err)
	}

	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to decode MP3: %w", err)
	}

	return &MP3Source{
		file:    f,
		decoder: decoder,
		title:   titleFromPath(path),
	}, nil
}

func (s *MP3Source) Read(frames int) (audio.Block, error) {
	need := frames * 4
	if cap(s.buf) < need {
		s.buf = make([]byte, need)
	}
	buf := s.buf[:need]

	filled := 0
	rewound := false
	for filled < need {
		n, err := s.decoder.Read(buf[filled:])
		filled += n
		if n > 0 {
			rewound = false
		}
		if errors.Is(err, io.EOF) {
			if rewound {
				return nil, errors.New("mp3 source produced no audio")
			}
			if err := s.rewind(); err != nil {
				return nil, err
			}
			rewound = true
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read MP3: %w", err)
		}
	}

	samples := make([]float32, frames*2)
	for i := range samples {
		samples[i] = audio.Float32FromInt16(int16(binary.LittleEndian.Uint16(buf[i*2:])))
	}
	return audio.Deinterleave(samples, 2), nil
}

func (s *MP3Source) rewind() error {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to start: %w", err)
	}
	decoder, err := mp3.NewDecoder(s.file)
	if err != nil {
		return fmt.Errorf("failed to create new decoder: %w", err)
	}
	s.decoder = decoder
	return nil
}

func (s *MP3Source) SampleRate() int { return s.decoder.SampleRate() }
func (s *MP3Source) Channels() int   { return 2 }
func (s *MP3Source) Name() string    { return s.title }
func (s *MP3Source) Close() error    { return s.file.Close() }

// FLACSource loops a FLAC file
type FLACSource struct {
	file       *os.File
	stream     *flac.Stream
	title      string
	sampleRate int
	channels   int
	scale      float32
	pending    audio.Block
}

// NewFLACSource opens a FLAC file
func NewFLACSource(path string) (*FLACSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open FLAC file: %w", err)
	}

	stream, err := flac.New(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to decode FLAC: %w", err)
	}

	info := stream.Info
	return &FLACSource{
		file:       f,
		stream:     stream,
		title:      titleFromPath(path),
		sampleRate: int(info.SampleRate),
		channels:   int(info.NChannels),
		scale:      float32(int64(1) << (info.BitsPerSample - 1)),
		pending:    make(audio.Block, info.NChannels),
	}, nil
}

func (s *FLACSource) Read(frames int) (audio.Block, error) {
	rewound := false
	for s.pending.Frames() < frames {
		f, err := s.stream.ParseNext()
		if errors.Is(err, io.EOF) {
			if rewound {
				return nil, errors.New("flac source produced no audio")
			}
			if err := s.rewind(); err != nil {
				return nil, err
			}
			rewound = true
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse FLAC frame: %w", err)
		}
		rewound = false

		for ch := 0; ch < s.channels; ch++ {
			for _, v := range f.Subframes[ch].Samples[:f.BlockSize] {
				s.pending[ch] = append(s.pending[ch], float32(v)/s.scale)
			}
		}
	}

	out := audio.NewBlock(s.channels, frames)
	for ch := range out {
		copy(out[ch], s.pending[ch])
		s.pending[ch] = append(s.pending[ch][:0], s.pending[ch][frames:]...)
	}
	return out, nil
}

func (s *FLACSource) rewind() error {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to start: %w", err)
	}
	stream, err := flac.New(s.file)
	if err != nil {
		return fmt.Errorf("failed to create new stream: %w", err)
	}
	s.stream = stream
	return nil
}

func (s *FLACSource) SampleRate() int { return s.sampleRate }
func (s *FLACSource) Channels() int   { return s.channels }
func (s *FLACSource) Name() string    { return s.title }
func (s *FLACSource) Close() error    { return s.file.Close() }

func titleFromPath(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}
