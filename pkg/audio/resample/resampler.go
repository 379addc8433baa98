// ABOUTME: Streaming linear resampler for converting audio sample rates
// ABOUTME: Keeps one frame of history so consecutive blocks join without clicks
package resample

import (
	"fmt"
	"math"

	"github.com/wsaudio/wsaudio-go/pkg/audio"
)

// Resampler performs linear interpolation to convert between sample rates.
// It is stateful and not safe for concurrent use.
type Resampler struct {
	inputRate  int
	outputRate int
	channels   int
	step       float64 // input frames advanced per output frame

	// position of the next output frame, measured from the last frame
	// of the previous block (index 0 once primed)
	position float64
	last     []float32
	primed   bool
}

// Needed reports whether a conversion stage is required at all
func Needed(inputRate, outputRate int) bool {
	return inputRate != outputRate
}

// New creates a new resampler
func New(inputRate, outputRate, channels int) (*Resampler, error) {
	if inputRate <= 0 || outputRate <= 0 {
		return nil, fmt.Errorf("invalid sample rates: %d -> %d", inputRate, outputRate)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("invalid channel count: %d", channels)
	}

	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		channels:   channels,
		step:       float64(inputRate) / float64(outputRate),
		last:       make([]float32, channels),
	}, nil
}

// InputRate returns the rate blocks are expected at
func (r *Resampler) InputRate() int { return r.inputRate }

// OutputRate returns the rate blocks are converted to
func (r *Resampler) OutputRate() int { return r.outputRate }

// Convert resamples one block. Channel count and order are preserved and
// every output channel has the same length. The returned block is newly
// allocated and owned by the caller.
func (r *Resampler) Convert(block audio.Block) (audio.Block, error) {
	if err := block.Validate(r.channels); err != nil {
		return nil, err
	}

	frames := block.Frames()
	if frames == 0 {
		return audio.NewBlock(r.channels, 0), nil
	}

	// Virtual input is the previous block's last frame followed by this block
	offset := 0
	if r.primed {
		offset = 1
	}
	lastIdx := float64(frames + offset - 1)

	count := 0
	if r.position <= lastIdx {
		count = int(math.Floor((lastIdx-r.position)/r.step)) + 1
	}

	out := audio.NewBlock(r.channels, count)
	for ch := 0; ch < r.channels; ch++ {
		in := block[ch]
		prev := r.last[ch]
		at := func(i int) float32 {
			if i < offset {
				return prev
			}
			return in[i-offset]
		}

		dst := out[ch]
		pos := r.position
		for k := 0; k < count; k++ {
			i := int(pos)
			frac := pos - float64(i)
			if frac == 0 || i+1 >= frames+offset {
				dst[k] = at(i)
			} else {
				s1 := at(i)
				s2 := at(i + 1)
				dst[k] = s1 + (s2-s1)*float32(frac)
			}
			pos += r.step
		}
		r.last[ch] = in[frames-1]
	}

	r.position += float64(count)*r.step - lastIdx
	r.primed = true

	return out, nil
}

// Reset clears history so the next block starts a new stream
func (r *Resampler) Reset() {
	r.position = 0
	r.primed = false
	for i := range r.last {
		r.last[i] = 0
	}
}

// OutputFramesNeeded estimates how many output frames an input run produces
func (r *Resampler) OutputFramesNeeded(inputFrames int) int {
	return int(math.Ceil(float64(inputFrames) / r.step))
}

// InputFramesNeeded estimates how many input frames are needed for an output run
func (r *Resampler) InputFramesNeeded(outputFrames int) int {
	return int(math.Ceil(float64(outputFrames) * r.step))
}
