// ABOUTME: Audio resampling package using linear interpolation
// ABOUTME: Converts per-channel blocks between sample rates in a stream
// Package resample provides audio sample rate conversion.
//
// The Resampler is streaming: it keeps the last frame of each channel and
// the fractional read position, so a stream split into arbitrary blocks
// produces the same output as the stream converted in one piece.
//
// Example:
//
//	if resample.Needed(24000, 48000) {
//	    r, err := resample.New(24000, 48000, 2)
//	    ...
//	    out, err := r.Convert(block)
//	}
package resample
