// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format, Block types and sample conversion functions
// Package audio provides the audio types shared by the decoder, resampler,
// playout buffer and output devices.
//
//   - Format: describes an audio stream (codec, sample rate, channels, bit depth)
//   - Block: one run of decoded samples, one float32 slice per channel
//
// Samples are float32 in [-1, 1]. Conversion helpers cover 16-bit and
// packed 24-bit little-endian PCM.
//
// Example:
//
//	format := audio.Format{Codec: "opus", SampleRate: 24000, Channels: 2}
//	block := audio.Deinterleave(interleaved, format.Channels)
//	if err := block.Validate(format.Channels); err != nil {
//	    return err
//	}
package audio
