// ABOUTME: Audio decoder package for multiple codec support
// ABOUTME: Provides Decoder interface and implementations for Opus, PCM and MP3
// Package decode provides audio decoders for network chunks.
//
// Supports: Opus (libopus or pure-Go pion), PCM (16-bit and 24-bit), MP3
//
// All decoders implement the Decoder interface and output one float32
// slice per channel, samples in [-1, 1], at the stream's sample rate.
//
// Example:
//
//	decoder, err := decode.New(format, decode.BackendLibopus)
//	block, err := decoder.Decode(chunk)
package decode
