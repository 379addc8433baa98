// ABOUTME: Audio encoder package for encoding blocks to wire chunks
// ABOUTME: Provides Encoder interface and implementations for PCM, Opus
// Package encode provides audio encoders used by the relay.
//
// Supports: Opus (libopus) and PCM (16-bit and 24-bit little endian)
//
// Encoders accept one float32 slice per channel and produce one chunk per
// call.
//
// Example:
//
//	encoder, err := encode.New(format, encode.Options{Application: 2049})
//	packet, err := encoder.Encode(block)
package encode
