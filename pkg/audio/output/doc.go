// ABOUTME: Audio output package for playing audio
// ABOUTME: Provides the pull-driven Device interface and its backends
// Package output provides pull-driven audio playback devices.
//
// A Device calls a registered PullFunc whenever it needs the next block,
// always with the registered channel count and block size. Backends:
//
//   - malgo (miniaudio, default)
//   - oto
//   - beep speaker (stereo)
//   - portaudio (build with -tags portaudio)
//   - null: a Virtual device ticked by a wall clock or by tests
//
// Example:
//
//	dev, err := output.New("malgo", 48000)
//	dev.Gain().Connect()
//	err = dev.Register(2, 4096, func(out [][]float32) { ... })
//	...
//	dev.Unregister()
//	dev.Close()
package output
