// ABOUTME: Playout buffer package reconciling bursty chunks with a fixed pull clock
// ABOUTME: Provides ChannelQueue and the Controller that drives it
// Package playout plays a stream of irregularly arriving encoded chunks
// through a device that pulls fixed-size blocks at a fixed rate.
//
// Each chunk is decoded into one block per channel, resampled to the
// device rate when the rates differ, and appended to one ChannelQueue per
// channel. On every device pull the controller reads exactly one block
// from every channel, or, if any channel holds less than a block, fills
// every channel with silence and leaves the queues untouched. Every
// channel therefore always reads the same number of samples.
//
// Example:
//
//	ctrl, err := playout.New(playout.DefaultConfig(), dec, dev,
//	    playout.WithTransport(ws, true))
//	if err := ctrl.Start(); err != nil { ... }
//	defer ctrl.Stop()
package playout
