// ABOUTME: WSAudio wire protocol package
// ABOUTME: Defines message framing shared by relay and player
// Package protocol implements the WSAudio wire framing.
//
// Every websocket message starts with a kind byte and a space:
// "O " carries one encoded audio chunk, "T " the relay's stream info as
// JSON, "H " a player hello. "P ", "S ", "F " and "W " carry radio
// panadapter, slice, FFT and waterfall data for other consumers.
//
// Example:
//
//	msg := protocol.Encode(protocol.KindAudio, packet)
//	kind, payload, err := protocol.Decode(msg)
package protocol
