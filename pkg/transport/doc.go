// ABOUTME: Transport package for WSAudio message delivery
// ABOUTME: Provides the Transport interface and a websocket implementation
// Package transport delivers framed messages to a swappable handler.
//
// A consumer that borrows a transport saves the current handler, installs
// its own, and restores the saved one when it is done.
//
// Example:
//
//	ws, err := transport.Dial(ctx, "ws://relay:8283/ws", transport.WithHandler(onMessage))
//	defer ws.Close()
package transport
