// ABOUTME: Message transport interface with a swappable inbound handler
// ABOUTME: Lets a consumer borrow a connection and later restore its previous handler
package transport

// Handler receives one inbound message. The slice is owned by the handler.
type Handler func(msg []byte)

// Transport delivers inbound messages, in arrival order, to its current handler.
type Transport interface {
	// Handler returns the currently installed handler, possibly nil
	Handler() Handler

	// SetHandler replaces the handler; nil drops messages
	SetHandler(h Handler)

	// Close shuts the connection down
	Close() error
}
