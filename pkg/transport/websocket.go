// ABOUTME: WebSocket transport for WSAudio streams
// ABOUTME: Handles connection, the read loop and handler dispatch
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/wsaudio/wsaudio-go/pkg/protocol"
)

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 10 * time.Second
)

// ErrClosed is returned when sending on a closed transport
var ErrClosed = errors.New("transport: closed")

// Option configures a WebSocket
type Option func(*WebSocket)

// WithHandler installs the handler before the read loop starts, so no
// message is dropped between dial and SetHandler.
func WithHandler(h Handler) Option {
	return func(w *WebSocket) { w.SetHandler(h) }
}

// WithLogger sets the logger
func WithLogger(log logrus.FieldLogger) Option {
	return func(w *WebSocket) { w.log = log }
}

// WebSocket is a Transport over a gorilla websocket connection. A single
// goroutine reads messages and calls the current handler.
type WebSocket struct {
	conn    *websocket.Conn
	handler atomic.Pointer[Handler]
	log     logrus.FieldLogger

	writeMu sync.Mutex

	closeOnce sync.Once
	closed    atomic.Bool
	done      chan struct{}
	err       error
}

// Dial connects to a websocket server and starts reading
func Dial(ctx context.Context, url string, opts ...Option) (*WebSocket, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	return New(conn, opts...), nil
}

// New wraps an established connection and starts reading
func New(conn *websocket.Conn, opts ...Option) *WebSocket {
	w := &WebSocket{
		conn: conn,
		log:  logrus.WithField("component", "transport"),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.log = w.log.WithField("remote", conn.RemoteAddr().String())

	go w.readMessages()
	return w
}

// Handler returns the current handler
func (w *WebSocket) Handler() Handler {
	if h := w.handler.Load(); h != nil {
		return *h
	}
	return nil
}

// SetHandler replaces the current handler
func (w *WebSocket) SetHandler(h Handler) {
	if h == nil {
		w.handler.Store(nil)
		return
	}
	w.handler.Store(&h)
}

// readMessages reads and dispatches incoming messages until the connection fails
func (w *WebSocket) readMessages() {
	defer close(w.done)

	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			if !w.closed.Load() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				w.log.WithError(err).Warn("Read error")
			}
			w.err = err
			return
		}

		if messageType != websocket.BinaryMessage && messageType != websocket.TextMessage {
			continue
		}

		h := w.Handler()
		if h == nil {
			w.log.WithField("size", len(data)).Debug("No handler installed, dropping message")
			continue
		}
		h(data)
	}
}

// Send frames and writes one binary message
func (w *WebSocket) Send(kind protocol.Kind, payload []byte) error {
	if w.closed.Load() {
		return ErrClosed
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	w.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := w.conn.WriteMessage(websocket.BinaryMessage, protocol.Encode(kind, payload)); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	return nil
}

// SendJSON frames and writes one JSON payload
func (w *WebSocket) SendJSON(kind protocol.Kind, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", kind, err)
	}
	return w.Send(kind, payload)
}

// Done is closed when the read loop exits
func (w *WebSocket) Done() <-chan struct{} {
	return w.done
}

// Err returns the error that ended the read loop, once Done is closed
func (w *WebSocket) Err() error {
	select {
	case <-w.done:
		return w.err
	default:
		return nil
	}
}

// Close closes the connection. It does not wait for the read loop, so it
// is safe to call from a handler.
func (w *WebSocket) Close() error {
	var err error
	w.closeOnce.Do(func() {
		w.closed.Store(true)

		w.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		w.writeMu.Unlock()

		err = w.conn.Close()
		w.log.Info("Connection closed")
	})
	return err
}
