// ABOUTME: Websocket relay that encodes a source and broadcasts it to players
// ABOUTME: Serves /ws, /metrics and optional static files; advertises over mDNS
package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/wsaudio/wsaudio-go/internal/discovery"
	"github.com/wsaudio/wsaudio-go/pkg/audio"
	"github.com/wsaudio/wsaudio-go/pkg/audio/encode"
	"github.com/wsaudio/wsaudio-go/pkg/audio/resample"
	"github.com/wsaudio/wsaudio-go/pkg/playout"
	"github.com/wsaudio/wsaudio-go/pkg/protocol"
)

const (
	sendBufferSize = 64
	writeDeadline  = 10 * time.Second
	pingInterval   = 30 * time.Second
)

// Config configures a relay
type Config struct {
	// Listen is the host:port to serve on
	Listen string
	// Path of the websocket endpoint (default /ws)
	Path string
	// Name is advertised over mDNS and sent in stream info
	Name string
	// StaticDir is served on / when set
	StaticDir string
	// EnableMDNS advertises the relay on the local network
	EnableMDNS bool

	// Format is the encoded stream format
	Format        audio.Format
	FrameDuration time.Duration
	Encoder       encode.Options
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the logger
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Server) { s.log = log }
}

// WithRegistry registers metrics on reg and serves it on /metrics
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) { s.registry = reg }
}

// Server is a websocket audio relay
type Server struct {
	config   Config
	serverID string
	log      logrus.FieldLogger

	source    Source
	encoder   encode.Encoder
	resampler *resample.Resampler
	pending   []*playout.ChannelQueue[float32]
	frameSize int
	info      protocol.StreamInfo

	upgrader websocket.Upgrader
	mux      *http.ServeMux
	registry *prometheus.Registry
	metrics  *Metrics

	chunksSent atomic.Uint64

	clients    map[string]*client
	clientsMu  sync.RWMutex
	isShutdown bool
	wg         sync.WaitGroup
}

type client struct {
	id     string
	remote string
	conn   *websocket.Conn
	send   chan []byte

	mu   sync.Mutex
	name string
}

// ClientInfo describes a connected client
type ClientInfo struct {
	ID     string
	Name   string
	Remote string
}

// New creates a relay streaming source in config.Format
func New(config Config, source Source, opts ...Option) (*Server, error) {
	if source == nil {
		return nil, errors.New("audio source is required")
	}
	if err := config.Format.Validate(); err != nil {
		return nil, fmt.Errorf("invalid stream format: %w", err)
	}
	if config.Path == "" {
		config.Path = "/ws"
	}
	if config.Name == "" {
		config.Name = "WSAudio Relay"
	}
	if config.FrameDuration <= 0 {
		config.FrameDuration = 10 * time.Millisecond
	}

	s := &Server{
		config:   config,
		serverID: uuid.New().String(),
		source:   source,
		mux:      http.NewServeMux(),
		upgrader: websocket.Upgrader{
			// Relays run on the local network and serve browser pages from other origins
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[string]*client),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logrus.WithField("component", "relay")
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}
	s.metrics = NewMetrics(s.registry)

	format := config.Format
	s.frameSize = int(int64(format.SampleRate) * int64(config.FrameDuration) / int64(time.Second))
	if s.frameSize <= 0 {
		return nil, fmt.Errorf("frame duration %s too short for %d Hz", config.FrameDuration, format.SampleRate)
	}

	encoder, err := encode.New(format, config.Encoder)
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}
	s.encoder = encoder

	if resample.Needed(source.SampleRate(), format.SampleRate) {
		s.resampler, err = resample.New(source.SampleRate(), format.SampleRate, format.Channels)
		if err != nil {
			_ = encoder.Close()
			return nil, fmt.Errorf("failed to create resampler: %w", err)
		}
	}

	s.pending = make([]*playout.ChannelQueue[float32], format.Channels)
	for ch := range s.pending {
		s.pending[ch] = playout.NewChannelQueue[float32]()
	}

	s.info = protocol.StreamInfo{
		Name:            source.Name(),
		Codec:           format.Codec,
		SampleRate:      format.SampleRate,
		Channels:        format.Channels,
		BitDepth:        format.BitDepth,
		FrameDurationMs: int(config.FrameDuration / time.Millisecond),
	}

	s.mux.HandleFunc(config.Path, s.handleWebSocket)
	s.mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	if config.StaticDir != "" {
		s.mux.Handle("/", http.FileServer(http.Dir(config.StaticDir)))
	}

	return s, nil
}

// Handler returns the relay's HTTP handler
func (s *Server) Handler() http.Handler {
	return s.mux
}

// StreamInfo returns the message sent to every client on connect
func (s *Server) StreamInfo() protocol.StreamInfo {
	return s.info
}

// Run serves until ctx is cancelled, then shuts down and releases the
// source and encoder.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Listen, err)
	}

	s.log.WithFields(logrus.Fields{
		"name":   s.config.Name,
		"id":     s.serverID,
		"addr":   ln.Addr().String(),
		"source": s.source.Name(),
		"format": s.config.Format.String(),
	}).Info("Relay starting")

	if s.config.EnableMDNS {
		mgr := discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Port:        ln.Addr().(*net.TCPAddr).Port,
			Path:        s.config.Path,
			Logger:      s.log,
		})
		if err := mgr.Advertise(); err != nil {
			s.log.WithError(err).Warn("Failed to start mDNS advertisement")
		}
		defer mgr.Stop()
	}

	streamCtx, stopStream := context.WithCancel(ctx)
	defer stopStream()

	var streamWG sync.WaitGroup
	streamWG.Add(1)
	go func() {
		defer streamWG.Done()
		s.Stream(streamCtx)
	}()

	httpServer := &http.Server{Handler: s.mux}
	errChan := make(chan error, 1)
	go func() {
		if err := httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		s.log.Info("Relay shutting down")
	case runErr = <-errChan:
		s.log.WithError(runErr).Error("HTTP server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.WithError(err).Warn("HTTP server shutdown error")
	}

	stopStream()
	streamWG.Wait()

	s.closeClients()
	s.wg.Wait()

	if err := s.source.Close(); err != nil {
		s.log.WithError(err).Warn("Error closing audio source")
	}
	if err := s.encoder.Close(); err != nil {
		s.log.WithError(err).Warn("Error closing encoder")
	}

	s.log.Info("Relay stopped")
	return runErr
}

// Stream pumps one frame duration of audio per tick until ctx is done.
// Run calls it; it is exported for relays embedded behind another listener.
func (s *Server) Stream(ctx context.Context) {
	ticker := time.NewTicker(s.config.FrameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.pump(); err != nil {
				s.log.WithError(err).Error("Error reading audio source")
			}
		case <-ctx.Done():
			return
		}
	}
}

// pump reads one frame duration from the source and broadcasts every
// complete frame. It returns the number of chunks sent.
func (s *Server) pump() (int, error) {
	frames := int(int64(s.source.SampleRate()) * int64(s.config.FrameDuration) / int64(time.Second))
	block, err := s.source.Read(max(frames, 1))
	if err != nil {
		return 0, err
	}

	block = block.Remix(s.config.Format.Channels)
	if s.resampler != nil {
		if block, err = s.resampler.Convert(block); err != nil {
			return 0, fmt.Errorf("failed to resample: %w", err)
		}
	}
	for ch, q := range s.pending {
		q.Write(block[ch])
	}

	sent := 0
	for s.pending[0].Len() >= s.frameSize {
		frame := audio.NewBlock(len(s.pending), s.frameSize)
		for ch, q := range s.pending {
			_ = q.ReadInto(frame[ch])
		}

		data, err := s.encoder.Encode(frame)
		if err != nil {
			s.metrics.EncodeErrors.Inc()
			s.log.WithError(err).Warn("Encode error")
			continue
		}

		s.broadcast(protocol.Encode(protocol.KindAudio, data))
		s.metrics.Chunks.Inc()
		s.chunksSent.Add(1)
		s.metrics.Bytes.Add(float64(len(data)))
		sent++
	}
	return sent, nil
}

// broadcast queues msg on every client; full buffers drop it
func (s *Server) broadcast(msg []byte) {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for _, c := range s.clients {
		select {
		case c.send <- msg:
		default:
			s.metrics.DroppedSends.Inc()
		}
	}
}

// ChunksSent is the number of chunks broadcast since the relay was created
func (s *Server) ChunksSent() uint64 {
	return s.chunksSent.Load()
}

// Clients returns information about all connected clients
func (s *Server) Clients() []ClientInfo {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	clients := make([]ClientInfo, 0, len(s.clients))
	for _, c := range s.clients {
		c.mu.Lock()
		clients = append(clients, ClientInfo{ID: c.id, Name: c.name, Remote: c.remote})
		c.mu.Unlock()
	}
	return clients
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("WebSocket upgrade error")
		return
	}
	defer conn.Close()

	info, err := protocol.EncodeJSON(protocol.KindStreamInfo, s.info)
	if err != nil {
		s.log.WithError(err).Error("Failed to encode stream info")
		return
	}

	c := &client{
		id:     uuid.New().String(),
		remote: r.RemoteAddr,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
	}
	c.send <- info

	if !s.addClient(c) {
		s.log.Debug("Rejecting connection during shutdown")
		return
	}
	defer s.removeClient(c)

	log := s.log.WithFields(logrus.Fields{"client": c.id, "remote": c.remote})
	log.Info("Client connected")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).Debug("WebSocket read error")
			}
			break
		}
		s.handleClientMessage(c, log, data)
	}

	log.Info("Client disconnected")
}

func (s *Server) handleClientMessage(c *client, log logrus.FieldLogger, data []byte) {
	kind, payload, err := protocol.Decode(data)
	if err != nil {
		log.WithError(err).Debug("Ignoring malformed message")
		return
	}

	switch kind {
	case protocol.KindHello:
		hello, err := protocol.ParseClientHello(payload)
		if err != nil {
			log.WithError(err).Warn("Bad client hello")
			return
		}
		c.mu.Lock()
		c.name = hello.Name
		c.mu.Unlock()
		log.WithFields(logrus.Fields{
			"name":      hello.Name,
			"client_id": hello.ClientID,
			"version":   hello.Version,
		}).Info("Client hello")
	default:
		log.WithField("kind", kind.String()).Debug("Ignoring client message")
	}
}

// addClient registers c and starts its writer; false after shutdown
func (s *Server) addClient(c *client) bool {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()

	if s.isShutdown {
		return false
	}
	s.clients[c.id] = c
	s.metrics.Clients.Inc()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.clientWriter(c)
	}()
	return true
}

func (s *Server) removeClient(c *client) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()

	if _, ok := s.clients[c.id]; !ok {
		return
	}
	delete(s.clients, c.id)
	close(c.send)
	s.metrics.Clients.Dec()
}

// closeClients refuses new clients and closes every connection
func (s *Server) closeClients() {
	s.clientsMu.Lock()
	s.isShutdown = true
	for _, c := range s.clients {
		_ = c.conn.Close()
	}
	s.clientsMu.Unlock()
}

// clientWriter sends queued messages and keepalive pings
func (s *Server) clientWriter(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer c.conn.Close()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second))
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline)); err != nil {
				return
			}
		}
	}
}
