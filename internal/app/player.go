// ABOUTME: Main player application orchestration
// ABOUTME: Wires discovery, transport, decoder, output device, playout controller and TUI
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/wsaudio/wsaudio-go/internal/config"
	"github.com/wsaudio/wsaudio-go/internal/discovery"
	"github.com/wsaudio/wsaudio-go/internal/ui"
	"github.com/wsaudio/wsaudio-go/internal/version"
	"github.com/wsaudio/wsaudio-go/pkg/audio"
	"github.com/wsaudio/wsaudio-go/pkg/audio/decode"
	"github.com/wsaudio/wsaudio-go/pkg/audio/output"
	"github.com/wsaudio/wsaudio-go/pkg/playout"
	"github.com/wsaudio/wsaudio-go/pkg/protocol"
	"github.com/wsaudio/wsaudio-go/pkg/transport"
)

// streamInfoTimeout bounds the wait for the relay's stream info
const streamInfoTimeout = 3 * time.Second

// ErrFormatMismatch is reported when the relay streams a different format
// than configured. The relay's format wins.
var ErrFormatMismatch = errors.New("stream format mismatch")

// ErrConnectionLost is returned by Run when the relay goes away
var ErrConnectionLost = errors.New("connection to relay lost")

// DeviceFactory opens an output device
type DeviceFactory func(backend string, sampleRate int) (output.Device, error)

// Option configures a Player
type Option func(*Player)

// WithDeviceFactory replaces output.New
func WithDeviceFactory(f DeviceFactory) Option {
	return func(p *Player) { p.newDevice = f }
}

// WithRegistry registers player metrics on reg
func WithRegistry(reg *prometheus.Registry) Option {
	return func(p *Player) { p.registry = reg }
}

// WithErrorHandler receives asynchronous errors
func WithErrorHandler(fn func(error)) Option {
	return func(p *Player) { p.onError = fn }
}

// WithLogger sets the logger
func WithLogger(log logrus.FieldLogger) Option {
	return func(p *Player) { p.log = log }
}

// Player represents the main player application
type Player struct {
	cfg       *config.Config
	log       logrus.FieldLogger
	registry  *prometheus.Registry
	newDevice DeviceFactory
	onError   func(error)

	volumeCtrl *ui.VolumeControl
	tuiProg    *tea.Program

	mu   sync.Mutex
	ctrl *playout.Controller
}

// New creates a new player
func New(cfg *config.Config, opts ...Option) *Player {
	p := &Player{
		cfg:       cfg,
		newDevice: output.New,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.log == nil {
		p.log = logrus.WithField("component", "player")
	}
	if p.registry == nil {
		p.registry = prometheus.NewRegistry()
	}
	return p
}

// Name returns the configured player name or a hostname-based default
func (p *Player) Name() string {
	if p.cfg.Player.Name != "" {
		return p.cfg.Player.Name
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return hostname + "-wsaudio-player"
}

// Stats returns the controller counters while playing
func (p *Player) Stats() (playout.Stats, bool) {
	p.mu.Lock()
	ctrl := p.ctrl
	p.mu.Unlock()

	if ctrl == nil {
		return playout.Stats{}, false
	}
	return ctrl.Stats(), true
}

// Run connects to a relay and plays until ctx is done, the user quits or
// the connection drops.
func (p *Player) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if p.cfg.TUI.Enabled {
		p.volumeCtrl = ui.NewVolumeControl()
		p.tuiProg = ui.Run(p.volumeCtrl)
		go func() {
			if _, err := p.tuiProg.Run(); err != nil {
				p.log.WithError(err).Error("TUI exited")
			}
			cancel()
		}()
		defer p.tuiProg.Quit()
	}

	if p.cfg.Metrics.Listen != "" {
		stop := p.serveMetrics()
		defer stop()
	}

	url, err := p.resolveServer(ctx)
	if err != nil {
		return err
	}
	p.updateTUI(ui.StatusMsg{State: "connecting"})

	infoCh := make(chan protocol.StreamInfo, 1)
	ws, err := transport.Dial(ctx, url,
		transport.WithLogger(p.log),
		transport.WithHandler(p.controlHandler(infoCh)))
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}

	connected := true
	p.updateTUI(ui.StatusMsg{Connected: &connected, ServerName: url})
	p.log.WithField("url", url).Info("Connected to relay")

	hello := protocol.ClientHello{
		ClientID: uuid.New().String(),
		Name:     p.Name(),
		Version:  version.UserAgent(),
	}
	if err := ws.SendJSON(protocol.KindHello, hello); err != nil {
		_ = ws.Close()
		return fmt.Errorf("failed to send hello: %w", err)
	}

	format := p.negotiateFormat(ctx, infoCh)

	dec, err := decode.New(format, p.cfg.Codec.Decoder)
	if err != nil {
		_ = ws.Close()
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	defer dec.Close()

	device, err := p.newDevice(p.cfg.Output.Backend, p.cfg.Output.SampleRate)
	if err != nil {
		_ = ws.Close()
		return fmt.Errorf("failed to open output: %w", err)
	}
	defer device.Close()

	pc := p.cfg.PlayoutConfig()
	pc.SampleRate = format.SampleRate
	pc.Channels = format.Channels

	ctrl, err := playout.New(pc, dec, device,
		playout.WithTransport(ws, true),
		playout.WithLogger(p.log.WithField("component", "playout")),
		playout.WithMetrics(playout.NewMetrics(p.registry)),
		playout.WithErrorHandler(p.reportError))
	if err != nil {
		_ = ws.Close()
		return err
	}
	if err := ctrl.Start(); err != nil {
		_ = ctrl.Stop()
		return fmt.Errorf("failed to start playout: %w", err)
	}
	defer func() {
		p.mu.Lock()
		p.ctrl = nil
		p.mu.Unlock()
		if err := ctrl.Stop(); err != nil {
			p.log.WithError(err).Warn("Error stopping playout")
		}
		p.log.Info("Player stopped")
	}()

	p.mu.Lock()
	p.ctrl = ctrl
	p.mu.Unlock()

	if v, ok := device.(*output.Virtual); ok {
		go func() {
			if err := v.RunClock(ctx); err != nil && !errors.Is(err, context.Canceled) {
				p.log.WithError(err).Warn("Virtual clock stopped")
			}
		}()
	}

	p.updateTUI(ui.StatusMsg{
		State:      "playing",
		Codec:      format.Codec,
		SampleRate: format.SampleRate,
		Channels:   format.Channels,
		DeviceRate: device.SampleRate(),
		Backend:    p.cfg.Output.Backend,
	})

	return p.loop(ctx, ctrl, ws)
}

// loop handles volume changes and stats until shutdown
func (p *Player) loop(ctx context.Context, ctrl *playout.Controller, ws *transport.WebSocket) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	var changes <-chan ui.VolumeChangeMsg
	var quit <-chan ui.QuitMsg
	if p.volumeCtrl != nil {
		changes = p.volumeCtrl.Changes
		quit = p.volumeCtrl.Quit
	}

	for {
		select {
		case <-ctx.Done():
			p.log.Info("Shutdown requested")
			return nil
		case <-quit:
			p.log.Info("Received quit signal from TUI")
			return nil
		case <-ws.Done():
			disconnected := false
			p.updateTUI(ui.StatusMsg{Connected: &disconnected, State: "disconnected"})
			if err := ws.Err(); err != nil {
				return fmt.Errorf("%w: %w", ErrConnectionLost, err)
			}
			return ErrConnectionLost
		case change := <-changes:
			p.log.WithFields(logrus.Fields{"volume": change.Volume, "muted": change.Muted}).Debug("Volume change")
			if err := ctrl.SetVolume(change.Gain()); err != nil {
				p.reportError(err)
			}
		case <-ticker.C:
			p.publishStats(ctrl.Stats())
		}
	}
}

// controlHandler handles every non-audio message for the life of the
// connection. Audio arriving before playout starts is dropped.
func (p *Player) controlHandler(infoCh chan<- protocol.StreamInfo) transport.Handler {
	return func(msg []byte) {
		kind, payload, err := protocol.Decode(msg)
		if err != nil {
			p.log.WithError(err).Debug("Ignoring malformed message")
			return
		}

		switch kind {
		case protocol.KindStreamInfo:
			info, err := protocol.ParseStreamInfo(payload)
			if err != nil {
				p.reportError(err)
				return
			}
			select {
			case infoCh <- info:
			default:
				p.log.WithField("format", info.Format().String()).Warn("Stream format changed mid-stream, ignoring")
			}
		case protocol.KindAudio:
		default:
			p.log.WithField("kind", kind.String()).Debug("Ignoring message")
		}
	}
}

// negotiateFormat waits briefly for stream info and returns the format to
// decode. A relay format that differs from the configured one is reported
// and used.
func (p *Player) negotiateFormat(ctx context.Context, infoCh <-chan protocol.StreamInfo) audio.Format {
	want := p.cfg.StreamFormat()

	timer := time.NewTimer(streamInfoTimeout)
	defer timer.Stop()

	select {
	case info := <-infoCh:
		got := info.Format()
		if got.BitDepth == 0 {
			got.BitDepth = want.BitDepth
		}
		if !strings.EqualFold(got.Codec, want.Codec) || got.SampleRate != want.SampleRate || got.Channels != want.Channels {
			p.reportError(fmt.Errorf("%w: configured %s, relay sends %s", ErrFormatMismatch, want, got))
		}
		p.log.WithFields(logrus.Fields{"stream": info.Name, "format": got.String()}).Info("Stream info received")
		return got
	case <-timer.C:
		p.log.WithField("format", want.String()).Warn("No stream info from relay, using configured format")
	case <-ctx.Done():
	}
	return want
}

// resolveServer returns the websocket URL from config or mDNS
func (p *Player) resolveServer(ctx context.Context) (string, error) {
	if addr := p.cfg.Server.Address; addr != "" {
		return serverURL(addr, p.cfg.Server.Path), nil
	}
	if !p.cfg.Discovery.Enabled {
		return "", errors.New("no server address configured and discovery disabled")
	}

	p.updateTUI(ui.StatusMsg{State: "discovering"})
	p.log.Info("Starting relay discovery")

	mgr := discovery.NewManager(discovery.Config{ServiceName: p.Name(), Logger: p.log})
	defer mgr.Stop()

	server, err := mgr.WaitForServer(ctx, p.cfg.Discovery.Timeout)
	if err != nil {
		return "", fmt.Errorf("discovery failed: %w", err)
	}
	return server.URL(), nil
}

// serverURL accepts ws:// and wss:// URLs or a bare host:port
func serverURL(addr, path string) string {
	if strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://") {
		return addr
	}
	if path == "" {
		path = "/ws"
	}
	return "ws://" + addr + path
}

func (p *Player) serveMetrics() func() {
	p.registry.MustRegister(collectors.NewGoCollector())

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: p.cfg.Metrics.Listen, Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			p.log.WithError(err).Error("Metrics server failed")
		}
	}()
	p.log.WithField("addr", p.cfg.Metrics.Listen).Info("Serving metrics")

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func (p *Player) publishStats(stats playout.Stats) {
	if p.tuiProg == nil {
		return
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	p.updateTUI(ui.StatusMsg{
		Stats: &ui.PlayoutStats{
			Chunks:       stats.Chunks,
			DecodeErrors: stats.DecodeErrors,
			Ticks:        stats.Ticks,
			Underflows:   stats.Underflows,
			Dropped:      stats.SamplesDropped,
			Buffered:     stats.Buffered,
		},
		Goroutines: runtime.NumGoroutine(),
		MemAlloc:   m.Alloc,
		MemSys:     m.Sys,
	})
}

func (p *Player) updateTUI(msg ui.StatusMsg) {
	if p.tuiProg != nil {
		p.tuiProg.Send(msg)
	}
}

func (p *Player) reportError(err error) {
	p.log.WithError(err).Warn("Player error")
	if p.onError != nil {
		p.onError(err)
	}
}
