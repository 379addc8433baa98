// ABOUTME: Tests for player application orchestration
// ABOUTME: Plays an in-process relay through a virtual output device
package app

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wsaudio/wsaudio-go/internal/config"
	"github.com/wsaudio/wsaudio-go/internal/relay"
	"github.com/wsaudio/wsaudio-go/pkg/audio"
	"github.com/wsaudio/wsaudio-go/pkg/audio/output"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	v := viper.New()
	config.SetDefaults(v)
	var cfg config.Config
	require.NoError(t, v.Unmarshal(&cfg))

	cfg.Codec.Name = "pcm"
	cfg.Codec.BufferSize = 480
	cfg.Output.Backend = output.BackendNull
	cfg.Output.SampleRate = 24000
	cfg.TUI.Enabled = false
	cfg.Discovery.Enabled = false
	return &cfg
}

func startRelay(t *testing.T, format audio.Format) string {
	t.Helper()
	s, err := relay.New(relay.Config{Format: format}, relay.NewToneSource(440, 24000, 2),
		relay.WithRegistry(prometheus.NewRegistry()))
	require.NoError(t, err)

	ts := httptest.NewServer(s.Handler())
	ctx, cancel := context.WithCancel(context.Background())
	go s.Stream(ctx)
	t.Cleanup(func() {
		cancel()
		ts.Close()
	})
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

type errorLog struct {
	mu   sync.Mutex
	errs []error
}

func (l *errorLog) add(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs = append(l.errs, err)
}

func (l *errorLog) has(target error) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, err := range l.errs {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func TestPlayerPlaysRelayStream(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Address = startRelay(t, audio.Format{Codec: "pcm", SampleRate: 24000, Channels: 2, BitDepth: 16})

	errs := &errorLog{}
	p := New(cfg, WithErrorHandler(errs.add))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool {
		stats, ok := p.Stats()
		return ok && stats.Chunks > 10 && stats.SamplesRead > 0
	}, 5*time.Second, 10*time.Millisecond)

	stats, _ := p.Stats()
	assert.Zero(t, stats.DecodeErrors)
	assert.False(t, errs.has(ErrFormatMismatch))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	_, ok := p.Stats()
	assert.False(t, ok)
}

func TestPlayerAdoptsRelayFormat(t *testing.T) {
	cfg := testConfig(t)
	cfg.Codec.Name = "opus"
	cfg.Server.Address = startRelay(t, audio.Format{Codec: "pcm", SampleRate: 24000, Channels: 1, BitDepth: 16})

	errs := &errorLog{}
	p := New(cfg, WithErrorHandler(errs.add))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool {
		stats, ok := p.Stats()
		return ok && stats.Chunks > 0
	}, 5*time.Second, 10*time.Millisecond)
	assert.True(t, errs.has(ErrFormatMismatch))

	stats, _ := p.Stats()
	assert.Zero(t, stats.DecodeErrors)

	cancel()
	<-done
}

func TestPlayerDialFailure(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Address = "127.0.0.1:1"

	err := New(cfg).Run(context.Background())
	assert.ErrorContains(t, err, "connection failed")
}

func TestPlayerNeedsServerOrDiscovery(t *testing.T) {
	cfg := testConfig(t)
	err := New(cfg).Run(context.Background())
	assert.ErrorContains(t, err, "discovery disabled")
}

func TestPlayerDeviceFailure(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Address = startRelay(t, audio.Format{Codec: "pcm", SampleRate: 24000, Channels: 2, BitDepth: 16})

	p := New(cfg, WithDeviceFactory(func(string, int) (output.Device, error) {
		return nil, errors.New("no sound card")
	}))
	err := p.Run(context.Background())
	assert.ErrorContains(t, err, "no sound card")
}

func TestServerURL(t *testing.T) {
	tests := []struct {
		addr, path, want string
	}{
		{"relay.local:8283", "/ws", "ws://relay.local:8283/ws"},
		{"10.0.0.5:8283", "", "ws://10.0.0.5:8283/ws"},
		{"ws://relay:1/audio", "/ws", "ws://relay:1/audio"},
		{"wss://relay.example.com/ws", "", "wss://relay.example.com/ws"},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			assert.Equal(t, tt.want, serverURL(tt.addr, tt.path))
		})
	}
}

func TestPlayerName(t *testing.T) {
	cfg := testConfig(t)
	assert.True(t, strings.HasSuffix(New(cfg).Name(), "-wsaudio-player"))

	cfg.Player.Name = "kitchen"
	assert.Equal(t, "kitchen", New(cfg).Name())
}
