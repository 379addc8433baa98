// ABOUTME: Tests for mDNS discovery
// ABOUTME: Covers manager lifecycle and conversion of query results
package discovery

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManager(t *testing.T) {
	mgr := NewManager(Config{ServiceName: "Test Relay", Port: 8283, Path: "/ws"})
	require.NotNil(t, mgr)
	assert.NotNil(t, mgr.Servers())
	mgr.Stop()

	select {
	case <-mgr.ctx.Done():
	default:
		t.Fatal("Stop should cancel the manager context")
	}
}

func TestServerFromEntry(t *testing.T) {
	entry := &mdns.ServiceEntry{
		Name:       "kitchen._wsaudio._tcp.local.",
		AddrV4:     net.ParseIP("192.168.1.20"),
		Port:       8283,
		InfoFields: []string{"path=/audio"},
	}

	server := serverFromEntry(entry)
	require.NotNil(t, server)
	assert.Equal(t, "kitchen", server.Name)
	assert.Equal(t, "192.168.1.20:8283", server.Address())
	assert.Equal(t, "ws://192.168.1.20:8283/audio", server.URL())
}

func TestServerFromEntryWithoutIPv4(t *testing.T) {
	assert.Nil(t, serverFromEntry(nil))
	assert.Nil(t, serverFromEntry(&mdns.ServiceEntry{Name: "x", Port: 1}))
}

func TestServerURLDefaultsPath(t *testing.T) {
	s := &ServerInfo{Host: "10.0.0.1", Port: 8283}
	assert.Equal(t, "ws://10.0.0.1:8283/ws", s.URL())
}

func TestWaitForServerHonoursContext(t *testing.T) {
	mgr := NewManager(Config{})
	defer mgr.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := mgr.WaitForServer(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWaitForServerReturnsQueued(t *testing.T) {
	mgr := NewManager(Config{})
	defer mgr.Stop()

	want := &ServerInfo{Name: "r", Host: "10.0.0.2", Port: 9}
	mgr.servers <- want

	got, err := mgr.WaitForServer(context.Background(), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
