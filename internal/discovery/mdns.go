// ABOUTME: mDNS service discovery for WSAudio relays
// ABOUTME: Relays advertise _wsaudio._tcp; players browse for them
package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/sirupsen/logrus"
)

// ServiceType is the DNS-SD service type of a relay
const ServiceType = "_wsaudio._tcp"

// queryTimeout bounds one mDNS query round
const queryTimeout = 3 * time.Second

// Config holds discovery configuration
type Config struct {
	ServiceName string
	Port        int
	// Path is the websocket path advertised in the TXT record
	Path   string
	Logger logrus.FieldLogger
}

// Manager handles mDNS operations
type Manager struct {
	config  Config
	log     logrus.FieldLogger
	ctx     context.Context
	cancel  context.CancelFunc
	servers chan *ServerInfo
}

// ServerInfo describes a discovered relay
type ServerInfo struct {
	Name string
	Host string
	Port int
	Path string
}

// Address returns host:port
func (s *ServerInfo) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// URL returns the websocket URL of the relay
func (s *ServerInfo) URL() string {
	path := s.Path
	if path == "" {
		path = "/ws"
	}
	return "ws://" + s.Address() + path
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	log := config.Logger
	if log == nil {
		log = logrus.WithField("component", "discovery")
	}

	return &Manager{
		config:  config,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		servers: make(chan *ServerInfo, 10),
	}
}

// Advertise announces a relay on the local network until Stop
func (m *Manager) Advertise() error {
	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(
		m.config.ServiceName,
		ServiceType,
		"",
		"",
		m.config.Port,
		ips,
		[]string{"path=" + m.config.Path},
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	m.log.WithFields(logrus.Fields{
		"name": m.config.ServiceName,
		"port": m.config.Port,
		"type": ServiceType,
	}).Info("Advertising mDNS service")

	go func() {
		<-m.ctx.Done()
		_ = server.Shutdown()
	}()

	return nil
}

// Browse searches for relays in the background; results arrive on Servers
func (m *Manager) Browse() {
	go m.browseLoop()
}

func (m *Manager) browseLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 10)
		done := make(chan struct{})

		go func() {
			defer close(done)
			for entry := range entries {
				server := serverFromEntry(entry)
				if server == nil {
					continue
				}

				m.log.WithFields(logrus.Fields{
					"name": server.Name,
					"addr": server.Address(),
				}).Info("Discovered relay")

				select {
				case m.servers <- server:
				case <-m.ctx.Done():
				}
			}
		}()

		params := &mdns.QueryParam{
			Service:     ServiceType,
			Domain:      "local",
			Timeout:     queryTimeout,
			Entries:     entries,
			DisableIPv6: true,
		}

		if err := mdns.Query(params); err != nil {
			m.log.WithError(err).Debug("mDNS query failed")
			select {
			case <-time.After(time.Second):
			case <-m.ctx.Done():
			}
		}
		close(entries)
		<-done
	}
}

// Servers returns the channel of discovered relays
func (m *Manager) Servers() <-chan *ServerInfo {
	return m.servers
}

// WaitForServer browses until a relay is found, ctx ends or timeout elapses
func (m *Manager) WaitForServer(ctx context.Context, timeout time.Duration) (*ServerInfo, error) {
	m.Browse()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case server := <-m.servers:
		return server, nil
	case <-timer.C:
		return nil, fmt.Errorf("no relay found after %s", timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop stops advertising and browsing
func (m *Manager) Stop() {
	m.cancel()
}

// serverFromEntry converts a query result, skipping entries without an IPv4 address
func serverFromEntry(entry *mdns.ServiceEntry) *ServerInfo {
	if entry == nil || entry.AddrV4 == nil {
		return nil
	}

	server := &ServerInfo{
		Name: strings.TrimSuffix(entry.Name, "."+ServiceType+".local."),
		Host: entry.AddrV4.String(),
		Port: entry.Port,
	}
	for _, field := range entry.InfoFields {
		if path, ok := strings.CutPrefix(field, "path="); ok {
			server.Path = path
		}
	}
	return server
}

// getLocalIPs returns local IP addresses
func getLocalIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					ips = append(ips, ipnet.IP)
				}
			}
		}
	}

	return ips, nil
}
