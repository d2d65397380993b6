// ABOUTME: mDNS service discovery for FruityPi lights
// ABOUTME: Listeners advertise _fruitypi._udp, visualizers browse for them
package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/rs/zerolog"
)

// ServiceType is the mDNS service listeners advertise
const ServiceType = "_fruitypi._udp"

// DefaultBrowseTimeout is how long one mDNS query waits for answers
const DefaultBrowseTimeout = 3 * time.Second

// Config holds discovery configuration
type Config struct {
	ServiceName string
	Port        int
	// Text records published by Advertise, e.g. "ws=/fruitypi"
	Text   []string
	Logger zerolog.Logger
}

// Manager handles mDNS operations
type Manager struct {
	config  Config
	log     zerolog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	servers chan *ServerInfo
	wg      sync.WaitGroup
}

// ServerInfo describes a discovered listener
type ServerInfo struct {
	Name string
	Host string
	Port int
	Text []string
}

// Addr returns "host:port"
func (s *ServerInfo) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// TextValue looks up key in the text records ("key=value")
func (s *ServerInfo) TextValue(key string) (string, bool) {
	for _, kv := range s.Text {
		if k, v, ok := strings.Cut(kv, "="); ok && k == key {
			return v, true
		}
	}
	return "", false
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		config:  config,
		log:     config.Logger.With().Str("component", "discovery").Logger(),
		ctx:     ctx,
		cancel:  cancel,
		servers: make(chan *ServerInfo, 10),
	}
}

// Advertise publishes this listener via mDNS until Stop
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
		m.config.Text,
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	m.log.Info().
		Str("service", m.config.ServiceName).
		Int("port", m.config.Port).
		Str("type", ServiceType).
		Msg("Advertising mDNS service")

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		<-m.ctx.Done()
		if err := server.Shutdown(); err != nil {
			m.log.Debug().Err(err).Msg("mDNS server shutdown failed")
		}
	}()

	return nil
}

// Browse starts searching for listeners; results arrive on Servers
func (m *Manager) Browse() error {
	m.wg.Add(1)
	go m.browseLoop()
	return nil
}

// browseLoop repeats mDNS queries until Stop
func (m *Manager) browseLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 10)
		forwarded := make(chan struct{})

		go func() {
			defer close(forwarded)
			for entry := range entries {
				server := entryToServer(entry)
				if server == nil {
					continue
				}

				m.log.Debug().Str("name", server.Name).Str("addr", server.Addr()).Msg("Discovered listener")

				select {
				case m.servers <- server:
				case <-m.ctx.Done():
				}
			}
		}()

		params := mdns.DefaultParams(ServiceType)
		params.Timeout = DefaultBrowseTimeout
		params.Entries = entries
		params.DisableIPv6 = true

		if err := mdns.QueryContext(m.ctx, params); err != nil && m.ctx.Err() == nil {
			m.log.Debug().Err(err).Msg("mDNS query failed")
		}
		close(entries)
		<-forwarded

		select {
		case <-m.ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

// entryToServer converts an mDNS answer, skipping entries without IPv4
func entryToServer(entry *mdns.ServiceEntry) *ServerInfo {
	if entry == nil || entry.AddrV4 == nil {
		return nil
	}
	return &ServerInfo{
		Name: strings.TrimSuffix(entry.Name, "."+ServiceType+".local."),
		Host: entry.AddrV4.String(),
		Port: entry.Port,
		Text: entry.InfoFields,
	}
}

// Servers returns the channel of discovered listeners
func (m *Manager) Servers() <-chan *ServerInfo {
	return m.servers
}

// FindFirst browses until one listener answers or ctx ends
func FindFirst(ctx context.Context, log zerolog.Logger) (*ServerInfo, error) {
	m := NewManager(Config{Logger: log})
	if err := m.Browse(); err != nil {
		return nil, err
	}
	defer m.Stop()

	select {
	case s := <-m.Servers():
		return s, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("no FruityPi listener found: %w", ctx.Err())
	}
}

// Stop stops advertising and browsing and waits for both to wind down
func (m *Manager) Stop() {
	m.cancel()
	m.wg.Wait()
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
