// ABOUTME: mDNS discovery so editors find preview engines on the LAN
// ABOUTME: Engines advertise _previz._tcp; remotes browse for instances
package discovery

import (
	"context"
	"fmt"
	"log"
	"net"
	"strings"
	"time"

	"github.com/hashicorp/mdns"

	"github.com/Previz-Studio/previz-go/internal/protocol"
	"github.com/Previz-Studio/previz-go/internal/version"
)

const serviceType = "_previz._tcp"

// Config holds discovery configuration
type Config struct {
	Name string // engine name to advertise
	Port int
}

// Manager handles mDNS advertisement and browsing
type Manager struct {
	config  Config
	ctx     context.Context
	cancel  context.CancelFunc
	engines chan *EngineInfo
}

// EngineInfo describes a discovered preview engine
type EngineInfo struct {
	Name string
	Host string
	Port int
}

// Addr returns the engine's dialable host:port address
func (e *EngineInfo) Addr() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		config:  config,
		ctx:     ctx,
		cancel:  cancel,
		engines: make(chan *EngineInfo, 10),
	}
}

// Advertise announces this engine via mDNS until Stop
func (m *Manager) Advertise() error {
	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(
		m.config.Name,
		serviceType,
		"",
		"",
		m.config.Port,
		ips,
		[]string{
			"path=/previz",
			fmt.Sprintf("name=%s", m.config.Name),
			fmt.Sprintf("version=%d", protocol.Version),
			fmt.Sprintf("software=%s", version.Version),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	log.Printf("Advertising mDNS service: %s on port %d (type: %s)", m.config.Name, m.config.Port, serviceType)

	go func() {
		<-m.ctx.Done()
		server.Shutdown()
	}()

	return nil
}

// Browse searches for preview engines until Stop. Results arrive on
// Engines.
func (m *Manager) Browse() error {
	go m.browseLoop()
	return nil
}

func (m *Manager) browseLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 10)

		go func() {
			for entry := range entries {
				host := ""
				if entry.AddrV4 != nil {
					host = entry.AddrV4.String()
				} else if entry.Addr != nil {
					host = entry.Addr.String()
				}
				if host == "" {
					continue
				}

				engine := &EngineInfo{
					Name: displayName(entry.Name),
					Host: host,
					Port: entry.Port,
				}

				log.Printf("Discovered engine: %s at %s", engine.Name, engine.Addr())

				select {
				case m.engines <- engine:
				case <-m.ctx.Done():
					return
				}
			}
		}()

		params := &mdns.QueryParam{
			Service: serviceType,
			Domain:  "local",
			Timeout: 3 * time.Second,
			Entries: entries,
		}

		mdns.Query(params)
		close(entries)
	}
}

// Engines returns the channel of discovered engines
func (m *Manager) Engines() <-chan *EngineInfo {
	return m.engines
}

// Stop stops advertisement and browsing
func (m *Manager) Stop() {
	m.cancel()
}

// displayName strips the mDNS service suffix from an entry name
func displayName(entryName string) string {
	name := strings.TrimSuffix(entryName, ".")
	name = strings.TrimSuffix(name, ".local")
	name = strings.TrimSuffix(name, "."+serviceType)
	return strings.ReplaceAll(name, "\\ ", " ")
}

// getLocalIPs returns the machine's non-loopback IPv4 addresses
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
