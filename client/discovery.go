package client

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
)

// ServiceType is the mDNS service IPCD servers advertise on the LAN.
const ServiceType = "_ipcd._tcp"

// DiscoveredServer represents a discovered IPCD server
type DiscoveredServer struct {
	ServiceName string
	Address     string
	Port        int
	Secure      bool
	TXTRecords  []string
}

// Hostname is the value to pass to NewClient.
func (s *DiscoveredServer) Hostname() string {
	scheme := "ws"
	if s.Secure {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, s.Address, s.Port)
}

// DiscoverServer returns the first IPCD server answering on mDNS.
func DiscoverServer(timeout time.Duration) (*DiscoveredServer, error) {
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	entriesCh := make(chan *mdns.ServiceEntry, 4)

	params := mdns.DefaultParams(ServiceType)
	params.Entries = entriesCh
	params.Timeout = timeout

	// Start discovery in background
	go func() {
		defer close(entriesCh)
		if err := mdns.Query(params); err != nil {
			slog.Debug("mDNS query failed", "error", err)
		}
	}()

	// Wait for first result or timeout
	select {
	case entry := <-entriesCh:
		if entry == nil {
			return nil, fmt.Errorf("no %s service found", ServiceType)
		}
		return serverFromEntry(entry)

	case <-time.After(timeout):
		return nil, fmt.Errorf("mDNS discovery timeout for %s", ServiceType)
	}
}

func serverFromEntry(entry *mdns.ServiceEntry) (*DiscoveredServer, error) {
	var address string
	if entry.AddrV4 != nil {
		address = entry.AddrV4.String()
	} else if entry.AddrV6 != nil {
		address = fmt.Sprintf("[%s]", entry.AddrV6.String())
	} else {
		return nil, fmt.Errorf("no valid address found for service")
	}

	server := &DiscoveredServer{
		ServiceName: entry.Name,
		Address:     address,
		Port:        entry.Port,
		Secure:      secureFromTXT(entry.InfoFields),
		TXTRecords:  entry.InfoFields,
	}

	slog.Info("Discovered IPCD server",
		"service_name", server.ServiceName,
		"address", server.Address,
		"port", server.Port,
		"secure", server.Secure,
	)
	return server, nil
}

func secureFromTXT(fields []string) bool {
	for _, f := range fields {
		k, v, _ := strings.Cut(f, "=")
		if strings.EqualFold(k, "tls") || strings.EqualFold(k, "secure") {
			return v == "1" || strings.EqualFold(v, "true")
		}
	}
	return false
}
