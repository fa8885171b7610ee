package net

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
)

// ServiceType is the mDNS service hosts advertise on the LAN.
const ServiceType = "_tileboard._tcp"

// Host is a board host found on the LAN.
type Host struct {
	Name     string
	Addr     string // host:port
	Canvases []string
}

// Advertise announces a host on the LAN. The TXT record carries the canvases
// it serves. Call Shutdown on the returned server to stop.
func Advertise(port int, canvases []string) (*mdns.Server, error) {
	host, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("could not get hostname: %w", err)
	}

	info := []string{"TileBoard", "canvases=" + strings.Join(canvases, ",")}
	service, err := mdns.NewMDNSService(host, ServiceType, "", "", port, nil, info)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("failed to start mDNS server: %w", err)
	}
	log.Printf("[Net] Advertising %s on port %d", ServiceType, port)
	return server, nil
}

// Browse looks up hosts for timeout and calls found for each one that has an
// IPv4 address.
func Browse(timeout time.Duration, found func(Host)) error {
	entries := make(chan *mdns.ServiceEntry, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range entries {
			if h, ok := hostFromEntry(e); ok {
				found(h)
			}
		}
	}()

	params := mdns.DefaultParams(ServiceType)
	params.Entries = entries
	params.Timeout = timeout
	params.DisableIPv6 = true
	err := mdns.Query(params)
	close(entries)
	<-done
	if err != nil {
		return fmt.Errorf("mdns lookup failed: %w", err)
	}
	return nil
}

func hostFromEntry(e *mdns.ServiceEntry) (Host, bool) {
	if e == nil || e.AddrV4 == nil || e.Port == 0 {
		return Host{}, false
	}
	h := Host{
		Name: strings.TrimSuffix(e.Name, "."+ServiceType+".local."),
		Addr: HostPort(e.AddrV4.String(), e.Port),
	}
	for _, field := range e.InfoFields {
		if list, ok := strings.CutPrefix(field, "canvases="); ok && list != "" {
			h.Canvases = strings.Split(list, ",")
		}
	}
	return h, true
}
