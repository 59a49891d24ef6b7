// Package discovery advertises and finds relays on the local network over
// mDNS.
package discovery

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ServiceType is the mDNS service relays register under.
const ServiceType = "_kalam._tcp"

// ErrNotFound is returned when no relay answered within the timeout.
var ErrNotFound = errors.New("no relay found")

func logger() *zerolog.Logger {
	l := log.With().Str("module", "discovery").Logger()
	return &l
}

// Relay is a relay found on the network.
type Relay struct {
	Instance string
	Host     string
	Port     int
	Info     []string
}

// URL returns the relay's http base URL.
func (r Relay) URL() string {
	return "http://" + net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

// Advertiser announces a relay until shut down.
type Advertiser struct {
	server *mdns.Server
}

// Advertise announces a relay listening on port. The instance name is the
// host name.
func Advertise(port int, info ...string) (*Advertiser, error) {
	host, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("could not get hostname: %w", err)
	}
	if len(info) == 0 {
		info = []string{"kalam relay"}
	}

	service, err := mdns.NewMDNSService(host, ServiceType, "", "", port, nil, info)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS service: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("failed to start mDNS server: %w", err)
	}

	logger().Info().Str("service", ServiceType).Int("port", port).Msg("advertising relay")
	return &Advertiser{server: server}, nil
}

// Shutdown stops answering queries.
func (a *Advertiser) Shutdown() error {
	return a.server.Shutdown()
}

// Browse collects relays that answer within timeout.
func Browse(timeout time.Duration) ([]Relay, error) {
	entries := make(chan *mdns.ServiceEntry, 8)
	done := make(chan []Relay)

	go func() {
		var found []Relay
		seen := make(map[string]bool)
		for e := range entries {
			r, ok := fromEntry(e)
			if !ok || seen[r.URL()] {
				continue
			}
			seen[r.URL()] = true
			found = append(found, r)
		}
		done <- found
	}()

	params := mdns.DefaultParams(ServiceType)
	params.Entries = entries
	params.Timeout = timeout
	params.DisableIPv6 = true
	err := mdns.Query(params)
	close(entries)
	found := <-done

	if err != nil {
		return found, fmt.Errorf("mdns query: %w", err)
	}
	return found, nil
}

// Find returns the first relay that answers within timeout.
func Find(timeout time.Duration) (Relay, error) {
	relays, err := Browse(timeout)
	if len(relays) > 0 {
		logger().Info().Str("url", relays[0].URL()).Msg("discovered relay")
		return relays[0], nil
	}
	if err != nil {
		return Relay{}, err
	}
	return Relay{}, ErrNotFound
}

// fromEntry converts a service entry, skipping answers for other services
// or without a usable IPv4 address.
func fromEntry(e *mdns.ServiceEntry) (Relay, bool) {
	if e == nil || e.AddrV4 == nil || e.Port == 0 {
		return Relay{}, false
	}
	if !strings.Contains(e.Name, ServiceType) {
		return Relay{}, false
	}
	instance, _, _ := strings.Cut(e.Name, "."+ServiceType)
	return Relay{
		Instance: instance,
		Host:     e.AddrV4.String(),
		Port:     e.Port,
		Info:     e.InfoFields,
	}, true
}
