package discovery

import (
	"net"
	"testing"
	"time"

	"github.com/hashicorp/mdns"
)

func TestFromEntry(t *testing.T) {
	tests := []struct {
		name  string
		entry *mdns.ServiceEntry
		want  Relay
		ok    bool
	}{
		{
			name: "relay",
			entry: &mdns.ServiceEntry{
				Name:       "studio._kalam._tcp.local.",
				AddrV4:     net.IPv4(192, 168, 1, 20),
				Port:       8090,
				InfoFields: []string{"kalam relay"},
			},
			want: Relay{Instance: "studio", Host: "192.168.1.20", Port: 8090, Info: []string{"kalam relay"}},
			ok:   true,
		},
		{
			name:  "other service",
			entry: &mdns.ServiceEntry{Name: "printer._ipp._tcp.local.", AddrV4: net.IPv4(10, 0, 0, 1), Port: 631},
		},
		{
			name:  "no address",
			entry: &mdns.ServiceEntry{Name: "studio._kalam._tcp.local.", Port: 8090},
		},
		{
			name: "nil",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := fromEntry(tt.entry)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if got.Instance != tt.want.Instance || got.Host != tt.want.Host || got.Port != tt.want.Port {
				t.Errorf("fromEntry() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRelayURL(t *testing.T) {
	r := Relay{Host: "192.168.1.20", Port: 8090}
	if r.URL() != "http://192.168.1.20:8090" {
		t.Errorf("URL() = %s", r.URL())
	}
}

func TestAdvertiseAndFind(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping multicast test in short mode")
	}

	adv, err := Advertise(18090)
	if err != nil {
		t.Skipf("multicast unavailable: %v", err)
	}
	defer adv.Shutdown()

	relays, err := Browse(500 * time.Millisecond)
	if err != nil {
		t.Skipf("mdns query unavailable: %v", err)
	}
	for _, r := range relays {
		if r.Port == 18090 {
			return
		}
	}
	t.Skip("advertised relay not visible on this network")
}
