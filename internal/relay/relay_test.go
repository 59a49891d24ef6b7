package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ayusman/kalam/internal/config"
	"github.com/ayusman/kalam/internal/models"
	"github.com/ayusman/kalam/internal/transport"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRelay(t *testing.T) (*httptest.Server, *Hub) {
	t.Helper()
	hub := NewHub(NewMemoryPresence())
	cfg := config.RelayConfig{AllowedOrigins: []string{"http://allowed.test"}}
	srv := httptest.NewServer(NewRouter(cfg, hub))
	t.Cleanup(srv.Close)
	return srv, hub
}

type inbox struct {
	mu   sync.Mutex
	msgs []string
}

func (b *inbox) add(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, string(data))
}

func (b *inbox) all() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.msgs...)
}

func join(t *testing.T, srv *httptest.Server, room, name string) (*transport.Peer, *inbox) {
	t.Helper()
	u, err := transport.RoomURL(srv.URL, room, name)
	if err != nil {
		t.Fatalf("RoomURL() error = %v", err)
	}
	p := transport.NewPeer(u)
	box := &inbox{}
	p.OnMessage(box.add)
	if err := p.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { p.Close() })
	waitFor(t, name+" assigned an id", func() bool { return p.ID() != "" })
	return p, box
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRelay_DrawReachesOtherMembers(t *testing.T) {
	srv, _ := newRelay(t)
	alice, aliceBox := join(t, srv, "maths", "alice")
	_, bobBox := join(t, srv, "maths", "bob")
	_, carolBox := join(t, srv, "art", "carol")

	if err := alice.Send([]byte(`{"t":"clear"}`)); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	waitFor(t, "bob receives the draw payload", func() bool { return len(bobBox.all()) == 1 })
	if got := bobBox.all()[0]; got != `{"t":"clear"}` {
		t.Errorf("bob got %s", got)
	}

	time.Sleep(50 * time.Millisecond)
	if n := len(aliceBox.all()); n != 0 {
		t.Errorf("sender received %d of its own messages", n)
	}
	if n := len(carolBox.all()); n != 0 {
		t.Errorf("another room received %d messages", n)
	}
}

func TestRelay_Membership(t *testing.T) {
	srv, hub := newRelay(t)
	alice, _ := join(t, srv, "maths", "alice")
	bob, _ := join(t, srv, "maths", "bob")

	if m := bob.Members(); len(m) != 1 || m[0].Name != "alice" {
		t.Errorf("bob sees %+v, want alice from the peers list", m)
	}
	waitFor(t, "alice learns of bob", func() bool { return len(alice.Members()) == 1 })
	if m := alice.Members(); m[0].ID != bob.ID() {
		t.Errorf("alice sees %+v", m)
	}

	resp, err := http.Get(srv.URL + "/api/rooms/maths")
	if err != nil {
		t.Fatalf("GET room error = %v", err)
	}
	defer resp.Body.Close()
	var info models.RoomInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		t.Fatalf("decode room error = %v", err)
	}
	if len(info.Members) != 2 {
		t.Errorf("room members = %+v, want 2", info.Members)
	}

	bob.Close()
	waitFor(t, "alice sees bob leave", func() bool { return len(alice.Members()) == 0 })

	alice.Close()
	waitFor(t, "empty room removed", func() bool { return hub.RoomCount() == 0 })
}

func TestRelay_SignalRouting(t *testing.T) {
	srv, _ := newRelay(t)
	alice, _ := join(t, srv, "maths", "alice")
	bob, _ := join(t, srv, "maths", "bob")
	carol, _ := join(t, srv, "maths", "carol")

	var mu sync.Mutex
	got := map[string][]models.SignalMessage{}
	record := func(who string) func(models.SignalMessage) {
		return func(m models.SignalMessage) {
			if m.Type != models.SignalTypeOffer {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			got[who] = append(got[who], m)
		}
	}
	bob.OnSignal(record("bob"))
	carol.OnSignal(record("carol"))

	offer := models.SignalMessage{Type: models.SignalTypeOffer, To: bob.ID(), Payload: []byte(`{"sdp":"x"}`)}
	if err := alice.Signal(offer); err != nil {
		t.Fatalf("Signal() error = %v", err)
	}

	waitFor(t, "bob gets the offer", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got["bob"]) == 1
	})
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if got["bob"][0].From != alice.ID() {
		t.Errorf("offer from %q, want alice", got["bob"][0].From)
	}
	if len(got["carol"]) != 0 {
		t.Error("targeted offer leaked to carol")
	}
}

func TestOriginFilter(t *testing.T) {
	srv, _ := newRelay(t)

	tests := []struct {
		name   string
		origin string
		method string
		want   int
	}{
		{name: "no origin", want: http.StatusOK, method: http.MethodGet},
		{name: "allowed origin", origin: "http://allowed.test", method: http.MethodGet, want: http.StatusOK},
		{name: "foreign origin", origin: "http://evil.test", method: http.MethodGet, want: http.StatusForbidden},
		{name: "preflight", origin: "http://allowed.test", method: http.MethodOptions, want: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(tt.method, srv.URL+"/health", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("request error = %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			if tt.want == http.StatusOK && tt.origin != "" &&
				resp.Header.Get("Access-Control-Allow-Origin") != tt.origin {
				t.Error("missing CORS header for allowed origin")
			}
		})
	}
}

func TestMemoryPresence(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryPresence()

	p.Add(ctx, "r", models.Member{ID: "b", Name: "Bob"})
	p.Add(ctx, "r", models.Member{ID: "a"})
	p.Add(ctx, "other", models.Member{ID: "c"})

	got, _ := p.Members(ctx, "r")
	if len(got) != 2 || got[0].ID != "a" || got[1].Name != "Bob" {
		t.Errorf("Members() = %+v", got)
	}

	p.Remove(ctx, "r", "a")
	p.Remove(ctx, "r", "b")
	if got, _ := p.Members(ctx, "r"); len(got) != 0 {
		t.Errorf("Members() after remove = %+v", got)
	}
	if got, _ := p.Members(ctx, "other"); len(got) != 1 {
		t.Errorf("other room = %+v", got)
	}
}

func TestRedisPresence(t *testing.T) {
	host := os.Getenv("KALAM_TEST_REDIS_HOST")
	if host == "" {
		t.Skip("KALAM_TEST_REDIS_HOST not set")
	}
	ctx := context.Background()
	p, err := NewRedisPresence(ctx, config.RedisConfig{Host: host, Port: "6379"})
	if err != nil {
		t.Fatalf("NewRedisPresence() error = %v", err)
	}
	defer p.Close()

	room := "test-" + time.Now().Format("150405.000")
	if err := p.Add(ctx, room, models.Member{ID: "a", Name: "Asha"}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	got, err := p.Members(ctx, room)
	if err != nil || len(got) != 1 || got[0].Name != "Asha" {
		t.Errorf("Members() = %+v, %v", got, err)
	}
	if err := p.Remove(ctx, room, "a"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if got, _ := p.Members(ctx, room); len(got) != 0 {
		t.Errorf("Members() after remove = %+v", got)
	}
}
