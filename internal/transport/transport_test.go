package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/kalam/internal/models"
)

// echoRelay accepts one room connection, announces the peer and a second
// member, and reflects every draw payload back as if from that member.
func echoRelay(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		peers, _ := models.WithPayload(
			models.SignalMessage{Type: models.SignalTypePeers, To: "me", RoomID: "lobby"},
			[]models.Member{{ID: "me"}, {ID: "other", Name: "Ravi"}})
		data, _ := models.Encode(peers)
		conn.WriteMessage(websocket.TextMessage, data)

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			msg, err := models.Decode(data)
			if err != nil || msg.Type != models.SignalTypeDraw {
				continue
			}
			msg.From = "other"
			out, _ := models.Encode(msg)
			conn.WriteMessage(websocket.TextMessage, out)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
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

func TestRoomURL(t *testing.T) {
	tests := []struct {
		base string
		room string
		name string
		want string
	}{
		{"http://relay.local:8090", "lobby", "", "ws://relay.local:8090/ws/rooms/lobby"},
		{"https://relay.example", "maths 101", "Asha", "wss://relay.example/ws/rooms/maths%20101?name=Asha"},
		{"ws://10.0.0.2:8090", "r", "", "ws://10.0.0.2:8090/ws/rooms/r"},
	}

	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			got, err := RoomURL(tt.base, tt.room, tt.name)
			if err != nil {
				t.Fatalf("RoomURL() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("RoomURL() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestPeer_RoundTrip(t *testing.T) {
	srv := echoRelay(t)
	p := NewPeer(wsURL(srv))
	defer p.Close()

	if p.State() != StateConnecting {
		t.Fatalf("State() = %s before Connect", p.State())
	}
	if err := p.Send([]byte(`{"t":"up"}`)); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Send() before Connect error = %v, want ErrNotOpen", err)
	}

	var mu sync.Mutex
	var got []string
	p.OnMessage(func(data []byte) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, string(data))
	})

	if err := p.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if p.State() != StateOpen {
		t.Fatalf("State() = %s after Connect", p.State())
	}

	waitFor(t, "room membership", func() bool { return p.ID() == "me" })
	if m := p.Members(); len(m) != 1 || m[0].Name != "Ravi" {
		t.Errorf("Members() = %+v, want only the other participant", m)
	}
	if p.Room() != "lobby" {
		t.Errorf("Room() = %q", p.Room())
	}

	if err := p.Send([]byte(`{"t":"clear"}`)); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	waitFor(t, "echoed payload", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	})
	if got[0] != `{"t":"clear"}` {
		t.Errorf("payload = %s", got[0])
	}
}

func TestPeer_Close(t *testing.T) {
	srv := echoRelay(t)
	p := NewPeer(wsURL(srv))
	if err := p.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	p.Close()
	p.Close()

	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done not closed")
	}
	waitFor(t, "closed state", func() bool { return p.State() == StateClosed })
	if err := p.Send([]byte(`{"t":"up"}`)); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Send() after Close error = %v, want ErrNotOpen", err)
	}
	if err := p.Connect(context.Background()); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Connect() after Close error = %v, want ErrNotOpen", err)
	}
}

func TestPeer_ServerGone(t *testing.T) {
	upgrader := websocket.Upgrader{}
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		<-release
		conn.Close()
	}))
	defer srv.Close()

	p := NewPeer(wsURL(srv))
	if err := p.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	close(release)

	waitFor(t, "closed state", func() bool { return p.State() == StateClosed })
	if err := p.Send([]byte(`{"t":"up"}`)); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Send() after disconnect error = %v, want ErrNotOpen", err)
	}
}

func TestPeer_DialFailure(t *testing.T) {
	p := NewPeer("ws://127.0.0.1:1/ws/rooms/x")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := p.Connect(ctx); err == nil {
		t.Fatal("expected dial error")
	}
	if p.State() != StateClosed {
		t.Errorf("State() = %s, want closed", p.State())
	}
}

func TestPeer_BufferFull(t *testing.T) {
	p := NewPeer("ws://unused")
	p.state.Store(int32(StateOpen))

	for i := 0; i < sendBuffer; i++ {
		if err := p.Send([]byte(`{"t":"up"}`)); err != nil {
			t.Fatalf("Send() %d error = %v", i, err)
		}
	}
	if err := p.Send([]byte(`{"t":"up"}`)); !errors.Is(err, ErrBufferFull) {
		t.Errorf("Send() on full queue error = %v, want ErrBufferFull", err)
	}
}

func TestPipe(t *testing.T) {
	a, b := NewPipe()

	var got []byte
	b.OnMessage(func(data []byte) { got = data })

	if err := a.Send([]byte("hello")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("received %q", got)
	}
	if n, bytes := a.Sent(); n != 1 || bytes != 5 {
		t.Errorf("Sent() = %d, %d", n, bytes)
	}

	b.SetState(StateConnecting)
	if a.State() != StateConnecting {
		t.Error("state should be shared between ends")
	}
	if err := a.Send([]byte("x")); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Send() while connecting error = %v, want ErrNotOpen", err)
	}

	a.Close()
	if b.State() != StateClosed {
		t.Errorf("State() = %s after Close", b.State())
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{
		StateConnecting: "connecting",
		StateOpen:       "open",
		StateClosing:    "closing",
		StateClosed:     "closed",
		State(9):        "unknown",
	} {
		if s.String() != want {
			t.Errorf("%d.String() = %s, want %s", s, s.String(), want)
		}
	}
}
