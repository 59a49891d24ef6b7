package app

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ayusman/kalam/internal/config"
	"github.com/ayusman/kalam/internal/relay"
	"github.com/ayusman/kalam/internal/transport"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestApp_RunLink(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := relay.NewHub(relay.NewMemoryPresence())
	srv := httptest.NewServer(relay.NewRouter(config.RelayConfig{}, hub))
	defer srv.Close()

	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.app.RunLink(ctx, LinkConfig{RelayURL: srv.URL, Room: "maths", Name: "asha"})
		close(done)
	}()

	open := transport.StateOpen.String()
	waitFor(t, "link open", func() bool { return f.app.Status().Link == open })
	if hub.RoomCount() != 1 {
		t.Errorf("RoomCount() = %d, want 1", hub.RoomCount())
	}

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("RunLink did not return after cancel")
	}
	if got := f.app.Status().Link; got != "none" {
		t.Errorf("link = %s after cancel, want none", got)
	}
	waitFor(t, "room released", func() bool { return hub.RoomCount() == 0 })
}

func TestApp_RunLinkNoRelay(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	f.app.RunLink(ctx, LinkConfig{Room: "maths"})

	if got := f.app.Status().Link; got != "none" {
		t.Errorf("link = %s, want none without a relay", got)
	}
}
