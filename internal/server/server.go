// Package server provides the HTTP surface of the kalam host: the control
// API, the composited video stream and the live state feed.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"

	"github.com/ayusman/kalam/internal/app"
	"github.com/ayusman/kalam/internal/server/api"
	"github.com/ayusman/kalam/internal/store"
)

func logger() *zerolog.Logger {
	l := log.With().Str("module", "server").Logger()
	return &l
}

// FrameSource supplies the latest composited frame.
type FrameSource interface {
	// Frame returns a copy of the latest frame and its sequence number.
	// The caller closes the Mat.
	Frame() (gocv.Mat, uint64, bool)
}

// Host is the app as seen by the server.
type Host interface {
	api.Controller
	FrameSource
}

var _ Host = (*app.App)(nil)

// Config holds the server configuration.
type Config struct {
	StaticDir string
	Store     *store.Store
	Host      Host
}

// Server represents the HTTP server for the kalam host.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
	state  *StateHandler
	http   *http.Server
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.Store != nil {
		settings := api.NewSettingsHandler(s.config.Store)
		s.mux.Handle("/api/settings", settings)
		s.mux.Handle("/api/settings/", settings)
		s.mux.Handle("/api/sessions", api.NewHistoryHandler(s.config.Store))
	}

	if s.config.Host != nil {
		s.mux.Handle("/api/session", api.NewSessionHandler(s.config.Host))
		s.mux.Handle("/api/stream", NewStreamHandler(s.config.Host))
		s.mux.Handle("/api/snapshot", NewSnapshotHandler(s.config.Host))
		s.state = NewStateHandler(s.config.Host)
		s.mux.Handle("/api/state", s.state)
	}

	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}
	if s.config.Host != nil {
		st := s.config.Host.Status()
		response["running"] = st.Running
		response["gesture_mode"] = st.Session.Active
		response["link"] = st.Link
	}

	data, err := sonic.Marshal(response)
	if err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// ListenAndServe starts the HTTP server on the given address and blocks
// until Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger().Info().Str("addr", addr).Msg("listening")
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the state feed and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.state != nil {
		s.state.Close()
	}
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
