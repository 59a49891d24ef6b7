package main

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ayusman/kalam/internal/app"
	"github.com/ayusman/kalam/internal/config"
	"github.com/ayusman/kalam/internal/geom"
	"github.com/ayusman/kalam/internal/server"
	"github.com/ayusman/kalam/internal/store"
	"github.com/ayusman/kalam/internal/tray"
)

func main() {
	cfg := config.Load()
	config.SetupLogging(cfg.LogLevel)
	log.Info().Msg("Kalam - gesture annotation")

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatal().Err(err).Msg("failed to create data directory")
	}
	st, err := store.New(filepath.Join(cfg.DataDir, "kalam.db"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize store")
	}
	defer st.Close()

	a, err := app.New(app.Config{
		Store:        st,
		CameraID:     cfg.CameraID,
		Canvas:       geom.Size{W: cfg.CanvasWidth, H: cfg.CanvasHeight},
		Mirror:       cfg.Mirror,
		MotionThresh: cfg.MotionThreshold,
		Room:         cfg.Room,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create app")
	}
	defer a.Close()

	if err := a.Start(); err != nil {
		log.Error().Err(err).Msg("camera unavailable, running with video off")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go a.RunLink(ctx, app.LinkConfig{
		RelayURL: cfg.RelayURL,
		Discover: cfg.Discovery,
		Room:     cfg.Room,
		Name:     cfg.DisplayName,
	})

	webDir := findWebDir()
	if webDir != "" {
		log.Info().Str("dir", webDir).Msg("serving static files")
	}
	srv := server.New(server.Config{StaticDir: webDir, Store: st, Host: a})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe(cfg.Addr)
	}()

	if cfg.Tray {
		runTray(ctx, stop, a, cfg.Addr)
	} else {
		select {
		case <-ctx.Done():
		case err := <-errCh:
			if err != nil {
				log.Error().Err(err).Msg("server failed")
			}
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("server shutdown")
	}
	log.Info().Msg("stopped")
}

// runTray blocks in the tray loop until Quit or ctx is done. The tray
// mirrors app state changed over the API.
func runTray(ctx context.Context, quit context.CancelFunc, a *app.App, addr string) {
	t := tray.New()
	t.OnGestureMode(func(on bool) error {
		if !on {
			a.StopGestures()
			return nil
		}
		err := a.StartGestures()
		if errors.Is(err, app.ErrGestureUnavailable) {
			log.Warn().Err(err).Msg("gesture mode unavailable")
		}
		return err
	})
	t.OnDrawMode(a.Controls().SetDrawMode)
	t.OnClear(a.Controls().RequestClear)
	t.OnSettings(func() { openBrowser(localURL(addr)) })
	t.OnQuit(quit)

	go func() {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				t.Quit()
				return
			case <-ticker.C:
				st := a.Status().Session
				t.SetGestureMode(st.Active)
				t.SetDrawMode(st.Controls.DrawMode)
				t.SetTool(st.Tool)
			}
		}
	}()

	t.Run()
}

func localURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr
}

func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		log.Warn().Err(err).Str("url", url).Msg("could not open browser")
	}
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.kalam/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	homeWebDir := filepath.Join(homeDir, ".kalam", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}
