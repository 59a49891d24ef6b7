package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ayusman/kalam/internal/config"
	"github.com/ayusman/kalam/internal/discovery"
	"github.com/ayusman/kalam/internal/relay"
)

func main() {
	cfg := config.LoadRelay()
	config.SetupLogging(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var presence relay.Presence = relay.NewMemoryPresence()
	if cfg.Redis.Enabled {
		p, err := relay.NewRedisPresence(ctx, cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Redis.Addr()).Msg("failed to connect to Redis")
		}
		presence = p
		log.Info().Str("addr", cfg.Redis.Addr()).Msg("Redis connection established")
	}
	defer presence.Close()

	hub := relay.NewHub(presence)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           relay.NewRouter(*cfg, hub),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.MDNS {
		port, err := strconv.Atoi(cfg.Port)
		if err == nil {
			adv, err := discovery.Advertise(port)
			if err != nil {
				log.Warn().Err(err).Msg("mDNS advertisement disabled")
			} else {
				defer adv.Shutdown()
			}
		}
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Msg("starting relay")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("relay failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("relay shutdown")
	}
	log.Info().Msg("relay stopped")
}
