package app

import (
	"context"
	"errors"
	"time"

	"github.com/ayusman/kalam/internal/discovery"
	"github.com/ayusman/kalam/internal/transport"
)

const (
	linkMinBackoff   = time.Second
	linkMaxBackoff   = 30 * time.Second
	discoveryTimeout = 3 * time.Second
)

// LinkConfig says which relay room to join.
type LinkConfig struct {
	RelayURL string // empty: find one over mDNS when Discover is set
	Discover bool
	Room     string
	Name     string
}

// RunLink keeps the app joined to the relay room until ctx is done,
// reconnecting with exponential backoff. Strokes drawn while the link is
// down are dropped.
func (a *App) RunLink(ctx context.Context, cfg LinkConfig) {
	backoff := linkMinBackoff
	for {
		peer, err := a.dial(ctx, cfg)
		if err == nil {
			backoff = linkMinBackoff
			a.Connect(peer)
			logger().Info().Str("room", cfg.Room).Str("peer", peer.ID()).Msg("joined relay room")

			select {
			case <-ctx.Done():
				peer.Close()
				a.Connect(nil)
				return
			case <-peer.Done():
				a.Connect(nil)
				logger().Warn().Str("room", cfg.Room).Msg("relay connection lost")
			}
		} else if !errors.Is(err, context.Canceled) {
			logger().Debug().Err(err).Dur("retry", backoff).Msg("relay unavailable")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, linkMaxBackoff)
	}
}

func (a *App) dial(ctx context.Context, cfg LinkConfig) (*transport.Peer, error) {
	base := cfg.RelayURL
	if base == "" {
		if !cfg.Discover {
			return nil, discovery.ErrNotFound
		}
		r, err := discovery.Find(discoveryTimeout)
		if err != nil {
			return nil, err
		}
		base = r.URL()
	}

	u, err := transport.RoomURL(base, cfg.Room, cfg.Name)
	if err != nil {
		return nil, err
	}
	peer := transport.NewPeer(u)
	if err := peer.Connect(ctx); err != nil {
		return nil, err
	}
	return peer, nil
}
