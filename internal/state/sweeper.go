package state

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/pjsk-cards/internal/store"
)

// StartSweeper runs a background goroutine that periodically drops expired
// states from memory and expired snapshots from repo. Expiry is already
// enforced lazily on every read; the sweep only reclaims memory and disk.
func StartSweeper(ctx context.Context, s *Store, repo store.Repository, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("State sweeper started", "interval", interval, "ttl", s.ttl)

		for {
			select {
			case <-ticker.C:
				sweep(ctx, s, repo)
			case <-ctx.Done():
				slog.Info("State sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func sweep(ctx context.Context, s *Store, repo store.Repository) {
	if n := s.Sweep(); n > 0 {
		slog.Info("State sweeper removed expired states", "count", n)
	}
	if repo == nil || s.ttl <= 0 {
		return
	}
	n, err := repo.CleanupExpired(ctx, s.now().Add(-s.ttl))
	if err != nil {
		if ctx.Err() == nil {
			slog.Warn("State sweeper failed to clean snapshots", "error", err)
		}
		return
	}
	if n > 0 {
		slog.Info("State sweeper removed expired snapshots", "count", n)
	}
}
