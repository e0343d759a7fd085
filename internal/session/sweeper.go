package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/pjsk-cards/internal/card"
	"github.com/ashureev/pjsk-cards/internal/domain"
)

// StartSweeper periodically times out abandoned sessions and tells their
// users. Timeouts are also detected lazily on the next input, so the sweep
// only reclaims memory and sends the notice early.
func StartSweeper(ctx context.Context, c *Controller, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Session sweeper started", "interval", interval)

		for {
			select {
			case <-ticker.C:
				for _, sess := range c.Sweep() {
					c.logger.Debug("Interactive session timed out",
						"platform", sess.Identity.Platform,
						"conversation", sess.Identity.Conversation,
						"step", sess.Step)
					if err := c.publisher.Notify(ctx, sess.Identity, card.ErrorText(domain.ErrSessionExpired)); err != nil {
						c.logger.Warn("Failed to send timeout notice",
							"platform", sess.Identity.Platform,
							"conversation", sess.Identity.Conversation,
							"error", err)
					}
				}
			case <-ctx.Done():
				slog.Info("Session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
