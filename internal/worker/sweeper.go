package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/aquafarm-service/internal/auth"
)

// StartSweeper runs the identity-cache sweep on a fixed interval until the
// context is cancelled. Sweep errors never surface; the cache logs and
// continues.
func StartSweeper(ctx context.Context, cache *auth.IdentityCache, interval time.Duration, logger *zap.Logger) {
	if cache == nil || interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		logger.Info("identity cache sweeper started", zap.Duration("interval", interval))
		for {
			select {
			case <-ctx.Done():
				logger.Info("identity cache sweeper stopped")
				return
			case <-ticker.C:
				before := cache.Len()
				cache.Sweep(ctx)
				if evicted := before - cache.Len(); evicted > 0 {
					logger.Info("identity cache swept", zap.Int("evicted", evicted), zap.Int("remaining", cache.Len()))
				}
			}
		}
	}()
}
