package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// LoginLimiter throttles password-login attempts with a fixed window counter
// in Redis, keyed per credential+client. Redis being unreachable fails open:
// a degraded limiter must not lock everyone out.
type LoginLimiter struct {
	client *redis.Client
	window time.Duration
	max    int64
	logger *zap.Logger
}

// NewLoginLimiter builds a limiter. A nil client disables limiting.
func NewLoginLimiter(client *redis.Client, window time.Duration, max int, logger *zap.Logger) *LoginLimiter {
	if window <= 0 {
		window = time.Minute
	}
	if max <= 0 {
		max = 10
	}
	return &LoginLimiter{client: client, window: window, max: int64(max), logger: logger}
}

// Allow reports whether another attempt under key may proceed.
func (l *LoginLimiter) Allow(ctx context.Context, key string) bool {
	if l == nil || l.client == nil {
		return true
	}

	redisKey := fmt.Sprintf("login_attempts:%s", key)
	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		l.logger.Warn("login limiter unavailable", zap.Error(err))
		return true
	}
	if count == 1 {
		if err := l.client.Expire(ctx, redisKey, l.window).Err(); err != nil {
			l.logger.Warn("login limiter expire failed", zap.Error(err))
		}
	}
	return count <= l.max
}

// Reset clears the counter for key, e.g. after a successful login.
func (l *LoginLimiter) Reset(ctx context.Context, key string) {
	if l == nil || l.client == nil {
		return
	}
	if err := l.client.Del(ctx, fmt.Sprintf("login_attempts:%s", key)).Err(); err != nil {
		l.logger.Warn("login limiter reset failed", zap.Error(err))
	}
}
