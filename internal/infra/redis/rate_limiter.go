package redis

import (
	"context"
	"time"

	"nextchapter-billing/internal/domain/ports/repository"
)

var _ repository.RateLimiter = (*RateLimiter)(nil)

// RateLimiter is a fixed-window counter shared by every process pointed
// at the same Redis.
type RateLimiter struct {
	client RedisClient
}

func NewRateLimiter(client RedisClient) *RateLimiter {
	return &RateLimiter{client: client}
}

func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	hits, err := r.client.IncrWindow(ctx, key, window)
	if err != nil {
		return false, err
	}
	return hits <= int64(limit), nil
}
