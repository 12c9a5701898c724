package repository

import (
	"context"
	"time"
)

// SessionLocker guarantees at most one live payment session per user,
// across processes when backed by Redis.
type SessionLocker interface {
	// TryLock returns a release token, or domain.ErrLocked when the key is held.
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

// RateLimiter counts attempts in a fixed window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
