package redis

import (
	"context"
	"fmt"
	"time"

	"nextchapter-billing/internal/domain"
	"nextchapter-billing/internal/domain/ports/repository"

	"github.com/google/uuid"
)

var _ repository.SessionLocker = (*SessionLocker)(nil)

// transientAttempts bounds retries of a SET NX that failed in transport.
// A lock held by someone else is never retried.
const transientAttempts = 3

// SessionLocker serializes payment sessions for one user across processes.
type SessionLocker struct {
	client RedisClient
}

func NewLocker(client RedisClient) *SessionLocker {
	return &SessionLocker{client: client}
}

// TryLock returns an owner token, or domain.ErrLocked when another session
// already holds key.
func (l *SessionLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	var lastErr error
	for i := 0; i < transientAttempts; i++ {
		acquired, err := l.client.SetNX(ctx, key, token, ttl)
		if err == nil {
			if !acquired {
				return "", domain.ErrLocked
			}
			return token, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		lastErr = err
	}
	return "", fmt.Errorf("acquire %s: %w", key, lastErr)
}

// Unlock releases key if token still owns it. A lock that expired and was
// taken by another session is left alone.
func (l *SessionLocker) Unlock(ctx context.Context, key, token string) error {
	_, err := l.client.CompareAndDelete(ctx, key, token)
	return err
}
