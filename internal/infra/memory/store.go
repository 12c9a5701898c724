// Package memory holds process-local implementations of the repository ports,
// used when no Redis is configured.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"nextchapter-billing/internal/domain"
	"nextchapter-billing/internal/domain/model"
	"nextchapter-billing/internal/domain/ports/repository"
)

var (
	_ repository.SnapshotStore = (*SnapshotStore)(nil)
	_ repository.SessionLocker = (*Locker)(nil)
	_ repository.RateLimiter   = (*RateLimiter)(nil)
)

type SnapshotStore struct {
	mu    sync.RWMutex
	store map[string]model.SubscriptionSnapshot
}

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{store: make(map[string]model.SubscriptionSnapshot)}
}

func (s *SnapshotStore) Load(ctx context.Context, userKey string) (model.SubscriptionSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.store[userKey]
	if !ok {
		return model.SubscriptionSnapshot{}, domain.ErrNotFound
	}
	return snap, nil
}

func (s *SnapshotStore) Save(ctx context.Context, userKey string, snap model.SubscriptionSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store[userKey] = snap
	return nil
}

type lease struct {
	token   string
	expires time.Time
}

// Locker is a TTL-bounded mutex table keyed by string.
type Locker struct {
	mu   sync.Mutex
	now  func() time.Time
	held map[string]lease
}

func NewLocker(now func() time.Time) *Locker {
	if now == nil {
		now = time.Now
	}
	return &Locker{now: now, held: make(map[string]lease)}
}

func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.held[key]; ok && l.now().Before(cur.expires) {
		return "", domain.ErrLocked
	}
	token := uuid.NewString()
	l.held[key] = lease{token: token, expires: l.now().Add(ttl)}
	return token, nil
}

func (l *Locker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.held[key]; ok && cur.token == token {
		delete(l.held, key)
	}
	return nil
}

type window struct {
	count int
	reset time.Time
}

// RateLimiter is a fixed-window counter.
type RateLimiter struct {
	mu      sync.Mutex
	now     func() time.Time
	windows map[string]window
}

func NewRateLimiter(now func() time.Time) *RateLimiter {
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{now: now, windows: make(map[string]window)}
}

func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, win time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	w := r.windows[key]
	if w.reset.IsZero() || !now.Before(w.reset) {
		w = window{reset: now.Add(win)}
	}
	w.count++
	r.windows[key] = w
	return w.count <= limit, nil
}
