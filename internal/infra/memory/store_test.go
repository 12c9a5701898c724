//go:build !integration

package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"nextchapter-billing/internal/domain"
	"nextchapter-billing/internal/domain/model"
)

func TestSnapshotStore(t *testing.T) {
	ctx := context.Background()
	s := NewSnapshotStore()

	if _, err := s.Load(ctx, "u1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	want := model.SubscriptionSnapshot{Tier: model.TierPremium, Status: model.SubscriptionStatusActive}
	if err := s.Save(ctx, "u1", want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.Load(ctx, "u1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !got.Equivalent(want) {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}

func TestLocker(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(0, 0)
	l := NewLocker(func() time.Time { return now })

	token, err := l.TryLock(ctx, "k", time.Minute)
	if err != nil {
		t.Fatalf("first lock: %v", err)
	}
	if _, err := l.TryLock(ctx, "k", time.Minute); !errors.Is(err, domain.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}

	t.Run("wrong token does not release", func(t *testing.T) {
		_ = l.Unlock(ctx, "k", "other")
		if _, err := l.TryLock(ctx, "k", time.Minute); !errors.Is(err, domain.ErrLocked) {
			t.Fatalf("expected lock still held, got %v", err)
		}
	})

	t.Run("lease expires", func(t *testing.T) {
		now = now.Add(2 * time.Minute)
		if _, err := l.TryLock(ctx, "k", time.Minute); err != nil {
			t.Fatalf("expected expired lease to be taken over, got %v", err)
		}
	})

	_ = token
}

func TestRateLimiter(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(0, 0)
	r := NewRateLimiter(func() time.Time { return now })

	for i := 0; i < 3; i++ {
		ok, _ := r.Allow(ctx, "k", 3, time.Minute)
		if !ok {
			t.Fatalf("attempt %d should be allowed", i+1)
		}
	}
	if ok, _ := r.Allow(ctx, "k", 3, time.Minute); ok {
		t.Fatal("fourth attempt should be refused")
	}
	now = now.Add(time.Minute)
	if ok, _ := r.Allow(ctx, "k", 3, time.Minute); !ok {
		t.Fatal("new window should allow again")
	}
}
