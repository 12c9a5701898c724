//go:build !integration

package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"nextchapter-billing/internal/domain"
	"nextchapter-billing/internal/domain/model"
	"nextchapter-billing/internal/domain/ports/repository"

	"github.com/go-redis/redis/v8"
)

// fakeClient is an in-memory RedisClient. setErr fails the next n SetNX
// calls.
type fakeClient struct {
	kv      map[string]string
	expires map[string]time.Duration
	incrErr error
	setErr  error
	setFail int
	setNX   int
}

func newFakeClient() *fakeClient {
	return &fakeClient{kv: map[string]string{}, expires: map[string]time.Duration{}}
}

func (f *fakeClient) Ping(ctx context.Context) error { return nil }
func (f *fakeClient) Set(ctx context.Context, key string, value interface{}, exp time.Duration) error {
	switch v := value.(type) {
	case []byte:
		f.kv[key] = string(v)
	case string:
		f.kv[key] = v
	default:
		f.kv[key] = fmt.Sprint(v)
	}
	f.expires[key] = exp
	return nil
}
func (f *fakeClient) SetNX(ctx context.Context, key string, value interface{}, exp time.Duration) (bool, error) {
	f.setNX++
	if f.setFail > 0 {
		f.setFail--
		return false, f.setErr
	}
	if _, ok := f.kv[key]; ok {
		return false, nil
	}
	return true, f.Set(ctx, key, value, exp)
}
func (f *fakeClient) Get(ctx context.Context, key string) (string, error) {
	v, ok := f.kv[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}
func (f *fakeClient) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	if f.incrErr != nil {
		return 0, f.incrErr
	}
	if _, ok := f.kv[key]; !ok {
		f.kv[key] = "0"
		f.expires[key] = window
	}
	n, err := strconv.ParseInt(f.kv[key], 10, 64)
	if err != nil {
		return 0, err
	}
	n++
	f.kv[key] = strconv.FormatInt(n, 10)
	return n, nil
}
func (f *fakeClient) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	if f.kv[key] != value {
		return false, nil
	}
	delete(f.kv, key)
	delete(f.expires, key)
	return true, nil
}
func (f *fakeClient) Del(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.kv, k)
		delete(f.expires, k)
	}
	return nil
}
func (f *fakeClient) Close() error { return nil }

func TestRateLimiter_Allow(t *testing.T) {
	ctx := context.Background()

	t.Run("allows up to the limit and refuses after", func(t *testing.T) {
		fc := newFakeClient()
		rl := NewRateLimiter(fc)
		key := repository.OTPRequestKey("a@b.c", "payment_authorization")
		for i := 0; i < 3; i++ {
			ok, err := rl.Allow(ctx, key, 3, time.Minute)
			if err != nil || !ok {
				t.Fatalf("attempt %d: ok=%v err=%v", i+1, ok, err)
			}
		}
		ok, err := rl.Allow(ctx, key, 3, time.Minute)
		if err != nil || ok {
			t.Fatalf("expected refusal, got ok=%v err=%v", ok, err)
		}
	})

	t.Run("counter carries the window from its first hit", func(t *testing.T) {
		fc := newFakeClient()
		rl := NewRateLimiter(fc)
		if _, err := rl.Allow(ctx, "k", 3, time.Minute); err != nil {
			t.Fatalf("allow: %v", err)
		}
		if fc.expires["k"] != time.Minute {
			t.Fatalf("expected the counter to be created with a 1m ttl, got %s", fc.expires["k"])
		}
		if _, err := rl.Allow(ctx, "k", 3, time.Hour); err != nil {
			t.Fatalf("allow: %v", err)
		}
		if fc.expires["k"] != time.Minute {
			t.Errorf("later hits must not extend the window, got %s", fc.expires["k"])
		}
		if fc.kv["k"] != "2" {
			t.Errorf("expected 2 hits, got %q", fc.kv["k"])
		}
	})

	t.Run("window expiry frees the identifier", func(t *testing.T) {
		fc := newFakeClient()
		rl := NewRateLimiter(fc)
		for i := 0; i < 2; i++ {
			_, _ = rl.Allow(ctx, "k", 1, time.Minute)
		}
		// Redis drops the key when its ttl runs out.
		_ = fc.Del(ctx, "k")
		ok, err := rl.Allow(ctx, "k", 1, time.Minute)
		if err != nil || !ok {
			t.Fatalf("expected a fresh window, got ok=%v err=%v", ok, err)
		}
	})

	t.Run("propagates redis errors", func(t *testing.T) {
		fc := newFakeClient()
		fc.incrErr = errors.New("down")
		if _, err := NewRateLimiter(fc).Allow(ctx, "k", 1, time.Minute); err == nil {
			t.Fatal("expected error")
		}
		if _, ok := fc.kv["k"]; ok {
			t.Error("a failed hit must not leave a counter behind")
		}
	})
}

func TestSessionLocker(t *testing.T) {
	ctx := context.Background()
	key := repository.PaymentLockKey("user-1")

	t.Run("held lock is refused without retrying", func(t *testing.T) {
		fc := newFakeClient()
		l := NewLocker(fc)
		token, err := l.TryLock(ctx, key, time.Minute)
		if err != nil || token == "" {
			t.Fatalf("lock: token=%q err=%v", token, err)
		}
		if fc.expires[key] != time.Minute {
			t.Errorf("expected lock ttl 1m, got %s", fc.expires[key])
		}
		fc.setNX = 0
		if _, err := l.TryLock(ctx, key, time.Minute); !errors.Is(err, domain.ErrLocked) {
			t.Fatalf("expected ErrLocked, got %v", err)
		}
		if fc.setNX != 1 {
			t.Errorf("expected a single SET NX for a held lock, got %d", fc.setNX)
		}
	})

	t.Run("transport errors are retried", func(t *testing.T) {
		fc := newFakeClient()
		fc.setErr, fc.setFail = errors.New("reset"), 2
		if _, err := NewLocker(fc).TryLock(ctx, key, time.Minute); err != nil {
			t.Fatalf("expected the third attempt to win, got %v", err)
		}
		if fc.setNX != 3 {
			t.Errorf("expected 3 attempts, got %d", fc.setNX)
		}
	})

	t.Run("persistent transport errors surface", func(t *testing.T) {
		fc := newFakeClient()
		fc.setErr, fc.setFail = errors.New("reset"), 10
		_, err := NewLocker(fc).TryLock(ctx, key, time.Minute)
		if err == nil || errors.Is(err, domain.ErrLocked) {
			t.Fatalf("expected a transport error, got %v", err)
		}
	})

	t.Run("unlock only releases its own token", func(t *testing.T) {
		fc := newFakeClient()
		l := NewLocker(fc)
		token, err := l.TryLock(ctx, key, time.Minute)
		if err != nil {
			t.Fatalf("lock: %v", err)
		}
		if err := l.Unlock(ctx, key, "someone-else"); err != nil {
			t.Fatalf("unlock: %v", err)
		}
		if fc.kv[key] != token {
			t.Fatal("a foreign token must not release the lock")
		}
		if err := l.Unlock(ctx, key, token); err != nil {
			t.Fatalf("unlock: %v", err)
		}
		if _, err := l.TryLock(ctx, key, time.Minute); err != nil {
			t.Fatalf("relock after unlock: %v", err)
		}
	})
}

func TestSnapshotStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	fc := newFakeClient()
	store := NewSnapshotStore(fc, 0)

	if _, err := store.Load(ctx, "user-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing baseline, got %v", err)
	}

	exp := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	snap := model.SubscriptionSnapshot{Tier: model.TierPremium, Status: model.SubscriptionStatusActive, ExpiresAt: &exp, DailyLikesUsed: 2}
	if err := store.Save(ctx, "user-1", snap); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, ok := fc.kv["sub_snapshot:user-1"]; !ok {
		t.Fatal("expected snapshot under sub_snapshot:user-1")
	}
	got, err := store.Load(ctx, "user-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !got.Equivalent(snap) {
		t.Errorf("expected %+v, got %+v", snap, got)
	}
}
