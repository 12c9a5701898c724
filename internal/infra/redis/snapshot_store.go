package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"nextchapter-billing/internal/domain"
	"nextchapter-billing/internal/domain/model"
	"nextchapter-billing/internal/domain/ports/repository"

	"github.com/go-redis/redis/v8"
)

var _ repository.SnapshotStore = (*SnapshotStore)(nil)

// SnapshotStore persists the reconciler baseline so a restart does not
// re-announce, or miss, a subscription transition.
type SnapshotStore struct {
	client RedisClient
	ttl    time.Duration
}

func NewSnapshotStore(client RedisClient, ttl time.Duration) *SnapshotStore {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &SnapshotStore{client: client, ttl: ttl}
}

func (s *SnapshotStore) snapshotKey(userKey string) string {
	return fmt.Sprintf("sub_snapshot:%s", userKey)
}

func (s *SnapshotStore) Load(ctx context.Context, userKey string) (model.SubscriptionSnapshot, error) {
	data, err := s.client.Get(ctx, s.snapshotKey(userKey))
	if errors.Is(err, redis.Nil) {
		return model.SubscriptionSnapshot{}, domain.ErrNotFound
	}
	if err != nil {
		return model.SubscriptionSnapshot{}, err
	}
	var snap model.SubscriptionSnapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return model.SubscriptionSnapshot{}, err
	}
	return snap, nil
}

func (s *SnapshotStore) Save(ctx context.Context, userKey string, snap model.SubscriptionSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.snapshotKey(userKey), data, s.ttl)
}
