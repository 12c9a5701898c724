package repository

import (
	"context"

	"nextchapter-billing/internal/domain/model"
)

// SnapshotStore keeps the reconciler's previous subscription snapshot.
// Load returns domain.ErrNotFound when no baseline has been stored yet.
type SnapshotStore interface {
	Load(ctx context.Context, userKey string) (model.SubscriptionSnapshot, error)
	Save(ctx context.Context, userKey string, s model.SubscriptionSnapshot) error
}
