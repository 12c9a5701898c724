package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"nextchapter-billing/internal/countdown"
	"nextchapter-billing/internal/domain"
	"nextchapter-billing/internal/domain/model"
	"nextchapter-billing/internal/domain/ports/adapter"
	"nextchapter-billing/internal/domain/ports/repository"
	"nextchapter-billing/internal/infra/logging"
	"nextchapter-billing/internal/infra/metrics"
)

// Compile-time check
var _ ReconcileUseCase = (*reconcileUC)(nil)

// ReconcileUseCase keeps the local view of the subscription in line with the backend.
type ReconcileUseCase interface {
	// Fetch pulls the authoritative snapshot, diffs it against the stored one
	// and publishes a TransitionEvent when something meaningful changed.
	Fetch(ctx context.Context) (model.SubscriptionSnapshot, model.Transition, error)
	// EnsureBaseline stores a snapshot to diff against if none exists yet.
	EnsureBaseline(ctx context.Context) (model.SubscriptionSnapshot, error)
	Current(ctx context.Context) (model.SubscriptionSnapshot, error)
	Subscribe(fn func(model.TransitionEvent)) (unsubscribe func())
}

// Compare classifies the change from previous to next. It is pure.
// Upgraded requires a strictly higher tier that is active, so a renewal or a
// repeated fetch of an already active tier is NoChange.
func Compare(previous, next model.SubscriptionSnapshot) model.Transition {
	switch {
	case previous.Equivalent(next):
		return model.TransitionNoChange
	case next.Tier.Rank() > previous.Tier.Rank() && next.Status == model.SubscriptionStatusActive:
		return model.TransitionUpgraded
	case previous.Status == model.SubscriptionStatusActive && next.Status == model.SubscriptionStatusExpired:
		return model.TransitionExpired
	case next.Tier.Rank() < previous.Tier.Rank():
		return model.TransitionDowngraded
	default:
		return model.TransitionNoChange
	}
}

type reconcileUC struct {
	backend adapter.BackendAPI
	store   repository.SnapshotStore
	clock   countdown.Clock
	userKey string
	log     *zerolog.Logger

	mu        sync.Mutex // serializes fetch, compare and save
	listeners observers[model.TransitionEvent]
}

func NewReconcileUseCase(backend adapter.BackendAPI, store repository.SnapshotStore, clock countdown.Clock, userKey string, logger *zerolog.Logger) *reconcileUC {
	if clock == nil {
		clock = countdown.RealClock{}
	}
	compLog := logger.With().Str("component", "ReconcileUC").Logger()
	return &reconcileUC{
		backend: backend,
		store:   store,
		clock:   clock,
		userKey: userKey,
		log:     &compLog,
	}
}

func (u *reconcileUC) Fetch(ctx context.Context) (model.SubscriptionSnapshot, model.Transition, error) {
	defer logging.TraceDuration(u.log, "ReconcileUC.Fetch")()

	ev, err := u.fetchAndSwap(ctx)
	if err != nil {
		return model.SubscriptionSnapshot{}, model.TransitionNoChange, err
	}
	metrics.SetSnapshot(ev.Next)
	if ev.Kind != model.TransitionNoChange {
		metrics.IncTransition(ev.Kind)
		u.log.Info().
			Str("transition", string(ev.Kind)).
			Str("from", string(ev.Previous.Tier)+"/"+string(ev.Previous.Status)).
			Str("to", string(ev.Next.Tier)+"/"+string(ev.Next.Status)).
			Msg("subscription transition")
		u.listeners.emit(ev)
	}
	return ev.Next, ev.Kind, nil
}

func (u *reconcileUC) fetchAndSwap(ctx context.Context) (model.TransitionEvent, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	next, err := u.backend.SubscriptionSnapshot(ctx)
	if err != nil {
		return model.TransitionEvent{}, fmt.Errorf("fetch subscription: %w", err)
	}
	if next.FetchedAt.IsZero() {
		next.FetchedAt = u.clock.Now()
	}

	ev := model.TransitionEvent{Kind: model.TransitionNoChange, Next: next}
	prev, err := u.store.Load(ctx, u.userKey)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		// First sighting only establishes the baseline.
		ev.Previous = next
	case err != nil:
		return model.TransitionEvent{}, fmt.Errorf("load snapshot: %w", err)
	default:
		ev.Previous = prev
		ev.Kind = Compare(prev, next)
	}

	if err := u.store.Save(ctx, u.userKey, next); err != nil {
		return model.TransitionEvent{}, fmt.Errorf("save snapshot: %w", err)
	}
	return ev, nil
}

func (u *reconcileUC) EnsureBaseline(ctx context.Context) (model.SubscriptionSnapshot, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	prev, err := u.store.Load(ctx, u.userKey)
	if err == nil {
		return prev, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return model.SubscriptionSnapshot{}, fmt.Errorf("load snapshot: %w", err)
	}

	base, err := u.backend.SubscriptionSnapshot(ctx)
	if err != nil {
		// Without a baseline a later upgrade would be swallowed as the first sighting.
		u.log.Warn().Err(err).Msg("baseline fetch failed; assuming free")
		base = model.FreeSnapshot(u.clock.Now())
	}
	if base.FetchedAt.IsZero() {
		base.FetchedAt = u.clock.Now()
	}
	if err := u.store.Save(ctx, u.userKey, base); err != nil {
		return model.SubscriptionSnapshot{}, fmt.Errorf("save snapshot: %w", err)
	}
	metrics.SetSnapshot(base)
	return base, nil
}

func (u *reconcileUC) Current(ctx context.Context) (model.SubscriptionSnapshot, error) {
	return u.store.Load(ctx, u.userKey)
}

func (u *reconcileUC) Subscribe(fn func(model.TransitionEvent)) func() {
	return u.listeners.add(fn)
}
