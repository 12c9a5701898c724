package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"nextchapter-billing/internal/domain/model"
	"nextchapter-billing/internal/infra/logging"
	"nextchapter-billing/internal/usecase"
)

// SubscriptionRefresher periodically reconciles the subscription snapshot so a
// payment that settles after its session timed out still activates the tier.
type SubscriptionRefresher struct {
	reconciler usecase.ReconcileUseCase
	interval   time.Duration
	timeout    time.Duration // per fetch
	log        *zerolog.Logger
}

func NewSubscriptionRefresher(reconciler usecase.ReconcileUseCase, interval time.Duration, logger *zerolog.Logger) *SubscriptionRefresher {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if logger == nil {
		logger = logging.Nop()
	}
	l := logger.With().Str("component", "SubscriptionRefresher").Logger()
	return &SubscriptionRefresher{reconciler: reconciler, interval: interval, timeout: 30 * time.Second, log: &l}
}

// Start blocks until ctx is done.
func (w *SubscriptionRefresher) Start(ctx context.Context) error {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	w.log.Debug().Dur("interval", w.interval).Msg("subscription refresher started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			w.tick(ctx)
		}
	}
}

func (w *SubscriptionRefresher) tick(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	snap, kind, err := w.reconciler.Fetch(runCtx)
	if err != nil {
		w.log.Warn().Err(err).Msg("subscription refresh failed")
		return
	}
	if kind != model.TransitionNoChange {
		w.log.Info().Str("transition", string(kind)).Str("tier", string(snap.Tier)).Msg("subscription refreshed")
	}
}
