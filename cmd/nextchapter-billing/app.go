package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"nextchapter-billing/internal/config"
	"nextchapter-billing/internal/countdown"
	"nextchapter-billing/internal/domain/model"
	"nextchapter-billing/internal/domain/ports/repository"
	"nextchapter-billing/internal/infra/adapters/backend"
	"nextchapter-billing/internal/infra/logging"
	"nextchapter-billing/internal/infra/memory"
	"nextchapter-billing/internal/infra/metrics"
	red "nextchapter-billing/internal/infra/redis"
	"nextchapter-billing/internal/usecase"
)

// app is the wired checkout pipeline for one user.
type app struct {
	cfg        *config.Config
	log        *zerolog.Logger
	clock      countdown.Clock
	otp        usecase.OTPUseCase
	payments   usecase.PaymentCoordinator
	reconciler usecase.ReconcileUseCase
	notifier   usecase.NotificationUseCase
	close      func()
}

type stores struct {
	locker    repository.SessionLocker
	limiter   repository.RateLimiter
	snapshots repository.SnapshotStore
	close     func()
}

func newApp(ctx context.Context, flags *rootFlags) (*app, error) {
	cfg, err := config.LoadConfig(flags.configPath, flags.dev)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("[DEV MODE] enabled")
	}
	if cfg.Metrics.Enabled {
		metrics.MustRegister(nil)
	}

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	token := backend.NewToken(cfg.Backend.Token)
	if token.Empty() {
		logger.Warn().Msg("backend token not set; authenticated calls will be rejected")
	}
	client, err := backend.NewClient(cfg.Backend, token, logger)
	if err != nil {
		st.close()
		return nil, fmt.Errorf("backend: %w", err)
	}
	userKey := client.UserKey()
	logger.Info().Str("user", logging.Redact(userKey, cfg.Runtime.Dev)).Str("backend", cfg.Backend.BaseURL).Msg("checkout pipeline starting")

	plans, err := model.NewPlanCatalog(cfg.Payment.Plans)
	if err != nil {
		st.close()
		return nil, fmt.Errorf("plans: %w", err)
	}

	clock := countdown.RealClock{}
	otpUC := usecase.NewOTPUseCase(client, st.limiter, clock, usecase.OTPSettings{
		TTL:               cfg.OTP.TTL,
		AuthorizationTTL:  cfg.OTP.AuthTTL,
		RequestLimit:      cfg.OTP.RequestLimit,
		RequestWindow:     cfg.OTP.RequestWin,
		RevealIdentifiers: cfg.Runtime.Dev,
	}, logger)
	reconciler := usecase.NewReconcileUseCase(client, st.snapshots, clock, userKey, logger)
	notifier := usecase.NewNotificationUseCase(clock, cfg.Notification.TTL, logger)
	reconciler.Subscribe(usecase.NotifyOnTransition(notifier, clock, logger))

	payments := usecase.NewPaymentCoordinator(usecase.PaymentDeps{
		Backend:    client,
		Reconciler: reconciler,
		Notifier:   notifier,
		Authorizer: otpUC,
		Locker:     st.locker,
		Plans:      plans,
		Clock:      clock,
	}, usecase.PaymentSettings{
		GraceDelay:   cfg.Payment.GraceDelay,
		PollInterval: cfg.Payment.PollInterval,
		MaxAttempts:  cfg.Payment.MaxAttempts,
		Timeout:      cfg.Payment.Timeout,
		RequireOTP:   *cfg.Payment.RequireOTP,
	}, userKey, logger)

	return &app{
		cfg:        cfg,
		log:        logger,
		clock:      clock,
		otp:        otpUC,
		payments:   payments,
		reconciler: reconciler,
		notifier:   notifier,
		close:      st.close,
	}, nil
}

// openStores uses Redis when configured so the session lock and the snapshot
// survive restarts and are shared between processes. Otherwise state is in-process.
func openStores(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (stores, error) {
	if cfg.Redis.URL == "" {
		logger.Info().Msg("redis not configured; using in-process stores")
		return stores{
			locker:    memory.NewLocker(nil),
			limiter:   memory.NewRateLimiter(nil),
			snapshots: memory.NewSnapshotStore(),
			close:     func() {},
		}, nil
	}
	client, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		return stores{}, fmt.Errorf("redis: %w", err)
	}
	return stores{
		locker:    red.NewLocker(client),
		limiter:   red.NewRateLimiter(client),
		snapshots: red.NewSnapshotStore(client, cfg.Redis.TTL),
		close: func() {
			if err := client.Close(); err != nil {
				logger.Warn().Err(err).Msg("redis close")
			}
		},
	}, nil
}
