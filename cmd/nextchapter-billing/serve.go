package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"nextchapter-billing/internal/infra/api"
	"nextchapter-billing/internal/infra/api/apiv1"
	"nextchapter-billing/internal/infra/sched"
)

func newServeCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the local checkout bridge for the app's views",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), flags)
		},
	}
}

func runServe(ctx context.Context, flags *rootFlags) error {
	a, err := newApp(ctx, flags)
	if err != nil {
		return err
	}
	defer a.close()

	v1 := apiv1.NewServer(a.otp, a.payments, a.reconciler, a.notifier, a.clock, a.log)
	server := api.NewHTTPServer(a.cfg.HTTP.Addr, api.NewRouter(v1, a.log, a.cfg.Metrics.Enabled))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info().Str("addr", server.Addr).Msg("checkout bridge listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if interval := a.cfg.Subscription.RefreshInterval; interval > 0 {
		refresher := sched.NewSubscriptionRefresher(a.reconciler, interval, a.log)
		g.Go(func() error { return refresher.Start(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info().Msg("shutdown requested")
		if err := a.payments.Cancel(context.Background()); err == nil {
			a.log.Info().Msg("in-flight payment session cancelled")
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
