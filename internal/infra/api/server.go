package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"nextchapter-billing/internal/infra/api/apiv1"
)

// NewRouter assembles the view bridge: middleware, health, metrics and /v1.
func NewRouter(v1 *apiv1.Server, logger *zerolog.Logger, withMetrics bool) http.Handler {
	r := chi.NewRouter()
	r.Use(Guard(logger, 30*time.Second)...)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	if withMetrics {
		r.Handle("/metrics", promhttp.Handler())
	}
	apiv1.RegisterAPIV1(r, v1)
	return r
}

// NewHTTPServer wraps h with the bridge's timeouts.
func NewHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
