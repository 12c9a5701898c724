//go:build !integration

package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"nextchapter-billing/internal/infra/api"
	"nextchapter-billing/internal/infra/api/apiv1"
	"nextchapter-billing/internal/infra/metrics"
)

func TestRouter_HealthAndMetrics(t *testing.T) {
	logger := zerolog.Nop()
	metrics.MustRegister(nil)
	h := api.NewRouter(apiv1.NewServer(nil, nil, nil, nil, nil, &logger), &logger, true)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Fatalf("health: %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "abc" {
		t.Errorf("request id not propagated: %q", got)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: %d", rec.Code)
	}
}

func TestRecover(t *testing.T) {
	logger := zerolog.Nop()
	h := api.Recover(&logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("want 500, got %d", rec.Code)
	}
	var body apiv1.Error
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil || body.Error != "internal error" {
		t.Errorf("expected json error body, got %q (%v)", rec.Body.String(), err)
	}
}

func TestGuard(t *testing.T) {
	logger := zerolog.Nop()
	wrap := func(h http.Handler) http.Handler {
		mws := api.Guard(&logger, time.Second)
		for i := len(mws) - 1; i >= 0; i-- {
			h = mws[i](h)
		}
		return h
	}

	t.Run("malformed request ids are replaced", func(t *testing.T) {
		h := wrap(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		for _, id := range []string{strings.Repeat("x", 65), "has space", "line\nbreak"} {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("X-Request-ID", id)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			got := rec.Header().Get("X-Request-ID")
			if got == "" || got == id {
				t.Errorf("id %q: expected a generated replacement, got %q", id, got)
			}
		}
	})

	t.Run("handlers run under a deadline", func(t *testing.T) {
		var hasDeadline bool
		h := wrap(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			_, hasDeadline = r.Context().Deadline()
		}))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		if !hasDeadline {
			t.Error("expected a request deadline")
		}
	})

	t.Run("panic keeps the request id", func(t *testing.T) {
		h := wrap(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", "trace-1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusInternalServerError || rec.Header().Get("X-Request-ID") != "trace-1" {
			t.Fatalf("got %d with id %q", rec.Code, rec.Header().Get("X-Request-ID"))
		}
	})
}
