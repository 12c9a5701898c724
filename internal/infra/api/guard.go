package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"nextchapter-billing/internal/infra/api/apiv1"
	"nextchapter-billing/internal/infra/logging"
)

const (
	requestIDHeader = "X-Request-ID"
	maxRequestIDLen = 64
)

// Guard is the bridge's middleware stack in mount order: correlation and
// access log first so a recovered panic is still logged with its status.
func Guard(logger *zerolog.Logger, timeout time.Duration) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		correlate(logger),
		Recover(logger),
		deadline(timeout),
	}
}

// requestID keeps a caller-supplied id only when it is short and printable.
func requestID(r *http.Request) string {
	id := r.Header.Get(requestIDHeader)
	if id == "" || len(id) > maxRequestIDLen {
		return uuid.NewString()
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return uuid.NewString()
		}
	}
	return id
}

func correlate(logger *zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := requestID(r)
			w.Header().Set(requestIDHeader, id)
			r = r.WithContext(logging.WithTraceID(r.Context(), id))

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			l := logging.With(r.Context(), logger)
			ev := l.Debug()
			if status >= http.StatusInternalServerError {
				ev = l.Warn()
			}
			ev.Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("bridge request")
		})
	}
}

// Recover turns a handler panic into a JSON 500. http.ErrAbortHandler is
// re-raised so net/http can drop the connection.
func Recover(logger *zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logging.With(r.Context(), logger).Error().
					Interface("panic", rec).
					Str("path", r.URL.Path).
					Msg("handler panicked")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(apiv1.Error{Error: "internal error"})
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// deadline bounds the backend calls a handler makes on the caller's behalf.
func deadline(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
