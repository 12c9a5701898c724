// Package apiv1 is the local JSON bridge the app's views use to drive checkout.
package apiv1

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"nextchapter-billing/internal/countdown"
	"nextchapter-billing/internal/domain"
	"nextchapter-billing/internal/domain/model"
	"nextchapter-billing/internal/infra/logging"
	"nextchapter-billing/internal/usecase"
)

type Server struct {
	otp        usecase.OTPUseCase
	payments   usecase.PaymentCoordinator
	reconciler usecase.ReconcileUseCase
	notifier   usecase.NotificationUseCase
	clock      countdown.Clock
	log        *zerolog.Logger
}

func NewServer(otp usecase.OTPUseCase, payments usecase.PaymentCoordinator, reconciler usecase.ReconcileUseCase,
	notifier usecase.NotificationUseCase, clock countdown.Clock, logger *zerolog.Logger) *Server {
	if clock == nil {
		clock = countdown.RealClock{}
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Server{otp: otp, payments: payments, reconciler: reconciler, notifier: notifier, clock: clock, log: logger}
}

// RegisterAPIV1 mounts every /v1 route on r.
func RegisterAPIV1(r chi.Router, s *Server) {
	r.Route("/v1", func(r chi.Router) {
		r.Post("/otp", s.requestOTP)
		r.Get("/otp/{id}", s.getOTP)
		r.Post("/otp/{id}/verify", s.verifyOTP)
		r.Delete("/otp/{id}", s.cancelOTP)

		r.Get("/plans", s.listPlans)
		r.Post("/payments", s.initiatePayment)
		r.Get("/payments/current", s.currentPayment)
		r.Delete("/payments/current", s.cancelPayment)

		r.Post("/subscription/reconcile", s.reconcile)
		r.Get("/subscription", s.subscription)

		r.Get("/notifications/current", s.currentNotification)
		r.Delete("/notifications/current", s.dismissNotification)
	})
}

func (s *Server) requestOTP(w http.ResponseWriter, r *http.Request) {
	var in OTPRequest
	if !decode(w, r, &in) {
		return
	}
	ch, err := s.otp.Request(r.Context(), usecase.OTPRequest{
		Identifier:  in.Identifier,
		CountryCode: in.CountryCode,
		Purpose:     model.OTPPurpose(in.Purpose),
		Channel:     model.OTPChannel(in.Channel),
		Tier:        model.ParseTier(in.Tier),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, Challenge{OTPChallenge: ch, RemainingSeconds: seconds(ch.ExpiresAt.Sub(s.clock.Now()))})
}

func (s *Server) getOTP(w http.ResponseWriter, r *http.Request) {
	ch, remaining, err := s.otp.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Challenge{OTPChallenge: ch, RemainingSeconds: seconds(remaining)})
}

func (s *Server) verifyOTP(w http.ResponseWriter, r *http.Request) {
	var in VerifyRequest
	if !decode(w, r, &in) {
		return
	}
	auth, err := s.otp.Verify(r.Context(), chi.URLParam(r, "id"), in.Code)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, auth)
}

func (s *Server) cancelOTP(w http.ResponseWriter, r *http.Request) {
	if err := s.otp.Cancel(chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listPlans(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": s.payments.Plans()})
}

func (s *Server) initiatePayment(w http.ResponseWriter, r *http.Request) {
	var in PaymentRequest
	if !decode(w, r, &in) {
		return
	}
	sess, err := s.payments.Initiate(r.Context(), usecase.InitiateRequest{
		PlanID:          in.PlanID,
		Method:          model.PaymentMethod(in.Method),
		Payor:           in.Payor,
		AuthorizationID: in.AuthorizationID,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, Session{PaymentSession: sess, RemainingSeconds: seconds(s.payments.Remaining())})
}

func (s *Server) currentPayment(w http.ResponseWriter, r *http.Request) {
	sess, err := s.payments.Current()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Session{PaymentSession: sess, RemainingSeconds: seconds(s.payments.Remaining())})
}

func (s *Server) cancelPayment(w http.ResponseWriter, r *http.Request) {
	if err := s.payments.Cancel(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	sess, _ := s.payments.Current()
	writeJSON(w, http.StatusOK, Session{PaymentSession: sess})
}

func (s *Server) reconcile(w http.ResponseWriter, r *http.Request) {
	snap, kind, err := s.reconciler.Fetch(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Subscription{
		SubscriptionSnapshot: snap,
		DisplayName:          displayName(snap, s.clock.Now()),
		Transition:           kind,
	})
}

func (s *Server) subscription(w http.ResponseWriter, r *http.Request) {
	snap, err := s.reconciler.Current(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Subscription{SubscriptionSnapshot: snap, DisplayName: displayName(snap, s.clock.Now())})
}

func (s *Server) currentNotification(w http.ResponseWriter, r *http.Request) {
	n, ok := s.notifier.Current()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, Notification{Notification: n, TTLMs: n.TTL.Milliseconds()})
}

func (s *Server) dismissNotification(w http.ResponseWriter, r *http.Request) {
	s.notifier.Dismiss()
	w.WriteHeader(http.StatusNoContent)
}

// fail maps domain errors onto HTTP statuses. Unclassified errors come from
// the backend, hence 502.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := StatusFor(err)
	l := logging.With(r.Context(), s.log)
	if code >= http.StatusInternalServerError {
		l.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	} else {
		l.Debug().Err(err).Str("path", r.URL.Path).Int("status", code).Msg("request rejected")
	}
	writeJSON(w, code, Error{Error: err.Error()})
}

func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrPaymentInProgress), errors.Is(err, domain.ErrLocked):
		return http.StatusConflict
	case errors.Is(err, domain.ErrChallengeExpired):
		return http.StatusGone
	case errors.Is(err, domain.ErrInvalidCode), errors.Is(err, domain.ErrInitiation), errors.Is(err, domain.ErrAuthorizationRequired):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil {
		writeJSON(w, http.StatusBadRequest, Error{Error: "empty body"})
		return false
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, Error{Error: "invalid json: " + err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func seconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(d.Round(time.Second) / time.Second)
}

func displayName(s model.SubscriptionSnapshot, now time.Time) string {
	if !s.Grants(model.TierPremium) {
		return "Free"
	}
	return s.DisplayName(now)
}
