package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"nextchapter-billing/internal/countdown"
	"nextchapter-billing/internal/domain"
	"nextchapter-billing/internal/domain/model"
	"nextchapter-billing/internal/domain/ports/adapter"
	"nextchapter-billing/internal/domain/ports/repository"
	"nextchapter-billing/internal/infra/logging"
	"nextchapter-billing/internal/infra/metrics"
)

// Compile-time checks
var (
	_ OTPUseCase        = (*otpUC)(nil)
	_ PaymentAuthorizer = (*otpUC)(nil)
)

// OTPRequest describes who should receive a code and what it unlocks.
type OTPRequest struct {
	Identifier  string
	CountryCode string
	Purpose     model.OTPPurpose
	Channel     model.OTPChannel
	Tier        model.Tier // required for payment authorization
}

// OTPEvent reports countdown progress and expiry of a challenge.
type OTPEvent struct {
	Challenge model.OTPChallenge
	Remaining time.Duration
	Expired   bool
}

type OTPUseCase interface {
	Request(ctx context.Context, req OTPRequest) (model.OTPChallenge, error)
	Verify(ctx context.Context, challengeID, code string) (model.OTPAuthorization, error)
	// Cancel abandons a challenge. Cancelling twice is a no-op.
	Cancel(challengeID string) error
	Get(challengeID string) (model.OTPChallenge, time.Duration, error)
	Subscribe(fn func(OTPEvent)) (unsubscribe func())
}

// PaymentAuthorizer hands verified payment authorizations to the payment flow.
type PaymentAuthorizer interface {
	// Authorization returns an unspent payment authorization for challengeID.
	Authorization(challengeID string) (model.OTPAuthorization, error)
	// Spend marks the authorization used so it cannot start a second payment.
	Spend(challengeID string)
}

// OTPSettings are the knobs of the OTP flow.
type OTPSettings struct {
	TTL              time.Duration
	AuthorizationTTL time.Duration // lifetime of a verified payment authorization
	RequestLimit     int
	RequestWindow    time.Duration
	// RevealIdentifiers logs emails and phone numbers unredacted (dev only).
	RevealIdentifiers bool
}

type otpEntry struct {
	ch    model.OTPChallenge
	timer *countdown.Countdown
	auth  *model.OTPAuthorization
	spent bool
}

type otpUC struct {
	backend  adapter.BackendAPI
	limiter  repository.RateLimiter
	clock    countdown.Clock
	settings OTPSettings
	log      *zerolog.Logger

	mu        sync.Mutex
	entries   map[string]*otpEntry
	live      map[model.OTPPurpose]string // purpose -> newest challenge id
	listeners observers[OTPEvent]
}

func NewOTPUseCase(backend adapter.BackendAPI, limiter repository.RateLimiter, clock countdown.Clock, settings OTPSettings, logger *zerolog.Logger) *otpUC {
	if clock == nil {
		clock = countdown.RealClock{}
	}
	if settings.TTL <= 0 {
		settings.TTL = model.OTPChallengeTTL
	}
	if settings.AuthorizationTTL <= 0 {
		settings.AuthorizationTTL = model.PaymentAuthorizationTTL
	}
	compLog := logger.With().Str("component", "OTPUC").Logger()
	return &otpUC{
		backend:  backend,
		limiter:  limiter,
		clock:    clock,
		settings: settings,
		log:      &compLog,
		entries:  make(map[string]*otpEntry),
		live:     make(map[model.OTPPurpose]string),
	}
}

func (u *otpUC) Request(ctx context.Context, req OTPRequest) (model.OTPChallenge, error) {
	defer logging.TraceDuration(u.log, "OTPUC.Request")()

	if !req.Purpose.Valid() || !req.Channel.Valid() {
		return model.OTPChallenge{}, fmt.Errorf("%w: %w", domain.ErrDelivery, domain.ErrInvalidArgument)
	}
	if req.Purpose == model.OTPPurposePaymentAuthorization && req.Tier.Rank() == 0 {
		return model.OTPChallenge{}, fmt.Errorf("%w: payment authorization needs a paid tier: %w", domain.ErrDelivery, domain.ErrInvalidArgument)
	}
	identifier, err := normalizeIdentifier(req.Channel, req.Identifier)
	if err != nil {
		metrics.IncOTPRequest(string(req.Purpose), "rejected")
		return model.OTPChallenge{}, fmt.Errorf("%w: %w", domain.ErrDelivery, err)
	}
	who := logging.Redact(identifier, u.settings.RevealIdentifiers)

	if u.limiter != nil && u.settings.RequestLimit > 0 {
		ok, err := u.limiter.Allow(ctx, repository.OTPRequestKey(identifier, string(req.Purpose)), u.settings.RequestLimit, u.settings.RequestWindow)
		switch {
		case err != nil:
			// A limiter outage must not lock users out of payments.
			u.log.Warn().Err(err).Msg("otp rate limiter unavailable")
		case !ok:
			metrics.IncOTPRequest(string(req.Purpose), "rate_limited")
			u.log.Warn().Str("identifier", who).Str("purpose", string(req.Purpose)).Msg("otp request rate limited")
			return model.OTPChallenge{}, fmt.Errorf("%w: %w", domain.ErrDelivery, domain.ErrRateLimited)
		}
	}

	issue, err := u.backend.RequestOTP(ctx, adapter.OTPIssueRequest{
		Identifier:  identifier,
		CountryCode: req.CountryCode,
		Purpose:     req.Purpose,
		Channel:     req.Channel,
		Tier:        req.Tier,
	})
	if err != nil {
		result := "error"
		if adapter.IsRejection(err) {
			result = "rejected"
		}
		metrics.IncOTPRequest(string(req.Purpose), result)
		u.log.Error().Err(err).Str("identifier", who).Str("purpose", string(req.Purpose)).Msg("otp request failed")
		return model.OTPChallenge{}, fmt.Errorf("%w: %w", domain.ErrDelivery, err)
	}

	now := u.clock.Now()
	ttl := u.settings.TTL
	// The backend's clock wins when it reports a shorter life.
	if issue.ExpiresIn > 0 && issue.ExpiresIn < ttl {
		ttl = issue.ExpiresIn.Round(countdown.Resolution)
	}
	ch := model.OTPChallenge{
		ID:          model.NewULID(now),
		Reference:   issue.Reference,
		Identifier:  identifier,
		CountryCode: req.CountryCode,
		Purpose:     req.Purpose,
		Channel:     req.Channel,
		Tier:        req.Tier,
		IssuedAt:    now,
		ExpiresAt:   now.Add(ttl),
	}
	entry := &otpEntry{ch: ch, timer: countdown.New(u.clock)}

	u.mu.Lock()
	u.pruneLocked(now)
	if prevID, ok := u.live[req.Purpose]; ok {
		if prev := u.entries[prevID]; prev != nil && !prev.ch.Consumed {
			prev.ch.Consumed = true
			prev.timer.Cancel()
		}
	}
	u.entries[ch.ID] = entry
	u.live[req.Purpose] = ch.ID
	id := ch.ID
	entry.timer.Start(ttl,
		func(remaining time.Duration) { u.tick(id, remaining) },
		func() { u.expire(id) },
	)
	u.mu.Unlock()

	metrics.IncOTPRequest(string(req.Purpose), "issued")
	u.log.Info().Str("challenge_id", ch.ID).Str("identifier", who).Str("purpose", string(req.Purpose)).
		Str("channel", string(req.Channel)).Msg("otp challenge issued")
	return ch, nil
}

// pruneLocked drops challenges that have been dead for a full TTL. Entries
// holding a still-valid authorization are kept.
func (u *otpUC) pruneLocked(now time.Time) {
	for id, e := range u.entries {
		if e.auth != nil && now.Before(e.auth.VerifiedAt.Add(u.settings.AuthorizationTTL)) {
			continue
		}
		if !now.Before(e.ch.ExpiresAt.Add(u.settings.TTL)) {
			e.timer.Cancel()
			delete(u.entries, id)
			if u.live[e.ch.Purpose] == id {
				delete(u.live, e.ch.Purpose)
			}
		}
	}
}

func (u *otpUC) tick(id string, remaining time.Duration) {
	u.mu.Lock()
	e, ok := u.entries[id]
	if !ok || e.ch.Consumed {
		u.mu.Unlock()
		return
	}
	ch := e.ch
	u.mu.Unlock()
	if remaining > 0 {
		u.listeners.emit(OTPEvent{Challenge: ch, Remaining: remaining})
	}
}

func (u *otpUC) expire(id string) {
	u.mu.Lock()
	e, ok := u.entries[id]
	if !ok || e.ch.Consumed {
		u.mu.Unlock()
		return
	}
	e.ch.Expired = true
	ch := e.ch
	if u.live[ch.Purpose] == id {
		delete(u.live, ch.Purpose)
	}
	u.mu.Unlock()

	u.log.Info().Str("challenge_id", id).Str("purpose", string(ch.Purpose)).Msg("otp challenge expired")
	u.listeners.emit(OTPEvent{Challenge: ch, Expired: true})
}

func (u *otpUC) Verify(ctx context.Context, challengeID, code string) (model.OTPAuthorization, error) {
	defer logging.TraceDuration(u.log, "OTPUC.Verify")()

	u.mu.Lock()
	e, ok := u.entries[challengeID]
	if !ok {
		u.mu.Unlock()
		return model.OTPAuthorization{}, domain.ErrNotFound
	}
	ch := e.ch
	u.mu.Unlock()

	if ch.Consumed {
		metrics.IncOTPVerification("consumed")
		return model.OTPAuthorization{}, fmt.Errorf("%w: already consumed", domain.ErrChallengeExpired)
	}
	if ch.Expired || !u.clock.Now().Before(ch.ExpiresAt) {
		metrics.IncOTPVerification("expired")
		return model.OTPAuthorization{}, domain.ErrChallengeExpired
	}
	code = strings.TrimSpace(code)
	if code == "" {
		metrics.IncOTPVerification("invalid_code")
		return model.OTPAuthorization{}, domain.ErrInvalidCode
	}

	v, err := u.backend.VerifyOTP(ctx, ch, code)
	if err != nil {
		if adapter.IsRejection(err) {
			metrics.IncOTPVerification("invalid_code")
			u.log.Info().Str("challenge_id", challengeID).Msg("otp code rejected")
			return model.OTPAuthorization{}, fmt.Errorf("%w: %w", domain.ErrInvalidCode, err)
		}
		metrics.IncOTPVerification("error")
		u.log.Error().Err(err).Str("challenge_id", challengeID).Msg("otp verification failed")
		return model.OTPAuthorization{}, fmt.Errorf("verify otp: %w", err)
	}

	now := u.clock.Now()
	u.mu.Lock()
	if e.ch.Consumed {
		// A concurrent verify or cancel won.
		u.mu.Unlock()
		metrics.IncOTPVerification("consumed")
		return model.OTPAuthorization{}, fmt.Errorf("%w: already consumed", domain.ErrChallengeExpired)
	}
	e.ch.Consumed = true
	e.timer.Cancel()
	auth := model.OTPAuthorization{
		ChallengeID: ch.ID,
		Purpose:     ch.Purpose,
		Token:       v.Token,
		Tier:        ch.Tier,
		VerifiedAt:  now,
	}
	e.auth = &auth
	if u.live[ch.Purpose] == ch.ID {
		delete(u.live, ch.Purpose)
	}
	u.mu.Unlock()

	metrics.IncOTPVerification("ok")
	u.log.Info().Str("challenge_id", ch.ID).Str("purpose", string(ch.Purpose)).Msg("otp verified")
	return auth, nil
}

func (u *otpUC) Cancel(challengeID string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	e, ok := u.entries[challengeID]
	if !ok {
		return domain.ErrNotFound
	}
	if !e.ch.Consumed {
		e.ch.Consumed = true
		e.timer.Cancel()
		u.log.Debug().Str("challenge_id", challengeID).Msg("otp challenge cancelled")
	}
	if u.live[e.ch.Purpose] == challengeID {
		delete(u.live, e.ch.Purpose)
	}
	return nil
}

func (u *otpUC) Get(challengeID string) (model.OTPChallenge, time.Duration, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	e, ok := u.entries[challengeID]
	if !ok {
		return model.OTPChallenge{}, 0, domain.ErrNotFound
	}
	return e.ch, e.timer.Remaining(), nil
}

func (u *otpUC) Subscribe(fn func(OTPEvent)) func() {
	return u.listeners.add(fn)
}

func (u *otpUC) Authorization(challengeID string) (model.OTPAuthorization, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	e, ok := u.entries[challengeID]
	if !ok || e.auth == nil || e.spent || e.auth.Purpose != model.OTPPurposePaymentAuthorization {
		return model.OTPAuthorization{}, domain.ErrAuthorizationRequired
	}
	if !u.clock.Now().Before(e.auth.VerifiedAt.Add(u.settings.AuthorizationTTL)) {
		return model.OTPAuthorization{}, fmt.Errorf("%w: authorization expired, request a new code", domain.ErrAuthorizationRequired)
	}
	return *e.auth, nil
}

func (u *otpUC) Spend(challengeID string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if e, ok := u.entries[challengeID]; ok {
		e.spent = true
	}
}

// normalizeIdentifier checks the identifier shape before anything is sent.
func normalizeIdentifier(ch model.OTPChannel, raw string) (string, error) {
	s := strings.TrimSpace(raw)
	switch ch {
	case model.OTPChannelEmail:
		s = strings.ToLower(s)
		at := strings.LastIndex(s, "@")
		if at <= 0 || at == len(s)-1 || strings.ContainsAny(s, " \t") {
			return "", fmt.Errorf("malformed email: %w", domain.ErrInvalidArgument)
		}
		return s, nil
	default:
		s = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(s)
		s = strings.TrimPrefix(s, "+")
		if len(s) < 6 || len(s) > 15 {
			return "", fmt.Errorf("malformed phone number: %w", domain.ErrInvalidArgument)
		}
		for _, r := range s {
			if !unicode.IsDigit(r) {
				return "", fmt.Errorf("malformed phone number: %w", domain.ErrInvalidArgument)
			}
		}
		return s, nil
	}
}
