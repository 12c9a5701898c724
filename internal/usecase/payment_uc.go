// File: internal/usecase/payment_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
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
var _ PaymentCoordinator = (*paymentCoordinator)(nil)

// InitiateRequest is what the checkout form submits.
type InitiateRequest struct {
	PlanID string
	Method model.PaymentMethod
	Payor  model.PayorDetails
	// AuthorizationID is the verified payment-authorization challenge.
	AuthorizationID string
}

// PaymentCoordinator drives one external payment at a time from initiation,
// through status polling, to an outcome.
type PaymentCoordinator interface {
	Initiate(ctx context.Context, req InitiateRequest) (model.PaymentSession, error)
	// Cancel stops polling. The session becomes Cancelled unless it already finished.
	Cancel(ctx context.Context) error
	Current() (model.PaymentSession, error)
	// Remaining is the time left on the payment timeout, zero when idle.
	Remaining() time.Duration
	Subscribe(fn func(model.PaymentSession)) (unsubscribe func())
	Plans() []model.SubscriptionPlan
}

// PaymentSettings are the polling and timeout knobs.
type PaymentSettings struct {
	GraceDelay   time.Duration
	PollInterval time.Duration
	MaxAttempts  int
	Timeout      time.Duration
	RequireOTP   bool
}

func (s *PaymentSettings) applyDefaults() {
	if s.GraceDelay <= 0 {
		s.GraceDelay = 5 * time.Second
	}
	if s.PollInterval <= 0 {
		s.PollInterval = 10 * time.Second
	}
	if s.MaxAttempts <= 0 {
		s.MaxAttempts = 21
	}
	if s.Timeout <= 0 {
		s.Timeout = 210 * time.Second
	}
}

// lockTTL outlives the longest session so a crashed process frees the user eventually.
func (s PaymentSettings) lockTTL() time.Duration {
	return s.Timeout + s.GraceDelay + s.PollInterval + 30*time.Second
}

// paymentRun is the mutable state of one session. Scheduled callbacks capture
// their run and do nothing once it is no longer current.
type paymentRun struct {
	session   model.PaymentSession
	baseline  model.SubscriptionSnapshot
	timer     *countdown.Countdown
	poll      *countdown.Task
	ctx       context.Context
	cancel    context.CancelFunc
	lockToken string
	log       *zerolog.Logger
}

type paymentCoordinator struct {
	backend    adapter.BackendAPI
	reconciler ReconcileUseCase
	notifier   NotificationUseCase
	authorizer PaymentAuthorizer
	locker     repository.SessionLocker
	plans      *model.PlanCatalog
	clock      countdown.Clock
	settings   PaymentSettings
	userKey    string
	log        *zerolog.Logger

	mu        sync.Mutex
	run       *paymentRun
	starting  bool
	listeners observers[model.PaymentSession]
}

// PaymentDeps groups the collaborators of the coordinator.
type PaymentDeps struct {
	Backend    adapter.BackendAPI
	Reconciler ReconcileUseCase
	Notifier   NotificationUseCase
	Authorizer PaymentAuthorizer
	Locker     repository.SessionLocker
	Plans      *model.PlanCatalog
	Clock      countdown.Clock
}

func NewPaymentCoordinator(deps PaymentDeps, settings PaymentSettings, userKey string, logger *zerolog.Logger) *paymentCoordinator {
	settings.applyDefaults()
	if deps.Clock == nil {
		deps.Clock = countdown.RealClock{}
	}
	compLog := logger.With().Str("component", "PaymentCoordinator").Logger()
	return &paymentCoordinator{
		backend:    deps.Backend,
		reconciler: deps.Reconciler,
		notifier:   deps.Notifier,
		authorizer: deps.Authorizer,
		locker:     deps.Locker,
		plans:      deps.Plans,
		clock:      deps.Clock,
		settings:   settings,
		userKey:    userKey,
		log:        &compLog,
	}
}

func (c *paymentCoordinator) Plans() []model.SubscriptionPlan { return c.plans.List() }

func (c *paymentCoordinator) Initiate(ctx context.Context, req InitiateRequest) (model.PaymentSession, error) {
	defer logging.TraceDuration(c.log, "PaymentCoordinator.Initiate")()

	c.mu.Lock()
	if c.starting || (c.run != nil && !c.run.session.Status.Terminal()) {
		c.mu.Unlock()
		return model.PaymentSession{}, domain.ErrPaymentInProgress
	}
	c.starting = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.starting = false
		c.mu.Unlock()
	}()

	plan, err := c.plans.Get(req.PlanID)
	if err != nil {
		return model.PaymentSession{}, fmt.Errorf("%w: unknown plan %q", domain.ErrInitiation, req.PlanID)
	}
	if !plan.Accepts(req.Method) {
		return model.PaymentSession{}, fmt.Errorf("%w: plan %s cannot be paid with %q", domain.ErrInitiation, plan.ID, req.Method)
	}
	if req.Method == model.PaymentMethodMobileMoney && (req.Payor.PhoneNumber == "" || req.Payor.Operator == "") {
		return model.PaymentSession{}, fmt.Errorf("%w: mobile money needs phone number and operator: %w", domain.ErrInitiation, domain.ErrInvalidArgument)
	}

	var auth model.OTPAuthorization
	if c.settings.RequireOTP {
		if c.authorizer == nil {
			return model.PaymentSession{}, domain.ErrAuthorizationRequired
		}
		auth, err = c.authorizer.Authorization(req.AuthorizationID)
		if err != nil {
			return model.PaymentSession{}, err
		}
		if auth.Tier != plan.Tier {
			return model.PaymentSession{}, fmt.Errorf("%w: authorized for %s, buying %s", domain.ErrAuthorizationRequired, auth.Tier, plan.Tier)
		}
	}

	lockKey := repository.PaymentLockKey(c.userKey)
	token, err := c.locker.TryLock(ctx, lockKey, c.settings.lockTTL())
	if err != nil {
		if errors.Is(err, domain.ErrLocked) {
			return model.PaymentSession{}, domain.ErrPaymentInProgress
		}
		return model.PaymentSession{}, fmt.Errorf("%w: session lock: %w", domain.ErrInitiation, err)
	}

	baseline, err := c.reconciler.EnsureBaseline(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("no subscription baseline; upgrade detection relies on the next fetch")
		baseline = model.FreeSnapshot(c.clock.Now())
	}

	now := c.clock.Now()
	session := model.PaymentSession{
		ID:          uuid.NewString(),
		PlanID:      plan.ID,
		Tier:        plan.Tier,
		Amount:      plan.Amount,
		Currency:    plan.Currency,
		Method:      req.Method,
		Status:      model.PaymentStatusInitiated,
		StartedAt:   now,
		TimeoutAt:   now.Add(c.settings.Timeout),
		MaxAttempts: c.settings.MaxAttempts,
	}
	runCtx, cancel := context.WithCancel(logging.WithSessionID(context.Background(), session.ID))
	run := &paymentRun{
		session:   session,
		baseline:  baseline,
		timer:     countdown.New(c.clock),
		ctx:       runCtx,
		cancel:    cancel,
		lockToken: token,
		log:       logging.With(runCtx, c.log),
	}
	c.listeners.emit(session)

	res, err := c.backend.InitiatePayment(ctx, adapter.PaymentInitRequest{
		IdempotencyKey: session.ID,
		PlanID:         plan.ID,
		Tier:           plan.Tier,
		Amount:         plan.Amount,
		Currency:       plan.Currency,
		Method:         req.Method,
		Payor:          req.Payor,
		Authorization:  auth.Token,
		Description:    fmt.Sprintf("NextChapter %s subscription", plan.Name),
	})
	if err != nil {
		c.mu.Lock()
		c.run = run
		failed := c.finishLocked(run, model.PaymentStatusFailed, err.Error())
		c.mu.Unlock()
		cancel()
		c.release(run)
		run.log.Error().Err(err).Str("plan", plan.ID).Msg("payment initiation failed")
		c.listeners.emit(failed)
		return failed, fmt.Errorf("%w: %w", domain.ErrInitiation, err)
	}
	if c.settings.RequireOTP {
		c.authorizer.Spend(req.AuthorizationID)
	}

	c.mu.Lock()
	c.run = run
	run.session.TransactionID = res.TransactionID
	run.session.RedirectURL = res.RedirectURL
	run.session.Status = model.PaymentStatusAwaitingExternalAction
	awaiting := run.session

	accepted := c.clock.Now()
	run.session.Status = model.PaymentStatusPolling
	run.session.TimeoutAt = accepted.Add(c.settings.Timeout)
	run.timer.Start(c.settings.Timeout, nil, func() { c.onTimeout(run) })
	run.poll = countdown.Schedule(c.clock, c.settings.GraceDelay, func() { c.poll(run) })
	polling := run.session
	c.mu.Unlock()

	run.log.Info().
		Str("transaction_id", res.TransactionID).
		Str("plan", plan.ID).
		Str("method", string(req.Method)).
		Int64("amount", plan.Amount).
		Msg("payment initiated; polling for settlement")
	c.listeners.emit(awaiting)
	c.listeners.emit(polling)
	return polling, nil
}

// poll issues one status request. The next one is scheduled only after this
// response is processed, so polls for a run never overlap.
func (c *paymentCoordinator) poll(run *paymentRun) {
	c.mu.Lock()
	if c.run != run || run.session.Status != model.PaymentStatusPolling {
		c.mu.Unlock()
		return
	}
	run.session.PollAttempt++
	attempt := run.session.PollAttempt
	txID := run.session.TransactionID
	c.mu.Unlock()

	raw, err := c.backend.TransactionStatus(run.ctx, txID)
	if err != nil {
		metrics.IncPaymentPoll("error")
		run.log.Warn().Err(err).Int("attempt", attempt).Msg("status poll failed")
		c.next(run, "")
		return
	}

	outcome := model.CanonicalGatewayStatus(raw)
	metrics.IncPaymentPoll(string(outcome))
	run.log.Debug().Int("attempt", attempt).Str("gateway_status", raw).Str("outcome", string(outcome)).Msg("status polled")

	switch outcome {
	case model.GatewayTentativeSuccess:
		c.confirm(run, raw)
	case model.GatewayFailed:
		c.fail(run, model.PaymentStatusFailed, raw)
	case model.GatewayCancelled:
		c.fail(run, model.PaymentStatusCancelled, raw)
	default:
		c.next(run, raw)
	}
}

// confirm asks the reconciler whether the purchased tier is really active.
// The gateway can report success before the backend's record settles.
func (c *paymentCoordinator) confirm(run *paymentRun, raw string) {
	snap, kind, err := c.reconciler.Fetch(run.ctx)
	if err != nil {
		run.log.Warn().Err(err).Msg("confirmation fetch failed")
		c.next(run, raw)
		return
	}
	if !snap.Grants(run.session.Tier) {
		run.log.Info().Str("tier", string(snap.Tier)).Str("status", string(snap.Status)).Msg("gateway reports paid; subscription not settled yet")
		c.next(run, raw)
		return
	}

	c.mu.Lock()
	if c.run != run || run.session.Status != model.PaymentStatusPolling {
		// Timed out or superseded while the request was in flight. The
		// reconciler has already published the upgrade.
		status := run.session.Status
		c.mu.Unlock()
		run.log.Info().Str("status", string(status)).Msg("payment settled after the session stopped polling")
		return
	}
	run.session.LastGatewayStatus = raw
	done := c.finishLocked(run, model.PaymentStatusSucceeded, "")
	// An upgrade is announced by the reconciler's transition. Buying the tier
	// the baseline already had, active or lapsed, is not one.
	renewal := kind != model.TransitionUpgraded && run.baseline.Tier.Rank() >= run.session.Tier.Rank()
	c.mu.Unlock()

	run.cancel()
	c.release(run)
	run.log.Info().Int("attempts", done.PollAttempt).Bool("renewal", renewal).Msg("payment succeeded")
	if renewal && c.notifier != nil {
		c.notifier.Enqueue(model.Notification{
			Kind:    model.NotificationSuccess,
			Title:   "Subscription Renewed!",
			Message: "Your payment was received and your subscription has been extended.",
		})
	}
	c.listeners.emit(done)
}

func (c *paymentCoordinator) fail(run *paymentRun, status model.PaymentStatus, raw string) {
	c.mu.Lock()
	if c.run != run || run.session.Status != model.PaymentStatusPolling {
		c.mu.Unlock()
		return
	}
	run.session.LastGatewayStatus = raw
	done := c.finishLocked(run, status, "gateway reported "+raw)
	c.mu.Unlock()

	run.cancel()
	c.release(run)
	run.log.Warn().Str("status", string(status)).Str("gateway_status", raw).Msg("payment not completed")
	title, msg := "Payment failed", "Your payment was not completed. Please try again."
	if status == model.PaymentStatusCancelled {
		title, msg = "Payment cancelled", "The payment was cancelled. Please try again."
	}
	c.notify(model.NotificationError, title, msg)
	c.listeners.emit(done)
}

// next schedules the following poll, or ends the session when attempts run out.
func (c *paymentCoordinator) next(run *paymentRun, raw string) {
	c.mu.Lock()
	if c.run != run || run.session.Status != model.PaymentStatusPolling {
		c.mu.Unlock()
		return
	}
	if raw != "" {
		run.session.LastGatewayStatus = raw
	}
	if run.session.PollAttempt >= run.session.MaxAttempts {
		done := c.finishLocked(run, model.PaymentStatusTimedOut, "poll attempts exhausted")
		c.mu.Unlock()
		c.timedOut(run, done)
		return
	}
	run.poll = countdown.Schedule(c.clock, c.settings.PollInterval, func() { c.poll(run) })
	progress := run.session
	c.mu.Unlock()
	c.listeners.emit(progress)
}

func (c *paymentCoordinator) onTimeout(run *paymentRun) {
	c.mu.Lock()
	if c.run != run || run.session.Status != model.PaymentStatusPolling {
		c.mu.Unlock()
		return
	}
	done := c.finishLocked(run, model.PaymentStatusTimedOut, "payment timeout elapsed")
	c.mu.Unlock()
	c.timedOut(run, done)
}

// timedOut reports the soft timeout. An in-flight poll is left to finish:
// its late success still reaches the reconciler.
func (c *paymentCoordinator) timedOut(run *paymentRun, done model.PaymentSession) {
	c.release(run)
	run.log.Warn().Int("attempts", done.PollAttempt).Str("reason", done.Reason).Msg("payment timed out; settlement may still complete")
	c.notify(model.NotificationError, "Payment still processing",
		"We have not received confirmation yet. If you completed the payment, your subscription will update once it settles.")
	c.listeners.emit(done)
}

func (c *paymentCoordinator) Cancel(ctx context.Context) error {
	c.mu.Lock()
	run := c.run
	if run == nil {
		c.mu.Unlock()
		return domain.ErrNotFound
	}
	if run.session.Status.Terminal() {
		c.mu.Unlock()
		return nil
	}
	done := c.finishLocked(run, model.PaymentStatusCancelled, "cancelled by user")
	c.mu.Unlock()

	run.cancel()
	c.release(run)
	run.log.Info().Msg("payment cancelled by user")
	c.listeners.emit(done)
	return nil
}

// finishLocked moves run to a terminal status and stops its schedules.
func (c *paymentCoordinator) finishLocked(run *paymentRun, status model.PaymentStatus, reason string) model.PaymentSession {
	now := c.clock.Now()
	run.session.Status = status
	run.session.Reason = reason
	run.session.FinishedAt = &now
	run.poll.Cancel()
	run.timer.Cancel()
	metrics.IncPayment(string(status))
	metrics.ObservePaymentSession(string(status), now.Sub(run.session.StartedAt).Seconds())
	return run.session
}

func (c *paymentCoordinator) release(run *paymentRun) {
	if run.lockToken == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.locker.Unlock(ctx, repository.PaymentLockKey(c.userKey), run.lockToken); err != nil {
		run.log.Warn().Err(err).Msg("failed to release payment session lock")
	}
}

func (c *paymentCoordinator) notify(kind model.NotificationKind, title, msg string) {
	if c.notifier == nil {
		return
	}
	c.notifier.Enqueue(model.Notification{Kind: kind, Title: title, Message: msg})
}

func (c *paymentCoordinator) Current() (model.PaymentSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.run == nil {
		return model.PaymentSession{}, domain.ErrNotFound
	}
	return c.run.session, nil
}

func (c *paymentCoordinator) Remaining() time.Duration {
	c.mu.Lock()
	run := c.run
	c.mu.Unlock()
	if run == nil {
		return 0
	}
	return run.timer.Remaining()
}

func (c *paymentCoordinator) Subscribe(fn func(model.PaymentSession)) func() {
	return c.listeners.add(fn)
}
