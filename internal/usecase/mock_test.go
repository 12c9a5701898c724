//go:build !integration

package usecase_test

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"nextchapter-billing/internal/countdown/countdowntest"
	"nextchapter-billing/internal/domain/model"
	"nextchapter-billing/internal/domain/ports/adapter"
	"nextchapter-billing/internal/infra/memory"
	"nextchapter-billing/internal/usecase"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// newTestLogger creates a silent zerolog.Logger for use in tests.
// It writes to io.Discard to prevent logs from cluttering test output.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

func freeSnap() model.SubscriptionSnapshot {
	return model.SubscriptionSnapshot{Tier: model.TierFree, Status: model.SubscriptionStatusNone}
}

func premiumSnap(expires time.Time) model.SubscriptionSnapshot {
	return model.SubscriptionSnapshot{Tier: model.TierPremium, Status: model.SubscriptionStatusActive, ExpiresAt: &expires}
}

// ---- Mock BackendAPI ----

// MockBackend is a scriptable BackendAPI. Zero values answer happily.
type MockBackend struct {
	mu sync.Mutex

	RequestOTPFunc func(req adapter.OTPIssueRequest) (adapter.OTPIssue, error)
	OTPRequests    []adapter.OTPIssueRequest

	ValidCode    string // accepted by VerifyOTP; anything else is a 400
	VerifyErr    error  // returned instead, e.g. a transport failure
	VerifyCalls  int
	InitiateErr  error
	Initiations  []adapter.PaymentInitRequest
	StatusFunc   func(poll int) (string, error) // poll is 1-based
	StatusCalls  int
	Snapshot     model.SubscriptionSnapshot
	SnapshotErr  error
	SnapshotFunc func(polls int) model.SubscriptionSnapshot // overrides Snapshot when set
	Fetches      int
}

var _ adapter.BackendAPI = (*MockBackend)(nil)

func (m *MockBackend) RequestOTP(ctx context.Context, req adapter.OTPIssueRequest) (adapter.OTPIssue, error) {
	m.mu.Lock()
	m.OTPRequests = append(m.OTPRequests, req)
	fn := m.RequestOTPFunc
	m.mu.Unlock()
	if fn != nil {
		return fn(req)
	}
	return adapter.OTPIssue{Reference: "ref-1", ExpiresIn: 150 * time.Second}, nil
}

func (m *MockBackend) VerifyOTP(ctx context.Context, ch model.OTPChallenge, code string) (adapter.OTPVerification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.VerifyCalls++
	if m.VerifyErr != nil {
		return adapter.OTPVerification{}, m.VerifyErr
	}
	if code != m.ValidCode {
		return adapter.OTPVerification{}, &adapter.APIError{StatusCode: http.StatusBadRequest, Detail: "Invalid OTP"}
	}
	return adapter.OTPVerification{Token: "auth-" + ch.Reference}, nil
}

func (m *MockBackend) InitiatePayment(ctx context.Context, req adapter.PaymentInitRequest) (adapter.PaymentInit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Initiations = append(m.Initiations, req)
	if m.InitiateErr != nil {
		return adapter.PaymentInit{}, m.InitiateErr
	}
	return adapter.PaymentInit{TransactionID: "tx-" + req.IdempotencyKey[:8]}, nil
}

func (m *MockBackend) TransactionStatus(ctx context.Context, transactionID string) (string, error) {
	m.mu.Lock()
	m.StatusCalls++
	n := m.StatusCalls
	fn := m.StatusFunc
	m.mu.Unlock()
	if fn == nil {
		return "pending", nil
	}
	return fn(n)
}

func (m *MockBackend) SubscriptionSnapshot(ctx context.Context) (model.SubscriptionSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Fetches++
	if m.SnapshotErr != nil {
		return model.SubscriptionSnapshot{}, m.SnapshotErr
	}
	if m.SnapshotFunc != nil {
		return m.SnapshotFunc(m.StatusCalls), nil
	}
	return m.Snapshot, nil
}

func (m *MockBackend) SetSnapshot(s model.SubscriptionSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SnapshotFunc = nil
	m.Snapshot = s
}

func (m *MockBackend) Polls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.StatusCalls
}

// ---- Harness ----

// checkout wires the whole pipeline on a manual clock with in-memory stores.
type checkout struct {
	clock   *countdowntest.Clock
	backend *MockBackend
	locker  *memory.Locker
	otp     interface {
		usecase.OTPUseCase
		usecase.PaymentAuthorizer
	}
	reconciler  usecase.ReconcileUseCase
	notifier    usecase.NotificationUseCase
	coordinator usecase.PaymentCoordinator

	mu       sync.Mutex
	shown    []model.Notification
	sessions []model.PaymentSession
}

func newCheckout(settings usecase.PaymentSettings) *checkout {
	logger := newTestLogger()
	clk := countdowntest.New(epoch)
	backend := &MockBackend{ValidCode: "123456", Snapshot: freeSnap()}
	locker := memory.NewLocker(clk.Now)

	otp := usecase.NewOTPUseCase(backend, memory.NewRateLimiter(clk.Now), clk, usecase.OTPSettings{
		RequestLimit:  5,
		RequestWindow: 15 * time.Minute,
	}, logger)
	reconciler := usecase.NewReconcileUseCase(backend, memory.NewSnapshotStore(), clk, "user-1", logger)
	notifier := usecase.NewNotificationUseCase(clk, 0, logger)
	reconciler.Subscribe(usecase.NotifyOnTransition(notifier, clk, logger))

	plans, err := model.NewPlanCatalog(model.DefaultPlans())
	if err != nil {
		panic(err)
	}
	coordinator := usecase.NewPaymentCoordinator(usecase.PaymentDeps{
		Backend:    backend,
		Reconciler: reconciler,
		Notifier:   notifier,
		Authorizer: otp,
		Locker:     locker,
		Plans:      plans,
		Clock:      clk,
	}, settings, "user-1", logger)

	c := &checkout{
		clock:       clk,
		backend:     backend,
		locker:      locker,
		otp:         otp,
		reconciler:  reconciler,
		notifier:    notifier,
		coordinator: coordinator,
	}
	notifier.Subscribe(func(ch usecase.NotificationChange) {
		if ch.Visible {
			c.mu.Lock()
			c.shown = append(c.shown, ch.Notification)
			c.mu.Unlock()
		}
	})
	coordinator.Subscribe(func(s model.PaymentSession) {
		c.mu.Lock()
		c.sessions = append(c.sessions, s)
		c.mu.Unlock()
	})
	return c
}

func (c *checkout) notifications(kind model.NotificationKind) []model.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []model.Notification
	for _, n := range c.shown {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

// authorize runs the payment OTP flow for tier and returns the challenge ID.
func (c *checkout) authorize(tier model.Tier) (string, error) {
	ch, err := c.otp.Request(context.Background(), usecase.OTPRequest{
		Identifier: "reader@nextchapter.mw",
		Purpose:    model.OTPPurposePaymentAuthorization,
		Channel:    model.OTPChannelEmail,
		Tier:       tier,
	})
	if err != nil {
		return "", err
	}
	if _, err := c.otp.Verify(context.Background(), ch.ID, c.backend.ValidCode); err != nil {
		return "", err
	}
	return ch.ID, nil
}

func dailyMobileMoney(authID string) usecase.InitiateRequest {
	return usecase.InitiateRequest{
		PlanID:          "daily",
		Method:          model.PaymentMethodMobileMoney,
		Payor:           model.PayorDetails{PhoneNumber: "0991234567", Operator: "airtel"},
		AuthorizationID: authID,
	}
}
