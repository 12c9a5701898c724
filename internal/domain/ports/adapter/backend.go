package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"nextchapter-billing/internal/domain/model"
)

// OTPIssueRequest asks the backend to send a one-time code.
type OTPIssueRequest struct {
	Identifier  string
	CountryCode string
	Purpose     model.OTPPurpose
	Channel     model.OTPChannel
	Tier        model.Tier // payment authorization only
}

// OTPIssue is the backend's answer to an issue request.
type OTPIssue struct {
	Reference string        // challenge reference, may be empty when the backend keys by identifier
	ExpiresIn time.Duration // expiry hint, zero when not reported
	Message   string
}

// OTPVerification is the backend's acceptance of a code.
type OTPVerification struct {
	Token   string // auth artifact (session token or payment authorization id)
	Message string
}

// PaymentInitRequest starts an external payment transaction.
type PaymentInitRequest struct {
	IdempotencyKey string
	PlanID         string
	Tier           model.Tier
	Amount         int64
	Currency       string
	Method         model.PaymentMethod
	Payor          model.PayorDetails
	Authorization  string
	Description    string
}

// PaymentInit is the backend's acceptance of a payment.
type PaymentInit struct {
	TransactionID string
	RedirectURL   string // card payments; empty for mobile money prompts
	Message       string
}

// BackendAPI is the port to the product's REST backend.
type BackendAPI interface {
	RequestOTP(ctx context.Context, req OTPIssueRequest) (OTPIssue, error)
	VerifyOTP(ctx context.Context, challenge model.OTPChallenge, code string) (OTPVerification, error)
	InitiatePayment(ctx context.Context, req PaymentInitRequest) (PaymentInit, error)
	// TransactionStatus returns the gateway's free-text status verbatim.
	TransactionStatus(ctx context.Context, transactionID string) (string, error)
	SubscriptionSnapshot(ctx context.Context) (model.SubscriptionSnapshot, error)
}

// APIError is a non-2xx answer from the backend.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend http %d", e.StatusCode)
	}
	return fmt.Sprintf("backend http %d: %s", e.StatusCode, e.Detail)
}

// IsRejection reports whether err is a business rejection (4xx) rather than
// a transport or server failure.
func IsRejection(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode >= http.StatusBadRequest && apiErr.StatusCode < http.StatusInternalServerError &&
		apiErr.StatusCode != http.StatusUnauthorized && apiErr.StatusCode != http.StatusRequestTimeout
}
