package model

import (
	"strings"
	"time"
)

type PaymentMethod string

const (
	PaymentMethodMobileMoney PaymentMethod = "mobile_money"
	PaymentMethodCard        PaymentMethod = "card"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodMobileMoney || m == PaymentMethodCard
}

type PaymentStatus string

const (
	PaymentStatusInitiated              PaymentStatus = "initiated"
	PaymentStatusAwaitingExternalAction PaymentStatus = "awaiting_external_action"
	PaymentStatusPolling                PaymentStatus = "polling"
	PaymentStatusSucceeded              PaymentStatus = "succeeded"
	PaymentStatusFailed                 PaymentStatus = "failed"
	PaymentStatusCancelled              PaymentStatus = "cancelled"
	PaymentStatusTimedOut               PaymentStatus = "timed_out" // soft: settlement may still complete
)

// Terminal reports whether the session has stopped polling. TimedOut counts.
func (s PaymentStatus) Terminal() bool {
	switch s {
	case PaymentStatusSucceeded, PaymentStatusFailed, PaymentStatusCancelled, PaymentStatusTimedOut:
		return true
	}
	return false
}

// PayorDetails is what the user typed on the payment form.
type PayorDetails struct {
	PhoneNumber string `json:"phone_number,omitempty"`
	Operator    string `json:"operator,omitempty"` // mobile money operator, e.g. airtel | tnm
	Email       string `json:"email,omitempty"`
	Name        string `json:"name,omitempty"`
}

// PaymentSession tracks one external payment transaction from initiation to outcome.
type PaymentSession struct {
	ID                string        `json:"id"` // UUID, doubles as idempotency key
	TransactionID     string        `json:"transaction_id"`
	PlanID            string        `json:"plan_id"`
	Tier              Tier          `json:"tier"`
	Amount            int64         `json:"amount"`
	Currency          string        `json:"currency"`
	Method            PaymentMethod `json:"method"`
	Status            PaymentStatus `json:"status"`
	StartedAt         time.Time     `json:"started_at"`
	TimeoutAt         time.Time     `json:"timeout_at"`
	PollAttempt       int           `json:"poll_attempt"`
	MaxAttempts       int           `json:"max_attempts"`
	RedirectURL       string        `json:"redirect_url,omitempty"`
	LastGatewayStatus string        `json:"last_gateway_status,omitempty"`
	FinishedAt        *time.Time    `json:"finished_at,omitempty"`
	Reason            string        `json:"reason,omitempty"`
}

// GatewayOutcome is the canonical reading of a free-text gateway status.
type GatewayOutcome string

const (
	GatewayPending          GatewayOutcome = "pending"
	GatewayTentativeSuccess GatewayOutcome = "tentative_success"
	GatewayFailed           GatewayOutcome = "failed"
	GatewayCancelled        GatewayOutcome = "cancelled"
)

// gatewayStatusSynonyms is the whole vocabulary contract with the gateway.
// Anything not listed keeps the session polling.
var gatewayStatusSynonyms = map[string]GatewayOutcome{
	"success":   GatewayTentativeSuccess,
	"completed": GatewayTentativeSuccess,
	"paid":      GatewayTentativeSuccess,
	"failed":    GatewayFailed,
	"cancelled": GatewayCancelled,
}

// CanonicalGatewayStatus maps a raw status string case-insensitively.
func CanonicalGatewayStatus(raw string) GatewayOutcome {
	if o, ok := gatewayStatusSynonyms[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return o
	}
	return GatewayPending
}
