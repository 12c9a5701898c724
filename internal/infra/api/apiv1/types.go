package apiv1

import "nextchapter-billing/internal/domain/model"

type OTPRequest struct {
	Identifier  string `json:"identifier"`
	CountryCode string `json:"country_code,omitempty"`
	Purpose     string `json:"purpose"`
	Channel     string `json:"channel"`
	Tier        string `json:"tier,omitempty"`
}

type VerifyRequest struct {
	Code string `json:"code"`
}

type Challenge struct {
	model.OTPChallenge
	RemainingSeconds int `json:"remaining_seconds"`
}

type PaymentRequest struct {
	PlanID          string             `json:"plan_id"`
	Method          string             `json:"method"`
	Payor           model.PayorDetails `json:"payor"`
	AuthorizationID string             `json:"authorization_id,omitempty"`
}

type Session struct {
	model.PaymentSession
	RemainingSeconds int `json:"remaining_seconds"`
}

type Subscription struct {
	model.SubscriptionSnapshot
	DisplayName string           `json:"display_name"`
	Transition  model.Transition `json:"transition,omitempty"`
}

type Notification struct {
	model.Notification
	TTLMs int64 `json:"ttl_ms"`
}

type Error struct {
	Error string `json:"error"`
}
