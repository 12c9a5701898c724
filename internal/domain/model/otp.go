package model

import (
	"time"
)

// OTPChallengeTTL must match the backend's own code expiry.
const OTPChallengeTTL = 150 * time.Second

// PaymentAuthorizationTTL bounds how long a verified payment code can start a payment.
const PaymentAuthorizationTTL = 5 * time.Minute

type OTPPurpose string

const (
	OTPPurposeRegistration         OTPPurpose = "registration"
	OTPPurposePaymentAuthorization OTPPurpose = "payment_authorization"
)

func (p OTPPurpose) Valid() bool {
	return p == OTPPurposeRegistration || p == OTPPurposePaymentAuthorization
}

type OTPChannel string

const (
	OTPChannelEmail OTPChannel = "email"
	OTPChannelPhone OTPChannel = "phone"
)

func (c OTPChannel) Valid() bool {
	return c == OTPChannelEmail || c == OTPChannelPhone
}

// OTPChallenge is a single-use code issued for one purpose.
type OTPChallenge struct {
	ID          string     `json:"id"`        // local ULID
	Reference   string     `json:"reference"` // backend challenge reference
	Identifier  string     `json:"identifier"`
	CountryCode string     `json:"country_code,omitempty"`
	Purpose     OTPPurpose `json:"purpose"`
	Channel     OTPChannel `json:"channel"`
	Tier        Tier       `json:"tier,omitempty"` // payment authorization only
	IssuedAt    time.Time  `json:"issued_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	Consumed    bool       `json:"consumed"`
	Expired     bool       `json:"expired"` // set when the countdown elapses unverified
}

// Live reports whether the challenge can still be verified at now.
func (c OTPChallenge) Live(now time.Time) bool {
	return !c.Consumed && !c.Expired && now.Before(c.ExpiresAt)
}

// OTPAuthorization is the artifact returned by a successful verification.
type OTPAuthorization struct {
	ChallengeID string     `json:"challenge_id"`
	Purpose     OTPPurpose `json:"purpose"`
	Token       string     `json:"token,omitempty"`
	Tier        Tier       `json:"tier,omitempty"`
	VerifiedAt  time.Time  `json:"verified_at"`
}
