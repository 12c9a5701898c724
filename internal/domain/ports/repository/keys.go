package repository

import "fmt"

// PaymentLockKey is the lock guarding a user's live payment session.
func PaymentLockKey(userKey string) string {
	return "payment_session:" + userKey
}

// OTPRequestKey scopes the OTP request budget to one identifier and purpose.
func OTPRequestKey(identifier, purpose string) string {
	return fmt.Sprintf("rate_limit:otp:%s:%s", purpose, identifier)
}
