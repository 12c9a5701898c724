package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnauthenticated = errors.New("not authenticated")
	ErrLocked          = errors.New("resource is locked")

	// OTP challenge errors
	ErrDelivery         = errors.New("otp delivery failed")
	ErrInvalidCode      = errors.New("invalid verification code")
	ErrChallengeExpired = errors.New("verification challenge expired")
	ErrRateLimited      = errors.New("too many requests")

	// Payment session errors
	ErrInitiation            = errors.New("payment could not be started")
	ErrPaymentInProgress     = errors.New("a payment is already in progress")
	ErrAuthorizationRequired = errors.New("payment authorization required")
)
