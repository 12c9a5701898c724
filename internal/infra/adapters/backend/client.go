package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"nextchapter-billing/internal/config"
	"nextchapter-billing/internal/domain"
	"nextchapter-billing/internal/domain/model"
	"nextchapter-billing/internal/domain/ports/adapter"
	"nextchapter-billing/internal/infra/logging"
)

var _ adapter.BackendAPI = (*Client)(nil)

// Client talks to the product backend's REST API.
type Client struct {
	http   *resty.Client
	routes config.BackendRoutes
	token  Token
	now    func() time.Time
	log    *zerolog.Logger
}

func NewClient(cfg config.BackendConfig, token Token, logger *zerolog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("backend base url empty")
	}
	if logger == nil {
		logger = logging.Nop()
	}
	compLog := logger.With().Str("component", "BackendClient").Logger()

	rc := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")
	if !token.Empty() {
		rc.SetAuthToken(token.Raw())
	}
	return &Client{http: rc, routes: cfg.Routes, token: token, now: time.Now, log: &compLog}, nil
}

// UserKey identifies the authenticated user.
func (c *Client) UserKey() string { return c.token.UserKey() }

type errorBody struct {
	Detail  any    `json:"detail"`
	Message string `json:"message"`
}

func (c *Client) request(ctx context.Context) (*resty.Request, error) {
	if c.token.Expired(c.now()) {
		return nil, domain.ErrUnauthenticated
	}
	return c.http.R().SetContext(ctx), nil
}

// check converts a non-2xx response into *adapter.APIError.
func check(resp *resty.Response) error {
	if resp.StatusCode() >= 200 && resp.StatusCode() < 300 {
		return nil
	}
	var eb errorBody
	detail := ""
	if err := json.Unmarshal(resp.Body(), &eb); err == nil {
		switch d := eb.Detail.(type) {
		case string:
			detail = d
		case nil:
			detail = eb.Message
		default:
			b, _ := json.Marshal(d)
			detail = string(b)
		}
	}
	apiErr := &adapter.APIError{StatusCode: resp.StatusCode(), Detail: detail}
	if resp.StatusCode() == http.StatusUnauthorized {
		return fmt.Errorf("%w: %v", domain.ErrUnauthenticated, apiErr)
	}
	return apiErr
}

type otpRequestBody struct {
	Identifier         string `json:"identifier,omitempty"`
	Email              string `json:"email,omitempty"`
	PhoneCountry       string `json:"phone_country,omitempty"`
	PhoneNumber        string `json:"phone_number,omitempty"`
	Purpose            string `json:"purpose"`
	VerificationMethod string `json:"verification_method"`
	SubscriptionTier   string `json:"subscription_tier,omitempty"`
}

type otpRequestResponse struct {
	Reference        string `json:"reference"`
	ChallengeID      string `json:"challenge_id"`
	ExpiresInSeconds int    `json:"expires_in_seconds"`
	ExpiresInMinutes int    `json:"expires_in_minutes"`
	Message          string `json:"message"`
}

func (c *Client) RequestOTP(ctx context.Context, in adapter.OTPIssueRequest) (adapter.OTPIssue, error) {
	defer logging.TraceDuration(c.log, "Backend.RequestOTP")()

	path := c.routes.PaymentOTPRequest
	if in.Purpose == model.OTPPurposeRegistration {
		path = c.routes.RegistrationOTPRequest
	}
	body := otpRequestBody{
		Identifier:         in.Identifier,
		Purpose:            string(in.Purpose),
		VerificationMethod: string(in.Channel),
		SubscriptionTier:   string(in.Tier),
	}
	if in.Channel == model.OTPChannelPhone {
		body.PhoneCountry = in.CountryCode
		body.PhoneNumber = in.Identifier
	} else {
		body.Email = in.Identifier
	}

	req, err := c.request(ctx)
	if err != nil {
		return adapter.OTPIssue{}, err
	}
	var out otpRequestResponse
	resp, err := req.
		SetQueryParam("verification_method", string(in.Channel)).
		SetBody(body).
		SetResult(&out).
		Post(path)
	if err != nil {
		return adapter.OTPIssue{}, err
	}
	if err := check(resp); err != nil {
		return adapter.OTPIssue{}, err
	}

	issue := adapter.OTPIssue{Reference: out.Reference, Message: out.Message}
	if issue.Reference == "" {
		issue.Reference = out.ChallengeID
	}
	switch {
	case out.ExpiresInSeconds > 0:
		issue.ExpiresIn = time.Duration(out.ExpiresInSeconds) * time.Second
	case out.ExpiresInMinutes > 0:
		issue.ExpiresIn = time.Duration(out.ExpiresInMinutes) * time.Minute
	}
	return issue, nil
}

type otpVerifyBody struct {
	Reference          string `json:"reference,omitempty"`
	Email              string `json:"email,omitempty"`
	PhoneNumber        string `json:"phone_number,omitempty"`
	OTP                string `json:"otp"`
	Purpose            string `json:"purpose"`
	VerificationMethod string `json:"verification_method"`
}

type otpVerifyResponse struct {
	Token           string `json:"token"`
	AuthorizationID string `json:"authorization_id"`
	Message         string `json:"message"`
}

func (c *Client) VerifyOTP(ctx context.Context, ch model.OTPChallenge, code string) (adapter.OTPVerification, error) {
	defer logging.TraceDuration(c.log, "Backend.VerifyOTP")()

	path := c.routes.PaymentOTPVerify
	if ch.Purpose == model.OTPPurposeRegistration {
		path = c.routes.RegistrationOTPVerify
	}
	body := otpVerifyBody{
		Reference:          ch.Reference,
		OTP:                code,
		Purpose:            string(ch.Purpose),
		VerificationMethod: string(ch.Channel),
	}
	if ch.Channel == model.OTPChannelPhone {
		body.PhoneNumber = ch.Identifier
	} else {
		body.Email = ch.Identifier
	}

	req, err := c.request(ctx)
	if err != nil {
		return adapter.OTPVerification{}, err
	}
	var out otpVerifyResponse
	resp, err := req.SetBody(body).SetResult(&out).Post(path)
	if err != nil {
		return adapter.OTPVerification{}, err
	}
	if err := check(resp); err != nil {
		return adapter.OTPVerification{}, err
	}
	v := adapter.OTPVerification{Token: out.Token, Message: out.Message}
	if v.Token == "" {
		v.Token = out.AuthorizationID
	}
	return v, nil
}

type initiateBody struct {
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	SubscriptionType string `json:"subscription_type"`
	SubscriptionTier string `json:"subscription_tier"`
	PaymentMethod    string `json:"payment_method"`
	PhoneNumber      string `json:"phone_number,omitempty"`
	Operator         string `json:"operator,omitempty"`
	Email            string `json:"email,omitempty"`
	Name             string `json:"name,omitempty"`
	Description      string `json:"description"`
	Authorization    string `json:"otp_authorization,omitempty"`
}

type initiateResponse struct {
	Success       *bool  `json:"success"`
	TransactionID string `json:"transaction_id"`
	PaymentURL    string `json:"payment_url"`
	Message       string `json:"message"`
}

func (c *Client) InitiatePayment(ctx context.Context, in adapter.PaymentInitRequest) (adapter.PaymentInit, error) {
	defer logging.TraceDuration(c.log, "Backend.InitiatePayment")()

	body := initiateBody{
		Amount:           in.Amount,
		Currency:         in.Currency,
		SubscriptionType: in.PlanID,
		SubscriptionTier: string(in.Tier),
		PaymentMethod:    string(in.Method),
		Email:            in.Payor.Email,
		Name:             in.Payor.Name,
		Description:      in.Description,
		Authorization:    in.Authorization,
	}
	if in.Method == model.PaymentMethodMobileMoney {
		body.PhoneNumber = in.Payor.PhoneNumber
		body.Operator = in.Payor.Operator
	}

	req, err := c.request(ctx)
	if err != nil {
		return adapter.PaymentInit{}, err
	}
	var out initiateResponse
	resp, err := req.
		SetHeader("Idempotency-Key", in.IdempotencyKey).
		SetBody(body).
		SetResult(&out).
		Post(c.routes.InitiatePayment)
	if err != nil {
		return adapter.PaymentInit{}, err
	}
	if err := check(resp); err != nil {
		return adapter.PaymentInit{}, err
	}
	// success=false on a 2xx answer is a business rejection.
	if (out.Success != nil && !*out.Success) || out.TransactionID == "" {
		detail := out.Message
		if detail == "" {
			detail = "payment initiation failed"
		}
		return adapter.PaymentInit{}, &adapter.APIError{StatusCode: http.StatusUnprocessableEntity, Detail: detail}
	}
	return adapter.PaymentInit{TransactionID: out.TransactionID, RedirectURL: out.PaymentURL, Message: out.Message}, nil
}

type statusResponse struct {
	Transaction *struct {
		Status string `json:"status"`
	} `json:"transaction"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
}

func (c *Client) TransactionStatus(ctx context.Context, transactionID string) (string, error) {
	defer logging.TraceDuration(c.log, "Backend.TransactionStatus")()

	req, err := c.request(ctx)
	if err != nil {
		return "", err
	}
	var out statusResponse
	resp, err := req.
		SetPathParam("id", transactionID).
		SetResult(&out).
		Get(c.routes.TransactionStatus)
	if err != nil {
		return "", err
	}
	if err := check(resp); err != nil {
		return "", err
	}
	switch {
	case out.Transaction != nil && out.Transaction.Status != "":
		return out.Transaction.Status, nil
	case out.PaymentStatus != "":
		return out.PaymentStatus, nil
	default:
		return out.Status, nil
	}
}

type subscriptionResponse struct {
	SubscriptionTier    string          `json:"subscription_tier"`
	SubscriptionStatus  string          `json:"subscription_status"`
	SubscriptionExpires *string         `json:"subscription_expires"`
	DailyLikesUsed      json.RawMessage `json:"daily_likes_used"`
}

func (c *Client) SubscriptionSnapshot(ctx context.Context) (model.SubscriptionSnapshot, error) {
	defer logging.TraceDuration(c.log, "Backend.SubscriptionSnapshot")()

	req, err := c.request(ctx)
	if err != nil {
		return model.SubscriptionSnapshot{}, err
	}
	var out subscriptionResponse
	resp, err := req.SetResult(&out).Get(c.routes.Subscription)
	if err != nil {
		return model.SubscriptionSnapshot{}, err
	}
	if err := check(resp); err != nil {
		return model.SubscriptionSnapshot{}, err
	}
	expires, err := parseTimestamp(out.SubscriptionExpires)
	if err != nil {
		return model.SubscriptionSnapshot{}, fmt.Errorf("subscription_expires: %w", err)
	}
	return model.SubscriptionSnapshot{
		Tier:           model.ParseTier(out.SubscriptionTier),
		Status:         model.ParseSubscriptionStatus(out.SubscriptionStatus),
		ExpiresAt:      expires,
		DailyLikesUsed: parseLikes(out.DailyLikesUsed),
		FetchedAt:      c.now(),
	}, nil
}

// naiveLayout is what the backend emits for UTC datetimes without an offset.
const naiveLayout = "2006-01-02T15:04:05.999999999"

// parseTimestamp accepts RFC3339 or a zone-less timestamp, read as UTC.
func parseTimestamp(raw *string) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	s := strings.TrimSpace(*raw)
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		var naiveErr error
		if t, naiveErr = time.ParseInLocation(naiveLayout, s, time.UTC); naiveErr != nil {
			return nil, err
		}
	}
	t = t.UTC()
	return &t, nil
}

// parseLikes accepts a number, a numeric string or null.
func parseLikes(raw json.RawMessage) int {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
