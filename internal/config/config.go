// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"nextchapter-billing/internal/domain/model"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level" env:"LOG_LEVEL"`   // trace|debug|info|warn|error
	Format   string `yaml:"format" env:"LOG_FORMAT"` // json|console
	Sampling bool   `yaml:"sampling"`                // enable sampling in prod
}

// BackendRoutes are the REST paths of the product backend.
type BackendRoutes struct {
	RegistrationOTPRequest string `yaml:"registration_otp_request"`
	RegistrationOTPVerify  string `yaml:"registration_otp_verify"`
	PaymentOTPRequest      string `yaml:"payment_otp_request"`
	PaymentOTPVerify       string `yaml:"payment_otp_verify"`
	InitiatePayment        string `yaml:"initiate_payment"`
	TransactionStatus      string `yaml:"transaction_status"` // must contain {id}
	Subscription           string `yaml:"subscription"`
}

type BackendConfig struct {
	BaseURL string        `yaml:"base_url" env:"NEXTCHAPTER_BACKEND_URL"`
	Token   string        `yaml:"token" env:"NEXTCHAPTER_TOKEN"`
	Timeout time.Duration `yaml:"timeout"`
	Routes  BackendRoutes `yaml:"routes"`
}

type RedisConfig struct {
	URL      string        `yaml:"url" env:"REDIS_URL"` // empty: in-process stores
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type OTPConfig struct {
	TTL          time.Duration `yaml:"ttl"`
	AuthTTL      time.Duration `yaml:"authorization_ttl"`
	RequestLimit int           `yaml:"request_limit"`
	RequestWin   time.Duration `yaml:"request_window"`
}

type PaymentConfig struct {
	GraceDelay   time.Duration            `yaml:"grace_delay"`
	PollInterval time.Duration            `yaml:"poll_interval"`
	MaxAttempts  int                      `yaml:"max_attempts"`
	Timeout      time.Duration            `yaml:"timeout"`
	RequireOTP   *bool                    `yaml:"require_otp"`
	Plans        []model.SubscriptionPlan `yaml:"plans"`
}

type NotificationConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

type SubscriptionConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"` // background reconcile while serving; negative disables
}

type HTTPConfig struct {
	Addr string `yaml:"addr" env:"HTTP_ADDR"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

type Config struct {
	Backend      BackendConfig      `yaml:"backend"`
	Log          LogConfig          `yaml:"log"`
	Redis        RedisConfig        `yaml:"redis"`
	OTP          OTPConfig          `yaml:"otp"`
	Payment      PaymentConfig      `yaml:"payment"`
	Notification NotificationConfig `yaml:"notification"`
	Subscription SubscriptionConfig `yaml:"subscription"`
	HTTP         HTTPConfig         `yaml:"http"`
	Metrics      MetricsConfig      `yaml:"metrics"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path (optional when empty), then a local
// .env file, then environment overrides, then applies defaults and validates.
func LoadConfig(path string, dev bool) (*Config, error) {
	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// .env is a convenience for local runs; absence is fine.
	_ = godotenv.Load()
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.ApplyDefaults()
	cfg.Runtime.Dev = dev
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills every unset field. Timing defaults are the product's
// fixed business rules: 150s OTP, 5s grace, 10s interval, 21 polls, 210s timeout.
func (cfg *Config) ApplyDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Backend.Timeout <= 0 {
		cfg.Backend.Timeout = 15 * time.Second
	}
	r := &cfg.Backend.Routes
	setDefault(&r.RegistrationOTPRequest, "/api/register/request-otp")
	setDefault(&r.RegistrationOTPVerify, "/api/verify-registration")
	setDefault(&r.PaymentOTPRequest, "/api/payment/request-otp")
	setDefault(&r.PaymentOTPVerify, "/api/payment/verify-otp")
	setDefault(&r.InitiatePayment, "/api/paychangu/initiate-payment")
	setDefault(&r.TransactionStatus, "/api/paychangu/transaction/{id}")
	setDefault(&r.Subscription, "/api/user/subscription")

	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)

	if cfg.OTP.TTL <= 0 {
		cfg.OTP.TTL = model.OTPChallengeTTL
	}
	if cfg.OTP.AuthTTL <= 0 {
		cfg.OTP.AuthTTL = model.PaymentAuthorizationTTL
	}
	if cfg.OTP.RequestLimit <= 0 {
		cfg.OTP.RequestLimit = 5
	}
	if cfg.OTP.RequestWin <= 0 {
		cfg.OTP.RequestWin = 15 * time.Minute
	}

	if cfg.Payment.GraceDelay <= 0 {
		cfg.Payment.GraceDelay = 5 * time.Second
	}
	if cfg.Payment.PollInterval <= 0 {
		cfg.Payment.PollInterval = 10 * time.Second
	}
	if cfg.Payment.MaxAttempts <= 0 {
		cfg.Payment.MaxAttempts = 21
	}
	if cfg.Payment.Timeout <= 0 {
		cfg.Payment.Timeout = 210 * time.Second
	}
	if cfg.Payment.RequireOTP == nil {
		yes := true
		cfg.Payment.RequireOTP = &yes
	}
	if len(cfg.Payment.Plans) == 0 {
		cfg.Payment.Plans = model.DefaultPlans()
	}

	if cfg.Notification.TTL <= 0 {
		cfg.Notification.TTL = model.DefaultNotificationTTL
	}
	if cfg.Subscription.RefreshInterval == 0 {
		cfg.Subscription.RefreshInterval = 5 * time.Minute
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = "127.0.0.1:8089"
	}
}

func (cfg *Config) Validate() error {
	if cfg.Backend.BaseURL == "" {
		return errors.New("backend.base_url is required")
	}
	if _, err := url.ParseRequestURI(cfg.Backend.BaseURL); err != nil {
		return fmt.Errorf("backend.base_url: %w", err)
	}
	if _, err := model.NewPlanCatalog(cfg.Payment.Plans); err != nil {
		return fmt.Errorf("payment.plans: %w", err)
	}
	return nil
}

func setDefault(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return 30 * 24 * time.Hour
	}
	return d
}
