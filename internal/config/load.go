package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	mailcrewerrors "mailcrew/internal/errors"
)

// Defaults applied before environment overrides.
const (
	DefaultPort            = "8000"
	DefaultLLMModel        = "gpt-4o"
	DefaultLLMBaseURL      = "https://api.openai.com/v1"
	DefaultLLMMaxTokens    = 4096
	DefaultLLMTemperature  = 0.7
	DefaultLLMMaxRetries   = 3
	DefaultMaxIterations   = 25
	DefaultApprovalTimeout = 24 * time.Hour
	DefaultMailTimeout     = 30 * time.Second
	DefaultMailFrom        = "billing-agent@localhost"
)

type loadOptions struct {
	envLookup EnvLookup
}

// Option customizes Load behavior.
type Option func(*loadOptions)

// WithEnv injects an environment lookup, primarily for tests.
func WithEnv(lookup EnvLookup) Option {
	return func(o *loadOptions) {
		o.envLookup = lookup
	}
}

// Load assembles the runtime configuration from defaults and environment
// overrides, then validates it. A validation failure is fatal by contract:
// the caller must refuse to serve rather than run with a degraded tool set.
func Load(opts ...Option) (RuntimeConfig, error) {
	options := loadOptions{envLookup: os.LookupEnv}
	for _, opt := range opts {
		opt(&options)
	}

	cfg := RuntimeConfig{
		Port:            DefaultPort,
		LogLevel:        "info",
		LLMModel:        DefaultLLMModel,
		LLMBaseURL:      DefaultLLMBaseURL,
		LLMMaxTokens:    DefaultLLMMaxTokens,
		LLMTemperature:  DefaultLLMTemperature,
		LLMMaxRetries:   DefaultLLMMaxRetries,
		MaxIterations:   DefaultMaxIterations,
		ApprovalTimeout: DefaultApprovalTimeout,
		MailTimeout:     DefaultMailTimeout,
		MailFrom:        DefaultMailFrom,
		MetricsEnabled:  true,
	}

	applyEnv(&cfg, options.envLookup)

	if err := cfg.Validate(); err != nil {
		return RuntimeConfig{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *RuntimeConfig, lookup EnvLookup) {
	setString(lookup, "MAILCREW_PORT", &cfg.Port)
	setString(lookup, "MAILCREW_LOG_LEVEL", &cfg.LogLevel)
	setString(lookup, "STRIPE_SECRET_KEY", &cfg.StripeSecretKey)
	setString(lookup, "MAILCREW_LLM_API_KEY", &cfg.LLMAPIKey)
	setString(lookup, "MAILCREW_LLM_MODEL", &cfg.LLMModel)
	setString(lookup, "MAILCREW_LLM_BASE_URL", &cfg.LLMBaseURL)
	setInt(lookup, "MAILCREW_LLM_MAX_TOKENS", &cfg.LLMMaxTokens)
	setFloat(lookup, "MAILCREW_LLM_TEMPERATURE", &cfg.LLMTemperature)
	setInt(lookup, "MAILCREW_LLM_MAX_RETRIES", &cfg.LLMMaxRetries)
	setInt(lookup, "MAILCREW_MAX_ITERATIONS", &cfg.MaxIterations)
	setDuration(lookup, "MAILCREW_APPROVAL_TIMEOUT", &cfg.ApprovalTimeout)
	setBool(lookup, "MAILCREW_REQUIRE_THOUGHT", &cfg.RequireThought)
	setString(lookup, "MAILCREW_APPROVAL_BASE_URL", &cfg.ApprovalBaseURL)
	setString(lookup, "MAILCREW_MAIL_API_URL", &cfg.MailAPIURL)
	setString(lookup, "MAILCREW_MAIL_API_KEY", &cfg.MailAPIKey)
	setString(lookup, "MAILCREW_MAIL_FROM", &cfg.MailFrom)
	setDuration(lookup, "MAILCREW_MAIL_TIMEOUT", &cfg.MailTimeout)
	setBool(lookup, "MAILCREW_METRICS_ENABLED", &cfg.MetricsEnabled)

	if raw, ok := lookup("MAILCREW_ALLOWED_SENDERS"); ok {
		cfg.AllowedSenders = splitSenders(raw)
	}
}

// Validate enforces the required keys. Every failure is a ConfigError so the
// caller can distinguish misconfiguration from runtime faults.
func (c RuntimeConfig) Validate() error {
	if strings.TrimSpace(c.StripeSecretKey) == "" {
		return mailcrewerrors.NewConfigError("STRIPE_SECRET_KEY", "stripe secret key is required")
	}
	if strings.TrimSpace(c.LLMAPIKey) == "" {
		return mailcrewerrors.NewConfigError("MAILCREW_LLM_API_KEY", "llm api key is required")
	}
	if len(c.AllowedSenders) == 0 {
		return mailcrewerrors.NewConfigError("MAILCREW_ALLOWED_SENDERS", "sender allow-list is required")
	}
	if strings.TrimSpace(c.MailAPIURL) == "" {
		return mailcrewerrors.NewConfigError("MAILCREW_MAIL_API_URL", "outbound mail endpoint is required")
	}
	if c.MaxIterations <= 0 {
		return mailcrewerrors.NewConfigError("MAILCREW_MAX_ITERATIONS", "must be positive, got %d", c.MaxIterations)
	}
	if c.ApprovalTimeout <= 0 {
		return mailcrewerrors.NewConfigError("MAILCREW_APPROVAL_TIMEOUT", "must be positive, got %s", c.ApprovalTimeout)
	}
	return nil
}

// SenderAllowed reports whether an address passes the allow-list. Matching
// is case-insensitive on the full address.
func (c RuntimeConfig) SenderAllowed(address string) bool {
	needle := strings.ToLower(strings.TrimSpace(address))
	for _, allowed := range c.AllowedSenders {
		if strings.ToLower(allowed) == needle {
			return true
		}
	}
	return false
}

func splitSenders(raw string) []string {
	parts := strings.Split(raw, ",")
	senders := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			senders = append(senders, trimmed)
		}
	}
	return senders
}

func setString(lookup EnvLookup, key string, dst *string) {
	if raw, ok := lookup(key); ok && strings.TrimSpace(raw) != "" {
		*dst = strings.TrimSpace(raw)
	}
}

func setInt(lookup EnvLookup, key string, dst *int) {
	if raw, ok := lookup(key); ok {
		if value, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
			*dst = value
		}
	}
}

func setFloat(lookup EnvLookup, key string, dst *float64) {
	if raw, ok := lookup(key); ok {
		if value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
			*dst = value
		}
	}
}

func setBool(lookup EnvLookup, key string, dst *bool) {
	if raw, ok := lookup(key); ok {
		if value, err := strconv.ParseBool(strings.TrimSpace(raw)); err == nil {
			*dst = value
		}
	}
}

func setDuration(lookup EnvLookup, key string, dst *time.Duration) {
	if raw, ok := lookup(key); ok {
		if value, err := time.ParseDuration(strings.TrimSpace(raw)); err == nil && value > 0 {
			*dst = value
		}
	}
}

// Describe returns a redacted one-line summary suitable for startup logs.
func (c RuntimeConfig) Describe() string {
	return fmt.Sprintf(
		"port=%s model=%s base_url=%s senders=%d approval_timeout=%s require_thought=%t metrics=%t",
		c.Port, c.LLMModel, c.LLMBaseURL, len(c.AllowedSenders),
		c.ApprovalTimeout, c.RequireThought, c.MetricsEnabled,
	)
}
