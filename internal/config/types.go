package config

import "time"

// RuntimeConfig is the process-wide configuration assembled at startup.
// Values are read once; nothing mutates a RuntimeConfig after Load returns.
type RuntimeConfig struct {
	// Server
	Port     string
	LogLevel string

	// Inbound mail
	AllowedSenders []string

	// Stripe
	StripeSecretKey string

	// LLM
	LLMAPIKey      string
	LLMModel       string
	LLMBaseURL     string
	LLMMaxTokens   int
	LLMTemperature float64
	LLMMaxRetries  int
	MaxIterations  int

	// Approval gate
	ApprovalTimeout time.Duration
	RequireThought  bool
	ApprovalBaseURL string

	// Outbound mail provider
	MailAPIURL  string
	MailAPIKey  string
	MailFrom    string
	MailTimeout time.Duration

	// Metrics
	MetricsEnabled bool
}

// EnvLookup abstracts os.LookupEnv so tests can inject environments.
type EnvLookup func(key string) (string, bool)
