package errors

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
)

// TransientError represents an error that can be retried.
type TransientError struct {
	Err        error
	StatusCode int // HTTP status code if applicable
	RetryAfter int // Seconds to wait before retry (from Retry-After header)
	Message    string
}

func (e *TransientError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("transient error: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// PermanentError represents an error that should not be retried.
type PermanentError struct {
	Err        error
	StatusCode int
	Message    string
}

func (e *PermanentError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("permanent error: %v", e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// ConfigError marks a startup misconfiguration. The process must refuse to
// serve when one is returned; a half-configured service silently missing
// tools or credentials is a correctness hazard.
type ConfigError struct {
	Key string
	Err error
}

func (e *ConfigError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("config: %s: %v", e.Key, e.Err)
	}
	return fmt.Sprintf("config: %v", e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError constructs a ConfigError for the given configuration key.
func NewConfigError(key, format string, args ...any) *ConfigError {
	return &ConfigError{Key: key, Err: fmt.Errorf(format, args...)}
}

// IsTransient checks if an error is retry-able.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var transientErr *TransientError
	if errors.As(err, &transientErr) {
		return true
	}
	var permanentErr *PermanentError
	if errors.As(err, &permanentErr) {
		return false
	}

	// Network-level failures are worth retrying.
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	return false
}

// FromHTTPStatus classifies an HTTP error response into transient or
// permanent, preserving the server's Retry-After hint when present.
func FromHTTPStatus(statusCode int, body []byte, header http.Header) error {
	message := strings.TrimSpace(string(body))
	if message == "" {
		message = http.StatusText(statusCode)
	}
	message = fmt.Sprintf("HTTP %d: %s", statusCode, message)

	switch {
	case statusCode == http.StatusTooManyRequests,
		statusCode >= http.StatusInternalServerError:
		retryAfter := 0
		if raw := header.Get("Retry-After"); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil {
				retryAfter = parsed
			}
		}
		return &TransientError{
			Err:        errors.New(message),
			StatusCode: statusCode,
			RetryAfter: retryAfter,
			Message:    message,
		}
	default:
		return &PermanentError{
			Err:        errors.New(message),
			StatusCode: statusCode,
			Message:    message,
		}
	}
}
