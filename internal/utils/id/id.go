package id

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

type contextKey string

const (
	sessionKey contextKey = "mailcrew_session_id"
	runKey     contextKey = "mailcrew_run_id"
)

// NewRunID returns the identifier for one end-to-end email processing run.
func NewRunID() string {
	return "run-" + uuid.NewString()
}

// NewRequestID returns an identifier used to correlate LLM request logs.
func NewRequestID() string {
	return "req-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

// NewApprovalID returns the correlation identifier for one approval request.
func NewApprovalID() string {
	return "apr-" + uuid.NewString()
}

// NewCallID returns a synthetic tool call identifier for parsed calls that
// arrived without one.
func NewCallID() string {
	return "call-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// WithSessionID stores the provided session identifier on the context.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	if sessionID == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionKey, sessionID)
}

// SessionIDFromContext returns the session identifier, if any.
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionKey).(string); ok {
		return v
	}
	return ""
}

// WithRunID stores the current run identifier on the context.
func WithRunID(ctx context.Context, runID string) context.Context {
	if runID == "" {
		return ctx
	}
	return context.WithValue(ctx, runKey, runID)
}

// RunIDFromContext returns the run identifier, if any.
func RunIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(runKey).(string); ok {
		return v
	}
	return ""
}
