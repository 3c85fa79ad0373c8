package shared

import (
	"fmt"
	"strings"

	"mailcrew/internal/agent/ports"
)

// StringArg extracts a string argument, returning "" when absent or not a string.
func StringArg(args map[string]any, key string) string {
	if raw, ok := args[key].(string); ok {
		return raw
	}
	return ""
}

// IntArg extracts an integer argument, tolerating the float64 values that
// JSON decoding produces.
func IntArg(args map[string]any, key string) (int64, bool) {
	switch v := args[key].(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}

// RequireStringArg extracts a required non-empty string argument, returning a
// ToolResult error if the argument is missing, not a string, or blank.
func RequireStringArg(args map[string]any, callID, key string) (string, *ports.ToolResult) {
	raw, ok := args[key].(string)
	if !ok {
		err := fmt.Errorf("missing '%s'", key)
		return "", &ports.ToolResult{CallID: callID, Content: err.Error(), Error: err}
	}
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		err := fmt.Errorf("%s cannot be empty", key)
		return "", &ports.ToolResult{CallID: callID, Content: err.Error(), Error: err}
	}
	return trimmed, nil
}

// ToolError constructs a failed ToolResult from a formatted error message.
// The error stays observable inside the result so the agent runtime can
// reason about it instead of having its run aborted.
func ToolError(callID string, format string, args ...any) (*ports.ToolResult, error) {
	err := fmt.Errorf(format, args...)
	return &ports.ToolResult{CallID: callID, Content: err.Error(), Error: err}, nil
}
