package humanchannel

import (
	"context"

	"mailcrew/internal/agent/ports"
)

// Channel is the out-of-band medium used to solicit human decisions and
// deliver final results. Both operations are addressed to a specific
// recipient and thread so replies land in the correct conversation.
type Channel interface {
	ports.Approver

	// RequestInput asks the human a free-form question and blocks until
	// an answer arrives. Used by the agent's ask_human tool.
	RequestInput(ctx context.Context, question string) (string, error)

	// DeliverResult sends the final textual outcome of a run. Best-effort:
	// a failure is logged by the caller, never retried.
	DeliverResult(ctx context.Context, text string) error
}
