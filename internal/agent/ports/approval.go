package ports

import "context"

// ApprovalRequest is created once per guarded invocation attempt. Identical
// arguments in the same run still produce a fresh request; decisions are
// never cached.
type ApprovalRequest struct {
	ID        string         // correlation identifier, unique per attempt
	ToolName  string         // name of the guarded action
	Arguments map[string]any // concrete argument values supplied by the agent
	Thought   string         // optional agent justification
	SessionID string
}

// Decision is the human's response to an ApprovalRequest. Produced exactly
// once per request; TimedOut marks the synthetic denial issued when nobody
// answered within the configured deadline.
type Decision struct {
	Approved bool   `json:"approved"`
	Comment  string `json:"comment"`
	TimedOut bool   `json:"-"`
}

// Approver solicits a human decision for a guarded operation. RequestApproval
// may suspend for a human-timescale duration; callers must run it off the
// request-accepting path.
type Approver interface {
	RequestApproval(ctx context.Context, request *ApprovalRequest) (*Decision, error)
}
