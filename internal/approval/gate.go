package approval

import (
	"context"
	"fmt"
	"time"

	"mailcrew/internal/agent/ports"
	"mailcrew/internal/logging"
	id "mailcrew/internal/utils/id"
)

// ThoughtParam is the extra justification parameter injected into every
// guarded tool's schema.
const ThoughtParam = "thought"

const thoughtDescription = "A description of why this action makes sense, " +
	"and the steps you took to get to this point."

// Options tunes guarded tool behavior.
type Options struct {
	// Timeout bounds the wait for a human decision. Zero means wait
	// until the context is cancelled.
	Timeout time.Duration

	// RequireThought makes the justification a required schema parameter.
	RequireThought bool
}

// guardedTool wraps a mutating action behind a human approval step. It is
// indistinguishable from the wrapped tool to the agent runtime: same name,
// same parameters, plus the injected thought parameter.
type guardedTool struct {
	inner    ports.ToolExecutor
	approver ports.Approver
	opts     Options
	logger   logging.Logger
}

// Guard wraps tool so its handler can only run after an approved Decision.
func Guard(tool ports.ToolExecutor, approver ports.Approver, opts Options, logger logging.Logger) ports.ToolExecutor {
	return &guardedTool{
		inner:    tool,
		approver: approver,
		opts:     opts,
		logger:   logging.OrNop(logger),
	}
}

// Definition forwards the wrapped tool's schema verbatim and injects the
// thought parameter. Schema fidelity is what lets the runtime select the
// guarded tool exactly as it would the unguarded one.
func (g *guardedTool) Definition() ports.ToolDefinition {
	def := g.inner.Definition()
	props := make(map[string]ports.Property, len(def.Parameters.Properties)+1)
	for name, prop := range def.Parameters.Properties {
		props[name] = prop
	}
	props[ThoughtParam] = ports.Property{
		Type:        "string",
		Description: thoughtDescription,
	}
	required := append([]string(nil), def.Parameters.Required...)
	if g.opts.RequireThought {
		required = append(required, ThoughtParam)
	}
	def.Parameters = ports.ParameterSchema{
		Type:       def.Parameters.Type,
		Properties: props,
		Required:   required,
	}
	return def
}

func (g *guardedTool) Metadata() ports.ToolMetadata {
	return g.inner.Metadata()
}

// Execute blocks until a Decision arrives, then either runs the wrapped
// action or reports the denial back to the agent. Every invocation attempt
// creates a fresh ApprovalRequest; prior approvals of identical arguments
// are never reused.
func (g *guardedTool) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	name := g.inner.Metadata().Name

	thought, _ := call.Arguments[ThoughtParam].(string)
	if g.opts.RequireThought && thought == "" {
		err := fmt.Errorf("%s is required for %s", ThoughtParam, name)
		return &ports.ToolResult{CallID: call.ID, Content: err.Error(), Error: err}, nil
	}

	args := make(map[string]any, len(call.Arguments))
	for key, value := range call.Arguments {
		if key == ThoughtParam {
			continue
		}
		args[key] = value
	}

	request := &ports.ApprovalRequest{
		ID:        id.NewApprovalID(),
		ToolName:  name,
		Arguments: args,
		Thought:   thought,
		SessionID: call.SessionID,
	}

	g.logger.Info("Requesting approval for %s (request=%s, session=%s)",
		name, request.ID, request.SessionID)

	waitCtx := ctx
	if g.opts.Timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()
	}

	decision, err := g.approver.RequestApproval(waitCtx, request)
	if err != nil {
		// Channel-level failure: observable, not fatal for the run.
		g.logger.Error("Approval channel failed for %s (request=%s): %v", name, request.ID, err)
		wrapped := fmt.Errorf("approval request failed: %w", err)
		return &ports.ToolResult{CallID: call.ID, Content: wrapped.Error(), Error: wrapped}, nil
	}

	if !decision.Approved {
		message := fmt.Sprintf("User denied tool with feedback: %s", decision.Comment)
		if decision.TimedOut {
			message = fmt.Sprintf("Approval request timed out after %s with no response; tool was not executed", g.opts.Timeout)
		}
		g.logger.Info("Tool %s denied (request=%s, timeout=%t)", name, request.ID, decision.TimedOut)
		return &ports.ToolResult{
			CallID:   call.ID,
			Content:  message,
			Metadata: map[string]any{"approval_id": request.ID, "denied": true},
		}, nil
	}

	g.logger.Info("Tool %s approved (request=%s), executing", name, request.ID)

	forwarded := call
	forwarded.Arguments = args
	result, execErr := g.inner.Execute(ctx, forwarded)
	if execErr != nil {
		// The agent runtime must receive an observable result it can
		// reason about, not a propagating fault.
		message := fmt.Sprintf("tool %s failed: %v", name, execErr)
		return &ports.ToolResult{CallID: call.ID, Content: message, Error: execErr}, nil
	}
	if result == nil {
		result = &ports.ToolResult{CallID: call.ID}
	}
	if result.CallID == "" {
		result.CallID = call.ID
	}
	return result, nil
}
