package approval

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"mailcrew/internal/agent/ports"
)

// spyTool records executions and returns a canned result.
type spyTool struct {
	def     ports.ToolDefinition
	meta    ports.ToolMetadata
	calls   []ports.ToolCall
	result  *ports.ToolResult
	execErr error
}

func newSpyTool() *spyTool {
	return &spyTool{
		def: ports.ToolDefinition{
			Name:        "create_refund",
			Description: "Create a refund",
			Parameters: ports.ParameterSchema{
				Type: "object",
				Properties: map[string]ports.Property{
					"payment_intent": {Type: "string", Description: "Payment intent id"},
					"amount":         {Type: "integer", Description: "Amount in cents"},
				},
				Required: []string{"payment_intent"},
			},
		},
		meta:   ports.ToolMetadata{Name: "create_refund", Category: "billing"},
		result: &ports.ToolResult{Content: "refund created"},
	}
}

func (s *spyTool) Definition() ports.ToolDefinition { return s.def }
func (s *spyTool) Metadata() ports.ToolMetadata     { return s.meta }

func (s *spyTool) Execute(_ context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	s.calls = append(s.calls, call)
	return s.result, s.execErr
}

// scriptedApprover returns queued decisions and records every request.
type scriptedApprover struct {
	decisions []*ports.Decision
	err       error
	requests  []*ports.ApprovalRequest
}

func (a *scriptedApprover) RequestApproval(_ context.Context, request *ports.ApprovalRequest) (*ports.Decision, error) {
	a.requests = append(a.requests, request)
	if a.err != nil {
		return nil, a.err
	}
	if len(a.decisions) == 0 {
		return &ports.Decision{Approved: true}, nil
	}
	decision := a.decisions[0]
	a.decisions = a.decisions[1:]
	return decision, nil
}

func TestGuardDenialBlocksExecution(t *testing.T) {
	tool := newSpyTool()
	approver := &scriptedApprover{decisions: []*ports.Decision{{Approved: false, Comment: "not now"}}}
	guarded := Guard(tool, approver, Options{}, nil)

	result, err := guarded.Execute(context.Background(), ports.ToolCall{
		ID:        "call-1",
		Name:      "create_refund",
		Arguments: map[string]any{"payment_intent": "pi_123"},
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if len(tool.calls) != 0 {
		t.Fatalf("denied tool was executed %d times", len(tool.calls))
	}
	want := "User denied tool with feedback: not now"
	if result.Content != want {
		t.Fatalf("denial content = %q, want %q", result.Content, want)
	}
	if result.Error != nil {
		t.Fatalf("denial must be observable, not a tool error: %v", result.Error)
	}
}

func TestGuardTimeoutDistinctFromDenial(t *testing.T) {
	tool := newSpyTool()
	approver := &scriptedApprover{decisions: []*ports.Decision{{Approved: false, TimedOut: true}}}
	guarded := Guard(tool, approver, Options{Timeout: 2 * time.Hour}, nil)

	result, err := guarded.Execute(context.Background(), ports.ToolCall{ID: "call-1", Arguments: map[string]any{}})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if len(tool.calls) != 0 {
		t.Fatalf("timed-out tool was executed")
	}
	if !strings.Contains(result.Content, "timed out after 2h0m0s") {
		t.Fatalf("timeout content = %q, want timeout message", result.Content)
	}
	if strings.Contains(result.Content, "denied tool with feedback") {
		t.Fatalf("timeout message must not read as a human denial: %q", result.Content)
	}
}

func TestGuardApprovalForwardsStrippedArguments(t *testing.T) {
	tool := newSpyTool()
	approver := &scriptedApprover{}
	guarded := Guard(tool, approver, Options{}, nil)

	result, err := guarded.Execute(context.Background(), ports.ToolCall{
		ID:   "call-1",
		Name: "create_refund",
		Arguments: map[string]any{
			"payment_intent": "pi_123",
			"amount":         float64(500),
			ThoughtParam:     "customer asked for it",
		},
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if result.Content != "refund created" {
		t.Fatalf("approved content = %q", result.Content)
	}
	if len(tool.calls) != 1 {
		t.Fatalf("approved tool executed %d times, want 1", len(tool.calls))
	}
	forwarded := tool.calls[0].Arguments
	if _, has := forwarded[ThoughtParam]; has {
		t.Fatalf("thought parameter leaked into the wrapped tool: %v", forwarded)
	}
	if forwarded["payment_intent"] != "pi_123" || forwarded["amount"] != float64(500) {
		t.Fatalf("forwarded arguments altered: %v", forwarded)
	}
	if approver.requests[0].Thought != "customer asked for it" {
		t.Fatalf("thought not surfaced to approver: %+v", approver.requests[0])
	}
}

func TestGuardFreshRequestPerInvocation(t *testing.T) {
	tool := newSpyTool()
	approver := &scriptedApprover{}
	guarded := Guard(tool, approver, Options{}, nil)

	call := ports.ToolCall{ID: "call-1", Arguments: map[string]any{"payment_intent": "pi_123"}}
	for i := 0; i < 2; i++ {
		if _, err := guarded.Execute(context.Background(), call); err != nil {
			t.Fatalf("Execute %d returned error: %v", i, err)
		}
	}
	if len(approver.requests) != 2 {
		t.Fatalf("identical calls produced %d approval requests, want 2", len(approver.requests))
	}
	if approver.requests[0].ID == approver.requests[1].ID {
		t.Fatalf("approval requests reused id %s", approver.requests[0].ID)
	}
}

func TestGuardToolFailureIsObservable(t *testing.T) {
	tool := newSpyTool()
	tool.execErr = fmt.Errorf("bad arg")
	tool.result = nil
	guarded := Guard(tool, &scriptedApprover{}, Options{}, nil)

	result, err := guarded.Execute(context.Background(), ports.ToolCall{ID: "call-1", Arguments: map[string]any{}})
	if err != nil {
		t.Fatalf("tool failure must not propagate as an executor error: %v", err)
	}
	if !strings.Contains(result.Content, "bad arg") {
		t.Fatalf("failure content = %q, want the underlying error text", result.Content)
	}
	if result.Error == nil {
		t.Fatalf("failure result should carry the error")
	}
}

func TestGuardApproverFailureIsObservable(t *testing.T) {
	tool := newSpyTool()
	approver := &scriptedApprover{err: fmt.Errorf("smtp unreachable")}
	guarded := Guard(tool, approver, Options{}, nil)

	result, err := guarded.Execute(context.Background(), ports.ToolCall{ID: "call-1", Arguments: map[string]any{}})
	if err != nil {
		t.Fatalf("channel failure must not propagate as an executor error: %v", err)
	}
	if len(tool.calls) != 0 {
		t.Fatalf("tool ran despite approval channel failure")
	}
	if !strings.Contains(result.Content, "smtp unreachable") {
		t.Fatalf("failure content = %q", result.Content)
	}
}

func TestGuardDefinitionInjectsThought(t *testing.T) {
	tool := newSpyTool()
	guarded := Guard(tool, &scriptedApprover{}, Options{}, nil)

	def := guarded.Definition()
	if def.Name != "create_refund" {
		t.Fatalf("guarded name = %q, want the wrapped tool's name", def.Name)
	}
	prop, ok := def.Parameters.Properties[ThoughtParam]
	if !ok {
		t.Fatalf("thought parameter missing from guarded schema")
	}
	if prop.Type != "string" {
		t.Fatalf("thought parameter type = %q", prop.Type)
	}
	for _, name := range def.Parameters.Required {
		if name == ThoughtParam {
			t.Fatalf("thought must be optional by default")
		}
	}
	if _, ok := def.Parameters.Properties["payment_intent"]; !ok {
		t.Fatalf("original parameters dropped from guarded schema")
	}
	// The wrapped tool's schema must not be mutated.
	if _, ok := tool.def.Parameters.Properties[ThoughtParam]; ok {
		t.Fatalf("guard mutated the wrapped tool's schema")
	}
}

func TestGuardDefinitionRequiredThought(t *testing.T) {
	guarded := Guard(newSpyTool(), &scriptedApprover{}, Options{RequireThought: true}, nil)

	def := guarded.Definition()
	found := false
	for _, name := range def.Parameters.Required {
		if name == ThoughtParam {
			found = true
		}
	}
	if !found {
		t.Fatalf("thought not required despite RequireThought, required=%v", def.Parameters.Required)
	}
}

func TestGuardRequiredThoughtMissingAtCallTime(t *testing.T) {
	tool := newSpyTool()
	approver := &scriptedApprover{}
	guarded := Guard(tool, approver, Options{RequireThought: true}, nil)

	result, err := guarded.Execute(context.Background(), ports.ToolCall{ID: "call-1", Arguments: map[string]any{}})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if result.Error == nil {
		t.Fatalf("missing required thought should be an observable tool error")
	}
	if len(approver.requests) != 0 {
		t.Fatalf("approval requested despite missing required thought")
	}
}
