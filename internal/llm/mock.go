package llm

import (
	"context"
	"fmt"
	"sync"

	"mailcrew/internal/agent/ports"
)

// ScriptedClient implements ports.LLMClient for tests. Each Complete call
// consumes the next scripted response in order.
type ScriptedClient struct {
	mu        sync.Mutex
	model     string
	responses []*ports.CompletionResponse
	Requests  []ports.CompletionRequest
}

// NewScriptedClient builds a mock client that replays the given responses.
func NewScriptedClient(model string, responses ...*ports.CompletionResponse) *ScriptedClient {
	return &ScriptedClient{model: model, responses: responses}
}

func (c *ScriptedClient) Model() string {
	return c.model
}

func (c *ScriptedClient) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Requests = append(c.Requests, req)
	if len(c.responses) == 0 {
		return nil, fmt.Errorf("scripted client: no responses left (call %d)", len(c.Requests))
	}
	next := c.responses[0]
	c.responses = c.responses[1:]
	return next, nil
}
