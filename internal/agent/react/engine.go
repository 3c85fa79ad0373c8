package react

import (
	"context"
	"fmt"
	"time"

	"mailcrew/internal/agent/ports"
	"mailcrew/internal/logging"
	id "mailcrew/internal/utils/id"
)

// TaskResult represents the result of task execution.
type TaskResult struct {
	Answer     string
	Iterations int
	TokensUsed int
	StopReason string
	Duration   time.Duration
}

// Services bundles the dependencies the engine needs per run.
type Services struct {
	LLM   ports.LLMClient
	Tools ports.ToolRegistry
}

// Engine drives a single-agent tool-call loop: send the conversation plus
// tool schemas to the LLM, execute whatever tools it selects, feed results
// back, and stop when the model answers without a tool call.
type Engine struct {
	logger        logging.Logger
	maxIterations int
	temperature   float64
	maxTokens     int
}

// Config tunes the engine.
type Config struct {
	MaxIterations int
	Temperature   float64
	MaxTokens     int
}

// NewEngine constructs an Engine.
func NewEngine(cfg Config, logger logging.Logger) *Engine {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 25
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	return &Engine{
		logger:        logging.OrNop(logger),
		maxIterations: cfg.MaxIterations,
		temperature:   cfg.Temperature,
		maxTokens:     cfg.MaxTokens,
	}
}

// SolveTask runs the loop to completion. Tool-level failures stay inside
// tool results; only LLM/runtime faults propagate as errors.
func (e *Engine) SolveTask(ctx context.Context, systemPrompt, task string, services Services) (*TaskResult, error) {
	if services.LLM == nil {
		return nil, fmt.Errorf("llm client is required")
	}
	if services.Tools == nil {
		return nil, fmt.Errorf("tool registry is required")
	}

	started := time.Now()
	messages := []ports.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: task},
	}
	tokensUsed := 0
	lastContent := ""

	for iteration := 0; iteration < e.maxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := e.think(ctx, messages, services)
		if err != nil {
			return nil, fmt.Errorf("llm completion (iteration %d): %w", iteration, err)
		}
		tokensUsed += resp.Usage.TotalTokens
		lastContent = resp.Content

		messages = append(messages, ports.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		if len(resp.ToolCalls) == 0 {
			return &TaskResult{
				Answer:     resp.Content,
				Iterations: iteration + 1,
				TokensUsed: tokensUsed,
				StopReason: resp.StopReason,
				Duration:   time.Since(started),
			}, nil
		}

		// Sequential execution: one tool at a time, in selection order.
		results := make([]ports.ToolResult, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			results = append(results, e.act(ctx, call, services))
		}
		messages = append(messages, ports.Message{
			Role:        "tool",
			ToolResults: results,
		})
	}

	e.logger.Warn("Task hit iteration limit (%d), returning last content", e.maxIterations)
	return &TaskResult{
		Answer:     lastContent,
		Iterations: e.maxIterations,
		TokensUsed: tokensUsed,
		StopReason: "max_iterations",
		Duration:   time.Since(started),
	}, nil
}

func (e *Engine) think(ctx context.Context, messages []ports.Message, services Services) (*ports.CompletionResponse, error) {
	requestID := id.NewRequestID()
	req := ports.CompletionRequest{
		Messages:    messages,
		Tools:       services.Tools.List(),
		Temperature: e.temperature,
		MaxTokens:   e.maxTokens,
		Metadata:    map[string]any{"request_id": requestID},
	}
	e.logger.Debug("Calling LLM (request_id=%s): messages=%d tools=%d",
		requestID, len(messages), len(req.Tools))
	return services.LLM.Complete(ctx, req)
}

func (e *Engine) act(ctx context.Context, call ports.ToolCall, services Services) ports.ToolResult {
	if call.ID == "" {
		call.ID = id.NewCallID()
	}
	call.SessionID = id.SessionIDFromContext(ctx)

	tool, err := services.Tools.Get(call.Name)
	if err != nil {
		e.logger.Warn("Tool %q not found: %v", call.Name, err)
		return ports.ToolResult{CallID: call.ID, Content: err.Error(), Error: err}
	}

	started := time.Now()
	result, err := tool.Execute(ctx, call)
	if err != nil {
		// Executor-level faults become observable results so the model can
		// adjust its plan instead of aborting the run.
		e.logger.Warn("Tool %q failed: %v", call.Name, err)
		return ports.ToolResult{CallID: call.ID, Content: err.Error(), Error: err}
	}
	if result == nil {
		result = &ports.ToolResult{CallID: call.ID, Content: ""}
	}
	if result.CallID == "" {
		result.CallID = call.ID
	}
	e.logger.Debug("Tool %q completed in %s (error=%v)", call.Name, time.Since(started), result.Error)
	return *result
}
