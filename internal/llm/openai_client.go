package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"mailcrew/internal/agent/ports"
	mailcrewerrors "mailcrew/internal/errors"
	"mailcrew/internal/httpclient"
	"mailcrew/internal/logging"
	id "mailcrew/internal/utils/id"
)

// Config carries provider settings for client construction.
type Config struct {
	APIKey     string
	BaseURL    string
	Timeout    int // seconds
	MaxRetries int
	Headers    map[string]string
}

// OpenAI API compatible client
type openaiClient struct {
	model      string
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     logging.Logger
	headers    map[string]string
	maxRetries int
}

// NewOpenAIClient constructs an LLM client that speaks the OpenAI-compatible
// chat completions API using the provided configuration.
func NewOpenAIClient(model string, config Config) (ports.LLMClient, error) {
	if model == "" {
		return nil, fmt.Errorf("llm model is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com/v1"
	}

	timeout := 120 * time.Second
	if config.Timeout > 0 {
		timeout = time.Duration(config.Timeout) * time.Second
	}

	logger := logging.NewComponentLogger("LLM")

	return &openaiClient{
		model:      model,
		apiKey:     config.APIKey,
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: httpclient.New(timeout, logger),
		logger:     logger,
		headers:    config.Headers,
		maxRetries: config.MaxRetries,
	}, nil
}

func (c *openaiClient) Model() string {
	return c.model
}

func (c *openaiClient) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	requestID := extractRequestID(req.Metadata)
	if requestID == "" {
		requestID = id.NewRequestID()
	}
	prefix := fmt.Sprintf("[req:%s] ", requestID)

	oaiReq := map[string]any{
		"model":       c.model,
		"messages":    convertMessages(req.Messages),
		"temperature": req.Temperature,
		"max_tokens":  req.MaxTokens,
		"stream":      false,
	}

	if len(req.Tools) > 0 {
		oaiReq["tools"] = convertTools(req.Tools)
		oaiReq["tool_choice"] = "auto"
	}

	body, err := json.Marshal(oaiReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	c.logger.Debug("%sPOST %s/chat/completions model=%s messages=%d tools=%d",
		prefix, c.baseURL, c.model, len(req.Messages), len(req.Tools))

	var lastErr error
	attempts := c.maxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			wait := backoff(lastErr, attempt)
			c.logger.Warn("%sretrying after transient error (attempt %d/%d, wait %s): %v",
				prefix, attempt+1, attempts, wait, lastErr)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		resp, err := c.doRequest(ctx, body)
		if err == nil {
			c.logger.Debug("%scompletion ok: stop=%s tool_calls=%d tokens=%d",
				prefix, resp.StopReason, len(resp.ToolCalls), resp.Usage.TotalTokens)
			return resp, nil
		}
		lastErr = err
		if !mailcrewerrors.IsTransient(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *openaiClient) doRequest(ctx context.Context, body []byte) (*ports.CompletionResponse, error) {
	endpoint := c.baseURL + "/chat/completions"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &mailcrewerrors.TransientError{Err: err, Message: fmt.Sprintf("llm request: %v", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, mailcrewerrors.FromHTTPStatus(resp.StatusCode, respBody, resp.Header)
	}

	return parseCompletion(respBody)
}

func parseCompletion(body []byte) (*ports.CompletionResponse, error) {
	var oaiResp struct {
		Choices []struct {
			Message struct {
				Content   string `json:"content"`
				ToolCalls []struct {
					ID       string `json:"id"`
					Function struct {
						Name      string `json:"name"`
						Arguments string `json:"arguments"`
					} `json:"function"`
				} `json:"tool_calls"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
	}

	if err := json.Unmarshal(body, &oaiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(oaiResp.Choices) == 0 {
		return nil, fmt.Errorf("response contains no choices")
	}

	choice := oaiResp.Choices[0]
	result := &ports.CompletionResponse{
		Content:    choice.Message.Content,
		StopReason: choice.FinishReason,
		Usage: ports.TokenUsage{
			PromptTokens:     oaiResp.Usage.PromptTokens,
			CompletionTokens: oaiResp.Usage.CompletionTokens,
			TotalTokens:      oaiResp.Usage.TotalTokens,
		},
	}

	for _, tc := range choice.Message.ToolCalls {
		args := map[string]any{}
		if raw := strings.TrimSpace(tc.Function.Arguments); raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				return nil, fmt.Errorf("decode tool call arguments for %s: %w", tc.Function.Name, err)
			}
		}
		callID := tc.ID
		if callID == "" {
			callID = id.NewCallID()
		}
		result.ToolCalls = append(result.ToolCalls, ports.ToolCall{
			ID:        callID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}

	return result, nil
}

func convertMessages(messages []ports.Message) []map[string]any {
	converted := make([]map[string]any, 0, len(messages))
	for _, msg := range messages {
		switch {
		case len(msg.ToolResults) > 0:
			// One tool-role message per result, keyed by tool_call_id.
			for _, result := range msg.ToolResults {
				converted = append(converted, map[string]any{
					"role":         "tool",
					"tool_call_id": result.CallID,
					"content":      result.Content,
				})
			}
		case len(msg.ToolCalls) > 0:
			calls := make([]map[string]any, 0, len(msg.ToolCalls))
			for _, call := range msg.ToolCalls {
				args, _ := json.Marshal(call.Arguments)
				calls = append(calls, map[string]any{
					"id":   call.ID,
					"type": "function",
					"function": map[string]any{
						"name":      call.Name,
						"arguments": string(args),
					},
				})
			}
			converted = append(converted, map[string]any{
				"role":       msg.Role,
				"content":    msg.Content,
				"tool_calls": calls,
			})
		default:
			converted = append(converted, map[string]any{
				"role":    msg.Role,
				"content": msg.Content,
			})
		}
	}
	return converted
}

func convertTools(tools []ports.ToolDefinition) []map[string]any {
	converted := make([]map[string]any, 0, len(tools))
	for _, tool := range tools {
		converted = append(converted, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        tool.Name,
				"description": tool.Description,
				"parameters":  tool.Parameters,
			},
		})
	}
	return converted
}

func extractRequestID(metadata map[string]any) string {
	if metadata == nil {
		return ""
	}
	if raw, ok := metadata["request_id"].(string); ok {
		return raw
	}
	return ""
}

func backoff(err error, attempt int) time.Duration {
	var transient *mailcrewerrors.TransientError
	if errors.As(err, &transient) && transient.RetryAfter > 0 {
		return time.Duration(transient.RetryAfter) * time.Second
	}
	return time.Duration(attempt) * 2 * time.Second
}
