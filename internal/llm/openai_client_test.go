package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"mailcrew/internal/agent/ports"
)

func completionJSON(content string, toolCalls ...map[string]any) string {
	message := map[string]any{"content": content}
	if len(toolCalls) > 0 {
		message["tool_calls"] = toolCalls
	}
	raw, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{{
			"message":       message,
			"finish_reason": "stop",
		}},
		"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	})
	return string(raw)
}

func TestCompleteParsesToolCalls(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionJSON("", map[string]any{
			"id": "call_abc",
			"function": map[string]any{
				"name":      "create_refund",
				"arguments": `{"payment_intent": "pi_123"}`,
			},
		})))
	}))
	defer server.Close()

	client, err := NewOpenAIClient("gpt-4o", Config{APIKey: "sk-test", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewOpenAIClient failed: %v", err)
	}

	resp, err := client.Complete(context.Background(), ports.CompletionRequest{
		Messages: []ports.Message{{Role: "user", Content: "refund pi_123"}},
		Tools: []ports.ToolDefinition{{
			Name:       "create_refund",
			Parameters: ports.ParameterSchema{Type: "object"},
		}},
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if gotAuth != "Bearer sk-test" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
	if gotBody["model"] != "gpt-4o" {
		t.Fatalf("model = %v", gotBody["model"])
	}
	if _, ok := gotBody["tools"]; !ok {
		t.Fatalf("tools not sent")
	}

	if len(resp.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d", len(resp.ToolCalls))
	}
	call := resp.ToolCalls[0]
	if call.ID != "call_abc" || call.Name != "create_refund" {
		t.Fatalf("call = %+v", call)
	}
	if call.Arguments["payment_intent"] != "pi_123" {
		t.Fatalf("arguments = %v", call.Arguments)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Fatalf("tokens = %d", resp.Usage.TotalTokens)
	}
}

func TestCompleteSendsToolResultsAsToolMessages(t *testing.T) {
	var gotBody struct {
		Messages []map[string]any `json:"messages"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(completionJSON("done")))
	}))
	defer server.Close()

	client, err := NewOpenAIClient("gpt-4o", Config{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewOpenAIClient failed: %v", err)
	}

	_, err = client.Complete(context.Background(), ports.CompletionRequest{
		Messages: []ports.Message{
			{Role: "user", Content: "refund"},
			{Role: "assistant", ToolCalls: []ports.ToolCall{{ID: "call_1", Name: "create_refund", Arguments: map[string]any{}}}},
			{Role: "tool", ToolResults: []ports.ToolResult{{CallID: "call_1", Content: "refund created"}}},
		},
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if len(gotBody.Messages) != 3 {
		t.Fatalf("messages = %d: %v", len(gotBody.Messages), gotBody.Messages)
	}
	last := gotBody.Messages[2]
	if last["role"] != "tool" || last["tool_call_id"] != "call_1" {
		t.Fatalf("tool result message = %v", last)
	}
	assistant := gotBody.Messages[1]
	if _, ok := assistant["tool_calls"]; !ok {
		t.Fatalf("assistant tool calls dropped: %v", assistant)
	}
}

func TestCompleteRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(completionJSON("recovered")))
	}))
	defer server.Close()

	client, err := NewOpenAIClient("gpt-4o", Config{BaseURL: server.URL, MaxRetries: 2})
	if err != nil {
		t.Fatalf("NewOpenAIClient failed: %v", err)
	}

	resp, err := client.Complete(context.Background(), ports.CompletionRequest{
		Messages: []ports.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Complete failed after retry: %v", err)
	}
	if resp.Content != "recovered" {
		t.Fatalf("content = %q", resp.Content)
	}
	if calls.Load() != 2 {
		t.Fatalf("server called %d times, want 2", calls.Load())
	}
}

func TestCompleteDoesNotRetryPermanentErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("bad key"))
	}))
	defer server.Close()

	client, err := NewOpenAIClient("gpt-4o", Config{BaseURL: server.URL, MaxRetries: 3})
	if err != nil {
		t.Fatalf("NewOpenAIClient failed: %v", err)
	}

	_, err = client.Complete(context.Background(), ports.CompletionRequest{
		Messages: []ports.Message{{Role: "user", Content: "hi"}},
	})
	if err == nil {
		t.Fatalf("401 should fail the call")
	}
	if calls.Load() != 1 {
		t.Fatalf("server called %d times, want 1", calls.Load())
	}
}
