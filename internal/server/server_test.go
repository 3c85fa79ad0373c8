package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailcrew/internal/agent/ports"
	"mailcrew/internal/approval"
	"mailcrew/internal/config"
	"mailcrew/internal/session"
)

type spyRunner struct {
	processed []session.EmailPayload
}

func (r *spyRunner) Process(_ context.Context, email session.EmailPayload) {
	r.processed = append(r.processed, email)
}

func newTestServer(t *testing.T) (*Server, *spyRunner, *approval.PendingStore) {
	t.Helper()
	runner := &spyRunner{}
	store := approval.NewPendingStore()
	cfg := config.RuntimeConfig{
		Port:           "8000",
		AllowedSenders: []string{"alice@example.com"},
	}
	srv, err := New(cfg, runner, store, nil, nil)
	require.NoError(t, err)
	// Run sessions inline so tests can assert on dispatches.
	srv.dispatch = func(email session.EmailPayload) {
		runner.Process(context.Background(), email)
	}
	return srv, runner, store
}

func postJSON(t *testing.T, srv *Server, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func emailBody(from, messageID string) map[string]any {
	return map[string]any{
		"from_address": from,
		"to_address":   "agent@mailcrew.example.com",
		"subject":      "refund please",
		"body":         "Please refund my last invoice.",
		"message_id":   messageID,
	}
}

func TestWebhookAcceptsAllowedSender(t *testing.T) {
	srv, runner, _ := newTestServer(t)

	rec := postJSON(t, srv, "/api/v1/webhook/email", emailBody("alice@example.com", "msg-1"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message": "Email received"}`, rec.Body.String())
	require.Len(t, runner.processed, 1)
	assert.Equal(t, "msg-1", runner.processed[0].MessageID)
	assert.Equal(t, "alice@example.com", runner.processed[0].FromAddress)
}

func TestWebhookDropsUnauthorizedSenderSilently(t *testing.T) {
	srv, runner, _ := newTestServer(t)

	rec := postJSON(t, srv, "/api/v1/webhook/email", emailBody("mallory@example.com", "msg-1"))

	// Same 200 body as the accepted path: the response must not leak
	// whether the sender is on the allow list.
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message": "Email received"}`, rec.Body.String())
	assert.Empty(t, runner.processed)
}

func TestWebhookDropsDuplicateDeliveries(t *testing.T) {
	srv, runner, _ := newTestServer(t)

	first := postJSON(t, srv, "/api/v1/webhook/email", emailBody("alice@example.com", "msg-1"))
	second := postJSON(t, srv, "/api/v1/webhook/email", emailBody("alice@example.com", "msg-1"))

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Len(t, runner.processed, 1)

	// A different message id is a new conversation, not a duplicate.
	postJSON(t, srv, "/api/v1/webhook/email", emailBody("alice@example.com", "msg-2"))
	assert.Len(t, runner.processed, 2)
}

func TestWebhookRejectsMalformedPayload(t *testing.T) {
	srv, runner, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook/email", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, runner.processed)
}

func TestDecisionResolvesPendingApproval(t *testing.T) {
	srv, _, store := newTestServer(t)

	ch, err := store.Add(&ports.ApprovalRequest{ID: "apr-1", ToolName: "create_refund"})
	require.NoError(t, err)

	rec := postJSON(t, srv, "/api/v1/approvals/apr-1/decision", map[string]any{
		"approved": false,
		"comment":  "not now",
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	decision := <-ch
	assert.False(t, decision.Approved)
	assert.Equal(t, "not now", decision.Comment)
}

func TestDecisionUnknownRequest(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := postJSON(t, srv, "/api/v1/approvals/apr-missing/decision", map[string]any{"approved": true})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetApproval(t *testing.T) {
	srv, _, store := newTestServer(t)

	_, err := store.Add(&ports.ApprovalRequest{ID: "apr-1", ToolName: "create_refund", SessionID: "mailcrew-msg-1"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/approvals/apr-1", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "create_refund")

	req = httptest.NewRequest(http.MethodGet, "/api/v1/approvals/apr-other", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRootHealth(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message": "Hello World"}`, rec.Body.String())
}
