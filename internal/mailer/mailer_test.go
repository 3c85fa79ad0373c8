package mailer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSendPostsMessage(t *testing.T) {
	var gotPath, gotAuth string
	var gotMsg Message
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotMsg); err != nil {
			t.Errorf("decode message: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client, err := NewClient(Config{
		APIURL: server.URL,
		APIKey: "mail-key",
		From:   "billing-agent@example.com",
	}, nil)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	err = client.Send(context.Background(), Message{
		To:        "alice@example.com",
		Subject:   "Re: refund please",
		Text:      "Task result: done",
		InReplyTo: "msg-1",
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if gotPath != "/messages" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotAuth != "Bearer mail-key" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
	if gotMsg.From != "billing-agent@example.com" {
		t.Fatalf("default sender not applied: %+v", gotMsg)
	}
	if gotMsg.InReplyTo != "msg-1" || gotMsg.To != "alice@example.com" {
		t.Fatalf("message = %+v", gotMsg)
	}
}

func TestSendRequiresRecipient(t *testing.T) {
	client, err := NewClient(Config{APIURL: "http://localhost:1"}, nil)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if err := client.Send(context.Background(), Message{Subject: "no recipient"}); err == nil {
		t.Fatalf("Send without recipient should fail")
	}
}

func TestSendSurfacesProviderErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("invalid recipient"))
	}))
	defer server.Close()

	client, err := NewClient(Config{APIURL: server.URL, Timeout: time.Second}, nil)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if err := client.Send(context.Background(), Message{To: "alice@example.com"}); err == nil {
		t.Fatalf("provider 400 should surface as an error")
	}
}

func TestNewClientRequiresEndpoint(t *testing.T) {
	if _, err := NewClient(Config{}, nil); err == nil {
		t.Fatalf("NewClient without endpoint should fail")
	}
}
