package id

import (
	"context"
	"strings"
	"testing"
)

func TestIDPrefixes(t *testing.T) {
	cases := []struct {
		prefix string
		gen    func() string
	}{
		{"run-", NewRunID},
		{"req-", NewRequestID},
		{"apr-", NewApprovalID},
		{"call-", NewCallID},
	}
	for _, tc := range cases {
		got := tc.gen()
		if !strings.HasPrefix(got, tc.prefix) || len(got) <= len(tc.prefix) {
			t.Fatalf("id %q should carry prefix %q", got, tc.prefix)
		}
		if got == tc.gen() {
			t.Fatalf("ids should be unique, got %q twice", got)
		}
	}
}

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	if got := SessionIDFromContext(ctx); got != "" {
		t.Fatalf("empty context returned session id %q", got)
	}

	ctx = WithSessionID(ctx, "mailcrew-msg-1")
	ctx = WithRunID(ctx, "run-abc")

	if got := SessionIDFromContext(ctx); got != "mailcrew-msg-1" {
		t.Fatalf("session id = %q", got)
	}
	if got := RunIDFromContext(ctx); got != "run-abc" {
		t.Fatalf("run id = %q", got)
	}
}
