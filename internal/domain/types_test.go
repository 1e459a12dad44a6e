package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestFailureFrom(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		err     error
		kind    FailureKind
		message string
	}{
		{"device", fmt.Errorf("start: %w", ErrDeviceUnavailable), FailureDeviceUnavailable, MessageDeviceUnavailable},
		{"session", fmt.Errorf("refresh: %w", ErrSessionExpired), FailureSessionExpired, MessageSessionExpired},
		{"network", fmt.Errorf("post: %w", ErrNetworkUnreachable), FailureNetworkUnreachable, MessageNetworkUnreachable},
		{"backend", &BackendRejectedError{StatusCode: 401, Message: "invalid token"}, FailureBackendRejected, "invalid token"},
		{"backend empty message", &BackendRejectedError{StatusCode: 500}, FailureBackendRejected, messageBackendFallback},
		{"unknown", errors.New("boom"), FailureNetworkUnreachable, MessageNetworkUnreachable},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := FailureFrom(tc.err)
			if got.Kind != tc.kind || got.Message != tc.message {
				t.Fatalf("unexpected failure: %+v", got)
			}
		})
	}
}

func TestUploadResultContextSummary(t *testing.T) {
	t.Parallel()

	if got := (UploadResult{}).ContextSummary(); got != "" {
		t.Fatalf("expected empty summary, got %q", got)
	}
	count := 3
	if got := (UploadResult{ContextProjectsCount: &count}).ContextSummary(); got != "Context: 3 projects loaded" {
		t.Fatalf("unexpected summary: %q", got)
	}
}

func TestCallSessionDuration(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	end := start.Add(42*time.Second + 400*time.Millisecond)

	if got := (CallSession{StartedAt: start}).Duration(); got != "ongoing" {
		t.Fatalf("expected ongoing, got %q", got)
	}
	if got := (CallSession{StartedAt: start, EndedAt: &end}).Duration(); got != "42s" {
		t.Fatalf("unexpected duration: %q", got)
	}
}
