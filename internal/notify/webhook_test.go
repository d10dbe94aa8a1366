package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opsgate/opsgate/api"
	"github.com/opsgate/opsgate/internal/approval"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testRequest() *approval.Request {
	return &approval.Request{
		ApprovalID: "appr-123",
		ToolCall: &api.ToolCall{
			Name:      "provision_infrastructure",
			Arguments: map[string]any{"environment": "production"},
		},
		Reason:      "production change requires sign-off",
		RequestedAt: time.Now().UTC(),
		Status:      approval.StatusPending,
	}
}

func TestWebhook_PostsJSON(t *testing.T) {
	var got []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %s", ct)
		}
		got, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, testLogger())
	if err := w.Notify(context.Background(), testRequest()); err != nil {
		t.Fatal(err)
	}

	var payload map[string]any
	if err := json.Unmarshal(got, &payload); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if payload["approval_id"] != "appr-123" {
		t.Errorf("approval_id = %v", payload["approval_id"])
	}
	if payload["reason"] != "production change requires sign-off" {
		t.Errorf("reason = %v", payload["reason"])
	}
}

func TestWebhook_RetriesOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, testLogger())
	if err := w.Notify(context.Background(), testRequest()); err != nil {
		t.Fatalf("second attempt should have succeeded: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 attempts, got %d", calls.Load())
	}
}

func TestWebhook_ReturnsErrorWhenAllAttemptsFail(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, testLogger())
	if err := w.Notify(context.Background(), testRequest()); err == nil {
		t.Fatal("expected an error after exhausting retries")
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 attempts, got %d", calls.Load())
	}
}

func TestWebhook_UnreachableEndpoint(t *testing.T) {
	w := NewWebhook("http://127.0.0.1:1/nope", testLogger())
	if err := w.Notify(context.Background(), testRequest()); err == nil {
		t.Fatal("expected a delivery error")
	}
}

func TestWebhook_StopsRetryingOnCanceledContext(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := NewWebhook(srv.URL, testLogger())
	if err := w.Notify(ctx, testRequest()); err == nil {
		t.Fatal("expected an error with a canceled context")
	}
	if calls.Load() > 1 {
		t.Errorf("must not retry after cancellation, got %d attempts", calls.Load())
	}
}
