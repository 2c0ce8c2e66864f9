package broker

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestLTPReturnsEmptyMapOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, testLogger())
	c.retry = RetryConfig{Attempts: 1, Initial: time.Millisecond, Multiplier: 1}

	result, err := c.LTP(context.Background(), []string{"NIFTY25050CE"})
	if err == nil {
		t.Fatal("expected error on repeated 5xx")
	}
	if len(result) != 0 {
		t.Errorf("expected empty map on failure, got %v", result)
	}
}

func TestCompleteSessionPersistsToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-123"})
	}))
	defer srv.Close()

	tokenFile := t.TempDir() + "/token.txt"
	c := NewClient(Config{BaseURL: srv.URL, TokenFile: tokenFile}, testLogger())

	token, err := c.CompleteSession(context.Background(), "req-token")
	if err != nil {
		t.Fatalf("CompleteSession returned error: %v", err)
	}
	if token != "tok-123" {
		t.Errorf("expected tok-123, got %q", token)
	}
	if !c.IsAuthenticated() {
		t.Error("expected IsAuthenticated to be true after session completion")
	}
}

func TestTerminalErrorIsNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, testLogger())
	_, err := c.LTP(context.Background(), []string{"X"})
	if err == nil {
		t.Fatal("expected error on 401")
	}
	if calls != 1 {
		t.Errorf("expected exactly 1 call for a terminal error, got %d", calls)
	}
}
