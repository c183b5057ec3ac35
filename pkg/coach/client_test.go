package coach

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestClient_CreateSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/sessions" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"session_id": "s-123",
			"status":     "active",
			"created_at": time.Now().UTC().Format(time.RFC3339),
		})
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	sess, err := client.CreateSession(context.Background(), "")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if sess.SessionID != "s-123" || sess.Status != "active" {
		t.Fatalf("session = %+v", sess)
	}
}

func TestClient_NotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"detail": "session not found"})
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	_, err := client.GetSession(context.Background(), "nope")
	if err == nil {
		t.Fatal("expected error")
	}
	apiErr, ok := AsError(err)
	if !ok {
		t.Fatalf("error type = %T", err)
	}
	if !apiErr.IsNotFound() || apiErr.Retryable() {
		t.Fatalf("error = %+v", apiErr)
	}
	if apiErr.Message != "session not found" {
		t.Fatalf("message = %q", apiErr.Message)
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("calls = %d, want 1", n)
	}
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL), WithMaxRetries(5))
	if err := client.Health(context.Background()); err != nil {
		t.Fatalf("Health: %v", err)
	}
	if n := calls.Load(); n != 3 {
		t.Fatalf("calls = %d, want 3", n)
	}
}

func TestClient_AdminEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/admin/events" || r.URL.Query().Get("limit") != "5" {
			t.Errorf("unexpected request: %s", r.URL.String())
		}
		json.NewEncoder(w).Encode(map[string]any{
			"events": []map[string]any{
				{"event_type": "ai.emotion.analyzed", "session_id": "s-1"},
				{"event_type": "memory.state.updated", "session_id": "s-1"},
			},
		})
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	events, err := client.AdminEvents(context.Background(), 5)
	if err != nil {
		t.Fatalf("AdminEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	var first struct {
		EventType string `json:"event_type"`
	}
	if err := json.Unmarshal(events[0], &first); err != nil {
		t.Fatal(err)
	}
	if first.EventType != "ai.emotion.analyzed" {
		t.Fatalf("first event = %s", events[0])
	}
}

func TestDeriveWSBaseURL(t *testing.T) {
	cases := []struct{ in, want string }{
		{"http://localhost:8000", "ws://localhost:8000"},
		{"https://coach.example.com", "wss://coach.example.com"},
	}
	for _, tc := range cases {
		if got := deriveWSBaseURL(tc.in); got != tc.want {
			t.Errorf("deriveWSBaseURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
