package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"videopipe/internal/services"
)

func completionHandler(t *testing.T, content string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]any{
			"choices": []any{
				map[string]any{
					"message": map[string]any{"content": content},
				},
			},
		}
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}
}

func TestCompleteJSONSendsRequest(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret" {
			t.Errorf("unexpected authorization header %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		completionHandler(t, `{"ok":true}`)(w, r)
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "secret", BaseURL: server.URL, Model: "demo-model"})
	content, err := client.CompleteJSON(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("CompleteJSON failed: %v", err)
	}
	if content != `{"ok":true}` {
		t.Fatalf("unexpected content %q", content)
	}
	if got.Model != "demo-model" || len(got.Messages) != 2 || got.ResponseFormat["type"] != jsonResponseType {
		t.Fatalf("unexpected request payload: %+v", got)
	}
}

func TestCompleteJSONRequiresAPIKey(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://127.0.0.1:1"})
	_, err := client.CompleteJSON(context.Background(), "system", "user")
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestCompleteJSONRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		completionHandler(t, `{"title":"x"}`)(w, r)
	}))
	defer server.Close()

	var sleeps []time.Duration
	client := NewClient(Config{APIKey: "k", BaseURL: server.URL},
		WithRetryBackoff(10*time.Millisecond, 40*time.Millisecond),
		WithSleeper(func(d time.Duration) { sleeps = append(sleeps, d) }),
	)
	if _, err := client.CompleteJSON(context.Background(), "system", "user"); err != nil {
		t.Fatalf("CompleteJSON failed: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 calls, got %d", calls.Load())
	}
	if len(sleeps) != 2 {
		t.Fatalf("expected 2 backoff sleeps, got %v", sleeps)
	}
}

func TestCompleteJSONDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "bad", BaseURL: server.URL}, WithSleeper(func(time.Duration) {}))
	_, err := client.CompleteJSON(context.Background(), "system", "user")
	var statusErr *httpStatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 status error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single call, got %d", calls.Load())
	}
}

func TestCompleteJSONHonorsRetryAfter(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		completionHandler(t, `{}`)(w, r)
	}))
	defer server.Close()

	var slept time.Duration
	client := NewClient(Config{APIKey: "k", BaseURL: server.URL},
		WithRetryBackoff(time.Millisecond, 5*time.Second),
		WithSleeper(func(d time.Duration) { slept = d }),
	)
	if _, err := client.CompleteJSON(context.Background(), "system", "user"); err != nil {
		t.Fatalf("CompleteJSON failed: %v", err)
	}
	if slept != 2*time.Second {
		t.Fatalf("expected Retry-After delay of 2s, got %s", slept)
	}
}

func TestDecodeJSONToleratesFencesAndProse(t *testing.T) {
	cases := map[string]string{
		"plain":  `{"title":"a"}`,
		"fenced": "```json\n{\"title\":\"a\"}\n```",
		"prose":  "Here you go: {\"title\":\"a\"} enjoy",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			var out Suggestion
			if err := decodeJSON(content, &out); err != nil {
				t.Fatalf("decodeJSON failed: %v", err)
			}
			if out.Title != "a" {
				t.Fatalf("unexpected title %q", out.Title)
			}
		})
	}
	var out Suggestion
	if err := decodeJSON("not json", &out); err == nil {
		t.Fatal("expected decode failure for non-JSON content")
	}
}
