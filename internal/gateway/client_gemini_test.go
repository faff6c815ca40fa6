package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(url string) *GeminiClient {
	return NewGeminiClient(GeminiConfig{
		APIKey:  "test-key",
		BaseURL: url,
		Model:   "gemini-test",
		Timeout: 5 * time.Second,
	})
}

func replyWith(text string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"` + text + `"}]},"finishReason":"STOP"}]}`))
	}
}

func TestSendReturnsReplyText(t *testing.T) {
	srv := httptest.NewServer(replyWith("hello there"))
	defer srv.Close()

	client := newTestClient(srv.URL)
	defer client.Close()

	got, err := client.Send(context.Background(), []Turn{{Role: RoleUser, Content: "hi"}}, GenerationOptions{})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got != "hello there" {
		t.Errorf("Send = %q, want %q", got, "hello there")
	}
}

func TestSendMissingKeyIsAuthError(t *testing.T) {
	client := NewGeminiClient(GeminiConfig{APIKey: ""})
	defer client.Close()

	_, err := client.Send(context.Background(), []Turn{{Role: RoleUser, Content: "hi"}}, GenerationOptions{})
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
}

func TestSendStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		check  func(error) bool
	}{
		{"unauthorized", http.StatusUnauthorized, func(err error) bool {
			var e *AuthError
			return errors.As(err, &e)
		}},
		{"forbidden", http.StatusForbidden, func(err error) bool {
			var e *AuthError
			return errors.As(err, &e)
		}},
		{"rate_limited", http.StatusTooManyRequests, func(err error) bool {
			var e *TransportError
			return errors.As(err, &e)
		}},
		{"server_error", http.StatusInternalServerError, func(err error) bool {
			var e *TransportError
			return errors.As(err, &e)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			client := newTestClient(srv.URL)
			defer client.Close()

			_, err := client.Send(context.Background(), []Turn{{Role: RoleUser, Content: "hi"}}, GenerationOptions{})
			if err == nil {
				t.Fatal("expected error")
			}
			if !tt.check(err) {
				t.Errorf("wrong error type: %v", err)
			}
		})
	}
}

func TestSendBlockedPromptIsPolicyError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"promptFeedback":{"blockReason":"SAFETY"}}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	defer client.Close()

	_, err := client.Send(context.Background(), []Turn{{Role: RoleUser, Content: "hi"}}, GenerationOptions{})
	var policyErr *PolicyError
	if !errors.As(err, &policyErr) {
		t.Fatalf("expected PolicyError, got %v", err)
	}
}

func TestSendSafetyFinishIsPolicyError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[]},"finishReason":"SAFETY"}]}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	defer client.Close()

	_, err := client.Send(context.Background(), []Turn{{Role: RoleUser, Content: "hi"}}, GenerationOptions{})
	var policyErr *PolicyError
	if !errors.As(err, &policyErr) {
		t.Fatalf("expected PolicyError, got %v", err)
	}
}

func TestSendEmptyTurns(t *testing.T) {
	client := newTestClient("http://localhost:0")
	defer client.Close()

	if _, err := client.Send(context.Background(), nil, GenerationOptions{}); err == nil {
		t.Error("expected error for empty turns")
	}
}

func TestSendAssistantRoleMapsToModel(t *testing.T) {
	var sawRole string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req geminiRequest
		decodeJSONBody(t, r, &req)
		if len(req.Contents) == 2 {
			sawRole = req.Contents[1].Role
		}
		replyWith("ok")(w, r)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	defer client.Close()

	turns := []Turn{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
	}
	if _, err := client.Send(context.Background(), turns, GenerationOptions{}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if sawRole != "model" {
		t.Errorf("assistant turn sent with role %q, want model", sawRole)
	}
}
