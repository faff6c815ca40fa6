package gateway

import (
	"context"
	"testing"

	"goalforge/internal/config"
)

func TestNewClientProviders(t *testing.T) {
	ctx := context.Background()

	client, err := NewClient(ctx, config.LLMConfig{Provider: "gemini", APIKey: "k"})
	if err != nil {
		t.Fatalf("gemini provider: %v", err)
	}
	if _, ok := client.(*GeminiClient); !ok {
		t.Errorf("gemini provider returned %T", client)
	}
	client.Close()

	// Empty provider falls back to the raw HTTP client
	client, err = NewClient(ctx, config.LLMConfig{APIKey: "k"})
	if err != nil {
		t.Fatalf("default provider: %v", err)
	}
	if _, ok := client.(*GeminiClient); !ok {
		t.Errorf("default provider returned %T", client)
	}
	client.Close()

	if _, err := NewClient(ctx, config.LLMConfig{Provider: "martian"}); err == nil {
		t.Error("unknown provider should fail")
	}
}

func TestNewClientHonorsTimeout(t *testing.T) {
	client, err := NewClient(context.Background(), config.LLMConfig{APIKey: "k", Timeout: "7s"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	gc := client.(*GeminiClient)
	if gc.httpClient.Timeout.Seconds() != 7 {
		t.Errorf("timeout = %v, want 7s", gc.httpClient.Timeout)
	}
}
