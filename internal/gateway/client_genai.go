package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"goalforge/internal/logging"
)

// GenAIClient implements the gateway over Google's official genai SDK.
// Functionally equivalent to GeminiClient; selected with provider "genai".
type GenAIClient struct {
	client *genai.Client
	model  string
}

// NewGenAIClient creates a gateway client backed by the genai SDK.
func NewGenAIClient(ctx context.Context, apiKey, model string) (*GenAIClient, error) {
	if apiKey == "" {
		return nil, &AuthError{Detail: "API key not configured"}
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GenAIClient{client: client, model: model}, nil
}

// Send performs one generation call and returns the reply text.
func (c *GenAIClient) Send(ctx context.Context, turns []Turn, opts GenerationOptions) (string, error) {
	if len(turns) == 0 {
		return "", fmt.Errorf("no turns to send")
	}

	startTime := time.Now()
	logging.GatewayDebug("[GenAI] Send: model=%s turns=%d temp=%.2f", c.model, len(turns), opts.Temperature)

	contents := make([]*genai.Content, 0, len(turns))
	for _, turn := range turns {
		contents = append(contents, genai.NewContentFromText(turn.Content, genaiRole(turn.Role)))
	}

	cfg := &genai.GenerateContentConfig{}
	if opts.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(opts.Temperature))
	}
	if opts.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = int32(opts.MaxOutputTokens)
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		logging.GatewayError("[GenAI] Send: request failed after %v: %v", time.Since(startTime), err)
		return "", classifyGenAIError(err)
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", &PolicyError{Detail: fmt.Sprintf("prompt blocked: %s", resp.PromptFeedback.BlockReason)}
	}
	if len(resp.Candidates) == 0 {
		return "", &TransportError{Detail: "no candidates returned"}
	}
	if resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return "", &PolicyError{Detail: "candidate blocked by safety filters"}
	}

	response := strings.TrimSpace(resp.Text())
	logging.Gateway("[GenAI] Send: completed in %v response_len=%d", time.Since(startTime), len(response))
	return response, nil
}

// genaiRole maps a gateway role onto the SDK's role tag. System turns never
// reach the client; the orchestrator folds them into the lead user turn.
func genaiRole(r Role) genai.Role {
	if r == RoleAssistant {
		return genai.RoleModel
	}
	return genai.RoleUser
}

// classifyGenAIError maps SDK errors onto the gateway failure taxonomy.
func classifyGenAIError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return &AuthError{Detail: apiErr.Message}
		}
		return &TransportError{Detail: fmt.Sprintf("API error %d: %s", apiErr.Code, apiErr.Message)}
	}
	return &TransportError{Detail: "request failed", Err: err}
}

// Close satisfies the Client contract. The SDK client holds no resources
// needing explicit teardown; its HTTP transport is released with the client
// value itself.
func (c *GenAIClient) Close() error {
	return nil
}
