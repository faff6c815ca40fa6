package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"context"

	"goalforge/internal/logging"
)

// GeminiClient talks to the Gemini generateContent REST API directly.
// It performs exactly one request per Send; retry policy belongs to the
// chat orchestrator.
type GeminiClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// GeminiConfig holds configuration for the raw HTTP Gemini client.
type GeminiConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// DefaultGeminiConfig returns sensible defaults.
func DefaultGeminiConfig(apiKey string) GeminiConfig {
	return GeminiConfig{
		APIKey:  apiKey,
		BaseURL: "https://generativelanguage.googleapis.com/v1beta",
		Model:   "gemini-2.0-flash",
		Timeout: 2 * time.Minute,
	}
}

// NewGeminiClient creates a Gemini client with custom config.
func NewGeminiClient(config GeminiConfig) *GeminiClient {
	model := strings.TrimSpace(config.Model)
	if model == "" {
		model = "gemini-2.0-flash"
	}
	baseURL := strings.TrimSpace(config.BaseURL)
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	return &GeminiClient{
		apiKey:  config.APIKey,
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Send performs one generateContent call and returns the reply text.
func (c *GeminiClient) Send(ctx context.Context, turns []Turn, opts GenerationOptions) (string, error) {
	if c.apiKey == "" {
		return "", &AuthError{Detail: "API key not configured"}
	}
	if len(turns) == 0 {
		return "", fmt.Errorf("no turns to send")
	}

	// Auto-apply timeout if context has no deadline
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	startTime := time.Now()
	logging.GatewayDebug("[Gemini] Send: model=%s turns=%d temp=%.2f", c.model, len(turns), opts.Temperature)

	reqBody := geminiRequest{
		SafetySettings: defaultSafetySettings,
	}
	for _, turn := range turns {
		role := "user"
		if turn.Role == RoleAssistant {
			role = "model"
		}
		reqBody.Contents = append(reqBody.Contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: turn.Content}},
		})
	}
	if opts.Temperature > 0 || opts.MaxOutputTokens > 0 {
		cfg := &geminiGenerationConfig{MaxOutputTokens: opts.MaxOutputTokens}
		if opts.Temperature > 0 {
			t := opts.Temperature
			cfg.Temperature = &t
		}
		reqBody.GenerationConfig = cfg
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logging.GatewayError("[Gemini] Send: request failed after %v: %v", time.Since(startTime), err)
		return "", &TransportError{Detail: "request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &TransportError{Detail: "failed to read response", Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		logging.GatewayError("[Gemini] Send: auth rejected with status %d", resp.StatusCode)
		return "", &AuthError{Detail: fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	case resp.StatusCode != http.StatusOK:
		logging.GatewayError("[Gemini] Send: status %d: %s", resp.StatusCode, string(body))
		return "", &TransportError{Detail: fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	}

	var geminiResp geminiResponse
	if err := json.Unmarshal(body, &geminiResp); err != nil {
		return "", &TransportError{Detail: "failed to parse response", Err: err}
	}

	if geminiResp.Error != nil {
		return "", &TransportError{Detail: fmt.Sprintf("API error: %s", geminiResp.Error.Message)}
	}

	if geminiResp.PromptFeedback != nil && geminiResp.PromptFeedback.BlockReason != "" {
		return "", &PolicyError{Detail: fmt.Sprintf("prompt blocked: %s", geminiResp.PromptFeedback.BlockReason)}
	}

	if len(geminiResp.Candidates) == 0 {
		return "", &TransportError{Detail: "no candidates returned"}
	}
	candidate := geminiResp.Candidates[0]
	if candidate.FinishReason == "SAFETY" {
		return "", &PolicyError{Detail: "candidate blocked by safety filters"}
	}

	var result strings.Builder
	for _, part := range candidate.Content.Parts {
		result.WriteString(part.Text)
	}
	response := strings.TrimSpace(result.String())

	logging.Gateway("[Gemini] Send: completed in %v response_len=%d", time.Since(startTime), len(response))
	return response, nil
}

// Close releases the client's idle network connections.
func (c *GeminiClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
