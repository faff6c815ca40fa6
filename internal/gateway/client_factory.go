package gateway

import (
	"context"
	"fmt"
	"time"

	"goalforge/internal/config"
)

// NewClient builds a request-scoped gateway client for the configured
// provider. The caller owns the handle and must Close it when the request
// context ends.
func NewClient(ctx context.Context, cfg config.LLMConfig) (Client, error) {
	switch cfg.Provider {
	case "", "gemini":
		gc := DefaultGeminiConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			gc.BaseURL = cfg.BaseURL
		}
		if cfg.Model != "" {
			gc.Model = cfg.Model
		}
		if d, err := time.ParseDuration(cfg.Timeout); err == nil && d > 0 {
			gc.Timeout = d
		}
		return NewGeminiClient(gc), nil
	case "genai":
		return NewGenAIClient(ctx, cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}
