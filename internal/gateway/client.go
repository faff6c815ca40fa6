// Package gateway owns the boundary to the generative model provider: a
// chat-turn request goes in, raw text comes out, and failures are typed so
// the orchestrator can decide what is retryable.
package gateway

import (
	"context"
	"fmt"
)

// Role identifies who authored a chat turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single chat message.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// GenerationOptions tunes a single model call.
type GenerationOptions struct {
	// Temperature in [0, 2]; zero means provider default.
	Temperature float64

	// MaxOutputTokens caps the reply length; zero means provider default.
	MaxOutputTokens int
}

// Client is the model gateway handle. Handles are request-scoped: create one
// per logical request context and Close it when the context ends.
type Client interface {
	Send(ctx context.Context, turns []Turn, opts GenerationOptions) (string, error)
	Close() error
}

// AuthError means the credential is missing or rejected. Never retryable.
type AuthError struct {
	Detail string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("gateway auth failure: %s", e.Detail)
}

// TransportError covers network and provider-side failures. Retryable.
type TransportError struct {
	Detail string
	Err    error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gateway transport failure: %s: %v", e.Detail, e.Err)
	}
	return fmt.Sprintf("gateway transport failure: %s", e.Detail)
}

func (e *TransportError) Unwrap() error { return e.Err }

// PolicyError means the provider's safety filters blocked the content.
// Retryable, since generation is non-deterministic.
type PolicyError struct {
	Detail string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("gateway policy block: %s", e.Detail)
}
