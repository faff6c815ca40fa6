// Package chat wraps the model gateway with message-shape normalization and
// a bounded retry loop. Callers hand it raw chat turns; it folds system
// instructions into the lead user turn, retries transient gateway failures
// with exponential backoff, and fails fast on credential problems.
package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"goalforge/internal/gateway"
	"goalforge/internal/logging"
)

const (
	// DefaultMaxAttempts bounds the retry loop, first attempt included.
	DefaultMaxAttempts = 3

	// DefaultBackoffFactor f sleeps f^1, f^2, ... seconds between attempts.
	DefaultBackoffFactor = 2.0
)

// Orchestrator issues gateway calls with retry and backoff.
type Orchestrator struct {
	client      gateway.Client
	maxAttempts int
	factor      float64

	// sleep is swappable so tests can observe backoff durations.
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMaxAttempts sets the total attempt budget (first attempt included).
func WithMaxAttempts(n int) Option {
	return func(o *Orchestrator) {
		if n >= 1 {
			o.maxAttempts = n
		}
	}
}

// WithBackoffFactor sets the exponential backoff base in seconds.
func WithBackoffFactor(f float64) Option {
	return func(o *Orchestrator) {
		if f > 0 {
			o.factor = f
		}
	}
}

// WithSleeper replaces the between-attempt sleep, for tests.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Orchestrator) {
		o.sleep = sleep
	}
}

// New creates an Orchestrator over the given gateway client.
func New(client gateway.Client, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		client:      client,
		maxAttempts: DefaultMaxAttempts,
		factor:      DefaultBackoffFactor,
		sleep:       sleepCtx,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// newBackoff builds the interval source: factor^1, factor^2, ... seconds,
// with randomization disabled so the schedule is exact.
func (o *Orchestrator) newBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Duration(o.factor * float64(time.Second))
	b.Multiplier = o.factor
	b.RandomizationFactor = 0
	b.MaxInterval = 10 * time.Minute
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Generate sends the normalized turn list through the gateway, retrying
// transient failures up to the attempt budget. A successful call that
// returns an empty body is not retried here; extraction-level failures
// belong to the caller.
func (o *Orchestrator) Generate(ctx context.Context, turns []gateway.Turn, opts gateway.GenerationOptions) (string, error) {
	normalized, err := NormalizeTurns(turns)
	if err != nil {
		return "", err
	}

	interval := o.newBackoff()
	var lastErr error

	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		if attempt > 1 {
			d := interval.NextBackOff()
			logging.ChatDebug("attempt %d/%d: backing off %v", attempt, o.maxAttempts, d)
			if err := o.sleep(ctx, d); err != nil {
				return "", err
			}
		}

		reply, err := o.client.Send(ctx, normalized, opts)
		if err == nil {
			logging.Chat("generate succeeded on attempt %d/%d reply_len=%d", attempt, o.maxAttempts, len(reply))
			return reply, nil
		}

		var authErr *gateway.AuthError
		if errors.As(err, &authErr) {
			logging.ChatWarn("auth failure, not retrying: %v", err)
			return "", err
		}

		logging.ChatWarn("attempt %d/%d failed: %v", attempt, o.maxAttempts, err)
		lastErr = err
	}

	return "", fmt.Errorf("generate failed after %d attempts: %w", o.maxAttempts, lastErr)
}

// NormalizeTurns validates roles and folds a leading system turn into the
// first user turn. If no user turn exists a synthetic one is created holding
// only the system content.
func NormalizeTurns(turns []gateway.Turn) ([]gateway.Turn, error) {
	if len(turns) == 0 {
		return nil, fmt.Errorf("turns must not be empty")
	}

	for i, turn := range turns {
		switch turn.Role {
		case gateway.RoleSystem:
			if i != 0 {
				return nil, fmt.Errorf("system turn allowed only in lead position, found at %d", i)
			}
		case gateway.RoleUser, gateway.RoleAssistant:
		default:
			return nil, fmt.Errorf("unknown role %q at turn %d", turn.Role, i)
		}
	}

	if turns[0].Role != gateway.RoleSystem {
		return turns, nil
	}

	system := turns[0].Content
	rest := turns[1:]

	out := make([]gateway.Turn, 0, len(rest)+1)
	folded := false
	for _, turn := range rest {
		if !folded && turn.Role == gateway.RoleUser {
			content := turn.Content
			if system != "" {
				content = system + "\n\n" + content
			}
			out = append(out, gateway.Turn{Role: gateway.RoleUser, Content: content})
			folded = true
			continue
		}
		out = append(out, turn)
	}

	if !folded {
		// No user turn to fold into: a synthetic one carries the system content
		out = append([]gateway.Turn{{Role: gateway.RoleUser, Content: system}}, out...)
	}

	return out, nil
}
