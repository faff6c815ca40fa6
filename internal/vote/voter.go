// Package vote decides whether a candidate goal is allowed by majority vote
// over repeated, independent sentiment classifications. A single model call
// is noisy; five in parallel with a majority rule are not.
package vote

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"goalforge/internal/gateway"
	"goalforge/internal/logging"
)

// Sentiment buckets for a single classification call.
const (
	sentimentPositive = "POSITIVE"
	sentimentNegative = "NEGATIVE"
	sentimentNeutral  = "NEUTRAL"
)

// Reasons surfaced with the verdict.
const (
	ReasonNonCompliant   = "the goal does not comply with the safety protocol"
	ReasonNeutralDefault = "the goal has a neutral sentiment and is allowed"
)

const classifyPrompt = `Classify the sentiment of the following goal statement.
Reply with exactly one word: POSITIVE, NEGATIVE, or NEUTRAL.

Goal: `

// Generator is the orchestrated chat surface the voter classifies through.
type Generator interface {
	Generate(ctx context.Context, turns []gateway.Turn, opts gateway.GenerationOptions) (string, error)
}

// Voter tallies independent sentiment classifications.
type Voter struct {
	gen       Generator
	calls     int
	threshold int
}

// New creates a Voter issuing `calls` classifications and requiring
// `threshold` matching verdicts to carry a bucket.
func New(gen Generator, calls, threshold int) *Voter {
	if calls < 1 {
		calls = 5
	}
	if threshold < 1 || threshold > calls {
		threshold = (calls / 2) + 1
	}
	return &Voter{gen: gen, calls: calls, threshold: threshold}
}

// IsCompliant runs the vote for a candidate goal. Individual call failures
// are skipped rather than counted; if too many calls fail the vote lands in
// the default-permissive neutral branch.
func (v *Voter) IsCompliant(ctx context.Context, candidate string) (bool, string) {
	var mu sync.Mutex
	tally := map[string]int{}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < v.calls; i++ {
		g.Go(func() error {
			turns := []gateway.Turn{
				{Role: gateway.RoleUser, Content: classifyPrompt + candidate},
			}
			reply, err := v.gen.Generate(gctx, turns, gateway.GenerationOptions{})
			if err != nil {
				logging.VoterDebug("classification call skipped: %v", err)
				return nil // skipped, never aborts the vote
			}
			sentiment := parseSentiment(reply)
			if sentiment == "" {
				logging.VoterDebug("unparsable classification reply: %q", reply)
				return nil
			}
			mu.Lock()
			tally[sentiment]++
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	logging.Voter("vote tally for %q: positive=%d negative=%d neutral=%d",
		candidate, tally[sentimentPositive], tally[sentimentNegative], tally[sentimentNeutral])

	switch {
	case tally[sentimentPositive] >= v.threshold:
		return true, ""
	case tally[sentimentNegative] >= v.threshold:
		return false, ReasonNonCompliant
	default:
		return true, ReasonNeutralDefault
	}
}

// parseSentiment maps a free-form reply onto a bucket, or "" if none apply.
func parseSentiment(reply string) string {
	upper := strings.ToUpper(reply)
	switch {
	case strings.Contains(upper, sentimentPositive):
		return sentimentPositive
	case strings.Contains(upper, sentimentNegative):
		return sentimentNegative
	case strings.Contains(upper, sentimentNeutral):
		return sentimentNeutral
	}
	return ""
}
