package vote

import (
	"context"
	"sync"
	"testing"

	"goalforge/internal/gateway"
)

// tallyGenerator hands out a fixed multiset of classification replies, one
// per call, in whatever order the goroutines arrive.
type tallyGenerator struct {
	mu      sync.Mutex
	replies []string
	errs    []error
}

func (g *tallyGenerator) Generate(ctx context.Context, turns []gateway.Turn, opts gateway.GenerationOptions) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.replies) == 0 {
		return "", &gateway.TransportError{Detail: "exhausted"}
	}
	reply := g.replies[0]
	g.replies = g.replies[1:]
	var err error
	if len(g.errs) > 0 {
		err = g.errs[0]
		g.errs = g.errs[1:]
	}
	return reply, err
}

func TestVoteMajorityPositive(t *testing.T) {
	gen := &tallyGenerator{replies: []string{"POSITIVE", "POSITIVE", "positive", "NEGATIVE", "NEUTRAL"}}
	v := New(gen, 5, 3)

	ok, reason := v.IsCompliant(context.Background(), "run a charity bake sale")
	if !ok {
		t.Error("majority-positive vote should be compliant")
	}
	if reason != "" {
		t.Errorf("reason = %q, want empty", reason)
	}
}

func TestVoteMajorityNegative(t *testing.T) {
	gen := &tallyGenerator{replies: []string{"NEGATIVE", "NEGATIVE", "NEGATIVE", "POSITIVE", "NEUTRAL"}}
	v := New(gen, 5, 3)

	ok, reason := v.IsCompliant(context.Background(), "something unpleasant")
	if ok {
		t.Error("majority-negative vote should be non-compliant")
	}
	if reason != ReasonNonCompliant {
		t.Errorf("reason = %q, want %q", reason, ReasonNonCompliant)
	}
}

// Tally {POSITIVE:2, NEGATIVE:1, NEUTRAL:2}: no bucket reaches 3, so the
// default-permissive neutral branch carries.
func TestVoteNeutralTieBreak(t *testing.T) {
	gen := &tallyGenerator{replies: []string{"POSITIVE", "POSITIVE", "NEGATIVE", "NEUTRAL", "NEUTRAL"}}
	v := New(gen, 5, 3)

	ok, reason := v.IsCompliant(context.Background(), "reorganize the garage")
	if !ok {
		t.Error("tied vote should default to compliant")
	}
	if reason != ReasonNeutralDefault {
		t.Errorf("reason = %q, want %q", reason, ReasonNeutralDefault)
	}
}

func TestVoteSkipsFailedCalls(t *testing.T) {
	gen := &tallyGenerator{
		replies: []string{"", "", "NEGATIVE", "NEGATIVE", "NEGATIVE"},
		errs:    []error{&gateway.TransportError{Detail: "down"}, &gateway.TransportError{Detail: "down"}, nil, nil, nil},
	}
	v := New(gen, 5, 3)

	ok, reason := v.IsCompliant(context.Background(), "bad idea")
	if ok {
		t.Error("three NEGATIVE with two failures should still be non-compliant")
	}
	if reason != ReasonNonCompliant {
		t.Errorf("reason = %q", reason)
	}
}

func TestVoteAllCallsFailDefaultsNeutral(t *testing.T) {
	gen := &tallyGenerator{}
	v := New(gen, 5, 3)

	ok, reason := v.IsCompliant(context.Background(), "anything")
	if !ok {
		t.Error("empty tally should default to compliant")
	}
	if reason != ReasonNeutralDefault {
		t.Errorf("reason = %q", reason)
	}
}

func TestParseSentiment(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"POSITIVE", sentimentPositive},
		{"The sentiment is: negative.", sentimentNegative},
		{"Neutral", sentimentNeutral},
		{"I cannot classify that", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := parseSentiment(tt.in); got != tt.want {
			t.Errorf("parseSentiment(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
