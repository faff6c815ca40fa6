package engine

import (
	"context"
	"fmt"
	"strings"

	"goalforge/internal/gateway"
	"goalforge/internal/logging"
	"goalforge/internal/plan"
	"goalforge/internal/vote"
)

// notAllowedSentinel is the literal the model is instructed to reply with
// when the requested goal is off limits.
const notAllowedSentinel = "NOT ALLOWED"

// candidateCount is how many distinct goal phrasings a run produces.
const candidateCount = 3

// maxGenerationRounds bounds the candidate loop. Three full passes over the
// temperature ladder is nine model calls.
const maxGenerationRounds = 3

// candidateTemperatures is the round-robin ladder: each successive call runs
// hotter so the phrasings diverge.
var candidateTemperatures = []float64{0.6, 0.8, 1.0}

const goalPrompt = `Rephrase the following goal as a single concise, actionable goal statement.
Reply with the goal statement only, no preamble and no quotation marks.
If the goal is unsafe, illegal, or harmful, reply with exactly: NOT ALLOWED

Goal: `

// isRefusal reports whether the reply IS the refusal sentinel, tolerating
// case and trailing punctuation. A phrasing that merely contains the words
// ("pets are not allowed indoors") is a normal candidate, not a veto.
func isRefusal(reply string) bool {
	r := strings.ToUpper(strings.TrimSpace(reply))
	r = strings.TrimSpace(strings.TrimRight(r, ".!"))
	return r == notAllowedSentinel
}

// GenerateGoalCandidates produces exactly three distinct candidate phrasings
// of the user's input, each screened by the compliance voter. A literal
// "NOT ALLOWED" reply short-circuits the run to a single non-compliant entry.
// If the model cannot produce three distinct titles within the round budget,
// a generation-exhausted error is returned.
func (e *Engine) GenerateGoalCandidates(ctx context.Context, userInput string) ([]plan.Goal, error) {
	var candidates []plan.Goal
	seen := make(map[string]bool)

	calls := 0
	budget := maxGenerationRounds * len(candidateTemperatures)
	for len(candidates) < candidateCount && calls < budget {
		temp := candidateTemperatures[calls%len(candidateTemperatures)]
		calls++

		turns := []gateway.Turn{
			{Role: gateway.RoleUser, Content: goalPrompt + userInput},
		}
		reply, err := e.gen.Generate(ctx, turns, gateway.GenerationOptions{Temperature: temp})
		if err != nil {
			return nil, fmt.Errorf("goal generation failed: %w", err)
		}

		title := strings.TrimSpace(reply)
		if isRefusal(title) {
			logging.Engine("goal generation refused for input %q", userInput)
			return []plan.Goal{
				plan.NewGoal(userInput, false, vote.ReasonNonCompliant),
			}, nil
		}
		if title == "" || seen[strings.ToLower(title)] {
			logging.EngineDebug("discarded duplicate or empty candidate %q", title)
			continue
		}
		seen[strings.ToLower(title)] = true

		compliant, reason := e.voter.IsCompliant(ctx, title)
		candidates = append(candidates, plan.NewGoal(title, compliant, reason))
		logging.EngineDebug("candidate %d/%d: %q compliant=%v", len(candidates), candidateCount, title, compliant)
	}

	if len(candidates) < candidateCount {
		return nil, fmt.Errorf("goal generation exhausted after %d calls with %d distinct candidates", calls, len(candidates))
	}
	return candidates, nil
}
