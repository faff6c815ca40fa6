package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"goalforge/internal/extract"
	"goalforge/internal/gateway"
	"goalforge/internal/logging"
	"goalforge/internal/plan"
)

const solutionPrompt = `You are a planning assistant. Break the goal below into conditions of
satisfaction: discrete, checkable statements written in past tense, as if the
goal were already achieved.

Reply with a JSON object whose keys are exactly:
"discovery", "engagement", "action", "completion", "legacy"
Each key maps to an array of 2 to 5 condition strings. No other keys, no
commentary outside the JSON.

Goal: `

// GenerateStructuredSolution asks the model for 2-5 conditions of
// satisfaction per phase and assembles the solution shell. A reply that
// cannot be parsed as the expected JSON degrades to placeholder conditions
// rather than failing; only gateway-level errors propagate.
func (e *Engine) GenerateStructuredSolution(ctx context.Context, goal plan.Goal) (*plan.StructuredSolution, error) {
	turns := []gateway.Turn{
		{Role: gateway.RoleUser, Content: solutionPrompt + goal.Title},
	}
	reply, err := e.gen.Generate(ctx, turns, gateway.GenerationOptions{Temperature: 0.7})
	if err != nil {
		return nil, fmt.Errorf("solution generation failed: %w", err)
	}

	sol := plan.NewStructuredSolution(goal)
	for phase, contents := range parsePhaseMap(reply) {
		for _, content := range contents {
			sol.AddCOS(plan.NewCOS(sol.ID, phase, content))
		}
	}
	logging.Engine("structured solution %s: %d COS across %d phases", sol.ID, len(sol.AllCOS()), len(plan.Phases))
	return sol, nil
}

// parsePhaseMap extracts the phase->conditions object from a raw model reply.
// Any phase the reply misses, and the whole map when the payload is not valid
// JSON, falls back to two placeholder conditions.
func parsePhaseMap(raw string) map[plan.Phase][]string {
	out := make(map[plan.Phase][]string, len(plan.Phases))

	var parsed map[string][]string
	if err := json.Unmarshal([]byte(extract.Payload(raw)), &parsed); err != nil {
		logging.EngineWarn("solution payload unparsable, using placeholders: %v", err)
		parsed = nil
	}

	for _, phase := range plan.Phases {
		var kept []string
		for _, s := range parsed[string(phase)] {
			if s = strings.TrimSpace(s); s != "" {
				kept = append(kept, s)
			}
		}
		if len(kept) == 0 {
			kept = []string{"Default COS 1", "Default COS 2"}
			logging.EngineDebug("phase %s empty in reply, using placeholders", phase)
		}
		out[phase] = kept
	}
	return out
}
