// Package engine drives the decomposition pipeline: goal candidates from a
// user's raw input, a five-phase structured solution for the chosen goal,
// per-COS conditional element extraction and classification, and persistence
// with content-level CE dedup.
package engine

import (
	"context"
	"fmt"
	"strings"

	"goalforge/internal/gateway"
	"goalforge/internal/logging"
	"goalforge/internal/plan"
	"goalforge/internal/store"
	"goalforge/internal/taxonomy"
)

// Generator is the orchestrated chat surface the engine generates through.
type Generator interface {
	Generate(ctx context.Context, turns []gateway.Turn, opts gateway.GenerationOptions) (string, error)
}

// ComplianceChecker screens a candidate goal title.
type ComplianceChecker interface {
	IsCompliant(ctx context.Context, candidate string) (bool, string)
}

// Engine wires the generator, the compliance voter, the taxonomy catalog, and
// the entity store into one pipeline.
type Engine struct {
	gen     Generator
	voter   ComplianceChecker
	repo    store.Repository
	catalog *taxonomy.Catalog
}

// New assembles an engine. The catalog may be nil, in which case the built-in
// taxonomy is used.
func New(gen Generator, voter ComplianceChecker, repo store.Repository, catalog *taxonomy.Catalog) *Engine {
	if catalog == nil {
		catalog = taxonomy.Builtin()
	}
	return &Engine{gen: gen, voter: voter, repo: repo, catalog: catalog}
}

// Run executes the full pipeline for a user's raw goal input and returns the
// persisted solution. Candidate selection takes the first compliant goal; if
// every candidate is non-compliant the pipeline stops there.
func (e *Engine) Run(ctx context.Context, userInput string) (*plan.StructuredSolution, error) {
	candidates, err := e.GenerateGoalCandidates(ctx, userInput)
	if err != nil {
		return nil, err
	}

	var goal *plan.Goal
	for i := range candidates {
		if candidates[i].Compliant {
			goal = &candidates[i]
			break
		}
	}
	if goal == nil {
		// Record the refusal so the audit trail survives
		if err := e.repo.CreateGoal(candidates[0]); err != nil {
			return nil, fmt.Errorf("failed to record non-compliant goal: %w", err)
		}
		return nil, fmt.Errorf("goal rejected: %s", candidates[0].Reason)
	}
	logging.Engine("selected goal %q (%s)", goal.Title, goal.ID)

	sol, err := e.GenerateStructuredSolution(ctx, *goal)
	if err != nil {
		return nil, err
	}

	// Decompose and classify in memory before the transactional write
	ceByCOS := make(map[string][]plan.CE)
	for _, phase := range plan.Phases {
		cosList := sol.Phases[phase]
		for i := range cosList {
			content, ces := e.DecomposeCOS(ctx, cosList[i].Content)
			ces = e.ClassifyCEs(ctx, ces)
			cosList[i].Content = content
			ceByCOS[cosList[i].ID] = ces
		}
		sol.Phases[phase] = cosList
	}

	if err := e.repo.CreateSolution(sol); err != nil {
		return nil, fmt.Errorf("failed to persist solution: %w", err)
	}

	if err := e.persistCEs(sol, ceByCOS); err != nil {
		return nil, err
	}

	logging.Engine("pipeline complete: solution %s for goal %q", sol.ID, goal.Title)
	return sol, nil
}

// persistCEs stores each COS's conditional elements as one transactional
// batch per COS. When dedup resolves a CE to an existing record, the COS
// markup is rewritten to carry the surviving id.
func (e *Engine) persistCEs(sol *plan.StructuredSolution, ceByCOS map[string][]plan.CE) error {
	for _, phase := range plan.Phases {
		cosList := sol.Phases[phase]
		for i := range cosList {
			c := &cosList[i]
			minted := ceByCOS[c.ID]
			if len(minted) == 0 {
				continue
			}
			stored, err := e.repo.AttachCEs(c.ID, minted)
			if err != nil {
				return fmt.Errorf("failed to store CEs: %w", err)
			}
			rewritten := false
			for j, ce := range stored {
				if ce.ID != minted[j].ID {
					c.Content = strings.ReplaceAll(c.Content, minted[j].ID, ce.ID)
					rewritten = true
					logging.EngineDebug("CE %q deduped onto %s", ce.Content, ce.ID)
				}
			}
			if rewritten {
				if err := e.repo.UpdateCOS(*c); err != nil {
					return fmt.Errorf("failed to rewrite COS markup: %w", err)
				}
			}
		}
		sol.Phases[phase] = cosList
	}
	return nil
}
