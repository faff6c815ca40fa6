// Package plan defines the planning entities goalforge produces: a Goal,
// its StructuredSolution split across five fixed phases, per-phase
// Conditions of Satisfaction (COS), and per-COS Conditional Elements (CE).
package plan

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Phase is one of the five fixed stages of a structured solution.
type Phase string

const (
	PhaseDiscovery  Phase = "discovery"
	PhaseEngagement Phase = "engagement"
	PhaseAction     Phase = "action"
	PhaseCompletion Phase = "completion"
	PhaseLegacy     Phase = "legacy"
)

// Phases lists the phases in canonical order. Every structured solution
// carries exactly these keys, never more, never fewer.
var Phases = []Phase{
	PhaseDiscovery,
	PhaseEngagement,
	PhaseAction,
	PhaseCompletion,
	PhaseLegacy,
}

// ParsePhase validates a phase name.
func ParsePhase(s string) (Phase, error) {
	p := Phase(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Phases {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown phase %q", s)
}

// COSStatus is the lifecycle state of a condition of satisfaction.
type COSStatus string

const (
	StatusProposed   COSStatus = "Proposed"
	StatusInProgress COSStatus = "In Progress"
	StatusCompleted  COSStatus = "Completed"
	StatusRejected   COSStatus = "Rejected"
)

// ParseCOSStatus validates a status string.
func ParseCOSStatus(s string) (COSStatus, error) {
	switch COSStatus(strings.TrimSpace(s)) {
	case StatusProposed:
		return StatusProposed, nil
	case StatusInProgress:
		return StatusInProgress, nil
	case StatusCompleted:
		return StatusCompleted, nil
	case StatusRejected:
		return StatusRejected, nil
	}
	return "", fmt.Errorf("unknown COS status %q", s)
}

// Goal is the user's stated desired outcome after compliance screening.
// Immutable once created.
type Goal struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Compliant bool   `json:"compliant"`
	Reason    string `json:"reason"`
}

// NewGoal mints a goal with a fresh id.
func NewGoal(title string, compliant bool, reason string) Goal {
	return Goal{
		ID:        uuid.NewString(),
		Title:     title,
		Compliant: compliant,
		Reason:    reason,
	}
}

// COS is a discrete, checkable statement that must hold true within a phase.
// Content may embed CE markup inserted by decomposition.
type COS struct {
	ID               string     `json:"id"`
	Content          string     `json:"content"`
	Status           COSStatus  `json:"status"`
	AccountableParty string     `json:"accountable_party,omitempty"`
	CompletionDate   *time.Time `json:"completion_date,omitempty"`
	Phase            Phase      `json:"phase"`
	SSOLID           string     `json:"ssol_id"`
}

// NewCOS mints a proposed COS for the given solution and phase.
func NewCOS(ssolID string, phase Phase, content string) COS {
	return COS{
		ID:      uuid.NewString(),
		Content: content,
		Status:  StatusProposed,
		Phase:   phase,
		SSOLID:  ssolID,
	}
}

// CE is a sub-span of a COS identified as a distinct actionable concern.
// CEType is a taxonomy name or "Unknown" pending classification.
type CE struct {
	ID          string `json:"id"`
	Content     string `json:"content"`
	CEType      string `json:"ce_type"`
	IsSatisfied bool   `json:"is_satisfied"`
	COSID       string `json:"cos_id"`
}

// CETypeUnknown marks a CE whose taxonomy type has not been resolved yet.
const CETypeUnknown = "Unknown"

// NewCE mints an unclassified CE.
func NewCE(cosID, content string) CE {
	return CE{
		ID:      uuid.NewString(),
		Content: content,
		CEType:  CETypeUnknown,
		COSID:   cosID,
	}
}

// NormalizeCEContent produces the dedup key for CE content: identical
// normalized content maps to one CE record per store instance.
func NormalizeCEContent(content string) string {
	return strings.Join(strings.Fields(strings.ToLower(content)), " ")
}

// StructuredSolution groups a goal's COS by phase. The phase map always
// holds all five keys; empty phases carry empty slices.
type StructuredSolution struct {
	ID     string          `json:"id"`
	Goal   Goal            `json:"goal"`
	Phases map[Phase][]COS `json:"phases"`
}

// NewStructuredSolution creates an empty solution shell for the goal with
// every phase key present.
func NewStructuredSolution(goal Goal) *StructuredSolution {
	phases := make(map[Phase][]COS, len(Phases))
	for _, p := range Phases {
		phases[p] = []COS{}
	}
	return &StructuredSolution{
		ID:     uuid.NewString(),
		Goal:   goal,
		Phases: phases,
	}
}

// AddCOS appends a COS to its phase, preserving generation order.
func (s *StructuredSolution) AddCOS(c COS) {
	s.Phases[c.Phase] = append(s.Phases[c.Phase], c)
}

// AllCOS returns the solution's COS in canonical phase order.
func (s *StructuredSolution) AllCOS() []COS {
	var out []COS
	for _, p := range Phases {
		out = append(out, s.Phases[p]...)
	}
	return out
}
