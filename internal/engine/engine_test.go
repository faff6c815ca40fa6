package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"goalforge/internal/gateway"
	"goalforge/internal/plan"
	"goalforge/internal/store"
	"goalforge/internal/vote"
)

// scriptGen routes each model call through a test-supplied function and
// records the temperatures it was asked for.
type scriptGen struct {
	mu    sync.Mutex
	fn    func(call int, prompt string, opts gateway.GenerationOptions) (string, error)
	calls int
	temps []float64
}

func (g *scriptGen) Generate(ctx context.Context, turns []gateway.Turn, opts gateway.GenerationOptions) (string, error) {
	g.mu.Lock()
	g.calls++
	call := g.calls
	g.temps = append(g.temps, opts.Temperature)
	g.mu.Unlock()
	return g.fn(call, turns[len(turns)-1].Content, opts)
}

type stubVoter struct {
	ok     bool
	reason string
}

func (v stubVoter) IsCompliant(ctx context.Context, candidate string) (bool, string) {
	return v.ok, v.reason
}

func newTestEngine(gen Generator, voter ComplianceChecker) (*Engine, *store.MemoryStore) {
	repo := store.NewMemoryStore()
	return New(gen, voter, repo, nil), repo
}

func TestGenerateGoalCandidatesProducesThree(t *testing.T) {
	gen := &scriptGen{fn: func(call int, prompt string, opts gateway.GenerationOptions) (string, error) {
		return fmt.Sprintf("Candidate phrasing %d", call), nil
	}}
	e, _ := newTestEngine(gen, stubVoter{ok: true})

	goals, err := e.GenerateGoalCandidates(context.Background(), "get fit")
	if err != nil {
		t.Fatalf("GenerateGoalCandidates: %v", err)
	}
	if len(goals) != 3 {
		t.Fatalf("got %d candidates, want 3", len(goals))
	}
	for _, g := range goals {
		if !g.Compliant {
			t.Errorf("candidate %q marked non-compliant", g.Title)
		}
		if g.ID == "" {
			t.Error("candidate missing id")
		}
	}
	if diff := cmp.Diff([]float64{0.6, 0.8, 1.0}, gen.temps); diff != "" {
		t.Errorf("temperature ladder mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerateGoalCandidatesSkipsDuplicateTitles(t *testing.T) {
	replies := []string{"Same Title", "same title", "Other Title", "Third Title"}
	gen := &scriptGen{fn: func(call int, prompt string, opts gateway.GenerationOptions) (string, error) {
		return replies[call-1], nil
	}}
	e, _ := newTestEngine(gen, stubVoter{ok: true})

	goals, err := e.GenerateGoalCandidates(context.Background(), "anything")
	if err != nil {
		t.Fatalf("GenerateGoalCandidates: %v", err)
	}
	titles := []string{goals[0].Title, goals[1].Title, goals[2].Title}
	want := []string{"Same Title", "Other Title", "Third Title"}
	if diff := cmp.Diff(want, titles); diff != "" {
		t.Errorf("titles mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerateGoalCandidatesNotAllowed(t *testing.T) {
	gen := &scriptGen{fn: func(call int, prompt string, opts gateway.GenerationOptions) (string, error) {
		return "NOT ALLOWED", nil
	}}
	e, _ := newTestEngine(gen, stubVoter{ok: true})

	goals, err := e.GenerateGoalCandidates(context.Background(), "something harmful")
	if err != nil {
		t.Fatalf("GenerateGoalCandidates: %v", err)
	}
	if len(goals) != 1 {
		t.Fatalf("got %d candidates, want 1", len(goals))
	}
	if goals[0].Compliant {
		t.Error("refused goal marked compliant")
	}
	if goals[0].Reason != vote.ReasonNonCompliant {
		t.Errorf("reason = %q, want %q", goals[0].Reason, vote.ReasonNonCompliant)
	}
	if goals[0].Title != "something harmful" {
		t.Errorf("title = %q, want the raw input", goals[0].Title)
	}
	if gen.calls != 1 {
		t.Errorf("made %d calls after refusal, want 1", gen.calls)
	}
}

// The refusal short-circuit fires only when the reply IS the sentinel; a
// phrasing that merely contains the words is an ordinary candidate.
func TestGenerateGoalCandidatesSentinelRequiresLiteralReply(t *testing.T) {
	replies := []string{
		"Ensured pets are not allowed in the kitchen",
		"Confirmed smoking was not allowed indoors",
		"Kept the venue tidy",
	}
	gen := &scriptGen{fn: func(call int, prompt string, opts gateway.GenerationOptions) (string, error) {
		return replies[call-1], nil
	}}
	e, _ := newTestEngine(gen, stubVoter{ok: true})

	goals, err := e.GenerateGoalCandidates(context.Background(), "host a dinner")
	if err != nil {
		t.Fatalf("GenerateGoalCandidates: %v", err)
	}
	if len(goals) != 3 {
		t.Fatalf("got %d candidates, want 3", len(goals))
	}
	for _, g := range goals {
		if !g.Compliant {
			t.Errorf("candidate %q wrongly vetoed", g.Title)
		}
	}
}

func TestIsRefusal(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"NOT ALLOWED", true},
		{"not allowed", true},
		{"  NOT ALLOWED.  ", true},
		{"NOT ALLOWED!", true},
		{"Pets are not allowed indoors", false},
		{"NOT ALLOWED to proceed", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := isRefusal(tt.in); got != tt.want {
			t.Errorf("isRefusal(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestGenerateGoalCandidatesExhausted(t *testing.T) {
	gen := &scriptGen{fn: func(call int, prompt string, opts gateway.GenerationOptions) (string, error) {
		return "always the same", nil
	}}
	e, _ := newTestEngine(gen, stubVoter{ok: true})

	_, err := e.GenerateGoalCandidates(context.Background(), "anything")
	if err == nil {
		t.Fatal("expected generation-exhausted error")
	}
	if gen.calls != 9 {
		t.Errorf("made %d calls, want the full budget of 9", gen.calls)
	}
}

func TestGenerateGoalCandidatesPropagatesGatewayError(t *testing.T) {
	wantErr := &gateway.TransportError{Detail: "down"}
	gen := &scriptGen{fn: func(call int, prompt string, opts gateway.GenerationOptions) (string, error) {
		return "", wantErr
	}}
	e, _ := newTestEngine(gen, stubVoter{ok: true})

	_, err := e.GenerateGoalCandidates(context.Background(), "anything")
	if !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want wrapped transport error", err)
	}
}

func TestGenerateStructuredSolution(t *testing.T) {
	reply := "```json\n" + `{
		"discovery": ["Researched options", "Interviewed three coaches"],
		"engagement": ["Joined a running club"],
		"action": ["Completed the twelve week program", "Logged every session", "Hit the weekly distance target"],
		"completion": ["Finished the race"],
		"legacy": ["Mentored a new runner"]
	}` + "\n```"
	gen := &scriptGen{fn: func(call int, prompt string, opts gateway.GenerationOptions) (string, error) {
		return reply, nil
	}}
	e, _ := newTestEngine(gen, stubVoter{ok: true})

	goal := plan.NewGoal("run a marathon", true, "")
	sol, err := e.GenerateStructuredSolution(context.Background(), goal)
	if err != nil {
		t.Fatalf("GenerateStructuredSolution: %v", err)
	}

	if sol.Goal.ID != goal.ID {
		t.Error("solution not bound to its goal")
	}
	if len(sol.Phases) != len(plan.Phases) {
		t.Fatalf("got %d phase keys, want %d", len(sol.Phases), len(plan.Phases))
	}
	if got := len(sol.Phases[plan.PhaseAction]); got != 3 {
		t.Errorf("action phase has %d COS, want 3", got)
	}
	for _, c := range sol.AllCOS() {
		if c.Status != plan.StatusProposed {
			t.Errorf("COS %q status = %q, want Proposed", c.Content, c.Status)
		}
		if c.SSOLID != sol.ID {
			t.Errorf("COS %q not bound to solution", c.Content)
		}
		if c.ID == "" {
			t.Error("COS missing id")
		}
	}
	if sol.Phases[plan.PhaseDiscovery][0].Content != "Researched options" {
		t.Errorf("discovery order lost: %q", sol.Phases[plan.PhaseDiscovery][0].Content)
	}
}

func TestGenerateStructuredSolutionFallback(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"garbage", "I am sorry, I cannot produce JSON today."},
		{"missing phases", `{"discovery": ["Only one phase"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &scriptGen{fn: func(call int, prompt string, opts gateway.GenerationOptions) (string, error) {
				return tt.reply, nil
			}}
			e, _ := newTestEngine(gen, stubVoter{ok: true})

			sol, err := e.GenerateStructuredSolution(context.Background(), plan.NewGoal("g", true, ""))
			if err != nil {
				t.Fatalf("GenerateStructuredSolution: %v", err)
			}
			for _, phase := range plan.Phases {
				if phase == plan.PhaseDiscovery && tt.name == "missing phases" {
					continue
				}
				cosList := sol.Phases[phase]
				if len(cosList) != 2 {
					t.Fatalf("phase %s has %d COS, want 2 placeholders", phase, len(cosList))
				}
				if cosList[0].Content != "Default COS 1" || cosList[1].Content != "Default COS 2" {
					t.Errorf("phase %s placeholders = %q, %q", phase, cosList[0].Content, cosList[1].Content)
				}
			}
		})
	}
}

func TestDecomposeCOS(t *testing.T) {
	gen := &scriptGen{fn: func(call int, prompt string, opts gateway.GenerationOptions) (string, error) {
		return "Booked <ce>the community hall</ce> before <ce>March 1st</ce>", nil
	}}
	e, _ := newTestEngine(gen, stubVoter{ok: true})

	content, ces := e.DecomposeCOS(context.Background(), "Booked the community hall before March 1st")
	if len(ces) != 2 {
		t.Fatalf("got %d CEs, want 2", len(ces))
	}
	if ces[0].Content != "the community hall" || ces[1].Content != "March 1st" {
		t.Errorf("CE contents = %q, %q", ces[0].Content, ces[1].Content)
	}
	for _, ce := range ces {
		if ce.CEType != plan.CETypeUnknown {
			t.Errorf("fresh CE type = %q, want Unknown", ce.CEType)
		}
		if !strings.Contains(content, fmt.Sprintf(`<ce id=%q>%s</ce>`, ce.ID, ce.Content)) {
			t.Errorf("content missing id-carrying wrapper for %q: %s", ce.Content, content)
		}
	}
}

// Prose the model wraps around the tagged statement must never reach stored
// content: the tags are spliced into the original statement instead.
func TestDecomposeCOSIgnoresReplyProse(t *testing.T) {
	gen := &scriptGen{fn: func(call int, prompt string, opts gateway.GenerationOptions) (string, error) {
		return "Sure! Here it is: Booked <ce>the community hall</ce> before <ce>March 1st</ce>. Hope that helps!", nil
	}}
	e, _ := newTestEngine(gen, stubVoter{ok: true})

	original := "Booked the community hall before March 1st"
	content, ces := e.DecomposeCOS(context.Background(), original)
	if len(ces) != 2 {
		t.Fatalf("got %d CEs, want 2", len(ces))
	}
	if strings.Contains(content, "Sure!") || strings.Contains(content, "Hope that helps") {
		t.Errorf("reply prose leaked into content: %s", content)
	}
	if !strings.HasPrefix(content, "Booked <ce id=") {
		t.Errorf("content does not start from the original statement: %s", content)
	}
	stripped := content
	for _, ce := range ces {
		stripped = strings.ReplaceAll(stripped,
			fmt.Sprintf(`<ce id=%q>%s</ce>`, ce.ID, ce.Content), ce.Content)
	}
	if stripped != original {
		t.Errorf("untagged content = %q, want the original statement", stripped)
	}
}

func TestDecomposeCOSSkipsParaphrasedSpans(t *testing.T) {
	gen := &scriptGen{fn: func(call int, prompt string, opts gateway.GenerationOptions) (string, error) {
		return "Booked <ce>a big hall</ce> before <ce>March 1st</ce>", nil
	}}
	e, _ := newTestEngine(gen, stubVoter{ok: true})

	original := "Booked the community hall before March 1st"
	content, ces := e.DecomposeCOS(context.Background(), original)
	if len(ces) != 1 {
		t.Fatalf("got %d CEs, want 1 (paraphrased span skipped)", len(ces))
	}
	if ces[0].Content != "March 1st" {
		t.Errorf("kept CE = %q, want the span that occurs verbatim", ces[0].Content)
	}
	if strings.Contains(content, "a big hall") {
		t.Errorf("paraphrased span leaked into content: %s", content)
	}
}

func TestDecomposeCOSDegradesOnFailure(t *testing.T) {
	tests := []struct {
		name string
		fn   func(call int, prompt string, opts gateway.GenerationOptions) (string, error)
	}{
		{"gateway error", func(int, string, gateway.GenerationOptions) (string, error) {
			return "", &gateway.TransportError{Detail: "down"}
		}},
		{"no tags", func(int, string, gateway.GenerationOptions) (string, error) {
			return "a reply without any markup", nil
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestEngine(&scriptGen{fn: tt.fn}, stubVoter{ok: true})

			original := "Secured the venue"
			content, ces := e.DecomposeCOS(context.Background(), original)
			if content != original {
				t.Errorf("content = %q, want the original back", content)
			}
			if len(ces) != 0 {
				t.Errorf("got %d CEs, want none", len(ces))
			}
		})
	}
}

func TestClassifyCEs(t *testing.T) {
	gen := &scriptGen{fn: func(call int, prompt string, opts gateway.GenerationOptions) (string, error) {
		return `["Resource", "Timeline", "Cryptid"]`, nil
	}}
	e, _ := newTestEngine(gen, stubVoter{ok: true})

	ces := []plan.CE{
		plan.NewCE("", "the community hall"),
		plan.NewCE("", "March 1st"),
		plan.NewCE("", "something strange"),
	}
	got := e.ClassifyCEs(context.Background(), ces)

	want := []string{"Resource", "Timeline", plan.CETypeUnknown}
	for i, ce := range got {
		if ce.CEType != want[i] {
			t.Errorf("CE %d type = %q, want %q", i, ce.CEType, want[i])
		}
	}
}

func TestClassifyCEsKeepsUnknownOnFailure(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		err   error
	}{
		{"gateway error", "", &gateway.TransportError{Detail: "down"}},
		{"unparsable", "not json", nil},
		{"length mismatch", `["Resource"]`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &scriptGen{fn: func(int, string, gateway.GenerationOptions) (string, error) {
				return tt.reply, tt.err
			}}
			e, _ := newTestEngine(gen, stubVoter{ok: true})

			ces := []plan.CE{plan.NewCE("", "a"), plan.NewCE("", "b")}
			for _, ce := range e.ClassifyCEs(context.Background(), ces) {
				if ce.CEType != plan.CETypeUnknown {
					t.Errorf("type = %q, want Unknown", ce.CEType)
				}
			}
		})
	}
}

// pipelineGen answers each stage of a full run by matching the prompt.
func pipelineGen(t *testing.T) *scriptGen {
	t.Helper()
	return &scriptGen{fn: func(call int, prompt string, opts gateway.GenerationOptions) (string, error) {
		switch {
		case strings.HasPrefix(prompt, goalPrompt[:30]):
			return fmt.Sprintf("Plan the reunion, take %d", call), nil
		case strings.HasPrefix(prompt, solutionPrompt[:30]):
			return `{
				"discovery": ["Confirmed the guest list"],
				"engagement": ["Invited every cousin to the community hall"],
				"action": ["Booked the community hall"],
				"completion": ["Hosted the dinner"],
				"legacy": ["Shared the photo album"]
			}`, nil
		case strings.HasPrefix(prompt, decomposePrompt[:30]):
			stmt := strings.TrimSpace(strings.TrimPrefix(prompt, decomposePrompt))
			// Tag "the community hall" wherever it appears
			return strings.Replace(stmt, "the community hall", "<ce>the community hall</ce>", 1), nil
		case strings.HasPrefix(prompt, "Classify each conditional element"):
			return `["Resource"]`, nil
		default:
			t.Fatalf("unexpected prompt: %.60s", prompt)
			return "", nil
		}
	}}
}

func TestRunPipeline(t *testing.T) {
	e, repo := newTestEngine(pipelineGen(t), stubVoter{ok: true})

	sol, err := e.Run(context.Background(), "family reunion")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	persisted, err := repo.GetSolution(sol.ID)
	if err != nil {
		t.Fatalf("solution not persisted: %v", err)
	}
	if len(persisted.AllCOS()) != 5 {
		t.Fatalf("got %d COS, want 5", len(persisted.AllCOS()))
	}

	// "the community hall" appears in two COS; dedup leaves one CE record
	// linked to both, and both contents carry the surviving id.
	var hallID string
	linked := 0
	for _, c := range persisted.AllCOS() {
		ces, err := repo.CEsForCOS(c.ID)
		if err != nil {
			t.Fatalf("CEsForCOS: %v", err)
		}
		for _, ce := range ces {
			if ce.Content != "the community hall" {
				continue
			}
			if ce.CEType != "Resource" {
				t.Errorf("CE type = %q, want Resource", ce.CEType)
			}
			if hallID == "" {
				hallID = ce.ID
			} else if ce.ID != hallID {
				t.Errorf("duplicate CE records %s and %s for identical content", hallID, ce.ID)
			}
			stored, err := repo.GetCOS(c.ID)
			if err != nil {
				t.Fatalf("GetCOS: %v", err)
			}
			if !strings.Contains(stored.Content, fmt.Sprintf(`<ce id=%q>`, ce.ID)) {
				t.Errorf("COS content does not carry the surviving CE id: %s", stored.Content)
			}
			linked++
		}
	}
	if linked != 2 {
		t.Errorf("community hall linked to %d COS, want 2", linked)
	}
}

func TestRunRejectsNonCompliantGoal(t *testing.T) {
	gen := &scriptGen{fn: func(call int, prompt string, opts gateway.GenerationOptions) (string, error) {
		return "NOT ALLOWED", nil
	}}
	e, repo := newTestEngine(gen, stubVoter{ok: true})

	_, err := e.Run(context.Background(), "something harmful")
	if err == nil {
		t.Fatal("expected rejection error")
	}
	if !strings.Contains(err.Error(), vote.ReasonNonCompliant) {
		t.Errorf("err = %v, want the non-compliance reason", err)
	}

	// The refusal itself is recorded
	goals, err := repo.ListGoals()
	if err != nil {
		t.Fatalf("ListGoals: %v", err)
	}
	if len(goals) != 1 || goals[0].Compliant {
		t.Errorf("refusal not recorded: %+v", goals)
	}
}
