package plan

import (
	"testing"
)

func TestNewStructuredSolutionHasAllPhases(t *testing.T) {
	ssol := NewStructuredSolution(NewGoal("learn to sail", true, ""))

	if len(ssol.Phases) != len(Phases) {
		t.Fatalf("expected %d phases, got %d", len(Phases), len(ssol.Phases))
	}
	for _, p := range Phases {
		cosList, ok := ssol.Phases[p]
		if !ok {
			t.Errorf("phase %q missing", p)
		}
		if cosList == nil {
			t.Errorf("phase %q should hold an empty slice, got nil", p)
		}
	}
}

func TestAddCOSPreservesOrder(t *testing.T) {
	ssol := NewStructuredSolution(NewGoal("run a marathon", true, ""))
	ssol.AddCOS(NewCOS(ssol.ID, PhaseAction, "Completed the first training block"))
	ssol.AddCOS(NewCOS(ssol.ID, PhaseAction, "Ran a half marathon"))

	action := ssol.Phases[PhaseAction]
	if len(action) != 2 {
		t.Fatalf("expected 2 COS in action phase, got %d", len(action))
	}
	if action[0].Content != "Completed the first training block" {
		t.Errorf("generation order not preserved: %q first", action[0].Content)
	}
}

func TestParsePhase(t *testing.T) {
	tests := []struct {
		in      string
		want    Phase
		wantErr bool
	}{
		{"discovery", PhaseDiscovery, false},
		{" Engagement ", PhaseEngagement, false},
		{"LEGACY", PhaseLegacy, false},
		{"planning", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParsePhase(tt.in)
		if tt.wantErr != (err != nil) {
			t.Errorf("ParsePhase(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePhase(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeCEContent(t *testing.T) {
	a := NormalizeCEContent("  Ships   the Report ")
	b := NormalizeCEContent("ships the report")
	if a != b {
		t.Errorf("normalized forms differ: %q vs %q", a, b)
	}
}

func TestParseCOSStatus(t *testing.T) {
	if _, err := ParseCOSStatus("In Progress"); err != nil {
		t.Errorf("In Progress should parse: %v", err)
	}
	if _, err := ParseCOSStatus("Done"); err == nil {
		t.Error("Done should not parse")
	}
}
