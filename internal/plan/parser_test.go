package plan

import (
	"os"
	"path/filepath"
	"testing"
)

const testDomain = `(define (domain rover)
  (:requirements :strips :typing :durative-actions)
  ; comment with (:action fake :parameters (?x))
  (:durative-action goto_waypoint
    :parameters (?v - robot ?from ?to - waypoint)
    :duration (= ?duration 10)
    :condition (at start (robot_at ?v ?from))
    :effect (at end (robot_at ?v ?to)))
  (:action dock
    :parameters (?v - robot ?wp - waypoint)
    :precondition (robot_at ?v ?wp)
    :effect (docked ?v)))
`

const testArtifact = `; Plan found with metric 12.003
; States evaluated so far: 5
; Time 0.01
0.000: (goto_waypoint kenny wp0 wp1)  [10.000]
10.001: (goto_waypoint kenny wp1 wp2)  [10.000]
20.002: (dock kenny wp2)  [0.001]
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestParseDomain(t *testing.T) {
	d := ParseDomain(testDomain)

	if len(d.Operators) != 2 {
		t.Fatalf("expected 2 operators, got %d: %v", len(d.Operators), d.Operators)
	}

	tests := []struct {
		operator string
		want     []string
	}{
		{"goto_waypoint", []string{"v", "from", "to"}},
		{"dock", []string{"v", "wp"}},
	}
	for _, tt := range tests {
		got := d.Operators[tt.operator]
		if len(got) != len(tt.want) {
			t.Fatalf("%s: got params %v, want %v", tt.operator, got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("%s: param %d = %q, want %q", tt.operator, i, got[i], tt.want[i])
			}
		}
	}
}

func TestDomain_ParamNames_Fallback(t *testing.T) {
	var d *Domain
	names := d.ParamNames("unknown", 2)
	if len(names) != 2 || names[0] != "arg0" || names[1] != "arg1" {
		t.Errorf("unexpected fallback names: %v", names)
	}

	d = ParseDomain(testDomain)
	// Arity mismatch also falls back
	names = d.ParamNames("dock", 3)
	if names[2] != "arg2" {
		t.Errorf("expected positional names on arity mismatch, got %v", names)
	}
}

func TestPOPFParser_Parse(t *testing.T) {
	dir := t.TempDir()
	artifact := writeFile(t, dir, ArtifactFileName, testArtifact)

	actions, err := NewPOPFParser().Parse(artifact, ParseDomain(testDomain), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(actions) != 3 {
		t.Fatalf("expected 3 actions, got %d", len(actions))
	}

	first := actions[0]
	if first.ID != 7 || first.Name != "goto_waypoint" {
		t.Errorf("unexpected first action: %+v", first)
	}
	if first.DispatchTime != 0 || first.Duration != 10 {
		t.Errorf("unexpected timing: start=%v duration=%v", first.DispatchTime, first.Duration)
	}
	if v, ok := first.Param("to"); !ok || v != "wp1" {
		t.Errorf("expected to=wp1, got %q (%v)", v, ok)
	}

	last := actions[2]
	if last.ID != 9 || last.Name != "dock" || last.DispatchTime != 20.002 {
		t.Errorf("unexpected last action: %+v", last)
	}
	if v, _ := last.Param("wp"); v != "wp2" {
		t.Errorf("expected wp=wp2, got %q", v)
	}
}

func TestPOPFParser_LastPlanWins(t *testing.T) {
	dir := t.TempDir()
	content := `; Time 0.01
0.000: (dock kenny wp0)  [1.000]
; Plan found with metric 2.0
; Time 0.02
0.000: (goto_waypoint kenny wp0 wp1)  [1.000]
1.001: (dock kenny wp1)  [1.000]
`
	artifact := writeFile(t, dir, ArtifactFileName, content)

	actions, err := NewPOPFParser().Parse(artifact, nil, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(actions) != 2 {
		t.Fatalf("expected 2 actions from the last plan, got %d", len(actions))
	}
	if actions[0].Name != "goto_waypoint" || actions[0].ID != 0 || actions[1].ID != 1 {
		t.Errorf("unexpected actions: %+v", actions)
	}
	if actions[0].Parameters[0].Key != "arg0" {
		t.Errorf("expected positional keys without a domain, got %q", actions[0].Parameters[0].Key)
	}
}

func TestPOPFParser_EmptyPlan(t *testing.T) {
	dir := t.TempDir()
	artifact := writeFile(t, dir, ArtifactFileName, "; Time 0.00\n")

	actions, err := NewPOPFParser().Parse(artifact, nil, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(actions) != 0 {
		t.Errorf("expected no actions, got %d", len(actions))
	}
}

func TestPOPFParser_MissingFile(t *testing.T) {
	_, err := NewPOPFParser().Parse(filepath.Join(t.TempDir(), "missing"), nil, 0)
	if err == nil {
		t.Fatal("expected error for missing artifact")
	}
}

func TestAttempt_CloneIsDeep(t *testing.T) {
	a := Attempt{
		Number: 1,
		Solved: true,
		Actions: []Action{
			{ID: 0, Name: "dock", Parameters: []KeyValue{{Key: "v", Value: "kenny"}}},
		},
	}
	c := a.Clone()
	c.Actions[0].Name = "changed"
	c.Actions[0].Parameters[0].Value = "other"

	if a.Actions[0].Name != "dock" || a.Actions[0].Parameters[0].Value != "kenny" {
		t.Errorf("clone shares memory with original: %+v", a.Actions[0])
	}
	if a.LastActionID() != 0 {
		t.Errorf("expected last action id 0, got %d", a.LastActionID())
	}
	if (Attempt{}).LastActionID() != -1 {
		t.Error("expected -1 for empty attempt")
	}
}

func TestArchiveArtifact(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ArtifactFileName, testArtifact)

	path, err := ArchiveArtifact(dir, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != filepath.Join(dir, "plan_3") {
		t.Errorf("unexpected archive path: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read archive: %v", err)
	}
	if string(data) != testArtifact {
		t.Errorf("archive content mismatch")
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if filepath.Ext(e.Name()) != "" && e.Name() != ArtifactFileName {
			t.Errorf("unexpected leftover file: %s", e.Name())
		}
	}
}

func TestArchiveArtifact_MissingArtifact(t *testing.T) {
	if _, err := ArchiveArtifact(t.TempDir(), 1); err == nil {
		t.Fatal("expected error when artifact is missing")
	}
}
