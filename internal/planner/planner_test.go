package planner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/pablasso/missionctl/internal/history"
	"github.com/pablasso/missionctl/internal/plan"
	"github.com/pablasso/missionctl/internal/testutil"
)

const solvedOutput = `Number of literals: 7
; Plan found with metric 21.000
; States evaluated so far: 12
; Time 0.02
0.000: (undock kenny wp1)  [10.000]
10.001: (goto_waypoint kenny wp1 wp2)  [10.000]
20.002: (dock kenny wp2)  [1.000]
`

const unsolvedOutput = `Number of literals: 7
;; Problem unsolvable!
`

const testDomain = `(define (domain turtlebot)
  (:durative-action goto_waypoint
    :parameters (?v - robot ?from ?to - waypoint))
  (:durative-action dock
    :parameters (?v - robot ?wp - waypoint))
  (:durative-action undock
    :parameters (?v - robot ?wp - waypoint)))
`

// fixture lays out a data directory and a problem file whose content is what
// the "solver" prints: the template is "cat PROBLEM # DOMAIN".
type fixture struct {
	dir     string
	request Request
}

func newFixture(t *testing.T, solverOutput string) *fixture {
	t.Helper()
	dir := t.TempDir()
	domain := filepath.Join(dir, "domain.pddl")
	problem := filepath.Join(dir, "problem.pddl")
	if err := os.WriteFile(domain, []byte(testDomain), 0644); err != nil {
		t.Fatalf("failed to write domain: %v", err)
	}
	if err := os.WriteFile(problem, []byte(solverOutput), 0644); err != nil {
		t.Fatalf("failed to write problem: %v", err)
	}
	return &fixture{
		dir: dir,
		request: Request{
			MissionID:   "m1",
			DomainPath:  domain,
			ProblemPath: problem,
			DataPath:    filepath.Join(dir, "data"),
			Template:    MustParseTemplate("cat PROBLEM # DOMAIN"),
		},
	}
}

func newStore() *history.Store {
	s := history.NewStore(nil)
	s.Reset("m1", "")
	return s
}

func TestInvoke_Solved(t *testing.T) {
	f := newFixture(t, solvedOutput)
	store := newStore()
	inv := NewInvoker(store)

	f.request.FirstActionID = 5
	attempt, err := inv.Invoke(context.Background(), f.request)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !attempt.Solved {
		t.Fatal("expected solved attempt")
	}
	if attempt.Number != 1 {
		t.Errorf("number = %d, want 1", attempt.Number)
	}
	if len(attempt.Actions) != 3 {
		t.Fatalf("actions = %d, want 3", len(attempt.Actions))
	}
	if attempt.Actions[0].ID != 5 || attempt.Actions[2].ID != 7 {
		t.Errorf("unexpected ids: %d..%d", attempt.Actions[0].ID, attempt.Actions[2].ID)
	}
	if v, _ := attempt.Actions[1].Param("to"); v != "wp2" {
		t.Errorf("goto_waypoint to = %q, want wp2", v)
	}

	wantArchive := plan.ArchivePath(f.request.DataPath, 1)
	if attempt.ArtifactPath != wantArchive {
		t.Errorf("artifact = %s, want %s", attempt.ArtifactPath, wantArchive)
	}
	raw, err := os.ReadFile(plan.ArtifactPath(f.request.DataPath))
	if err != nil {
		t.Fatalf("raw artifact missing: %v", err)
	}
	archived, err := os.ReadFile(wantArchive)
	if err != nil {
		t.Fatalf("archive missing: %v", err)
	}
	if string(raw) != solvedOutput || string(archived) != solvedOutput {
		t.Error("artifact content does not match solver output")
	}
	if store.Len() != 1 {
		t.Errorf("history length = %d, want 1", store.Len())
	}
}

func TestInvoke_Unsolvable(t *testing.T) {
	f := newFixture(t, unsolvedOutput)
	store := newStore()
	inv := NewInvoker(store)

	attempt, err := inv.Invoke(context.Background(), f.request)
	if !errors.Is(err, ErrUnsolvable) {
		t.Fatalf("error = %v, want ErrUnsolvable", err)
	}
	if attempt.Solved || len(attempt.Actions) != 0 {
		t.Errorf("unexpected attempt: %+v", attempt)
	}
	if _, err := os.Stat(plan.ArchivePath(f.request.DataPath, 1)); !os.IsNotExist(err) {
		t.Error("unsolved attempts must not be archived")
	}

	latest, ok := store.Latest()
	if !ok || latest.Solved || latest.Number != 1 {
		t.Errorf("history not updated with unsolved attempt: %+v", latest)
	}
}

func TestInvoke_NonZeroExitStillSolved(t *testing.T) {
	f := newFixture(t, solvedOutput)
	f.request.Template = MustParseTemplate("cat PROBLEM; exit 3 # DOMAIN")
	inv := NewInvoker(newStore())

	attempt, err := inv.Invoke(context.Background(), f.request)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !attempt.Solved {
		t.Error("the success marker decides the outcome, not the exit status")
	}
}

func TestInvoke_AttemptNumbersIncrease(t *testing.T) {
	f := newFixture(t, unsolvedOutput)
	store := newStore()
	inv := NewInvoker(store)

	for i := 0; i < 2; i++ {
		if _, err := inv.Invoke(context.Background(), f.request); !errors.Is(err, ErrUnsolvable) {
			t.Fatalf("attempt %d: error = %v", i+1, err)
		}
	}
	if err := os.WriteFile(f.request.ProblemPath, []byte(solvedOutput), 0644); err != nil {
		t.Fatal(err)
	}
	attempt, err := inv.Invoke(context.Background(), f.request)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempt.Number != 3 {
		t.Errorf("number = %d, want 3", attempt.Number)
	}
	if _, err := os.Stat(plan.ArchivePath(f.request.DataPath, 3)); err != nil {
		t.Errorf("expected plan_3 archive: %v", err)
	}

	attempts := store.Attempts()
	for i, a := range attempts {
		if a.Number != i+1 {
			t.Errorf("attempt %d has number %d", i, a.Number)
		}
	}
}

func TestInvoke_CustomMarker(t *testing.T) {
	f := newFixture(t, "PLAN FOUND\n0.0: (dock kenny wp1) [1.0]\n")
	inv := NewInvoker(newStore(), WithMarker("PLAN FOUND"))
	if inv.Marker() != "PLAN FOUND" {
		t.Errorf("marker = %q", inv.Marker())
	}

	attempt, err := inv.Invoke(context.Background(), f.request)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(attempt.Actions) != 1 {
		t.Errorf("actions = %d, want 1", len(attempt.Actions))
	}
}

func TestInvoke_ZeroTemplate(t *testing.T) {
	f := newFixture(t, solvedOutput)
	f.request.Template = Template{}
	store := newStore()

	_, err := NewInvoker(store).Invoke(context.Background(), f.request)
	if !errors.Is(err, ErrInvalidTemplate) {
		t.Fatalf("error = %v, want ErrInvalidTemplate", err)
	}
	if store.Len() != 0 {
		t.Errorf("history length = %d, want 0", store.Len())
	}
}

func TestInvoke_MockedCommand(t *testing.T) {
	original := CommandContext
	defer func() { CommandContext = original }()
	CommandContext = testutil.MockCommandFunc("; Time 0.01\n0.000: (dock kenny wp1) [1.000]\n")

	f := newFixture(t, "")
	attempt, err := NewInvoker(newStore()).Invoke(context.Background(), f.request)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(attempt.Actions) != 1 || attempt.Actions[0].Name != "dock" {
		t.Errorf("unexpected actions: %+v", attempt.Actions)
	}
}

func TestInvoke_CommandNotStartable(t *testing.T) {
	original := CommandContext
	defer func() { CommandContext = original }()
	CommandContext = testutil.MissingCommandFunc()

	f := newFixture(t, solvedOutput)
	store := newStore()
	_, err := NewInvoker(store).Invoke(context.Background(), f.request)
	if err == nil || errors.Is(err, ErrUnsolvable) {
		t.Fatalf("error = %v, want a run failure", err)
	}
	if store.Len() != 1 {
		t.Errorf("failed runs are still recorded, history length = %d", store.Len())
	}
}

func TestContainsMarker(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    bool
	}{
		{"line start", "x\n; Time 0.02\n", true},
		{"indented", "x\n  ; Time 0.02\n", true},
		{"mid-line", "x\nstats ; Time 0.02\n", true},
		{"absent", "x\n;; Problem unsolvable!\n", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "out")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			found, err := ContainsMarker(path, "; Time")
			if err != nil {
				t.Fatal(err)
			}
			if found != tt.want {
				t.Errorf("found = %v, want %v", found, tt.want)
			}
		})
	}
}

func TestInvoke_IndentedMarkerIsSolved(t *testing.T) {
	f := newFixture(t, "Number of literals: 7\n   ; Time 0.02\n0.000: (dock kenny wp1)  [1.000]\n")
	attempt, err := NewInvoker(newStore()).Invoke(context.Background(), f.request)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !attempt.Solved || len(attempt.Actions) != 1 {
		t.Errorf("unexpected attempt: %+v", attempt)
	}
}

func TestInvoke_RunsRenderedTemplateThroughShell(t *testing.T) {
	original := CommandContext
	defer func() { CommandContext = original }()
	rec := testutil.NewCommandRecorder(nil)
	CommandContext = rec.Func()

	f := newFixture(t, solvedOutput)
	if _, err := NewInvoker(newStore()).Invoke(context.Background(), f.request); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	calls := rec.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	want := "cat " + f.request.ProblemPath + " # " + f.request.DomainPath
	if calls[0][0] != "sh" || calls[0][1] != "-c" || calls[0][2] != want {
		t.Errorf("command = %q, want sh -c %q", calls[0], want)
	}
}
