package mission

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pablasso/missionctl/internal/control"
	"github.com/pablasso/missionctl/internal/dispatch"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		input    string
		wantName string
		wantHint int // -1 for none
		wantErr  bool
	}{
		{"plan", "plan", -1, false},
		{"plan 12", "plan", 12, false},
		{"  PLAN  3 ", "plan", 3, false},
		{"pause", "pause", -1, false},
		{"resume", "resume", -1, false},
		{"cancel", "cancel", -1, false},
		{"replan", "replan", -1, false},
		{"plan x", "", -1, true},
		{"plan -1", "", -1, true},
		{"plan 1 2", "", -1, true},
		{"pause now", "", -1, true},
		{"launch", "", -1, true},
		{"", "", -1, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			cmd, err := ParseCommand(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownCommand) {
					t.Errorf("error = %v, want ErrUnknownCommand", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cmd.Name != tt.wantName {
				t.Errorf("name = %q, want %q", cmd.Name, tt.wantName)
			}
			switch {
			case tt.wantHint < 0 && cmd.Hint != nil:
				t.Errorf("hint = %d, want none", *cmd.Hint)
			case tt.wantHint >= 0 && (cmd.Hint == nil || *cmd.Hint != tt.wantHint):
				t.Errorf("hint = %v, want %d", cmd.Hint, tt.wantHint)
			}
		})
	}
}

func TestHandleCommand_PlanRunsInBackground(t *testing.T) {
	h := newHarness(t, dispatch.NewSimEngine(0), Config{}, solvedPlan("kenny"))

	if err := h.ctrl.HandleCommand(context.Background(), "plan 5"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h.ctrl.Wait()

	latest, ok := h.ctrl.History().Latest()
	if !ok || !latest.Solved {
		t.Fatalf("expected a solved attempt, got %+v", latest)
	}
	if latest.Actions[0].ID != 5 {
		t.Errorf("first action id = %d, want 5", latest.Actions[0].ID)
	}
	if h.machine.State() != control.Ready {
		t.Errorf("state = %v, want Ready", h.machine.State())
	}
}

func TestHandleCommand_PauseToggles(t *testing.T) {
	engine := dispatch.NewSimEngine(3600)
	h := newHarness(t, engine, Config{}, solvedPlan("kenny"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := h.ctrl.HandleCommand(ctx, "plan"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitFor(t, func() bool { return h.machine.State() == control.Dispatching })

	if err := h.ctrl.HandleCommand(ctx, "plan 9"); !errors.Is(err, control.ErrBusy) {
		t.Errorf("plan while busy error = %v, want ErrBusy", err)
	}

	if err := h.ctrl.HandleCommand(ctx, "pause"); err != nil {
		t.Fatalf("pause failed: %v", err)
	}
	if h.machine.State() != control.Paused {
		t.Fatalf("state = %v, want Paused", h.machine.State())
	}
	if err := h.ctrl.HandleCommand(ctx, "pause"); err != nil {
		t.Fatalf("second pause (toggle) failed: %v", err)
	}
	if h.machine.State() != control.Dispatching {
		t.Fatalf("state = %v, want Dispatching", h.machine.State())
	}

	if err := h.ctrl.HandleCommand(ctx, "resume"); !errors.Is(err, control.ErrInvalidTransition) {
		t.Errorf("resume while dispatching error = %v, want ErrInvalidTransition", err)
	}

	if err := h.ctrl.HandleCommand(ctx, "cancel"); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	cancel()

	done := make(chan struct{})
	go func() {
		h.ctrl.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("mission goroutine did not return")
	}
	if h.machine.State() != control.Ready {
		t.Errorf("state = %v, want Ready", h.machine.State())
	}
}

func TestHandleCommand_ReplanAndUnknown(t *testing.T) {
	h := newHarness(t, dispatch.NewSimEngine(0), Config{}, solvedPlan("kenny"))

	if err := h.ctrl.HandleCommand(context.Background(), "replan"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !h.machine.Snapshot().Signals.ReplanRequested {
		t.Error("replan flag not set")
	}
	if err := h.ctrl.HandleCommand(context.Background(), "explode"); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("error = %v, want ErrUnknownCommand", err)
	}
	if err := h.ctrl.HandleCommand(context.Background(), "cancel"); !errors.Is(err, control.ErrInvalidTransition) {
		t.Errorf("cancel while Ready error = %v, want ErrInvalidTransition", err)
	}
}

func TestParams_WithDefaults(t *testing.T) {
	d := Params{DomainPath: "d", ProblemPath: "p", DataPath: "data", PlannerCommand: "x DOMAIN PROBLEM"}
	got := Params{ProblemPath: "other.pddl"}.WithDefaults(d)
	if got.ProblemPath != "other.pddl" || got.DomainPath != "d" || got.DataPath != "data" || got.PlannerCommand != d.PlannerCommand {
		t.Errorf("unexpected params: %+v", got)
	}
}
