package tui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/pablasso/missionctl/internal/bus"
	"github.com/pablasso/missionctl/internal/control"
	"github.com/pablasso/missionctl/internal/history"
	"github.com/pablasso/missionctl/internal/plan"
	"github.com/pablasso/missionctl/internal/tui/msgs"
)

type fakeCommander struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeCommander) SendCommand(ctx context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return f.err
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func event(name string, data map[string]any) msgs.EventMsg {
	return msgs.EventMsg{Event: history.Event{Timestamp: time.Now(), Event: name, Data: data}}
}

func keyMsg(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestModel_MissionProgress(t *testing.T) {
	m := NewModel(nil)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})
	m, _ = update(t, m, msgs.StateMsg{State: control.Planning})
	m, _ = update(t, m, event(history.EventMissionStarted, map[string]any{"mission_id": "0123456789abcdef"}))
	m, _ = update(t, m, event(history.EventAttemptFailed, map[string]any{"attempt": float64(1)}))
	m, _ = update(t, m, event(history.EventAttemptSolved, map[string]any{"attempt": float64(2), "actions": float64(4)}))
	m, _ = update(t, m, msgs.StateMsg{State: control.Dispatching})
	m, _ = update(t, m, msgs.ActionDispatchedMsg{Action: plan.Action{
		ID:         7,
		Name:       "goto_waypoint",
		Parameters: []plan.KeyValue{{Key: "v", Value: "kenny"}, {Key: "to", Value: "wp1"}},
	}})
	m, _ = update(t, m, msgs.FeedbackMsg{Feedback: bus.Feedback{ActionID: 7, Status: bus.StatusAchieved}})

	if m.attempt != 2 || m.actionsTotal != 4 || m.actionsDone != 1 {
		t.Fatalf("unexpected progress: attempt=%d total=%d done=%d", m.attempt, m.actionsTotal, m.actionsDone)
	}

	view := m.View()
	for _, want := range []string{"Dispatching", "01234567", "1/4", "#7 goto_waypoint kenny wp1", "attempt 1 unsolvable"} {
		if !strings.Contains(view, want) {
			t.Errorf("expected view to contain %q\n%s", want, view)
		}
	}
}

func TestModel_MissionOutcome(t *testing.T) {
	m := NewModel(nil)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})
	m, _ = update(t, m, event(history.EventMissionStarted, map[string]any{"mission_id": "m1"}))
	m, _ = update(t, m, event(history.EventMissionCancelled, map[string]any{"attempts": float64(3)}))
	m, _ = update(t, m, msgs.StateMsg{State: control.Ready})

	if m.outcome != "cancelled" {
		t.Fatalf("outcome = %q, want cancelled", m.outcome)
	}
	if !strings.Contains(m.View(), "cancelled") {
		t.Errorf("expected the outcome in the view")
	}

	m, _ = update(t, m, event(history.EventMissionStarted, map[string]any{"mission_id": "m2"}))
	if m.outcome != "" || m.missionID != "m2" {
		t.Errorf("expected a new mission to reset the outcome, got %q %q", m.outcome, m.missionID)
	}
}

func TestModel_KeysSendCommands(t *testing.T) {
	cmdr := &fakeCommander{}
	m := NewModel(cmdr)

	for key, want := range keyCommands {
		_, cmd := update(t, m, keyMsg(key))
		if cmd == nil {
			t.Fatalf("key %q produced no command", key)
		}
		msg, ok := cmd().(msgs.CommandSentMsg)
		if !ok || msg.Command != want || msg.Err != nil {
			t.Errorf("key %q: got %#v, want command %q", key, msg, want)
		}
	}
	if len(cmdr.sent) != len(keyCommands) {
		t.Errorf("expected %d commands sent, got %v", len(keyCommands), cmdr.sent)
	}
}

func TestModel_CommandFailureNotice(t *testing.T) {
	m := NewModel(&fakeCommander{err: errors.New("connection refused")})
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})

	_, cmd := update(t, m, keyMsg("p"))
	m, _ = update(t, m, cmd())

	if !m.noticeErr || !strings.Contains(m.View(), "connection refused") {
		t.Errorf("expected an error notice, got %q", m.notice)
	}
}

func TestModel_ReadOnly(t *testing.T) {
	m := NewModel(nil)
	if _, cmd := update(t, m, keyMsg("c")); cmd != nil {
		t.Error("expected no command without a commander")
	}
}

func TestModel_Quit(t *testing.T) {
	m := NewModel(nil)
	_, cmd := update(t, m, keyMsg("q"))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}
