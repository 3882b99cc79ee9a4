package dispatch

import (
	"log/slog"

	"github.com/pablasso/missionctl/internal/plan"
)

// Observer receives callbacks during a dispatch pass.
// Implement this interface in the TUI or a transport to receive updates.
type Observer interface {
	// OnPassStarted is called before the first action of a pass
	OnPassStarted(attempt plan.Attempt)

	// OnActionDispatched is called when an action is handed to the engine
	OnActionDispatched(action plan.Action, index, total int)

	// OnActionCompleted is called when the engine reports success
	OnActionCompleted(action plan.Action)

	// OnActionFailed is called when the engine reports failure
	OnActionFailed(action plan.Action, err error)

	// OnPassFinished is called once per pass with its result
	OnPassFinished(attempt plan.Attempt, result Result)
}

// NopObserver ignores every callback.
type NopObserver struct{}

func (NopObserver) OnPassStarted(plan.Attempt)               {}
func (NopObserver) OnActionDispatched(plan.Action, int, int) {}
func (NopObserver) OnActionCompleted(plan.Action)            {}
func (NopObserver) OnActionFailed(plan.Action, error)        {}
func (NopObserver) OnPassFinished(plan.Attempt, Result)      {}

// Observers fans callbacks out to several observers in order.
type Observers []Observer

func (obs Observers) OnPassStarted(a plan.Attempt) {
	for _, o := range obs {
		o.OnPassStarted(a)
	}
}

func (obs Observers) OnActionDispatched(a plan.Action, index, total int) {
	for _, o := range obs {
		o.OnActionDispatched(a, index, total)
	}
}

func (obs Observers) OnActionCompleted(a plan.Action) {
	for _, o := range obs {
		o.OnActionCompleted(a)
	}
}

func (obs Observers) OnActionFailed(a plan.Action, err error) {
	for _, o := range obs {
		o.OnActionFailed(a, err)
	}
}

func (obs Observers) OnPassFinished(a plan.Attempt, r Result) {
	for _, o := range obs {
		o.OnPassFinished(a, r)
	}
}

// LogObserver writes pass progress to a logger at debug level, and action
// failures at warn.
type LogObserver struct {
	Logger *slog.Logger
}

func (l LogObserver) OnPassStarted(a plan.Attempt) {
	l.Logger.Debug("pass started", "mission_id", a.MissionID, "attempt", a.Number, "actions", len(a.Actions))
}

func (l LogObserver) OnActionDispatched(a plan.Action, index, total int) {
	l.Logger.Debug("action dispatched", "action_id", a.ID, "action", a.Name, "index", index+1, "total", total)
}

func (l LogObserver) OnActionCompleted(a plan.Action) {
	l.Logger.Debug("action completed", "action_id", a.ID, "action", a.Name)
}

func (l LogObserver) OnActionFailed(a plan.Action, err error) {
	l.Logger.Warn("action failed", "action_id", a.ID, "action", a.Name, "error", err)
}

func (l LogObserver) OnPassFinished(a plan.Attempt, r Result) {
	l.Logger.Debug("pass finished", "mission_id", a.MissionID, "attempt", a.Number, "result", string(r))
}
