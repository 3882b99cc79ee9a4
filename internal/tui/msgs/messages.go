// Package msgs defines the messages the watch UI receives from the bus.
package msgs

import (
	"github.com/pablasso/missionctl/internal/bus"
	"github.com/pablasso/missionctl/internal/control"
	"github.com/pablasso/missionctl/internal/history"
	"github.com/pablasso/missionctl/internal/plan"
)

// StateMsg carries a published planning state.
type StateMsg struct {
	State control.State
}

// EventMsg carries a mission lifecycle event.
type EventMsg struct {
	Event history.Event
}

// ActionDispatchedMsg is sent when an action is handed to the executor.
type ActionDispatchedMsg struct {
	Action plan.Action
}

// FeedbackMsg carries executor feedback for an action.
type FeedbackMsg struct {
	Feedback bus.Feedback
}

// CommandSentMsg reports the outcome of a command typed in the UI.
type CommandSentMsg struct {
	Command string
	Err     error
}

// ErrMsg reports a bus failure.
type ErrMsg struct {
	Err error
}
