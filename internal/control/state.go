package control

import (
	"fmt"
	"strings"
)

// State is the mission state. Exactly one holds at any instant.
type State int

const (
	Ready State = iota
	Planning
	Dispatching
	Paused
)

var stateNames = [...]string{
	Ready:       "Ready",
	Planning:    "Planning",
	Dispatching: "Dispatching",
	Paused:      "Paused",
}

// String returns the published form of the state.
func (s State) String() string {
	if s < Ready || s > Paused {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// IsValid reports whether s is one of the four enumerated states.
func (s State) IsValid() bool {
	return s >= Ready && s <= Paused
}

// Active reports whether a mission is running in this state.
func (s State) Active() bool {
	return s != Ready && s.IsValid()
}

// ParseState converts a published state name back to a State.
// Matching is case-insensitive.
func ParseState(name string) (State, error) {
	for i, n := range stateNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return State(i), nil
		}
	}
	return Ready, fmt.Errorf("unknown state %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	if !s.IsValid() {
		return nil, fmt.Errorf("invalid state %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	parsed, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Signals is a snapshot of the control flags shared between the mission
// loop and command handlers.
type Signals struct {
	CancelRequested bool `json:"cancelRequested"`
	PauseRequested  bool `json:"pauseRequested"`
	ReplanRequested bool `json:"replanRequested"`
	// TargetActionID is the action id the next parsed plan starts from.
	TargetActionID *int `json:"targetActionId,omitempty"`
}

// Snapshot is the state and signals observed under one lock acquisition.
type Snapshot struct {
	State   State   `json:"state"`
	Signals Signals `json:"signals"`
}
