package plan

import "time"

// KeyValue is a single named action parameter.
type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Action is a dispatch-ready step of a solved plan.
type Action struct {
	ID           int        `json:"id"`
	Name         string     `json:"name"`
	Parameters   []KeyValue `json:"parameters"`
	DispatchTime float64    `json:"dispatchTime"` // seconds after dispatch start
	Duration     float64    `json:"duration"`
}

// Param returns the value of the named parameter.
func (a Action) Param(key string) (string, bool) {
	for _, kv := range a.Parameters {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

// Attempt is the outcome of one planning cycle.
type Attempt struct {
	MissionID    string    `json:"missionId"`
	Number       int       `json:"number"`
	Solved       bool      `json:"solved"`
	Actions      []Action  `json:"actions"`
	ArtifactPath string    `json:"artifactPath,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Clone returns a deep copy of the attempt.
func (a Attempt) Clone() Attempt {
	out := a
	if a.Actions != nil {
		out.Actions = make([]Action, len(a.Actions))
		for i, act := range a.Actions {
			out.Actions[i] = act
			if act.Parameters != nil {
				out.Actions[i].Parameters = append([]KeyValue(nil), act.Parameters...)
			}
		}
	}
	return out
}

// LastActionID returns the highest action ID in the attempt, or -1 when the
// attempt has no actions.
func (a Attempt) LastActionID() int {
	last := -1
	for _, act := range a.Actions {
		if act.ID > last {
			last = act.ID
		}
	}
	return last
}
