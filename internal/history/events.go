package history

import (
	"path/filepath"
	"sync"
	"time"
)

const eventLogFileName = "progress.log"

// Event type constants for the mission event log.
const (
	EventMissionStarted   = "mission_started"
	EventMissionCompleted = "mission_completed"
	EventMissionCancelled = "mission_cancelled"
	EventMissionExhausted = "mission_exhausted"
	EventAttemptSolved    = "attempt_solved"
	EventAttemptFailed    = "attempt_unsolvable"
	EventDispatchStarted  = "dispatch_started"
	EventDispatchFailed   = "dispatch_failed"
)

// Event is a single event log entry.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Event     string         `json:"event"`
	Data      map[string]any `json:"data,omitempty"`
}

// Sink receives every logged event in addition to the log file.
type Sink interface {
	Emit(e Event) error
}

// EventLog writes mission events to a JSON Lines file in the data directory
// and forwards them to any sinks.
type EventLog struct {
	mu    sync.Mutex
	path  string
	sinks []Sink
}

// NewEventLog creates an event log for the given data directory.
func NewEventLog(dataDir string, sinks ...Sink) *EventLog {
	return &EventLog{
		path:  filepath.Join(dataDir, eventLogFileName),
		sinks: sinks,
	}
}

// Path returns the log file location.
func (l *EventLog) Path() string {
	return l.path
}

// Log appends an event to the log file, then forwards it to the sinks.
// The first error encountered is returned; sinks are tried regardless.
func (l *EventLog) Log(event string, data map[string]any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := Event{
		Timestamp: time.Now(),
		Event:     event,
		Data:      data,
	}
	err := appendJSONLine(l.path, e)
	for _, s := range l.sinks {
		if sinkErr := s.Emit(e); sinkErr != nil && err == nil {
			err = sinkErr
		}
	}
	return err
}

// MissionStarted logs a mission_started event.
func (l *EventLog) MissionStarted(missionID, domainPath, problemPath string) error {
	return l.Log(EventMissionStarted, map[string]any{
		"mission_id":   missionID,
		"domain_path":  domainPath,
		"problem_path": problemPath,
	})
}

// AttemptSolved logs an attempt_solved event.
func (l *EventLog) AttemptSolved(missionID string, attempt, actions int) error {
	return l.Log(EventAttemptSolved, map[string]any{
		"mission_id": missionID,
		"attempt":    attempt,
		"actions":    actions,
	})
}

// AttemptFailed logs an attempt_unsolvable event.
func (l *EventLog) AttemptFailed(missionID string, attempt int, reason string) error {
	return l.Log(EventAttemptFailed, map[string]any{
		"mission_id": missionID,
		"attempt":    attempt,
		"reason":     reason,
	})
}

// DispatchStarted logs a dispatch_started event.
func (l *EventLog) DispatchStarted(missionID string, attempt int) error {
	return l.Log(EventDispatchStarted, map[string]any{
		"mission_id": missionID,
		"attempt":    attempt,
	})
}

// DispatchFailed logs a dispatch_failed event; the mission will replan.
func (l *EventLog) DispatchFailed(missionID string, attempt int) error {
	return l.Log(EventDispatchFailed, map[string]any{
		"mission_id": missionID,
		"attempt":    attempt,
	})
}

// MissionCompleted logs a mission_completed event with summary statistics.
func (l *EventLog) MissionCompleted(missionID string, attempts int, duration time.Duration) error {
	return l.Log(EventMissionCompleted, map[string]any{
		"mission_id":  missionID,
		"attempts":    attempts,
		"duration_ms": duration.Milliseconds(),
	})
}

// MissionCancelled logs a mission_cancelled event.
func (l *EventLog) MissionCancelled(missionID string, attempts int) error {
	return l.Log(EventMissionCancelled, map[string]any{
		"mission_id": missionID,
		"attempts":   attempts,
	})
}

// MissionExhausted logs a mission_exhausted event (attempt bound reached).
func (l *EventLog) MissionExhausted(missionID string, attempts int) error {
	return l.Log(EventMissionExhausted, map[string]any{
		"mission_id": missionID,
		"attempts":   attempts,
	})
}
