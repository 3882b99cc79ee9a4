// Package history records planning attempts. Within one mission the record
// is append-only: entries are never modified after Append and readers get
// copies.
package history

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/pablasso/missionctl/internal/plan"
)

// JournalFileName is the JSON Lines file attempts are mirrored to.
const JournalFileName = "history.jsonl"

// ErrOutOfOrder is returned when an attempt number does not follow the last one.
var ErrOutOfOrder = errors.New("attempt number out of order")

// Store is the plan history of the current mission.
type Store struct {
	mu        sync.RWMutex
	missionID string
	attempts  []plan.Attempt
	journal   string
	logger    *slog.Logger
}

// NewStore creates an empty store.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{logger: logger}
}

// JournalPath returns <dataDir>/history.jsonl.
func JournalPath(dataDir string) string {
	return filepath.Join(dataDir, JournalFileName)
}

// Reset starts a new mission's history. journalPath may be empty to keep the
// history in memory only.
func (s *Store) Reset(missionID, journalPath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.missionID = missionID
	s.attempts = nil
	s.journal = journalPath
}

// MissionID returns the mission the history belongs to.
func (s *Store) MissionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.missionID
}

// Next returns the number the next attempt must carry.
func (s *Store) Next() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextLocked()
}

func (s *Store) nextLocked() int {
	if len(s.attempts) == 0 {
		return 1
	}
	return s.attempts[len(s.attempts)-1].Number + 1
}

// Append records an attempt. Its number must be exactly Next().
// Journal write failures are logged and do not fail the append.
func (s *Store) Append(a plan.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if want := s.nextLocked(); a.Number != want {
		return fmt.Errorf("%w: got %d, want %d", ErrOutOfOrder, a.Number, want)
	}
	if a.MissionID == "" {
		a.MissionID = s.missionID
	}
	a = a.Clone()
	s.attempts = append(s.attempts, a)

	if s.journal != "" {
		if err := appendJSONLine(s.journal, a); err != nil {
			s.logger.Warn("failed to journal attempt",
				"mission_id", a.MissionID,
				"attempt", a.Number,
				"error", err,
			)
		}
	}
	return nil
}

// Attempts returns a copy of all attempts in insertion order.
func (s *Store) Attempts() []plan.Attempt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]plan.Attempt, len(s.attempts))
	for i, a := range s.attempts {
		out[i] = a.Clone()
	}
	return out
}

// Len returns the number of attempts recorded.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.attempts)
}

// Latest returns the most recent attempt.
func (s *Store) Latest() (plan.Attempt, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.attempts) == 0 {
		return plan.Attempt{}, false
	}
	return s.attempts[len(s.attempts)-1].Clone(), true
}

// Load reads every attempt from a journal file, across missions.
func Load(path string) ([]plan.Attempt, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	defer f.Close()

	var attempts []plan.Attempt
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var a plan.Attempt
		if err := json.Unmarshal(scanner.Bytes(), &a); err != nil {
			return nil, fmt.Errorf("failed to parse history line %d: %w", line, err)
		}
		attempts = append(attempts, a)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	return attempts, nil
}

func appendJSONLine(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(data)
	return err
}
