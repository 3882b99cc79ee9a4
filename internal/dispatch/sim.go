package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pablasso/missionctl/internal/plan"
)

// SimEngine pretends to execute actions by sleeping for their duration
// scaled by TimeScale. It stands in for a real executive in demos and tests.
type SimEngine struct {
	// TimeScale multiplies action durations; 0 completes actions instantly.
	TimeScale float64
	// FailOn, if set, decides which actions fail.
	FailOn func(plan.Action) bool

	mu         sync.Mutex
	dispatched []plan.Action
	resets     int
}

// NewSimEngine creates a simulated engine.
func NewSimEngine(timeScale float64) *SimEngine {
	return &SimEngine{TimeScale: timeScale}
}

// Reset implements Engine.
func (e *SimEngine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resets++
}

// Dispatch implements Engine.
func (e *SimEngine) Dispatch(ctx context.Context, action plan.Action) error {
	e.mu.Lock()
	e.dispatched = append(e.dispatched, action)
	e.mu.Unlock()

	if d := seconds(action.Duration * e.TimeScale); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if e.FailOn != nil && e.FailOn(action) {
		return fmt.Errorf("%w: %s (id %d)", ErrActionFailed, action.Name, action.ID)
	}
	return nil
}

// Dispatched returns the actions handed to the engine so far.
func (e *SimEngine) Dispatched() []plan.Action {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]plan.Action(nil), e.dispatched...)
}

// Resets returns how many times Reset was called.
func (e *SimEngine) Resets() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resets
}
