package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pablasso/missionctl/internal/dispatch"
	"github.com/pablasso/missionctl/internal/plan"
)

// Feedback statuses reported by the executive.
const (
	StatusEnabled  = "action enabled"
	StatusAchieved = "action achieved"
	StatusFailed   = "action failed"
)

// Feedback is a message on the action feedback channel.
type Feedback struct {
	ActionID int    `json:"action_id"`
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
}

// Engine implements dispatch.Engine by publishing actions on the dispatch
// channel and waiting for a terminal status on the feedback channel.
type Engine struct {
	bus     *Bus
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	waiters map[int]chan Feedback
	sub     *Subscription
}

// NewEngine subscribes to action feedback and returns an engine. A positive
// actionTimeout fails actions that report no outcome in time.
func (b *Bus) NewEngine(ctx context.Context, actionTimeout time.Duration) (*Engine, error) {
	e := &Engine{
		bus:     b,
		timeout: actionTimeout,
		logger:  b.logger,
		waiters: make(map[int]chan Feedback),
	}
	sub, err := b.Subscribe(ctx, ChannelFeedback, e.route)
	if err != nil {
		return nil, err
	}
	e.sub = sub
	return e, nil
}

// Close stops listening for feedback.
func (e *Engine) Close() error {
	return e.sub.Close()
}

func (e *Engine) route(ctx context.Context, payload string) {
	var fb Feedback
	if err := json.Unmarshal([]byte(payload), &fb); err != nil {
		e.logger.Warn("malformed action feedback", "payload", payload, "error", err)
		return
	}
	if fb.Status == StatusEnabled {
		e.logger.Debug("action enabled", "action_id", fb.ActionID)
		return
	}

	e.mu.Lock()
	ch, ok := e.waiters[fb.ActionID]
	if ok {
		delete(e.waiters, fb.ActionID)
	}
	e.mu.Unlock()

	if !ok {
		e.logger.Debug("feedback for unknown action", "action_id", fb.ActionID, "status", fb.Status)
		return
	}
	ch <- fb
}

// Reset implements dispatch.Engine. Outcomes still pending from an earlier
// pass are dropped.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	clear(e.waiters)
}

// Dispatch implements dispatch.Engine.
func (e *Engine) Dispatch(ctx context.Context, action plan.Action) error {
	data, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("failed to marshal action: %w", err)
	}

	ch := make(chan Feedback, 1)
	e.mu.Lock()
	e.waiters[action.ID] = ch
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		if e.waiters[action.ID] == ch {
			delete(e.waiters, action.ID)
		}
		e.mu.Unlock()
	}()

	if err := e.bus.client.Publish(ctx, e.bus.Name(ChannelDispatch), data).Err(); err != nil {
		return fmt.Errorf("failed to dispatch action %d: %w", action.ID, err)
	}

	var timeout <-chan time.Time
	if e.timeout > 0 {
		timer := time.NewTimer(e.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case fb := <-ch:
		switch fb.Status {
		case StatusAchieved:
			return nil
		case StatusFailed:
			return fmt.Errorf("%w: %s (id %d) %s", dispatch.ErrActionFailed, action.Name, action.ID, fb.Message)
		default:
			return fmt.Errorf("%w: %s (id %d) unexpected status %q", dispatch.ErrActionFailed, action.Name, action.ID, fb.Status)
		}
	case <-timeout:
		return fmt.Errorf("%w: %s (id %d) timed out after %s", dispatch.ErrActionFailed, action.Name, action.ID, e.timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
