// Package dispatch walks a solved plan through a dispatch Engine and decides
// when to stop.
//
// Signals are polled only between actions, never while one is executing: a
// pause holds position before the next action, a replan request or a failed
// action ends the pass so the mission can replan, and a cancel ends the pass
// for good. The time to react is bounded by the duration of the action in
// flight.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pablasso/missionctl/internal/observability"
	"github.com/pablasso/missionctl/internal/plan"
)

// ErrActionFailed is returned by engines when an action failed irrecoverably.
var ErrActionFailed = errors.New("action failed")

// Engine executes single actions.
type Engine interface {
	// Reset clears engine state before a new pass.
	Reset()
	// Dispatch blocks until the action completes or fails.
	Dispatch(ctx context.Context, action plan.Action) error
}

// Signals are the control flags the orchestrator polls between actions.
type Signals interface {
	Cancelled() bool
	ConsumeReplan() bool
	WaitUnpaused(ctx context.Context) error
	Changed() <-chan struct{}
}

// Result is the outcome of a dispatch pass.
type Result string

const (
	ResultSolved    Result = "solved"
	ResultFailed    Result = "failed"
	ResultReplan    Result = "replan"
	ResultCancelled Result = "cancelled"
)

// Orchestrator runs dispatch passes.
type Orchestrator struct {
	engine   Engine
	signals  Signals
	observer Observer
	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  *observability.Metrics
	schedule bool

	mu      sync.Mutex
	current int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithObserver sets the pass observer.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithTracer sets the tracer.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithSchedule makes the orchestrator wait for each action's dispatch time,
// measured from the dispatch start, before handing it to the engine.
func WithSchedule(enabled bool) Option {
	return func(o *Orchestrator) { o.schedule = enabled }
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(engine Engine, signals Signals, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		engine:   engine,
		signals:  signals,
		observer: NopObserver{},
		logger:   slog.Default(),
		tracer:   observability.Tracer(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// CurrentAction returns the next free action id: one past the last action
// handed to the engine.
func (o *Orchestrator) CurrentAction() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// Dispatch runs one pass and reports whether every action succeeded.
func (o *Orchestrator) Dispatch(ctx context.Context, attempt plan.Attempt, missionStart, dispatchStart time.Time) bool {
	return o.Pass(ctx, attempt, missionStart, dispatchStart) == ResultSolved
}

// Pass runs the attempt's actions in order and returns why it stopped.
func (o *Orchestrator) Pass(ctx context.Context, attempt plan.Attempt, missionStart, dispatchStart time.Time) Result {
	ctx, span := o.tracer.Start(ctx, "dispatch.Pass", trace.WithAttributes(
		attribute.String("mission.id", attempt.MissionID),
		attribute.Int("attempt", attempt.Number),
		attribute.Int("actions", len(attempt.Actions)),
	))
	defer span.End()

	logger := observability.WithTrace(ctx, o.logger).With(
		"mission_id", attempt.MissionID,
		"attempt", attempt.Number,
	)

	o.engine.Reset()
	// notifications raised while planning refer to the previous filter
	if o.signals.ConsumeReplan() {
		logger.Debug("discarding replan request raised during planning")
	}
	o.observer.OnPassStarted(attempt)
	logger.Info("dispatch started",
		"actions", len(attempt.Actions),
		"mission_elapsed", dispatchStart.Sub(missionStart).Round(time.Millisecond),
	)

	result := o.run(ctx, attempt, dispatchStart, logger)

	span.SetAttributes(attribute.String("result", string(result)))
	o.metrics.DispatchPassFinished(string(result))
	o.observer.OnPassFinished(attempt, result)
	logger.Info("dispatch finished", "result", result)
	return result
}

func (o *Orchestrator) run(ctx context.Context, attempt plan.Attempt, dispatchStart time.Time, logger *slog.Logger) Result {
	total := len(attempt.Actions)
	for i, action := range attempt.Actions {
		if r, stop := o.checkpoint(ctx); stop {
			return r
		}
		if o.schedule {
			if r, stop := o.waitUntil(ctx, dispatchStart.Add(seconds(action.DispatchTime))); stop {
				return r
			}
		}

		o.observer.OnActionDispatched(action, i, total)
		logger.Debug("dispatching action", "action_id", action.ID, "action", action.Name)

		err := o.engine.Dispatch(ctx, action)

		o.mu.Lock()
		o.current = action.ID + 1
		o.mu.Unlock()

		if err != nil {
			o.metrics.ActionFinished("failed")
			o.observer.OnActionFailed(action, err)
			if ctx.Err() != nil {
				return ResultCancelled
			}
			logger.Warn("action failed", "action_id", action.ID, "action", action.Name, "error", err)
			return ResultFailed
		}
		o.metrics.ActionFinished("achieved")
		o.observer.OnActionCompleted(action)

		// a pause that arrived mid-action holds before the next decision
		if err := o.signals.WaitUnpaused(ctx); err != nil {
			return ResultCancelled
		}
	}
	return ResultSolved
}

// checkpoint holds while paused, then reports whether the pass must stop.
func (o *Orchestrator) checkpoint(ctx context.Context) (Result, bool) {
	if err := o.signals.WaitUnpaused(ctx); err != nil {
		return ResultCancelled, true
	}
	if o.signals.Cancelled() {
		return ResultCancelled, true
	}
	if o.signals.ConsumeReplan() {
		return ResultReplan, true
	}
	return "", false
}

// waitUntil sleeps until the deadline, re-running the checkpoint whenever a
// signal changes.
func (o *Orchestrator) waitUntil(ctx context.Context, deadline time.Time) (Result, bool) {
	for {
		changed := o.signals.Changed()
		if r, stop := o.checkpoint(ctx); stop {
			return r, true
		}
		wait := time.Until(deadline)
		if wait <= 0 {
			return "", false
		}
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
			return "", false
		case <-changed:
			timer.Stop()
		case <-ctx.Done():
			timer.Stop()
			return ResultCancelled, true
		}
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
