// Package mission runs the generate, solve and dispatch cycle.
//
// One mission runs at a time. It repeats planning attempts until a plan is
// dispatched to completion, the mission is cancelled or the optional attempt
// bound is reached. An unsolvable problem and a failed dispatch both lead to
// a fresh attempt; a failed problem refresh is logged and the existing problem
// file is used.
package mission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pablasso/missionctl/internal/control"
	"github.com/pablasso/missionctl/internal/dispatch"
	"github.com/pablasso/missionctl/internal/history"
	"github.com/pablasso/missionctl/internal/knowledge"
	"github.com/pablasso/missionctl/internal/observability"
	"github.com/pablasso/missionctl/internal/plan"
	"github.com/pablasso/missionctl/internal/planner"
)

// ProblemGenerator refreshes the problem file from the current knowledge.
type ProblemGenerator interface {
	Generate(ctx context.Context, problemPath string) error
}

// PlanArchive receives every solved attempt before it is dispatched.
type PlanArchive interface {
	PublishPlan(ctx context.Context, attempt plan.Attempt) error
}

// Outcome describes how a mission ended.
type Outcome string

const (
	OutcomeSolved    Outcome = "solved"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeExhausted Outcome = "exhausted"
)

// Report summarizes a finished mission.
type Report struct {
	MissionID string        `json:"missionId"`
	Outcome   Outcome       `json:"outcome"`
	Attempts  int           `json:"attempts"`
	Duration  time.Duration `json:"duration"`
}

// Solved reports whether the mission's plan was dispatched to completion.
func (r Report) Solved() bool {
	return r.Outcome == OutcomeSolved
}

// Config holds the mission policy.
type Config struct {
	Defaults Params
	// MaxAttempts bounds planning attempts per mission; 0 means unbounded.
	MaxAttempts int
	// RetryDelay is waited after an unsolvable attempt. A signal change cuts
	// the wait short.
	RetryDelay time.Duration
	// Journal mirrors the plan history to <dataDir>/history.jsonl.
	Journal bool
}

// Deps are the collaborators of a Controller. Machine, History, Invoker and
// Orchestrator are required.
type Deps struct {
	Machine      *control.Machine
	History      *history.Store
	Invoker      *planner.Invoker
	Orchestrator *dispatch.Orchestrator
	Filter       *knowledge.Publisher
	Problems     ProblemGenerator
	Archive      PlanArchive
	EventSinks   []history.Sink
}

// Controller runs missions and serves commands from concurrent callers.
type Controller struct {
	deps    Deps
	cfg     Config
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *observability.Metrics

	// startMu serializes start checks against each other.
	startMu sync.Mutex
	wg      sync.WaitGroup
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithTracer sets the tracer.
func WithTracer(t trace.Tracer) Option {
	return func(c *Controller) { c.tracer = t }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// New creates a Controller.
func New(deps Deps, cfg Config, opts ...Option) (*Controller, error) {
	switch {
	case deps.Machine == nil:
		return nil, errors.New("mission: machine is required")
	case deps.History == nil:
		return nil, errors.New("mission: history is required")
	case deps.Invoker == nil:
		return nil, errors.New("mission: invoker is required")
	case deps.Orchestrator == nil:
		return nil, errors.New("mission: orchestrator is required")
	}
	if cfg.MaxAttempts < 0 {
		return nil, fmt.Errorf("mission: negative max attempts %d", cfg.MaxAttempts)
	}
	c := &Controller{
		deps:   deps,
		cfg:    cfg,
		logger: slog.Default(),
		tracer: observability.Tracer(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Machine returns the state machine.
func (c *Controller) Machine() *control.Machine {
	return c.deps.Machine
}

// History returns the plan history of the current or last mission.
func (c *Controller) History() *history.Store {
	return c.deps.History
}

// Defaults returns the default mission parameters.
func (c *Controller) Defaults() Params {
	return c.cfg.Defaults
}

// Run runs one mission and reports whether it was solved. A cancelled or
// exhausted mission returns false with a nil error.
func (c *Controller) Run(ctx context.Context, params Params) (bool, error) {
	report, err := c.Start(ctx, params, nil)
	return report.Solved(), err
}

// Start runs one mission to completion. hint, if set, is the id given to the
// first action of the first parsed plan. Start fails with control.ErrBusy when
// a mission is already active, with planner.ErrInvalidTemplate for a bad
// planner command and with plan.ErrLocked when another process holds the data
// directory. None of these change or publish the state.
func (c *Controller) Start(ctx context.Context, params Params, hint *int) (Report, error) {
	params = params.WithDefaults(c.cfg.Defaults).Clean()

	lock, tmpl, err := c.begin(params, hint)
	if err != nil {
		return Report{}, err
	}
	defer c.deps.Machine.Finish()
	// released before Finish: once Ready, the next start takes the lock anew
	defer func() {
		if err := lock.Release(); err != nil {
			c.logger.Warn("failed to release data directory lock", "error", err)
		}
	}()

	return c.run(ctx, params, tmpl), nil
}

// begin runs the start checks and leaves the machine in Planning with the data
// directory locked. Only Begin moves the machine out of Ready, so while startMu
// is held a Ready machine stays Ready until Begin.
func (c *Controller) begin(params Params, hint *int) (*plan.Lock, planner.Template, error) {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	m := c.deps.Machine
	if s := m.State(); s != control.Ready {
		if hint != nil {
			m.StashTarget(*hint)
		}
		return nil, planner.Template{}, fmt.Errorf("%w (state %s)", control.ErrBusy, s)
	}

	tmpl, err := planner.ParseTemplate(params.PlannerCommand)
	if err != nil {
		return nil, planner.Template{}, err
	}

	lock := plan.NewLock(params.DataPath)
	if err := lock.Acquire(); err != nil {
		return nil, planner.Template{}, err
	}
	if err := m.Begin(hint); err != nil {
		_ = lock.Release()
		return nil, planner.Template{}, err
	}
	return lock, tmpl, nil
}

// run is the mission loop. The machine is in Planning and the data directory
// is locked.
func (c *Controller) run(ctx context.Context, params Params, tmpl planner.Template) Report {
	m := c.deps.Machine
	missionID := uuid.NewString()
	missionStart := time.Now()

	ctx, span := c.tracer.Start(ctx, "mission.Run", trace.WithAttributes(
		attribute.String("mission.id", missionID),
		attribute.String("domain", params.DomainPath),
		attribute.String("problem", params.ProblemPath),
	))
	defer span.End()

	// process shutdown cancels the mission like a cancel command would
	stop := context.AfterFunc(ctx, func() { _ = m.Cancel() })
	defer stop()

	logger := observability.WithTrace(ctx, c.logger).With("mission_id", missionID)

	journal := ""
	if c.cfg.Journal {
		journal = history.JournalPath(params.DataPath)
	}
	c.deps.History.Reset(missionID, journal)
	if c.deps.Filter != nil {
		c.deps.Filter.Forget()
	}

	events := history.NewEventLog(params.DataPath, c.deps.EventSinks...)
	c.logEvent(logger, events.MissionStarted(missionID, params.DomainPath, params.ProblemPath))
	logger.Info("mission started",
		"domain", params.DomainPath,
		"problem", params.ProblemPath,
		"data", params.DataPath,
		"max_attempts", c.cfg.MaxAttempts,
	)

	outcome := c.loop(ctx, logger, events, missionID, missionStart, params, tmpl)

	attempts := c.deps.History.Len()
	duration := time.Since(missionStart)
	switch outcome {
	case OutcomeSolved:
		c.logEvent(logger, events.MissionCompleted(missionID, attempts, duration))
	case OutcomeCancelled:
		c.logEvent(logger, events.MissionCancelled(missionID, attempts))
	case OutcomeExhausted:
		c.logEvent(logger, events.MissionExhausted(missionID, attempts))
		span.SetStatus(codes.Error, "attempt bound reached")
	}
	span.SetAttributes(
		attribute.String("outcome", string(outcome)),
		attribute.Int("attempts", attempts),
	)
	c.metrics.MissionFinished(string(outcome))
	logger.Info("mission finished",
		"outcome", outcome,
		"attempts", attempts,
		"duration", duration.Round(time.Millisecond),
	)

	return Report{
		MissionID: missionID,
		Outcome:   outcome,
		Attempts:  attempts,
		Duration:  duration,
	}
}

func (c *Controller) loop(
	ctx context.Context,
	logger *slog.Logger,
	events *history.EventLog,
	missionID string,
	missionStart time.Time,
	params Params,
	tmpl planner.Template,
) Outcome {
	m := c.deps.Machine
	for {
		if c.cfg.MaxAttempts > 0 && c.deps.History.Len() >= c.cfg.MaxAttempts {
			logger.Warn("attempt bound reached", "attempts", c.deps.History.Len())
			return OutcomeExhausted
		}
		// checkpoint: a cancelled mission never re-enters Planning
		if ctx.Err() != nil || !m.EnterPlanning(ctx) {
			return OutcomeCancelled
		}

		if c.deps.Problems != nil {
			if err := c.deps.Problems.Generate(ctx, params.ProblemPath); err != nil {
				logger.Warn("problem generation failed, planning with existing problem", "error", err)
			}
		}

		attempt, err := c.deps.Invoker.Invoke(ctx, planner.Request{
			MissionID:     missionID,
			DomainPath:    params.DomainPath,
			ProblemPath:   params.ProblemPath,
			DataPath:      params.DataPath,
			Template:      tmpl,
			FirstActionID: c.firstActionID(),
		})
		if err != nil {
			c.logEvent(logger, events.AttemptFailed(missionID, attempt.Number, err.Error()))
			if errors.Is(err, planner.ErrUnsolvable) {
				logger.Info("attempt unsolvable, replanning", "attempt", attempt.Number)
			} else {
				logger.Error("planner invocation failed, replanning", "attempt", attempt.Number, "error", err)
			}
			c.waitRetry(ctx)
			continue
		}
		c.logEvent(logger, events.AttemptSolved(missionID, attempt.Number, len(attempt.Actions)))

		// checkpoint: cancel during the solver run takes effect here
		if m.Cancelled() {
			return OutcomeCancelled
		}

		if c.deps.Archive != nil {
			if err := c.deps.Archive.PublishPlan(ctx, attempt); err != nil {
				logger.Warn("failed to publish plan", "attempt", attempt.Number, "error", err)
			}
		}
		if c.deps.Filter != nil {
			if err := c.deps.Filter.Publish(ctx, attempt); err != nil {
				logger.Warn("failed to publish knowledge filter", "attempt", attempt.Number, "error", err)
			}
		}

		if !m.EnterDispatching() {
			return OutcomeCancelled
		}
		dispatchStart := time.Now()
		c.logEvent(logger, events.DispatchStarted(missionID, attempt.Number))

		if c.deps.Orchestrator.Dispatch(ctx, attempt, missionStart, dispatchStart) {
			return OutcomeSolved
		}
		if m.Cancelled() || ctx.Err() != nil {
			return OutcomeCancelled
		}
		c.logEvent(logger, events.DispatchFailed(missionID, attempt.Number))
		logger.Info("dispatch did not complete, replanning", "attempt", attempt.Number)
	}
}

// firstActionID is the stashed target if any, else the dispatcher's next id.
func (c *Controller) firstActionID() int {
	if id, ok := c.deps.Machine.ConsumeTarget(); ok {
		return id
	}
	return c.deps.Orchestrator.CurrentAction()
}

// waitRetry waits RetryDelay, returning early on any signal change.
func (c *Controller) waitRetry(ctx context.Context) {
	if c.cfg.RetryDelay <= 0 {
		return
	}
	timer := time.NewTimer(c.cfg.RetryDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-c.deps.Machine.Changed():
	case <-ctx.Done():
	}
}

func (c *Controller) logEvent(logger *slog.Logger, err error) {
	if err != nil {
		logger.Warn("failed to record mission event", "error", err)
	}
}

// Wait blocks until missions started by HandleCommand have returned.
func (c *Controller) Wait() {
	c.wg.Wait()
}
