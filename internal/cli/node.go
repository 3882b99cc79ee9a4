package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/pablasso/missionctl/internal/bus"
	"github.com/pablasso/missionctl/internal/config"
	"github.com/pablasso/missionctl/internal/control"
	"github.com/pablasso/missionctl/internal/dispatch"
	"github.com/pablasso/missionctl/internal/history"
	"github.com/pablasso/missionctl/internal/knowledge"
	"github.com/pablasso/missionctl/internal/mission"
	"github.com/pablasso/missionctl/internal/observability"
	"github.com/pablasso/missionctl/internal/planner"
	"github.com/pablasso/missionctl/internal/problem"
	"github.com/pablasso/missionctl/internal/version"
)

// node is a fully wired mission controller plus the resources it owns.
type node struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	bus      *bus.Bus
	machine  *control.Machine
	ctrl     *mission.Controller

	closers []func() error
}

// newNode wires every component selected by cfg. Subscriptions it opens live
// until ctx is done or close is called.
func newNode(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*node, error) {
	n := &node{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}
	ok := false
	defer func() {
		if !ok {
			n.close()
		}
	}()

	n.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := observability.NewMetrics(n.registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	tracingCfg := cfg.Tracing
	tracingCfg.ServiceVersion = version.Version
	tp, err := observability.NewTracerProvider(ctx, tracingCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to set up tracing: %w", err)
	}
	n.closers = append(n.closers, func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return tp.Shutdown(shutdownCtx)
	})
	tracer := tp.Tracer()

	if cfg.NeedsRedis() {
		b, err := bus.New(bus.Options{URL: cfg.Redis.URL, Prefix: cfg.Redis.Prefix}, logger)
		if err != nil {
			return nil, err
		}
		n.bus = b
		n.closers = append(n.closers, b.Close)
	}

	n.machine = control.NewMachine(metrics)
	if n.bus != nil {
		n.machine.AddPublisher(n.bus)
	}

	store := history.NewStore(logger)
	invoker := planner.NewInvoker(store,
		planner.WithMarker(cfg.Planner.Marker),
		planner.WithLogger(logger),
		planner.WithTracer(tracer),
		planner.WithMetrics(metrics),
	)
	logger.Debug("planner configured", "command", cfg.Planner.Command, "marker", invoker.Marker())

	var engine dispatch.Engine
	switch cfg.Dispatch.Engine {
	case config.EngineBus:
		e, err := n.bus.NewEngine(ctx, cfg.Dispatch.ActionTimeout)
		if err != nil {
			return nil, err
		}
		n.closers = append(n.closers, e.Close)
		engine = e
	case config.EngineSim:
		engine = dispatch.NewSimEngine(cfg.Dispatch.SimTimeScale)
	default:
		return nil, fmt.Errorf("unknown dispatch engine %q", cfg.Dispatch.Engine)
	}
	orchestrator := dispatch.NewOrchestrator(engine, n.machine,
		dispatch.WithLogger(logger),
		dispatch.WithTracer(tracer),
		dispatch.WithMetrics(metrics),
		dispatch.WithSchedule(cfg.Dispatch.Schedule),
		dispatch.WithObserver(dispatch.LogObserver{Logger: logger}),
	)

	deps := mission.Deps{
		Machine:      n.machine,
		History:      store,
		Invoker:      invoker,
		Orchestrator: orchestrator,
	}
	switch cfg.Problem.Mode {
	case config.ProblemModeBus:
		deps.Problems = n.bus.ProblemClient(cfg.Problem.Timeout)
	case config.ProblemModeCommand:
		g, err := problem.NewCommandGenerator(cfg.Problem.Command, cfg.Problem.Timeout)
		if err != nil {
			return nil, err
		}
		deps.Problems = g
	default:
		deps.Problems = problem.Noop{}
	}
	if n.bus != nil {
		deps.Filter = knowledge.NewPublisher(n.bus.KnowledgeBase(), logger)
		deps.Archive = n.bus
		deps.EventSinks = []history.Sink{n.bus}
	}

	n.ctrl, err = mission.New(deps, cfg.MissionLoop(),
		mission.WithLogger(logger),
		mission.WithTracer(tracer),
		mission.WithMetrics(metrics),
	)
	if err != nil {
		return nil, err
	}
	ok = true
	return n, nil
}

// serveBus routes bus commands and notifications to the controller until
// ctx is done.
func (n *node) serveBus(ctx context.Context) error {
	if n.bus == nil {
		return nil
	}
	cmds, err := n.bus.ServeCommands(ctx, n.ctrl)
	if err != nil {
		return err
	}
	n.closers = append(n.closers, cmds.Close)
	notes, err := n.bus.ServeNotifications(ctx, n.ctrl)
	if err != nil {
		return err
	}
	n.closers = append(n.closers, notes.Close)
	return nil
}

// close releases resources in reverse order of acquisition.
func (n *node) close() error {
	var errs []error
	for i := len(n.closers) - 1; i >= 0; i-- {
		if err := n.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	n.closers = nil
	return errors.Join(errs...)
}
