// Package planner runs the external solver for one planning attempt.
//
// The solver is a shell command built from a Template. Its standard output is
// written to <dataDir>/plan.pddl and the attempt counts as solved only when
// that artifact contains the success marker line. The exit status of the
// solver is logged but never decides the outcome.
//
// Mission cancellation does not interrupt a running solver: Invoke only
// honors the context it is given, which callers tie to the process lifetime.
// A hung solver therefore delays cancellation until it exits; bound it in the
// template itself (for example with timeout(1)).
package planner

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pablasso/missionctl/internal/history"
	"github.com/pablasso/missionctl/internal/observability"
	"github.com/pablasso/missionctl/internal/plan"
)

// ErrUnsolvable is returned when the solver produced no solution.
var ErrUnsolvable = errors.New("problem unsolvable")

// CommandContext is the function used to create exec.Cmd instances.
// It can be replaced in tests to mock command execution.
var CommandContext = exec.CommandContext

// maxStderr caps the solver diagnostics kept for logging.
const maxStderr = 4096

// Request describes one planning attempt.
type Request struct {
	MissionID   string
	DomainPath  string
	ProblemPath string
	DataPath    string
	Template    Template
	// FirstActionID is the id given to the first parsed action.
	FirstActionID int
}

// Invoker runs the solver and records every attempt in the history.
type Invoker struct {
	history *history.Store
	parser  plan.Parser
	marker  string
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *observability.Metrics
	now     func() time.Time
}

// Option configures an Invoker.
type Option func(*Invoker)

// WithParser sets the plan parser. Defaults to a POPF parser.
func WithParser(p plan.Parser) Option {
	return func(inv *Invoker) { inv.parser = p }
}

// WithMarker sets the success marker. Defaults to plan.DefaultSolvedMarker.
func WithMarker(marker string) Option {
	return func(inv *Invoker) {
		if marker != "" {
			inv.marker = marker
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(inv *Invoker) { inv.logger = l }
}

// WithTracer sets the tracer.
func WithTracer(t trace.Tracer) Option {
	return func(inv *Invoker) { inv.tracer = t }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) Option {
	return func(inv *Invoker) { inv.metrics = m }
}

// NewInvoker creates an Invoker that numbers attempts from store.
func NewInvoker(store *history.Store, opts ...Option) *Invoker {
	inv := &Invoker{
		history: store,
		parser:  plan.NewPOPFParser(),
		marker:  plan.DefaultSolvedMarker,
		logger:  slog.Default(),
		tracer:  observability.Tracer(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// Marker returns the success marker in use.
func (inv *Invoker) Marker() string {
	return inv.marker
}

// Invoke runs one attempt. The attempt is appended to the history whether or
// not it was solved. An unsolved attempt is reported as ErrUnsolvable; any
// other error means the solver could not be run at all.
func (inv *Invoker) Invoke(ctx context.Context, req Request) (plan.Attempt, error) {
	if req.Template.IsZero() {
		return plan.Attempt{}, fmt.Errorf("%w: no planner command", ErrInvalidTemplate)
	}
	number := inv.history.Next()
	ctx, span := inv.tracer.Start(ctx, "planner.Invoke", trace.WithAttributes(
		attribute.String("mission.id", req.MissionID),
		attribute.Int("attempt", number),
	))
	defer span.End()

	logger := observability.WithTrace(ctx, inv.logger).With(
		"mission_id", req.MissionID,
		"attempt", number,
	)

	attempt := plan.Attempt{
		MissionID:    req.MissionID,
		Number:       number,
		ArtifactPath: plan.ArtifactPath(req.DataPath),
		CreatedAt:    inv.now(),
	}

	started := time.Now()
	runErr := inv.run(ctx, req, logger)
	elapsed := time.Since(started)

	var solved bool
	var err error
	switch {
	case runErr != nil:
		err = runErr
	default:
		solved, err = inv.collect(req, &attempt, logger)
	}
	attempt.Solved = solved && err == nil
	if !attempt.Solved {
		attempt.Actions = nil
	}

	if appendErr := inv.history.Append(attempt); appendErr != nil {
		logger.Error("failed to record attempt", "error", appendErr)
		if err == nil {
			err = appendErr
		}
	}
	inv.metrics.AttemptFinished(attempt.Solved, elapsed)

	span.SetAttributes(
		attribute.Bool("solved", attempt.Solved),
		attribute.Int("actions", len(attempt.Actions)),
	)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return attempt, err
	}

	logger.Info("plan found",
		"actions", len(attempt.Actions),
		"archive", attempt.ArtifactPath,
		"duration", elapsed.Round(time.Millisecond),
	)
	return attempt, nil
}

// run executes the solver with stdout redirected to the artifact file.
func (inv *Invoker) run(ctx context.Context, req Request, logger *slog.Logger) error {
	if err := os.MkdirAll(req.DataPath, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	out, err := os.Create(plan.ArtifactPath(req.DataPath))
	if err != nil {
		return fmt.Errorf("failed to create plan artifact: %w", err)
	}
	defer out.Close()

	command := req.Template.Render(req.DomainPath, req.ProblemPath)
	logger.Info("running planner", "command", command)

	var stderr bytes.Buffer
	cmd := CommandContext(ctx, "sh", "-c", command)
	cmd.Stdout = out
	cmd.Stderr = &limitedWriter{buf: &stderr, max: maxStderr}
	cmd.WaitDelay = 5 * time.Second

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return fmt.Errorf("failed to run planner: %w", err)
		}
		// exit status alone does not decide the outcome
		logger.Warn("planner exited with error",
			"exit_code", exitErr.ExitCode(),
			"stderr", strings.TrimSpace(stderr.String()),
		)
	}
	if err := out.Sync(); err != nil {
		return fmt.Errorf("failed to flush plan artifact: %w", err)
	}
	return nil
}

// collect validates, archives and parses the artifact.
func (inv *Invoker) collect(req Request, attempt *plan.Attempt, logger *slog.Logger) (bool, error) {
	found, err := ContainsMarker(attempt.ArtifactPath, inv.marker)
	if err != nil {
		return false, fmt.Errorf("failed to read plan artifact: %w", err)
	}
	if !found {
		logger.Info("no plan found", "marker", inv.marker)
		return false, ErrUnsolvable
	}

	archive, err := plan.ArchiveArtifact(req.DataPath, attempt.Number)
	if err != nil {
		return false, fmt.Errorf("failed to archive plan: %w", err)
	}
	attempt.ArtifactPath = archive

	domain, err := plan.LoadDomain(req.DomainPath)
	if err != nil {
		logger.Warn("domain unreadable, using positional parameter names", "error", err)
		domain = nil
	}

	actions, err := inv.parser.Parse(archive, domain, req.FirstActionID)
	if err != nil {
		return false, fmt.Errorf("%w: unparseable plan: %v", ErrUnsolvable, err)
	}
	attempt.Actions = actions
	return true, nil
}

// ContainsMarker reports whether any line of the file contains marker. The
// plan parser resets on the same lines.
func ContainsMarker(path, marker string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if strings.Contains(scanner.Text(), marker) {
			return true, nil
		}
	}
	return false, scanner.Err()
}

// limitedWriter keeps the first max bytes and discards the rest.
type limitedWriter struct {
	buf *bytes.Buffer
	max int
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	if room := w.max - w.buf.Len(); room > 0 {
		if len(p) > room {
			w.buf.Write(p[:room])
		} else {
			w.buf.Write(p)
		}
	}
	return len(p), nil
}
