package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/pablasso/missionctl/internal/control"
)

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "debug", Format: "json", Output: &buf})
	logger.Debug("planning", "attempt", 3)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "planning", entry["msg"])
	assert.Equal(t, float64(3), entry["attempt"])
}

func TestNewLogger_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "warn", Output: &buf})
	logger.Info("hidden")
	assert.Empty(t, buf.String())

	logger.Warn("shown")
	assert.Contains(t, buf.String(), "msg=shown")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestWithTrace(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(LogConfig{Format: "json", Output: &buf})

	// no span: the logger is returned unchanged
	assert.Same(t, base, WithTrace(context.Background(), base))

	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	WithTrace(ctx, base).Info("traced")
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, span.SpanContext().TraceID().String(), entry["trace_id"])
}

func TestNewTracerProvider_Disabled(t *testing.T) {
	tp, err := NewTracerProvider(context.Background(), TracingConfig{})
	require.NoError(t, err)
	require.NotNil(t, tp.Tracer())

	_, span := tp.Tracer().Start(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
	assert.NoError(t, tp.Shutdown(context.Background()))
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	m.PublishState(control.Planning)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.state.WithLabelValues("Planning")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.state.WithLabelValues("Ready")))

	m.PublishState(control.Ready)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.state.WithLabelValues("Planning")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.state.WithLabelValues("Ready")))

	m.AttemptFinished(false, time.Second)
	m.AttemptFinished(true, 2*time.Second)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.attempts.WithLabelValues("solved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.attempts.WithLabelValues("unsolvable")))

	m.MissionFinished("solved")
	m.DispatchPassFinished("replan")
	m.ActionFinished("achieved")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.missions.WithLabelValues("solved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.passes.WithLabelValues("replan")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.actions.WithLabelValues("achieved")))

	// registering twice on the same registry fails
	_, err = NewMetrics(reg)
	assert.Error(t, err)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.PublishState(control.Paused)
	m.MissionFinished("cancelled")
	m.AttemptFinished(true, time.Millisecond)
	m.DispatchPassFinished("solved")
	m.ActionFinished("failed")
}
