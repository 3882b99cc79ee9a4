package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pablasso/missionctl/internal/control"
)

const namespace = "missionctl"

// Metrics exposes Prometheus collectors for mission activity. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	missions       *prometheus.CounterVec
	attempts       *prometheus.CounterVec
	passes         *prometheus.CounterVec
	actions        *prometheus.CounterVec
	state          *prometheus.GaugeVec
	solverDuration prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
// Registration errors are returned rather than panicking so that tests can
// use fresh registries freely.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		missions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "missions_total",
			Help:      "Missions finished, by outcome.",
		}, []string{"outcome"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "planning_attempts_total",
			Help:      "Planning attempts, by result.",
		}, []string{"result"}),
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_passes_total",
			Help:      "Dispatch passes, by result.",
		}, []string{"result"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Dispatched actions, by status.",
		}, []string{"status"}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state",
			Help:      "1 for the current mission state, 0 otherwise.",
		}, []string{"state"}),
		solverDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "solver_duration_seconds",
			Help:      "Wall time of solver invocations.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
	}

	collectors := []prometheus.Collector{m.missions, m.attempts, m.passes, m.actions, m.state, m.solverDuration}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	for _, s := range []control.State{control.Ready, control.Planning, control.Dispatching, control.Paused} {
		m.state.WithLabelValues(s.String()).Set(0)
	}
	return m, nil
}

// PublishState implements control.StatePublisher.
func (m *Metrics) PublishState(s control.State) {
	if m == nil {
		return
	}
	for _, other := range []control.State{control.Ready, control.Planning, control.Dispatching, control.Paused} {
		v := 0.0
		if other == s {
			v = 1
		}
		m.state.WithLabelValues(other.String()).Set(v)
	}
}

// MissionFinished counts a finished mission. outcome is solved, cancelled,
// exhausted or aborted.
func (m *Metrics) MissionFinished(outcome string) {
	if m == nil {
		return
	}
	m.missions.WithLabelValues(outcome).Inc()
}

// AttemptFinished records one solver invocation.
func (m *Metrics) AttemptFinished(solved bool, duration time.Duration) {
	if m == nil {
		return
	}
	result := "unsolvable"
	if solved {
		result = "solved"
	}
	m.attempts.WithLabelValues(result).Inc()
	m.solverDuration.Observe(duration.Seconds())
}

// DispatchPassFinished counts a dispatch pass by result.
func (m *Metrics) DispatchPassFinished(result string) {
	if m == nil {
		return
	}
	m.passes.WithLabelValues(result).Inc()
}

// ActionFinished counts a dispatched action by status.
func (m *Metrics) ActionFinished(status string) {
	if m == nil {
		return
	}
	m.actions.WithLabelValues(status).Inc()
}
