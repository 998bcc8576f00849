// Package observability wires Prometheus metrics and OpenTelemetry tracing
// for scenario runs.
package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run modes used as the "mode" label.
const (
	ModeRun  = "run"
	ModeStep = "step"
)

// RunCollector bundles Prometheus metrics for scenario execution. A nil
// collector is a no-op.
type RunCollector struct {
	gatherer prometheus.Gatherer

	ScenarioRuns        *prometheus.CounterVec
	ScenarioDurations   *prometheus.HistogramVec
	UnresolvedEquations prometheus.Counter
	EmptyCatalog        prometheus.Counter
}

// NewRunCollector registers run metrics against the provided registerer,
// defaulting to the global Prometheus registry when nil. Registering twice
// against the same registry reuses the existing collectors.
func NewRunCollector(reg prometheus.Registerer) (*RunCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	runs, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sdrun_scenario_runs_total",
		Help: "Total number of scenario executions, labeled by mode (run or step).",
	}, []string{"mode"}), "sdrun_scenario_runs_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sdrun_scenario_run_duration_seconds",
		Help:    "Duration of a single scenario execution in seconds.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"mode"}), "sdrun_scenario_run_duration_seconds")
	if err != nil {
		return nil, err
	}

	unresolved, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sdrun_unresolved_equations_total",
		Help: "Requested equations that no resolved scenario's model defines.",
	}), "sdrun_unresolved_equations_total")
	if err != nil {
		return nil, err
	}

	empty, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sdrun_empty_catalog_total",
		Help: "Catalog queries that resolved no scenarios.",
	}), "sdrun_empty_catalog_total")
	if err != nil {
		return nil, err
	}

	return &RunCollector{
		gatherer:            gatherer,
		ScenarioRuns:        runs,
		ScenarioDurations:   durations,
		UnresolvedEquations: unresolved,
		EmptyCatalog:        empty,
	}, nil
}

// ObserveRun records one scenario execution.
func (c *RunCollector) ObserveRun(mode string, d time.Duration) {
	if c == nil {
		return
	}
	if c.ScenarioRuns != nil {
		c.ScenarioRuns.WithLabelValues(mode).Inc()
	}
	if c.ScenarioDurations != nil {
		c.ScenarioDurations.WithLabelValues(mode).Observe(d.Seconds())
	}
}

// UnresolvedEquation counts one requested equation without a scenario.
func (c *RunCollector) UnresolvedEquation() {
	if c == nil || c.UnresolvedEquations == nil {
		return
	}
	c.UnresolvedEquations.Inc()
}

// EmptyCatalogQuery counts one catalog query that returned nothing.
func (c *RunCollector) EmptyCatalogQuery() {
	if c == nil || c.EmptyCatalog == nil {
		return
	}
	c.EmptyCatalog.Inc()
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *RunCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *RunCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
