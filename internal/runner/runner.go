// Package runner executes scenarios against simulation engines and
// aggregates their results. Full runs build a fresh engine per scenario;
// step runs reuse the engine owned by each scenario so state carries over
// between steps.
package runner

import (
	"io"
	"log/slog"
	"time"

	"github.com/nvandessel/sdrun/internal/engine"
	"github.com/nvandessel/sdrun/internal/logging"
	"github.com/nvandessel/sdrun/internal/observability"
	"github.com/nvandessel/sdrun/internal/scenario"
	"go.opentelemetry.io/otel/trace"
)

// Recorder receives run metrics. *observability.RunCollector implements it.
type Recorder interface {
	ObserveRun(mode string, d time.Duration)
	UnresolvedEquation()
	EmptyCatalogQuery()
}

type nopRecorder struct{}

func (nopRecorder) ObserveRun(string, time.Duration) {}
func (nopRecorder) UnresolvedEquation()              {}
func (nopRecorder) EmptyCatalogQuery()               {}

// Runner orchestrates scenario execution. It is safe for concurrent use as
// long as the catalog is; step calls on one scenario are serialized by the
// scenario itself.
type Runner struct {
	catalog  scenario.Catalog
	factory  engine.Factory
	sink     logging.Sink
	recorder Recorder
	tracer   trace.Tracer
	journal  *logging.Journal
	logger   *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithSink sets the diagnostic sink. The default discards diagnostics.
func WithSink(s logging.Sink) Option {
	return func(r *Runner) {
		if s != nil {
			r.sink = s
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) {
		if rec != nil {
			r.recorder = rec
		}
	}
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(r *Runner) {
		if t != nil {
			r.tracer = t
		}
	}
}

// WithJournal records one event per scenario execution. A nil journal is
// accepted and records nothing.
func WithJournal(j *logging.Journal) Option {
	return func(r *Runner) { r.journal = j }
}

// WithLogger sets the operational logger used for debug and trace output.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a runner over catalog that builds engines with factory.
func New(catalog scenario.Catalog, factory engine.Factory, opts ...Option) *Runner {
	r := &Runner{
		catalog:  catalog,
		factory:  factory,
		sink:     logging.Discard,
		recorder: nopRecorder{},
		tracer:   observability.Tracer(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Catalog returns the runner's scenario catalog.
func (r *Runner) Catalog() scenario.Catalog {
	return r.catalog
}
