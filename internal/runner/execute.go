package runner

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/nvandessel/sdrun/internal/engine"
	"github.com/nvandessel/sdrun/internal/frame"
	"github.com/nvandessel/sdrun/internal/logging"
	"github.com/nvandessel/sdrun/internal/observability"
	"github.com/nvandessel/sdrun/internal/scenario"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Request describes a full run.
type Request struct {
	Managers  []string
	Scenarios []string
	Equations []string
	Kind      OutputKind
}

// StepRequest describes one step of an incremental run.
type StepRequest struct {
	Step      float64
	Settings  Settings
	Manager   string
	Scenarios []string
	Equations []string
}

// StepResult maps scenario name -> equation -> formatted time -> value.
type StepResult map[string]map[string]map[string]float64

// RunScenarios runs the matching scenarios over their full window with
// fresh engines and aggregates the results into acc. Missing scenarios and
// equations produce diagnostics, not errors; engine failures are returned.
func (r *Runner) RunScenarios(ctx context.Context, req Request, acc Accumulator) (Output, error) {
	ctx, span := r.tracer.Start(ctx, "runner.RunScenarios", trace.WithAttributes(
		attribute.StringSlice("sdrun.managers", req.Managers),
		attribute.StringSlice("sdrun.scenarios", req.Scenarios),
		attribute.String("sdrun.output", string(req.Kind)),
	))
	defer span.End()

	scenarios, err := r.runScenarios(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Output{Kind: req.Kind}, err
	}

	if len(scenarios) == 0 {
		r.sink.Log(logging.LevelError, fmt.Sprintf("No scenario found for scenario_managers=%q and scenario_names=%q. Cancelling",
			req.Managers, req.Scenarios))
		return Output{Kind: req.Kind}, nil
	}

	index, _ := Resolve(req.Equations, scenarios, r.sink)
	for range index.Unresolved() {
		r.recorder.UnresolvedEquation()
	}
	span.SetAttributes(attribute.Int("sdrun.scenario_count", len(scenarios)))
	for _, sc := range scenarios {
		r.reportMissingColumns(sc, sc.Result, index.Names())
	}

	return Aggregate(acc, req.Kind, scenarios, index), nil
}

func (r *Runner) runScenarios(ctx context.Context, req Request) ([]*scenario.Scenario, error) {
	scenarios := r.loadScenarios(req.Managers, req.Scenarios)

	for _, sc := range scenarios {
		if len(req.Scenarios) > 0 && !slices.Contains(req.Scenarios, sc.Name) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		f, err := r.execute(ctx, observability.ModeRun, sc, nil, func(ctx context.Context) (*frame.Frame, error) {
			h, err := r.factory(sc.Model, sc.Name)
			if err != nil {
				return nil, err
			}
			sc.Configure(h)
			return h.Start(ctx, engine.StartOptions{
				Output:    []string{engine.OutputFrame},
				Equations: req.Equations,
			})
		})
		if err != nil {
			return nil, err
		}
		sc.StoreResult(f)
	}
	return scenarios, nil
}

// RunScenarioStep runs a single-point window at req.Step for the matching
// scenarios of req.Manager, reusing each scenario's engine. Overrides in
// req.Settings apply to this step only and are not stored on the scenario.
func (r *Runner) RunScenarioStep(ctx context.Context, req StepRequest) (StepResult, error) {
	ctx, span := r.tracer.Start(ctx, "runner.RunScenarioStep", trace.WithAttributes(
		attribute.String("sdrun.manager", req.Manager),
		attribute.StringSlice("sdrun.scenarios", req.Scenarios),
		attribute.Float64("sdrun.step", req.Step),
	))
	defer span.End()

	scenarios := r.loadScenarios([]string{req.Manager}, req.Scenarios)
	if len(scenarios) == 0 {
		r.sink.Log(logging.LevelError, fmt.Sprintf("No scenarios found for scenario manager %q and scenarios %q",
			req.Manager, strings.Join(req.Scenarios, ",")))
	}

	out := make(StepResult, len(scenarios))
	step := req.Step
	for _, sc := range scenarios {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		override, hasOverride := req.Settings.Lookup(req.Manager, sc.Name)
		var result *frame.Frame
		err := sc.UseSimulation(r.factory, func(h engine.Handle, created bool) error {
			if created {
				r.logger.Debug("created simulation", "manager", sc.Manager, "scenario", sc.Name)
			}
			f, err := r.execute(ctx, observability.ModeStep, sc, &step, func(ctx context.Context) (*frame.Frame, error) {
				if hasOverride {
					override.Apply(h)
				}
				return h.Start(ctx, engine.Window(step, req.Equations))
			})
			if err != nil {
				return err
			}
			sc.Result = f
			result = f
			return nil
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		r.reportMissingColumns(sc, result, req.Equations)
		out[sc.Name] = result.Dict()
	}
	return out, nil
}

// reportMissingColumns logs an INFO diagnostic for each requested name the
// scenario's model resolves but whose result has no column for it, such as
// a subscripted name the engine does not expand.
func (r *Runner) reportMissingColumns(sc *scenario.Scenario, result *frame.Frame, equations []string) {
	if result == nil {
		return
	}
	for _, name := range equations {
		if !sc.Model.Has(BaseEquationName(name)) || result.Has(name) {
			continue
		}
		r.sink.Log(logging.LevelInfo, fmt.Sprintf("Equation %q resolved for scenario %q of %q but the simulation returned no values for it",
			name, sc.Name, sc.Manager))
	}
}

func (r *Runner) loadScenarios(managers, names []string) []*scenario.Scenario {
	r.sink.Log(logging.LevelInfo, "Attempting to load scenarios")
	scenarios := r.catalog.GetScenarios(managers, names, scenario.KindSD)
	if len(scenarios) == 0 {
		r.recorder.EmptyCatalogQuery()
	}
	return scenarios
}

// execute runs one scenario execution with tracing, metrics and journaling.
// Errors are wrapped with the scenario's identity.
func (r *Runner) execute(ctx context.Context, mode string, sc *scenario.Scenario, step *float64, run func(context.Context) (*frame.Frame, error)) (*frame.Frame, error) {
	ctx, span := r.tracer.Start(ctx, "runner.execute", trace.WithAttributes(
		attribute.String("sdrun.mode", mode),
		attribute.String("sdrun.manager", sc.Manager),
		attribute.String("sdrun.scenario", sc.Name),
	))
	defer span.End()

	start := time.Now()
	f, err := run(ctx)
	elapsed := time.Since(start)
	r.recorder.ObserveRun(mode, elapsed)

	ev := logging.RunEvent{
		Mode:     mode,
		Manager:  sc.Manager,
		Scenario: sc.Name,
		Step:     step,
		Duration: float64(elapsed.Microseconds()) / 1000,
	}
	if err != nil {
		err = fmt.Errorf("running scenario %s/%s: %w", sc.Manager, sc.Name, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		ev.Error = err.Error()
		r.journal.Record(ev)
		return nil, err
	}

	ev.Columns = f.Columns()
	r.journal.Record(ev)
	r.logger.Log(ctx, logging.LevelTrace, "scenario executed",
		"mode", mode, "manager", sc.Manager, "scenario", sc.Name, "rows", f.Len(), "elapsed", elapsed)
	return f, nil
}
