package mcp

import (
	"context"
	"fmt"
	"math"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/nvandessel/sdrun/internal/frame"
	"github.com/nvandessel/sdrun/internal/model"
	"github.com/nvandessel/sdrun/internal/runner"
	"github.com/nvandessel/sdrun/internal/sanitize"
	"github.com/nvandessel/sdrun/internal/similarity"
	"github.com/nvandessel/sdrun/internal/store"
)

func (s *Server) handleScenarios(ctx context.Context, req *sdk.CallToolRequest, args ScenariosInput) (_ *sdk.CallToolResult, _ ScenariosOutput, retErr error) {
	start := time.Now()
	defer func() { s.logToolCall("sdrun_scenarios", start, retErr, "manager", args.Manager) }()

	if err := s.limits.Check("sdrun_scenarios"); err != nil {
		return nil, ScenariosOutput{}, err
	}

	managers := s.catalog.Managers()
	if args.Manager != "" {
		if _, ok := s.catalog.Kind(args.Manager); !ok {
			if hints := similarity.Suggest(args.Manager, managers, 3); len(hints) > 0 {
				return nil, ScenariosOutput{}, fmt.Errorf("unknown scenario manager %q, did you mean one of %q?", args.Manager, hints)
			}
			return nil, ScenariosOutput{}, fmt.Errorf("unknown scenario manager %q", args.Manager)
		}
		managers = []string{args.Manager}
	}

	out := ScenariosOutput{Managers: make([]ManagerSummary, 0, len(managers))}
	for _, name := range managers {
		kind, _ := s.catalog.Kind(name)
		summary := ManagerSummary{Name: name, Kind: string(kind), Equations: []string{}, Scenarios: []ScenarioSummary{}}
		for _, sc := range s.catalog.GetScenarios([]string{name}, nil, "") {
			if summary.Model == "" && sc.Model != nil {
				summary.Model = sc.Model.Name
				summary.Equations = sc.Model.Names()
			}
			summary.Scenarios = append(summary.Scenarios, ScenarioSummary{
				Name:      sc.Name,
				Runspecs:  sc.Runspecs,
				Constants: sc.Constants,
			})
			out.Count++
		}
		out.Managers = append(out.Managers, summary)
	}
	return nil, out, nil
}

func (s *Server) handleRun(ctx context.Context, req *sdk.CallToolRequest, args RunInput) (_ *sdk.CallToolResult, _ RunOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.logToolCall("sdrun_run", start, retErr,
			"managers", args.Managers, "scenarios", args.Scenarios, "equations", args.Equations, "format", args.Format)
	}()

	if err := s.limits.Check("sdrun_run"); err != nil {
		return nil, RunOutput{}, err
	}
	if err := validateNames(args.Managers, args.Scenarios, args.Equations); err != nil {
		return nil, RunOutput{}, err
	}

	format := args.Format
	if format == "" {
		format = string(runner.OutputDict)
	}
	kind, err := runner.ParseOutputKind(format)
	if err != nil {
		return nil, RunOutput{}, err
	}
	if args.Save && s.store == nil {
		return nil, RunOutput{}, fmt.Errorf("saving results is not enabled on this server")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.diagnostics.Reset()

	acc := make(runner.Accumulator)
	result, err := s.runner.RunScenarios(ctx, runner.Request{
		Managers:  args.Managers,
		Scenarios: args.Scenarios,
		Equations: args.Equations,
		Kind:      kind,
	}, acc)
	if err != nil {
		return nil, RunOutput{}, err
	}

	out := RunOutput{Format: string(kind), Diagnostics: s.collected()}
	switch kind {
	case runner.OutputDF:
		out.Table = TableOf(result.Table)
	default:
		out.Results = ResultsOf(result.Tree)
	}

	if args.Save && !result.Empty() {
		id, err := s.store.SaveRun(ctx, store.NewRun(string(kind), args.Equations, acc))
		if err != nil {
			return nil, RunOutput{}, fmt.Errorf("saving run: %w", err)
		}
		out.RunID = id
	}
	return nil, out, nil
}

func (s *Server) handleStep(ctx context.Context, req *sdk.CallToolRequest, args StepInput) (_ *sdk.CallToolResult, _ StepOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.logToolCall("sdrun_step", start, retErr,
			"manager", args.Manager, "scenarios", args.Scenarios, "step", args.Step)
	}()

	if err := s.limits.Check("sdrun_step"); err != nil {
		return nil, StepOutput{}, err
	}
	if args.Manager == "" {
		return nil, StepOutput{}, fmt.Errorf("'manager' parameter is required")
	}
	if math.IsNaN(args.Step) || math.IsInf(args.Step, 0) {
		return nil, StepOutput{}, fmt.Errorf("'step' must be a finite number")
	}
	if err := validateNames([]string{args.Manager}, args.Scenarios, args.Equations); err != nil {
		return nil, StepOutput{}, err
	}

	settings := make(runner.Settings)
	for name, o := range args.Settings {
		settings.Set(args.Manager, name, overrideFromInput(o))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.diagnostics.Reset()

	result, err := s.runner.RunScenarioStep(ctx, runner.StepRequest{
		Step:      args.Step,
		Settings:  settings,
		Manager:   args.Manager,
		Scenarios: args.Scenarios,
		Equations: args.Equations,
	})
	if err != nil {
		return nil, StepOutput{}, err
	}

	out := StepOutput{
		Step:        args.Step,
		Results:     make(map[string]map[string]Values, len(result)),
		Diagnostics: s.collected(),
	}
	for name, byEquation := range result {
		out.Results[name] = make(map[string]Values, len(byEquation))
		for equation, byTime := range byEquation {
			values := make(Values, len(byTime))
			for t, v := range byTime {
				values[t] = nullable(v)
			}
			out.Results[name][equation] = values
		}
	}
	return nil, out, nil
}

func (s *Server) collected() []Diagnostic {
	entries := s.diagnostics.Entries()
	if len(entries) == 0 {
		return nil
	}
	out := make([]Diagnostic, len(entries))
	for i, e := range entries {
		out[i] = Diagnostic{Level: string(e.Level), Message: sanitize.Text(e.Message)}
	}
	return out
}

func validateNames(managers, scenarios, equations []string) error {
	if err := sanitize.Names("scenario manager", managers); err != nil {
		return err
	}
	if err := sanitize.Names("scenario", scenarios); err != nil {
		return err
	}
	return sanitize.Names("equation", equations)
}

func (s *Server) logToolCall(tool string, start time.Time, err error, attrs ...any) {
	attrs = append(attrs, "tool", tool, "duration_ms", time.Since(start).Milliseconds())
	if err != nil {
		s.logger.Warn("tool call failed", append(attrs, "error", err)...)
		return
	}
	s.logger.Debug("tool call", attrs...)
}

func overrideFromInput(o Override) runner.Override {
	out := runner.Override{Constants: o.Constants}
	if len(o.Points) > 0 {
		out.Points = make(map[string][]model.Point, len(o.Points))
		for name, pts := range o.Points {
			converted := make([]model.Point, len(pts))
			for i, p := range pts {
				converted[i] = model.Point{X: p[0], Y: p[1]}
			}
			out.Points[name] = converted
		}
	}
	return out
}

// ResultsOf converts an accumulator to its JSON form.
func ResultsOf(tree runner.Accumulator) map[string]map[string]map[string]Values {
	out := make(map[string]map[string]map[string]Values, len(tree))
	tree.Walk(func(manager, scenarioName, equation string, series frame.Series) {
		if out[manager] == nil {
			out[manager] = make(map[string]map[string]Values)
		}
		if out[manager][scenarioName] == nil {
			out[manager][scenarioName] = make(map[string]Values)
		}
		out[manager][scenarioName][equation] = seriesValues(series)
	})
	return out
}

// TableOf converts a wide table to column form with NaN cells as nulls.
func TableOf(f *frame.Frame) *Table {
	t := &Table{
		Time:    f.Index(),
		Columns: make(map[string][]*float64),
		Order:   f.Columns(),
	}
	if t.Time == nil {
		t.Time = []float64{}
	}
	if t.Order == nil {
		t.Order = []string{}
	}
	for _, name := range t.Order {
		series, _ := f.Series(name)
		col := make([]*float64, len(series.Values))
		for i, v := range series.Values {
			col[i] = nullable(v)
		}
		t.Columns[name] = col
	}
	return t
}

func seriesValues(series frame.Series) Values {
	out := make(Values, series.Len())
	for i, t := range series.Index {
		out[frame.FormatTime(t)] = nullable(series.Values[i])
	}
	return out
}

// nullable maps NaN to nil, which JSON encodes as null.
func nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
