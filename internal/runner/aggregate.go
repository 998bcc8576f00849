package runner

import (
	"fmt"
	"maps"
	"slices"
	"strconv"

	"github.com/nvandessel/sdrun/internal/frame"
	"github.com/nvandessel/sdrun/internal/scenario"
)

// OutputKind selects the shape RunScenarios returns.
type OutputKind string

const (
	OutputDict OutputKind = "dict"
	OutputJSON OutputKind = "json"
	OutputDF   OutputKind = "df"
)

// ParseOutputKind validates s. Aggregate itself accepts any kind and
// returns an empty output for unknown ones.
func ParseOutputKind(s string) (OutputKind, error) {
	switch k := OutputKind(s); k {
	case OutputDict, OutputJSON, OutputDF:
		return k, nil
	default:
		return "", fmt.Errorf("invalid output format %q (valid: dict, json, df)", s)
	}
}

// ScenarioEntry holds the series recorded for one scenario. Values are
// frame.Series, or map[string]float64 keyed by formatted time when the
// output kind is json.
type ScenarioEntry struct {
	Equations map[string]any `json:"equations"`
}

// Accumulator is manager -> scenario -> entry. Callers may reuse one
// accumulator across calls; entries are only ever added.
type Accumulator map[string]map[string]*ScenarioEntry

// Entry returns the entry for (manager, scenario), creating it on demand.
func (a Accumulator) Entry(manager, scenarioName string) *ScenarioEntry {
	byScenario, ok := a[manager]
	if !ok {
		byScenario = make(map[string]*ScenarioEntry)
		a[manager] = byScenario
	}
	e, ok := byScenario[scenarioName]
	if !ok {
		e = &ScenarioEntry{Equations: make(map[string]any)}
		byScenario[scenarioName] = e
	}
	if e.Equations == nil {
		e.Equations = make(map[string]any)
	}
	return e
}

// Lookup returns the stored value for (manager, scenario, equation).
func (a Accumulator) Lookup(manager, scenarioName, equation string) (any, bool) {
	e, ok := a[manager][scenarioName]
	if !ok || e == nil {
		return nil, false
	}
	v, ok := e.Equations[equation]
	return v, ok
}

// Output is the result of a full run. Tree is set for dict and json, Table
// for df; both are nil for an unknown kind.
type Output struct {
	Kind  OutputKind
	Tree  Accumulator
	Table *frame.Frame
}

// Empty reports whether the output carries no data.
func (o Output) Empty() bool {
	return len(o.Tree) == 0 && o.Table.Len() == 0
}

// ColumnName is the wide-table column for one scenario equation.
func ColumnName(manager, scenarioName, equation string) string {
	return manager + "_" + scenarioName + "_" + equation
}

// Aggregate merges the scenarios' results for the equations in index into
// acc and a wide table, then returns the shape kind asks for. A series is
// stored in acc only the first time its (manager, scenario, equation) is
// seen.
func Aggregate(acc Accumulator, kind OutputKind, scenarios []*scenario.Scenario, index EquationIndex) Output {
	if acc == nil {
		acc = make(Accumulator)
	}
	wide := frame.New(nil)

	for _, sc := range scenarios {
		result := sc.Result
		if result == nil {
			continue
		}
		for _, equation := range index.Names() {
			series, ok := result.Series(equation)
			if !ok {
				continue
			}

			entry := acc.Entry(sc.Manager, sc.Name)
			if _, seen := entry.Equations[equation]; !seen {
				if kind == OutputJSON {
					entry.Equations[equation] = series.Dict()
				} else {
					entry.Equations[equation] = series
				}
			}

			wide.Join(ColumnName(sc.Manager, sc.Name, equation), series)
		}
	}

	switch kind {
	case OutputDict, OutputJSON:
		return Output{Kind: kind, Tree: acc}
	case OutputDF:
		return Output{Kind: kind, Table: wide}
	default:
		return Output{Kind: kind}
	}
}

// Series returns the stored value of one equation as a series, converting
// json entries back from their time-keyed form.
func (e *ScenarioEntry) Series(equation string) (frame.Series, bool) {
	switch v := e.Equations[equation].(type) {
	case frame.Series:
		return v, true
	case map[string]float64:
		s := frame.Series{Name: equation}
		for key := range v {
			t, err := strconv.ParseFloat(key, 64)
			if err != nil {
				continue
			}
			s.Index = append(s.Index, t)
		}
		slices.Sort(s.Index)
		for _, t := range s.Index {
			s.Values = append(s.Values, v[frame.FormatTime(t)])
		}
		return s, true
	default:
		return frame.Series{}, false
	}
}

// Walk calls fn for every stored series in manager, scenario, equation
// order.
func (a Accumulator) Walk(fn func(manager, scenarioName, equation string, s frame.Series)) {
	for _, manager := range slices.Sorted(maps.Keys(a)) {
		for _, name := range slices.Sorted(maps.Keys(a[manager])) {
			entry := a[manager][name]
			if entry == nil {
				continue
			}
			for _, equation := range slices.Sorted(maps.Keys(entry.Equations)) {
				if s, ok := entry.Series(equation); ok {
					fn(manager, name, equation, s)
				}
			}
		}
	}
}
