package store

import "github.com/nvandessel/sdrun/internal/frame"

// SeriesResults converts one series to long-format rows.
func SeriesResults(manager, scenario, equation string, s frame.Series) []Result {
	out := make([]Result, 0, s.Len())
	for i, t := range s.Index {
		out = append(out, Result{
			Manager:  manager,
			Scenario: scenario,
			Equation: equation,
			Time:     t,
			Value:    s.Values[i],
		})
	}
	return out
}

// Series rebuilds the series of one (manager, scenario, equation) from rows
// ordered by time, as LoadRun returns them.
func (r *Run) Series(manager, scenario, equation string) (frame.Series, bool) {
	s := frame.Series{Name: equation}
	for _, row := range r.Results {
		if row.Manager == manager && row.Scenario == scenario && row.Equation == equation {
			s.Index = append(s.Index, row.Time)
			s.Values = append(s.Values, row.Value)
		}
	}
	return s, len(s.Index) > 0
}

// Walker yields series in a stable order. runner.Accumulator implements it.
type Walker interface {
	Walk(fn func(manager, scenario, equation string, s frame.Series))
}

// NewRun builds an unsaved run holding every series results yields.
func NewRun(kind string, equations []string, results Walker) Run {
	run := Run{Kind: kind, Equations: equations}
	results.Walk(func(manager, scenario, equation string, s frame.Series) {
		run.Results = append(run.Results, SeriesResults(manager, scenario, equation, s)...)
	})
	return run
}

// Walk yields each series of a loaded run. Rows must be ordered by
// manager, scenario, equation and time, as LoadRun returns them.
func (r *Run) Walk(fn func(manager, scenario, equation string, s frame.Series)) {
	var cur frame.Series
	var manager, scenario string
	flush := func() {
		if cur.Len() > 0 {
			fn(manager, scenario, cur.Name, cur)
		}
	}
	for _, row := range r.Results {
		if row.Manager != manager || row.Scenario != scenario || row.Equation != cur.Name {
			flush()
			manager, scenario = row.Manager, row.Scenario
			cur = frame.Series{Name: row.Equation}
		}
		cur.Index = append(cur.Index, row.Time)
		cur.Values = append(cur.Values, row.Value)
	}
	flush()
}
