package sdengine

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/nvandessel/sdrun/internal/model"
	"github.com/zclconf/go-cty/cty"
)

// Dependency kinds.
const (
	DependsReads   = "reads"
	DependsInitial = "initial"
	DependsLookup  = "lookup"
	DependsInflow  = "inflow"
	DependsOutflow = "outflow"
)

// Dependency is one edge of a model's dependency graph: To is computed
// from From. For outflows the edge runs from the stock to the flow.
type Dependency struct {
	From string `json:"from"`
	To   string `json:"to"`
	Kind string `json:"kind"`
}

// Dependencies lists the edges of m in definition order. Lookup tables
// named by a literal first argument of lookup() are reported as lookup
// edges; the reserved time variables are skipped.
func Dependencies(m *model.Model) ([]Dependency, error) {
	var out []Dependency
	for _, name := range m.Names() {
		eq, _ := m.Equation(name)
		switch eq.Type {
		case model.TypeConverter, model.TypeFlow:
			deps, err := expressionDependencies(name, eq.Expr, DependsReads)
			if err != nil {
				return nil, err
			}
			out = append(out, deps...)
		case model.TypeStock:
			deps, err := expressionDependencies(name, eq.Initial, DependsInitial)
			if err != nil {
				return nil, err
			}
			out = append(out, deps...)
			for _, flow := range eq.Inflows {
				out = append(out, Dependency{From: flow, To: name, Kind: DependsInflow})
			}
			for _, flow := range eq.Outflows {
				out = append(out, Dependency{From: name, To: flow, Kind: DependsOutflow})
			}
		}
	}
	return out, nil
}

func expressionDependencies(name, src, kind string) ([]Dependency, error) {
	c, err := compile(name, src)
	if err != nil {
		return nil, err
	}

	var out []Dependency
	for _, ref := range c.refs {
		if !isReserved(ref) {
			out = append(out, Dependency{From: ref, To: name, Kind: kind})
		}
	}

	node, ok := c.expr.(hclsyntax.Node)
	if !ok {
		return out, nil
	}
	seen := make(map[string]bool)
	hclsyntax.VisitAll(node, func(n hclsyntax.Node) hcl.Diagnostics {
		call, ok := n.(*hclsyntax.FunctionCallExpr)
		if !ok || call.Name != "lookup" || len(call.Args) == 0 {
			return nil
		}
		v, diags := call.Args[0].Value(nil)
		if diags.HasErrors() || !v.IsKnown() || v.IsNull() || v.Type() != cty.String {
			return nil
		}
		if table := v.AsString(); !seen[table] {
			seen[table] = true
			out = append(out, Dependency{From: table, To: name, Kind: DependsLookup})
		}
		return nil
	})
	return out, nil
}
