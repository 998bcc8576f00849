package sdengine

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// Reserved variable names available to every expression.
const (
	varTime      = "t"
	varTimeAlias = "time"
	varDT        = "dt"
)

// compiled is a parsed equation expression with its variable references.
type compiled struct {
	source string
	expr   hcl.Expression
	refs   []string
}

func compile(equation, src string) (*compiled, error) {
	expr, diags := hclsyntax.ParseExpression([]byte(src), equation, hcl.InitialPos)
	if diags.HasErrors() {
		return nil, fmt.Errorf("equation %q: %s", equation, diags.Error())
	}
	seen := make(map[string]bool)
	var refs []string
	for _, traversal := range expr.Variables() {
		root := traversal.RootName()
		if seen[root] {
			continue
		}
		seen[root] = true
		refs = append(refs, root)
	}
	return &compiled{source: src, expr: expr, refs: refs}, nil
}

func isReserved(name string) bool {
	return name == varTime || name == varTimeAlias || name == varDT
}

// evaluate runs the expression against vars and returns a float.
func (c *compiled) evaluate(equation string, vars map[string]cty.Value, funcs map[string]function.Function) (float64, error) {
	val, diags := c.expr.Value(&hcl.EvalContext{
		Variables: vars,
		Functions: funcs,
	})
	if diags.HasErrors() {
		return 0, fmt.Errorf("equation %q: %s", equation, diags.Error())
	}
	return toFloat(equation, val)
}

func toFloat(equation string, val cty.Value) (float64, error) {
	if val.IsNull() || !val.IsKnown() {
		return 0, fmt.Errorf("equation %q evaluated to an unknown value", equation)
	}
	if val.Type() == cty.Bool {
		if val.True() {
			return 1, nil
		}
		return 0, nil
	}
	if val.Type() != cty.Number {
		return 0, fmt.Errorf("equation %q evaluated to %s, want number", equation, val.Type().FriendlyName())
	}
	f, _ := val.AsBigFloat().Float64()
	return f, nil
}

// functions returns the function table exposed to expressions. lookupFn is
// bound to the owning simulation's current points.
func functions(lookupFn func(name string, x float64) (float64, error)) map[string]function.Function {
	lookup := function.New(&function.Spec{
		Params: []function.Parameter{
			{Name: "table", Type: cty.String},
			{Name: "x", Type: cty.Number},
		},
		Type: function.StaticReturnType(cty.Number),
		Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
			x, _ := args[1].AsBigFloat().Float64()
			y, err := lookupFn(args[0].AsString(), x)
			if err != nil {
				return cty.UnknownVal(cty.Number), err
			}
			return number(y), nil
		},
	})

	return map[string]function.Function{
		"lookup": lookup,
		"min":    stdlib.MinFunc,
		"max":    stdlib.MaxFunc,
		"abs":    stdlib.AbsoluteFunc,
		"floor":  stdlib.FloorFunc,
		"ceil":   stdlib.CeilFunc,
		"pow":    stdlib.PowFunc,
		"log":    stdlib.LogFunc,
	}
}
