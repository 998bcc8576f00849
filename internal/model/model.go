// Package model defines system dynamics model definitions: named equations
// (constants, converters, flows, stocks and lookup tables) loaded from YAML.
package model

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// EquationType identifies how an equation is evaluated.
type EquationType string

const (
	TypeConstant  EquationType = "constant"
	TypeConverter EquationType = "converter"
	TypeFlow      EquationType = "flow"
	TypeStock     EquationType = "stock"
	TypeLookup    EquationType = "lookup"
)

// Point is a single (x, y) pair of a lookup table.
type Point struct {
	X float64
	Y float64
}

// UnmarshalYAML accepts the compact `[x, y]` form.
func (p *Point) UnmarshalYAML(value *yaml.Node) error {
	var pair []float64
	if err := value.Decode(&pair); err != nil {
		return fmt.Errorf("point must be a [x, y] pair: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("point must have exactly 2 values, got %d", len(pair))
	}
	p.X, p.Y = pair[0], pair[1]
	return nil
}

// MarshalYAML writes the compact `[x, y]` form.
func (p Point) MarshalYAML() (interface{}, error) {
	return []float64{p.X, p.Y}, nil
}

// Equation is the definition of a single model variable.
type Equation struct {
	Type     EquationType `yaml:"type"`
	Value    float64      `yaml:"value,omitempty"`
	Expr     string       `yaml:"expr,omitempty"`
	Initial  string       `yaml:"initial,omitempty"`
	Inflows  []string     `yaml:"inflows,omitempty"`
	Outflows []string     `yaml:"outflows,omitempty"`
	Points   []Point      `yaml:"points,omitempty"`
}

// Model is a read-only set of named equations. Names keep definition order.
type Model struct {
	Name      string
	equations map[string]Equation
	order     []string
}

// New builds a model from equations in the given order. Names missing from
// order are appended alphabetically.
func New(name string, equations map[string]Equation, order ...string) *Model {
	m := &Model{
		Name:      name,
		equations: make(map[string]Equation, len(equations)),
	}
	seen := make(map[string]bool, len(equations))
	for _, n := range order {
		eq, ok := equations[n]
		if !ok || seen[n] {
			continue
		}
		m.equations[n] = eq
		m.order = append(m.order, n)
		seen[n] = true
	}
	var rest []string
	for n := range equations {
		if !seen[n] {
			rest = append(rest, n)
		}
	}
	sort.Strings(rest)
	for _, n := range rest {
		m.equations[n] = equations[n]
		m.order = append(m.order, n)
	}
	return m
}

// Has reports whether the model defines name.
func (m *Model) Has(name string) bool {
	if m == nil {
		return false
	}
	_, ok := m.equations[name]
	return ok
}

// Equation returns the definition of name.
func (m *Model) Equation(name string) (Equation, bool) {
	if m == nil {
		return Equation{}, false
	}
	eq, ok := m.equations[name]
	return eq, ok
}

// Names returns every equation name in definition order.
func (m *Model) Names() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// Len returns the number of equations.
func (m *Model) Len() int {
	if m == nil {
		return 0
	}
	return len(m.order)
}

// Validate checks that every equation is well formed and that stock flows
// and lookup references point at defined equations.
func (m *Model) Validate() error {
	for _, name := range m.order {
		eq := m.equations[name]
		switch eq.Type {
		case TypeConstant:
		case TypeConverter, TypeFlow:
			if eq.Expr == "" {
				return fmt.Errorf("equation %q: %s requires expr", name, eq.Type)
			}
		case TypeStock:
			if eq.Initial == "" {
				return fmt.Errorf("equation %q: stock requires initial", name)
			}
			for _, f := range append(append([]string{}, eq.Inflows...), eq.Outflows...) {
				if !m.Has(f) {
					return fmt.Errorf("equation %q: unknown flow %q", name, f)
				}
			}
		case TypeLookup:
			if len(eq.Points) == 0 {
				return fmt.Errorf("equation %q: lookup requires points", name)
			}
		default:
			return fmt.Errorf("equation %q: unknown type %q", name, eq.Type)
		}
	}
	return nil
}

// definition is the YAML shape of a model file.
type definition struct {
	Name      string    `yaml:"name"`
	Equations yaml.Node `yaml:"equations"`
}

// Decode builds a model from a YAML node holding a model definition.
func Decode(node *yaml.Node) (*Model, error) {
	var def definition
	if err := node.Decode(&def); err != nil {
		return nil, fmt.Errorf("decoding model: %w", err)
	}
	return fromDefinition(def)
}

// Parse builds a model from YAML bytes.
func Parse(data []byte) (*Model, error) {
	var def definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parsing model: %w", err)
	}
	return fromDefinition(def)
}

// LoadFile reads and parses a YAML model file.
func LoadFile(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model file: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

func fromDefinition(def definition) (*Model, error) {
	equations, order, err := decodeEquations(&def.Equations)
	if err != nil {
		return nil, err
	}
	m := New(def.Name, equations, order...)
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// decodeEquations walks the mapping node directly so file order survives.
func decodeEquations(node *yaml.Node) (map[string]Equation, []string, error) {
	equations := make(map[string]Equation)
	if node.Kind == 0 {
		return equations, nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, nil, fmt.Errorf("equations must be a mapping (line %d)", node.Line)
	}
	order := make([]string, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		if _, dup := equations[name]; dup {
			return nil, nil, fmt.Errorf("duplicate equation %q (line %d)", name, node.Content[i].Line)
		}
		var eq Equation
		if err := node.Content[i+1].Decode(&eq); err != nil {
			return nil, nil, fmt.Errorf("equation %q: %w", name, err)
		}
		if eq.Type == "" {
			eq.Type = TypeConstant
			if eq.Expr != "" {
				eq.Type = TypeConverter
			}
		}
		equations[name] = eq
		order = append(order, name)
	}
	return equations, order, nil
}
