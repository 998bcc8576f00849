// Package sdengine is a small system dynamics engine. Converters and flows
// are HCL expressions, stocks integrate their flows with Euler steps, and
// lookups are piecewise linear graphical functions.
package sdengine

import (
	"context"
	"fmt"
	"math"
	"math/big"

	"github.com/nvandessel/sdrun/internal/engine"
	"github.com/nvandessel/sdrun/internal/frame"
	"github.com/nvandessel/sdrun/internal/model"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

// Default run bounds used until ChangeRunspecs is called.
const (
	DefaultStart = 0.0
	DefaultStop  = 10.0
	DefaultDT    = 1.0
)

// Simulation is one scenario's engine instance. Values are memoized per
// (equation, step); steps at or before the committed horizon survive
// overrides so stepwise runs keep their history.
type Simulation struct {
	name  string
	model *model.Model

	constants map[string]float64
	overrides map[string]float64
	points    map[string][]model.Point
	exprs     map[string]*compiled
	initials  map[string]*compiled
	stocks    []string

	start, stop, dt float64

	memo    map[string]map[int]float64
	horizon int
	active  map[string]bool
	funcs   map[string]function.Function
}

var _ engine.Handle = (*Simulation)(nil)

// Factory adapts New to engine.Factory.
func Factory(m *model.Model, name string) (engine.Handle, error) {
	return New(m, name)
}

// New compiles every expression in m and returns a simulation with the
// default run bounds.
func New(m *model.Model, name string) (*Simulation, error) {
	if m == nil {
		return nil, fmt.Errorf("scenario %q has no model", name)
	}

	s := &Simulation{
		name:      name,
		model:     m,
		constants: make(map[string]float64),
		overrides: make(map[string]float64),
		points:    make(map[string][]model.Point),
		exprs:     make(map[string]*compiled),
		initials:  make(map[string]*compiled),
		start:     DefaultStart,
		stop:      DefaultStop,
		dt:        DefaultDT,
		memo:      make(map[string]map[int]float64),
		horizon:   -1,
		active:    make(map[string]bool),
	}
	s.funcs = functions(s.lookup)

	for _, eqName := range m.Names() {
		eq, _ := m.Equation(eqName)
		switch eq.Type {
		case model.TypeConstant:
			s.constants[eqName] = eq.Value
		case model.TypeLookup:
			s.points[eqName] = sortedPoints(eq.Points)
		case model.TypeConverter, model.TypeFlow:
			c, err := compile(eqName, eq.Expr)
			if err != nil {
				return nil, err
			}
			s.exprs[eqName] = c
		case model.TypeStock:
			c, err := compile(eqName, eq.Initial)
			if err != nil {
				return nil, err
			}
			s.initials[eqName] = c
			s.stocks = append(s.stocks, eqName)
		}
	}

	if err := s.checkReferences(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Simulation) checkReferences() error {
	check := func(eqName string, c *compiled) error {
		for _, ref := range c.refs {
			if isReserved(ref) {
				continue
			}
			eq, ok := s.model.Equation(ref)
			if !ok {
				return fmt.Errorf("equation %q references unknown name %q", eqName, ref)
			}
			if eq.Type == model.TypeLookup {
				return fmt.Errorf("equation %q uses lookup %q as a value; call lookup(%q, x)", eqName, ref, ref)
			}
		}
		return nil
	}
	for eqName, c := range s.exprs {
		if err := check(eqName, c); err != nil {
			return err
		}
	}
	for eqName, c := range s.initials {
		if err := check(eqName, c); err != nil {
			return err
		}
	}
	for _, stock := range s.stocks {
		eq, _ := s.model.Equation(stock)
		for _, flow := range append(append([]string(nil), eq.Inflows...), eq.Outflows...) {
			if !s.model.Has(flow) {
				return fmt.Errorf("stock %q references unknown flow %q", stock, flow)
			}
		}
	}
	return nil
}

// ChangeEquation overrides name with a constant value. Any equation kind
// may be pinned this way.
func (s *Simulation) ChangeEquation(name string, value float64) {
	s.overrides[name] = value
	s.invalidate()
}

// ChangePoints replaces the points of lookup name.
func (s *Simulation) ChangePoints(name string, points []model.Point) {
	s.points[name] = sortedPoints(points)
	s.invalidate()
}

// ChangeRunspecs sets the run bounds and discards all computed values.
func (s *Simulation) ChangeRunspecs(start, stop, dt float64) {
	s.start, s.stop, s.dt = start, stop, dt
	s.memo = make(map[string]map[int]float64)
	s.horizon = -1
}

// invalidate drops memoized values past the committed horizon.
func (s *Simulation) invalidate() {
	for _, byStep := range s.memo {
		for k := range byStep {
			if k > s.horizon {
				delete(byStep, k)
			}
		}
	}
}

// Start computes the requested equations over [Start, Until]. Unknown and
// lookup equations are omitted from the result.
func (s *Simulation) Start(ctx context.Context, opts engine.StartOptions) (*frame.Frame, error) {
	if s.dt <= 0 {
		return nil, fmt.Errorf("scenario %q: dt must be positive, got %v", s.name, s.dt)
	}

	from := 0
	until := s.step(s.stop)
	if opts.Start != nil {
		from = s.step(*opts.Start)
	}
	if opts.Until != nil {
		until = s.step(*opts.Until)
	}
	if from < 0 || until < from {
		return nil, fmt.Errorf("scenario %q: invalid window [%v, %v]", s.name, s.time(from), s.time(until))
	}

	names := s.columns(opts.Equations)

	// Every equation is computed up to until, in step order, so values at
	// or before the horizon are fixed before any later override.
	computed := s.columns(nil)
	for k := 0; k <= until; k++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, eqName := range computed {
			if _, err := s.value(eqName, k); err != nil {
				return nil, err
			}
		}
	}

	index := make([]float64, 0, until-from+1)
	for k := from; k <= until; k++ {
		index = append(index, s.time(k))
	}
	out := frame.New(index)
	for _, eqName := range names {
		col := make([]float64, 0, len(index))
		for k := from; k <= until; k++ {
			v, err := s.value(eqName, k)
			if err != nil {
				return nil, err
			}
			col = append(col, v)
		}
		if err := out.Set(eqName, col); err != nil {
			return nil, err
		}
	}

	if until > s.horizon {
		s.horizon = until
	}
	return out, nil
}

func (s *Simulation) columns(requested []string) []string {
	if len(requested) == 0 {
		requested = s.model.Names()
	}
	var names []string
	for _, eqName := range requested {
		eq, ok := s.model.Equation(eqName)
		if !ok || eq.Type == model.TypeLookup {
			continue
		}
		names = append(names, eqName)
	}
	return names
}

// step converts a time to its step number.
func (s *Simulation) step(t float64) int {
	return int(math.Round((t - s.start) / s.dt))
}

func (s *Simulation) time(k int) float64 {
	return s.start + float64(k)*s.dt
}

func (s *Simulation) value(eqName string, k int) (float64, error) {
	if v, ok := s.overrides[eqName]; ok {
		return s.finite(eqName, k, v)
	}
	if v, ok := s.constants[eqName]; ok {
		return s.finite(eqName, k, v)
	}
	if v, ok := s.memo[eqName][k]; ok {
		return v, nil
	}

	key := fmt.Sprintf("%s@%d", eqName, k)
	if s.active[key] {
		return 0, fmt.Errorf("circular reference through %q at t=%v", eqName, s.time(k))
	}
	s.active[key] = true
	defer delete(s.active, key)

	eq, ok := s.model.Equation(eqName)
	if !ok {
		return 0, fmt.Errorf("unknown equation %q", eqName)
	}

	var (
		v   float64
		err error
	)
	switch eq.Type {
	case model.TypeStock:
		v, err = s.integrate(eqName, eq, k)
	case model.TypeConverter, model.TypeFlow:
		v, err = s.eval(eqName, s.exprs[eqName], k)
	default:
		return 0, fmt.Errorf("equation %q of type %s has no value", eqName, eq.Type)
	}
	if err != nil {
		return 0, err
	}
	if _, err := s.finite(eqName, k, v); err != nil {
		return 0, err
	}

	if s.memo[eqName] == nil {
		s.memo[eqName] = make(map[int]float64)
	}
	s.memo[eqName][k] = v
	return v, nil
}

// finite rejects NaN and infinite values, which results cannot carry.
func (s *Simulation) finite(eqName string, k int, v float64) (float64, error) {
	switch {
	case math.IsNaN(v):
		return 0, fmt.Errorf("equation %q is not a number at t=%v", eqName, s.time(k))
	case math.IsInf(v, 0):
		return 0, fmt.Errorf("equation %q is infinite at t=%v", eqName, s.time(k))
	}
	return v, nil
}

func (s *Simulation) integrate(eqName string, eq model.Equation, k int) (float64, error) {
	if k == 0 {
		return s.eval(eqName, s.initials[eqName], 0)
	}
	prev, err := s.value(eqName, k-1)
	if err != nil {
		return 0, err
	}
	net := 0.0
	for _, flow := range eq.Inflows {
		v, err := s.value(flow, k-1)
		if err != nil {
			return 0, err
		}
		net += v
	}
	for _, flow := range eq.Outflows {
		v, err := s.value(flow, k-1)
		if err != nil {
			return 0, err
		}
		net -= v
	}
	return prev + s.dt*net, nil
}

func (s *Simulation) eval(eqName string, c *compiled, k int) (float64, error) {
	vars := map[string]cty.Value{
		varTime:      number(s.time(k)),
		varTimeAlias: number(s.time(k)),
		varDT:        number(s.dt),
	}
	for _, ref := range c.refs {
		if isReserved(ref) {
			continue
		}
		v, err := s.value(ref, k)
		if err != nil {
			return 0, err
		}
		vars[ref] = number(v)
	}
	return c.evaluate(eqName, vars, s.funcs)
}

func (s *Simulation) lookup(table string, x float64) (float64, error) {
	points, ok := s.points[table]
	if !ok {
		return 0, fmt.Errorf("unknown lookup %q", table)
	}
	return interpolate(points, x), nil
}

func number(f float64) cty.Value {
	return cty.NumberVal(new(big.Float).SetFloat64(f))
}
