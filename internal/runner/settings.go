package runner

import (
	"sort"

	"github.com/nvandessel/sdrun/internal/engine"
	"github.com/nvandessel/sdrun/internal/model"
)

// Override is a step-scoped change to one scenario. Nil maps mean "no
// override" for that category.
type Override struct {
	Constants map[string]float64       `yaml:"constants,omitempty" json:"constants,omitempty"`
	Points    map[string][]model.Point `yaml:"points,omitempty" json:"points,omitempty"`
}

// Apply writes constants, then points, onto h.
func (o Override) Apply(h engine.Handle) {
	for _, name := range sortedKeys(o.Constants) {
		h.ChangeEquation(name, o.Constants[name])
	}
	for _, name := range sortedKeys(o.Points) {
		h.ChangePoints(name, o.Points[name])
	}
}

// Empty reports whether the override changes nothing.
func (o Override) Empty() bool {
	return len(o.Constants) == 0 && len(o.Points) == 0
}

// Settings maps manager -> scenario -> Override. Settings are applied for
// a single step and never stored on the scenario.
type Settings map[string]map[string]Override

// Lookup returns the override for (manager, scenario). Safe on nil.
func (s Settings) Lookup(manager, scenario string) (Override, bool) {
	byScenario, ok := s[manager]
	if !ok {
		return Override{}, false
	}
	o, ok := byScenario[scenario]
	return o, ok
}

// Set stores o for (manager, scenario), allocating as needed.
func (s Settings) Set(manager, scenario string, o Override) {
	if s[manager] == nil {
		s[manager] = make(map[string]Override)
	}
	s[manager][scenario] = o
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
