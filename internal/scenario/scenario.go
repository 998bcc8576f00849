// Package scenario holds named override sets of a system dynamics model and
// the catalogs that hand them to the runner.
package scenario

import (
	"fmt"
	"sort"
	"sync"

	"github.com/nvandessel/sdrun/internal/engine"
	"github.com/nvandessel/sdrun/internal/frame"
	"github.com/nvandessel/sdrun/internal/model"
)

// Kind is the simulation family a scenario manager belongs to.
type Kind string

// KindSD selects system dynamics scenario managers.
const KindSD Kind = "sd"

// Runspecs are the run bounds of a scenario.
type Runspecs struct {
	Start float64 `yaml:"starttime" json:"starttime"`
	Stop  float64 `yaml:"stoptime" json:"stoptime"`
	DT    float64 `yaml:"dt" json:"dt"`
}

// DefaultRunspecs is used when neither the manager nor the scenario sets
// run bounds.
var DefaultRunspecs = Runspecs{Start: 0, Stop: 10, DT: 1}

// Validate checks that the bounds describe a runnable window.
func (r Runspecs) Validate() error {
	if r.DT <= 0 {
		return fmt.Errorf("dt must be positive, got %v", r.DT)
	}
	if r.Stop < r.Start {
		return fmt.Errorf("stoptime %v is before starttime %v", r.Stop, r.Start)
	}
	return nil
}

// Scenario is one named configuration of a model within a manager.
type Scenario struct {
	Name      string
	Manager   string
	Model     *model.Model
	Constants map[string]float64
	Points    map[string][]model.Point
	Runspecs  Runspecs

	// Result is the table of the most recent run, nil before the first.
	Result *frame.Frame

	mu  sync.Mutex
	sim engine.Handle
}

// Configure applies the stored constants, then points, then run bounds.
func (s *Scenario) Configure(h engine.Handle) {
	for _, name := range sortedKeys(s.Constants) {
		h.ChangeEquation(name, s.Constants[name])
	}
	for _, name := range sortedKeys(s.Points) {
		h.ChangePoints(name, s.Points[name])
	}
	h.ChangeRunspecs(s.Runspecs.Start, s.Runspecs.Stop, s.Runspecs.DT)
}

// EnsureSimulation returns the scenario's owned handle, creating and
// configuring it on first use. created reports whether this call built it.
func (s *Scenario) EnsureSimulation(factory engine.Factory) (h engine.Handle, created bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureLocked(factory)
}

// UseSimulation runs fn against the owned handle while holding the
// scenario lock, so concurrent callers never interleave engine mutations.
func (s *Scenario) UseSimulation(factory engine.Factory, fn func(h engine.Handle, created bool) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, created, err := s.ensureLocked(factory)
	if err != nil {
		return err
	}
	return fn(h, created)
}

func (s *Scenario) ensureLocked(factory engine.Factory) (engine.Handle, bool, error) {
	if s.sim != nil {
		return s.sim, false, nil
	}
	h, err := factory(s.Model, s.Name)
	if err != nil {
		return nil, false, fmt.Errorf("creating simulation for %s/%s: %w", s.Manager, s.Name, err)
	}
	s.Configure(h)
	s.sim = h
	return h, true, nil
}

// StoreResult replaces Result under the scenario lock.
func (s *Scenario) StoreResult(f *frame.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Result = f
}

// HasSimulation reports whether the owned handle exists.
func (s *Scenario) HasSimulation() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sim != nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
