package scenario

import (
	"fmt"
	"slices"
	"sync"
)

// Catalog resolves manager and scenario filters to scenarios. Empty filters
// match everything; an empty kind matches every manager type. Misses are
// reported by returning fewer scenarios, never as errors.
type Catalog interface {
	GetScenarios(managers, scenarios []string, kind Kind) []*Scenario
}

// MemoryCatalog keeps scenarios in insertion order.
type MemoryCatalog struct {
	mu        sync.RWMutex
	managers  []string
	kinds     map[string]Kind
	scenarios map[string][]*Scenario
}

var _ Catalog = (*MemoryCatalog)(nil)

// NewMemoryCatalog creates an empty catalog.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		kinds:     make(map[string]Kind),
		scenarios: make(map[string][]*Scenario),
	}
}

// Add registers scenarios under their Manager with the given kind. A
// scenario name may appear only once per manager.
func (c *MemoryCatalog) Add(kind Kind, scenarios ...*Scenario) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, s := range scenarios {
		if s.Manager == "" || s.Name == "" {
			return fmt.Errorf("scenario needs a manager and a name")
		}
		existing, ok := c.kinds[s.Manager]
		if !ok {
			c.managers = append(c.managers, s.Manager)
			c.kinds[s.Manager] = kind
		} else if existing != kind {
			return fmt.Errorf("manager %q is %q, cannot add %q scenario", s.Manager, existing, kind)
		}
		for _, other := range c.scenarios[s.Manager] {
			if other.Name == s.Name {
				return fmt.Errorf("duplicate scenario %q in manager %q", s.Name, s.Manager)
			}
		}
		c.scenarios[s.Manager] = append(c.scenarios[s.Manager], s)
	}
	return nil
}

// GetScenarios implements Catalog.
func (c *MemoryCatalog) GetScenarios(managers, scenarios []string, kind Kind) []*Scenario {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []*Scenario
	for _, mgr := range c.managers {
		if len(managers) > 0 && !slices.Contains(managers, mgr) {
			continue
		}
		if kind != "" && c.kinds[mgr] != kind {
			continue
		}
		for _, s := range c.scenarios[mgr] {
			if len(scenarios) > 0 && !slices.Contains(scenarios, s.Name) {
				continue
			}
			out = append(out, s)
		}
	}
	return out
}

// Managers returns manager names in insertion order.
func (c *MemoryCatalog) Managers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.managers)
}

// Kind returns the type of manager and whether it exists.
func (c *MemoryCatalog) Kind(manager string) (Kind, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	k, ok := c.kinds[manager]
	return k, ok
}

// Len returns the total number of scenarios.
func (c *MemoryCatalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, list := range c.scenarios {
		n += len(list)
	}
	return n
}
