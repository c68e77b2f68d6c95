package candidates

import (
	"fmt"
	"sort"

	"BillWatch/internal/ports"
)

// Registry keeps a mapping from strategy names to their implementations.
type Registry struct {
	strategies map[string]ports.CandidateStrategy
}

// NewRegistry builds a registry holding the given strategies.
func NewRegistry(strategies ...ports.CandidateStrategy) *Registry {
	r := &Registry{strategies: map[string]ports.CandidateStrategy{}}
	for _, s := range strategies {
		r.Register(s)
	}
	return r
}

// Register adds or replaces a strategy implementation.
func (r *Registry) Register(strategy ports.CandidateStrategy) {
	if r.strategies == nil {
		r.strategies = map[string]ports.CandidateStrategy{}
	}
	r.strategies[strategy.Name()] = strategy
}

// Resolve returns a strategy by name or an error if it is absent.
func (r *Registry) Resolve(name string) (ports.CandidateStrategy, error) {
	if strategy, ok := r.strategies[name]; ok {
		return strategy, nil
	}
	return nil, fmt.Errorf("candidate strategy %q is not registered (known: %v)", name, r.Names())
}

// Names lists the registered strategies in lexical order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// collector accumulates identifiers in first-seen order.
type collector struct {
	seen map[string]struct{}
	ids  []string
}

func newCollector() *collector {
	return &collector{seen: map[string]struct{}{}}
}

func (c *collector) add(id string) bool {
	if id == "" {
		return false
	}
	if _, ok := c.seen[id]; ok {
		return false
	}
	c.seen[id] = struct{}{}
	c.ids = append(c.ids, id)
	return true
}
