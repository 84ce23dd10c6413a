package serverstate

import (
	"sort"
	"sync"
)

// Element is one named section of the state report.
type Element struct {
	ID   string
	Data func() any
}

// Registry collects the sections of the state report.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Element
}

// NewRegistry returns a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Element)}
}

// Add registers a state element, replacing one with the same ID.
func (r *Registry) Add(e Element) {
	r.mu.Lock()
	r.entries[e.ID] = e
	r.mu.Unlock()
}

// Elements returns all registered state elements ordered by ID.
func (r *Registry) Elements() []Element {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]Element, 0, len(r.entries))
	for _, e := range r.entries {
		res = append(res, e)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// Collect evaluates every element.
func (r *Registry) Collect() map[string]any {
	out := map[string]any{}
	for _, e := range r.Elements() {
		if e.Data != nil {
			out[e.ID] = e.Data()
		}
	}
	return out
}
