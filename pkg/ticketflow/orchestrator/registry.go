package orchestrator

import (
	"fmt"
	"sync"

	"github.com/randalmurphal/ticketflow/pkg/ticketflow"
	"github.com/randalmurphal/ticketflow/pkg/ticketflow/tickets"
)

// Entry binds a compiled graph to its ticket lifecycle stages.
type Entry struct {
	Graph *ticketflow.CompiledGraph

	// Running is the ticket stage while the graph executes.
	Running tickets.Stage

	// Suspended is the ticket stage while the graph waits at a
	// suspension point.
	Suspended tickets.Stage

	// Completed is the ticket stage when the graph completes without a
	// transition, ending the workflow.
	Completed tickets.Stage
}

// Registry resolves graph names from work item payloads to entries.
// Safe for concurrent use after registration.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewRegistry creates an empty graph registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Register adds a graph entry under the graph's own name.
// Panics on nil graphs or duplicate names.
func (r *Registry) Register(e Entry) {
	if e.Graph == nil {
		panic("orchestrator: entry graph cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	name := e.Graph.Name()
	if _, exists := r.entries[name]; exists {
		panic(fmt.Sprintf("orchestrator: duplicate graph: %s", name))
	}
	r.entries[name] = e
}

// Get resolves a graph name.
func (r *Registry) Get(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}
