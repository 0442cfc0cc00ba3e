package ticketflow

import (
	"errors"
	"fmt"
	"strings"
)

// stageKind discriminates the stage union.
type stageKind int

const (
	stageAgent stageKind = iota
	stageParallel
	stageSuspension
)

// stage is one step in a graph's ordered stage list.
type stage struct {
	name   string
	kind   stageKind
	agents []Agent

	// Suspension point fields.
	reason         string
	expectedSignal string
	revisitTarget  string
}

// Graph is a mutable builder for a ticket workflow.
// Use NewGraph to create one, chain AddStage, AddParallelStage,
// AddSuspension, and TransitionTo, then call Compile() to produce an
// immutable CompiledGraph that can be safely shared.
//
// Graph is NOT thread-safe during building; construct it from a single
// goroutine.
type Graph struct {
	name       string
	stages     []stage
	transition string
}

// NewGraph creates a builder for a graph with the given name.
// Panics if name is empty.
func NewGraph(name string) *Graph {
	if name == "" {
		panic("ticketflow: graph name cannot be empty")
	}
	return &Graph{name: name}
}

// AddStage appends a stage executing a single agent.
// Returns the graph for method chaining.
//
// Panics if:
//   - name is empty or contains whitespace
//   - name already exists in the graph
//   - agent is nil
func (g *Graph) AddStage(name string, agent Agent) *Graph {
	g.validateStageName(name)
	if agent == nil {
		panic("ticketflow: agent cannot be nil")
	}

	g.stages = append(g.stages, stage{
		name:   name,
		kind:   stageAgent,
		agents: []Agent{agent},
	})
	return g
}

// AddParallelStage appends a stage that runs all agents concurrently
// and joins before the next stage. Artifacts from agents that succeed
// are persisted even when a sibling fails, so a retry re-runs only the
// failed agents.
// Returns the graph for method chaining.
//
// Panics on the same conditions as AddStage, and if agents is empty.
func (g *Graph) AddParallelStage(name string, agents ...Agent) *Graph {
	g.validateStageName(name)
	if len(agents) == 0 {
		panic("ticketflow: parallel stage needs at least one agent")
	}
	for _, a := range agents {
		if a == nil {
			panic("ticketflow: agent cannot be nil")
		}
	}

	g.stages = append(g.stages, stage{
		name:   name,
		kind:   stageParallel,
		agents: agents,
	})
	return g
}

// AddSuspension appends a suspension point. Execution parks there until
// an external decision signal arrives: approval advances to the next
// stage, rejection re-enters revisitTarget with the reviewer's feedback
// in state. revisitTarget must name an earlier agent stage; that is
// validated at Compile() time.
// Returns the graph for method chaining.
func (g *Graph) AddSuspension(name, reason, revisitTarget string) *Graph {
	g.validateStageName(name)

	g.stages = append(g.stages, stage{
		name:           name,
		kind:           stageSuspension,
		reason:         reason,
		expectedSignal: SignalApproval,
		revisitTarget:  revisitTarget,
	})
	return g
}

// TransitionTo names the graph the orchestrator starts when this one
// completes. An empty transition ends the ticket's workflow.
// Returns the graph for method chaining.
func (g *Graph) TransitionTo(next string) *Graph {
	g.transition = next
	return g
}

func (g *Graph) validateStageName(name string) {
	if name == "" {
		panic("ticketflow: stage name cannot be empty")
	}
	if strings.ContainsAny(name, " \t\n\r") {
		panic("ticketflow: stage name cannot contain whitespace")
	}
	for _, s := range g.stages {
		if s.name == name {
			panic(fmt.Sprintf("ticketflow: duplicate stage name: %s", name))
		}
	}
}

// Compile validates the graph and creates an executable CompiledGraph.
// Returns an error if validation fails. Multiple errors are joined.
//
// Validation checks:
//  1. The graph has at least one stage.
//  2. Every suspension's revisit target names an agent stage that
//     appears before the suspension point.
//  3. No two agents claim the same artifact key.
func (g *Graph) Compile() (*CompiledGraph, error) {
	var errs []error

	if len(g.stages) == 0 {
		errs = append(errs, ErrNoStages)
	}

	index := make(map[string]int, len(g.stages))
	for i, s := range g.stages {
		index[s.name] = i
	}

	for i, s := range g.stages {
		if s.kind != stageSuspension {
			continue
		}
		target, ok := index[s.revisitTarget]
		if !ok {
			errs = append(errs, fmt.Errorf("%w: suspension %s revisits '%s'", ErrStageNotFound, s.name, s.revisitTarget))
			continue
		}
		if target >= i || g.stages[target].kind == stageSuspension {
			errs = append(errs, fmt.Errorf("%w: suspension %s revisits '%s'", ErrBadRevisitTarget, s.name, s.revisitTarget))
		}
	}

	keys := make(map[string]string)
	for _, s := range g.stages {
		for _, a := range s.agents {
			key := a.ArtifactKey()
			if prev, taken := keys[key]; taken {
				errs = append(errs, fmt.Errorf("%w: '%s' claimed by %s and %s", ErrDuplicateArtifactKey, key, prev, a.Name()))
				continue
			}
			keys[key] = a.Name()
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	stages := make([]stage, len(g.stages))
	copy(stages, g.stages)

	return &CompiledGraph{
		name:       g.name,
		stages:     stages,
		index:      index,
		transition: g.transition,
	}, nil
}

// MustCompile is like Compile but panics on error. For graph literals
// registered at startup.
func (g *Graph) MustCompile() *CompiledGraph {
	cg, err := g.Compile()
	if err != nil {
		panic(fmt.Sprintf("ticketflow: compile graph %s: %v", g.name, err))
	}
	return cg
}

// CompiledGraph is an immutable, executable workflow graph.
// Safe for concurrent use.
type CompiledGraph struct {
	name       string
	stages     []stage
	index      map[string]int
	transition string
}

// Name returns the graph's name.
func (cg *CompiledGraph) Name() string { return cg.name }

// Transition returns the graph started after this one completes.
// Empty means the workflow ends here.
func (cg *CompiledGraph) Transition() string { return cg.transition }

// Stages returns the ordered stage names.
func (cg *CompiledGraph) Stages() []string {
	out := make([]string, len(cg.stages))
	for i, s := range cg.stages {
		out[i] = s.name
	}
	return out
}
