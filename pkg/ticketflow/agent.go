package ticketflow

import (
	"context"
	"log/slog"

	"github.com/randalmurphal/ticketflow/pkg/ticketflow/checkpoint"
	"github.com/randalmurphal/ticketflow/pkg/ticketflow/llm"
	"github.com/randalmurphal/ticketflow/pkg/ticketflow/tickets"
)

// FeedbackKey is the artifact key rejection feedback is recorded under.
// Each rejection adds a new version to the key's lineage.
const FeedbackKey = "feedback"

// Agent performs one unit of work in a stage and produces one artifact.
//
// Execute must be side-effect safe under re-delivery: the engine skips
// an agent whose artifact is already present in accumulated state, but
// a crash between the agent finishing and the checkpoint saving means
// Execute can run more than once for the same stage.
type Agent interface {
	// Name identifies the agent in logs and artifact provenance.
	Name() string

	// ArtifactKey is the state key the agent's output is recorded under.
	// Keys must be unique across a graph's agents.
	ArtifactKey() string

	// Execute produces the artifact value. Blocking work must observe ctx.
	Execute(ctx context.Context, run *AgentContext) (string, error)
}

// AgentFunc adapts a function to the Agent interface.
func AgentFunc(name, key string, fn func(ctx context.Context, run *AgentContext) (string, error)) Agent {
	return &funcAgent{name: name, key: key, fn: fn}
}

type funcAgent struct {
	name string
	key  string
	fn   func(ctx context.Context, run *AgentContext) (string, error)
}

func (a *funcAgent) Name() string        { return a.name }
func (a *funcAgent) ArtifactKey() string { return a.key }
func (a *funcAgent) Execute(ctx context.Context, run *AgentContext) (string, error) {
	return a.fn(ctx, run)
}

// AgentContext is what an agent sees of the run: the ticket, read access
// to accumulated state, and the run's LLM client and logger. Agents
// write only through their Execute return value; the engine records it
// under the agent's artifact key.
type AgentContext struct {
	ticket *tickets.Ticket
	cp     *checkpoint.Checkpoint
	llm    llm.Client
	logger *slog.Logger
}

// Ticket returns the ticket the run is executing for.
func (a *AgentContext) Ticket() *tickets.Ticket {
	return a.ticket
}

// Artifact returns the current value of an artifact produced by an
// earlier stage.
func (a *AgentContext) Artifact(key string) (string, bool) {
	art, ok := a.cp.Artifact(key)
	if !ok {
		return "", false
	}
	return art.Value, true
}

// Artifacts returns the current value of every accumulated artifact,
// keyed by name. Useful for prompt variable maps.
func (a *AgentContext) Artifacts() map[string]string {
	out := make(map[string]string, len(a.cp.State))
	for key, art := range a.cp.State {
		out[key] = art.Value
	}
	return out
}

// Feedback returns the reviewer feedback for the current revisit round.
// It is empty unless the run re-entered a stage after a rejection.
func (a *AgentContext) Feedback() string {
	art, ok := a.cp.Artifact(FeedbackKey)
	if !ok || art.Revision != a.cp.Revision {
		return ""
	}
	return art.Value
}

// LLM returns the run's language model client. Nil when the run was
// started without one; agents that need a model must check.
func (a *AgentContext) LLM() llm.Client {
	return a.llm
}

// Logger returns the run's logger, enriched with ticket and graph
// attributes. Never nil.
func (a *AgentContext) Logger() *slog.Logger {
	return a.logger
}
