// Package ticketflow executes ticket lifecycle workflows as checkpointed
// stage graphs.
//
// A Graph is an ordered list of named stages. Each stage is a single
// Agent, a parallel set of Agents joined by a barrier, or a suspension
// point that parks the run until an external approval or rejection
// signal arrives. Build a graph with NewGraph, then Compile it into an
// immutable CompiledGraph that is safe to share across goroutines.
//
// Execution is driven from a checkpoint: Run picks up at the
// checkpoint's stage, persists state after every stage boundary, and
// skips stages whose artifacts are already present so re-delivered work
// items never invoke an agent twice. Resume applies an external signal
// to a suspended run; approval advances past the suspension point and
// rejection re-enters the stage the suspension designates, with the
// reviewer's feedback added to accumulated state.
//
// Example:
//
//	graph, err := ticketflow.NewGraph("planning").
//	    AddParallelStage("plan", storiesAgent, apiAgent).
//	    AddSuspension("plan_review_gate", "awaiting plan approval", "plan").
//	    TransitionTo("implementation").
//	    Compile()
//	if err != nil {
//	    return err
//	}
//
//	cp := checkpoint.New(ticket.ID, ticket.TenantID, "planning", "")
//	result, err := graph.Run(ctx, cp,
//	    ticketflow.WithStore(store),
//	    ticketflow.WithTicket(ticket),
//	    ticketflow.WithLLM(client),
//	)
package ticketflow
