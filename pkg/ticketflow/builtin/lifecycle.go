package builtin

import "github.com/randalmurphal/ticketflow/pkg/ticketflow/tickets"

// StagePolicy maps a graph's execution states onto ticket lifecycle
// stages.
type StagePolicy struct {
	// Running is the ticket stage while the graph executes.
	Running tickets.Stage

	// Suspended is the ticket stage while the graph waits at a
	// suspension point. Zero when the graph has none.
	Suspended tickets.Stage

	// Completed is the ticket stage when the graph completes without a
	// transition, ending the workflow.
	Completed tickets.Stage
}

// StagePolicies returns the lifecycle stage mapping for the built-in
// graphs. The orchestrator consults it on every graph outcome.
func StagePolicies() map[string]StagePolicy {
	return map[string]StagePolicy{
		GraphRefinement: {
			Running: tickets.StageRefining,
		},
		GraphPlanning: {
			Running:   tickets.StagePlanning,
			Suspended: tickets.StageAwaitingPlanApproval,
		},
		GraphImplementation: {
			Running: tickets.StageImplementing,
		},
		GraphCodeReview: {
			Running:   tickets.StageAwaitingCodeReview,
			Suspended: tickets.StageAwaitingCodeReview,
			Completed: tickets.StageApproved,
		},
	}
}
