package ticketflow

import (
	"github.com/randalmurphal/ticketflow/pkg/ticketflow/checkpoint"
)

// Decision signal types accepted by suspension points.
const (
	SignalApproval  = "approval"
	SignalRejection = "rejection"
)

// Signal is an external decision delivered to a suspended run.
type Signal struct {
	// Type is SignalApproval or SignalRejection.
	Type string

	// Feedback is the reviewer's text, meaningful on rejection.
	Feedback string
}

// Outcome is how a Run or Resume call ended.
type Outcome string

// Run outcomes.
const (
	// OutcomeCompleted means the graph ran through its last stage.
	OutcomeCompleted Outcome = "completed"

	// OutcomeSuspended means the run parked at a suspension point and
	// only an external signal advances it.
	OutcomeSuspended Outcome = "suspended"

	// OutcomeFailed means a stage failed; Result.Err carries the cause
	// and the checkpoint records it for retry accounting.
	OutcomeFailed Outcome = "failed"
)

// Suspension describes where a run is parked and what wakes it.
type Suspension struct {
	Stage          string
	Reason         string
	ExpectedSignal string
}

// Result reports how far a Run or Resume call took the graph.
type Result struct {
	Outcome Outcome

	// Checkpoint is the run's state as last persisted.
	Checkpoint *checkpoint.Checkpoint

	// Transition is the next graph to start, set when Outcome is
	// OutcomeCompleted and the graph declares one.
	Transition string

	// Suspension is set when Outcome is OutcomeSuspended.
	Suspension *Suspension

	// Err is the stage failure when Outcome is OutcomeFailed.
	Err error
}
