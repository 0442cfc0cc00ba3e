package ticketflow

import (
	"errors"
	"fmt"
)

// Sentinel errors for graph building and compilation.
var (
	// ErrNoStages indicates Compile() was called on a graph with no stages.
	ErrNoStages = errors.New("graph has no stages")

	// ErrStageNotFound indicates a reference to a stage that does not exist.
	ErrStageNotFound = errors.New("stage not found")

	// ErrBadRevisitTarget indicates a suspension's revisit target is not an
	// agent stage earlier in the graph.
	ErrBadRevisitTarget = errors.New("revisit target must be an earlier agent stage")

	// ErrDuplicateArtifactKey indicates two agents claim the same artifact key.
	ErrDuplicateArtifactKey = errors.New("duplicate artifact key")
)

// Sentinel errors for execution and resume.
var (
	// ErrStoreRequired indicates Run or Resume was called without WithStore.
	ErrStoreRequired = errors.New("checkpoint store required")

	// ErrRunTerminal indicates the checkpoint is already in a terminal status.
	ErrRunTerminal = errors.New("graph run already terminal")

	// ErrNotSuspended indicates Resume was called on a run that is not
	// waiting at a suspension point.
	ErrNotSuspended = errors.New("graph run is not suspended")

	// ErrSuspended indicates Run was called on a suspended checkpoint;
	// only an external signal advances it.
	ErrSuspended = errors.New("graph run is suspended awaiting a signal")

	// ErrUnexpectedSignal indicates the signal type does not match what the
	// suspension point expects.
	ErrUnexpectedSignal = errors.New("unexpected signal type")

	// ErrGraphMismatch indicates the checkpoint belongs to a different graph.
	ErrGraphMismatch = errors.New("checkpoint graph does not match")
)

// StageError wraps an agent failure with stage context.
type StageError struct {
	// Stage is the stage that failed.
	Stage string
	// Agent is the agent whose Execute returned the error.
	Agent string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: agent %s: %v", e.Stage, e.Agent, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *StageError) Unwrap() error {
	return e.Err
}

// PanicError captures a panic raised inside an agent.
type PanicError struct {
	// Stage is the stage that was executing.
	Stage string
	// Agent is the agent that panicked.
	Agent string
	// Value is the value passed to panic().
	Value any
	// Stack is the stack trace at the point of panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("stage %s: agent %s panicked: %v", e.Stage, e.Agent, e.Value)
}
