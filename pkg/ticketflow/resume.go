package ticketflow

import (
	"context"
	"fmt"

	"github.com/randalmurphal/ticketflow/pkg/ticketflow/checkpoint"
)

// Resume applies an external decision signal to a suspended run and
// continues execution.
//
// The signal type is validated against the suspension point's expected
// signal: approval advances past the suspension point, rejection
// re-enters the suspension's revisit target with the reviewer's
// feedback recorded as a new version on the feedback artifact lineage.
// Any other signal type fails with ErrUnexpectedSignal and leaves the
// checkpoint untouched.
//
// Like Run, re-delivery is safe: until the first post-resume save
// succeeds the checkpoint stays suspended, so a crashed resume is
// simply applied again.
func (cg *CompiledGraph) Resume(ctx context.Context, cp *checkpoint.Checkpoint, sig Signal, opts ...RunOption) (*Result, error) {
	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.store == nil {
		return nil, ErrStoreRequired
	}
	if cp.GraphName != cg.name {
		return nil, fmt.Errorf("%w: checkpoint %s, graph %s", ErrGraphMismatch, cp.GraphName, cg.name)
	}
	if cp.Status.Terminal() {
		return nil, ErrRunTerminal
	}
	if cp.Status != checkpoint.StatusSuspended {
		return nil, ErrNotSuspended
	}

	idx, ok := cg.index[cp.Stage]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStageNotFound, cp.Stage)
	}
	st := cg.stages[idx]
	if st.kind != stageSuspension {
		return nil, fmt.Errorf("%w: stage %s is not a suspension point", ErrNotSuspended, cp.Stage)
	}

	switch sig.Type {
	case st.expectedSignal:
		cp.ClearSuspension()
		cp.PutArtifact(st.name+".decision", sig.Type, "reviewer")
		return cg.runFrom(ctx, cp, idx+1, &cfg)

	case SignalRejection:
		cp.ClearSuspension()
		cp.Revisit(st.revisitTarget)
		cp.PutArtifact(FeedbackKey, sig.Feedback, "reviewer")
		return cg.runFrom(ctx, cp, cg.index[st.revisitTarget], &cfg)

	default:
		return nil, fmt.Errorf("%w: got %q, suspension %s expects %q or %q",
			ErrUnexpectedSignal, sig.Type, st.name, st.expectedSignal, SignalRejection)
	}
}
