package ticketflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/randalmurphal/ticketflow/pkg/ticketflow/checkpoint"
	"github.com/randalmurphal/ticketflow/pkg/ticketflow/observability"
)

// Run executes the graph from the checkpoint's current stage until it
// completes, suspends, or a stage fails.
//
// The checkpoint is saved after every stage boundary, so a re-delivered
// work item resumes where the last save left off and stages whose
// artifacts are already present are skipped without invoking their
// agents.
//
// The error return carries engine-level failures: missing store,
// checkpoint save errors (including checkpoint.ErrConcurrencyConflict),
// and context cancellation. Agent failures are not errors here; they
// come back as a Result with OutcomeFailed and the cause in Result.Err,
// recorded on the checkpoint for retry accounting.
func (cg *CompiledGraph) Run(ctx context.Context, cp *checkpoint.Checkpoint, opts ...RunOption) (*Result, error) {
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
	if cp.Status == checkpoint.StatusSuspended {
		return nil, ErrSuspended
	}

	start, err := cg.stageIndex(cp.Stage)
	if err != nil {
		return nil, err
	}
	return cg.runFrom(ctx, cp, start, &cfg)
}

// stageIndex resolves a checkpoint stage name to its position.
// An empty name means the first stage.
func (cg *CompiledGraph) stageIndex(name string) (int, error) {
	if name == "" {
		return 0, nil
	}
	idx, ok := cg.index[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrStageNotFound, name)
	}
	return idx, nil
}

// runFrom drives the stage loop from position start.
func (cg *CompiledGraph) runFrom(ctx context.Context, cp *checkpoint.Checkpoint, start int, cfg *runConfig) (result *Result, runErr error) {
	elapsed := observability.TimedOperation()
	observability.LogGraphStart(cfg.logger, cp.TicketID, cg.name, cp.Stage)

	execCtx := ctx
	var graphSpan trace.Span
	if cfg.tracing {
		execCtx, graphSpan = cfg.spans.StartGraphSpan(ctx, cg.name, cp.TicketID)
		defer func() {
			cfg.spans.EndSpanWithError(graphSpan, runErr)
		}()
	}

	finish := func(status string) {
		cfg.metrics.RecordGraphRun(ctx, cg.name, status, time.Duration(elapsed())*time.Millisecond)
		observability.LogGraphOutcome(cfg.logger, cp.TicketID, cg.name, status, elapsed())
	}

	// A resume can land past the last stage when the suspension point
	// closes the graph; completion still has to be persisted.
	if start >= len(cg.stages) && cp.Status != checkpoint.StatusCompleted {
		cp.Status = checkpoint.StatusCompleted
		if err := cg.save(ctx, cp, cfg); err != nil {
			return nil, err
		}
	}

	for idx := start; idx < len(cg.stages); idx++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		st := cg.stages[idx]
		cp.Stage = st.name

		if st.kind == stageSuspension {
			cp.Suspend(st.name, st.reason, st.expectedSignal)
			if err := cg.save(ctx, cp, cfg); err != nil {
				return nil, err
			}
			observability.LogSuspension(cfg.logger, cp.TicketID, st.name, st.expectedSignal)
			finish(string(OutcomeSuspended))
			return &Result{
				Outcome:    OutcomeSuspended,
				Checkpoint: cp,
				Suspension: &Suspension{
					Stage:          st.name,
					Reason:         st.reason,
					ExpectedSignal: st.expectedSignal,
				},
			}, nil
		}

		if err := cg.runStage(execCtx, cp, st, cfg); err != nil {
			cp.RecordFailure(st.name, err)
			if saveErr := cg.save(ctx, cp, cfg); saveErr != nil {
				return nil, saveErr
			}
			finish(string(OutcomeFailed))
			return &Result{Outcome: OutcomeFailed, Checkpoint: cp, Err: err}, nil
		}

		if idx+1 < len(cg.stages) {
			cp.Stage = cg.stages[idx+1].name
		} else {
			cp.Status = checkpoint.StatusCompleted
		}
		if err := cg.save(ctx, cp, cfg); err != nil {
			return nil, err
		}
	}

	finish(string(OutcomeCompleted))
	return &Result{
		Outcome:    OutcomeCompleted,
		Checkpoint: cp,
		Transition: cg.transition,
	}, nil
}

// runStage executes one agent stage, honoring the idempotency skip and
// persisting partial artifacts from parallel sets.
func (cg *CompiledGraph) runStage(ctx context.Context, cp *checkpoint.Checkpoint, st stage, cfg *runConfig) error {
	logger := observability.EnrichLogger(cfg.logger, cp.TicketID, cg.name, st.name)

	pending := make([]Agent, 0, len(st.agents))
	for _, a := range st.agents {
		if !cp.HasCurrentArtifact(a.ArtifactKey()) {
			pending = append(pending, a)
		}
	}
	if len(pending) == 0 {
		observability.LogStageSkipped(logger, st.name)
		return nil
	}

	stageCtx := ctx
	var stageSpan trace.Span
	if cfg.tracing {
		stageCtx, stageSpan = cfg.spans.StartStageSpan(ctx, st.name)
	}

	observability.LogStageStart(logger, st.name)
	elapsed := observability.TimedOperation()

	run := &AgentContext{
		ticket: cfg.ticket,
		cp:     cp,
		llm:    cfg.client,
		logger: agentLogger(logger),
	}

	var err error
	if st.kind == stageParallel && len(pending) > 1 {
		err = cg.runParallel(stageCtx, cp, st, pending, run)
	} else {
		for _, a := range pending {
			var value string
			value, err = executeAgent(stageCtx, st.name, a, run)
			if err != nil {
				break
			}
			cp.PutArtifact(a.ArtifactKey(), value, a.Name())
		}
	}

	cfg.metrics.RecordStageExecution(stageCtx, cg.name, st.name, time.Duration(elapsed())*time.Millisecond, err)
	if cfg.tracing {
		cfg.spans.EndSpanWithError(stageSpan, err)
	}

	if err != nil {
		observability.LogStageError(logger, st.name, err)
		return err
	}
	observability.LogStageComplete(logger, st.name, elapsed())
	return nil
}

// runParallel executes a parallel agent set with a join barrier.
// Artifacts from agents that succeed are recorded even when a sibling
// fails, so a retry re-runs only the failed agents.
func (cg *CompiledGraph) runParallel(ctx context.Context, cp *checkpoint.Checkpoint, st stage, agents []Agent, run *AgentContext) error {
	type branch struct {
		value string
		err   error
	}

	results := make([]branch, len(agents))
	var wg sync.WaitGroup
	for i, a := range agents {
		wg.Add(1)
		go func(i int, a Agent) {
			defer wg.Done()
			value, err := executeAgent(ctx, st.name, a, run)
			results[i] = branch{value: value, err: err}
		}(i, a)
	}
	wg.Wait()

	var errs []error
	for i, a := range agents {
		if results[i].err != nil {
			errs = append(errs, results[i].err)
			continue
		}
		cp.PutArtifact(a.ArtifactKey(), results[i].value, a.Name())
	}
	return errors.Join(errs...)
}

// executeAgent invokes one agent with panic recovery.
func executeAgent(ctx context.Context, stageName string, a Agent, run *AgentContext) (value string, err error) {
	defer func() {
		if r := recover(); r != nil {
			value = ""
			err = &PanicError{
				Stage: stageName,
				Agent: a.Name(),
				Value: r,
				Stack: string(debug.Stack()),
			}
		}
	}()

	value, err = a.Execute(ctx, run)
	if err != nil {
		return "", &StageError{Stage: stageName, Agent: a.Name(), Err: err}
	}
	return value, nil
}

// save persists the checkpoint, logging conflicts for diagnosis.
func (cg *CompiledGraph) save(ctx context.Context, cp *checkpoint.Checkpoint, cfg *runConfig) error {
	if err := cfg.store.Save(ctx, cp); err != nil {
		if errors.Is(err, checkpoint.ErrConcurrencyConflict) {
			observability.LogCheckpointConflict(cfg.logger, cp.TicketID)
		}
		return err
	}
	observability.LogCheckpointSave(cfg.logger, cp.TicketID, cp.Stage, cp.Version)
	return nil
}

// agentLogger never hands agents a nil logger.
func agentLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
