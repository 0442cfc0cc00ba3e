package ticketflow_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/ticketflow/pkg/ticketflow"
	"github.com/randalmurphal/ticketflow/pkg/ticketflow/checkpoint"
	"github.com/randalmurphal/ticketflow/pkg/ticketflow/tickets"
)

// countingAgent records how many times Execute ran and can be scripted
// to fail its first n invocations.
type countingAgent struct {
	name     string
	key      string
	calls    atomic.Int32
	failures int32
	err      error
	value    string
}

func (a *countingAgent) Name() string        { return a.name }
func (a *countingAgent) ArtifactKey() string { return a.key }

func (a *countingAgent) Execute(_ context.Context, _ *ticketflow.AgentContext) (string, error) {
	n := a.calls.Add(1)
	if n <= a.failures {
		return "", a.err
	}
	if a.value != "" {
		return a.value, nil
	}
	return a.name + " output", nil
}

func newCheckpoint(graph string) *checkpoint.Checkpoint {
	return checkpoint.New("T1", "acme", graph, "")
}

func TestRunCompletesLinearGraph(t *testing.T) {
	ctx := context.Background()
	store := checkpoint.NewMemoryStore()
	defer store.Close()

	refine := &countingAgent{name: "refine", key: "refined_requirements"}
	cg, err := ticketflow.NewGraph("refinement").
		AddStage("refine_requirements", refine).
		TransitionTo("planning").
		Compile()
	require.NoError(t, err)

	cp := newCheckpoint("refinement")
	result, err := cg.Run(ctx, cp, ticketflow.WithStore(store))
	require.NoError(t, err)

	assert.Equal(t, ticketflow.OutcomeCompleted, result.Outcome)
	assert.Equal(t, "planning", result.Transition)
	assert.Equal(t, checkpoint.StatusCompleted, cp.Status)
	assert.Equal(t, int32(1), refine.calls.Load())

	artifact, ok := cp.Artifact("refined_requirements")
	require.True(t, ok)
	assert.Equal(t, "refine output", artifact.Value)
	assert.Equal(t, "refine", artifact.ProducedBy)

	// The completed state is what was persisted.
	loaded, err := store.Load(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StatusCompleted, loaded.Status)
}

func TestRunPersistsAfterEveryStage(t *testing.T) {
	ctx := context.Background()
	store := checkpoint.NewMemoryStore()
	defer store.Close()

	cg, err := ticketflow.NewGraph("g").
		AddStage("one", &countingAgent{name: "a", key: "k1"}).
		AddStage("two", &countingAgent{name: "b", key: "k2"}).
		Compile()
	require.NoError(t, err)

	cp := newCheckpoint("g")
	_, err = cg.Run(ctx, cp, ticketflow.WithStore(store))
	require.NoError(t, err)

	// One save per stage boundary.
	assert.Equal(t, int64(2), cp.Version)
}

func TestRunSkipsStagesWithExistingArtifacts(t *testing.T) {
	ctx := context.Background()
	store := checkpoint.NewMemoryStore()
	defer store.Close()

	first := &countingAgent{name: "a", key: "k1"}
	second := &countingAgent{name: "b", key: "k2", failures: 1, err: errors.New("provider down")}

	cg, err := ticketflow.NewGraph("g").
		AddStage("one", first).
		AddStage("two", second).
		Compile()
	require.NoError(t, err)

	cp := newCheckpoint("g")
	result, err := cg.Run(ctx, cp, ticketflow.WithStore(store))
	require.NoError(t, err)
	assert.Equal(t, ticketflow.OutcomeFailed, result.Outcome)
	assert.Equal(t, 1, cp.RetryCount)

	// Retry from the persisted checkpoint: the completed stage is not
	// re-executed, only the failed one runs again.
	reloaded, err := store.Load(ctx, "T1")
	require.NoError(t, err)
	result, err = cg.Run(ctx, reloaded, ticketflow.WithStore(store))
	require.NoError(t, err)

	assert.Equal(t, ticketflow.OutcomeCompleted, result.Outcome)
	assert.Equal(t, int32(1), first.calls.Load())
	assert.Equal(t, int32(2), second.calls.Load())
}

func TestRunSuspendsAtSuspensionPoint(t *testing.T) {
	ctx := context.Background()
	store := checkpoint.NewMemoryStore()
	defer store.Close()

	cg, err := ticketflow.NewGraph("planning").
		AddStage("plan", &countingAgent{name: "planner", key: "plan"}).
		AddSuspension("plan_review_gate", "awaiting plan approval", "plan").
		Compile()
	require.NoError(t, err)

	cp := newCheckpoint("planning")
	result, err := cg.Run(ctx, cp, ticketflow.WithStore(store))
	require.NoError(t, err)

	assert.Equal(t, ticketflow.OutcomeSuspended, result.Outcome)
	require.NotNil(t, result.Suspension)
	assert.Equal(t, "plan_review_gate", result.Suspension.Stage)
	assert.Equal(t, "awaiting plan approval", result.Suspension.Reason)
	assert.Equal(t, ticketflow.SignalApproval, result.Suspension.ExpectedSignal)

	assert.Equal(t, checkpoint.StatusSuspended, cp.Status)
	assert.Equal(t, "plan_review_gate", cp.Stage)

	// A re-delivered start item cannot advance a suspended run.
	loaded, err := store.Load(ctx, "T1")
	require.NoError(t, err)
	_, err = cg.Run(ctx, loaded, ticketflow.WithStore(store))
	assert.ErrorIs(t, err, ticketflow.ErrSuspended)
}

func TestRunParallelStage(t *testing.T) {
	ctx := context.Background()
	store := checkpoint.NewMemoryStore()
	defer store.Close()

	stories := &countingAgent{name: "stories", key: "plan.user_stories"}
	api := &countingAgent{name: "api", key: "plan.api_design"}

	cg, err := ticketflow.NewGraph("planning").
		AddParallelStage("plan", stories, api).
		Compile()
	require.NoError(t, err)

	cp := newCheckpoint("planning")
	result, err := cg.Run(ctx, cp, ticketflow.WithStore(store))
	require.NoError(t, err)

	assert.Equal(t, ticketflow.OutcomeCompleted, result.Outcome)
	assert.True(t, cp.HasArtifact("plan.user_stories"))
	assert.True(t, cp.HasArtifact("plan.api_design"))
}

func TestRunParallelPartialFailurePersistsSiblings(t *testing.T) {
	ctx := context.Background()
	store := checkpoint.NewMemoryStore()
	defer store.Close()

	good := &countingAgent{name: "good", key: "plan.user_stories"}
	bad := &countingAgent{name: "bad", key: "plan.api_design", failures: 1, err: errors.New("rate limited")}

	cg, err := ticketflow.NewGraph("planning").
		AddParallelStage("plan", good, bad).
		Compile()
	require.NoError(t, err)

	cp := newCheckpoint("planning")
	result, err := cg.Run(ctx, cp, ticketflow.WithStore(store))
	require.NoError(t, err)
	assert.Equal(t, ticketflow.OutcomeFailed, result.Outcome)

	// The sibling's artifact survived the join failure.
	loaded, err := store.Load(ctx, "T1")
	require.NoError(t, err)
	assert.True(t, loaded.HasArtifact("plan.user_stories"))
	assert.False(t, loaded.HasArtifact("plan.api_design"))

	// The retry re-runs only the failed branch.
	result, err = cg.Run(ctx, loaded, ticketflow.WithStore(store))
	require.NoError(t, err)
	assert.Equal(t, ticketflow.OutcomeCompleted, result.Outcome)
	assert.Equal(t, int32(1), good.calls.Load())
	assert.Equal(t, int32(2), bad.calls.Load())
}

func TestRunRecoversAgentPanic(t *testing.T) {
	ctx := context.Background()
	store := checkpoint.NewMemoryStore()
	defer store.Close()

	boom := ticketflow.AgentFunc("boom", "k", func(context.Context, *ticketflow.AgentContext) (string, error) {
		panic("unexpected state")
	})

	cg, err := ticketflow.NewGraph("g").
		AddStage("work", boom).
		Compile()
	require.NoError(t, err)

	result, err := cg.Run(ctx, newCheckpoint("g"), ticketflow.WithStore(store))
	require.NoError(t, err)
	assert.Equal(t, ticketflow.OutcomeFailed, result.Outcome)

	var panicErr *ticketflow.PanicError
	require.ErrorAs(t, result.Err, &panicErr)
	assert.Equal(t, "work", panicErr.Stage)
	assert.NotEmpty(t, panicErr.Stack)
}

func TestRunValidation(t *testing.T) {
	ctx := context.Background()
	store := checkpoint.NewMemoryStore()
	defer store.Close()

	cg, err := ticketflow.NewGraph("g").
		AddStage("work", &countingAgent{name: "a", key: "k"}).
		Compile()
	require.NoError(t, err)

	_, err = cg.Run(ctx, newCheckpoint("g"))
	assert.ErrorIs(t, err, ticketflow.ErrStoreRequired)

	_, err = cg.Run(ctx, newCheckpoint("other"), ticketflow.WithStore(store))
	assert.ErrorIs(t, err, ticketflow.ErrGraphMismatch)

	done := newCheckpoint("g")
	done.Status = checkpoint.StatusCompleted
	_, err = cg.Run(ctx, done, ticketflow.WithStore(store))
	assert.ErrorIs(t, err, ticketflow.ErrRunTerminal)

	unknown := newCheckpoint("g")
	unknown.Stage = "nonexistent"
	_, err = cg.Run(ctx, unknown, ticketflow.WithStore(store))
	assert.ErrorIs(t, err, ticketflow.ErrStageNotFound)
}

func TestRunHonorsCancellation(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	defer store.Close()

	agent := &countingAgent{name: "a", key: "k"}
	cg, err := ticketflow.NewGraph("g").
		AddStage("work", agent).
		Compile()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = cg.Run(ctx, newCheckpoint("g"), ticketflow.WithStore(store))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), agent.calls.Load())
}

func TestAgentContextExposesTicketAndArtifacts(t *testing.T) {
	ctx := context.Background()
	store := checkpoint.NewMemoryStore()
	defer store.Close()

	ticket := tickets.New("T1", "acme", "Add rate limiting", "acme/api")

	reader := ticketflow.AgentFunc("reader", "summary", func(_ context.Context, run *ticketflow.AgentContext) (string, error) {
		require.Equal(t, "T1", run.Ticket().ID)
		requirements, ok := run.Artifact("refined_requirements")
		require.True(t, ok)
		return "summary of: " + requirements, nil
	})

	cg, err := ticketflow.NewGraph("g").
		AddStage("refine", &countingAgent{name: "refine", key: "refined_requirements", value: "reqs"}).
		AddStage("summarize", reader).
		Compile()
	require.NoError(t, err)

	cp := newCheckpoint("g")
	result, err := cg.Run(ctx, cp, ticketflow.WithStore(store), ticketflow.WithTicket(ticket))
	require.NoError(t, err)
	assert.Equal(t, ticketflow.OutcomeCompleted, result.Outcome)

	artifact, ok := cp.Artifact("summary")
	require.True(t, ok)
	assert.Equal(t, "summary of: reqs", artifact.Value)
}
