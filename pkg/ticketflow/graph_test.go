package ticketflow_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/ticketflow/pkg/ticketflow"
)

func noopAgent(name, key string) ticketflow.Agent {
	return ticketflow.AgentFunc(name, key, func(context.Context, *ticketflow.AgentContext) (string, error) {
		return "ok", nil
	})
}

func TestCompileValidGraph(t *testing.T) {
	cg, err := ticketflow.NewGraph("planning").
		AddParallelStage("plan", noopAgent("stories", "plan.user_stories"), noopAgent("api", "plan.api_design")).
		AddSuspension("plan_review_gate", "awaiting plan approval", "plan").
		TransitionTo("implementation").
		Compile()

	require.NoError(t, err)
	assert.Equal(t, "planning", cg.Name())
	assert.Equal(t, "implementation", cg.Transition())
	assert.Equal(t, []string{"plan", "plan_review_gate"}, cg.Stages())
}

func TestCompileEmptyGraph(t *testing.T) {
	_, err := ticketflow.NewGraph("empty").Compile()
	assert.ErrorIs(t, err, ticketflow.ErrNoStages)
}

func TestCompileRevisitTargetValidation(t *testing.T) {
	t.Run("missing target", func(t *testing.T) {
		_, err := ticketflow.NewGraph("g").
			AddStage("work", noopAgent("a", "k")).
			AddSuspension("gate", "r", "nonexistent").
			Compile()
		assert.ErrorIs(t, err, ticketflow.ErrStageNotFound)
	})

	t.Run("target after suspension", func(t *testing.T) {
		_, err := ticketflow.NewGraph("g").
			AddStage("before", noopAgent("a", "k1")).
			AddSuspension("gate", "r", "after").
			AddStage("after", noopAgent("b", "k2")).
			Compile()
		assert.ErrorIs(t, err, ticketflow.ErrBadRevisitTarget)
	})

	t.Run("target is a suspension", func(t *testing.T) {
		_, err := ticketflow.NewGraph("g").
			AddStage("work", noopAgent("a", "k1")).
			AddSuspension("first_gate", "r", "work").
			AddSuspension("second_gate", "r", "first_gate").
			Compile()
		assert.ErrorIs(t, err, ticketflow.ErrBadRevisitTarget)
	})
}

func TestCompileDuplicateArtifactKeys(t *testing.T) {
	_, err := ticketflow.NewGraph("g").
		AddStage("one", noopAgent("a", "same")).
		AddStage("two", noopAgent("b", "same")).
		Compile()
	assert.ErrorIs(t, err, ticketflow.ErrDuplicateArtifactKey)
}

func TestBuilderPanics(t *testing.T) {
	assert.Panics(t, func() { ticketflow.NewGraph("") })

	assert.Panics(t, func() {
		ticketflow.NewGraph("g").AddStage("", noopAgent("a", "k"))
	})

	assert.Panics(t, func() {
		ticketflow.NewGraph("g").AddStage("has space", noopAgent("a", "k"))
	})

	assert.Panics(t, func() {
		ticketflow.NewGraph("g").AddStage("work", nil)
	})

	assert.Panics(t, func() {
		ticketflow.NewGraph("g").
			AddStage("work", noopAgent("a", "k1")).
			AddStage("work", noopAgent("b", "k2"))
	})

	assert.Panics(t, func() {
		ticketflow.NewGraph("g").AddParallelStage("work")
	})
}

func TestMustCompilePanicsOnInvalid(t *testing.T) {
	assert.Panics(t, func() {
		ticketflow.NewGraph("g").MustCompile()
	})
}
