package prompt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/ticketflow/pkg/ticketflow/prompt"
)

func TestRender(t *testing.T) {
	r := prompt.NewRenderer(prompt.Template{
		Name:         "refine",
		SystemPrompt: "You refine tickets for ${tenant}.",
		UserPrompt:   "Ticket: ${ticket_description}",
	})

	rendered, err := r.Render("refine", map[string]any{
		"tenant":             "acme",
		"ticket_description": "Add rate limiting",
	})
	require.NoError(t, err)

	assert.Equal(t, "You refine tickets for acme.", rendered.SystemPrompt)
	assert.Equal(t, "Ticket: Add rate limiting", rendered.UserPrompt)
}

func TestRenderDottedArtifactKeys(t *testing.T) {
	r := prompt.NewRenderer(prompt.Template{
		Name:       "implement",
		UserPrompt: "Stories:\n${plan.user_stories}\nAPI:\n${plan.api_design}",
	})

	rendered, err := r.Render("implement", map[string]any{
		"plan.user_stories": "as a user...",
		"plan.api_design":   "POST /limits",
	})
	require.NoError(t, err)
	assert.Contains(t, rendered.UserPrompt, "as a user...")
	assert.Contains(t, rendered.UserPrompt, "POST /limits")
}

func TestRenderUnknownTemplate(t *testing.T) {
	r := prompt.NewRenderer()
	_, err := r.Render("missing", nil)

	var unknownErr *prompt.UnknownTemplateError
	require.ErrorAs(t, err, &unknownErr)
	assert.Equal(t, "missing", unknownErr.Name)
}

func TestRenderUndefinedVariables(t *testing.T) {
	r := prompt.NewRenderer(prompt.Template{
		Name:       "plan",
		UserPrompt: "${a} and ${b}",
	})

	_, err := r.Render("plan", map[string]any{"a": "present"})

	var undefErr *prompt.UndefinedVariableError
	require.ErrorAs(t, err, &undefErr)
	assert.Equal(t, []string{"b"}, undefErr.Names)
}

func TestRegisterAndHas(t *testing.T) {
	r := prompt.NewRenderer()
	assert.False(t, r.Has("review"))

	r.Register(prompt.Template{Name: "review", UserPrompt: "Review ${diff}"})
	assert.True(t, r.Has("review"))
}

func TestRenderNonStringValues(t *testing.T) {
	r := prompt.NewRenderer(prompt.Template{
		Name:       "retry",
		UserPrompt: "Attempt ${attempt}",
	})

	rendered, err := r.Render("retry", map[string]any{"attempt": 3})
	require.NoError(t, err)
	assert.Equal(t, "Attempt 3", rendered.UserPrompt)
}
