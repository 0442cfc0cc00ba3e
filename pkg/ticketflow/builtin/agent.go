// Package builtin provides the four ticket lifecycle graphs and their
// agents: LLM-backed refinement, planning, and review agents, plus the
// git-hosting agent that opens the implementation pull request.
package builtin

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/randalmurphal/ticketflow/pkg/ticketflow"
	"github.com/randalmurphal/ticketflow/pkg/ticketflow/fault"
	"github.com/randalmurphal/ticketflow/pkg/ticketflow/llm"
	"github.com/randalmurphal/ticketflow/pkg/ticketflow/prompt"
)

// maxRePrompts bounds corrective re-prompts after validation failures.
const maxRePrompts = 3

// ValidateFunc checks an LLM reply for structural problems. A non-nil
// error triggers a corrective re-prompt.
type ValidateFunc func(text string) error

// llmAgent renders a named template, calls the run's LLM client, and
// validates the reply with a bounded number of corrective re-prompts.
type llmAgent struct {
	name     string
	key      string
	template string
	renderer *prompt.Renderer
	validate ValidateFunc
}

// NewLLMAgent creates an agent producing artifact key from the named
// template. A nil validate accepts any non-empty reply.
func NewLLMAgent(name, key, template string, renderer *prompt.Renderer, validate ValidateFunc) ticketflow.Agent {
	if validate == nil {
		validate = nonEmpty
	}
	return &llmAgent{
		name:     name,
		key:      key,
		template: template,
		renderer: renderer,
		validate: validate,
	}
}

func (a *llmAgent) Name() string        { return a.name }
func (a *llmAgent) ArtifactKey() string { return a.key }

func (a *llmAgent) Execute(ctx context.Context, run *ticketflow.AgentContext) (string, error) {
	client := run.LLM()
	if client == nil {
		return "", fault.FatalErr(errors.New("no LLM client configured for this run"), a.name)
	}

	rendered, err := a.renderer.Render(a.template, promptVars(run))
	if err != nil {
		return "", fault.FatalErr(err, a.name)
	}

	userPrompt := rendered.UserPrompt
	var lastValidation error
	for attempt := 1; attempt <= maxRePrompts; attempt++ {
		select {
		case <-ctx.Done():
			return "", fault.FatalErr(ctx.Err(), a.name)
		default:
		}

		resp, err := client.Send(ctx, llm.Request{
			SystemPrompt: rendered.SystemPrompt,
			UserPrompt:   userPrompt,
		})
		if err != nil {
			return "", err
		}

		if vErr := a.validate(resp.Text); vErr != nil {
			lastValidation = vErr
			run.Logger().Warn("reply failed validation, re-prompting",
				"agent", a.name, "attempt", attempt, "error", vErr.Error())
			userPrompt = corrective(rendered.UserPrompt, resp.Text, vErr)
			continue
		}
		return resp.Text, nil
	}

	return "", &fault.Error{
		Err:      fmt.Errorf("reply still malformed after %d prompts: %w", maxRePrompts, lastValidation),
		Class:    fault.Validation,
		Op:       a.name,
		Attempts: maxRePrompts,
	}
}

// corrective builds a re-prompt carrying the rejected reply and what was
// wrong with it.
func corrective(original, reply string, vErr error) string {
	return original +
		"\n\nYour previous reply was rejected: " + vErr.Error() +
		"\n\nPrevious reply:\n" + reply +
		"\n\nCorrect the problem and reply again."
}

func nonEmpty(text string) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("empty reply")
	}
	return nil
}

// promptVars assembles the template variable bag: every accumulated
// artifact plus the ticket fields and current-round feedback.
func promptVars(run *ticketflow.AgentContext) map[string]any {
	vars := make(map[string]any)
	for key, value := range run.Artifacts() {
		vars[key] = value
	}
	vars["feedback"] = run.Feedback()

	if t := run.Ticket(); t != nil {
		vars["ticket_id"] = t.ID
		vars["ticket_title"] = t.Title
		vars["ticket_description"] = t.Description
		vars["repo_ref"] = t.RepoRef
	}
	return vars
}
