package builtin

import "github.com/randalmurphal/ticketflow/pkg/ticketflow/prompt"

// Template names for the built-in lifecycle agents.
const (
	TemplateRefineRequirements = "refine_requirements"
	TemplatePlanUserStories    = "plan_user_stories"
	TemplatePlanAPIDesign      = "plan_api_design"
	TemplateImplementationPlan = "implementation_plan"
	TemplateReviewSummary      = "review_summary"
)

// NewRenderer returns a renderer preloaded with the lifecycle templates.
func NewRenderer() *prompt.Renderer {
	return prompt.NewRenderer(
		prompt.Template{
			Name: TemplateRefineRequirements,
			SystemPrompt: "You are a senior product engineer. Turn rough ticket " +
				"descriptions into precise, testable requirements. Reply with a " +
				"numbered list of requirements and nothing else.",
			UserPrompt: "Ticket: ${ticket_title}\n\nDescription:\n${ticket_description}\n\n" +
				"Reviewer feedback (empty if none):\n${feedback}",
		},
		prompt.Template{
			Name: TemplatePlanUserStories,
			SystemPrompt: "You are a product owner. Write user stories in the " +
				"'As a ..., I want ..., so that ...' form covering every requirement.",
			UserPrompt: "Ticket: ${ticket_title}\n\nRequirements:\n${refined_requirements}\n\n" +
				"Reviewer feedback (empty if none):\n${feedback}",
		},
		prompt.Template{
			Name: TemplatePlanAPIDesign,
			SystemPrompt: "You are an API designer. Propose endpoint signatures, " +
				"request/response shapes, and error cases for the requirements.",
			UserPrompt: "Ticket: ${ticket_title}\n\nRequirements:\n${refined_requirements}\n\n" +
				"Reviewer feedback (empty if none):\n${feedback}",
		},
		prompt.Template{
			Name: TemplateImplementationPlan,
			SystemPrompt: "You are a tech lead. Produce a step-by-step implementation " +
				"plan: files to touch, functions to add, tests to write.",
			UserPrompt: "Ticket: ${ticket_title} (repository ${repo_ref})\n\n" +
				"User stories:\n${plan.user_stories}\n\nAPI design:\n${plan.api_design}\n\n" +
				"Reviewer feedback (empty if none):\n${feedback}",
		},
		prompt.Template{
			Name: TemplateReviewSummary,
			SystemPrompt: "You are a code reviewer. Summarize what the pull request " +
				"changes, call out risks, and state whether it matches the plan.",
			UserPrompt: "Pull request: ${pr_title}\n\n${pr_body}\n\n" +
				"Implementation plan:\n${implementation.plan}\n\n" +
				"Reviewer feedback (empty if none):\n${feedback}",
		},
	)
}
