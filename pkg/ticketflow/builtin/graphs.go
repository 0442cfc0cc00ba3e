package builtin

import (
	"github.com/randalmurphal/ticketflow/pkg/ticketflow"
	"github.com/randalmurphal/ticketflow/pkg/ticketflow/githost"
	"github.com/randalmurphal/ticketflow/pkg/ticketflow/prompt"
)

// Lifecycle graph names.
const (
	GraphRefinement     = "refinement"
	GraphPlanning       = "planning"
	GraphImplementation = "implementation"
	GraphCodeReview     = "code_review"
)

// Artifact keys produced by the built-in agents.
const (
	KeyRefinedRequirements = "refined_requirements"
	KeyUserStories         = "plan.user_stories"
	KeyAPIDesign           = "plan.api_design"
	KeyImplementationPlan  = "implementation.plan"
	KeyPullRequest         = "implementation.pull_request"
	KeyReviewSummary       = "review.summary"
)

// Graphs compiles the four lifecycle graphs wired to the given renderer
// and git host. The returned map is keyed by graph name.
//
// Lifecycle: refinement → planning (suspends for plan approval) →
// implementation → code_review (suspends for code review; approval ends
// the workflow).
func Graphs(renderer *prompt.Renderer, host githost.Host) map[string]*ticketflow.CompiledGraph {
	refinement := ticketflow.NewGraph(GraphRefinement).
		AddStage("refine_requirements",
			NewLLMAgent("refine_requirements", KeyRefinedRequirements, TemplateRefineRequirements, renderer, nil)).
		TransitionTo(GraphPlanning).
		MustCompile()

	planning := ticketflow.NewGraph(GraphPlanning).
		AddParallelStage("plan",
			NewLLMAgent("plan_user_stories", KeyUserStories, TemplatePlanUserStories, renderer, nil),
			NewLLMAgent("plan_api_design", KeyAPIDesign, TemplatePlanAPIDesign, renderer, nil)).
		AddSuspension("plan_review_gate", "awaiting plan approval", "plan").
		TransitionTo(GraphImplementation).
		MustCompile()

	implementation := ticketflow.NewGraph(GraphImplementation).
		AddStage("implementation_plan",
			NewLLMAgent("implementation_plan", KeyImplementationPlan, TemplateImplementationPlan, renderer, nil)).
		AddStage("open_pull_request", NewPullRequestAgent(host)).
		TransitionTo(GraphCodeReview).
		MustCompile()

	codeReview := ticketflow.NewGraph(GraphCodeReview).
		AddStage("review_summary", NewReviewSummaryAgent(host, renderer)).
		AddSuspension("code_review_gate", "awaiting code review", "review_summary").
		MustCompile()

	return map[string]*ticketflow.CompiledGraph{
		GraphRefinement:     refinement,
		GraphPlanning:       planning,
		GraphImplementation: implementation,
		GraphCodeReview:     codeReview,
	}
}
