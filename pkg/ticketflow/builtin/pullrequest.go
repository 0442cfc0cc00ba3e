package builtin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/randalmurphal/ticketflow/pkg/ticketflow"
	"github.com/randalmurphal/ticketflow/pkg/ticketflow/fault"
	"github.com/randalmurphal/ticketflow/pkg/ticketflow/githost"
	"github.com/randalmurphal/ticketflow/pkg/ticketflow/llm"
	"github.com/randalmurphal/ticketflow/pkg/ticketflow/prompt"
)

// PullRequestRef is the open_pull_request artifact payload: enough to
// locate the PR from the code review graph.
type PullRequestRef struct {
	RepoRef string `json:"repo_ref"`
	Number  int    `json:"number"`
	URL     string `json:"url"`
}

// ParsePullRequestRef decodes the artifact written by open_pull_request.
func ParsePullRequestRef(value string) (*PullRequestRef, error) {
	var ref PullRequestRef
	if err := json.Unmarshal([]byte(value), &ref); err != nil {
		return nil, fmt.Errorf("decode pull request artifact: %w", err)
	}
	return &ref, nil
}

// pullRequestAgent opens the implementation pull request on the git host.
type pullRequestAgent struct {
	host githost.Host
}

// NewPullRequestAgent creates the open_pull_request agent.
func NewPullRequestAgent(host githost.Host) ticketflow.Agent {
	return &pullRequestAgent{host: host}
}

func (a *pullRequestAgent) Name() string        { return "open_pull_request" }
func (a *pullRequestAgent) ArtifactKey() string { return KeyPullRequest }

func (a *pullRequestAgent) Execute(ctx context.Context, run *ticketflow.AgentContext) (string, error) {
	ticket := run.Ticket()
	if ticket == nil {
		return "", fault.FatalErr(errors.New("run has no ticket"), a.Name())
	}
	plan, ok := run.Artifact(KeyImplementationPlan)
	if !ok {
		return "", fault.FatalErr(errors.New("implementation plan artifact missing"), a.Name())
	}

	pr, err := a.host.CreatePullRequest(ctx, githost.CreatePullRequestRequest{
		RepoRef:    ticket.RepoRef,
		Title:      ticket.Title,
		Body:       plan,
		HeadBranch: "ticket/" + ticket.ID,
		BaseBranch: "main",
	})
	if err != nil {
		if errors.Is(err, githost.ErrBadRepoRef) {
			return "", fault.FatalErr(err, a.Name())
		}
		return "", fault.TransientErr(err, a.Name())
	}

	data, err := json.Marshal(PullRequestRef{
		RepoRef: ticket.RepoRef,
		Number:  pr.Number,
		URL:     pr.URL,
	})
	if err != nil {
		return "", fault.FatalErr(err, a.Name())
	}
	return string(data), nil
}

// reviewSummaryAgent fetches the PR, summarizes it with the LLM, and
// posts the summary back on the pull request.
type reviewSummaryAgent struct {
	host     githost.Host
	renderer *prompt.Renderer
}

// NewReviewSummaryAgent creates the review_summary agent.
func NewReviewSummaryAgent(host githost.Host, renderer *prompt.Renderer) ticketflow.Agent {
	return &reviewSummaryAgent{host: host, renderer: renderer}
}

func (a *reviewSummaryAgent) Name() string        { return "review_summary" }
func (a *reviewSummaryAgent) ArtifactKey() string { return KeyReviewSummary }

func (a *reviewSummaryAgent) Execute(ctx context.Context, run *ticketflow.AgentContext) (string, error) {
	client := run.LLM()
	if client == nil {
		return "", fault.FatalErr(errors.New("no LLM client configured for this run"), a.Name())
	}

	raw, ok := run.Artifact(KeyPullRequest)
	if !ok {
		return "", fault.FatalErr(errors.New("pull request artifact missing"), a.Name())
	}
	ref, err := ParsePullRequestRef(raw)
	if err != nil {
		return "", fault.FatalErr(err, a.Name())
	}

	pr, err := a.host.GetPullRequestDetails(ctx, ref.RepoRef, ref.Number)
	if err != nil {
		if errors.Is(err, githost.ErrPullRequestNotFound) || errors.Is(err, githost.ErrBadRepoRef) {
			return "", fault.FatalErr(err, a.Name())
		}
		return "", fault.TransientErr(err, a.Name())
	}

	vars := promptVars(run)
	vars["pr_title"] = pr.Title
	vars["pr_body"] = pr.Body
	rendered, err := a.renderer.Render(TemplateReviewSummary, vars)
	if err != nil {
		return "", fault.FatalErr(err, a.Name())
	}

	resp, err := client.Send(ctx, llm.Request{
		SystemPrompt: rendered.SystemPrompt,
		UserPrompt:   rendered.UserPrompt,
	})
	if err != nil {
		return "", err
	}

	if err := a.host.PostPrComment(ctx, ref.RepoRef, ref.Number, resp.Text); err != nil {
		return "", fault.TransientErr(err, a.Name())
	}
	return resp.Text, nil
}
