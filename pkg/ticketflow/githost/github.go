package githost

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/randalmurphal/ticketflow/pkg/ticketflow/fault"
)

// GitHub implements Host against the GitHub API. Calls that fail with
// rate limits or server errors are retried with backoff before the
// failure surfaces to the caller.
type GitHub struct {
	client *github.Client
	retry  fault.RetryConfig
}

// GitHubOption configures the GitHub host.
type GitHubOption func(*GitHub)

// WithRetryPolicy overrides the retry policy applied to API calls.
func WithRetryPolicy(cfg fault.RetryConfig) GitHubOption {
	return func(g *GitHub) {
		cfg.RetryableFunc = retryableAPIError
		g.retry = cfg
	}
}

// NewGitHub creates a GitHub host authenticated with a personal access
// token or installation token.
func NewGitHub(ctx context.Context, token string, opts ...GitHubOption) *GitHub {
	var hc *http.Client
	if token != "" {
		hc = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	}
	return NewGitHubFromClient(github.NewClient(hc), opts...)
}

// NewGitHubFromClient wraps an existing client. Useful for tests and
// GitHub Enterprise base URLs.
func NewGitHubFromClient(client *github.Client, opts ...GitHubOption) *GitHub {
	g := &GitHub{client: client, retry: apiRetry()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func apiRetry() fault.RetryConfig {
	cfg := fault.DefaultRetry
	cfg.RetryableFunc = retryableAPIError
	return cfg
}

// CreatePullRequest implements Host.
func (g *GitHub) CreatePullRequest(ctx context.Context, req CreatePullRequestRequest) (*PullRequest, error) {
	owner, name, err := splitRepoRef(req.RepoRef)
	if err != nil {
		return nil, err
	}

	res := fault.WithRetryContext(ctx, g.retry, func(ctx context.Context) (*github.PullRequest, error) {
		pr, _, err := g.client.PullRequests.Create(ctx, owner, name, &github.NewPullRequest{
			Title: github.String(req.Title),
			Body:  github.String(req.Body),
			Head:  github.String(req.HeadBranch),
			Base:  github.String(req.BaseBranch),
		})
		return pr, err
	})
	if res.Err != nil {
		return nil, fmt.Errorf("create pull request: %w", res.Err)
	}
	return fromGitHub(res.Value), nil
}

// GetPullRequestDetails implements Host.
func (g *GitHub) GetPullRequestDetails(ctx context.Context, repoRef string, number int) (*PullRequest, error) {
	owner, name, err := splitRepoRef(repoRef)
	if err != nil {
		return nil, err
	}

	res := fault.WithRetryContext(ctx, g.retry, func(ctx context.Context) (*github.PullRequest, error) {
		pr, resp, err := g.client.PullRequests.Get(ctx, owner, name, number)
		if err != nil && resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, ErrPullRequestNotFound
		}
		return pr, err
	})
	if errors.Is(res.Err, ErrPullRequestNotFound) {
		return nil, ErrPullRequestNotFound
	}
	if res.Err != nil {
		return nil, fmt.Errorf("get pull request: %w", res.Err)
	}
	return fromGitHub(res.Value), nil
}

// PostPrComment implements Host.
func (g *GitHub) PostPrComment(ctx context.Context, repoRef string, number int, body string) error {
	owner, name, err := splitRepoRef(repoRef)
	if err != nil {
		return err
	}

	res := fault.WithRetryContext(ctx, g.retry, func(ctx context.Context) (struct{}, error) {
		_, resp, err := g.client.Issues.CreateComment(ctx, owner, name, number, &github.IssueComment{
			Body: github.String(body),
		})
		if err != nil && resp != nil && resp.StatusCode == http.StatusNotFound {
			return struct{}{}, ErrPullRequestNotFound
		}
		return struct{}{}, err
	})
	if errors.Is(res.Err, ErrPullRequestNotFound) {
		return ErrPullRequestNotFound
	}
	if res.Err != nil {
		return fmt.Errorf("post pull request comment: %w", res.Err)
	}
	return nil
}

// retryableAPIError reports whether a GitHub API failure is worth
// retrying. Rate limits and server errors are; 4xx responses and
// missing pull requests are not. Errors without a structured API
// response are treated as transport failures and retried.
func retryableAPIError(err error) bool {
	if errors.Is(err, ErrPullRequestNotFound) {
		return false
	}

	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
		return true
	}

	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) {
		if respErr.Response == nil {
			return false
		}
		code := respErr.Response.StatusCode
		return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
	}
	return true
}

func fromGitHub(pr *github.PullRequest) *PullRequest {
	return &PullRequest{
		Number:     pr.GetNumber(),
		Title:      pr.GetTitle(),
		Body:       pr.GetBody(),
		HeadBranch: pr.GetHead().GetRef(),
		BaseBranch: pr.GetBase().GetRef(),
		State:      pr.GetState(),
		URL:        pr.GetHTMLURL(),
	}
}
