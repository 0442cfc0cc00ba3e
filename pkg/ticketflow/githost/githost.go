// Package githost abstracts the git-hosting system: opening pull
// requests for implemented tickets, reading PR details for review, and
// posting review comments.
package githost

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Errors returned by Host implementations.
var (
	// ErrPullRequestNotFound is returned when the PR does not exist.
	ErrPullRequestNotFound = errors.New("pull request not found")

	// ErrBadRepoRef is returned when a repository reference is not of
	// the form "owner/name".
	ErrBadRepoRef = errors.New("repository reference must be owner/name")
)

// PullRequest is the host's view of a pull request.
type PullRequest struct {
	Number     int
	Title      string
	Body       string
	HeadBranch string
	BaseBranch string
	State      string
	URL        string
}

// CreatePullRequestRequest describes a PR to open.
type CreatePullRequestRequest struct {
	RepoRef    string
	Title      string
	Body       string
	HeadBranch string
	BaseBranch string
}

// Host is the git-hosting collaborator.
type Host interface {
	// CreatePullRequest opens a pull request and returns its details.
	CreatePullRequest(ctx context.Context, req CreatePullRequestRequest) (*PullRequest, error)

	// GetPullRequestDetails fetches PR metadata for review.
	GetPullRequestDetails(ctx context.Context, repoRef string, number int) (*PullRequest, error)

	// PostPrComment posts a comment on the pull request.
	PostPrComment(ctx context.Context, repoRef string, number int, body string) error
}

// splitRepoRef parses an "owner/name" reference.
func splitRepoRef(repoRef string) (owner, name string, err error) {
	parts := strings.SplitN(repoRef, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: %q", ErrBadRepoRef, repoRef)
	}
	return parts[0], parts[1], nil
}
