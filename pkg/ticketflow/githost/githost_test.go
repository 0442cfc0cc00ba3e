package githost_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/ticketflow/pkg/ticketflow/githost"
)

func TestMemoryCreateAndGet(t *testing.T) {
	ctx := context.Background()
	host := githost.NewMemory()

	pr, err := host.CreatePullRequest(ctx, githost.CreatePullRequestRequest{
		RepoRef:    "acme/api",
		Title:      "Add rate limiting",
		Body:       "implements the plan",
		HeadBranch: "ticket/T1",
		BaseBranch: "main",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, pr.Number)
	assert.Equal(t, "open", pr.State)
	assert.NotEmpty(t, pr.URL)

	got, err := host.GetPullRequestDetails(ctx, "acme/api", 1)
	require.NoError(t, err)
	assert.Equal(t, "Add rate limiting", got.Title)
	assert.Equal(t, "ticket/T1", got.HeadBranch)
}

func TestMemoryComments(t *testing.T) {
	ctx := context.Background()
	host := githost.NewMemory()

	pr, err := host.CreatePullRequest(ctx, githost.CreatePullRequestRequest{
		RepoRef: "acme/api", Title: "t", HeadBranch: "h", BaseBranch: "main",
	})
	require.NoError(t, err)

	require.NoError(t, host.PostPrComment(ctx, "acme/api", pr.Number, "review summary"))
	assert.Equal(t, []string{"review summary"}, host.Comments("acme/api", pr.Number))

	assert.ErrorIs(t, host.PostPrComment(ctx, "acme/api", 99, "x"), githost.ErrPullRequestNotFound)
}

func TestMemoryNotFound(t *testing.T) {
	ctx := context.Background()
	host := githost.NewMemory()

	_, err := host.GetPullRequestDetails(ctx, "acme/api", 42)
	assert.ErrorIs(t, err, githost.ErrPullRequestNotFound)
}

func TestBadRepoRef(t *testing.T) {
	ctx := context.Background()
	host := githost.NewMemory()

	_, err := host.CreatePullRequest(ctx, githost.CreatePullRequestRequest{RepoRef: "no-slash"})
	assert.ErrorIs(t, err, githost.ErrBadRepoRef)

	_, err = host.GetPullRequestDetails(ctx, "/missing-owner", 1)
	assert.ErrorIs(t, err, githost.ErrBadRepoRef)
}
