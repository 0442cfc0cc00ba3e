package githost_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/ticketflow/pkg/ticketflow/fault"
	"github.com/randalmurphal/ticketflow/pkg/ticketflow/githost"
)

func fastRetry() fault.RetryConfig {
	return fault.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		BackoffFactor:  1.0,
	}
}

// newGitHubHost points a GitHub host at a stub API server.
func newGitHubHost(t *testing.T, handler http.HandlerFunc) *githost.GitHub {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := github.NewClient(nil)
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	client.BaseURL = base

	return githost.NewGitHubFromClient(client, githost.WithRetryPolicy(fastRetry()))
}

func TestGitHubRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	host := newGitHubHost(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"number": 7, "title": "Add rate limiting", "state": "open"}`)
	})

	pr, err := host.CreatePullRequest(context.Background(), githost.CreatePullRequestRequest{
		RepoRef: "acme/api", Title: "Add rate limiting", HeadBranch: "ticket/T1", BaseBranch: "main",
	})
	require.NoError(t, err)
	assert.Equal(t, 7, pr.Number)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGitHubDoesNotRetryNotFound(t *testing.T) {
	var calls atomic.Int32
	host := newGitHubHost(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message": "Not Found"}`)
	})

	_, err := host.GetPullRequestDetails(context.Background(), "acme/api", 9)
	assert.ErrorIs(t, err, githost.ErrPullRequestNotFound)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGitHubGivesUpAfterRetryBudget(t *testing.T) {
	var calls atomic.Int32
	host := newGitHubHost(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	err := host.PostPrComment(context.Background(), "acme/api", 3, "review summary")
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}
