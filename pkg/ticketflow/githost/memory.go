package githost

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-memory Host for tests and local development.
type Memory struct {
	mu       sync.Mutex
	next     int
	prs      map[string]*PullRequest // "repo#number" -> PR
	comments map[string][]string
}

// NewMemory creates an empty in-memory host.
func NewMemory() *Memory {
	return &Memory{
		next:     1,
		prs:      make(map[string]*PullRequest),
		comments: make(map[string][]string),
	}
}

// CreatePullRequest implements Host.
func (m *Memory) CreatePullRequest(_ context.Context, req CreatePullRequestRequest) (*PullRequest, error) {
	if _, _, err := splitRepoRef(req.RepoRef); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	pr := &PullRequest{
		Number:     m.next,
		Title:      req.Title,
		Body:       req.Body,
		HeadBranch: req.HeadBranch,
		BaseBranch: req.BaseBranch,
		State:      "open",
		URL:        fmt.Sprintf("https://example.test/%s/pull/%d", req.RepoRef, m.next),
	}
	m.next++
	m.prs[prKey(req.RepoRef, pr.Number)] = pr
	return pr, nil
}

// GetPullRequestDetails implements Host.
func (m *Memory) GetPullRequestDetails(_ context.Context, repoRef string, number int) (*PullRequest, error) {
	if _, _, err := splitRepoRef(repoRef); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	pr, ok := m.prs[prKey(repoRef, number)]
	if !ok {
		return nil, ErrPullRequestNotFound
	}
	copied := *pr
	return &copied, nil
}

// PostPrComment implements Host.
func (m *Memory) PostPrComment(_ context.Context, repoRef string, number int, body string) error {
	if _, _, err := splitRepoRef(repoRef); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := prKey(repoRef, number)
	if _, ok := m.prs[key]; !ok {
		return ErrPullRequestNotFound
	}
	m.comments[key] = append(m.comments[key], body)
	return nil
}

// Comments returns the comments on a PR, in order.
func (m *Memory) Comments(repoRef string, number int) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := prKey(repoRef, number)
	out := make([]string, len(m.comments[key]))
	copy(out, m.comments[key])
	return out
}

func prKey(repoRef string, number int) string {
	return fmt.Sprintf("%s#%d", repoRef, number)
}
