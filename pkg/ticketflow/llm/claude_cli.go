package llm

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/randalmurphal/ticketflow/pkg/ticketflow/fault"
)

// ClaudeCLI implements Client using the Claude CLI binary.
type ClaudeCLI struct {
	path    string
	model   string
	workdir string
	timeout time.Duration
}

// ClaudeOption configures ClaudeCLI.
type ClaudeOption func(*ClaudeCLI)

// NewClaudeCLI creates a new Claude CLI client.
// Assumes "claude" is available in PATH unless overridden with WithClaudePath.
func NewClaudeCLI(opts ...ClaudeOption) *ClaudeCLI {
	c := &ClaudeCLI{
		path:    "claude",
		timeout: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithClaudePath sets the path to the claude binary.
func WithClaudePath(path string) ClaudeOption {
	return func(c *ClaudeCLI) { c.path = path }
}

// WithClaudeModel sets the default model.
func WithClaudeModel(model string) ClaudeOption {
	return func(c *ClaudeCLI) { c.model = model }
}

// WithClaudeWorkdir sets the working directory for claude commands.
func WithClaudeWorkdir(dir string) ClaudeOption {
	return func(c *ClaudeCLI) { c.workdir = dir }
}

// WithClaudeTimeout sets the default timeout for commands.
func WithClaudeTimeout(d time.Duration) ClaudeOption {
	return func(c *ClaudeCLI) { c.timeout = d }
}

// Name implements Client.
func (c *ClaudeCLI) Name() string { return "claude-cli" }

// Send implements Client.
func (c *ClaudeCLI) Send(ctx context.Context, req Request) (*Response, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()

	cmd := exec.CommandContext(callCtx, c.path, c.buildArgs(req)...)
	if c.workdir != "" {
		cmd.Dir = c.workdir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// A deadline we set ourselves is provider slowness, not caller cancellation.
		if callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return nil, fault.TransientErr(fmt.Errorf("claude call timed out after %s", timeout), "claude-cli send")
		}
		if ctx.Err() != nil {
			return nil, fault.FatalErr(ctx.Err(), "claude-cli send")
		}

		errMsg := stderr.String()
		wrapped := fmt.Errorf("%w: %s", err, errMsg)
		if isTransientMessage(errMsg) {
			return nil, fault.TransientErr(wrapped, "claude-cli send")
		}
		return nil, fault.FatalErr(wrapped, "claude-cli send")
	}

	return &Response{
		Text:     strings.TrimSpace(stdout.String()),
		Model:    c.effectiveModel(req),
		Provider: c.Name(),
		Usage: Usage{
			// Token counts are not available from basic CLI output.
			Latency: time.Since(start),
		},
	}, nil
}

// HealthCheck implements Client.
// Runs "claude --version" to verify installation, then a trivial prompt
// to verify authentication.
func (c *ClaudeCLI) HealthCheck(ctx context.Context) Health {
	versionCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := exec.CommandContext(versionCtx, c.path, "--version").Run(); err != nil {
		return Health{
			Message: fmt.Sprintf("claude binary not available at %q: %v", c.path, err),
		}
	}

	probeCtx, cancelProbe := context.WithTimeout(ctx, 30*time.Second)
	defer cancelProbe()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(probeCtx, c.path, "--print", "-p", "ping")
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return Health{
			Installed: true,
			Message:   fmt.Sprintf("claude probe failed: %v: %s", err, stderr.String()),
		}
	}

	return Health{Healthy: true, Installed: true, Authenticated: true}
}

// buildArgs constructs CLI arguments from a request.
func (c *ClaudeCLI) buildArgs(req Request) []string {
	args := []string{"--print"}

	if req.SystemPrompt != "" {
		args = append(args, "--system-prompt", req.SystemPrompt)
	}

	if model := c.effectiveModel(req); model != "" {
		args = append(args, "--model", model)
	}

	if req.MaxTokens > 0 {
		args = append(args, "--max-tokens", fmt.Sprintf("%d", req.MaxTokens))
	}

	if prompt := strings.TrimSpace(req.UserPrompt); prompt != "" {
		args = append(args, "-p", prompt)
	}

	return args
}

// effectiveModel resolves the model: request overrides client default.
func (c *ClaudeCLI) effectiveModel(req Request) string {
	if req.Model != "" {
		return req.Model
	}
	return c.model
}
