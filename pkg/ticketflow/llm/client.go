// Package llm defines the uniform request/response contract over any
// text-generation backend, plus the provider registry and the fallback
// client used for cross-provider failover.
//
// Any backend (hosted API or local CLI-wrapped model) satisfies Client.
// Transient provider errors are classified through the fault package so
// the execution engine can decide between retry, fallback, and failure.
package llm

import (
	"context"
	"strings"
	"time"
)

// Client is the uniform contract over a text-generation backend.
type Client interface {
	// Send renders one completion call. Errors are classified:
	// transient provider trouble unwraps to fault.Transient, everything
	// else to fault.Fatal.
	Send(ctx context.Context, req Request) (*Response, error)

	// HealthCheck probes backend availability and credentials.
	HealthCheck(ctx context.Context) Health

	// Name identifies the provider for logs and metrics.
	Name() string
}

// Request configures one completion call.
type Request struct {
	SystemPrompt string  `json:"system_prompt,omitempty"`
	UserPrompt   string  `json:"user_prompt"`
	Model        string  `json:"model,omitempty"`
	MaxTokens    int     `json:"max_tokens,omitempty"`
	Temperature  float64 `json:"temperature,omitempty"`

	// Timeout bounds this single call. Zero means the backend default.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// Response is the output of a completion call.
type Response struct {
	Text     string `json:"text"`
	Model    string `json:"model,omitempty"`
	Provider string `json:"provider,omitempty"`
	Usage    Usage  `json:"usage"`
}

// Usage tracks token consumption and latency of one call.
type Usage struct {
	InputTokens  int           `json:"input_tokens"`
	OutputTokens int           `json:"output_tokens"`
	Latency      time.Duration `json:"latency"`
}

// Add accumulates usage from another call.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.Latency += other.Latency
}

// Health is the result of a backend probe.
type Health struct {
	Healthy       bool   `json:"healthy"`
	Installed     bool   `json:"installed"`
	Authenticated bool   `json:"authenticated"`
	Message       string `json:"message,omitempty"`
}

// isTransientMessage checks if an error message indicates provider
// trouble that a retry or fallback may resolve.
func isTransientMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "timed out") ||
		strings.Contains(lower, "overloaded") ||
		strings.Contains(lower, "connection refused") ||
		strings.Contains(lower, "503") ||
		strings.Contains(lower, "529")
}
