// Package llmtest provides a scripted llm.Client for tests.
package llmtest

import (
	"context"
	"sync"

	"github.com/randalmurphal/ticketflow/pkg/ticketflow/llm"
)

// Reply is one scripted turn: either a response text or an error.
type Reply struct {
	Text string
	Err  error
}

// Client is a scripted llm.Client. Each Send consumes the next Reply;
// when the script is exhausted the last reply repeats. Safe for
// concurrent use.
type Client struct {
	ProviderName string

	mu       sync.Mutex
	script   []Reply
	calls    int
	requests []llm.Request
}

// New creates a scripted client that replies in order.
func New(replies ...Reply) *Client {
	return &Client{ProviderName: "mock", script: replies}
}

// Respond creates a client that always returns the given text.
func Respond(text string) *Client {
	return New(Reply{Text: text})
}

// Fail creates a client that always returns the given error.
func Fail(err error) *Client {
	return New(Reply{Err: err})
}

// Name implements llm.Client.
func (c *Client) Name() string {
	if c.ProviderName == "" {
		return "mock"
	}
	return c.ProviderName
}

// Send implements llm.Client.
func (c *Client) Send(_ context.Context, req llm.Request) (*llm.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.calls
	if idx >= len(c.script) {
		idx = len(c.script) - 1
	}
	c.calls++
	c.requests = append(c.requests, req)

	if idx < 0 {
		return &llm.Response{Provider: c.Name()}, nil
	}

	reply := c.script[idx]
	if reply.Err != nil {
		return nil, reply.Err
	}
	return &llm.Response{
		Text:     reply.Text,
		Provider: c.Name(),
		Usage:    llm.Usage{InputTokens: 10, OutputTokens: 20},
	}, nil
}

// HealthCheck implements llm.Client.
func (c *Client) HealthCheck(context.Context) llm.Health {
	return llm.Health{Healthy: true, Installed: true, Authenticated: true}
}

// Calls returns how many times Send was invoked.
func (c *Client) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Requests returns a copy of all requests received.
func (c *Client) Requests() []llm.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]llm.Request, len(c.requests))
	copy(out, c.requests)
	return out
}

// LastRequest returns the most recent request, or a zero Request.
func (c *Client) LastRequest() llm.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.requests) == 0 {
		return llm.Request{}
	}
	return c.requests[len(c.requests)-1]
}
