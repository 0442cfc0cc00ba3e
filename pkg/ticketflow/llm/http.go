package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/randalmurphal/ticketflow/pkg/ticketflow/fault"
)

// HTTPClient implements Client against an OpenAI-compatible
// chat-completions endpoint.
type HTTPClient struct {
	baseURL string
	apiKey  string
	model   string
	timeout time.Duration
	client  *http.Client
}

// HTTPOption configures HTTPClient.
type HTTPOption func(*HTTPClient)

// NewHTTPClient creates a client for an OpenAI-compatible API.
func NewHTTPClient(baseURL string, opts ...HTTPOption) *HTTPClient {
	c := &HTTPClient{
		baseURL: baseURL,
		timeout: 2 * time.Minute,
		client:  &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithAPIKey sets the bearer token.
func WithAPIKey(key string) HTTPOption {
	return func(c *HTTPClient) { c.apiKey = key }
}

// WithHTTPModel sets the default model.
func WithHTTPModel(model string) HTTPOption {
	return func(c *HTTPClient) { c.model = model }
}

// WithHTTPTimeout sets the default per-call timeout.
func WithHTTPTimeout(d time.Duration) HTTPOption {
	return func(c *HTTPClient) { c.timeout = d }
}

// WithHTTPDoer overrides the underlying *http.Client, mainly for tests.
func WithHTTPDoer(client *http.Client) HTTPOption {
	return func(c *HTTPClient) { c.client = client }
}

// Name implements Client.
func (c *HTTPClient) Name() string { return "http" }

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Send implements Client.
func (c *HTTPClient) Send(ctx context.Context, req Request) (*Response, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()

	body := chatRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if body.Model == "" {
		body.Model = c.model
	}
	if req.SystemPrompt != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: req.UserPrompt})

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fault.FatalErr(fmt.Errorf("encode request: %w", err), "http send")
	}

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fault.FatalErr(fmt.Errorf("build request: %w", err), "http send")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return nil, fault.TransientErr(fmt.Errorf("llm call timed out after %s", timeout), "http send")
		}
		if ctx.Err() != nil {
			return nil, fault.FatalErr(ctx.Err(), "http send")
		}
		return nil, fault.TransientErr(err, "http send")
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fault.TransientErr(fmt.Errorf("read response: %w", err), "http send")
	}

	if httpResp.StatusCode != http.StatusOK {
		err := fmt.Errorf("HTTP %d: %s", httpResp.StatusCode, string(raw))
		switch {
		case httpResp.StatusCode == http.StatusTooManyRequests || httpResp.StatusCode >= 500:
			return nil, fault.TransientErr(err, "http send")
		default:
			return nil, fault.FatalErr(err, "http send")
		}
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fault.FatalErr(fmt.Errorf("decode response: %w", err), "http send")
	}
	if parsed.Error != nil {
		return nil, fault.FatalErr(fmt.Errorf("provider error: %s", parsed.Error.Message), "http send")
	}
	if len(parsed.Choices) == 0 {
		return nil, fault.FatalErr(fmt.Errorf("empty choices in response"), "http send")
	}

	return &Response{
		Text:     parsed.Choices[0].Message.Content,
		Model:    parsed.Model,
		Provider: c.Name(),
		Usage: Usage{
			InputTokens:  parsed.Usage.PromptTokens,
			OutputTokens: parsed.Usage.CompletionTokens,
			Latency:      time.Since(start),
		},
	}, nil
}

// HealthCheck implements Client.
// Probes the models endpoint; a 200 means reachable and authenticated.
func (c *HTTPClient) HealthCheck(ctx context.Context) Health {
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(probeCtx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return Health{Message: fmt.Sprintf("build probe: %v", err)}
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Health{Installed: true, Message: fmt.Sprintf("endpoint unreachable: %v", err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return Health{Healthy: true, Installed: true, Authenticated: true}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Health{Installed: true, Message: fmt.Sprintf("authentication failed: HTTP %d", resp.StatusCode)}
	default:
		return Health{Installed: true, Authenticated: true, Message: fmt.Sprintf("unexpected status: HTTP %d", resp.StatusCode)}
	}
}
