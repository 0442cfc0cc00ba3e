package llm

import (
	"fmt"
	"sync"

	"github.com/randalmurphal/ticketflow/pkg/ticketflow/config"
)

// Factory builds a Client from provider-specific options.
type Factory func(opts config.Options) (Client, error)

// Registry maps provider keys to client factories. Providers are resolved
// once per tenant configuration load, not per call.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates a registry pre-populated with the built-in backends
// ("claude-cli" and "http").
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("claude-cli", newClaudeCLIFromOptions)
	r.Register("http", newHTTPFromOptions)
	return r
}

// Register adds or replaces a factory for a provider key.
func (r *Registry) Register(key string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[key] = factory
}

// Resolve builds a client for the provider key with the given options.
func (r *Registry) Resolve(key string, opts config.Options) (Client, error) {
	r.mu.RLock()
	factory, ok := r.factories[key]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown llm provider: %s", key)
	}
	return factory(opts)
}

// Keys returns the registered provider keys.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.factories))
	for k := range r.factories {
		keys = append(keys, k)
	}
	return keys
}

func newClaudeCLIFromOptions(opts config.Options) (Client, error) {
	var clientOpts []ClaudeOption
	if path := opts.String("path", ""); path != "" {
		clientOpts = append(clientOpts, WithClaudePath(path))
	}
	if model := opts.String("model", ""); model != "" {
		clientOpts = append(clientOpts, WithClaudeModel(model))
	}
	if dir := opts.String("workdir", ""); dir != "" {
		clientOpts = append(clientOpts, WithClaudeWorkdir(dir))
	}
	if d := opts.Duration("timeout", 0); d > 0 {
		clientOpts = append(clientOpts, WithClaudeTimeout(d))
	}
	return NewClaudeCLI(clientOpts...), nil
}

func newHTTPFromOptions(opts config.Options) (Client, error) {
	baseURL := opts.String("base_url", "")
	if baseURL == "" {
		return nil, fmt.Errorf("http provider requires base_url")
	}

	var clientOpts []HTTPOption
	if key := opts.String("api_key", ""); key != "" {
		clientOpts = append(clientOpts, WithAPIKey(key))
	}
	if model := opts.String("model", ""); model != "" {
		clientOpts = append(clientOpts, WithHTTPModel(model))
	}
	if d := opts.Duration("timeout", 0); d > 0 {
		clientOpts = append(clientOpts, WithHTTPTimeout(d))
	}
	return NewHTTPClient(baseURL, clientOpts...), nil
}
