package llm

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/randalmurphal/ticketflow/pkg/ticketflow/fault"
)

// FallbackClient tries an ordered list of providers. When the active
// provider fails with a transient error, it switches to the next one for
// the remainder of this client's lifetime, so later calls within the same
// agent attempt stick with the substitute instead of flapping back.
//
// A FallbackClient is built per tenant from the tenant's ordered provider
// preference; it is not hardcoded to one backend.
type FallbackClient struct {
	clients []Client

	mu     sync.Mutex
	active int
}

// NewFallback creates a fallback client over the given providers in
// preference order. At least one client is required.
func NewFallback(clients ...Client) (*FallbackClient, error) {
	if len(clients) == 0 {
		return nil, errors.New("fallback requires at least one client")
	}
	return &FallbackClient{clients: clients}, nil
}

// Name implements Client.
func (f *FallbackClient) Name() string {
	names := make([]string, len(f.clients))
	for i, c := range f.clients {
		names[i] = c.Name()
	}
	return "fallback(" + strings.Join(names, ",") + ")"
}

// Active returns the provider currently in use.
func (f *FallbackClient) Active() Client {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clients[f.active]
}

// Send implements Client. On a transient failure it advances to the next
// provider and retries the same request once per remaining provider. The
// last provider's error is returned when all are exhausted.
func (f *FallbackClient) Send(ctx context.Context, req Request) (*Response, error) {
	var lastErr error

	for {
		f.mu.Lock()
		idx := f.active
		client := f.clients[idx]
		f.mu.Unlock()

		resp, err := client.Send(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !fault.IsTransient(err) || ctx.Err() != nil {
			return nil, err
		}

		f.mu.Lock()
		// Another goroutine may have advanced already.
		if f.active == idx {
			f.active++
		}
		exhausted := f.active >= len(f.clients)
		if exhausted {
			f.active = len(f.clients) - 1
		}
		f.mu.Unlock()

		if exhausted {
			return nil, lastErr
		}
	}
}

// HealthCheck implements Client. Reports healthy if any provider is healthy.
func (f *FallbackClient) HealthCheck(ctx context.Context) Health {
	var messages []string
	for _, c := range f.clients {
		h := c.HealthCheck(ctx)
		if h.Healthy {
			return h
		}
		messages = append(messages, c.Name()+": "+h.Message)
	}
	return Health{Message: strings.Join(messages, "; ")}
}
