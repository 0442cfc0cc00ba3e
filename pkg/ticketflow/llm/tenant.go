package llm

import (
	"context"
	"fmt"

	"github.com/randalmurphal/ticketflow/pkg/ticketflow/config"
)

// TenantClients holds one fallback client per configured tenant, built
// from the tenant's ordered provider preference. Provider clients are
// resolved once and shared across tenants.
type TenantClients struct {
	providers map[string]Client
	tenants   map[string]Client
}

// BuildTenantClients resolves every configured provider through the
// registry and assembles each tenant's fallback chain.
func BuildTenantClients(cfg config.File, registry *Registry) (*TenantClients, error) {
	tc := &TenantClients{
		providers: make(map[string]Client, len(cfg.Providers)),
		tenants:   make(map[string]Client, len(cfg.Tenants)),
	}

	for name, p := range cfg.Providers {
		client, err := registry.Resolve(p.Type, config.NewOptions(p.Options))
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", name, err)
		}
		tc.providers[name] = client
	}

	for tenantID, tenant := range cfg.Tenants {
		chain := make([]Client, 0, len(tenant.Providers))
		for _, name := range tenant.Providers {
			client, ok := tc.providers[name]
			if !ok {
				return nil, fmt.Errorf("tenant %s: unknown provider %q", tenantID, name)
			}
			chain = append(chain, client)
		}
		fb, err := NewFallback(chain...)
		if err != nil {
			return nil, fmt.Errorf("tenant %s: %w", tenantID, err)
		}
		tc.tenants[tenantID] = fb
	}
	return tc, nil
}

// For returns the tenant's fallback client, or nil when the tenant has
// no provider configuration. Agents treat a nil client as a fatal
// misconfiguration, which is the desired failure mode.
func (tc *TenantClients) For(tenantID string) Client {
	return tc.tenants[tenantID]
}

// ProviderHealth checks every resolved provider once, keyed by the
// provider's configuration name.
func (tc *TenantClients) ProviderHealth(ctx context.Context) map[string]Health {
	out := make(map[string]Health, len(tc.providers))
	for name, client := range tc.providers {
		out[name] = client.HealthCheck(ctx)
	}
	return out
}
