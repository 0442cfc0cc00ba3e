package llm_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/ticketflow/pkg/ticketflow/config"
	"github.com/randalmurphal/ticketflow/pkg/ticketflow/llm"
	"github.com/randalmurphal/ticketflow/pkg/ticketflow/llm/llmtest"
)

func scriptedRegistry() *llm.Registry {
	r := llm.NewRegistry()
	r.Register("scripted", func(opts config.Options) (llm.Client, error) {
		c := llmtest.Respond("ok")
		c.ProviderName = opts.String("name", "scripted")
		return c, nil
	})
	return r
}

func tenantConfig(t *testing.T) config.File {
	t.Helper()
	cfg, err := config.Parse([]byte(`
providers:
  primary:
    type: scripted
    options:
      name: primary
  backup:
    type: scripted
    options:
      name: backup
tenants:
  acme:
    providers: [primary, backup]
  globex:
    providers: [backup]
`))
	require.NoError(t, err)
	return cfg
}

func TestBuildTenantClients(t *testing.T) {
	tc, err := llm.BuildTenantClients(tenantConfig(t), scriptedRegistry())
	require.NoError(t, err)

	acme, ok := tc.For("acme").(*llm.FallbackClient)
	require.True(t, ok)
	assert.Equal(t, "primary", acme.Active().Name())
	assert.Equal(t, "fallback(primary,backup)", acme.Name())

	globex, ok := tc.For("globex").(*llm.FallbackClient)
	require.True(t, ok)
	assert.Equal(t, "backup", globex.Active().Name())

	// Tenants without configuration get no client.
	assert.Nil(t, tc.For("initech"))
}

func TestBuildTenantClientsUnknownProviderType(t *testing.T) {
	cfg, err := config.Parse([]byte(`
providers:
  weird:
    type: does-not-exist
tenants:
  acme:
    providers: [weird]
`))
	require.NoError(t, err)

	_, err = llm.BuildTenantClients(cfg, llm.NewRegistry())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weird")
}

func TestProviderHealth(t *testing.T) {
	tc, err := llm.BuildTenantClients(tenantConfig(t), scriptedRegistry())
	require.NoError(t, err)

	health := tc.ProviderHealth(context.Background())
	require.Len(t, health, 2)
	assert.True(t, health["primary"].Healthy)
	assert.True(t, health["backup"].Healthy)
}
