package llm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/ticketflow/pkg/ticketflow/config"
	"github.com/randalmurphal/ticketflow/pkg/ticketflow/llm"
	"github.com/randalmurphal/ticketflow/pkg/ticketflow/llm/llmtest"
)

func TestRegistryResolvesBuiltins(t *testing.T) {
	r := llm.NewRegistry()

	claude, err := r.Resolve("claude-cli", config.NewOptions(map[string]any{
		"model": "claude-sonnet-4-5",
	}))
	require.NoError(t, err)
	assert.Equal(t, "claude-cli", claude.Name())

	httpClient, err := r.Resolve("http", config.NewOptions(map[string]any{
		"base_url": "https://llm.internal/v1",
	}))
	require.NoError(t, err)
	assert.Equal(t, "http", httpClient.Name())
}

func TestRegistryUnknownProvider(t *testing.T) {
	r := llm.NewRegistry()
	_, err := r.Resolve("ghost", config.NewOptions(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown llm provider")
}

func TestRegistryHTTPRequiresBaseURL(t *testing.T) {
	r := llm.NewRegistry()
	_, err := r.Resolve("http", config.NewOptions(nil))
	require.Error(t, err)
}

func TestRegistryCustomFactory(t *testing.T) {
	r := llm.NewRegistry()
	r.Register("scripted", func(config.Options) (llm.Client, error) {
		return llmtest.Respond("hello"), nil
	})

	client, err := r.Resolve("scripted", config.NewOptions(nil))
	require.NoError(t, err)
	assert.Equal(t, "mock", client.Name())
	assert.Contains(t, r.Keys(), "scripted")
}
