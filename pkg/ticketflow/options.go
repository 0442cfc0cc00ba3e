package ticketflow

import (
	"log/slog"

	"github.com/randalmurphal/ticketflow/pkg/ticketflow/checkpoint"
	"github.com/randalmurphal/ticketflow/pkg/ticketflow/llm"
	"github.com/randalmurphal/ticketflow/pkg/ticketflow/observability"
	"github.com/randalmurphal/ticketflow/pkg/ticketflow/tickets"
)

// runConfig holds configuration for graph execution.
type runConfig struct {
	store   checkpoint.Store
	ticket  *tickets.Ticket
	client  llm.Client
	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
	tracing bool
}

// defaultRunConfig returns the default execution configuration.
func defaultRunConfig() runConfig {
	return runConfig{
		metrics: observability.NoopMetrics{},
		spans:   observability.NoopSpanManager{},
	}
}

// RunOption configures execution behavior.
type RunOption func(*runConfig)

// WithStore sets the checkpoint store the run persists through.
// Required: Run and Resume fail with ErrStoreRequired without it.
func WithStore(store checkpoint.Store) RunOption {
	return func(c *runConfig) {
		c.store = store
	}
}

// WithTicket attaches the ticket the run executes for; agents read it
// through their AgentContext.
func WithTicket(t *tickets.Ticket) RunOption {
	return func(c *runConfig) {
		c.ticket = t
	}
}

// WithLLM sets the language model client agents use.
func WithLLM(client llm.Client) RunOption {
	return func(c *runConfig) {
		c.client = client
	}
}

// WithLogger sets the logger for execution events. Nil disables logging.
func WithLogger(logger *slog.Logger) RunOption {
	return func(c *runConfig) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics recorder for stage and run metrics.
func WithMetrics(m observability.MetricsRecorder) RunOption {
	return func(c *runConfig) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithTracing enables span creation through the given manager.
func WithTracing(spans observability.SpanManager) RunOption {
	return func(c *runConfig) {
		if spans != nil {
			c.spans = spans
			c.tracing = true
		}
	}
}
