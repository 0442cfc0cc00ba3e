package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records ticketflow metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordStageExecution records a stage execution with its duration and error status.
	RecordStageExecution(ctx context.Context, graph, stage string, duration time.Duration, err error)

	// RecordGraphRun records a graph run outcome (completed, suspended, failed).
	RecordGraphRun(ctx context.Context, graph, status string, duration time.Duration)

	// RecordLease records work items leased in one batch for a tenant.
	RecordLease(ctx context.Context, tenantID string, count int)

	// RecordLLMUsage records token usage and latency of one LLM call.
	RecordLLMUsage(ctx context.Context, provider string, inputTokens, outputTokens int, latency time.Duration)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	stageExecutions metric.Int64Counter
	stageLatency    metric.Float64Histogram
	stageErrors     metric.Int64Counter
	graphRuns       metric.Int64Counter
	graphLatency    metric.Float64Histogram
	itemsLeased     metric.Int64Counter
	llmTokens       metric.Int64Counter
	llmLatency      metric.Float64Histogram
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("ticketflow")

	stageExecutions, err := meter.Int64Counter("ticketflow.stage.executions",
		metric.WithDescription("Number of stage executions"),
	)
	if err != nil {
		return nil, err
	}

	stageLatency, err := meter.Float64Histogram("ticketflow.stage.latency_ms",
		metric.WithDescription("Stage execution latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	stageErrors, err := meter.Int64Counter("ticketflow.stage.errors",
		metric.WithDescription("Number of stage execution errors"),
	)
	if err != nil {
		return nil, err
	}

	graphRuns, err := meter.Int64Counter("ticketflow.graph.runs",
		metric.WithDescription("Number of graph runs by terminal status"),
	)
	if err != nil {
		return nil, err
	}

	graphLatency, err := meter.Float64Histogram("ticketflow.graph.latency_ms",
		metric.WithDescription("Graph run latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	itemsLeased, err := meter.Int64Counter("ticketflow.queue.items_leased",
		metric.WithDescription("Number of work items leased"),
	)
	if err != nil {
		return nil, err
	}

	llmTokens, err := meter.Int64Counter("ticketflow.llm.tokens",
		metric.WithDescription("LLM tokens consumed"),
	)
	if err != nil {
		return nil, err
	}

	llmLatency, err := meter.Float64Histogram("ticketflow.llm.latency_ms",
		metric.WithDescription("LLM call latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		stageExecutions: stageExecutions,
		stageLatency:    stageLatency,
		stageErrors:     stageErrors,
		graphRuns:       graphRuns,
		graphLatency:    graphLatency,
		itemsLeased:     itemsLeased,
		llmTokens:       llmTokens,
		llmLatency:      llmLatency,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordStageExecution records a stage execution.
func (m *otelMetrics) RecordStageExecution(ctx context.Context, graph, stage string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("graph", graph),
		attribute.String("stage", stage),
	}

	m.stageExecutions.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.stageLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if err != nil {
		m.stageErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordGraphRun records a graph run outcome.
func (m *otelMetrics) RecordGraphRun(ctx context.Context, graph, status string, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("graph", graph),
		attribute.String("status", status),
	}
	m.graphRuns.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.graphLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordLease records a lease batch.
func (m *otelMetrics) RecordLease(ctx context.Context, tenantID string, count int) {
	m.itemsLeased.Add(ctx, int64(count), metric.WithAttributes(
		attribute.String("tenant_id", tenantID),
	))
}

// RecordLLMUsage records one LLM call's usage.
func (m *otelMetrics) RecordLLMUsage(ctx context.Context, provider string, inputTokens, outputTokens int, latency time.Duration) {
	m.llmTokens.Add(ctx, int64(inputTokens), metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("direction", "input"),
	))
	m.llmTokens.Add(ctx, int64(outputTokens), metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("direction", "output"),
	))
	m.llmLatency.Record(ctx, float64(latency.Milliseconds()), metric.WithAttributes(
		attribute.String("provider", provider),
	))
}
