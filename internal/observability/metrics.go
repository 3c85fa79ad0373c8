package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsCollector manages all metrics for mailcrew.
type MetricsCollector struct {
	meter metric.Meter

	// Webhook metrics
	webhooksReceived  metric.Int64Counter
	webhooksRejected  metric.Int64Counter
	webhooksDuplicate metric.Int64Counter

	// Approval metrics
	approvalsRequested metric.Int64Counter
	approvalsResolved  metric.Int64Counter

	// Run metrics
	toolExecutions metric.Int64Counter
	runDuration    metric.Float64Histogram
}

// MetricsConfig configures the metrics collector.
type MetricsConfig struct {
	Enabled bool
}

// NewMetricsCollector creates a metrics collector backed by an OpenTelemetry
// meter with a Prometheus exporter. Disabled collectors are safe no-ops.
func NewMetricsCollector(config MetricsConfig) (*MetricsCollector, error) {
	if !config.Enabled {
		return &MetricsCollector{}, nil
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)
	meter := provider.Meter("mailcrew")

	webhooksReceived, err := meter.Int64Counter(
		"mailcrew.webhooks.received",
		metric.WithDescription("Inbound email webhooks accepted for processing"),
		metric.WithUnit("{webhook}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create webhooks_received counter: %w", err)
	}

	webhooksRejected, err := meter.Int64Counter(
		"mailcrew.webhooks.rejected",
		metric.WithDescription("Inbound webhooks dropped by the sender allow-list"),
		metric.WithUnit("{webhook}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create webhooks_rejected counter: %w", err)
	}

	webhooksDuplicate, err := meter.Int64Counter(
		"mailcrew.webhooks.duplicate",
		metric.WithDescription("Inbound webhooks dropped as duplicate message ids"),
		metric.WithUnit("{webhook}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create webhooks_duplicate counter: %w", err)
	}

	approvalsRequested, err := meter.Int64Counter(
		"mailcrew.approvals.requested",
		metric.WithDescription("Approval requests issued to the human channel"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create approvals_requested counter: %w", err)
	}

	approvalsResolved, err := meter.Int64Counter(
		"mailcrew.approvals.resolved",
		metric.WithDescription("Approval requests resolved, by outcome"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create approvals_resolved counter: %w", err)
	}

	toolExecutions, err := meter.Int64Counter(
		"mailcrew.tools.executions",
		metric.WithDescription("Tool executions, by tool name"),
		metric.WithUnit("{execution}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create tool_executions counter: %w", err)
	}

	runDuration, err := meter.Float64Histogram(
		"mailcrew.run.duration",
		metric.WithDescription("End-to-end email run duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create run_duration histogram: %w", err)
	}

	return &MetricsCollector{
		meter:              meter,
		webhooksReceived:   webhooksReceived,
		webhooksRejected:   webhooksRejected,
		webhooksDuplicate:  webhooksDuplicate,
		approvalsRequested: approvalsRequested,
		approvalsResolved:  approvalsResolved,
		toolExecutions:     toolExecutions,
		runDuration:        runDuration,
	}, nil
}

// Handler returns the Prometheus scrape handler.
func (m *MetricsCollector) Handler() http.Handler {
	return promhttp.Handler()
}

// RecordWebhookReceived counts an accepted inbound webhook.
func (m *MetricsCollector) RecordWebhookReceived(ctx context.Context) {
	if m == nil || m.webhooksReceived == nil {
		return
	}
	m.webhooksReceived.Add(ctx, 1)
}

// RecordWebhookRejected counts an allow-list rejection.
func (m *MetricsCollector) RecordWebhookRejected(ctx context.Context) {
	if m == nil || m.webhooksRejected == nil {
		return
	}
	m.webhooksRejected.Add(ctx, 1)
}

// RecordWebhookDuplicate counts a duplicate message id drop.
func (m *MetricsCollector) RecordWebhookDuplicate(ctx context.Context) {
	if m == nil || m.webhooksDuplicate == nil {
		return
	}
	m.webhooksDuplicate.Add(ctx, 1)
}

// RecordApprovalRequested counts an issued approval request.
func (m *MetricsCollector) RecordApprovalRequested(ctx context.Context, tool string) {
	if m == nil || m.approvalsRequested == nil {
		return
	}
	m.approvalsRequested.Add(ctx, 1, metric.WithAttributes(attribute.String("tool", tool)))
}

// RecordApprovalResolved counts a resolved approval with its outcome
// (approved, denied, timeout).
func (m *MetricsCollector) RecordApprovalResolved(ctx context.Context, outcome string) {
	if m == nil || m.approvalsResolved == nil {
		return
	}
	m.approvalsResolved.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordToolExecution counts one tool execution.
func (m *MetricsCollector) RecordToolExecution(ctx context.Context, tool string, failed bool) {
	if m == nil || m.toolExecutions == nil {
		return
	}
	m.toolExecutions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.Bool("failed", failed),
	))
}

// RecordRunDuration records one end-to-end run.
func (m *MetricsCollector) RecordRunDuration(ctx context.Context, d time.Duration, failed bool) {
	if m == nil || m.runDuration == nil {
		return
	}
	m.runDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.Bool("failed", failed)))
}
