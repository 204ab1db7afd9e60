// Package telemetry provides OpenTelemetry integration for the application.
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/reviewgate/reviewgate/pkg/logger"
)

const (
	// MeterName is the default meter name for the application
	MeterName = "github.com/reviewgate/reviewgate"
)

// Metrics holds all application metrics
type Metrics struct {
	// Webhook intake metrics
	WebhookEventsTotal metric.Int64Counter

	// Review run metrics
	RunsTotal     metric.Int64Counter
	RunsByStatus  metric.Int64Counter
	RunDuration   metric.Float64Histogram
	ActiveRuns    metric.Int64UpDownCounter
	CheckDuration metric.Float64Histogram

	// Queue metrics
	QueueDepth      metric.Int64UpDownCounter
	JobsRedelivered metric.Int64Counter

	// HTTP metrics
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram

	// AI metrics
	AIRequestsTotal metric.Int64Counter
	AIErrorsTotal   metric.Int64Counter

	// Host adapter metrics
	HostRequestsTotal metric.Int64Counter
	CommentPostsTotal metric.Int64Counter
}

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// GetMetrics returns the global metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		var err error
		globalMetrics, err = initMetrics()
		if err != nil {
			logger.Error("Failed to initialize metrics", zap.Error(err))
			// Empty metrics avoid nil pointer dereferences at call sites
			globalMetrics = &Metrics{}
		}
	})
	return globalMetrics
}

func initMetrics() (*Metrics, error) {
	meter := otel.Meter(MeterName)
	m := &Metrics{}

	var err error

	m.WebhookEventsTotal, err = meter.Int64Counter(
		"reviewgate_webhook_events_total",
		metric.WithDescription("Total number of webhook events received"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	m.RunsTotal, err = meter.Int64Counter(
		"reviewgate_review_runs_total",
		metric.WithDescription("Total number of review runs started"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	m.RunsByStatus, err = meter.Int64Counter(
		"reviewgate_review_runs_by_status_total",
		metric.WithDescription("Total number of review runs by terminal status"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	m.RunDuration, err = meter.Float64Histogram(
		"reviewgate_review_run_duration_seconds",
		metric.WithDescription("Duration of review runs in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 30, 60, 120, 300, 600),
	)
	if err != nil {
		return nil, err
	}

	m.ActiveRuns, err = meter.Int64UpDownCounter(
		"reviewgate_active_review_runs",
		metric.WithDescription("Number of review runs currently executing"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	m.CheckDuration, err = meter.Float64Histogram(
		"reviewgate_check_engine_duration_seconds",
		metric.WithDescription("Duration of deterministic check execution in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1, 5),
	)
	if err != nil {
		return nil, err
	}

	m.QueueDepth, err = meter.Int64UpDownCounter(
		"reviewgate_queue_depth",
		metric.WithDescription("Number of jobs waiting or delayed in the queue"),
		metric.WithUnit("{job}"),
	)
	if err != nil {
		return nil, err
	}

	m.JobsRedelivered, err = meter.Int64Counter(
		"reviewgate_queue_jobs_redelivered_total",
		metric.WithDescription("Total number of stalled jobs re-delivered"),
		metric.WithUnit("{job}"),
	)
	if err != nil {
		return nil, err
	}

	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"reviewgate_http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"reviewgate_http_request_duration_seconds",
		metric.WithDescription("Duration of HTTP requests in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, err
	}

	m.AIRequestsTotal, err = meter.Int64Counter(
		"reviewgate_ai_requests_total",
		metric.WithDescription("Total number of LLM suggestion requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	m.AIErrorsTotal, err = meter.Int64Counter(
		"reviewgate_ai_errors_total",
		metric.WithDescription("Total number of LLM suggestion failures by reason"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	m.HostRequestsTotal, err = meter.Int64Counter(
		"reviewgate_host_requests_total",
		metric.WithDescription("Total number of code-host API requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	m.CommentPostsTotal, err = meter.Int64Counter(
		"reviewgate_comment_posts_total",
		metric.WithDescription("Total number of summary comment create/update calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	logger.Info("Metrics initialized successfully")
	return m, nil
}

// RecordWebhookEvent records a webhook delivery and its outcome
func (m *Metrics) RecordWebhookEvent(ctx context.Context, provider, outcome string) {
	if m.WebhookEventsTotal == nil {
		return
	}
	m.WebhookEventsTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordRunStarted records that a review run started executing
func (m *Metrics) RecordRunStarted(ctx context.Context, tenant string) {
	if m.RunsTotal != nil {
		m.RunsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("tenant", tenant)))
	}
	if m.ActiveRuns != nil {
		m.ActiveRuns.Add(ctx, 1)
	}
}

// RecordRunFinished records a terminal state with its duration
func (m *Metrics) RecordRunFinished(ctx context.Context, status string, durationSeconds float64) {
	if m.ActiveRuns != nil {
		m.ActiveRuns.Add(ctx, -1)
	}
	if m.RunsByStatus != nil {
		m.RunsByStatus.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	}
	if m.RunDuration != nil {
		m.RunDuration.Record(ctx, durationSeconds, metric.WithAttributes(attribute.String("status", status)))
	}
}

// RecordCheckDuration records the duration of one check-engine execution
func (m *Metrics) RecordCheckDuration(ctx context.Context, durationSeconds float64) {
	if m.CheckDuration == nil {
		return
	}
	m.CheckDuration.Record(ctx, durationSeconds)
}

// RecordQueueDepthDelta adjusts the queue depth gauge
func (m *Metrics) RecordQueueDepthDelta(ctx context.Context, delta int64) {
	if m.QueueDepth == nil {
		return
	}
	m.QueueDepth.Add(ctx, delta)
}

// RecordJobRedelivered records a stalled-job re-delivery
func (m *Metrics) RecordJobRedelivered(ctx context.Context) {
	if m.JobsRedelivered == nil {
		return
	}
	m.JobsRedelivered.Add(ctx, 1)
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, durationSeconds float64) {
	if m.HTTPRequestsTotal != nil {
		m.HTTPRequestsTotal.Add(ctx, 1,
			metric.WithAttributes(
				attribute.String("method", method),
				attribute.String("path", path),
				attribute.Int("status_code", statusCode),
			),
		)
	}
	if m.HTTPRequestDuration != nil {
		m.HTTPRequestDuration.Record(ctx, durationSeconds,
			metric.WithAttributes(
				attribute.String("method", method),
				attribute.String("path", path),
			),
		)
	}
}

// RecordAIRequest records an LLM suggestion request
func (m *Metrics) RecordAIRequest(ctx context.Context, success bool) {
	if m.AIRequestsTotal == nil {
		return
	}
	m.AIRequestsTotal.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
}

// RecordAIError records a classified LLM failure
func (m *Metrics) RecordAIError(ctx context.Context, reason string) {
	if m.AIErrorsTotal == nil {
		return
	}
	m.AIErrorsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordHostRequest records a code-host API call
func (m *Metrics) RecordHostRequest(ctx context.Context, operation string, success bool) {
	if m.HostRequestsTotal == nil {
		return
	}
	m.HostRequestsTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("operation", operation),
			attribute.Bool("success", success),
		),
	)
}

// RecordCommentPost records a summary comment create or update
func (m *Metrics) RecordCommentPost(ctx context.Context, action string) {
	if m.CommentPostsTotal == nil {
		return
	}
	m.CommentPostsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
}
