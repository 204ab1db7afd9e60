// Package telemetry provides OpenTelemetry integration for the application.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// TracerName is the default tracer name for the application
	TracerName = "github.com/reviewgate/reviewgate"
)

// Tracer returns the global tracer for the application
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// StartSpan starts a new span with the given name and returns the context and span.
// The caller is responsible for calling span.End() when the operation is complete.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// SpanFromContext returns the current span from the context.
// If no span is found, a no-op span is returned.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// SetSpanError records an error on the span and sets its status to error
func SetSpanError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanOK sets the span status to OK
func SetSpanOK(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// AddSpanEvent adds an event to the span with optional attributes
func AddSpanEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// Common attribute keys for consistent naming
var (
	// Job attributes
	AttrJobID = attribute.Key("job.id")

	// Repository attributes
	AttrRepoProjectID = attribute.Key("repo.project_id")
	AttrRepoNamespace = attribute.Key("repo.namespace")
	AttrRepoName      = attribute.Key("repo.name")

	// Merge request attributes
	AttrMRIID     = attribute.Key("mr.iid")
	AttrMRHeadSHA = attribute.Key("mr.head_sha")

	// Review run attributes
	AttrRunID     = attribute.Key("run.id")
	AttrRunStatus = attribute.Key("run.status")
	AttrTenant    = attribute.Key("tenant.slug")
)

// WithRunAttributes returns span start options with review run attributes
func WithRunAttributes(runID, tenantSlug string) trace.SpanStartOption {
	return trace.WithAttributes(
		AttrRunID.String(runID),
		AttrTenant.String(tenantSlug),
	)
}
