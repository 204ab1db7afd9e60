package telemetry

import (
	"context"
	"testing"
)

func TestNewDisabled(t *testing.T) {
	tel, err := New(Config{Enabled: false})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if tel.IsEnabled() {
		t.Error("IsEnabled() = true, want false")
	}
	if err := tel.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestNewEnabledWithoutExporters(t *testing.T) {
	// No OTLP endpoint and no metrics port: providers install locally
	// without dialing or listening anywhere.
	tel, err := New(Config{Enabled: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if !tel.IsEnabled() {
		t.Error("IsEnabled() = false, want true")
	}
	if err := tel.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestGetMetrics(t *testing.T) {
	m := GetMetrics()
	if m == nil {
		t.Fatal("GetMetrics() returned nil")
	}

	// Recording must be safe regardless of exporter state
	ctx := context.Background()
	m.RecordWebhookEvent(ctx, "gitlab", "accepted")
	m.RecordRunStarted(ctx, "t1")
	m.RecordRunFinished(ctx, "SUCCEEDED", 1.5)
	m.RecordCheckDuration(ctx, 0.02)
	m.RecordQueueDepthDelta(ctx, 1)
	m.RecordQueueDepthDelta(ctx, -1)
	m.RecordAIRequest(ctx, true)
	m.RecordAIError(ctx, "timeout")
	m.RecordHostRequest(ctx, "get_merge_request", true)
	m.RecordCommentPost(ctx, "create")

	// Second call returns the same instance
	if GetMetrics() != m {
		t.Error("GetMetrics() is not a singleton")
	}
}

func TestStartSpan(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "test-span")
	if span == nil {
		t.Fatal("StartSpan() returned nil span")
	}
	SetSpanOK(span)
	span.End()

	if SpanFromContext(ctx) == nil {
		t.Error("SpanFromContext() returned nil")
	}
}
