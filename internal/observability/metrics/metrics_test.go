package metrics

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("org_id", "123"),
		attribute.String("user_email", "a@example.com"),
		attribute.String("outcome", "proceed"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "org_id" && attrs[1].Key != "org_id" {
		t.Fatalf("expected org_id to be retained")
	}
	if attrs[0].Key != "outcome" && attrs[1].Key != "outcome" {
		t.Fatalf("expected outcome to be retained")
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordInvitationEvent(context.Background(), "created")
	m.RecordReconciliation(context.Background(), "proceed")
	m.RecordGateDenial(context.Background(), "not_a_member")
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "taskhub"}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	m.RecordInvitationEvent(context.Background(), "accepted")
	m.RecordRateLimitDenied(context.Background(), "1", "invitations", "bucket_empty")
}

func TestRecordJobRunExportsCounterAndHistogram(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := New(Config{}, provider)
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}

	m.RecordJobRun(context.Background(), "outbox_relay", "ok", 250*time.Millisecond)
	m.RecordJobRun(context.Background(), "outbox_relay", "error", time.Second)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	seen := map[string]bool{}
	for _, scope := range rm.ScopeMetrics {
		if scope.Scope.Name != "taskhub" {
			t.Fatalf("unexpected meter name %q", scope.Scope.Name)
		}
		for _, metric := range scope.Metrics {
			seen[metric.Name] = true
			if sum, ok := metric.Data.(metricdata.Sum[int64]); ok && metric.Name == "taskhub_scheduler_job_runs_total" {
				if len(sum.DataPoints) != 2 {
					t.Fatalf("expected one point per outcome, got %d", len(sum.DataPoints))
				}
			}
		}
	}
	if !seen["taskhub_scheduler_job_runs_total"] || !seen["taskhub_scheduler_job_duration_seconds"] {
		t.Fatalf("job instruments not exported: %v", seen)
	}
}
