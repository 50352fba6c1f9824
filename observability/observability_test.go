package observability

import (
	"context"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestNewGatewayMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	m, err := NewGatewayMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewGatewayMetrics: %v", err)
	}

	ctx := context.Background()
	m.RecordAttempt(ctx, "gemini", "gemini-2.5-flash", "success", 120*time.Millisecond)
	m.RecordGenerate(ctx, "success", 150*time.Millisecond)
	m.RecordRateLimited(ctx)
	m.RecordStateChange(ctx, "gateway", "closed", "open")

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(rm.ScopeMetrics) == 0 {
		t.Fatal("expected collected metrics")
	}

	names := make(map[string]bool)
	for _, sm := range rm.ScopeMetrics {
		for _, metricEntry := range sm.Metrics {
			names[metricEntry.Name] = true
		}
	}
	for _, want := range []string{
		"gateway.attempt.total",
		"gateway.attempt.duration",
		"gateway.generate.total",
		"gateway.generate.duration",
		"gateway.rate_limited.total",
		"gateway.breaker.transitions",
	} {
		if !names[want] {
			t.Errorf("expected metric %s to be recorded", want)
		}
	}
}

func TestNewHTTPMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	m, err := NewHTTPMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewHTTPMetrics: %v", err)
	}

	ctx := context.Background()
	m.RecordRequestStart(ctx)
	m.RecordRequestEnd(ctx, "POST", "/v1/generate", 200, 80*time.Millisecond)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(rm.ScopeMetrics) == 0 {
		t.Fatal("expected collected metrics")
	}
}

func TestServiceHealthAggregation(t *testing.T) {
	sh := NewServiceHealth("relay", "1.0.0")
	if sh.Status != HealthStatusUp {
		t.Fatalf("expected up, got %s", sh.Status)
	}

	sh.AddComponent(Health{Name: "gemini", Status: HealthStatusUp})
	if sh.Status != HealthStatusUp {
		t.Errorf("healthy component should not degrade service, got %s", sh.Status)
	}

	sh.AddComponent(Health{Name: "breaker", Status: HealthStatusDegraded})
	if sh.Status != HealthStatusDegraded {
		t.Errorf("expected degraded, got %s", sh.Status)
	}

	sh.AddComponent(Health{Name: "openai", Status: HealthStatusDown})
	if sh.Status != HealthStatusDown {
		t.Errorf("expected down, got %s", sh.Status)
	}

	sh.AddComponent(Health{Name: "anthropic", Status: HealthStatusDegraded})
	if sh.Status != HealthStatusDown {
		t.Errorf("down must not be upgraded, got %s", sh.Status)
	}

	if len(sh.Components) != 4 {
		t.Errorf("expected 4 components, got %d", len(sh.Components))
	}
}
