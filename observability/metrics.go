package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// GatewayMetrics holds the instruments emitted by the call gateway. It
// satisfies the gateway's Metrics interface.
type GatewayMetrics struct {
	attemptTotal       metric.Int64Counter
	attemptDuration    metric.Float64Histogram
	generateTotal      metric.Int64Counter
	generateDuration   metric.Float64Histogram
	rateLimitedTotal   metric.Int64Counter
	breakerTransitions metric.Int64Counter
}

// NewGatewayMetrics creates the gateway instruments on the given meter.
func NewGatewayMetrics(meter metric.Meter) (*GatewayMetrics, error) {
	attemptTotal, err := meter.Int64Counter("gateway.attempt.total",
		metric.WithDescription("Downstream call attempts by provider, model and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating gateway.attempt.total counter: %w", err)
	}

	attemptDuration, err := meter.Float64Histogram("gateway.attempt.duration",
		metric.WithDescription("Duration of downstream call attempts in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating gateway.attempt.duration histogram: %w", err)
	}

	generateTotal, err := meter.Int64Counter("gateway.generate.total",
		metric.WithDescription("Generate calls by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating gateway.generate.total counter: %w", err)
	}

	generateDuration, err := meter.Float64Histogram("gateway.generate.duration",
		metric.WithDescription("End-to-end Generate duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating gateway.generate.duration histogram: %w", err)
	}

	rateLimitedTotal, err := meter.Int64Counter("gateway.rate_limited.total",
		metric.WithDescription("Admissions denied by the sliding-window rate limiter"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating gateway.rate_limited.total counter: %w", err)
	}

	breakerTransitions, err := meter.Int64Counter("gateway.breaker.transitions",
		metric.WithDescription("Circuit breaker state transitions"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating gateway.breaker.transitions counter: %w", err)
	}

	return &GatewayMetrics{
		attemptTotal:       attemptTotal,
		attemptDuration:    attemptDuration,
		generateTotal:      generateTotal,
		generateDuration:   generateDuration,
		rateLimitedTotal:   rateLimitedTotal,
		breakerTransitions: breakerTransitions,
	}, nil
}

// RecordAttempt records one downstream call attempt.
func (m *GatewayMetrics) RecordAttempt(ctx context.Context, provider, model, outcome string, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("model", model),
		attribute.String("outcome", outcome),
	)
	m.attemptTotal.Add(ctx, 1, attrs)
	m.attemptDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("model", model),
	))
}

// RecordGenerate records a completed Generate call end to end.
func (m *GatewayMetrics) RecordGenerate(ctx context.Context, outcome string, elapsed time.Duration) {
	m.generateTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	m.generateDuration.Record(ctx, elapsed.Seconds())
}

// RecordRateLimited records a denied admission.
func (m *GatewayMetrics) RecordRateLimited(ctx context.Context) {
	m.rateLimitedTotal.Add(ctx, 1)
}

// RecordStateChange records a circuit breaker transition.
func (m *GatewayMetrics) RecordStateChange(ctx context.Context, breaker, from, to string) {
	m.breakerTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("breaker", breaker),
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// HTTPMetrics holds request-level instruments for the HTTP server.
type HTTPMetrics struct {
	requestTotal    metric.Int64Counter
	requestDuration metric.Float64Histogram
	requestActive   metric.Int64UpDownCounter
}

// NewHTTPMetrics creates the HTTP instruments on the given meter.
func NewHTTPMetrics(meter metric.Meter) (*HTTPMetrics, error) {
	requestTotal, err := meter.Int64Counter("http.request.total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating http.request.total counter: %w", err)
	}

	requestDuration, err := meter.Float64Histogram("http.request.duration",
		metric.WithDescription("Duration of HTTP requests in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating http.request.duration histogram: %w", err)
	}

	requestActive, err := meter.Int64UpDownCounter("http.request.active",
		metric.WithDescription("Number of in-flight HTTP requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating http.request.active gauge: %w", err)
	}

	return &HTTPMetrics{
		requestTotal:    requestTotal,
		requestDuration: requestDuration,
		requestActive:   requestActive,
	}, nil
}

// RecordRequestStart increments the in-flight request count.
func (m *HTTPMetrics) RecordRequestStart(ctx context.Context) {
	m.requestActive.Add(ctx, 1)
}

// RecordRequestEnd decrements in-flight requests and records the completed request.
func (m *HTTPMetrics) RecordRequestEnd(ctx context.Context, method, path string, status int, duration time.Duration) {
	m.requestActive.Add(ctx, -1)
	m.requestTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.Int("status", status),
	))
	m.requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
	))
}
