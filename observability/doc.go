// Package observability provides OpenTelemetry tracing and metrics for the
// relay service.
//
// Tracing:
//
//	tp, err := observability.InitTracer(ctx, observability.DefaultTracerConfig("relay"))
//	defer tp.Shutdown(ctx)
//
// Metrics:
//
//	mp, err := observability.InitMeter(ctx, observability.DefaultMeterConfig("relay"))
//	defer mp.Shutdown(ctx)
//
//	metrics, err := observability.NewGatewayMetrics(observability.Meter("relay"))
package observability
