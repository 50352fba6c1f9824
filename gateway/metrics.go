package gateway

import (
	"context"
	"time"
)

// Attempt and request outcome labels reported to Metrics.
const (
	OutcomeSuccess     = "success"
	OutcomeError       = "error"
	OutcomeOpen        = "open"
	OutcomeRateLimited = "rate_limited"
)

// Metrics receives gateway measurements. Implementations must be safe for
// concurrent use. A nil Metrics disables instrumentation.
type Metrics interface {
	// RecordAttempt records one downstream call attempt.
	RecordAttempt(ctx context.Context, provider, model, outcome string, elapsed time.Duration)
	// RecordGenerate records a completed Generate call end to end.
	RecordGenerate(ctx context.Context, outcome string, elapsed time.Duration)
	// RecordRateLimited records a denied admission.
	RecordRateLimited(ctx context.Context)
	// RecordStateChange records a circuit breaker transition.
	RecordStateChange(ctx context.Context, breaker, from, to string)
}
