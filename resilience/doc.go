// Package resilience provides the fault-tolerance primitives the relay
// gateway composes around outbound text-generation calls.
//
// This package includes:
//   - SlidingWindow: admission control over a continuously moving time window
//   - CircuitBreaker: fails fast while a downstream dependency is unhealthy
//   - BackoffConfig: exponential backoff delays for per-model retries
//   - Bulkhead: bounds concurrent in-flight downstream calls
//
// The primitives are independent; the gateway package owns their composition:
//
//	win := resilience.NewSlidingWindow(resilience.SlidingWindowConfig{Limit: 30, Window: time.Minute})
//	cb := resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("llm"))
//
//	if retryAfter, ok := win.Allow(); !ok {
//	    return errors.RateLimited(retryAfter)
//	}
//	err := cb.Execute(func() error { return callModel(ctx) })
package resilience
