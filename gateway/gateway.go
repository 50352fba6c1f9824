// Package gateway orchestrates resilient calls to external text-generation
// providers. A Gateway walks an ordered model ladder, retrying each step with
// exponential backoff before escalating to the next, with every attempt gated
// by a shared sliding-window rate limiter and circuit breaker.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/kestrel-ai/relay/errors"
	"github.com/kestrel-ai/relay/llm"
	"github.com/kestrel-ai/relay/logger"
	"github.com/kestrel-ai/relay/observability"
	"github.com/kestrel-ai/relay/resilience"
)

// serviceName is how the downstream dependency is described in errors.
const serviceName = "text generation service"

// Request is the input to Generate.
type Request struct {
	// Prompt is the user prompt. Required.
	Prompt string
	// SystemPrompt is passed through the provider's system channel.
	SystemPrompt string
}

// Result is the output of a successful Generate call.
type Result struct {
	// Content is the generated text.
	Content string `json:"content"`
	// Provider and Model identify the ladder step that produced the result.
	Provider string `json:"provider"`
	Model    string `json:"model"`
	// Attempts counts downstream calls made across all steps, including the
	// successful one.
	Attempts int `json:"attempts"`
	// Usage reports token consumption.
	Usage llm.Usage `json:"usage"`
}

// resolvedStep pairs a ladder step with its provider, looked up once at
// construction so a misconfigured ladder fails fast.
type resolvedStep struct {
	Step
	provider llm.Provider
}

// Gateway wraps outbound text-generation calls with rate limiting, circuit
// breaking and model fallback. Safe for concurrent use.
type Gateway struct {
	config  Config
	steps   []resolvedStep
	limiter *resilience.SlidingWindow
	breaker *resilience.CircuitBreaker
	bulk    *resilience.Bulkhead
	log     *logger.Logger
	metrics Metrics
}

// Option configures optional Gateway collaborators.
type Option func(*Gateway)

// WithLogger sets the logger. Defaults to the global logger.
func WithLogger(l *logger.Logger) Option {
	return func(g *Gateway) { g.log = l }
}

// WithMetrics sets the metrics sink. Defaults to none.
func WithMetrics(m Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// New creates a Gateway. Every ladder step's provider must already be
// registered in providers.
func New(cfg Config, providers *llm.Registry, opts ...Option) (*Gateway, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	g := &Gateway{config: cfg}
	for _, opt := range opts {
		opt(g)
	}
	if g.log == nil {
		g.log = logger.GetGlobalLogger()
	}
	g.log = g.log.WithComponent("gateway")

	for _, step := range cfg.Ladder {
		p, err := providers.Get(step.Provider)
		if err != nil {
			return nil, fmt.Errorf("gateway: resolving ladder step %s/%s: %w", step.Provider, step.Model, err)
		}
		g.steps = append(g.steps, resolvedStep{Step: step, provider: p})
	}

	g.limiter = resilience.NewSlidingWindow(g.hookLimiter(cfg.RateLimit))
	g.breaker = resilience.NewCircuitBreaker(g.hookBreaker(cfg.Breaker))
	g.bulk = resilience.NewBulkhead(cfg.Bulkhead)

	return g, nil
}

// hookLimiter chains logging and metrics onto the limiter's denial hook.
func (g *Gateway) hookLimiter(cfg resilience.SlidingWindowConfig) resilience.SlidingWindowConfig {
	next := cfg.OnLimit
	cfg.OnLimit = func(name string) {
		g.log.Warn("rate limit exceeded", logger.Fields(
			"limiter", name,
			"limit", g.config.RateLimit.Limit,
		))
		if g.metrics != nil {
			g.metrics.RecordRateLimited(context.Background())
		}
		if next != nil {
			next(name)
		}
	}
	return cfg
}

// hookBreaker chains logging and metrics onto the breaker's transition hook.
func (g *Gateway) hookBreaker(cfg resilience.CircuitBreakerConfig) resilience.CircuitBreakerConfig {
	next := cfg.OnStateChange
	cfg.OnStateChange = func(name string, from, to resilience.State) {
		g.log.Warn("circuit breaker state change", logger.Fields(
			"breaker", name,
			"from", from.String(),
			"to", to.String(),
		))
		if g.metrics != nil {
			g.metrics.RecordStateChange(context.Background(), name, from.String(), to.String())
		}
		if next != nil {
			next(name, from, to)
		}
	}
	return cfg
}

// BreakerState exposes the breaker state for health reporting.
func (g *Gateway) BreakerState() resilience.State { return g.breaker.State() }

// RateLimitRemaining exposes the limiter headroom for health reporting.
func (g *Gateway) RateLimitRemaining() int { return g.limiter.Remaining() }

// Generate walks the model ladder until a step produces a result.
//
// Exactly one of three failure modes crosses this boundary (besides context
// cancellation): RATE_LIMITED when the shared quota is exhausted,
// SERVICE_UNAVAILABLE when the circuit breaker is open, and
// ALL_MODELS_UNAVAILABLE when every step's attempt budget is spent.
// Per-attempt failures are retried internally and never surfaced.
func (g *Gateway) Generate(ctx context.Context, req Request) (*Result, error) {
	if req.Prompt == "" {
		return nil, apperrors.MissingField("prompt")
	}

	ctx, span := observability.StartSpan(ctx, "gateway.generate")
	defer span.End()

	start := time.Now()
	result, err := g.generate(ctx, req)
	if err != nil {
		observability.SetSpanError(ctx, err)
	} else {
		span.SetAttributes(
			attribute.String("provider", result.Provider),
			attribute.String("model", result.Model),
			attribute.Int("attempts", result.Attempts),
		)
	}
	if g.metrics != nil {
		g.metrics.RecordGenerate(ctx, generateOutcome(err), time.Since(start))
	}
	return result, err
}

func (g *Gateway) generate(ctx context.Context, req Request) (*Result, error) {
	attempts := 0
	var lastErr error

	for _, step := range g.steps {
		for attempt := 1; attempt <= g.config.MaxRetries; attempt++ {
			// Quota is account-level: a denial here would apply to every
			// step, so it propagates without consulting the rest of the
			// ladder.
			if retryAfter, ok := g.limiter.Allow(); !ok {
				return nil, apperrors.RateLimited(retryAfter)
			}

			attempts++
			resp, err := g.attempt(ctx, step, req, attempt)
			if err == nil {
				g.log.Info("generate succeeded", logger.Fields(
					logger.FieldProvider, step.Provider,
					logger.FieldModel, step.Model,
					logger.FieldAttempt, attempts,
				))
				return &Result{
					Content:  resp.Content,
					Provider: step.Provider,
					Model:    step.Model,
					Attempts: attempts,
					Usage:    resp.Usage,
				}, nil
			}

			// The breaker is shared across the whole ladder, so every
			// remaining attempt would short-circuit identically.
			if errors.Is(err, resilience.ErrCircuitOpen) {
				return nil, apperrors.ServiceUnavailable(serviceName)
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}

			lastErr = err
			g.log.Warn("attempt failed", logger.Fields(
				logger.FieldProvider, step.Provider,
				logger.FieldModel, step.Model,
				logger.FieldAttempt, attempt,
				logger.FieldError, err.Error(),
			))

			// Retrying a malformed request wastes the step's budget.
			if !apperrors.IsRetryable(err) {
				break
			}
			if attempt < g.config.MaxRetries {
				if serr := resilience.Sleep(ctx, g.config.Backoff.Delay(attempt)); serr != nil {
					return nil, serr
				}
			}
		}

		g.log.Warn("ladder step exhausted", logger.Fields(
			logger.FieldProvider, step.Provider,
			logger.FieldModel, step.Model,
		))
	}

	return nil, apperrors.AllModelsUnavailable(lastErr)
}

// attempt makes one breaker-gated, bulkhead-bounded downstream call with a
// per-attempt timeout. The timeout counts as a failure for breaker and retry
// accounting.
func (g *Gateway) attempt(ctx context.Context, step resolvedStep, req Request, attempt int) (*llm.CompletionResponse, error) {
	ctx, span := observability.StartSpan(ctx, "gateway.attempt", trace.WithAttributes(
		attribute.String("provider", step.Provider),
		attribute.String("model", step.Model),
		attribute.Int("attempt", attempt),
	))
	defer span.End()

	attemptCtx, cancel := context.WithTimeout(ctx, g.config.AttemptTimeout)
	defer cancel()

	creq := llm.CompletionRequest{
		Model:        step.Model,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: req.Prompt}},
		SystemPrompt: req.SystemPrompt,
		Temperature:  step.Temperature,
		MaxTokens:    step.MaxTokens,
	}

	start := time.Now()
	var resp *llm.CompletionResponse
	err := g.bulk.Execute(attemptCtx, func() error {
		return g.breaker.Execute(func() error {
			r, cerr := step.provider.Complete(attemptCtx, creq)
			if cerr != nil {
				return cerr
			}
			resp = r
			return nil
		})
	})

	if g.metrics != nil {
		g.metrics.RecordAttempt(ctx, step.Provider, step.Model, attemptOutcome(err), time.Since(start))
	}
	if err != nil {
		observability.SetSpanError(ctx, err)
		return nil, err
	}
	return resp, nil
}

func attemptOutcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, resilience.ErrCircuitOpen):
		return OutcomeOpen
	default:
		return OutcomeError
	}
}

func generateOutcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case apperrors.IsCode(err, apperrors.ErrCodeRateLimited):
		return OutcomeRateLimited
	case errors.Is(err, resilience.ErrCircuitOpen) || apperrors.IsCode(err, apperrors.ErrCodeServiceUnavailable):
		return OutcomeOpen
	default:
		return OutcomeError
	}
}
