package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	apperrors "github.com/kestrel-ai/relay/errors"
	"github.com/kestrel-ai/relay/llm"
	"github.com/kestrel-ai/relay/logger"
	"github.com/kestrel-ai/relay/resilience"
)

// stubProvider counts invocations and delegates to fn.
type stubProvider struct {
	name string
	fn   func(req llm.CompletionRequest) (*llm.CompletionResponse, error)

	mu    sync.Mutex
	calls int
}

func (s *stubProvider) Name() string                        { return s.name }
func (s *stubProvider) IsAvailable(_ context.Context) bool  { return true }
func (s *stubProvider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.fn(req)
}

func (s *stubProvider) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func succeeding(name, content string) *stubProvider {
	return &stubProvider{name: name, fn: func(req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return &llm.CompletionResponse{Content: content, Model: req.Model}, nil
	}}
}

func failing(name string) *stubProvider {
	return &stubProvider{name: name, fn: func(llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return nil, apperrors.ExternalServiceError(name, true, errors.New("boom"))
	}}
}

func failingPermanently(name string) *stubProvider {
	return &stubProvider{name: name, fn: func(llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return nil, apperrors.ExternalServiceError(name, false, errors.New("bad request"))
	}}
}

func quietLogger() *logger.Logger {
	return logger.New(&logger.Config{Level: "disabled", Format: "json", Output: "stderr"}, "test")
}

// testConfig returns a config with tiny delays and generous limits so tests
// exercising one property do not trip the others.
func testConfig(ladder ...Step) Config {
	cfg := DefaultConfig()
	cfg.Ladder = ladder
	cfg.MaxRetries = 2
	cfg.AttemptTimeout = time.Second
	cfg.Backoff = resilience.BackoffConfig{BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}
	cfg.RateLimit = resilience.SlidingWindowConfig{Name: "test", Limit: 1000, Window: time.Minute}
	cfg.Breaker = resilience.CircuitBreakerConfig{Name: "test", MaxFailures: 1000, Cooldown: time.Minute}
	return cfg
}

func newGateway(t *testing.T, cfg Config, providers ...*stubProvider) *Gateway {
	t.Helper()
	reg := llm.NewRegistry()
	for _, p := range providers {
		reg.Register(p)
	}
	g, err := New(cfg, reg, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g
}

func TestNew_UnknownProvider(t *testing.T) {
	reg := llm.NewRegistry()
	cfg := testConfig(Step{Provider: "ghost", Model: "m"})
	if _, err := New(cfg, reg, WithLogger(quietLogger())); err == nil {
		t.Fatal("expected error for unregistered provider")
	}
}

func TestNew_EmptyLadder(t *testing.T) {
	if _, err := New(testConfig(), llm.NewRegistry(), WithLogger(quietLogger())); err == nil {
		t.Fatal("expected error for empty ladder")
	}
}

func TestGenerate_MissingPrompt(t *testing.T) {
	p := succeeding("a", "ok")
	g := newGateway(t, testConfig(Step{Provider: "a", Model: "m"}), p)

	_, err := g.Generate(context.Background(), Request{})
	if !apperrors.IsCode(err, apperrors.ErrCodeMissingField) {
		t.Fatalf("expected MISSING_FIELD, got %v", err)
	}
	if p.Calls() != 0 {
		t.Errorf("no provider should be invoked, got %d calls", p.Calls())
	}
}

func TestGenerate_FirstStepSucceeds(t *testing.T) {
	p := succeeding("a", "answer")
	g := newGateway(t, testConfig(Step{Provider: "a", Model: "m1"}), p)

	res, err := g.Generate(context.Background(), Request{Prompt: "q"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Content != "answer" || res.Provider != "a" || res.Model != "m1" {
		t.Errorf("unexpected result: %+v", res)
	}
	if res.Attempts != 1 || p.Calls() != 1 {
		t.Errorf("expected exactly one attempt, got attempts=%d calls=%d", res.Attempts, p.Calls())
	}
}

func TestGenerate_EscalatesToThirdStep(t *testing.T) {
	p1, p2 := failing("a"), failing("b")
	p3 := succeeding("c", "third time lucky")
	cfg := testConfig(
		Step{Provider: "a", Model: "m1"},
		Step{Provider: "b", Model: "m2"},
		Step{Provider: "c", Model: "m3"},
	)
	g := newGateway(t, cfg, p1, p2, p3)

	res, err := g.Generate(context.Background(), Request{Prompt: "q"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Content != "third time lucky" || res.Provider != "c" {
		t.Errorf("unexpected result: %+v", res)
	}
	if p1.Calls() != cfg.MaxRetries || p2.Calls() != cfg.MaxRetries {
		t.Errorf("failing steps should use their full budget, got %d and %d", p1.Calls(), p2.Calls())
	}
	if p3.Calls() != 1 {
		t.Errorf("succeeding step should be invoked exactly once, got %d", p3.Calls())
	}
}

func TestGenerate_AllStepsExhausted(t *testing.T) {
	p1, p2 := failing("a"), failing("b")
	g := newGateway(t, testConfig(
		Step{Provider: "a", Model: "m1"},
		Step{Provider: "b", Model: "m2"},
	), p1, p2)

	_, err := g.Generate(context.Background(), Request{Prompt: "q"})
	if !apperrors.IsCode(err, apperrors.ErrCodeAllModelsUnavailable) {
		t.Fatalf("expected ALL_MODELS_UNAVAILABLE, got %v", err)
	}
	appErr, _ := apperrors.AsAppError(err)
	if appErr.Cause == nil {
		t.Error("expected the last attempt error as cause")
	}
}

func TestGenerate_RateLimitDenialShortCircuitsLadder(t *testing.T) {
	p := succeeding("a", "ok")
	cfg := testConfig(Step{Provider: "a", Model: "m"})
	cfg.RateLimit = resilience.SlidingWindowConfig{Name: "test", Limit: 1, Window: time.Hour}
	g := newGateway(t, cfg, p)

	if _, err := g.Generate(context.Background(), Request{Prompt: "q"}); err != nil {
		t.Fatalf("first call should be admitted: %v", err)
	}

	_, err := g.Generate(context.Background(), Request{Prompt: "q"})
	if !apperrors.IsCode(err, apperrors.ErrCodeRateLimited) {
		t.Fatalf("expected RATE_LIMITED, got %v", err)
	}
	if p.Calls() != 1 {
		t.Errorf("denied call must not invoke any model, got %d calls", p.Calls())
	}
	appErr, _ := apperrors.AsAppError(err)
	if _, ok := appErr.Details["retry_after_seconds"]; !ok {
		t.Error("expected retry_after_seconds detail")
	}
}

func TestGenerate_BreakerOpenReturnsServiceUnavailable(t *testing.T) {
	p1, p2 := failing("a"), succeeding("b", "never reached")
	cfg := testConfig(
		Step{Provider: "a", Model: "m1"},
		Step{Provider: "b", Model: "m2"},
	)
	cfg.MaxRetries = 1
	cfg.Breaker = resilience.CircuitBreakerConfig{Name: "test", MaxFailures: 1, Cooldown: time.Hour}
	g := newGateway(t, cfg, p1, p2)

	_, err := g.Generate(context.Background(), Request{Prompt: "q"})
	if !apperrors.IsCode(err, apperrors.ErrCodeServiceUnavailable) {
		t.Fatalf("expected SERVICE_UNAVAILABLE, got %v", err)
	}
	if p1.Calls() != 1 {
		t.Errorf("first step should be invoked once before the breaker opens, got %d", p1.Calls())
	}
	if p2.Calls() != 0 {
		t.Errorf("open breaker must not invoke further models, got %d calls", p2.Calls())
	}
}

func TestGenerate_NonRetryableSkipsRemainingAttempts(t *testing.T) {
	p1, p2 := failingPermanently("a"), succeeding("b", "ok")
	cfg := testConfig(
		Step{Provider: "a", Model: "m1"},
		Step{Provider: "b", Model: "m2"},
	)
	cfg.MaxRetries = 3
	g := newGateway(t, cfg, p1, p2)

	res, err := g.Generate(context.Background(), Request{Prompt: "q"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if p1.Calls() != 1 {
		t.Errorf("non-retryable error should not be retried, got %d calls", p1.Calls())
	}
	if res.Provider != "b" || res.Attempts != 2 {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestGenerate_BackoffDelaysBetweenRetries(t *testing.T) {
	p := failing("a")
	cfg := testConfig(Step{Provider: "a", Model: "m"})
	cfg.MaxRetries = 3
	cfg.Backoff = resilience.BackoffConfig{BaseDelay: 20 * time.Millisecond, MaxDelay: time.Second}
	g := newGateway(t, cfg, p)

	start := time.Now()
	_, err := g.Generate(context.Background(), Request{Prompt: "q"})
	elapsed := time.Since(start)

	if !apperrors.IsCode(err, apperrors.ErrCodeAllModelsUnavailable) {
		t.Fatalf("expected ALL_MODELS_UNAVAILABLE, got %v", err)
	}
	if p.Calls() != 3 {
		t.Errorf("expected 3 attempts, got %d", p.Calls())
	}
	// Sleeps of base and 2*base separate the three attempts.
	if elapsed < 60*time.Millisecond {
		t.Errorf("expected at least 60ms of backoff, elapsed %v", elapsed)
	}
}

func TestGenerate_ContextCancelledDuringBackoff(t *testing.T) {
	p := failing("a")
	cfg := testConfig(Step{Provider: "a", Model: "m"})
	cfg.MaxRetries = 3
	cfg.Backoff = resilience.BackoffConfig{BaseDelay: time.Minute, MaxDelay: time.Minute}
	g := newGateway(t, cfg, p)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := g.Generate(ctx, Request{Prompt: "q"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline error, got %v", err)
	}
	if p.Calls() != 1 {
		t.Errorf("expected a single attempt before cancellation, got %d", p.Calls())
	}
}

func TestGenerate_ConcurrentCalls(t *testing.T) {
	p := succeeding("a", "ok")
	g := newGateway(t, testConfig(Step{Provider: "a", Model: "m"}), p)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := g.Generate(context.Background(), Request{Prompt: "q"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Generate: %v", err)
		}
	}
	if p.Calls() != 20 {
		t.Errorf("expected 20 calls, got %d", p.Calls())
	}
}

type captureMetrics struct {
	mu           sync.Mutex
	attempts     int
	generates    int
	rateLimited  int
	stateChanges int
}

func (m *captureMetrics) RecordAttempt(_ context.Context, _, _, _ string, _ time.Duration) {
	m.mu.Lock()
	m.attempts++
	m.mu.Unlock()
}

func (m *captureMetrics) RecordGenerate(_ context.Context, _ string, _ time.Duration) {
	m.mu.Lock()
	m.generates++
	m.mu.Unlock()
}

func (m *captureMetrics) RecordRateLimited(_ context.Context) {
	m.mu.Lock()
	m.rateLimited++
	m.mu.Unlock()
}

func (m *captureMetrics) RecordStateChange(_ context.Context, _, _, _ string) {
	m.mu.Lock()
	m.stateChanges++
	m.mu.Unlock()
}

func TestGenerate_ReportsMetrics(t *testing.T) {
	p := succeeding("a", "ok")
	cfg := testConfig(Step{Provider: "a", Model: "m"})
	cfg.RateLimit = resilience.SlidingWindowConfig{Name: "test", Limit: 1, Window: time.Hour}

	reg := llm.NewRegistry()
	reg.Register(p)
	metrics := &captureMetrics{}
	g, err := New(cfg, reg, WithLogger(quietLogger()), WithMetrics(metrics))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := g.Generate(context.Background(), Request{Prompt: "q"}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := g.Generate(context.Background(), Request{Prompt: "q"}); !apperrors.IsCode(err, apperrors.ErrCodeRateLimited) {
		t.Fatalf("expected RATE_LIMITED, got %v", err)
	}

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	if metrics.attempts != 1 {
		t.Errorf("expected 1 attempt recorded, got %d", metrics.attempts)
	}
	if metrics.generates != 2 {
		t.Errorf("expected 2 generate records, got %d", metrics.generates)
	}
	if metrics.rateLimited != 1 {
		t.Errorf("expected 1 rate-limit record, got %d", metrics.rateLimited)
	}
}

func TestGenerate_EmitsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	p1, p2 := failing("a"), succeeding("b", "ok")
	g := newGateway(t, testConfig(
		Step{Provider: "a", Model: "m1"},
		Step{Provider: "b", Model: "m2"},
	), p1, p2)

	if _, err := g.Generate(context.Background(), Request{Prompt: "q"}); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	var generates, attempts int
	var sawSecondStep, sawErrorEvent bool
	for _, s := range recorder.Ended() {
		switch s.Name() {
		case "gateway.generate":
			generates++
		case "gateway.attempt":
			attempts++
			for _, attr := range s.Attributes() {
				if attr.Key == "provider" && attr.Value.AsString() == "b" {
					sawSecondStep = true
				}
			}
			if len(s.Events()) > 0 {
				sawErrorEvent = true
			}
		}
	}
	if generates != 1 {
		t.Errorf("expected 1 generate span, got %d", generates)
	}
	// Two failed attempts on the first step plus the successful one.
	if attempts != 3 {
		t.Errorf("expected 3 attempt spans, got %d", attempts)
	}
	if !sawSecondStep {
		t.Error("expected an attempt span attributed to the succeeding provider")
	}
	if !sawErrorEvent {
		t.Error("expected failed attempts to record their error on the span")
	}
}
