package gateway

import (
	"fmt"
	"time"

	"github.com/kestrel-ai/relay/resilience"
)

// Step is one rung of the model ladder: a provider-qualified model plus its
// generation parameters.
type Step struct {
	// Provider is the registered provider name (e.g. "gemini", "openai").
	Provider string `json:"provider" yaml:"provider" mapstructure:"provider"`
	// Model is the provider-specific model identifier.
	Model string `json:"model" yaml:"model" mapstructure:"model"`
	// MaxTokens limits the response length. 0 means provider default.
	MaxTokens int `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`
	// Temperature controls sampling randomness.
	Temperature float64 `json:"temperature" yaml:"temperature" mapstructure:"temperature"`
}

// Config configures a Gateway.
type Config struct {
	// Ladder is the ordered list of models to try. Immutable after New.
	Ladder []Step
	// MaxRetries is the attempt budget per ladder step.
	MaxRetries int
	// AttemptTimeout bounds each individual downstream call.
	AttemptTimeout time.Duration
	// Backoff shapes the delay between retries of the same step.
	Backoff resilience.BackoffConfig
	// RateLimit bounds admitted calls across all steps; the quota is against
	// the upstream account, not a specific model.
	RateLimit resilience.SlidingWindowConfig
	// Breaker guards the downstream service as a whole.
	Breaker resilience.CircuitBreakerConfig
	// Bulkhead bounds concurrent in-flight downstream calls.
	Bulkhead resilience.BulkheadConfig
}

// DefaultConfig returns sensible gateway defaults. The ladder must still be
// provided by the caller.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		AttemptTimeout: 30 * time.Second,
		Backoff:        resilience.DefaultBackoffConfig(),
		RateLimit:      resilience.DefaultSlidingWindowConfig("gateway"),
		Breaker:        resilience.DefaultCircuitBreakerConfig("gateway"),
		Bulkhead:       resilience.DefaultBulkheadConfig("gateway"),
	}
}

// ApplyDefaults fills in zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 30 * time.Second
	}
	if c.RateLimit.Name == "" {
		c.RateLimit.Name = "gateway"
	}
	if c.Breaker.Name == "" {
		c.Breaker.Name = "gateway"
	}
	if c.Bulkhead.Name == "" {
		c.Bulkhead.Name = "gateway"
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if len(c.Ladder) == 0 {
		return fmt.Errorf("gateway: ladder must contain at least one step")
	}
	for i, step := range c.Ladder {
		if step.Provider == "" {
			return fmt.Errorf("gateway: ladder step %d: provider is required", i)
		}
		if step.Model == "" {
			return fmt.Errorf("gateway: ladder step %d: model is required", i)
		}
	}
	return nil
}
