package config

import (
	"fmt"
	"time"

	"github.com/kestrel-ai/relay/gateway"
	"github.com/kestrel-ai/relay/logger"
	"github.com/kestrel-ai/relay/resilience"
	"github.com/kestrel-ai/relay/server"
	"github.com/kestrel-ai/relay/validation"
)

// ServiceName is the default service identifier.
const ServiceName = "relay"

// Config is the full relay service configuration.
type Config struct {
	Name        string `yaml:"name" mapstructure:"name"`
	Environment string `yaml:"environment" mapstructure:"environment" validate:"omitempty,oneof=development staging production"`
	Version     string `yaml:"version" mapstructure:"version"`
	Debug       bool   `yaml:"debug" mapstructure:"debug"`

	Logging       logger.Config `yaml:"logging" mapstructure:"logging"`
	Server        server.Config `yaml:"server" mapstructure:"server"`
	Gateway       Gateway       `yaml:"gateway" mapstructure:"gateway"`
	Providers     Providers     `yaml:"providers" mapstructure:"providers"`
	Observability Observability `yaml:"observability" mapstructure:"observability"`
}

// Gateway is the config-file shape of the gateway section.
type Gateway struct {
	Ladder         []gateway.Step `yaml:"ladder" mapstructure:"ladder"`
	MaxRetries     int            `yaml:"max_retries" mapstructure:"max_retries"`
	AttemptTimeout time.Duration  `yaml:"attempt_timeout" mapstructure:"attempt_timeout"`
	Backoff        Backoff        `yaml:"backoff" mapstructure:"backoff"`
	RateLimit      RateLimit      `yaml:"rate_limit" mapstructure:"rate_limit"`
	Breaker        Breaker        `yaml:"breaker" mapstructure:"breaker"`
	Bulkhead       Bulkhead       `yaml:"bulkhead" mapstructure:"bulkhead"`
}

// Backoff shapes retry delays within a ladder step.
type Backoff struct {
	BaseDelay time.Duration `yaml:"base_delay" mapstructure:"base_delay"`
	MaxDelay  time.Duration `yaml:"max_delay" mapstructure:"max_delay"`
	Jitter    float64       `yaml:"jitter" mapstructure:"jitter" validate:"gte=0,lte=1"`
}

// RateLimit bounds admitted calls in a sliding window.
type RateLimit struct {
	Limit  int           `yaml:"limit" mapstructure:"limit"`
	Window time.Duration `yaml:"window" mapstructure:"window"`
}

// Breaker configures the shared circuit breaker.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures" mapstructure:"max_failures"`
	Cooldown    time.Duration `yaml:"cooldown" mapstructure:"cooldown"`
}

// Bulkhead bounds concurrent in-flight downstream calls.
type Bulkhead struct {
	MaxConcurrent int           `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	MaxWait       time.Duration `yaml:"max_wait" mapstructure:"max_wait"`
}

// Build assembles a gateway.Config from the file shape.
func (g Gateway) Build() gateway.Config {
	cfg := gateway.DefaultConfig()
	cfg.Ladder = g.Ladder
	if g.MaxRetries > 0 {
		cfg.MaxRetries = g.MaxRetries
	}
	if g.AttemptTimeout > 0 {
		cfg.AttemptTimeout = g.AttemptTimeout
	}
	if g.Backoff.BaseDelay > 0 {
		cfg.Backoff.BaseDelay = g.Backoff.BaseDelay
	}
	if g.Backoff.MaxDelay > 0 {
		cfg.Backoff.MaxDelay = g.Backoff.MaxDelay
	}
	cfg.Backoff.Jitter = g.Backoff.Jitter
	if g.RateLimit.Limit > 0 {
		cfg.RateLimit.Limit = g.RateLimit.Limit
	}
	if g.RateLimit.Window > 0 {
		cfg.RateLimit.Window = g.RateLimit.Window
	}
	if g.Breaker.MaxFailures > 0 {
		cfg.Breaker.MaxFailures = g.Breaker.MaxFailures
	}
	if g.Breaker.Cooldown > 0 {
		cfg.Breaker.Cooldown = g.Breaker.Cooldown
	}
	cfg.Bulkhead = resilience.BulkheadConfig{
		Name:          "gateway",
		MaxConcurrent: g.Bulkhead.MaxConcurrent,
		MaxWait:       g.Bulkhead.MaxWait,
	}
	return cfg
}

// Provider holds credentials for one upstream provider.
type Provider struct {
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url" validate:"omitempty,url"`
}

// Providers holds credentials for all supported providers.
type Providers struct {
	Gemini    Provider `yaml:"gemini" mapstructure:"gemini"`
	OpenAI    Provider `yaml:"openai" mapstructure:"openai"`
	Anthropic Provider `yaml:"anthropic" mapstructure:"anthropic"`
}

// Observability configures OTLP export.
type Observability struct {
	Enabled    bool          `yaml:"enabled" mapstructure:"enabled"`
	Endpoint   string        `yaml:"endpoint" mapstructure:"endpoint"`
	Insecure   bool          `yaml:"insecure" mapstructure:"insecure"`
	SampleRate float64       `yaml:"sample_rate" mapstructure:"sample_rate" validate:"gte=0,lte=1"`
	Interval   time.Duration `yaml:"interval" mapstructure:"interval"`
}

// ApplyDefaults fills in zero-valued fields across all sections.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = ServiceName
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.Environment == "development" {
		c.Debug = true
	}
	if c.Logging.ServiceName == "" {
		c.Logging.ServiceName = c.Name
	}
	if c.Debug && c.Logging.Level == "" {
		c.Logging.Level = "debug"
	}
	c.Logging.ApplyDefaults()
	c.Server.ApplyDefaults()
	if c.Observability.Endpoint == "" {
		c.Observability.Endpoint = "localhost:4318"
	}
	if c.Observability.SampleRate == 0 {
		c.Observability.SampleRate = 1.0
	}
}

// Validate checks all sections. Struct tag validation covers enumerations and
// ranges; the sections with their own Validate are checked explicitly.
func (c *Config) Validate() error {
	if err := validation.Validate(c); err != nil {
		return err
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("config.logging: %w", err)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("config.server: %w", err)
	}
	gw := c.Gateway.Build()
	gw.ApplyDefaults()
	if err := gw.Validate(); err != nil {
		return fmt.Errorf("config.gateway: %w", err)
	}
	for _, step := range c.Gateway.Ladder {
		if c.providerFor(step.Provider) == nil {
			return fmt.Errorf("config.gateway: ladder references unknown provider %q", step.Provider)
		}
	}
	return nil
}

func (c *Config) providerFor(name string) *Provider {
	switch name {
	case "gemini":
		return &c.Providers.Gemini
	case "openai":
		return &c.Providers.OpenAI
	case "anthropic":
		return &c.Providers.Anthropic
	default:
		return nil
	}
}

// Load reads, defaults and validates the relay configuration.
func Load(opts ...LoaderOption) (*Config, error) {
	var cfg Config
	if err := LoadInto(ServiceName, &cfg, opts...); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
