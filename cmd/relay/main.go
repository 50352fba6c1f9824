// Relay is a resilient gateway for calling external text-generation services.
//
// It wraps outbound calls with a sliding-window rate limiter, a circuit
// breaker, and a model fallback ladder, and exposes the result over HTTP:
//
//	POST /v1/generate  {"prompt": "...", "system_prompt": "..."}
//	GET  /healthz
//	GET  /livez
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kestrel-ai/relay/config"
	"github.com/kestrel-ai/relay/gateway"
	"github.com/kestrel-ai/relay/llm"
	"github.com/kestrel-ai/relay/llm/anthropic"
	"github.com/kestrel-ai/relay/llm/gemini"
	"github.com/kestrel-ai/relay/llm/openai"
	"github.com/kestrel-ai/relay/logger"
	"github.com/kestrel-ai/relay/observability"
	"github.com/kestrel-ai/relay/server"
	"github.com/kestrel-ai/relay/util"
	"github.com/kestrel-ai/relay/version"
)

func main() {
	configFile := flag.String("config", "", "path to config.yml (searched for if empty)")
	envFile := flag.String("env", "", "path to .env file (searched for if empty)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Short())
		return
	}

	if err := run(*configFile, *envFile); err != nil {
		fmt.Fprintf(os.Stderr, "relay: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile, envFile string) error {
	var loaderOpts []config.LoaderOption
	if configFile != "" {
		loaderOpts = append(loaderOpts, config.WithConfigFile(configFile))
	}
	if envFile != "" {
		loaderOpts = append(loaderOpts, config.WithEnvFile(envFile))
	}

	cfg, err := config.Load(loaderOpts...)
	if err != nil {
		return err
	}
	if cfg.Version == "" {
		cfg.Version = version.Short()
	}

	logger.Init(cfg.Logging)
	log := logger.GetGlobalLogger()
	log.Info("starting relay", logger.Fields(
		"version", cfg.Version,
		"environment", cfg.Environment,
	))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var gatewayMetrics *observability.GatewayMetrics
	var httpMetrics *observability.HTTPMetrics
	if cfg.Observability.Enabled {
		mp, err := observability.InitMeter(ctx, observability.MeterConfig{
			ServiceName:    cfg.Name,
			ServiceVersion: cfg.Version,
			Environment:    cfg.Environment,
			Endpoint:       cfg.Observability.Endpoint,
			Insecure:       cfg.Observability.Insecure,
			Interval:       cfg.Observability.Interval,
		})
		if err != nil {
			return fmt.Errorf("initializing meter: %w", err)
		}
		defer shutdownWithTimeout(mp.Shutdown, "meter", log)

		tp, err := observability.InitTracer(ctx, observability.TracerConfig{
			ServiceName:    cfg.Name,
			ServiceVersion: cfg.Version,
			Environment:    cfg.Environment,
			Endpoint:       cfg.Observability.Endpoint,
			Insecure:       cfg.Observability.Insecure,
			SampleRate:     cfg.Observability.SampleRate,
		})
		if err != nil {
			return fmt.Errorf("initializing tracer: %w", err)
		}
		defer shutdownWithTimeout(tp.Shutdown, "tracer", log)

		meter := observability.Meter(cfg.Name)
		if gatewayMetrics, err = observability.NewGatewayMetrics(meter); err != nil {
			return fmt.Errorf("creating gateway metrics: %w", err)
		}
		if httpMetrics, err = observability.NewHTTPMetrics(meter); err != nil {
			return fmt.Errorf("creating http metrics: %w", err)
		}
	}

	registry, err := buildRegistry(ctx, cfg, log)
	if err != nil {
		return err
	}

	gwOpts := []gateway.Option{gateway.WithLogger(log)}
	if gatewayMetrics != nil {
		gwOpts = append(gwOpts, gateway.WithMetrics(gatewayMetrics))
	}
	gw, err := gateway.New(cfg.Gateway.Build(), registry, gwOpts...)
	if err != nil {
		return fmt.Errorf("building gateway: %w", err)
	}

	srv := server.New(cfg.Server, log)
	if httpMetrics != nil {
		srv.SetHTTPMetrics(httpMetrics)
	}
	server.NewHandler(gw, registry, cfg.Name, cfg.Version).Register(srv.Engine())

	if err := srv.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	log.Info("shutdown signal received")

	return srv.Stop(context.Background())
}

// buildRegistry registers every provider that has credentials configured.
// The ladder decides which of them are actually used.
func buildRegistry(ctx context.Context, cfg *config.Config, log *logger.Logger) (*llm.Registry, error) {
	registry := llm.NewRegistry()

	if key := cfg.Providers.Gemini.APIKey; key != "" {
		p, err := gemini.New(ctx, gemini.Config{APIKey: key, BaseURL: cfg.Providers.Gemini.BaseURL})
		if err != nil {
			return nil, fmt.Errorf("building gemini provider: %w", err)
		}
		registry.Register(p)
		log.Info("provider registered", logger.Fields(
			logger.FieldProvider, gemini.ProviderName,
			"api_key", util.MaskSecret(key, 6),
		))
	}

	if key := cfg.Providers.OpenAI.APIKey; key != "" {
		p, err := openai.New(openai.Config{APIKey: key, BaseURL: cfg.Providers.OpenAI.BaseURL})
		if err != nil {
			return nil, fmt.Errorf("building openai provider: %w", err)
		}
		registry.Register(p)
		log.Info("provider registered", logger.Fields(
			logger.FieldProvider, openai.ProviderName,
			"api_key", util.MaskSecret(key, 6),
		))
	}

	if key := cfg.Providers.Anthropic.APIKey; key != "" {
		p, err := anthropic.New(anthropic.Config{APIKey: key, BaseURL: cfg.Providers.Anthropic.BaseURL})
		if err != nil {
			return nil, fmt.Errorf("building anthropic provider: %w", err)
		}
		registry.Register(p)
		log.Info("provider registered", logger.Fields(
			logger.FieldProvider, anthropic.ProviderName,
			"api_key", util.MaskSecret(key, 6),
		))
	}

	if len(registry.Names()) == 0 {
		return nil, fmt.Errorf("no providers configured: set at least one of PROVIDERS_GEMINI_API_KEY, PROVIDERS_OPENAI_API_KEY, PROVIDERS_ANTHROPIC_API_KEY")
	}
	return registry, nil
}

func shutdownWithTimeout(fn func(context.Context) error, name string, log *logger.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		log.Warn("shutdown error", logger.Fields("component", name, "error", err.Error()))
	}
}
