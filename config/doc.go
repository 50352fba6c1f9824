// Package config loads and validates the relay service configuration.
//
// Configuration is layered: a YAML file provides the base, a .env file is
// loaded into the process environment, and environment variables override
// everything (e.g. PROVIDERS_GEMINI_API_KEY maps to providers.gemini.api_key).
//
//	cfg, err := config.Load()
package config
