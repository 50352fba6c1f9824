// Package llm defines the universal completion types and the Provider
// interface the gateway calls through. Concrete providers live in
// subpackages (gemini, openai, anthropic), each mapping the universal types
// onto its vendor SDK and folding vendor failures into the shared
// retryability classification.
package llm
