package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/kestrel-ai/relay/errors"
	"github.com/kestrel-ai/relay/gateway"
	"github.com/kestrel-ai/relay/llm"
	"github.com/kestrel-ai/relay/observability"
	"github.com/kestrel-ai/relay/resilience"
	"github.com/kestrel-ai/relay/validation"
)

// Generator is the slice of the gateway the HTTP layer needs.
type Generator interface {
	Generate(ctx context.Context, req gateway.Request) (*gateway.Result, error)
	BreakerState() resilience.State
	RateLimitRemaining() int
}

// GenerateRequest is the POST /v1/generate payload.
type GenerateRequest struct {
	Prompt       string `json:"prompt" validate:"required,max=32768"`
	SystemPrompt string `json:"system_prompt" validate:"omitempty,max=8192"`
}

// Handler serves the relay API routes.
type Handler struct {
	gw        Generator
	providers *llm.Registry
	service   string
	version   string
}

// NewHandler creates a Handler.
func NewHandler(gw Generator, providers *llm.Registry, service, version string) *Handler {
	return &Handler{gw: gw, providers: providers, service: service, version: version}
}

// Register mounts the API routes on the engine.
func (h *Handler) Register(engine *gin.Engine) {
	engine.POST("/v1/generate", h.Generate)
	engine.GET("/healthz", h.Healthz)
	engine.GET("/livez", h.Livez)
}

// Generate handles POST /v1/generate.
func (h *Handler) Generate(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithError(c, apperrors.InvalidInput("", "request body must be valid JSON").WithCause(err))
		return
	}
	if err := validation.Validate(req); err != nil {
		RespondWithError(c, err)
		return
	}

	result, err := h.gw.Generate(c.Request.Context(), gateway.Request{
		Prompt:       req.Prompt,
		SystemPrompt: req.SystemPrompt,
	})
	if err != nil {
		RespondWithError(c, err)
		return
	}
	RespondOK(c, result)
}

// Healthz reports provider availability and gateway state. The service is
// degraded while the breaker is not closed and down when no provider is
// reachable.
func (h *Handler) Healthz(c *gin.Context) {
	ctx := c.Request.Context()
	health := observability.NewServiceHealth(h.service, h.version)

	anyUp := false
	for _, name := range h.providers.Names() {
		p, err := h.providers.Get(name)
		if err != nil {
			continue
		}
		status := observability.HealthStatusDown
		if p.IsAvailable(ctx) {
			status = observability.HealthStatusUp
			anyUp = true
		}
		health.AddComponent(observability.Health{Name: name, Status: status})
	}
	if anyUp && health.Status == observability.HealthStatusDown {
		// One dead provider degrades the ladder but does not take it down.
		health.Status = observability.HealthStatusDegraded
	}

	breaker := observability.Health{
		Name:   "circuit-breaker",
		Status: observability.HealthStatusUp,
		Details: map[string]string{
			"state": h.gw.BreakerState().String(),
		},
	}
	if h.gw.BreakerState() != resilience.StateClosed {
		breaker.Status = observability.HealthStatusDegraded
	}
	health.AddComponent(breaker)

	httpStatus := http.StatusOK
	if health.Status == observability.HealthStatusDown {
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, gin.H{
		"status":               health.Status,
		"service":              health.Service,
		"version":              health.Version,
		"timestamp":            time.Now().UTC().Format(time.RFC3339),
		"components":           health.Components,
		"rate_limit_remaining": h.gw.RateLimitRemaining(),
	})
}

// Livez is a trivial liveness probe.
func (h *Handler) Livez(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
