package llm

import (
	"context"
	"fmt"
	"testing"

	apperrors "github.com/kestrel-ai/relay/errors"
)

type stubProvider struct{ name string }

func (s *stubProvider) Name() string                        { return s.name }
func (s *stubProvider) IsAvailable(context.Context) bool    { return true }
func (s *stubProvider) Complete(context.Context, CompletionRequest) (*CompletionResponse, error) {
	return &CompletionResponse{Content: "ok"}, nil
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubProvider{name: "gemini"})
	r.Register(&stubProvider{name: "openai"})

	p, err := r.Get("gemini")
	if err != nil {
		t.Fatalf("expected provider, got error %v", err)
	}
	if p.Name() != "gemini" {
		t.Errorf("expected gemini, got %s", p.Name())
	}

	if _, err := r.Get("mistral"); err == nil {
		t.Error("expected error for unknown provider")
	}

	if got := len(r.Names()); got != 2 {
		t.Errorf("expected 2 names, got %d", got)
	}
}

func TestPrompt(t *testing.T) {
	req := Prompt("gemini-2.5-flash", "hello")
	if req.Model != "gemini-2.5-flash" {
		t.Errorf("expected model set, got %q", req.Model)
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != RoleUser || req.Messages[0].Content != "hello" {
		t.Errorf("expected single user message, got %+v", req.Messages)
	}
}

func TestRetryableStatus(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{400, false},
		{401, false},
		{404, false},
		{408, true},
		{422, false},
		{429, true},
		{500, true},
		{502, true},
		{503, true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d", tt.status), func(t *testing.T) {
			if got := RetryableStatus(tt.status); got != tt.want {
				t.Errorf("RetryableStatus(%d) = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestWrapProviderError(t *testing.T) {
	cause := fmt.Errorf("boom")

	err := WrapProviderError("gemini", 400, cause)
	if err.Retryable {
		t.Error("400 should not be retryable")
	}
	if err.Details["status"] != 400 {
		t.Errorf("expected status detail 400, got %v", err.Details["status"])
	}
	if err.Code != apperrors.ErrCodeExternalService {
		t.Errorf("expected EXTERNAL_SERVICE_ERROR, got %s", err.Code)
	}

	if !WrapProviderError("gemini", 503, cause).Retryable {
		t.Error("503 should be retryable")
	}

	// No HTTP response at all: transport failure, retryable.
	transport := WrapProviderError("gemini", 0, cause)
	if !transport.Retryable {
		t.Error("transport failure should be retryable")
	}
	if _, ok := transport.Details["status"]; ok {
		t.Error("expected no status detail for transport failure")
	}
}
