// Package openai implements llm.Provider using the OpenAI Chat Completions API.
package openai

import (
	"context"
	"errors"
	"fmt"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	apperrors "github.com/kestrel-ai/relay/errors"
	"github.com/kestrel-ai/relay/llm"
)

// ProviderName is the registered name for the OpenAI provider.
const ProviderName = "openai"

// Config holds OpenAI provider configuration.
type Config struct {
	APIKey  string
	BaseURL string // optional, useful for testing against a mock server
}

// Provider implements llm.Provider using the OpenAI SDK.
type Provider struct {
	client openaisdk.Client
	config Config
}

// New creates a new OpenAI provider. Returns an error if the API key is missing.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, apperrors.MissingField("openai.api_key")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Provider{client: openaisdk.NewClient(opts...), config: cfg}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string { return ProviderName }

// IsAvailable reports whether the provider is usable.
func (p *Provider) IsAvailable(_ context.Context) bool { return true }

// Complete sends a completion request and returns the full response.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	params, err := buildParams(req)
	if err != nil {
		return nil, err
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, classify(err)
	}
	if len(completion.Choices) == 0 {
		return nil, llm.WrapProviderError(ProviderName, 0, fmt.Errorf("openai: response contained no choices"))
	}

	return &llm.CompletionResponse{
		Content: completion.Choices[0].Message.Content,
		Model:   completion.Model,
		Usage: llm.Usage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:      int(completion.Usage.TotalTokens),
		},
	}, nil
}

// buildParams converts a llm.CompletionRequest into OpenAI SDK params.
func buildParams(req llm.CompletionRequest) (openaisdk.ChatCompletionNewParams, error) {
	msgs, err := convertMessages(req.Messages, req.SystemPrompt)
	if err != nil {
		return openaisdk.ChatCompletionNewParams{}, err
	}

	params := openaisdk.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: msgs,
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}
	return params, nil
}

// convertMessages transforms llm.Message slices into OpenAI SDK message
// params. The system prompt is prepended as a system message if present.
func convertMessages(msgs []llm.Message, systemPrompt string) ([]openaisdk.ChatCompletionMessageParamUnion, error) {
	var result []openaisdk.ChatCompletionMessageParamUnion

	if systemPrompt != "" {
		result = append(result, openaisdk.SystemMessage(systemPrompt))
	}

	for _, msg := range msgs {
		switch msg.Role {
		case llm.RoleUser:
			result = append(result, openaisdk.UserMessage(msg.Content))
		case llm.RoleAssistant:
			result = append(result, openaisdk.AssistantMessage(msg.Content))
		case llm.RoleSystem:
			result = append(result, openaisdk.SystemMessage(msg.Content))
		default:
			return nil, apperrors.InvalidInput("messages", fmt.Sprintf("unsupported message role %q", msg.Role))
		}
	}
	return result, nil
}

// classify folds an OpenAI SDK failure into the shared error taxonomy.
func classify(err error) error {
	var apiErr *openaisdk.Error
	if errors.As(err, &apiErr) {
		return llm.WrapProviderError(ProviderName, apiErr.StatusCode, err)
	}
	return llm.WrapProviderError(ProviderName, 0, err)
}
