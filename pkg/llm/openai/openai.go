// Package openai provides an OpenAI-compatible implementation of the
// llm.Completer interface.
//
// Example usage:
//
//	// Standard OpenAI
//	provider, _ := openai.NewProvider("sk-...", openai.WithModel("gpt-4o"))
//
//	// Local OpenAI-compatible API
//	provider, _ := openai.NewProvider("local",
//	    openai.WithBaseURL("http://localhost:8080/v1"))
package openai

import (
	"context"
	"fmt"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/nullfox-coder/NatanAI/pkg/llm"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o"

// Provider implements llm.Completer against any OpenAI-compatible chat
// completions endpoint.
type Provider struct {
	client  openai.Client
	model   string
	baseURL string
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithModel sets the model to use for completions.
func WithModel(model string) ProviderOption {
	return func(p *Provider) {
		p.model = model
	}
}

// WithBaseURL points the provider at a custom OpenAI-compatible API, such
// as Azure OpenAI or a local model server.
func WithBaseURL(baseURL string) ProviderOption {
	return func(p *Provider) {
		p.baseURL = baseURL
	}
}

// NewProvider creates an OpenAI provider. An empty apiKey falls back to the
// OPENAI_API_KEY environment variable; an unset base URL falls back to
// OPENAI_BASE_URL, then the public API.
func NewProvider(apiKey string, opts ...ProviderOption) (*Provider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required (provide via parameter or OPENAI_API_KEY environment variable)")
	}

	p := &Provider{model: DefaultModel}
	for _, opt := range opts {
		opt(p)
	}
	if p.baseURL == "" {
		p.baseURL = os.Getenv("OPENAI_BASE_URL")
	}

	clientOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if p.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(p.baseURL))
	}
	p.client = openai.NewClient(clientOpts...)

	return p, nil
}

// Complete sends one non-streaming chat completion and returns the
// assistant's text.
func (p *Provider) Complete(ctx context.Context, req llm.Request) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
	}
	if req.System != "" {
		params.Messages = append(params.Messages, openai.SystemMessage(req.System))
	}
	params.Messages = append(params.Messages, openai.UserMessage(req.User))

	if req.Temperature != 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens != 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return completion.Choices[0].Message.Content, nil
}
