// Package openai adapts the canonical provider interface onto the Chat
// Completions wire client. OpenRouter, Moonshot, Groq and Perplexity
// reuse this adapter with a different base URL.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	openaiapi "github.com/concierge-ai/concierge/internal/api/openai"
	"github.com/concierge-ai/concierge/internal/catalog"
	"github.com/concierge-ai/concierge/internal/domain"
)

// ProviderOption configures the provider.
type ProviderOption func(*Provider)

// WithName overrides the provider name reported to callers. Used by
// the OpenAI-compatible backends.
func WithName(name string) ProviderOption {
	return func(p *Provider) { p.name = name }
}

// WithBaseURL sets a custom base URL for the API.
func WithBaseURL(baseURL string) ProviderOption {
	return func(p *Provider) { p.baseURL = baseURL }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ProviderOption {
	return func(p *Provider) { p.httpClient = hc }
}

// WithHeader adds an extra header to every request.
func WithHeader(key, value string) ProviderOption {
	return func(p *Provider) { p.headers[key] = value }
}

// Provider implements domain.Provider against a Chat Completions API.
type Provider struct {
	name       string
	client     *openaiapi.Client
	baseURL    string
	httpClient *http.Client
	headers    map[string]string
}

// New creates a provider authenticated with apiKey.
func New(apiKey string, opts ...ProviderOption) *Provider {
	p := &Provider{
		name:    catalog.ProviderOpenAI,
		headers: map[string]string{},
	}
	for _, opt := range opts {
		opt(p)
	}

	var clientOpts []openaiapi.ClientOption
	if p.baseURL != "" {
		clientOpts = append(clientOpts, openaiapi.WithBaseURL(p.baseURL))
	}
	if p.httpClient != nil {
		clientOpts = append(clientOpts, openaiapi.WithHTTPClient(p.httpClient))
	}
	for k, v := range p.headers {
		clientOpts = append(clientOpts, openaiapi.WithHeader(k, v))
	}
	p.client = openaiapi.NewClient(apiKey, clientOpts...)
	return p
}

func (p *Provider) Name() string {
	return p.name
}

// Complete performs a chat completion.
func (p *Provider) Complete(ctx context.Context, req *domain.Request) (*domain.Result, error) {
	resp, err := p.client.CreateChatCompletion(ctx, toAPIRequest(req))
	if err != nil {
		var apiErr *domain.APIError
		if errors.As(err, &apiErr) {
			return nil, apiErr.WithProvider(p.name)
		}
		return nil, err
	}
	return toResult(resp), nil
}

func toAPIRequest(req *domain.Request) *openaiapi.ChatCompletionRequest {
	out := &openaiapi.ChatCompletionRequest{
		Model:     catalog.UpstreamModelID(req.Model),
		MaxTokens: req.MaxTokens,
	}
	for _, m := range req.Messages {
		out.Messages = append(out.Messages, openaiapi.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, openaiapi.Tool{
			Type: "function",
			Function: openaiapi.FunctionDef{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  toolSchema(t),
			},
		})
	}
	return out
}

// toolSchema converts a canonical tool spec into a JSON-Schema object.
func toolSchema(t domain.ToolSpec) map[string]any {
	properties := map[string]any{}
	var required []string
	for name, param := range t.Parameters {
		prop := map[string]any{}
		if param.Type != "" {
			prop["type"] = param.Type
		}
		if param.Description != "" {
			prop["description"] = param.Description
		}
		if param.Default != nil {
			prop["default"] = param.Default
		}
		properties[name] = prop
		if param.Required {
			required = append(required, name)
		}
	}
	sort.Strings(required)

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func toResult(resp *openaiapi.ChatCompletionResponse) *domain.Result {
	result := &domain.Result{
		Model: resp.Model,
		Usage: domain.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}
	if len(resp.Choices) == 0 {
		return result
	}

	msg := resp.Choices[0].Message
	result.Text = msg.Content
	for _, tc := range msg.ToolCalls {
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			// Malformed arguments degrade to an empty map rather than
			// failing the whole completion.
			_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		}
		result.ToolCalls = append(result.ToolCalls, domain.ToolCall{
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	return result
}
