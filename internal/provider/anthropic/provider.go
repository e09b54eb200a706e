// Package anthropic adapts the canonical provider interface onto the
// Messages API wire client.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"

	anthropicapi "github.com/concierge-ai/concierge/internal/api/anthropic"
	"github.com/concierge-ai/concierge/internal/catalog"
	"github.com/concierge-ai/concierge/internal/domain"
)

const defaultMaxTokens = 4096

// ProviderOption configures the provider.
type ProviderOption func(*Provider)

// WithBaseURL sets a custom base URL for the API.
func WithBaseURL(baseURL string) ProviderOption {
	return func(p *Provider) { p.baseURL = baseURL }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ProviderOption {
	return func(p *Provider) { p.httpClient = hc }
}

// Provider implements domain.Provider against the Messages API.
type Provider struct {
	client     *anthropicapi.Client
	baseURL    string
	httpClient *http.Client
}

// New creates a provider authenticated with apiKey.
func New(apiKey string, opts ...ProviderOption) *Provider {
	p := &Provider{}
	for _, opt := range opts {
		opt(p)
	}

	var clientOpts []anthropicapi.ClientOption
	if p.baseURL != "" {
		clientOpts = append(clientOpts, anthropicapi.WithBaseURL(p.baseURL))
	}
	if p.httpClient != nil {
		clientOpts = append(clientOpts, anthropicapi.WithHTTPClient(p.httpClient))
	}
	p.client = anthropicapi.NewClient(apiKey, clientOpts...)
	return p
}

func (p *Provider) Name() string {
	return catalog.ProviderAnthropic
}

// Complete performs a chat completion.
func (p *Provider) Complete(ctx context.Context, req *domain.Request) (*domain.Result, error) {
	resp, err := p.client.CreateMessage(ctx, toAPIRequest(req))
	if err != nil {
		var apiErr *domain.APIError
		if errors.As(err, &apiErr) {
			return nil, apiErr.WithProvider(catalog.ProviderAnthropic)
		}
		return nil, err
	}
	return toResult(resp), nil
}

// toAPIRequest hoists system messages into the top-level system field,
// which the Messages API requires.
func toAPIRequest(req *domain.Request) *anthropicapi.MessagesRequest {
	out := &anthropicapi.MessagesRequest{
		Model:     catalog.UpstreamModelID(req.Model),
		MaxTokens: defaultMaxTokens,
	}
	if req.MaxTokens > 0 {
		out.MaxTokens = req.MaxTokens
	}

	var system []string
	for _, m := range req.Messages {
		if m.Role == domain.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		out.Messages = append(out.Messages, anthropicapi.Message{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	out.System = strings.Join(system, "\n\n")

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, anthropicapi.ToolDef{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: toolSchema(t),
		})
	}
	return out
}

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

func toResult(resp *anthropicapi.MessagesResponse) *domain.Result {
	result := &domain.Result{
		Model: resp.Model,
		Usage: domain.Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
			TotalTokens:  resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}

	var text []string
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text = append(text, block.Text)
		case "tool_use":
			args := map[string]any{}
			if len(block.Input) > 0 {
				_ = json.Unmarshal(block.Input, &args)
			}
			result.ToolCalls = append(result.ToolCalls, domain.ToolCall{
				Name:      block.Name,
				Arguments: args,
			})
		}
	}
	result.Text = strings.Join(text, "")
	return result
}
