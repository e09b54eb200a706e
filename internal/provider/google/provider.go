// Package google adapts the canonical provider interface onto the
// Gemini generateContent wire client.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"

	googleapi "github.com/concierge-ai/concierge/internal/api/google"
	"github.com/concierge-ai/concierge/internal/catalog"
	"github.com/concierge-ai/concierge/internal/domain"
)

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

// Provider implements domain.Provider against the Gemini API.
type Provider struct {
	client     *googleapi.Client
	baseURL    string
	httpClient *http.Client
}

// New creates a provider authenticated with apiKey.
func New(apiKey string, opts ...ProviderOption) *Provider {
	p := &Provider{}
	for _, opt := range opts {
		opt(p)
	}

	var clientOpts []googleapi.ClientOption
	if p.baseURL != "" {
		clientOpts = append(clientOpts, googleapi.WithBaseURL(p.baseURL))
	}
	if p.httpClient != nil {
		clientOpts = append(clientOpts, googleapi.WithHTTPClient(p.httpClient))
	}
	p.client = googleapi.NewClient(apiKey, clientOpts...)
	return p
}

func (p *Provider) Name() string {
	return catalog.ProviderGoogle
}

// Complete performs a chat completion.
func (p *Provider) Complete(ctx context.Context, req *domain.Request) (*domain.Result, error) {
	model := catalog.UpstreamModelID(req.Model)
	resp, err := p.client.GenerateContent(ctx, model, toAPIRequest(req))
	if err != nil {
		var apiErr *domain.APIError
		if errors.As(err, &apiErr) {
			return nil, apiErr.WithProvider(catalog.ProviderGoogle)
		}
		return nil, err
	}
	return toResult(resp, model), nil
}

// toAPIRequest maps roles onto Gemini's scheme: assistant becomes
// "model" and system messages move into systemInstruction.
func toAPIRequest(req *domain.Request) *googleapi.GenerateRequest {
	out := &googleapi.GenerateRequest{}
	if req.MaxTokens > 0 {
		out.GenerationConfig = &googleapi.GenerationConfig{MaxOutputTokens: req.MaxTokens}
	}

	var system []string
	for _, m := range req.Messages {
		if m.Role == domain.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		role := m.Role
		if role == domain.RoleAssistant {
			role = "model"
		}
		out.Contents = append(out.Contents, googleapi.Content{
			Role:  role,
			Parts: []googleapi.Part{{Text: m.Content}},
		})
	}
	if len(system) > 0 {
		out.SystemInstruction = &googleapi.Content{
			Parts: []googleapi.Part{{Text: strings.Join(system, "\n\n")}},
		}
	}

	if len(req.Tools) > 0 {
		cfg := googleapi.ToolConfig{}
		for _, t := range req.Tools {
			cfg.FunctionDeclarations = append(cfg.FunctionDeclarations, googleapi.FunctionDecl{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  toolSchema(t),
			})
		}
		out.Tools = []googleapi.ToolConfig{cfg}
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

func toResult(resp *googleapi.GenerateResponse, model string) *domain.Result {
	result := &domain.Result{
		Model: model,
		Usage: domain.Usage{
			InputTokens:  resp.UsageMetadata.PromptTokenCount,
			OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:  resp.UsageMetadata.TotalTokenCount,
		},
	}
	if len(resp.Candidates) == 0 {
		return result
	}

	var text []string
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.FunctionCall != nil {
			args := map[string]any{}
			if len(part.FunctionCall.Args) > 0 {
				_ = json.Unmarshal(part.FunctionCall.Args, &args)
			}
			result.ToolCalls = append(result.ToolCalls, domain.ToolCall{
				Name:      part.FunctionCall.Name,
				Arguments: args,
			})
			continue
		}
		if part.Text != "" {
			text = append(text, part.Text)
		}
	}
	result.Text = strings.Join(text, "")
	return result
}
