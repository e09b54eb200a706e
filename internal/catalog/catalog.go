// Package catalog maps model identifiers to the providers that serve
// them. Model IDs are canonical: provider-prefixed where a model is
// reachable through an aggregator ("or:" for OpenRouter, "groq:" for
// Groq), bare otherwise.
package catalog

import "strings"

// Provider names understood by the core.
const (
	ProviderOpenAI     = "openai"
	ProviderAnthropic  = "anthropic"
	ProviderPerplexity = "perplexity"
	ProviderGoogle     = "google"
	ProviderOpenRouter = "openrouter"
	ProviderMoonshot   = "moonshot"
	ProviderGroq       = "groq"
)

// Model is a catalog entry for a selectable text model.
type Model struct {
	ID       string
	Label    string
	Provider string
	// RouterID is the OpenRouter-side model identifier for "or:" models.
	RouterID string
}

// Models lists every selectable text model.
var Models = []Model{
	{ID: "gpt-5.2", Label: "GPT-5.2", Provider: ProviderOpenAI},
	{ID: "gpt-4.1", Label: "GPT-4.1", Provider: ProviderOpenAI},
	{ID: "gpt-4.1-mini", Label: "GPT-4.1 Mini", Provider: ProviderOpenAI},
	{ID: "gpt-4.1-nano", Label: "GPT-4.1 Nano", Provider: ProviderOpenAI},
	{ID: "gpt-4o", Label: "GPT-4o", Provider: ProviderOpenAI},
	{ID: "gpt-4o-mini", Label: "GPT-4o Mini", Provider: ProviderOpenAI},
	{ID: "o3-mini", Label: "o3-mini", Provider: ProviderOpenAI},

	{ID: "claude-opus-4-6", Label: "Claude Opus 4.6", Provider: ProviderAnthropic},
	{ID: "claude-sonnet-4-5-20250929", Label: "Claude Sonnet 4.5", Provider: ProviderAnthropic},
	{ID: "claude-haiku-4-5-20251001", Label: "Claude Haiku 4.5", Provider: ProviderAnthropic},

	{ID: "sonar", Label: "Sonar", Provider: ProviderPerplexity},
	{ID: "sonar-pro", Label: "Sonar Pro", Provider: ProviderPerplexity},
	{ID: "sonar-reasoning-pro", Label: "Sonar Reasoning Pro", Provider: ProviderPerplexity},

	{ID: "gemini-2.5-pro", Label: "Gemini 2.5 Pro", Provider: ProviderGoogle},
	{ID: "gemini-2.5-flash", Label: "Gemini 2.5 Flash", Provider: ProviderGoogle},

	{ID: "kimi-k2.5", Label: "Kimi K2.5", Provider: ProviderMoonshot},

	{ID: "groq:llama-3.3-70b-versatile", Label: "Groq Llama 3.3 70B", Provider: ProviderGroq},
	{ID: "groq:mixtral-8x7b-32768", Label: "Groq Mixtral 8x7B", Provider: ProviderGroq},

	{ID: "or:deepseek/deepseek-v3.2", Label: "DeepSeek V3.2", Provider: ProviderOpenRouter, RouterID: "deepseek/deepseek-v3.2"},
	{ID: "or:deepseek/deepseek-r1", Label: "DeepSeek R1", Provider: ProviderOpenRouter, RouterID: "deepseek/deepseek-r1"},
	{ID: "or:moonshotai/kimi-k2.5", Label: "Kimi K2.5 (OR)", Provider: ProviderOpenRouter, RouterID: "moonshotai/kimi-k2.5"},
	{ID: "or:x-ai/grok-4-fast", Label: "Grok 4 Fast", Provider: ProviderOpenRouter, RouterID: "x-ai/grok-4-fast"},
	{ID: "or:meta-llama/llama-4-scout", Label: "Llama 4 Scout", Provider: ProviderOpenRouter, RouterID: "meta-llama/llama-4-scout-17b-16e-instruct"},
	{ID: "or:qwen/qwen3-coder-480b", Label: "Qwen3 Coder 480B", Provider: ProviderOpenRouter, RouterID: "qwen/qwen3-coder-480b-a35b-07-25"},
	{ID: "or:google/gemini-3-flash-preview", Label: "Gemini 3 Flash Preview", Provider: ProviderOpenRouter, RouterID: "google/gemini-3-flash-preview"},
	{ID: "or:google/gemini-3-pro-preview", Label: "Gemini 3 Pro Preview", Provider: ProviderOpenRouter, RouterID: "google/gemini-3-pro-preview"},
	{ID: "or:openai/gpt-4.1-mini", Label: "GPT-4.1 Mini (OR)", Provider: ProviderOpenRouter, RouterID: "openai/gpt-4.1-mini-2025-04-14"},
}

// DefaultModel is the server default; tier routing only applies when
// the caller did not pin a different model.
const DefaultModel = "or:google/gemini-3-flash-preview"

// ProviderForModel resolves the provider serving a canonical model ID.
// Prefix rules, evaluated in order; unknown IDs default to OpenAI.
func ProviderForModel(model string) string {
	switch {
	case strings.HasPrefix(model, "or:"):
		return ProviderOpenRouter
	case strings.HasPrefix(model, "groq:"):
		return ProviderGroq
	case strings.HasPrefix(model, "claude-"):
		return ProviderAnthropic
	case strings.HasPrefix(model, "sonar"):
		return ProviderPerplexity
	case strings.HasPrefix(model, "gemini-"):
		return ProviderGoogle
	case strings.HasPrefix(model, "kimi-"):
		return ProviderMoonshot
	default:
		return ProviderOpenAI
	}
}

// UpstreamModelID resolves the model identifier sent on the wire. For
// OpenRouter models this is the catalog RouterID; for Groq the "groq:"
// prefix is stripped; everything else passes through.
func UpstreamModelID(model string) string {
	for _, m := range Models {
		if m.ID == model && m.RouterID != "" {
			return m.RouterID
		}
	}
	if after, ok := strings.CutPrefix(model, "or:"); ok {
		return after
	}
	if after, ok := strings.CutPrefix(model, "groq:"); ok {
		return after
	}
	return model
}
