// Package provider constructs backend adapters by provider name.
package provider

import (
	"fmt"

	"github.com/concierge-ai/concierge/internal/catalog"
	"github.com/concierge-ai/concierge/internal/domain"
	anthropicprovider "github.com/concierge-ai/concierge/internal/provider/anthropic"
	googleprovider "github.com/concierge-ai/concierge/internal/provider/google"
	openaiprovider "github.com/concierge-ai/concierge/internal/provider/openai"
)

// Base URLs for the OpenAI-compatible backends.
const (
	openRouterBaseURL = "https://openrouter.ai/api/v1"
	moonshotBaseURL   = "https://api.moonshot.ai/v1"
	groqBaseURL       = "https://api.groq.com/openai/v1"
	perplexityBaseURL = "https://api.perplexity.ai"
)

// New creates an adapter for the named provider authenticated with
// apiKey. Adapters are cheap stateless structs; callers construct one
// per request.
func New(name, apiKey string) (domain.Provider, error) {
	switch name {
	case catalog.ProviderOpenAI:
		return openaiprovider.New(apiKey), nil
	case catalog.ProviderAnthropic:
		return anthropicprovider.New(apiKey), nil
	case catalog.ProviderGoogle:
		return googleprovider.New(apiKey), nil
	case catalog.ProviderOpenRouter:
		return openaiprovider.New(apiKey,
			openaiprovider.WithName(catalog.ProviderOpenRouter),
			openaiprovider.WithBaseURL(openRouterBaseURL),
			openaiprovider.WithHeader("HTTP-Referer", "https://concierge.local"),
			openaiprovider.WithHeader("X-Title", "Concierge"),
		), nil
	case catalog.ProviderMoonshot:
		return openaiprovider.New(apiKey,
			openaiprovider.WithName(catalog.ProviderMoonshot),
			openaiprovider.WithBaseURL(moonshotBaseURL),
		), nil
	case catalog.ProviderGroq:
		return openaiprovider.New(apiKey,
			openaiprovider.WithName(catalog.ProviderGroq),
			openaiprovider.WithBaseURL(groqBaseURL),
		), nil
	case catalog.ProviderPerplexity:
		return openaiprovider.New(apiKey,
			openaiprovider.WithName(catalog.ProviderPerplexity),
			openaiprovider.WithBaseURL(perplexityBaseURL),
		), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}
