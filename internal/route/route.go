// Package route decides which model serves a chat turn: complexity-tier
// routing for default-model requests, and the tool-reliability upgrade
// that moves tool-bearing turns onto a provider with trustworthy
// structured tool calling.
package route

import (
	"github.com/concierge-ai/concierge/internal/classify"
	"github.com/concierge-ai/concierge/internal/domain"
)

// TierModels maps each complexity tier to the model that serves it.
type TierModels struct {
	Simple   string
	Moderate string
	Complex  string
}

// Router performs complexity-tier model routing.
type Router struct {
	defaultModel string
	tiers        TierModels
}

// NewRouter creates a tier router. Routing only applies when the caller
// is on defaultModel; a pinned model is always respected.
func NewRouter(defaultModel string, tiers TierModels) *Router {
	return &Router{defaultModel: defaultModel, tiers: tiers}
}

// Decide classifies the utterance and picks the tier model. When the
// caller pinned a non-default model the decision reports Routed=false
// and leaves the model unchanged regardless of utterance content.
func (r *Router) Decide(requestedModel, utterance string) domain.RoutingDecision {
	complexity := classify.Complexity(utterance)

	if requestedModel != r.defaultModel {
		return domain.RoutingDecision{
			Model:      requestedModel,
			Complexity: complexity,
			Routed:     false,
		}
	}

	routed := r.modelForTier(complexity)
	return domain.RoutingDecision{
		Model:      routed,
		Complexity: complexity,
		Routed:     routed != requestedModel,
	}
}

func (r *Router) modelForTier(c domain.Complexity) string {
	switch c {
	case domain.ComplexitySimple:
		return r.tiers.Simple
	case domain.ComplexityComplex:
		return r.tiers.Complex
	default:
		return r.tiers.Moderate
	}
}
