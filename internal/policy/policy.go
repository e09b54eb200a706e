// Package policy selects a cost-optimized model for a turn, combining
// the requested model, the complexity tier, tool need, and live spend
// counters against configured budgets.
package policy

import (
	"fmt"

	"github.com/concierge-ai/concierge/internal/classify"
	"github.com/concierge-ai/concierge/internal/domain"
	"github.com/concierge-ai/concierge/internal/pricing"
)

// Policy tiers beyond the classifier's: tool-bearing turns and
// critical turns get their own candidate pools.
const (
	TierToolCall = "tool_call"
	TierCritical = "critical"
)

// Config drives the selector. Thresholds and candidate pools are
// configuration, not load-bearing constants.
type Config struct {
	Enabled          bool
	DailyBudgetUSD   float64
	SessionBudgetUSD float64
	// Tiers maps tier name to candidate model IDs, cheapest preferred.
	Tiers map[string][]string
	// EstimatedInputTokens and EstimatedOutputTokens size the pre-call
	// cost estimate.
	EstimatedInputTokens  int
	EstimatedOutputTokens int
}

// Context is the per-turn input to the selector.
type Context struct {
	RequestedModel string
	UserMessage    string
	HasTools       bool
	IsCritical     bool
	CostTodayUSD   float64
	SessionCostUSD float64
}

// Selector picks the cheapest adequate model for a turn.
type Selector struct {
	cfg Config
}

// New creates a selector. Zero estimate sizes default to 900 input and
// 500 output tokens.
func New(cfg Config) *Selector {
	if cfg.EstimatedInputTokens <= 0 {
		cfg.EstimatedInputTokens = 900
	}
	if cfg.EstimatedOutputTokens <= 0 {
		cfg.EstimatedOutputTokens = 500
	}
	return &Selector{cfg: cfg}
}

// Select returns the cost decision for a turn. It never fails: unknown
// models price at the default rate, and an empty candidate pool falls
// back to the requested model.
func (s *Selector) Select(ctx Context) domain.CostDecision {
	tier := s.tierFor(ctx)

	if !s.cfg.Enabled {
		return domain.CostDecision{
			OriginalModel:    ctx.RequestedModel,
			SelectedModel:    ctx.RequestedModel,
			Tier:             tier,
			EstimatedCostUSD: s.estimate(ctx.RequestedModel),
			Reason:           "cost policy disabled",
		}
	}

	if s.budgetExceeded(ctx) {
		pool := s.pool(string(domain.ComplexitySimple), ctx.RequestedModel)
		model, cost := s.cheapest(pool)
		return domain.CostDecision{
			OriginalModel:       ctx.RequestedModel,
			SelectedModel:       model,
			Tier:                tier,
			EstimatedCostUSD:    cost,
			Reason:              "budget cap reached, graceful downgrade",
			DowngradedForBudget: true,
		}
	}

	pool := s.pool(tier, ctx.RequestedModel)
	model, cost := s.cheapest(pool)

	reason := fmt.Sprintf("optimized by %s tier policy", tier)
	if model == ctx.RequestedModel {
		reason = "requested model kept"
	}

	return domain.CostDecision{
		OriginalModel:    ctx.RequestedModel,
		SelectedModel:    model,
		Tier:             tier,
		EstimatedCostUSD: cost,
		Reason:           reason,
	}
}

func (s *Selector) tierFor(ctx Context) string {
	if ctx.IsCritical {
		return TierCritical
	}
	if ctx.HasTools {
		return TierToolCall
	}
	return string(classify.Complexity(ctx.UserMessage))
}

func (s *Selector) budgetExceeded(ctx Context) bool {
	if s.cfg.DailyBudgetUSD > 0 && ctx.CostTodayUSD >= s.cfg.DailyBudgetUSD {
		return true
	}
	if s.cfg.SessionBudgetUSD > 0 && ctx.SessionCostUSD >= s.cfg.SessionBudgetUSD {
		return true
	}
	return false
}

func (s *Selector) pool(tier, requested string) []string {
	if candidates := s.cfg.Tiers[tier]; len(candidates) > 0 {
		return candidates
	}
	return []string{requested}
}

func (s *Selector) estimate(model string) float64 {
	return pricing.Cost(model, s.cfg.EstimatedInputTokens, s.cfg.EstimatedOutputTokens)
}

func (s *Selector) cheapest(models []string) (string, float64) {
	winner := models[0]
	winnerCost := s.estimate(winner)
	for _, m := range models[1:] {
		if c := s.estimate(m); c < winnerCost {
			winner = m
			winnerCost = c
		}
	}
	return winner, winnerCost
}
