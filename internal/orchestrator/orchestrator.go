// Package orchestrator runs the per-turn pipeline: classify, route,
// apply the cost policy, upgrade for tool reliability, inject memory,
// compact, call the provider resiliently, retry leaked tool intent,
// gate sensitive tools, and log usage.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/concierge-ai/concierge/internal/approval"
	"github.com/concierge-ai/concierge/internal/catalog"
	"github.com/concierge-ai/concierge/internal/compactor"
	"github.com/concierge-ai/concierge/internal/credentials"
	"github.com/concierge-ai/concierge/internal/domain"
	"github.com/concierge-ai/concierge/internal/intent"
	"github.com/concierge-ai/concierge/internal/memory"
	"github.com/concierge-ai/concierge/internal/policy"
	"github.com/concierge-ai/concierge/internal/pricing"
	"github.com/concierge-ai/concierge/internal/resilient"
	"github.com/concierge-ai/concierge/internal/route"
	"github.com/concierge-ai/concierge/internal/tasks"
	"github.com/concierge-ai/concierge/internal/usage"
)

const defaultUserID = "default"

// TurnRequest is one inbound chat turn.
type TurnRequest struct {
	Messages      []domain.Message  `json:"messages"`
	Tools         []domain.ToolSpec `json:"tools,omitempty"`
	Model         string            `json:"model,omitempty"`
	Source        string            `json:"source,omitempty"`
	UserID        string            `json:"userId,omitempty"`
	ApprovedTools []string          `json:"approvedTools,omitempty"`
}

// Meta is the routing metadata attached to every response.
type Meta struct {
	Routed        bool    `json:"routed"`
	Complexity    string  `json:"complexity"`
	Fallback      bool    `json:"fallback"`
	Compacted     bool    `json:"compacted"`
	OriginalModel string  `json:"originalModel"`
	ActualModel   string  `json:"actualModel"`
	Provider      string  `json:"provider"`
	RoutingReason string  `json:"routingReason"`
	EstimatedCost float64 `json:"estimatedCost"`
}

// TurnResponse is one outbound chat turn.
type TurnResponse struct {
	Response         string            `json:"response,omitempty"`
	ToolCalls        []domain.ToolCall `json:"toolCalls,omitempty"`
	ApprovalRequired bool              `json:"approvalRequired"`
	BlockedTools     []string          `json:"blockedTools,omitempty"`
	Meta             Meta              `json:"_meta"`
}

// Config tunes the orchestrator.
type Config struct {
	DefaultModel   string
	DailyBudgetUSD float64
	MaxAgentRounds int
	MemoryLimit    int
}

// Deps are the orchestrator's collaborators. Memories, Tasks and Usage
// are optional; a nil value disables that layer.
type Deps struct {
	Router      *route.Router
	Selector    *policy.Selector
	Upgrader    *route.Upgrader
	Compactor   *compactor.Compactor
	Caller      *resilient.Caller
	Retrier     *intent.Retrier
	Gate        *approval.Gate
	Usage       usage.Recorder
	Memories    memory.ContextSource
	Tasks       tasks.Reader
	Credentials credentials.Resolver
	State       *RuntimeState
	Logger      *slog.Logger
}

// Orchestrator executes chat turns.
type Orchestrator struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger
}

// New creates an orchestrator.
func New(cfg Config, deps Deps) *Orchestrator {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = catalog.DefaultModel
	}
	if cfg.MaxAgentRounds <= 0 {
		cfg.MaxAgentRounds = 4
	}
	if cfg.MemoryLimit <= 0 {
		cfg.MemoryLimit = 5
	}
	if deps.State == nil {
		deps.State = NewRuntimeState()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{cfg: cfg, deps: deps, logger: logger}
}

// Turn runs the full pipeline for one chat turn.
func (o *Orchestrator) Turn(ctx context.Context, req *TurnRequest) (*TurnResponse, error) {
	userID := req.UserID
	if userID == "" {
		userID = defaultUserID
	}
	requested := req.Model
	if requested == "" {
		requested = o.cfg.DefaultModel
	}
	utterance := lastUserText(req.Messages)

	routing := o.deps.Router.Decide(requested, utterance)
	model := routing.Model

	decision := o.deps.Selector.Select(policy.Context{
		RequestedModel: model,
		UserMessage:    utterance,
		HasTools:       len(req.Tools) > 0,
		CostTodayUSD:   o.costToday(ctx, userID),
		SessionCostUSD: o.deps.State.SessionCost(userID),
	})
	reason := decision.Reason
	if requested != o.cfg.DefaultModel {
		// Manual model choice wins over cost optimization.
		reason = "requested model kept"
		decision.SelectedModel = model
		decision.EstimatedCostUSD = pricing.Cost(model, 900, 500)
	}
	model = decision.SelectedModel

	if o.deps.Upgrader.NeedsUpgrade(req.Messages, req.Tools, catalog.ProviderForModel(model)) {
		target := o.deps.Upgrader.Target()
		if _, ok := o.deps.Credentials.Resolve(ctx, userID, target.Provider); ok {
			model = target.Model
			reason = "upgraded for tool reliability"
		}
	}

	messages := o.injectContext(ctx, userID, utterance, req.Messages)

	compaction := o.deps.Compactor.Compact(ctx, model, messages)
	messages = compaction.Messages

	outcome, err := o.deps.Caller.Call(ctx, userID, &domain.Request{
		Model:    model,
		Messages: messages,
		Tools:    req.Tools,
		UserID:   userID,
	})
	if err != nil {
		o.logUsage(ctx, usage.Entry{
			UserID:   userID,
			Model:    model,
			Provider: "unknown",
			Success:  false,
		}, userID, 0)
		return nil, err
	}

	result, retried := o.retryIntent(ctx, userID, req, outcome)
	if retried {
		outcome.Result = result
		outcome.Provider = intent.ToolCapableProvider
		outcome.Model = intent.ToolCapableModel
	}

	response := &TurnResponse{
		Response:  result.Text,
		ToolCalls: result.ToolCalls,
		Meta: Meta{
			Routed:        routing.Routed || model != requested,
			Complexity:    string(routing.Complexity),
			Fallback:      outcome.UsedFallback,
			Compacted:     compaction.Compacted,
			OriginalModel: requested,
			ActualModel:   outcome.Model,
			Provider:      outcome.Provider,
			RoutingReason: reason,
			EstimatedCost: decision.EstimatedCostUSD,
		},
	}

	if !result.HasToolCalls() {
		response.Response = intent.ScrubMarkup(result.Text)
	}

	gate := o.deps.Gate.Evaluate(toolNames(result.ToolCalls), req.ApprovedTools)
	if !gate.Approved {
		response.ToolCalls = nil
		response.ApprovalRequired = true
		response.BlockedTools = gate.BlockedTools
		response.Response = gate.Message
	}

	cost := o.turnCost(outcome)
	o.logUsage(ctx, usage.Entry{
		UserID:       userID,
		Model:        outcome.Model,
		Provider:     outcome.Provider,
		InputTokens:  result.Usage.InputTokens,
		OutputTokens: result.Usage.OutputTokens,
		CostUSD:      cost,
		Success:      true,
		UsedFallback: outcome.UsedFallback,
	}, userID, cost)

	return response, nil
}

// injectContext prepends relevant memories and pending-task counts to
// the system message. Everything here is best-effort: storage failures
// log and the turn proceeds without the extra context.
func (o *Orchestrator) injectContext(ctx context.Context, userID, utterance string, messages []domain.Message) []domain.Message {
	var blocks []string

	if o.deps.Memories != nil {
		mems, err := o.deps.Memories.Relevant(ctx, userID, utterance, o.cfg.MemoryLimit)
		if err != nil {
			o.logger.Warn("memory lookup failed", "error", err)
		} else if len(mems) > 0 {
			var b strings.Builder
			b.WriteString("Relevant things you know about the user:")
			for _, m := range mems {
				b.WriteString("\n- ")
				b.WriteString(m.Content)
			}
			blocks = append(blocks, b.String())
		}
	}

	if o.deps.Tasks != nil {
		n, err := o.deps.Tasks.PendingCount(ctx, userID)
		if err != nil {
			o.logger.Warn("task lookup failed", "error", err)
		} else if n > 0 {
			blocks = append(blocks, fmt.Sprintf("The user currently has %d pending tasks.", n))
		}
	}

	if len(blocks) == 0 {
		return messages
	}
	block := strings.Join(blocks, "\n\n")

	out := make([]domain.Message, len(messages))
	copy(out, messages)
	if len(out) > 0 && out[0].Role == domain.RoleSystem {
		out[0].Content = out[0].Content + "\n\n" + block
		return out
	}
	return append([]domain.Message{{Role: domain.RoleSystem, Content: block}}, out...)
}

// retryIntent re-runs leaked-intent turns, but only when the answer
// came from a provider outside the reliable tool-calling set. A
// reliable provider's text answer stands even when it narrates a tool.
func (o *Orchestrator) retryIntent(ctx context.Context, userID string, req *TurnRequest, outcome *domain.CallOutcome) (*domain.Result, bool) {
	if o.deps.Retrier == nil || o.deps.Upgrader.Reliable(outcome.Provider) {
		return outcome.Result, false
	}
	return o.deps.Retrier.MaybeRetry(ctx, userID, &domain.Request{
		Model:    outcome.Model,
		Messages: req.Messages,
		Tools:    req.Tools,
		UserID:   userID,
	}, outcome.Result)
}

func (o *Orchestrator) costToday(ctx context.Context, userID string) float64 {
	if o.deps.Usage == nil {
		return 0
	}
	midnight := time.Now().UTC().Truncate(24 * time.Hour)
	cost, err := o.deps.Usage.CostSince(ctx, userID, midnight)
	if err != nil {
		o.logger.Warn("usage lookup failed", "error", err)
		return 0
	}
	return cost
}

// turnCost prices the turn from reported usage, falling back to the
// policy's stock estimate when the provider reported nothing.
func (o *Orchestrator) turnCost(outcome *domain.CallOutcome) float64 {
	u := outcome.Result.Usage
	if u.TotalTokens > 0 {
		return pricing.Cost(outcome.Model, u.InputTokens, u.OutputTokens)
	}
	return pricing.Cost(outcome.Model, 900, 500)
}

// logUsage is fire-and-forget: recording failures never abort a turn.
func (o *Orchestrator) logUsage(ctx context.Context, e usage.Entry, userID string, cost float64) {
	o.deps.State.AddSessionCost(userID, cost)

	if o.cfg.DailyBudgetUSD > 0 {
		if today := o.costToday(ctx, userID); today+cost > o.cfg.DailyBudgetUSD && o.deps.State.AlertBudgetOnce() {
			o.logger.Warn("daily budget exceeded",
				"user", userID, "spend", today+cost, "budget", o.cfg.DailyBudgetUSD)
		}
	}

	if o.deps.Usage == nil {
		return
	}
	go func() {
		logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := o.deps.Usage.Record(logCtx, e); err != nil {
			o.logger.Warn("usage record failed", "error", err)
		}
	}()
}

func lastUserText(messages []domain.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == domain.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

func toolNames(calls []domain.ToolCall) []string {
	names := make([]string, 0, len(calls))
	for _, c := range calls {
		names = append(names, c.Name)
	}
	return names
}
