package orchestrator

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/concierge-ai/concierge/internal/approval"
	"github.com/concierge-ai/concierge/internal/catalog"
	"github.com/concierge-ai/concierge/internal/compactor"
	"github.com/concierge-ai/concierge/internal/domain"
	"github.com/concierge-ai/concierge/internal/intent"
	"github.com/concierge-ai/concierge/internal/policy"
	"github.com/concierge-ai/concierge/internal/resilient"
	"github.com/concierge-ai/concierge/internal/route"
	"github.com/concierge-ai/concierge/internal/tokens"
)

type mapCreds map[string]string

func (m mapCreds) Resolve(_ context.Context, _ string, provider string) (string, bool) {
	key, ok := m[provider]
	return key, ok
}

var allCreds = mapCreds{
	catalog.ProviderOpenAI:     "sk",
	catalog.ProviderAnthropic:  "sk",
	catalog.ProviderGoogle:     "sk",
	catalog.ProviderOpenRouter: "sk",
	catalog.ProviderMoonshot:   "sk",
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type harness struct {
	policyEnabled bool
	creds         mapCreds
	call          resilient.CallFunc
	retry         intent.CallFunc
}

func newOrchestrator(t *testing.T, h harness) *Orchestrator {
	t.Helper()
	if h.creds == nil {
		h.creds = allCreds
	}
	if h.retry == nil {
		h.retry = func(_ context.Context, _ string, _ *domain.Request) (*domain.Result, error) {
			return &domain.Result{Text: "retried"}, nil
		}
	}
	logger := quietLogger()

	router := route.NewRouter(catalog.DefaultModel, route.TierModels{
		Simple:   catalog.DefaultModel,
		Moderate: "gpt-4.1-mini",
		Complex:  "kimi-k2.5",
	})
	selector := policy.New(policy.Config{
		Enabled:          h.policyEnabled,
		DailyBudgetUSD:   5,
		SessionBudgetUSD: 2,
		Tiers: map[string][]string{
			"simple":    {catalog.DefaultModel},
			"moderate":  {"gpt-4.1-mini"},
			"complex":   {"kimi-k2.5"},
			"tool_call": {"gpt-4.1-mini"},
		},
	})
	upgrader := route.NewUpgrader(
		route.Upgrade{Model: "gpt-4.1-mini", Provider: catalog.ProviderOpenAI},
		[]string{catalog.ProviderOpenAI, catalog.ProviderAnthropic},
	)
	summarize := func(_ context.Context, _ *domain.Request) (*domain.Result, error) {
		return &domain.Result{Text: "summary"}, nil
	}
	noSleep := func(context.Context, time.Duration) error { return nil }

	return New(Config{DefaultModel: catalog.DefaultModel}, Deps{
		Router:    router,
		Selector:  selector,
		Upgrader:  upgrader,
		Compactor: compactor.New(tokens.NewRegistry(), "gpt-4.1-mini", summarize, compactor.WithLogger(logger)),
		Caller: resilient.New(h.call, h.creds,
			resilient.WithLogger(logger),
			resilient.WithSleeper(noSleep)),
		Retrier:     intent.NewRetrier(h.retry, h.creds, logger),
		Gate:        approval.NewGate(nil),
		Credentials: h.creds,
		Logger:      logger,
	})
}

func textCall(text string) resilient.CallFunc {
	return func(_ context.Context, _ string, req *domain.Request) (*domain.Result, error) {
		return &domain.Result{Text: text, Model: req.Model}, nil
	}
}

func userTurn(content string) *TurnRequest {
	return &TurnRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: content}},
	}
}

func TestTurnSimpleGreeting(t *testing.T) {
	o := newOrchestrator(t, harness{policyEnabled: true, call: textCall("Hello!")})

	resp, err := o.Turn(context.Background(), userTurn("hi"))
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	if resp.Meta.Complexity != "simple" {
		t.Errorf("complexity = %q, want simple", resp.Meta.Complexity)
	}
	if resp.Meta.ActualModel != catalog.DefaultModel {
		t.Errorf("model = %q, want cheap tier %q", resp.Meta.ActualModel, catalog.DefaultModel)
	}
	if resp.Meta.Provider != catalog.ProviderOpenRouter {
		t.Errorf("provider = %q, want openrouter", resp.Meta.Provider)
	}
	if resp.Response != "Hello!" || resp.ApprovalRequired {
		t.Errorf("response = %+v", resp)
	}
}

func TestTurnPinnedModelRespected(t *testing.T) {
	o := newOrchestrator(t, harness{policyEnabled: true, call: textCall("deep thoughts")})

	req := userTurn("analyze the trade-offs between event sourcing and CRUD for a ledger system, step by step")
	req.Model = "claude-opus-4-6"
	resp, err := o.Turn(context.Background(), req)
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	if resp.Meta.Routed {
		t.Error("pinned model must not be routed")
	}
	if resp.Meta.ActualModel != "claude-opus-4-6" {
		t.Errorf("model = %q, want pinned claude-opus-4-6", resp.Meta.ActualModel)
	}
	if resp.Meta.RoutingReason != "requested model kept" {
		t.Errorf("reason = %q", resp.Meta.RoutingReason)
	}
}

func TestTurnToolReliabilityUpgrade(t *testing.T) {
	o := newOrchestrator(t, harness{call: textCall("on it")})

	// Pinned on moonshot, which is not in the reliable set.
	req := userTurn("add a task to buy milk tomorrow")
	req.Model = "kimi-k2.5"
	req.Tools = []domain.ToolSpec{{Name: "manage_task"}}
	resp, err := o.Turn(context.Background(), req)
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	if resp.Meta.ActualModel != "gpt-4.1-mini" {
		t.Errorf("model = %q, want upgraded gpt-4.1-mini", resp.Meta.ActualModel)
	}
	if resp.Meta.RoutingReason != "upgraded for tool reliability" {
		t.Errorf("reason = %q", resp.Meta.RoutingReason)
	}
	if !resp.Meta.Routed {
		t.Error("upgrade counts as routing")
	}
}

func TestTurnUpgradeRequiresCredential(t *testing.T) {
	creds := mapCreds{catalog.ProviderMoonshot: "mk"}
	o := newOrchestrator(t, harness{call: textCall("on it"), creds: creds})

	req := userTurn("add a task to buy milk tomorrow")
	req.Model = "kimi-k2.5"
	req.Tools = []domain.ToolSpec{{Name: "manage_task"}}
	resp, err := o.Turn(context.Background(), req)
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	if resp.Meta.ActualModel != "kimi-k2.5" {
		t.Errorf("model = %q, want kimi-k2.5 kept (no openai credential)", resp.Meta.ActualModel)
	}
	if resp.Meta.RoutingReason != "requested model kept" {
		t.Errorf("reason = %q", resp.Meta.RoutingReason)
	}
}

func TestTurnSensitiveToolBlocked(t *testing.T) {
	call := func(_ context.Context, _ string, req *domain.Request) (*domain.Result, error) {
		return &domain.Result{
			Model:     req.Model,
			ToolCalls: []domain.ToolCall{{Name: "send_email", Arguments: map[string]any{"to": "a@b.c"}}},
		}, nil
	}
	o := newOrchestrator(t, harness{call: call})

	req := userTurn("email Alice the report")
	req.Tools = []domain.ToolSpec{{Name: "send_email"}}
	resp, err := o.Turn(context.Background(), req)
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	if !resp.ApprovalRequired {
		t.Fatal("expected approval gate to fire")
	}
	if len(resp.ToolCalls) != 0 {
		t.Error("blocked response must carry no tool calls")
	}
	if len(resp.BlockedTools) != 1 || resp.BlockedTools[0] != "send_email" {
		t.Errorf("blocked = %v", resp.BlockedTools)
	}
	if resp.Response == "" {
		t.Error("expected a confirmation message")
	}
}

func TestTurnApprovedSensitiveToolPasses(t *testing.T) {
	call := func(_ context.Context, _ string, req *domain.Request) (*domain.Result, error) {
		return &domain.Result{
			Model:     req.Model,
			ToolCalls: []domain.ToolCall{{Name: "send_email"}},
		}, nil
	}
	o := newOrchestrator(t, harness{call: call})

	req := userTurn("email Alice the report")
	req.Tools = []domain.ToolSpec{{Name: "send_email"}}
	req.ApprovedTools = []string{"send_email"}
	resp, err := o.Turn(context.Background(), req)
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	if resp.ApprovalRequired {
		t.Error("approved tool must pass the gate")
	}
	if len(resp.ToolCalls) != 1 {
		t.Errorf("tool calls = %v", resp.ToolCalls)
	}
}

func TestTurnIntentRetryAdoptsToolCalls(t *testing.T) {
	retry := func(_ context.Context, provider string, req *domain.Request) (*domain.Result, error) {
		if provider != intent.ToolCapableProvider || req.Model != intent.ToolCapableModel {
			t.Errorf("retry via %s/%s", provider, req.Model)
		}
		return &domain.Result{ToolCalls: []domain.ToolCall{{Name: "get_weather"}}}, nil
	}
	o := newOrchestrator(t, harness{
		call:  textCall("Let me check the weather for you"),
		retry: retry,
	})

	// Pinned on moonshot so the answer comes from outside the reliable
	// set and the leak triggers a retry.
	req := userTurn("what is the weather like in Lisbon right now")
	req.Model = "kimi-k2.5"
	req.Tools = []domain.ToolSpec{{Name: "get_weather"}}
	resp, err := o.Turn(context.Background(), req)
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "get_weather" {
		t.Errorf("tool calls = %v, want adopted retry result", resp.ToolCalls)
	}
	if resp.Meta.Provider != intent.ToolCapableProvider {
		t.Errorf("provider = %q, want %q", resp.Meta.Provider, intent.ToolCapableProvider)
	}
	if resp.Meta.ActualModel != intent.ToolCapableModel {
		t.Errorf("model = %q, want %q", resp.Meta.ActualModel, intent.ToolCapableModel)
	}
}

func TestTurnNoIntentRetryOnReliableProvider(t *testing.T) {
	retry := func(_ context.Context, _ string, _ *domain.Request) (*domain.Result, error) {
		t.Error("reliable provider answer must not be retried")
		return nil, nil
	}
	o := newOrchestrator(t, harness{
		call:  textCall("Let me check your calendar and get back to you."),
		retry: retry,
	})

	req := userTurn("what is on my calendar for tomorrow morning")
	req.Model = "claude-opus-4-6"
	req.Tools = []domain.ToolSpec{{Name: "check_calendar"}}
	resp, err := o.Turn(context.Background(), req)
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	if resp.Meta.Provider != catalog.ProviderAnthropic {
		t.Errorf("provider = %q, want anthropic", resp.Meta.Provider)
	}
	if resp.Response != "Let me check your calendar and get back to you." {
		t.Errorf("response = %q, want the original answer kept", resp.Response)
	}
}

func TestTurnFallbackReflectedInMeta(t *testing.T) {
	call := func(_ context.Context, provider string, req *domain.Request) (*domain.Result, error) {
		if provider == catalog.ProviderOpenRouter {
			return nil, domain.ErrServer("upstream exploded")
		}
		return &domain.Result{Text: "rescued", Model: req.Model}, nil
	}
	o := newOrchestrator(t, harness{call: call})

	resp, err := o.Turn(context.Background(), userTurn("hi"))
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	if !resp.Meta.Fallback {
		t.Error("expected fallback in meta")
	}
	if resp.Meta.Provider != catalog.ProviderAnthropic {
		t.Errorf("provider = %q, want anthropic (first chain entry)", resp.Meta.Provider)
	}
}

func TestTurnScrubsLeakedMarkup(t *testing.T) {
	o := newOrchestrator(t, harness{
		call: textCall("Done.<function_calls>{\"name\":\"x\"}</function_calls>"),
	})

	resp, err := o.Turn(context.Background(), userTurn("hello there my friend"))
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	if strings.Contains(resp.Response, "<function_calls>") {
		t.Errorf("markup leaked: %q", resp.Response)
	}
}

func TestRunAgentFeedsToolResultsBack(t *testing.T) {
	calls := 0
	call := func(_ context.Context, _ string, req *domain.Request) (*domain.Result, error) {
		calls++
		if calls == 1 {
			return &domain.Result{
				Model:     req.Model,
				ToolCalls: []domain.ToolCall{{Name: "get_tasks"}},
			}, nil
		}
		// Second round sees the tool results in context.
		for _, m := range req.Messages {
			if strings.Contains(m.Content, "Tool results:") {
				return &domain.Result{Text: "You have 2 pending tasks.", Model: req.Model}, nil
			}
		}
		t.Error("tool results never fed back")
		return &domain.Result{Text: "missing context", Model: req.Model}, nil
	}
	o := newOrchestrator(t, harness{call: call})

	var executed []string
	exec := func(_ context.Context, name string, _ map[string]any) (string, error) {
		executed = append(executed, name)
		return `[{"title":"renew passport"},{"title":"book dentist"}]`, nil
	}

	req := userTurn("what is on my plate")
	req.Tools = []domain.ToolSpec{{Name: "get_tasks"}}
	resp, err := o.RunAgent(context.Background(), req, exec)
	if err != nil {
		t.Fatalf("agent: %v", err)
	}
	if resp.Response != "You have 2 pending tasks." {
		t.Errorf("response = %q", resp.Response)
	}
	if len(executed) != 1 || executed[0] != "get_tasks" {
		t.Errorf("executed = %v", executed)
	}
}

func TestRunAgentBoundedRounds(t *testing.T) {
	call := func(_ context.Context, _ string, req *domain.Request) (*domain.Result, error) {
		return &domain.Result{
			Model:     req.Model,
			ToolCalls: []domain.ToolCall{{Name: "get_tasks"}},
		}, nil
	}
	o := newOrchestrator(t, harness{call: call})

	executed := 0
	exec := func(_ context.Context, _ string, _ map[string]any) (string, error) {
		executed++
		return "[]", nil
	}

	req := userTurn("keep going")
	req.Tools = []domain.ToolSpec{{Name: "get_tasks"}}
	if _, err := o.RunAgent(context.Background(), req, exec); err != nil {
		t.Fatalf("agent: %v", err)
	}
	if executed != 4 {
		t.Errorf("executed %d rounds, want 4", executed)
	}
}

func TestRunAgentStopsAtApprovalGate(t *testing.T) {
	call := func(_ context.Context, _ string, req *domain.Request) (*domain.Result, error) {
		return &domain.Result{
			Model:     req.Model,
			ToolCalls: []domain.ToolCall{{Name: "delete_everything"}},
		}, nil
	}
	o := newOrchestrator(t, harness{call: call})

	exec := func(_ context.Context, _ string, _ map[string]any) (string, error) {
		t.Fatal("sensitive tool must never execute")
		return "", nil
	}

	req := userTurn("clean up")
	req.Tools = []domain.ToolSpec{{Name: "delete_everything"}}
	resp, err := o.RunAgent(context.Background(), req, exec)
	if err != nil {
		t.Fatalf("agent: %v", err)
	}
	if !resp.ApprovalRequired {
		t.Error("expected approval stop")
	}
}
