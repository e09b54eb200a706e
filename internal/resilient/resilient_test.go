package resilient

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/concierge-ai/concierge/internal/catalog"
	"github.com/concierge-ai/concierge/internal/domain"
)

type mapCreds map[string]string

func (m mapCreds) Resolve(_ context.Context, _ string, provider string) (string, bool) {
	key, ok := m[provider]
	return key, ok
}

var allCreds = mapCreds{
	catalog.ProviderOpenAI:     "sk-test",
	catalog.ProviderAnthropic:  "sk-ant-test",
	catalog.ProviderGoogle:     "g-test",
	catalog.ProviderOpenRouter: "or-test",
	catalog.ProviderMoonshot:   "ms-test",
}

type attempt struct {
	provider string
	model    string
}

// fakeCalls returns a CallFunc that replays responses keyed by
// provider and records every attempt.
func fakeCalls(attempts *[]attempt, responses map[string][]error) CallFunc {
	return func(_ context.Context, provider string, req *domain.Request) (*domain.Result, error) {
		*attempts = append(*attempts, attempt{provider: provider, model: req.Model})
		queue := responses[provider]
		if len(queue) == 0 {
			return &domain.Result{Text: "ok", Model: req.Model}, nil
		}
		err := queue[0]
		responses[provider] = queue[1:]
		if err == nil {
			return &domain.Result{Text: "ok", Model: req.Model}, nil
		}
		return nil, err
	}
}

func chatReq(model string) *domain.Request {
	return &domain.Request{
		Model:    model,
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "hello"}},
	}
}

func noSleep(delays *[]time.Duration) Sleeper {
	return func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCallSuccessNoFallback(t *testing.T) {
	var attempts []attempt
	caller := New(fakeCalls(&attempts, nil), allCreds, WithLogger(quietLogger()))

	outcome, err := caller.Call(context.Background(), "u1", chatReq("gpt-4.1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.UsedFallback {
		t.Error("expected no fallback")
	}
	if outcome.Provider != catalog.ProviderOpenAI {
		t.Errorf("provider = %q, want openai", outcome.Provider)
	}
	if len(attempts) != 1 {
		t.Errorf("attempts = %d, want 1", len(attempts))
	}
}

func TestCallBadRequestIsTerminal(t *testing.T) {
	var attempts []attempt
	responses := map[string][]error{
		catalog.ProviderOpenAI: {domain.ErrBadRequest("invalid payload")},
	}
	caller := New(fakeCalls(&attempts, responses), allCreds, WithLogger(quietLogger()))

	_, err := caller.Call(context.Background(), "u1", chatReq("gpt-4.1"))
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *domain.APIError
	if !errors.As(err, &apiErr) || apiErr.Type != domain.ErrorTypeBadRequest {
		t.Fatalf("error = %v, want bad_request", err)
	}
	if len(attempts) != 1 {
		t.Errorf("attempts = %d, want exactly 1 (no retry, no fallback)", len(attempts))
	}
}

func TestCallContextLengthIsTerminal(t *testing.T) {
	var attempts []attempt
	responses := map[string][]error{
		catalog.ProviderAnthropic: {domain.ErrContextLength("context too long")},
	}
	caller := New(fakeCalls(&attempts, responses), allCreds, WithLogger(quietLogger()))

	_, err := caller.Call(context.Background(), "u1", chatReq("claude-opus-4-6"))
	if err == nil {
		t.Fatal("expected error")
	}
	if len(attempts) != 1 {
		t.Errorf("attempts = %d, want 1", len(attempts))
	}
}

func TestCallRateLimitRetriesThenFallsBack(t *testing.T) {
	var attempts []attempt
	var delays []time.Duration
	responses := map[string][]error{
		catalog.ProviderOpenAI: {
			domain.ErrRateLimit("slow down"),
			domain.ErrRateLimit("slow down"),
		},
	}
	caller := New(fakeCalls(&attempts, responses), allCreds,
		WithSleeper(noSleep(&delays)), WithLogger(quietLogger()))

	outcome, err := caller.Call(context.Background(), "u1", chatReq("gpt-4.1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.UsedFallback {
		t.Error("expected fallback")
	}
	if outcome.Provider != catalog.ProviderAnthropic {
		t.Errorf("fallback provider = %q, want anthropic", outcome.Provider)
	}

	// Budget of one retry: two openai attempts, then the chain.
	openaiAttempts := 0
	for _, a := range attempts {
		if a.provider == catalog.ProviderOpenAI {
			openaiAttempts++
		}
	}
	if openaiAttempts != 2 {
		t.Errorf("openai attempts = %d, want 2", openaiAttempts)
	}
	if len(delays) != 1 || delays[0] != time.Second {
		t.Errorf("delays = %v, want [1s]", delays)
	}
}

func TestCallFallbackEntriesTriedOnce(t *testing.T) {
	var attempts []attempt
	var delays []time.Duration
	responses := map[string][]error{
		catalog.ProviderOpenAI:    {domain.ErrServer("down")},
		catalog.ProviderAnthropic: {domain.ErrRateLimit("slow down")},
	}
	caller := New(fakeCalls(&attempts, responses), allCreds,
		WithSleeper(noSleep(&delays)), WithLogger(quietLogger()))

	outcome, err := caller.Call(context.Background(), "u1", chatReq("gpt-4.1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Provider != catalog.ProviderGoogle {
		t.Errorf("provider = %q, want google (next chain entry)", outcome.Provider)
	}

	// A rate-limited fallback gets no in-place retry and no backoff.
	anthropicAttempts := 0
	for _, a := range attempts {
		if a.provider == catalog.ProviderAnthropic {
			anthropicAttempts++
		}
	}
	if anthropicAttempts != 1 {
		t.Errorf("anthropic attempts = %d, want 1", anthropicAttempts)
	}
	if len(delays) != 0 {
		t.Errorf("delays = %v, want none", delays)
	}
}

func TestCallServerErrorSkipsRetry(t *testing.T) {
	var attempts []attempt
	var delays []time.Duration
	responses := map[string][]error{
		catalog.ProviderOpenAI: {domain.ErrServer("upstream exploded")},
	}
	caller := New(fakeCalls(&attempts, responses), allCreds,
		WithSleeper(noSleep(&delays)), WithLogger(quietLogger()))

	outcome, err := caller.Call(context.Background(), "u1", chatReq("gpt-4.1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.UsedFallback {
		t.Error("expected fallback")
	}
	if len(delays) != 0 {
		t.Errorf("delays = %v, want none (server errors do not back off)", delays)
	}
	// One primary attempt, then straight to the chain.
	if attempts[0].provider != catalog.ProviderOpenAI || attempts[1].provider != catalog.ProviderAnthropic {
		t.Errorf("attempt order = %v", attempts)
	}
}

func TestCallChainSkipsPrimaryProvider(t *testing.T) {
	var attempts []attempt
	responses := map[string][]error{
		catalog.ProviderAnthropic: {domain.ErrServer("down"), domain.ErrServer("down")},
	}
	caller := New(fakeCalls(&attempts, responses), allCreds, WithLogger(quietLogger()))

	outcome, err := caller.Call(context.Background(), "u1", chatReq("claude-opus-4-6"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, a := range attempts[1:] {
		if a.provider == catalog.ProviderAnthropic {
			t.Errorf("chain retried the primary provider: %v", attempts)
		}
	}
	if outcome.Provider != catalog.ProviderOpenAI {
		t.Errorf("fallback provider = %q, want openai", outcome.Provider)
	}
}

func TestCallChainSkipsMissingCredentials(t *testing.T) {
	var attempts []attempt
	responses := map[string][]error{
		catalog.ProviderOpenAI: {domain.ErrServer("down")},
	}
	creds := mapCreds{
		catalog.ProviderOpenAI: "sk-test",
		catalog.ProviderGoogle: "g-test",
	}
	caller := New(fakeCalls(&attempts, responses), creds, WithLogger(quietLogger()))

	outcome, err := caller.Call(context.Background(), "u1", chatReq("gpt-4.1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Anthropic has no key, so google is the first viable entry.
	if outcome.Provider != catalog.ProviderGoogle {
		t.Errorf("fallback provider = %q, want google", outcome.Provider)
	}
}

func TestCallAllProvidersFailed(t *testing.T) {
	var attempts []attempt
	responses := map[string][]error{
		catalog.ProviderOpenAI:     {domain.ErrServer("down")},
		catalog.ProviderAnthropic:  {domain.ErrServer("down")},
		catalog.ProviderGoogle:     {domain.ErrServer("down")},
		catalog.ProviderOpenRouter: {domain.ErrServer("down")},
	}
	caller := New(fakeCalls(&attempts, responses), allCreds, WithLogger(quietLogger()))

	_, err := caller.Call(context.Background(), "u1", chatReq("gpt-4.1"))
	if err == nil {
		t.Fatal("expected error")
	}
	if got := err.Error(); !strings.Contains(got, "all providers failed") {
		t.Errorf("error = %q, want aggregated failure", got)
	}
	var apiErr *domain.APIError
	if !errors.As(err, &apiErr) {
		t.Error("expected the last APIError to remain unwrappable")
	}
}

func TestBackoffDelay(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 5 * time.Second},
		{10, 5 * time.Second},
	}
	for _, tc := range cases {
		if got := backoffDelay(tc.attempt); got != tc.want {
			t.Errorf("backoffDelay(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}
