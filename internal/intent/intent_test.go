package intent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/concierge-ai/concierge/internal/catalog"
	"github.com/concierge-ai/concierge/internal/domain"
)

type mapCreds map[string]string

func (m mapCreds) Resolve(_ context.Context, _ string, provider string) (string, bool) {
	key, ok := m[provider]
	return key, ok
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLeaked(t *testing.T) {
	cases := []struct {
		name     string
		text     string
		hadTools bool
		want     bool
	}{
		{"narrated intent", "Let me check your calendar for tomorrow.", true, true},
		{"contraction intent", "I'll update the task list now.", true, true},
		{"save intent", "Let me save that to your memory.", true, true},
		{"call intent", "Let me call you at 5pm.", true, true},
		{"move intent", "Let me move that task to done.", true, true},
		{"mark intent", "Let me mark it complete.", true, true},
		{"list intent", "Let me list your pending tasks.", true, true},
		{"contraction mark intent", "I'll mark the task done.", true, true},
		{"raw anthropic markup", "<function_calls>...", true, true},
		{"raw tool call markup", "sure <tool_call>{}</tool_call>", true, true},
		{"invoke markup", `<invoke name="send_email">`, true, true},
		{"plain answer", "Tomorrow looks sunny with a high of 24.", true, false},
		{"no tools offered", "Let me check your calendar.", false, false},
		{"let me think is fine", "Let me think about that for a second.", true, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := &domain.Result{Text: tc.text}
			if got := Leaked(result, tc.hadTools); got != tc.want {
				t.Errorf("Leaked(%q) = %v, want %v", tc.text, got, tc.want)
			}
		})
	}
}

func TestLeakedIgnoresStructuredToolCalls(t *testing.T) {
	result := &domain.Result{
		Text:      "Let me check that.",
		ToolCalls: []domain.ToolCall{{Name: "get_calendar"}},
	}
	if Leaked(result, true) {
		t.Error("structured tool calls are not a leak")
	}
}

func TestScrubMarkup(t *testing.T) {
	in := "Here you go.<function_calls>\n{\"name\":\"x\"}\n</function_calls> Done."
	if got := ScrubMarkup(in); got != "Here you go. Done." {
		t.Errorf("ScrubMarkup = %q", got)
	}

	unterminated := "Working on it <tool_call>{\"name\""
	if got := ScrubMarkup(unterminated); got != "Working on it " {
		t.Errorf("ScrubMarkup unterminated = %q", got)
	}
}

func toolsReq() *domain.Request {
	return &domain.Request{
		Model:    "or:google/gemini-3-flash-preview",
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "add milk to my list"}},
		Tools:    []domain.ToolSpec{{Name: "add_task"}},
	}
}

func TestMaybeRetryAdoptsToolCalls(t *testing.T) {
	var gotProvider, gotModel string
	call := func(_ context.Context, provider string, req *domain.Request) (*domain.Result, error) {
		gotProvider, gotModel = provider, req.Model
		return &domain.Result{ToolCalls: []domain.ToolCall{{Name: "add_task"}}}, nil
	}
	r := NewRetrier(call, mapCreds{catalog.ProviderOpenAI: "sk"}, quietLogger())

	original := &domain.Result{Text: "Let me save that to your list."}
	result, retried := r.MaybeRetry(context.Background(), "u1", toolsReq(), original)
	if !retried {
		t.Fatal("expected retry")
	}
	if !result.HasToolCalls() {
		t.Error("expected adopted tool calls")
	}
	if gotProvider != ToolCapableProvider || gotModel != ToolCapableModel {
		t.Errorf("retried via %s/%s, want %s/%s", gotProvider, gotModel, ToolCapableProvider, ToolCapableModel)
	}
}

func TestMaybeRetryKeepsOriginalOnFailure(t *testing.T) {
	call := func(_ context.Context, _ string, _ *domain.Request) (*domain.Result, error) {
		return nil, errors.New("capable model down")
	}
	r := NewRetrier(call, mapCreds{catalog.ProviderOpenAI: "sk"}, quietLogger())

	original := &domain.Result{Text: "Let me save that to your list."}
	result, retried := r.MaybeRetry(context.Background(), "u1", toolsReq(), original)
	if retried {
		t.Error("failed retry must not be adopted")
	}
	if result != original {
		t.Error("original result must come back unchanged")
	}
}

func TestMaybeRetryAdoptsTextResult(t *testing.T) {
	call := func(_ context.Context, _ string, _ *domain.Request) (*domain.Result, error) {
		return &domain.Result{Text: "Saved it to your list."}, nil
	}
	r := NewRetrier(call, mapCreds{catalog.ProviderOpenAI: "sk"}, quietLogger())

	original := &domain.Result{Text: "Let me save that to your list."}
	result, retried := r.MaybeRetry(context.Background(), "u1", toolsReq(), original)
	if !retried {
		t.Fatal("successful retry must be adopted even without tool calls")
	}
	if result.Text != "Saved it to your list." {
		t.Errorf("result = %+v", result)
	}
}

func TestMaybeRetrySkippedWithoutCredentials(t *testing.T) {
	called := false
	call := func(_ context.Context, _ string, _ *domain.Request) (*domain.Result, error) {
		called = true
		return &domain.Result{ToolCalls: []domain.ToolCall{{Name: "add_task"}}}, nil
	}
	r := NewRetrier(call, mapCreds{}, quietLogger())

	original := &domain.Result{Text: "Let me save that to your list."}
	_, retried := r.MaybeRetry(context.Background(), "u1", toolsReq(), original)
	if retried || called {
		t.Error("retry requires tool-capable provider credentials")
	}
}
