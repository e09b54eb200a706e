// Package intent detects tool-use intent leaking into plain text. Some
// models narrate the tool call ("Let me check your calendar") or emit
// raw call markup instead of a structured tool call; when tools were on
// offer and that happens, the turn is retried once on a tool-capable
// model.
package intent

import (
	"context"
	"log/slog"
	"regexp"

	"github.com/concierge-ai/concierge/internal/catalog"
	"github.com/concierge-ai/concierge/internal/credentials"
	"github.com/concierge-ai/concierge/internal/domain"
)

// ToolCapableModel is the model used for the retry.
const ToolCapableModel = "gpt-4.1-mini"

// ToolCapableProvider serves ToolCapableModel.
const ToolCapableProvider = catalog.ProviderOpenAI

var leakPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\blet me (update|check|create|send|search|save|call|move|mark|list|get|find|schedule|draft)\b`),
	regexp.MustCompile(`(?i)\bi'?ll (update|check|create|send|search|save|call|move|mark|find)\b`),
	regexp.MustCompile(`<function_calls>`),
	regexp.MustCompile(`<tool_call`),
	regexp.MustCompile(`(?i)<invoke\b`),
}

var markupPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?s)<function_calls>.*?(</function_calls>|$)`),
	regexp.MustCompile(`(?s)<tool_call>.*?(</tool_call>|$)`),
	regexp.MustCompile(`(?is)<invoke\b.*?(</invoke>|$)`),
}

// Leaked reports whether a text-only result reads like an unexecuted
// tool call. Results that already carry structured tool calls never
// count as leaks.
func Leaked(result *domain.Result, hadTools bool) bool {
	if !hadTools || result == nil || result.HasToolCalls() {
		return false
	}
	for _, p := range leakPatterns {
		if p.MatchString(result.Text) {
			return true
		}
	}
	return false
}

// ScrubMarkup strips raw tool-call markup out of display text.
func ScrubMarkup(text string) string {
	for _, p := range markupPatterns {
		text = p.ReplaceAllString(text, "")
	}
	return text
}

// CallFunc performs a completion. The orchestrator backs it with the
// provider factory.
type CallFunc func(ctx context.Context, provider string, req *domain.Request) (*domain.Result, error)

// Retrier re-issues leaked turns against the tool-capable pair.
type Retrier struct {
	call   CallFunc
	creds  credentials.Resolver
	logger *slog.Logger
}

// NewRetrier returns a Retrier calling through call.
func NewRetrier(call CallFunc, creds credentials.Resolver, logger *slog.Logger) *Retrier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrier{call: call, creds: creds, logger: logger}
}

// MaybeRetry returns the retried result when the original leaked tool
// intent and the retry call succeeded; a retry failure keeps the
// original. The second return value reports whether the retry result
// was adopted.
func (r *Retrier) MaybeRetry(ctx context.Context, userID string, req *domain.Request, result *domain.Result) (*domain.Result, bool) {
	if !Leaked(result, len(req.Tools) > 0) {
		return result, false
	}
	if _, ok := r.creds.Resolve(ctx, userID, ToolCapableProvider); !ok {
		return result, false
	}

	r.logger.Info("tool intent leaked into text, retrying on tool-capable model",
		"model", ToolCapableModel)

	retryReq := *req
	retryReq.Model = ToolCapableModel
	retried, err := r.call(ctx, ToolCapableProvider, &retryReq)
	if err != nil {
		r.logger.Warn("intent retry failed, keeping original response", "error", err)
		return result, false
	}
	return retried, true
}
