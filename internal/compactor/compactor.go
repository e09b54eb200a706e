// Package compactor shrinks long conversations by replacing old
// messages with a model-written summary while keeping the system
// message and the most recent exchanges verbatim.
package compactor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/concierge-ai/concierge/internal/domain"
	"github.com/concierge-ai/concierge/internal/tokens"
)

const (
	defaultThresholdTokens = 3000
	defaultKeepRecent      = 6
	summaryMaxTokens       = 300
)

const summaryPrompt = "Summarize the following conversation concisely, preserving key facts, " +
	"decisions, names, dates and any commitments made. Write a compact paragraph."

// Summarizer produces a summary completion. The orchestrator backs it
// with a cheap model.
type Summarizer func(ctx context.Context, req *domain.Request) (*domain.Result, error)

// Compactor decides when to compact and performs the rewrite.
type Compactor struct {
	counter    *tokens.Registry
	summarize  Summarizer
	threshold  int
	keepRecent int
	model      string
	logger     *slog.Logger
}

// Option configures a Compactor.
type Option func(*Compactor)

// WithThreshold sets the token count above which compaction triggers.
func WithThreshold(n int) Option {
	return func(c *Compactor) { c.threshold = n }
}

// WithKeepRecent sets how many trailing messages survive verbatim.
func WithKeepRecent(n int) Option {
	return func(c *Compactor) { c.keepRecent = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Compactor) { c.logger = l }
}

// New returns a Compactor that summarizes with model via summarize.
func New(counter *tokens.Registry, model string, summarize Summarizer, opts ...Option) *Compactor {
	c := &Compactor{
		counter:    counter,
		summarize:  summarize,
		threshold:  defaultThresholdTokens,
		keepRecent: defaultKeepRecent,
		model:      model,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ShouldCompact reports whether the conversation is over the token
// threshold with enough history to summarize.
func (c *Compactor) ShouldCompact(model string, messages []domain.Message) bool {
	if len(messages) <= c.keepRecent+1 {
		return false
	}
	return c.counter.CountMessages(model, messages) > c.threshold
}

// Compact rewrites messages when the conversation is over threshold.
// Failures are absorbed: the original messages come back with
// Compacted=false, the turn proceeds uncompacted.
func (c *Compactor) Compact(ctx context.Context, model string, messages []domain.Message) domain.CompactionResult {
	unchanged := domain.CompactionResult{Messages: messages}
	if !c.ShouldCompact(model, messages) {
		return unchanged
	}

	// Only a leading system prompt is exempt from summarization.
	// System messages further in (tool results fed back by the agent
	// loop) are history like any other and must stay summarizable.
	var system []domain.Message
	rest := messages
	if len(messages) > 0 && messages[0].Role == domain.RoleSystem {
		system = messages[:1]
		rest = messages[1:]
	}
	if len(rest) <= c.keepRecent {
		return unchanged
	}

	old := rest[:len(rest)-c.keepRecent]
	recent := rest[len(rest)-c.keepRecent:]
	if len(old) < 2 {
		return unchanged
	}

	summary, err := c.summarizeMessages(ctx, old)
	if err != nil || strings.TrimSpace(summary) == "" {
		c.logger.Warn("compaction skipped", "error", err)
		return unchanged
	}

	compacted := make([]domain.Message, 0, len(system)+1+len(recent))
	compacted = append(compacted, system...)
	compacted = append(compacted, domain.Message{
		Role:    domain.RoleAssistant,
		Content: fmt.Sprintf("[Previous conversation summary: %s]", strings.TrimSpace(summary)),
	})
	compacted = append(compacted, recent...)

	before := c.counter.CountMessages(model, messages)
	after := c.counter.CountMessages(model, compacted)
	saved := before - after
	if saved < 0 {
		saved = 0
	}
	c.logger.Info("conversation compacted",
		"messages_before", len(messages), "messages_after", len(compacted), "saved_tokens", saved)

	return domain.CompactionResult{Messages: compacted, Compacted: true, SavedTokens: saved}
}

func (c *Compactor) summarizeMessages(ctx context.Context, old []domain.Message) (string, error) {
	var transcript strings.Builder
	for _, m := range old {
		transcript.WriteString(m.Role)
		transcript.WriteString(": ")
		transcript.WriteString(m.Content)
		transcript.WriteString("\n")
	}

	result, err := c.summarize(ctx, &domain.Request{
		Model: c.model,
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: summaryPrompt},
			{Role: domain.RoleUser, Content: transcript.String()},
		},
		MaxTokens: summaryMaxTokens,
	})
	if err != nil {
		return "", err
	}
	return result.Text, nil
}
