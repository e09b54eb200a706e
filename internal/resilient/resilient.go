// Package resilient wraps provider calls with rate-limit retries and a
// cross-provider fallback chain.
package resilient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/concierge-ai/concierge/internal/catalog"
	"github.com/concierge-ai/concierge/internal/credentials"
	"github.com/concierge-ai/concierge/internal/domain"
)

// FallbackEntry pairs a provider with the model to use when falling
// back to it.
type FallbackEntry struct {
	Provider string
	Model    string
}

// DefaultChain is the ordered fallback chain. Entries sharing the
// primary's provider are skipped, as are entries without credentials.
var DefaultChain = []FallbackEntry{
	{Provider: catalog.ProviderAnthropic, Model: "claude-opus-4-6"},
	{Provider: catalog.ProviderOpenAI, Model: "gpt-4.1"},
	{Provider: catalog.ProviderGoogle, Model: "gemini-2.5-flash"},
	{Provider: catalog.ProviderOpenRouter, Model: catalog.DefaultModel},
}

const (
	defaultRetryBudget = 1
	baseDelay          = time.Second
	maxDelay           = 5 * time.Second
)

// CallFunc performs one completion attempt against a provider. The
// implementation resolves credentials and constructs the adapter.
// req.Model is already set to model.
type CallFunc func(ctx context.Context, provider string, req *domain.Request) (*domain.Result, error)

// Sleeper blocks for d or until ctx is done. Injectable for tests.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Caller executes completions with retry and fallback.
type Caller struct {
	call        CallFunc
	creds       credentials.Resolver
	chain       []FallbackEntry
	retryBudget int
	sleep       Sleeper
	logger      *slog.Logger
}

// Option configures a Caller.
type Option func(*Caller)

// WithChain replaces the fallback chain.
func WithChain(chain []FallbackEntry) Option {
	return func(c *Caller) { c.chain = chain }
}

// WithRetryBudget sets the number of same-provider retries after a
// rate limit.
func WithRetryBudget(n int) Option {
	return func(c *Caller) { c.retryBudget = n }
}

// WithSleeper replaces the backoff sleeper.
func WithSleeper(s Sleeper) Option {
	return func(c *Caller) { c.sleep = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Caller) { c.logger = l }
}

// New returns a Caller that attempts completions via call.
func New(call CallFunc, creds credentials.Resolver, opts ...Option) *Caller {
	c := &Caller{
		call:        call,
		creds:       creds,
		chain:       DefaultChain,
		retryBudget: defaultRetryBudget,
		sleep:       sleepContext,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// backoffDelay grows exponentially from baseDelay, capped at maxDelay.
func backoffDelay(attempt int) time.Duration {
	d := baseDelay << attempt
	if d > maxDelay || d <= 0 {
		return maxDelay
	}
	return d
}

// Call completes req against the provider serving req.Model, retrying
// rate limits in place and walking the fallback chain for every other
// retryable failure. Bad requests and context overflows are terminal.
func (c *Caller) Call(ctx context.Context, userID string, req *domain.Request) (*domain.CallOutcome, error) {
	model := req.Model
	primary := catalog.ProviderForModel(model)

	result, err := c.callWithRetry(ctx, primary, model, req)
	if err == nil {
		return &domain.CallOutcome{Result: result, Provider: primary, Model: model}, nil
	}

	var apiErr *domain.APIError
	if errors.As(err, &apiErr) && apiErr.Terminal() {
		return nil, err
	}

	c.logger.Warn("primary provider failed, trying fallback chain",
		"provider", primary, "model", model, "error", err)

	lastErr := err
	lastProvider := primary
	for _, entry := range c.chain {
		if entry.Provider == primary {
			continue
		}
		if _, ok := c.creds.Resolve(ctx, userID, entry.Provider); !ok {
			continue
		}

		// Fallback entries get exactly one attempt; only the primary
		// earns in-place retries.
		result, err := c.callOnce(ctx, entry.Provider, entry.Model, req)
		if err == nil {
			c.logger.Info("fallback succeeded",
				"provider", entry.Provider, "model", entry.Model)
			return &domain.CallOutcome{
				Result:       result,
				Provider:     entry.Provider,
				Model:        entry.Model,
				UsedFallback: true,
			}, nil
		}
		if errors.As(err, &apiErr) && apiErr.Terminal() {
			return nil, err
		}
		c.logger.Warn("fallback provider failed",
			"provider", entry.Provider, "model", entry.Model, "error", err)
		lastErr = err
		lastProvider = entry.Provider
	}

	return nil, fmt.Errorf("all providers failed, last failure from %s: %w", lastProvider, lastErr)
}

func (c *Caller) callOnce(ctx context.Context, provider, model string, req *domain.Request) (*domain.Result, error) {
	attemptReq := *req
	attemptReq.Model = model
	return c.call(ctx, provider, &attemptReq)
}

// callWithRetry retries rate limits against a single provider within
// the retry budget. Any other failure returns immediately.
func (c *Caller) callWithRetry(ctx context.Context, provider, model string, req *domain.Request) (*domain.Result, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		result, err := c.callOnce(ctx, provider, model, req)
		if err == nil {
			return result, nil
		}
		lastErr = err

		var apiErr *domain.APIError
		if !errors.As(err, &apiErr) || apiErr.Type != domain.ErrorTypeRateLimit {
			return nil, err
		}
		if attempt >= c.retryBudget {
			return nil, lastErr
		}

		delay := backoffDelay(attempt)
		c.logger.Warn("rate limited, backing off",
			"provider", provider, "model", model, "delay", delay)
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}
