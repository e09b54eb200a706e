// Package tokens provides token counting: a tiktoken-backed counter for
// OpenAI-family models and a character-ratio estimator for everything
// else.
package tokens

import (
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"github.com/concierge-ai/concierge/internal/domain"
)

// Counter counts tokens for the models it supports.
type Counter interface {
	SupportsModel(model string) bool
	CountText(model, text string) (int, error)
}

// Estimator approximates token counts from character length. Roughly 4
// characters per token holds well for English across model families.
type Estimator struct {
	CharsPerToken float64
	// MessageOverhead is added per message to account for role and
	// framing tokens.
	MessageOverhead int
}

// NewEstimator creates an estimator with the standard ratios.
func NewEstimator() *Estimator {
	return &Estimator{CharsPerToken: 4.0, MessageOverhead: 4}
}

// SupportsModel always reports true; the estimator is the fallback.
func (e *Estimator) SupportsModel(string) bool { return true }

// CountText estimates tokens for a text fragment.
func (e *Estimator) CountText(_, text string) (int, error) {
	return e.EstimateText(text), nil
}

// EstimateText estimates tokens for a text fragment, rounding up.
func (e *Estimator) EstimateText(text string) int {
	if text == "" {
		return 0
	}
	chars := float64(len(text))
	n := int(chars / e.CharsPerToken)
	if float64(n)*e.CharsPerToken < chars {
		n++
	}
	return n
}

// EstimateMessages estimates tokens for a full message array including
// per-message overhead.
func (e *Estimator) EstimateMessages(messages []domain.Message) int {
	total := 0
	for _, m := range messages {
		total += e.EstimateText(m.Content) + e.MessageOverhead
	}
	return total
}

// OpenAICounter provides accurate counts for OpenAI models via tiktoken.
type OpenAICounter struct {
	prefixes []string

	mu    sync.Mutex
	cache map[tokenizer.Encoding]tokenizer.Codec
}

// NewOpenAICounter creates a tiktoken-backed counter. The "o" prefixes
// cover the o1/o3-style reasoning models.
func NewOpenAICounter() *OpenAICounter {
	return &OpenAICounter{
		prefixes: []string{"gpt-", "o1", "o3", "o4", "text-embedding"},
		cache:    make(map[tokenizer.Encoding]tokenizer.Codec),
	}
}

// SupportsModel reports whether the model is OpenAI-family.
func (c *OpenAICounter) SupportsModel(model string) bool {
	for _, p := range c.prefixes {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}

// CountText counts tokens in a text fragment.
func (c *OpenAICounter) CountText(model, text string) (int, error) {
	codec, err := c.codecFor(model)
	if err != nil {
		return 0, err
	}
	ids, _, err := codec.Encode(text)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

func (c *OpenAICounter) codecFor(model string) (tokenizer.Codec, error) {
	if codec, err := tokenizer.ForModel(tokenizer.Model(model)); err == nil {
		return codec, nil
	}

	// Unknown model names fall back to the current-generation encoding.
	encoding := tokenizer.O200kBase

	c.mu.Lock()
	defer c.mu.Unlock()
	if cached, ok := c.cache[encoding]; ok {
		return cached, nil
	}
	codec, err := tokenizer.Get(encoding)
	if err != nil {
		return nil, err
	}
	c.cache[encoding] = codec
	return codec, nil
}

// Registry picks the right counter for a model, falling back to the
// estimator when no counter supports it or a counter fails.
type Registry struct {
	counters []Counter
	fallback *Estimator
}

// NewRegistry creates a registry with the tiktoken counter registered
// and the estimator as fallback.
func NewRegistry() *Registry {
	return &Registry{
		counters: []Counter{NewOpenAICounter()},
		fallback: NewEstimator(),
	}
}

// CountText returns the token count of text under the given model.
// It never fails: counter errors degrade to the estimate.
func (r *Registry) CountText(model, text string) int {
	for _, c := range r.counters {
		if c.SupportsModel(model) {
			if n, err := c.CountText(model, text); err == nil {
				return n
			}
		}
	}
	return r.fallback.EstimateText(text)
}

// CountMessages returns the token count of a conversation under the
// given model, including per-message framing overhead.
func (r *Registry) CountMessages(model string, messages []domain.Message) int {
	total := 0
	for _, m := range messages {
		total += r.CountText(model, m.Content) + r.fallback.MessageOverhead
	}
	return total
}
