// Package pricing computes USD cost for model calls from a static
// per-model price table.
package pricing

import (
	"math"
	"sort"
	"strings"
)

// Rate is the USD price per 1M input/output tokens.
type Rate struct {
	InputPer1M  float64
	OutputPer1M float64
}

// rates is keyed by model-ID substring; lookup is longest-match-first so
// "gpt-4.1-mini" wins over "gpt-4.1".
var rates = map[string]Rate{
	// OpenAI
	"gpt-5.2":      {5.00, 20.00},
	"gpt-4.1-nano": {0.10, 0.40},
	"gpt-4.1-mini": {0.40, 1.60},
	"gpt-4.1":      {2.00, 8.00},
	"gpt-4o-mini":  {0.15, 0.60},
	"gpt-4o":       {2.50, 10.00},
	"o3-mini":      {1.10, 4.40},

	// Anthropic
	"claude-opus-4":   {15.00, 75.00},
	"claude-sonnet-4": {3.00, 15.00},
	"claude-haiku-4":  {0.80, 4.00},

	// Google
	"gemini-3-pro":     {1.50, 10.00},
	"gemini-3-flash":   {0.15, 0.60},
	"gemini-2.5-pro":   {1.25, 10.00},
	"gemini-2.5-flash": {0.15, 0.60},

	// Perplexity
	"sonar-reasoning-pro": {2.00, 8.00},
	"sonar-pro":           {3.00, 15.00},
	"sonar":               {1.00, 1.00},

	// Groq
	"llama-3.3-70b": {0.59, 0.79},
	"mixtral-8x7b":  {0.24, 0.24},

	// OpenRouter-served models (matched through router IDs)
	"deepseek-v3": {0.27, 1.10},
	"deepseek-r1": {0.55, 2.19},
	"kimi-k2":     {0.60, 2.40},
	"grok-4":      {3.00, 15.00},
	"llama-4":     {0.15, 0.60},
	"qwen3-coder": {0.50, 2.00},
}

// defaultRate is used for models absent from the table; an unknown
// model must never fail a cost estimate.
var defaultRate = Rate{InputPer1M: 1.00, OutputPer1M: 4.00}

// sortedKeys holds the table keys ordered by length descending.
var sortedKeys = func() []string {
	keys := make([]string, 0, len(rates))
	for k := range rates {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })
	return keys
}()

// RateFor returns the price row for a model, longest-substring match
// first, falling back to the default row.
func RateFor(model string) Rate {
	for _, key := range sortedKeys {
		if strings.Contains(model, key) {
			return rates[key]
		}
	}
	return defaultRate
}

// Cost returns the USD cost of a call, rounded to micro-dollars.
func Cost(model string, inputTokens, outputTokens int) float64 {
	r := RateFor(model)
	cost := float64(inputTokens)/1e6*r.InputPer1M + float64(outputTokens)/1e6*r.OutputPer1M
	return math.Round(cost*1e6) / 1e6
}
