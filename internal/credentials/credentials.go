// Package credentials resolves provider API keys through an ordered
// list of strategies: the process environment first, then per-user
// keys stored in sqlite.
package credentials

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/concierge-ai/concierge/internal/catalog"
	"github.com/concierge-ai/concierge/internal/storage"
)

// Resolver resolves the API key for a provider on behalf of a user.
type Resolver interface {
	// Resolve returns the key and whether one is configured.
	Resolve(ctx context.Context, userID, provider string) (string, bool)
}

// envVars maps provider names onto their conventional environment
// variables.
var envVars = map[string]string{
	catalog.ProviderOpenAI:     "OPENAI_API_KEY",
	catalog.ProviderAnthropic:  "ANTHROPIC_API_KEY",
	catalog.ProviderPerplexity: "PERPLEXITY_API_KEY",
	catalog.ProviderGoogle:     "GEMINI_API_KEY",
	catalog.ProviderOpenRouter: "OPENROUTER_API_KEY",
	catalog.ProviderMoonshot:   "MOONSHOT_API_KEY",
	catalog.ProviderGroq:       "GROQ_API_KEY",
}

// EnvResolver resolves keys from the process environment only.
type EnvResolver struct{}

func (EnvResolver) Resolve(_ context.Context, _ string, provider string) (string, bool) {
	name, ok := envVars[provider]
	if !ok {
		return "", false
	}
	key := os.Getenv(name)
	return key, key != ""
}

// Store resolves keys from the environment first, then from per-user
// keys saved in sqlite for providers the environment does not cover.
type Store struct {
	db  *storage.DB
	env Resolver
}

// NewStore returns a Store backed by db. A nil env defaults to
// EnvResolver.
func NewStore(db *storage.DB, env Resolver) *Store {
	if env == nil {
		env = EnvResolver{}
	}
	return &Store{db: db, env: env}
}

func (s *Store) Resolve(ctx context.Context, userID, provider string) (string, bool) {
	if key, ok := s.env.Resolve(ctx, userID, provider); ok {
		return key, true
	}

	var key string
	err := s.db.GetContext(ctx, &key,
		`SELECT api_key FROM provider_credentials WHERE user_id = ? AND provider = ?`,
		userID, provider)
	if err != nil {
		// ErrNoRows and storage trouble both read as no key saved.
		return "", false
	}
	return key, key != ""
}

// Set stores or replaces a per-user key for provider.
func (s *Store) Set(ctx context.Context, userID, provider, apiKey string) error {
	if _, ok := envVars[provider]; !ok {
		return fmt.Errorf("unknown provider %q", provider)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO provider_credentials (user_id, provider, api_key, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id, provider) DO UPDATE SET api_key = excluded.api_key`,
		userID, provider, apiKey, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store credential: %w", err)
	}
	return nil
}

// Delete removes a per-user key, reverting the user to the environment
// default.
func (s *Store) Delete(ctx context.Context, userID, provider string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM provider_credentials WHERE user_id = ? AND provider = ?`,
		userID, provider)
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}
