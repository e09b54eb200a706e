// Package config loads configuration from config.yaml and
// CONCIERGE_-prefixed environment variables, env winning.
package config

import (
	"os"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Storage    StorageConfig    `koanf:"storage"`
	Routing    RoutingConfig    `koanf:"routing"`
	Cost       CostConfig       `koanf:"cost"`
	Compaction CompactionConfig `koanf:"compaction"`
	Approval   ApprovalConfig   `koanf:"approval"`
	Agent      AgentConfig      `koanf:"agent"`
	Resilience ResilienceConfig `koanf:"resilience"`
}

type ServerConfig struct {
	Port           int `koanf:"port"`
	RequestTimeout int `koanf:"request_timeout_seconds"`
}

type StorageConfig struct {
	Path string `koanf:"path"`
}

type RoutingConfig struct {
	DefaultModel      string        `koanf:"default_model"`
	Tiers             TierConfig    `koanf:"tiers"`
	Upgrade           UpgradeConfig `koanf:"upgrade"`
	ReliableProviders []string      `koanf:"reliable_providers"`
}

type TierConfig struct {
	Simple   string `koanf:"simple"`
	Moderate string `koanf:"moderate"`
	Complex  string `koanf:"complex"`
}

type UpgradeConfig struct {
	Model    string `koanf:"model"`
	Provider string `koanf:"provider"`
}

type CostConfig struct {
	Enabled          bool     `koanf:"enabled"`
	DailyBudgetUSD   float64  `koanf:"daily_budget_usd"`
	SessionBudgetUSD float64  `koanf:"session_budget_usd"`
	ToolCallModels   []string `koanf:"tool_call_models"`
}

type CompactionConfig struct {
	ThresholdTokens int    `koanf:"threshold_tokens"`
	KeepRecent      int    `koanf:"keep_recent"`
	SummaryModel    string `koanf:"summary_model"`
}

type ApprovalConfig struct {
	SensitivePrefixes []string `koanf:"sensitive_prefixes"`
}

type AgentConfig struct {
	MaxRounds int `koanf:"max_rounds"`
}

type ResilienceConfig struct {
	RetryBudget int          `koanf:"retry_budget"`
	Chain       []ChainEntry `koanf:"chain"`
}

type ChainEntry struct {
	Provider string `koanf:"provider"`
	Model    string `koanf:"model"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads config.yaml (when present) and the environment. Double
// underscores in env keys become dots: CONCIERGE_SERVER__PORT=9000
// sets server.port.
func Load() (*Config, error) {
	return LoadFile("config.yaml")
}

// LoadFile is Load with an explicit file path.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	if err := k.Load(env.Provider("CONCIERGE_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "CONCIERGE_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	applyDefaults(k)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	cfg.Storage.Path = substituteEnvVars(cfg.Storage.Path)
	return &cfg, nil
}

func applyDefaults(k *koanf.Koanf) {
	defaults := map[string]any{
		"server.port":                    8080,
		"server.request_timeout_seconds": 120,
		"storage.path":                   "concierge.db",
		"routing.default_model":          "or:google/gemini-3-flash-preview",
		"routing.tiers.simple":           "or:google/gemini-3-flash-preview",
		"routing.tiers.moderate":         "gpt-4.1-mini",
		"routing.tiers.complex":          "kimi-k2.5",
		"routing.upgrade.model":          "gpt-4.1-mini",
		"routing.upgrade.provider":       "openai",
		"routing.reliable_providers":     []string{"openai", "anthropic"},
		"cost.enabled":                   true,
		"cost.daily_budget_usd":          5.0,
		"cost.session_budget_usd":        2.0,
		"cost.tool_call_models":          []string{"gpt-4.1-mini"},
		"compaction.threshold_tokens":    3000,
		"compaction.keep_recent":         6,
		"compaction.summary_model":       "or:google/gemini-3-flash-preview",
		"agent.max_rounds":               4,
		"resilience.retry_budget":        1,
	}
	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(name)
	})
}
