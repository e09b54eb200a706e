package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/concierge-ai/concierge/internal/approval"
	"github.com/concierge-ai/concierge/internal/catalog"
	"github.com/concierge-ai/concierge/internal/compactor"
	"github.com/concierge-ai/concierge/internal/config"
	"github.com/concierge-ai/concierge/internal/credentials"
	"github.com/concierge-ai/concierge/internal/domain"
	"github.com/concierge-ai/concierge/internal/intent"
	"github.com/concierge-ai/concierge/internal/memory"
	"github.com/concierge-ai/concierge/internal/orchestrator"
	"github.com/concierge-ai/concierge/internal/policy"
	"github.com/concierge-ai/concierge/internal/provider"
	"github.com/concierge-ai/concierge/internal/resilient"
	"github.com/concierge-ai/concierge/internal/route"
	"github.com/concierge-ai/concierge/internal/server"
	"github.com/concierge-ai/concierge/internal/storage"
	"github.com/concierge-ai/concierge/internal/tasks"
	"github.com/concierge-ai/concierge/internal/telemetry"
	"github.com/concierge-ai/concierge/internal/tokens"
	"github.com/concierge-ai/concierge/internal/usage"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	shutdown, err := telemetry.InitTracer("concierge", logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	db, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		log.Fatalf("Failed to open storage at %s: %v", cfg.Storage.Path, err)
	}
	defer db.Close()

	creds := credentials.NewStore(db, credentials.EnvResolver{})
	usageStore := usage.NewStore(db)
	memoryStore := memory.NewStore(db)
	taskStore := tasks.NewStore(db)

	dial := dialFunc(creds)

	router := route.NewRouter(cfg.Routing.DefaultModel, route.TierModels{
		Simple:   cfg.Routing.Tiers.Simple,
		Moderate: cfg.Routing.Tiers.Moderate,
		Complex:  cfg.Routing.Tiers.Complex,
	})
	selector := policy.New(policy.Config{
		Enabled:          cfg.Cost.Enabled,
		DailyBudgetUSD:   cfg.Cost.DailyBudgetUSD,
		SessionBudgetUSD: cfg.Cost.SessionBudgetUSD,
		Tiers: map[string][]string{
			string(domain.ComplexitySimple):   {cfg.Routing.Tiers.Simple},
			string(domain.ComplexityModerate): {cfg.Routing.Tiers.Moderate},
			string(domain.ComplexityComplex):  {cfg.Routing.Tiers.Complex},
			policy.TierToolCall:               cfg.Cost.ToolCallModels,
		},
	})
	upgrader := route.NewUpgrader(route.Upgrade{
		Model:    cfg.Routing.Upgrade.Model,
		Provider: cfg.Routing.Upgrade.Provider,
	}, cfg.Routing.ReliableProviders)

	summarize := func(ctx context.Context, req *domain.Request) (*domain.Result, error) {
		return dial(ctx, catalog.ProviderForModel(req.Model), req)
	}
	compact := compactor.New(tokens.NewRegistry(), cfg.Compaction.SummaryModel, summarize,
		compactor.WithThreshold(cfg.Compaction.ThresholdTokens),
		compactor.WithKeepRecent(cfg.Compaction.KeepRecent),
		compactor.WithLogger(logger),
	)

	callerOpts := []resilient.Option{
		resilient.WithLogger(logger),
		resilient.WithRetryBudget(cfg.Resilience.RetryBudget),
	}
	if len(cfg.Resilience.Chain) > 0 {
		chain := make([]resilient.FallbackEntry, 0, len(cfg.Resilience.Chain))
		for _, e := range cfg.Resilience.Chain {
			chain = append(chain, resilient.FallbackEntry{Provider: e.Provider, Model: e.Model})
		}
		callerOpts = append(callerOpts, resilient.WithChain(chain))
	}
	caller := resilient.New(dial, creds, callerOpts...)
	retrier := intent.NewRetrier(intent.CallFunc(dial), creds, logger)
	gate := approval.NewGate(cfg.Approval.SensitivePrefixes)

	orch := orchestrator.New(orchestrator.Config{
		DefaultModel:   cfg.Routing.DefaultModel,
		DailyBudgetUSD: cfg.Cost.DailyBudgetUSD,
		MaxAgentRounds: cfg.Agent.MaxRounds,
	}, orchestrator.Deps{
		Router:      router,
		Selector:    selector,
		Upgrader:    upgrader,
		Compactor:   compact,
		Caller:      caller,
		Retrier:     retrier,
		Gate:        gate,
		Usage:       usageStore,
		Memories:    memoryStore,
		Tasks:       taskStore,
		Credentials: creds,
		Logger:      logger,
	})

	srv := server.New(
		cfg.Server.Port,
		time.Duration(cfg.Server.RequestTimeout)*time.Second,
		orch,
		usageStore,
		logger,
	)

	logger.Info("starting concierge",
		slog.Int("port", cfg.Server.Port),
		slog.String("default_model", cfg.Routing.DefaultModel),
		slog.String("storage", cfg.Storage.Path))
	if err := srv.Start(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// dialFunc builds the completion function shared by the resilient
// caller, the intent retrier and the compactor: resolve the user's
// credential for the provider, construct the adapter and call it.
// Perplexity rejects tool definitions, so they are stripped there.
func dialFunc(creds credentials.Resolver) resilient.CallFunc {
	return func(ctx context.Context, providerName string, req *domain.Request) (*domain.Result, error) {
		apiKey, ok := creds.Resolve(ctx, req.UserID, providerName)
		if !ok {
			return nil, domain.ErrAuthentication("no credential for provider " + providerName).WithProvider(providerName)
		}
		p, err := provider.New(providerName, apiKey)
		if err != nil {
			return nil, err
		}
		if providerName == catalog.ProviderPerplexity && len(req.Tools) > 0 {
			stripped := *req
			stripped.Tools = nil
			req = &stripped
		}
		return p.Complete(ctx, req)
	}
}
