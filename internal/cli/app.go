package cli

import (
	"context"
	"fmt"

	"github.com/dstrand/trivium/internal/adapter"
	"github.com/dstrand/trivium/internal/db"
	"github.com/dstrand/trivium/internal/executor"
	"github.com/dstrand/trivium/internal/intent"
	"github.com/dstrand/trivium/internal/llm"
	"github.com/dstrand/trivium/internal/metrics"
	"github.com/dstrand/trivium/internal/orchestrator"
	"github.com/dstrand/trivium/internal/synthesizer"
)

// app bundles the wired-up service and the clients it owns.
type app struct {
	Orch      *orchestrator.Orchestrator
	Collector *metrics.Collector

	dbClient *db.Client
	vector   *adapter.Vector
}

// buildApp constructs the whole dependency graph from config: database
// clients, embedder, adapters, provider chain, and the orchestrator.
func buildApp(ctx context.Context) (*app, error) {
	dbClient, err := db.NewClient(ctx, db.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := dbClient.InitSchema(ctx); err != nil {
		_ = dbClient.Close(ctx)
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	collector := metrics.NewCollector()

	embedder, err := llm.NewEmbedder(llm.EmbedderConfig{
		Provider:  cfg.EmbeddingProvider,
		Model:     cfg.EmbeddingModel,
		ServerURL: cfg.OllamaHost,
		APIKey:    cfg.OpenAIKey,
		Dimension: cfg.EmbeddingDimension,
	}, collector)
	if err != nil {
		_ = dbClient.Close(ctx)
		return nil, fmt.Errorf("init embedder: %w", err)
	}

	deps := adapter.FactoryDeps{
		DB:       dbClient,
		Embedder: embedder,
		Vector: adapter.VectorConfig{
			Host:       cfg.QdrantHost,
			Port:       cfg.QdrantPort,
			Collection: cfg.QdrantCollection,
			Dimension:  cfg.EmbeddingDimension,
		},
		Logger: logger,
	}
	adapters := map[adapter.Family]adapter.Adapter{}
	for family, backend := range map[adapter.Family]string{
		adapter.FamilyVector:     cfg.VectorBackend,
		adapter.FamilyAnalytical: cfg.AnalyticalBackend,
		adapter.FamilyGraph:      cfg.GraphBackend,
	} {
		a, err := adapter.Open(ctx, family, backend, deps)
		if err != nil {
			_ = dbClient.Close(ctx)
			return nil, fmt.Errorf("open %s adapter: %w", family, err)
		}
		adapters[family] = a
	}

	chain, err := buildChain(collector)
	if err != nil {
		_ = dbClient.Close(ctx)
		return nil, err
	}

	tracker := adapter.NewTracker(adapter.TrackerConfig{
		FailureThreshold: cfg.HealthFailureThreshold,
		Cooldown:         cfg.HealthCooldown.Std(),
		ProbeInterval:    cfg.HealthProbeInterval.Std(),
	})

	orch := orchestrator.New(orchestrator.Deps{
		Adapters: adapters,
		Classifier: intent.NewClassifier(chain, intent.Config{
			MultiStepThreshold: cfg.MultiStepThreshold,
			CacheSize:          cfg.IntentCacheSize,
		}, collector, logger),
		Executor: executor.New(executor.Config{
			GlobalTimeout: cfg.GlobalTimeout.Std(),
			StepTimeout:   cfg.StepTimeout.Std(),
			MaxParallel:   cfg.MaxParallel,
		}, tracker, collector, logger),
		Synth:     synthesizer.New(chain, collector, logger),
		Tracker:   tracker,
		Collector: collector,
		Logger:    logger,
	}, orchestrator.Config{MaxResults: cfg.MaxResults})

	a := &app{Orch: orch, Collector: collector, dbClient: dbClient}
	if vec, ok := adapters[adapter.FamilyVector].(*adapter.Vector); ok {
		a.vector = vec
	}
	return a, nil
}

// buildChain assembles the provider chain from the configured order,
// always terminated by the static last-resort provider.
func buildChain(collector *metrics.Collector) (*llm.Chain, error) {
	var providers []llm.Provider
	for _, kind := range cfg.ProviderOrder {
		pcfg := llm.ProviderConfig{Kind: kind}
		switch kind {
		case llm.KindOllama:
			pcfg.Model = cfg.OllamaModel
			pcfg.ServerURL = cfg.OllamaHost
		case llm.KindAnthropic:
			pcfg.Model = cfg.AnthropicModel
			pcfg.APIKey = cfg.AnthropicKey
			if pcfg.APIKey == "" {
				logger.Warn("skipping anthropic provider, no API key configured")
				continue
			}
		case llm.KindOpenAI:
			pcfg.Model = cfg.OpenAIModel
			pcfg.APIKey = cfg.OpenAIKey
			if pcfg.APIKey == "" {
				logger.Warn("skipping openai provider, no API key configured")
				continue
			}
		}
		p, err := llm.NewProvider(pcfg)
		if err != nil {
			return nil, fmt.Errorf("init %s provider: %w", kind, err)
		}
		providers = append(providers, p)
	}
	providers = append(providers, llm.NewStaticProvider())

	return llm.NewChain(providers, llm.ChainConfig{
		TokenBudget:     cfg.TokenBudget,
		ProviderTimeout: cfg.ProviderTimeout.Std(),
	}, collector, logger), nil
}

// Close releases the clients the app owns.
func (a *app) Close(ctx context.Context) {
	if a.vector != nil {
		_ = a.vector.Close()
	}
	if a.dbClient != nil {
		_ = a.dbClient.Close(ctx)
	}
}
