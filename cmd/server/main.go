// Command server runs the property search API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/propmatch/propmatch/pkg/api"
	"github.com/propmatch/propmatch/pkg/cache"
	"github.com/propmatch/propmatch/pkg/config"
	"github.com/propmatch/propmatch/pkg/embedding"
	"github.com/propmatch/propmatch/pkg/explain"
	"github.com/propmatch/propmatch/pkg/llm"
	"github.com/propmatch/propmatch/pkg/observability"
	"github.com/propmatch/propmatch/pkg/search"
	"github.com/propmatch/propmatch/pkg/security"
	"github.com/propmatch/propmatch/pkg/store"
	"github.com/propmatch/propmatch/pkg/vectorindex"
)

func main() {
	configPath := flag.String("config", "", "directory containing config.yaml")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := observability.NewStandardLogger("propmatch", cfg.Server.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	listings, err := store.NewPostgresListingStore(ctx, cfg.Store.DatabaseURL,
		cfg.Store.MaxOpenConns, cfg.Store.MaxIdleConns, logger)
	if err != nil {
		return fmt.Errorf("listing store: %w", err)
	}
	defer listings.Close()

	// Redis outages degrade to the in-process cache instead of taking
	// explanations and the security ledger down with them.
	var kv cache.Cache
	if redisCache, err := cache.NewRedisCache(ctx, cfg.Redis.Addr, cfg.Redis.Password,
		cfg.Redis.DB, logger); err != nil {
		logger.Warn("redis unavailable, using in-memory cache", map[string]interface{}{
			"error": err.Error(),
		})
		kv = cache.NewMemoryCache()
	} else {
		kv = cache.NewFallbackCache(redisCache, logger)
	}
	defer kv.Close()

	embedder, err := buildEmbedder(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("embedding provider: %w", err)
	}

	index, err := vectorindex.NewPineconeIndex(cfg.VectorIndex.Host, cfg.VectorIndex.APIKey, nil, logger)
	if err != nil {
		return fmt.Errorf("vector index: %w", err)
	}

	chatClient, err := llm.NewOpenAIClient(llm.OpenAIClientOptions{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		MaxConcurrency: cfg.LLM.MaxConcurrency,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("llm client: %w", err)
	}
	cascade, err := llm.NewCascade(chatClient, cfg.LLM.PrimaryModel,
		cfg.LLM.FallbackModel, cfg.LLM.TertiaryModel, logger)
	if err != nil {
		return err
	}

	corpus := search.NewBM25Corpus(cfg.Search.BM25K1, cfg.Search.BM25B,
		cfg.Search.BM25SampleSize, logger)
	ranker := search.NewRanker(listings, embedder, index, cascade, corpus, search.RankerOptions{
		TopKMultiplier: cfg.VectorIndex.TopKMultiplier,
		TopKCap:        cfg.VectorIndex.TopKCap,
		BatchSize:      cfg.LLM.BatchSize,
		Temperature:    cfg.LLM.Temperature,
	}, logger)

	explainer := explain.NewEngine(kv, listings, cascade, cfg.Explanation.TTL, logger)

	monitor := security.NewMonitor(kv, logger)
	gate := security.NewGate(cfg.Security, kv, security.NewRateLimiter(cfg.Security), monitor, logger)

	server := api.NewServer(ranker, explainer, monitor, gate, cfg.Security, logger)
	httpServer := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      server.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", map[string]interface{}{"addr": cfg.Server.ListenAddr})
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func buildEmbedder(ctx context.Context, cfg *config.Config, logger observability.Logger) (embedding.Provider, error) {
	switch cfg.Embedding.Provider {
	case "bedrock":
		return embedding.NewBedrockProvider(ctx, cfg.Embedding.AWSRegion,
			cfg.Embedding.BedrockModel, cfg.Embedding.Dimension, logger)
	default:
		return embedding.NewOpenAIProvider(embedding.OpenAIOptions{
			APIKey:     cfg.Embedding.OpenAIAPIKey,
			Model:      cfg.Embedding.OpenAIModel,
			BaseURL:    cfg.Embedding.OpenAIBase,
			Dimensions: cfg.Embedding.Dimension,
			Logger:     logger,
		})
	}
}
