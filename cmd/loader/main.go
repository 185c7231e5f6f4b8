// Command loader embeds every listing and upserts the vectors into the
// index. Run it after bulk listing imports; serving reads the index,
// never writes it.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/propmatch/propmatch/pkg/config"
	"github.com/propmatch/propmatch/pkg/embedding"
	"github.com/propmatch/propmatch/pkg/models"
	"github.com/propmatch/propmatch/pkg/observability"
	"github.com/propmatch/propmatch/pkg/store"
	"github.com/propmatch/propmatch/pkg/vectorindex"
)

func main() {
	configPath := flag.String("config", "", "directory containing config.yaml")
	batchSize := flag.Int("batch", 100, "listings per database page")
	flag.Parse()

	if err := run(*configPath, *batchSize); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(configPath string, batchSize int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := observability.NewStandardLogger("loader", cfg.Server.LogLevel)
	ctx := context.Background()

	listings, err := store.NewPostgresListingStore(ctx, cfg.Store.DatabaseURL,
		cfg.Store.MaxOpenConns, cfg.Store.MaxIdleConns, logger)
	if err != nil {
		return fmt.Errorf("listing store: %w", err)
	}
	defer listings.Close()

	embedder, err := buildEmbedder(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("embedding provider: %w", err)
	}

	index, err := vectorindex.NewPineconeIndex(cfg.VectorIndex.Host, cfg.VectorIndex.APIKey, nil, logger)
	if err != nil {
		return fmt.Errorf("vector index: %w", err)
	}

	total := 0
	err = listings.IterateAll(ctx, batchSize, func(batch []models.Listing) error {
		items := make([]vectorindex.Item, 0, len(batch))
		for i := range batch {
			vector, err := embedder.Embed(ctx, vectorindex.ListingText(&batch[i]))
			if err != nil {
				return fmt.Errorf("embed listing %d: %w", batch[i].ListingKey, err)
			}
			items = append(items, vectorindex.ListingItem(&batch[i], vector))
		}
		if err := index.Upsert(ctx, items...); err != nil {
			return err
		}
		total += len(items)
		logger.Info("batch indexed", map[string]interface{}{"total": total})
		return nil
	})
	if err != nil {
		return err
	}

	stats, err := index.Stats(ctx)
	if err != nil {
		return err
	}
	logger.Info("load complete", map[string]interface{}{
		"indexed":      total,
		"vector_count": stats.VectorCount,
		"dimension":    stats.Dimension,
	})
	return nil
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
