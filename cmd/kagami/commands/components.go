package commands

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hyperjump/kagami/internal/catalog"
	"github.com/hyperjump/kagami/internal/config"
	"github.com/hyperjump/kagami/internal/embedding"
	"github.com/hyperjump/kagami/internal/indexer"
	"github.com/hyperjump/kagami/internal/models"
	"github.com/hyperjump/kagami/internal/search"
	"github.com/hyperjump/kagami/internal/storage"
	"github.com/hyperjump/kagami/internal/vector"
	"github.com/hyperjump/kagami/internal/vectorstore"
)

// Components holds the initialized application components.
type Components struct {
	Config   *config.Config
	Logger   *zap.Logger
	Embedder embedding.Embedder
	Indexer  *indexer.Indexer
	Service  *search.Service
	History  storage.HistoryStore
	Catalog  *catalog.Catalog
	Codec    vectorstore.Codec
}

// Close releases all resources held by the components.
func (c *Components) Close() {
	if c.Service != nil {
		_ = c.Service.Close()
	}
	if c.Catalog != nil {
		_ = c.Catalog.Close()
	}
	if c.History != nil {
		_ = c.History.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	_ = c.Logger.Sync()
}

// newEmbedder loads the configured ONNX model. When that fails and the hash fallback is
// enabled, the hash embedder is returned together with the reason the service is degraded.
func newEmbedder(cfg *config.Config, logger *zap.Logger) (embedding.Embedder, string, error) {
	var (
		base     embedding.Embedder
		degraded string
	)
	onnx, err := embedding.NewONNXEmbedder(embedding.ONNXConfig{
		ModelPath:   cfg.Embedding.ModelPath,
		LibraryPath: cfg.Embedding.LibraryPath,
		Dimensions:  cfg.Embedding.Dimensions,
		ImageSize:   cfg.Embedding.ImageSize,
		InputName:   cfg.Embedding.InputName,
		OutputName:  cfg.Embedding.OutputName,
	})
	switch {
	case err == nil:
		base = onnx
	case cfg.Embedding.Fallback == "hash":
		degraded = fmt.Sprintf("image model unavailable, using hash embedder: %v", err)
		logger.Warn("embedding model unavailable, falling back to hash embedder",
			zap.String("model_path", cfg.Embedding.ModelPath), zap.Error(err))
		base = embedding.NewHashEmbedder(cfg.Embedding.Dimensions)
	default:
		return nil, "", fmt.Errorf("loading embedding model: %w", err)
	}
	return embedding.NewCachedEmbedder(base, cfg.Embedding.CacheSize), degraded, nil
}

type componentOptions struct {
	history bool
	catalog bool
}

// initializeComponents wires the embedder, indexer and search service from cfg.
// The service starts NotReady; callers load or ingest a store into it.
func initializeComponents(cfg *config.Config, logger *zap.Logger, opts componentOptions) (*Components, error) {
	c := &Components{Config: cfg, Logger: logger}

	codec, err := vectorstore.ParseCodec(cfg.Storage.Codec)
	if err != nil {
		return nil, err
	}
	c.Codec = codec
	if _, err := indexer.ParseFailurePolicy(cfg.Ingest.FailurePolicy); err != nil {
		return nil, err
	}
	degradedPolicy, err := search.ParseDegradedPolicy(cfg.Search.DegradedPolicy)
	if err != nil {
		return nil, err
	}

	embedder, degraded, err := newEmbedder(cfg, logger)
	if err != nil {
		return nil, err
	}
	c.Embedder = embedder

	c.Indexer = c.ingester()

	if opts.history {
		history, err := storage.NewHistoryStore(cfg.Storage.HistoryDSN)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("opening history: %w", err)
		}
		c.History = history
	}
	if opts.catalog {
		var cat *catalog.Catalog
		if cfg.Storage.CatalogPath != "" {
			cat, err = catalog.New(cfg.Storage.CatalogPath, cfg.Collection.Root)
		} else {
			cat, err = catalog.NewMemOnly(cfg.Collection.Root)
		}
		if err != nil {
			c.Close()
			return nil, err
		}
		c.Catalog = cat
	}

	resolver := search.NewResolver(cfg.Collection.Root,
		search.WithFallbackDir(cfg.Collection.FallbackDir),
		search.WithSimilarityScale(cfg.Search.SimilarityScale))
	indexType := cfg.Index.Type
	if indexType == string(vector.IndexTypeFAISS) && !vector.IsFAISSAvailable() {
		logger.Warn("FAISS support is not compiled in, using the flat index")
		indexType = string(vector.IndexTypeFlat)
	}
	svcOpts := []search.Option{
		search.WithLogger(logger),
		search.WithIndexType(indexType, vector.WithWorkers(cfg.Index.Workers)),
		search.WithLimits(cfg.Search.DefaultK, cfg.Search.MaxK),
		search.WithEmbedTimeout(cfg.Search.EmbedTimeout),
		search.WithPersistence(cfg.Storage.StorePath, codec),
		search.WithAppender(c.Indexer),
	}
	if degraded != "" {
		svcOpts = append(svcOpts, search.WithDegraded(degraded, degradedPolicy))
	}
	if c.History != nil {
		svcOpts = append(svcOpts, search.WithHistory(c.History))
	}
	c.Service = search.NewService(embedder, resolver, svcOpts...)
	return c, nil
}

// loadStore loads the persisted store into the service. When the store is missing and
// buildOnMissing is set, the collection root is ingested first.
func (c *Components) loadStore(ctx context.Context, buildOnMissing bool) error {
	err := c.Service.Load(c.Config.Storage.StorePath)
	if err == nil || !buildOnMissing || !errors.Is(err, models.ErrNotFound) {
		return err
	}
	c.Logger.Info("no persisted store, ingesting collection",
		zap.String("root", c.Config.Collection.Root))
	store, report, err := c.ingester().Ingest(ctx, c.Config.Collection.Root)
	if err != nil {
		return err
	}
	if len(report.Failed) > 0 {
		c.Logger.Warn("some images could not be ingested", zap.Int("failed", len(report.Failed)))
	}
	return c.Service.Swap(store)
}

// ingester returns an indexer whose Ingest persists to the configured store path.
func (c *Components) ingester(extra ...indexer.IndexerOption) *indexer.Indexer {
	cfg := c.Config
	policy, _ := indexer.ParseFailurePolicy(cfg.Ingest.FailurePolicy)
	opts := []indexer.IndexerOption{
		indexer.WithLogger(c.Logger),
		indexer.WithExtensions(cfg.Collection.Extensions),
		indexer.WithWorkers(cfg.Ingest.Workers),
		indexer.WithFailurePolicy(policy),
		indexer.WithStorePath(cfg.Storage.StorePath, c.Codec),
	}
	if cfg.Ingest.RateLimit > 0 {
		opts = append(opts, indexer.WithRateLimit(rate.NewLimiter(rate.Limit(cfg.Ingest.RateLimit), cfg.Ingest.RateBurst)))
	}
	return indexer.NewIndexer(c.Embedder, append(opts, extra...)...)
}
