package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/li-xiu-qi/SmartlmageFinder/internal/analysis"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/config"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/embedding"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/indexer"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/keyword"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/search"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/storage"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/vector"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/vectorstore"
)

// Components holds initialized services.
type Components struct {
	Storage      *storage.SQLiteStorage
	Embedder     embedding.Embedder
	Vectors      *vectorstore.Manager
	KeywordIndex *keyword.BleveIndex
	Engine       *search.Engine
	Indexer      *indexer.Indexer
	Analyzer     *analysis.Client // nil unless analysis is enabled
}

// Close releases every component. It does not checkpoint the vector store.
func (c *Components) Close() {
	if c.Analyzer != nil {
		_ = c.Analyzer.Close()
	}
	if c.KeywordIndex != nil {
		_ = c.KeywordIndex.Close()
	}
	if c.Vectors != nil {
		_ = c.Vectors.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	c := &Components{}
	ok := false
	defer func() {
		if !ok {
			c.Close()
		}
	}()

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath,
		storage.WithDriver(cfg.Storage.Driver),
		storage.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Storage = store

	// A missing model is not fatal: the text tier keeps working and vector searches
	// report the provider as unavailable.
	embedder, err := embedding.New(cfg.Embedding, logger)
	if err != nil {
		logger.Warn("embedding provider unavailable, vector search disabled",
			zap.String("provider", cfg.Embedding.Provider),
			zap.Error(err))
		embedder = nil
	}
	if p, ok := embedder.(interface{ Probe(context.Context) error }); ok {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := p.Probe(ctx); err != nil {
			logger.Warn("embedder did not answer startup probe", zap.Error(err))
		}
		cancel()
	}
	c.Embedder = embedder

	paths := vectorstore.Paths{
		Title:       cfg.Storage.TitleIndexPath,
		Description: cfg.Storage.DescriptionIndexPath,
		Image:       cfg.Storage.ImageIndexPath,
		IdentityMap: cfg.Storage.IdentityMapPath,
	}
	vopts := []vectorstore.Option{vectorstore.WithLogger(logger), vectorstore.WithEmbedder(embedder)}
	vectors, err := vectorstore.NewManager(cfg.Vector.IndexType, cfg.Embedding.Dimensions, paths, vopts...)
	if err != nil {
		// Fall back to memory index if configured type fails (e.g., FAISS not available)
		if cfg.Vector.IndexType == "memory" {
			return nil, fmt.Errorf("failed to initialize vector store: %w", err)
		}
		logger.Warn("failed to create vector index, falling back to memory",
			zap.String("requested_type", cfg.Vector.IndexType),
			zap.Error(err))
		cfg.Vector.IndexType = "memory"
		vectors, err = vectorstore.NewManager("memory", cfg.Embedding.Dimensions, paths, vopts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize vector store: %w", err)
		}
	}
	c.Vectors = vectors
	if err := vectors.Load(); err != nil {
		return nil, fmt.Errorf("failed to load vector store: %w", err)
	}
	logger.Info("vector store initialized",
		zap.String("type", cfg.Vector.IndexType),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
		zap.Bool("faiss_available", vector.IsFAISSAvailable()),
		zap.Bool("embedder_available", embedding.Available(embedder)))

	var text search.TextSearcher = store
	idxOpts := []indexer.IndexerOption{
		indexer.WithLogger(logger),
		indexer.WithUploadDir(cfg.Storage.UploadDir),
		indexer.WithCheckpointOnWrite(cfg.Vector.CheckpointOnWriteOrDefault()),
	}
	if cfg.Search.TextBackend == "bleve" {
		kw, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath,
			keyword.WithSearchOptions(keyword.OptionsFromFuzziness(cfg.Search.Fuzziness)))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
		}
		c.KeywordIndex = kw
		text = kw
		idxOpts = append(idxOpts, indexer.WithKeywordIndex(kw))
	}

	c.Engine = search.NewEngine(store, text, vectors, cfg.Search, search.WithLogger(logger))
	c.Indexer = indexer.NewIndexer(store, vectors, idxOpts...)

	if cfg.Analysis.Enabled {
		a, err := analysis.New(analysis.Options{
			BaseURL: cfg.Analysis.APIBase,
			APIKey:  cfg.Analysis.APIKey,
			Model:   cfg.Analysis.Model,
			Detail:  cfg.Analysis.Detail,
			Timeout: time.Duration(cfg.Analysis.TimeoutSeconds) * time.Second,
			Logger:  logger,
		})
		if err != nil {
			logger.Warn("image analysis disabled", zap.Error(err))
		} else {
			c.Analyzer = a
		}
	}
	ok = true
	return c, nil
}
