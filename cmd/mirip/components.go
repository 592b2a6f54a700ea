package main

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/hyperjump/mirip/internal/catalog"
	"github.com/hyperjump/mirip/internal/config"
	"github.com/hyperjump/mirip/internal/embedding"
	"github.com/hyperjump/mirip/internal/indexstore"
	"github.com/hyperjump/mirip/internal/lifecycle"
	"github.com/hyperjump/mirip/internal/source"
	"github.com/hyperjump/mirip/internal/storage"
	"github.com/hyperjump/mirip/internal/vector"
)

// Components holds initialized services.
type Components struct {
	SQL       *source.SQLProvider
	Source    *source.Chain
	Embedder  *embedding.ProductEmbedder
	Persister *indexstore.Persister
	History   *storage.SQLiteStorage
	Manager   *lifecycle.Manager
	Catalog   *catalog.Service
}

// Close releases everything in reverse order of creation. It waits for
// background builds started by the manager.
func (c *Components) Close() {
	if c.Manager != nil {
		_ = c.Manager.Close()
	}
	if c.History != nil {
		_ = c.History.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.SQL != nil {
		_ = c.SQL.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	c := &Components{}

	chain, sqlProvider := newSourceChain(cfg, logger)
	c.Source, c.SQL = chain, sqlProvider

	emb, err := newProductEmbedder(cfg, logger)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Embedder = emb

	indexType := cfg.Index.Type
	if idx, err := vector.NewIndex(indexType, 1); err != nil {
		logger.Warn("Vector index type unavailable, falling back to memory",
			zap.String("requested_type", indexType), zap.Error(err))
		indexType = string(vector.IndexTypeMemory)
	} else {
		_ = idx.Close()
	}
	logger.Info("Vector index selected",
		zap.String("type", indexType),
		zap.Bool("faiss_available", vector.IsFAISSAvailable()))

	persistOpts := []indexstore.Option{
		indexstore.WithLogger(logger),
		indexstore.WithCompression(cfg.Storage.Compress),
		indexstore.WithIndexType(indexType),
	}
	if cfg.Mirror.Enabled {
		mirror, err := indexstore.NewMinioMirror(indexstore.MinioConfig{
			Endpoint:  cfg.Mirror.Endpoint,
			Bucket:    cfg.Mirror.Bucket,
			Prefix:    cfg.Mirror.Prefix,
			AccessKey: cfg.Mirror.AccessKey,
			SecretKey: cfg.Mirror.SecretKey,
			UseSSL:    cfg.Mirror.UseSSL,
		})
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to initialize mirror: %w", err)
		}
		persistOpts = append(persistOpts, indexstore.WithMirror(mirror))
	}
	c.Persister = indexstore.NewPersister(cfg.Storage.IndexPath, cfg.Storage.MappingPath, persistOpts...)

	managerOpts := []lifecycle.Option{
		lifecycle.WithLogger(logger),
		lifecycle.WithThreshold(cfg.Index.ReadyThreshold),
		lifecycle.WithEmbedTimeout(cfg.Index.EmbedTimeout),
		lifecycle.WithRateLimit(cfg.Index.RateLimit, cfg.Index.RateBurst),
		lifecycle.WithIndexType(indexType),
	}
	if cfg.Storage.HistoryPath != "" {
		history, err := storage.NewSQLiteStorage(cfg.Storage.HistoryPath, storage.WithRetention(500))
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to initialize build history: %w", err)
		}
		c.History = history
		managerOpts = append(managerOpts, lifecycle.WithReportRecorder(history))
	}

	c.Manager = lifecycle.NewManager(c.Persister, c.Source, c.Embedder, managerOpts...)
	c.Catalog = catalog.NewService(c.Manager, c.Source, c.Embedder, &cfg.Search, catalog.WithLogger(logger))
	return c, nil
}

// newSourceChain builds the database → SQL dump → XLSX chain. A database that
// cannot be opened is logged and left out.
func newSourceChain(cfg *config.Config, logger *zap.Logger) (*source.Chain, *source.SQLProvider) {
	var providers []source.Provider
	var sqlProvider *source.SQLProvider
	if cfg.Source.DatabaseURL != "" {
		p, err := source.OpenSQL(cfg.Source.DatabaseURL, cfg.Source.Table, source.WithLogger(logger))
		if err != nil {
			logger.Warn("Database unavailable, using fallback sources", zap.Error(err))
		} else {
			sqlProvider = p
			providers = append(providers, p)
		}
	}
	if cfg.Source.DumpPath != "" {
		providers = append(providers, source.NewDumpProvider(cfg.Source.DumpPath, cfg.Source.Table, logger))
	}
	if cfg.Source.XLSXPath != "" {
		providers = append(providers, source.NewXLSXProvider(cfg.Source.XLSXPath, cfg.Source.XLSXSheet))
	}
	return source.NewChain(logger, providers...), sqlProvider
}

// newProductEmbedder builds the text embedder for the configured backend and,
// where the backend has one, the image embedder.
func newProductEmbedder(cfg *config.Config, logger *zap.Logger) (*embedding.ProductEmbedder, error) {
	ec := cfg.Embedding
	fetcher := embedding.NewImageFetcher(embedding.WithHTTPClient(&http.Client{Timeout: ec.ImageTimeout}))
	opts := []embedding.ProductOption{embedding.WithLogger(logger)}

	var text embedding.Embedder
	switch ec.Backend {
	case config.BackendMock:
		mock := embedding.NewMockEmbedder(ec.Dimensions)
		text = mock
		opts = append(opts, embedding.WithImageEmbedder(mock, fetcher))

	case config.BackendONNX:
		onnxText, err := embedding.NewONNXEmbedder(embedding.ONNXTextConfig{
			ModelPath:  ec.ModelPath,
			Dimensions: ec.Dimensions,
			MaxTokens:  ec.MaxTokens,
			Scheme:     embedding.CLIPScheme,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX text embedder: %w", err)
		}
		text = onnxText
		if ec.VisionModelPath != "" {
			vision, err := embedding.NewONNXImageEmbedder(ec.VisionModelPath, ec.Dimensions, embedding.CLIPImageSize)
			if err != nil {
				_ = onnxText.Close()
				return nil, fmt.Errorf("failed to initialize ONNX image embedder: %w", err)
			}
			opts = append(opts, embedding.WithImageEmbedder(vision, fetcher))
		}

	case config.BackendOpenAI:
		oa, err := embedding.NewOpenAIEmbedder(embedding.OpenAIConfig{
			APIKey:     ec.APIKey,
			BaseURL:    ec.BaseURL,
			Model:      ec.Model,
			Dimensions: ec.Dimensions,
			Timeout:    ec.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize OpenAI embedder: %w", err)
		}
		text = oa

	default:
		return nil, fmt.Errorf("unknown embedding backend %q", ec.Backend)
	}

	text = embedding.NewCachedEmbedder(text, ec.CacheSize)
	emb, err := embedding.NewProductEmbedder(text, opts...)
	if err != nil {
		_ = text.Close()
		return nil, err
	}
	logger.Info("Embedder initialized",
		zap.String("backend", ec.Backend),
		zap.Int("dimensions", emb.Dimensions()),
		zap.Bool("images", emb.SupportsImages()))
	return emb, nil
}
