// Package catalog ties the product sources, the product embedder and the index
// lifecycle together into the add, delete and search operations served over HTTP.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/mirip/internal/config"
	"github.com/hyperjump/mirip/internal/indexstore"
	"github.com/hyperjump/mirip/internal/lifecycle"
	"github.com/hyperjump/mirip/internal/models"
	"github.com/hyperjump/mirip/internal/source"
)

var (
	// ErrProductNotFound is returned when a product id is unknown to the
	// sources or, for deletes, to the index.
	ErrProductNotFound = errors.New("product not found")
	// ErrEmptyQuery is returned for a blank search query.
	ErrEmptyQuery = models.ErrEmptyQuery
)

// Embedder embeds product rows for the index and search queries.
type Embedder interface {
	lifecycle.RecordEmbedder
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// Service runs catalog operations against the managed index.
type Service struct {
	manager  *lifecycle.Manager
	source   source.Provider
	embedder Embedder
	config   *config.SearchConfig
	logger   *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a catalog service.
func NewService(manager *lifecycle.Manager, src source.Provider, embedder Embedder, cfg *config.SearchConfig, opts ...Option) *Service {
	s := &Service{
		manager:  manager,
		source:   src,
		embedder: embedder,
		config:   cfg,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Manager returns the lifecycle manager behind the service.
func (s *Service) Manager() *lifecycle.Manager {
	return s.manager
}

// AddProduct reads the product from the sources, embeds it and adds it to the index.
func (s *Service) AddProduct(ctx context.Context, id int64) (models.Product, error) {
	row, err := s.source.FetchOne(ctx, id)
	if err != nil {
		if errors.Is(err, source.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrProductNotFound, id)
		}
		return nil, fmt.Errorf("failed to read product %d: %w", id, err)
	}
	if row.IsDeleted() {
		return nil, fmt.Errorf("%w: %d is deleted", ErrProductNotFound, id)
	}
	vec, err := s.embedder.EmbedRecord(ctx, row)
	if err != nil {
		return nil, fmt.Errorf("failed to embed product %d: %w", id, err)
	}
	if err := s.manager.AddOne(ctx, id, vec); err != nil {
		return nil, err
	}
	return row, nil
}

// DeleteProduct removes a product by rebuilding the index from the remaining
// ids. Remaining products are re-read and re-embedded; those that can no longer
// be read or embedded drop out of the index too. Deletes and rebuilds run one
// at a time.
func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	var remaining, dropped int
	err := s.manager.RebuildWithout(ctx, id, func(ctx context.Context, ids []int64) ([]indexstore.Item, error) {
		items, err := s.reembed(ctx, ids)
		remaining, dropped = len(items), len(ids)-len(items)
		return items, err
	})
	if errors.Is(err, lifecycle.ErrNotIndexed) {
		return fmt.Errorf("%w: %d is not indexed", ErrProductNotFound, id)
	}
	if err != nil {
		return err
	}
	s.logger.Info("Product deleted",
		zap.Int64("id", id),
		zap.Int("remaining", remaining),
		zap.Int("dropped", dropped))
	return nil
}

// reembed re-reads and re-embeds ids in order, skipping what the source no
// longer has.
func (s *Service) reembed(ctx context.Context, ids []int64) ([]indexstore.Item, error) {
	rows, err := s.source.FetchAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read products: %w", err)
	}
	byID := make(map[int64]models.Product, len(rows))
	for _, row := range rows {
		if rid, ok := row.ID(); ok {
			byID[rid] = row
		}
	}

	items := make([]indexstore.Item, 0, len(ids))
	for _, rid := range ids {
		row, ok := byID[rid]
		if !ok || row.IsDeleted() {
			s.logger.Warn("Dropping product missing from source", zap.Int64("id", rid))
			continue
		}
		vec, err := s.embedder.EmbedRecord(ctx, row)
		if err != nil {
			s.logger.Warn("Dropping product that failed to embed", zap.Int64("id", rid), zap.Error(err))
			continue
		}
		items = append(items, indexstore.Item{ID: rid, Vector: vec})
	}
	return items, nil
}

// Search embeds the query and returns the most similar products.
func (s *Service) Search(ctx context.Context, query *models.SearchQuery) (*models.SearchResponse, error) {
	start := time.Now()
	if err := query.Validate(s.config.DefaultTopK, s.config.MaxTopK); err != nil {
		return nil, err
	}

	vec, err := s.embedder.EmbedQuery(ctx, query.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	hits, err := s.manager.Search(ctx, vec, query.TopK)
	if err != nil {
		return nil, err
	}

	results := make([]*models.SearchResult, 0, len(hits))
	for _, hit := range hits {
		row, err := s.source.FetchOne(ctx, hit.ID)
		if err != nil {
			s.logger.Debug("Skipping unresolvable hit", zap.Int64("id", hit.ID), zap.Error(err))
			continue
		}
		results = append(results, &models.SearchResult{
			Rank:       len(results) + 1,
			ID:         hit.ID,
			Product:    row,
			Similarity: hit.Score,
		})
	}

	return &models.SearchResponse{
		Results:   results,
		Count:     len(results),
		Query:     query.Query,
		QueryTime: time.Since(start).Milliseconds(),
	}, nil
}
