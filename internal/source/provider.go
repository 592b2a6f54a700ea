// Package source reads product rows from the relational store and its fallbacks.
package source

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/mirip/internal/models"
)

// ErrNotFound is returned by FetchOne when no row has the requested id.
var ErrNotFound = errors.New("product not found")

// Provider yields product rows.
type Provider interface {
	// FetchAll returns every row. An absent source yields no rows and no error.
	FetchAll(ctx context.Context) ([]models.Product, error)
	// FetchOne returns the row with the given id or ErrNotFound.
	FetchOne(ctx context.Context, id int64) (models.Product, error)
	Name() string
}

// Chain tries providers in order. FetchAll returns the first non-empty result;
// FetchOne returns the first hit. Provider errors are logged and treated as empty.
type Chain struct {
	providers []Provider
	logger    *zap.Logger
}

// NewChain returns a chain over providers. Nil providers are ignored.
func NewChain(logger *zap.Logger, providers ...Provider) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Chain{logger: logger}
	for _, p := range providers {
		if p != nil {
			c.providers = append(c.providers, p)
		}
	}
	return c
}

// Name lists the providers in order.
func (c *Chain) Name() string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return "chain(" + strings.Join(names, ",") + ")"
}

// Len returns the number of providers.
func (c *Chain) Len() int {
	return len(c.providers)
}

// FetchAll implements Provider.
func (c *Chain) FetchAll(ctx context.Context) ([]models.Product, error) {
	rows, _, err := c.FetchAllFrom(ctx)
	return rows, err
}

// FetchAllFrom is FetchAll that also reports which provider supplied the rows.
func (c *Chain) FetchAllFrom(ctx context.Context) ([]models.Product, string, error) {
	for _, p := range c.providers {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}
		rows, err := p.FetchAll(ctx)
		if err != nil {
			c.logger.Warn("Product source failed, trying next",
				zap.String("source", p.Name()), zap.Error(err))
			continue
		}
		if len(rows) == 0 {
			c.logger.Info("Product source returned no rows, trying next", zap.String("source", p.Name()))
			continue
		}
		c.logger.Info("Loaded products", zap.String("source", p.Name()), zap.Int("rows", len(rows)))
		return rows, p.Name(), nil
	}
	return []models.Product{}, "", nil
}

// FetchOne implements Provider.
func (c *Chain) FetchOne(ctx context.Context, id int64) (models.Product, error) {
	for _, p := range c.providers {
		row, err := p.FetchOne(ctx, id)
		if err == nil {
			return row, nil
		}
		if !errors.Is(err, ErrNotFound) {
			c.logger.Warn("Product lookup failed, trying next",
				zap.String("source", p.Name()), zap.Int64("id", id), zap.Error(err))
		}
	}
	return nil, ErrNotFound
}
