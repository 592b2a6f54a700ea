package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/mirip/internal/models"
)

// ErrNoContent is returned for a product with neither a usable image nor text.
var ErrNoContent = errors.New("product has no image or text to embed")

// ProductEmbedder maps product rows and search queries into one embedding space.
// Images are preferred over text when an image embedder is configured.
type ProductEmbedder struct {
	text    Embedder
	image   ImageEmbedder
	fetcher *ImageFetcher
	logger  *zap.Logger
}

// ProductOption configures a ProductEmbedder.
type ProductOption func(*ProductEmbedder)

// WithImageEmbedder enables image embedding using fetcher for downloads.
func WithImageEmbedder(img ImageEmbedder, fetcher *ImageFetcher) ProductOption {
	return func(p *ProductEmbedder) {
		p.image = img
		if fetcher == nil {
			fetcher = NewImageFetcher()
		}
		p.fetcher = fetcher
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) ProductOption {
	return func(p *ProductEmbedder) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewProductEmbedder returns an error when the image and text embedders disagree on dimension.
func NewProductEmbedder(text Embedder, opts ...ProductOption) (*ProductEmbedder, error) {
	if text == nil {
		return nil, errors.New("text embedder is required")
	}
	p := &ProductEmbedder{text: text, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	if p.image != nil && p.image.Dimensions() != text.Dimensions() {
		return nil, fmt.Errorf("image embedder dimension %d differs from text embedder dimension %d",
			p.image.Dimensions(), text.Dimensions())
	}
	return p, nil
}

// Dimensions returns the embedding dimension.
func (p *ProductEmbedder) Dimensions() int {
	return p.text.Dimensions()
}

// SupportsImages reports whether image URLs are embedded as images.
func (p *ProductEmbedder) SupportsImages() bool {
	return p.image != nil
}

// EmbedRecord embeds the first image URL that downloads and embeds cleanly,
// falling back to the product name and description.
func (p *ProductEmbedder) EmbedRecord(ctx context.Context, product models.Product) ([]float32, error) {
	if p.image != nil {
		for _, url := range product.ImageURLs() {
			vec, err := p.embedURL(ctx, url)
			if err == nil {
				return vec, nil
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			id, _ := product.ID()
			p.logger.Debug("Skipping product image",
				zap.Int64("id", id), zap.String("url", url), zap.Error(err))
		}
	}
	text := product.Text()
	if text == "" {
		return nil, ErrNoContent
	}
	return p.text.Embed(ctx, text)
}

// EmbedQuery embeds a search query. An http(s) URL is fetched as an image
// when possible; anything else, or a failed fetch, is embedded as text.
func (p *ProductEmbedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	query = strings.TrimSpace(query)
	q := models.SearchQuery{Query: query}
	if p.image != nil && q.IsImageURL() {
		vec, err := p.embedURL(ctx, query)
		if err == nil {
			return vec, nil
		}
		p.logger.Debug("Image query failed, embedding as text",
			zap.String("url", query), zap.Error(err))
	}
	return p.text.Embed(ctx, query)
}

func (p *ProductEmbedder) embedURL(ctx context.Context, url string) ([]float32, error) {
	img, err := p.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	return p.image.EmbedImage(ctx, img)
}

// Close closes the underlying embedders.
func (p *ProductEmbedder) Close() error {
	err := p.text.Close()
	if c, ok := p.image.(interface{ Close() error }); ok {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
