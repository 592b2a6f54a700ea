package embedding

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"time"

	_ "golang.org/x/image/webp"
)

const (
	// DefaultFetchTimeout bounds a single image download.
	DefaultFetchTimeout = 10 * time.Second
	// DefaultMaxImageBytes caps the size of a downloaded image.
	DefaultMaxImageBytes = 20 << 20
)

// ErrImageTooLarge is returned when a download exceeds the byte cap.
var ErrImageTooLarge = errors.New("image exceeds size limit")

// ImageFetcher downloads and decodes product images.
type ImageFetcher struct {
	client   *http.Client
	maxBytes int64
}

// FetcherOption configures an ImageFetcher.
type FetcherOption func(*ImageFetcher)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *ImageFetcher) {
		if c != nil {
			f.client = c
		}
	}
}

// WithMaxImageBytes sets the download size cap.
func WithMaxImageBytes(n int64) FetcherOption {
	return func(f *ImageFetcher) {
		if n > 0 {
			f.maxBytes = n
		}
	}
}

// NewImageFetcher returns a fetcher with a 10s timeout and a 20 MiB cap.
func NewImageFetcher(opts ...FetcherOption) *ImageFetcher {
	f := &ImageFetcher{
		client:   &http.Client{Timeout: DefaultFetchTimeout},
		maxBytes: DefaultMaxImageBytes,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch downloads url and decodes it as JPEG, PNG, GIF or WebP.
func (f *ImageFetcher) Fetch(ctx context.Context, url string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid image url: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: status %d", resp.StatusCode)
	}

	body := io.LimitReader(resp.Body, f.maxBytes+1)
	counted := &countingReader{r: body}
	img, _, err := image.Decode(counted)
	if counted.n > f.maxBytes {
		return nil, ErrImageTooLarge
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
