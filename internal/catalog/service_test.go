package catalog

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/mirip/internal/config"
	"github.com/hyperjump/mirip/internal/embedding"
	"github.com/hyperjump/mirip/internal/indexstore"
	"github.com/hyperjump/mirip/internal/lifecycle"
	"github.com/hyperjump/mirip/internal/models"
	"github.com/hyperjump/mirip/internal/source"
)

type rowSource struct {
	mu   sync.Mutex
	rows []models.Product
}

func (s *rowSource) Name() string { return "rows" }

func (s *rowSource) FetchAll(context.Context) ([]models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Product(nil), s.rows...), nil
}

func (s *rowSource) FetchOne(_ context.Context, id int64) (models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if rid, _ := r.ID(); rid == id {
			return r, nil
		}
	}
	return nil, source.ErrNotFound
}

func (s *rowSource) add(p models.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, p)
}

func product(id int64, name string) models.Product {
	return models.Product{"id": id, "name": name, "description": ""}
}

func newService(t *testing.T, rows ...models.Product) (*Service, *rowSource) {
	t.Helper()
	src := &rowSource{rows: rows}
	emb, err := embedding.NewProductEmbedder(embedding.NewMockEmbedder(32))
	require.NoError(t, err)

	dir := t.TempDir()
	p := indexstore.NewPersister(filepath.Join(dir, "products_index.bin"), filepath.Join(dir, "mapping.json"))
	m := lifecycle.NewManager(p, src, emb)
	t.Cleanup(func() { m.Close() })

	svc := NewService(m, src, emb, &config.SearchConfig{DefaultTopK: 5, MaxTopK: 2})
	return svc, src
}

func TestService_Search(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t,
		product(1, "red running shoe"),
		product(2, "blue denim jacket"),
		product(3, "green tea mug"),
	)
	require.NoError(t, svc.Manager().Initialize(ctx))

	resp, err := svc.Search(ctx, &models.SearchQuery{Query: "  blue denim jacket "})
	require.NoError(t, err)
	assert.Equal(t, "blue denim jacket", resp.Query)
	require.Equal(t, 2, resp.Count, "top_k defaults to 5 and is capped at 2")
	assert.Equal(t, int64(2), resp.Results[0].ID)
	assert.Equal(t, 1, resp.Results[0].Rank)
	assert.Equal(t, 2, resp.Results[1].Rank)
	assert.InDelta(t, 1.0, resp.Results[0].Similarity, 1e-5)
	assert.Equal(t, "blue denim jacket", resp.Results[0].Product.Name())
	assert.GreaterOrEqual(t, resp.Results[0].Similarity, resp.Results[1].Similarity)
}

func TestService_SearchErrors(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, product(1, "red running shoe"))

	_, err := svc.Search(ctx, &models.SearchQuery{Query: "shoe"})
	assert.ErrorIs(t, err, lifecycle.ErrNotReady)

	require.NoError(t, svc.Manager().Initialize(ctx))
	_, err = svc.Search(ctx, &models.SearchQuery{Query: "   "})
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestService_AddProduct(t *testing.T) {
	ctx := context.Background()
	svc, src := newService(t, product(1, "red running shoe"))
	require.NoError(t, svc.Manager().Initialize(ctx))

	src.add(product(2, "yellow raincoat"))
	src.add(models.Product{"id": int64(3), "name": "gone", "deleted_at": "2024-02-01"})

	row, err := svc.AddProduct(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "yellow raincoat", row.Name())
	assert.Equal(t, []int64{1, 2}, svc.Manager().IDs())

	_, err = svc.AddProduct(ctx, 2)
	assert.ErrorIs(t, err, lifecycle.ErrDuplicateID)
	_, err = svc.AddProduct(ctx, 42)
	assert.ErrorIs(t, err, ErrProductNotFound)
	_, err = svc.AddProduct(ctx, 3)
	assert.ErrorIs(t, err, ErrProductNotFound)

	resp, err := svc.Search(ctx, &models.SearchQuery{Query: "yellow raincoat", TopK: 1})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, int64(2), resp.Results[0].ID)
}

func TestService_DeleteProduct(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t,
		product(1, "red running shoe"),
		product(2, "blue denim jacket"),
		product(3, "green tea mug"),
	)

	assert.ErrorIs(t, svc.DeleteProduct(ctx, 2), lifecycle.ErrNotReady)
	require.NoError(t, svc.Manager().Initialize(ctx))

	require.NoError(t, svc.DeleteProduct(ctx, 2))
	assert.Equal(t, []int64{1, 3}, svc.Manager().IDs())
	assert.ErrorIs(t, svc.DeleteProduct(ctx, 2), ErrProductNotFound)

	resp, err := svc.Search(ctx, &models.SearchQuery{Query: "blue denim jacket", TopK: 2})
	require.NoError(t, err)
	for _, r := range resp.Results {
		assert.NotEqual(t, int64(2), r.ID)
	}
}

func TestService_DeleteDropsProductsGoneFromSource(t *testing.T) {
	ctx := context.Background()
	svc, src := newService(t, product(1, "a"), product(2, "b"), product(3, "c"))
	require.NoError(t, svc.Manager().Initialize(ctx))

	src.mu.Lock()
	src.rows = src.rows[:2]
	src.mu.Unlock()

	require.NoError(t, svc.DeleteProduct(ctx, 1))
	assert.Equal(t, []int64{2}, svc.Manager().IDs())
}

func TestService_ConcurrentDeletesAndAdd(t *testing.T) {
	ctx := context.Background()
	svc, src := newService(t,
		product(1, "red running shoe"),
		product(2, "blue denim jacket"),
		product(3, "green tea mug"),
		product(4, "yellow raincoat"),
	)
	require.NoError(t, svc.Manager().Initialize(ctx))
	src.add(product(5, "wool scarf"))

	var wg sync.WaitGroup
	for _, id := range []int64{1, 2} {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			assert.NoError(t, svc.DeleteProduct(ctx, id))
		}(id)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := svc.AddProduct(ctx, 5)
		assert.NoError(t, err)
	}()
	wg.Wait()

	assert.ElementsMatch(t, []int64{3, 4, 5}, svc.Manager().IDs())
}

func TestService_SearchSkipsUnresolvableHits(t *testing.T) {
	ctx := context.Background()
	svc, src := newService(t, product(1, "red running shoe"), product(2, "blue denim jacket"))
	require.NoError(t, svc.Manager().Initialize(ctx))

	src.mu.Lock()
	src.rows = src.rows[1:]
	src.mu.Unlock()

	resp, err := svc.Search(ctx, &models.SearchQuery{Query: "red running shoe", TopK: 2})
	require.NoError(t, err)
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, int64(2), resp.Results[0].ID)
	assert.Equal(t, 1, resp.Results[0].Rank)
}
