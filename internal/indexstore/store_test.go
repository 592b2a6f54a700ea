package indexstore

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/mirip/internal/vector"
)

func newTestStore(t *testing.T, dim int) *Store {
	t.Helper()
	s, err := NewStore("memory", dim)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_AddSearch(t *testing.T) {
	s := newTestStore(t, 2)
	require.NoError(t, s.Add(12, []float32{0.1, 0.995}))
	require.NoError(t, s.Add(7, []float32{0.9, 0.436}))
	require.NoError(t, s.Add(31, []float32{0.5, 0.866}))

	matches, err := s.Search([]float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, int64(7), matches[0].ID)
	assert.Equal(t, int64(31), matches[1].ID)
	assert.Equal(t, int64(12), matches[2].ID)
	assert.InDelta(t, 0.9, matches[0].Score, 1e-6)
}

func TestStore_AddDimensionMismatch(t *testing.T) {
	s := newTestStore(t, 3)
	err := s.Add(1, []float32{1, 0})
	require.ErrorIs(t, err, vector.ErrDimensionMismatch)
	assert.Equal(t, 0, s.Count())
	assert.Empty(t, s.IDs())
}

func TestStore_RebuildIdempotent(t *testing.T) {
	s := newTestStore(t, 2)
	items := []Item{
		{ID: 1, Vector: []float32{1, 0}},
		{ID: 2, Vector: []float32{0, 1}},
	}
	require.NoError(t, s.Rebuild(items))
	first, err := s.Search([]float32{1, 0}, 2)
	require.NoError(t, err)

	require.NoError(t, s.Rebuild(items))
	second, err := s.Search([]float32{1, 0}, 2)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, []int64{1, 2}, s.IDs())
	assert.Equal(t, 2, s.Count())
}

func TestStore_RebuildRemovesID(t *testing.T) {
	s := newTestStore(t, 2)
	require.NoError(t, s.Add(1, []float32{1, 0}))
	require.NoError(t, s.Add(2, []float32{0, 1}))
	require.NoError(t, s.Add(3, []float32{0.6, 0.8}))

	require.NoError(t, s.Rebuild([]Item{
		{ID: 1, Vector: []float32{1, 0}},
		{ID: 3, Vector: []float32{0.6, 0.8}},
	}))

	assert.False(t, s.Contains(2))
	matches, err := s.Search([]float32{0, 1}, 10)
	require.NoError(t, err)
	for _, m := range matches {
		assert.NotEqual(t, int64(2), m.ID)
	}
}

func TestStore_RebuildRejectsBadItemWithoutChanges(t *testing.T) {
	s := newTestStore(t, 2)
	require.NoError(t, s.Add(1, []float32{1, 0}))

	err := s.Rebuild([]Item{
		{ID: 5, Vector: []float32{1, 0}},
		{ID: 6, Vector: []float32{1, 0, 0}},
	})
	require.ErrorIs(t, err, vector.ErrDimensionMismatch)
	assert.Equal(t, []int64{1}, s.IDs())
	assert.Equal(t, 1, s.Count())
}

func TestStore_CountMatchesMappingUnderConcurrency(t *testing.T) {
	s := newTestStore(t, 2)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = s.Add(int64(base*100+j), []float32{1, 0})
				_, _ = s.Search([]float32{1, 0}, 3)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 400, s.Count())
	assert.Len(t, s.IDs(), s.Count())
}

func TestStore_AddIfAbsent(t *testing.T) {
	s := newTestStore(t, 2)
	added, err := s.AddIfAbsent(4, []float32{1, 0})
	require.NoError(t, err)
	assert.True(t, added)

	added, err = s.AddIfAbsent(4, []float32{0, 1})
	require.NoError(t, err)
	assert.False(t, added)
	assert.Equal(t, 1, s.Count())

	_, err = s.AddIfAbsent(5, []float32{1})
	assert.ErrorIs(t, err, vector.ErrDimensionMismatch)
}

func BenchmarkStore_Rebuild(b *testing.B) {
	items := make([]Item, 2000)
	for i := range items {
		v := make([]float32, 128)
		v[i%128] = 1
		items[i] = Item{ID: int64(i + 1), Vector: v}
	}
	s, err := NewStore(string(vector.IndexTypeMemory), 128)
	if err != nil {
		b.Fatal(err)
	}
	defer s.Close()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := s.Rebuild(items); err != nil {
			b.Fatal(err)
		}
	}
}

func TestStore_RebuildKeepingTail(t *testing.T) {
	s := newTestStore(t, 2)
	require.NoError(t, s.Add(1, []float32{1, 0}))
	require.NoError(t, s.Add(2, []float32{0, 1}))
	tail := s.Count()

	// Appended after the replacement set was derived.
	require.NoError(t, s.Add(3, []float32{0.6, 0.8}))
	require.NoError(t, s.Add(2, []float32{0, 1}))

	require.NoError(t, s.RebuildKeepingTail([]Item{{ID: 1, Vector: []float32{1, 0}}}, tail, 2))
	assert.Equal(t, []int64{1, 3}, s.IDs())

	matches, err := s.Search([]float32{0.6, 0.8}, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), matches[0].ID)
}

func TestStore_ClosedStoreRejectsCalls(t *testing.T) {
	s, err := NewStore("memory", 2)
	require.NoError(t, err)
	require.NoError(t, s.Add(1, []float32{1, 0}))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.Search([]float32{1, 0}, 1)
	assert.ErrorIs(t, err, ErrStoreClosed)
	_, err = s.AddIfAbsent(2, []float32{0, 1})
	assert.ErrorIs(t, err, ErrStoreClosed)
	assert.ErrorIs(t, s.Rebuild(nil), ErrStoreClosed)
	assert.Equal(t, 1, s.Count())
}
