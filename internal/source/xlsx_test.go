package source

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestXLSXProvider_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.xlsx")
	cols := []string{"id", "name", "description", "price"}
	rows := [][]any{
		{int64(1), "Canvas Tote", "Sturdy bag", 19.5},
		{int64(2), "Wool Scarf", nil, int64(25)},
	}
	require.NoError(t, WriteXLSX(path, "", cols, rows))

	x := NewXLSXProvider(path, "")
	ctx := context.Background()
	got, err := x.FetchAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)

	id, ok := got[0].ID()
	require.True(t, ok)
	assert.Equal(t, int64(1), id)
	assert.Equal(t, "Canvas Tote Sturdy bag", got[0].Text())
	assert.Equal(t, 19.5, got[0]["price"])
	assert.Nil(t, got[1]["description"])

	row, err := x.FetchOne(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "Wool Scarf", row.Name())
	_, err = x.FetchOne(ctx, 3)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestXLSXProvider_Missing(t *testing.T) {
	rows, err := NewXLSXProvider(filepath.Join(t.TempDir(), "nope.xlsx"), "").FetchAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSQLProvider_ExportXLSX(t *testing.T) {
	p := newTestDB(t)
	path := filepath.Join(t.TempDir(), "export.xlsx")
	n, err := p.ExportXLSX(context.Background(), path, "")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	rows, err := NewXLSXProvider(path, "products").FetchAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}
