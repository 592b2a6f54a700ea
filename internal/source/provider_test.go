package source

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/mirip/internal/models"
)

type staticProvider struct {
	name string
	rows []models.Product
	err  error
}

func (s *staticProvider) Name() string { return s.name }

func (s *staticProvider) FetchAll(context.Context) ([]models.Product, error) {
	return s.rows, s.err
}

func (s *staticProvider) FetchOne(_ context.Context, id int64) (models.Product, error) {
	if s.err != nil {
		return nil, s.err
	}
	for _, r := range s.rows {
		if rid, _ := r.ID(); rid == id {
			return r, nil
		}
	}
	return nil, ErrNotFound
}

func TestChain_FetchAll(t *testing.T) {
	ctx := context.Background()
	broken := &staticProvider{name: "mysql", err: errors.New("connection refused")}
	empty := &staticProvider{name: "sqlite"}
	dump := &staticProvider{name: "dump", rows: []models.Product{{"id": int64(1)}}}
	xlsx := &staticProvider{name: "xlsx", rows: []models.Product{{"id": int64(2)}}}

	c := NewChain(nil, broken, nil, empty, dump, xlsx)
	assert.Equal(t, 4, c.Len())
	assert.Equal(t, "chain(mysql,sqlite,dump,xlsx)", c.Name())

	rows, from, err := c.FetchAllFrom(ctx)
	require.NoError(t, err)
	assert.Equal(t, "dump", from)
	assert.Equal(t, dump.rows, rows)

	none := NewChain(nil, broken, empty)
	rows, err = none.FetchAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestChain_FetchOne(t *testing.T) {
	ctx := context.Background()
	primary := &staticProvider{name: "mysql", rows: []models.Product{{"id": int64(1), "name": "db"}}}
	fallback := &staticProvider{name: "dump", rows: []models.Product{{"id": int64(1), "name": "dump"}, {"id": int64(2), "name": "dump"}}}
	c := NewChain(nil, primary, fallback)

	row, err := c.FetchOne(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "db", row.Name())

	row, err = c.FetchOne(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "dump", row.Name())

	_, err = c.FetchOne(ctx, 3)
	assert.ErrorIs(t, err, ErrNotFound)
}
