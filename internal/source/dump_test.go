package source

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/mirip/internal/models"
)

const sampleDump = "-- MySQL dump\n" +
	"INSERT INTO `products` (`id`, `name`, `description`, `price`, `image_urls`, `deleted_at`) VALUES (12, 'Tote, large', 'It\\'s sturdy \\\\ strong', 19.99, '[\"https://a/1.jpg\"]', NULL);\n" +
	"INSERT INTO `products` (`id`, `name`, `description`, `price`, `image_urls`, `deleted_at`) VALUES (7, 'Scarf', 'line\\nbreak', 5, NULL, '2024-02-01 00:00:00');\n" +
	"INSERT INTO `categories` (`id`, `name`) VALUES (1, 'Bags');\n" +
	"INSERT INTO `products` (`id`, `name`) VALUES (31);\n" +
	"INSERT INTO `products` (`id`, `name`, `thumb`) VALUES (40, 'Blob', 0x89504e47);\n"

func TestParseDump(t *testing.T) {
	rows, skipped, err := ParseDump(strings.NewReader(sampleDump), "products")
	require.NoError(t, err)
	assert.Equal(t, 1, skipped, "value count mismatch line")
	require.Len(t, rows, 3)

	assert.Equal(t, models.Product{
		"id":          int64(12),
		"name":        "Tote, large",
		"description": `It's sturdy \ strong`,
		"price":       19.99,
		"image_urls":  `["https://a/1.jpg"]`,
		"deleted_at":  nil,
	}, rows[0])

	assert.Equal(t, "line\nbreak", rows[1]["description"])
	assert.Equal(t, int64(5), rows[1]["price"])
	assert.True(t, rows[1].IsDeleted())
	assert.Equal(t, "0x89504e47", rows[2]["thumb"])
}

func TestParseDump_Empty(t *testing.T) {
	rows, skipped, err := ParseDump(strings.NewReader(""), "products")
	require.NoError(t, err)
	assert.Zero(t, skipped)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestWriteDump_EscapesAndParsesBack(t *testing.T) {
	cols := []string{"id", "name", "description", "price", "thumb"}
	rows := [][]any{
		{int64(1), `quote ' double " back \ nul ` + "\x00 ctrlz \x1a cr \r nl \n", nil, 2.5, []byte{0xde, 0xad}},
		{int64(2), "plain", "text, with comma", int64(3), nil},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteDump(&buf, "products", cols, rows))
	assert.Equal(t, 2, strings.Count(buf.String(), "\n"), "one statement per line")

	parsed, skipped, err := ParseDump(&buf, "products")
	require.NoError(t, err)
	assert.Zero(t, skipped)
	require.Len(t, parsed, 2)
	assert.Equal(t, rows[0][1], parsed[0]["name"])
	assert.Nil(t, parsed[0]["description"])
	assert.Equal(t, 2.5, parsed[0]["price"])
	assert.Equal(t, "0xdead", parsed[0]["thumb"])
	assert.Equal(t, "text, with comma", parsed[1]["description"])
}

func TestWriteDump_RowWidthMismatch(t *testing.T) {
	err := WriteDump(&bytes.Buffer{}, "products", []string{"id", "name"}, [][]any{{int64(1)}})
	assert.Error(t, err)
}

func TestDumpProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "product_details.sql")
	ctx := context.Background()

	d := NewDumpProvider(path, "", nil)
	rows, err := d.FetchAll(ctx)
	require.NoError(t, err, "missing dump is not an error")
	assert.Empty(t, rows)

	require.NoError(t, os.WriteFile(path, []byte(sampleDump), 0644))
	rows, err = d.FetchAll(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	row, err := d.FetchOne(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "Scarf", row.Name())

	_, err = d.FetchOne(ctx, 1000)
	assert.ErrorIs(t, err, ErrNotFound)
}
