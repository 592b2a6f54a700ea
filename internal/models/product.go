// Package models defines core data structures for product rows, queries, and search results.
package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Product is one catalog row keyed by column name. Values are normalized by the
// source: integers are int64, decimals float64, text string, NULL nil.
type Product map[string]any

// ID returns the row's "id" column as an int64.
func (p Product) ID() (int64, bool) {
	return toInt64(p["id"])
}

// Name returns the "name" column, or "" when absent.
func (p Product) Name() string {
	return p.str("name")
}

// Description returns the "description" column, or "" when absent.
func (p Product) Description() string {
	return p.str("description")
}

// Text is the text used to embed a product without a usable image.
func (p Product) Text() string {
	return strings.TrimSpace(p.Name() + " " + p.Description())
}

// ImageURLs returns the image URLs of the product. The "image_urls" column holds
// either a JSON array string or a list.
func (p Product) ImageURLs() []string {
	switch v := p["image_urls"].(type) {
	case nil:
		return nil
	case []string:
		return nonEmpty(append([]string(nil), v...))
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return nonEmpty(out)
	case string:
		var urls []string
		if err := json.Unmarshal([]byte(v), &urls); err != nil {
			return nil
		}
		return nonEmpty(urls)
	case []byte:
		return Product{"image_urls": string(v)}.ImageURLs()
	default:
		return nil
	}
}

// IsDeleted reports a soft-deleted row: non-empty deleted_at, or truthy is_deleted/deleted.
func (p Product) IsDeleted() bool {
	if v, ok := p["deleted_at"]; ok && v != nil {
		if s, isStr := v.(string); !isStr || strings.TrimSpace(s) != "" {
			return true
		}
	}
	for _, col := range []string{"is_deleted", "deleted"} {
		if truthy(p[col]) {
			return true
		}
	}
	return false
}

func (p Product) str(col string) string {
	switch v := p[col].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

func nonEmpty(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64); err == nil {
			return i, true
		}
	case []byte:
		return toInt64(string(n))
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
	}
	return 0, false
}

func truthy(v any) bool {
	switch b := v.(type) {
	case nil:
		return false
	case bool:
		return b
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "", "0", "false", "no", "n":
			return false
		}
		return true
	default:
		if n, ok := toInt64(v); ok {
			return n != 0
		}
		if f, ok := v.(float64); ok {
			return f != 0
		}
		return false
	}
}
