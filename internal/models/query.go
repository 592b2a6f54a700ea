package models

import (
	"errors"
	"strings"
)

// ErrEmptyQuery is returned for a blank search query.
var ErrEmptyQuery = errors.New("no query provided")

// SearchQuery is a similarity search request. Query is free text or an image URL.
type SearchQuery struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

// Validate trims the query, rejects an empty one, defaults TopK and caps it at maxTopK.
func (q *SearchQuery) Validate(defaultTopK, maxTopK int) error {
	q.Query = strings.TrimSpace(q.Query)
	if q.Query == "" {
		return ErrEmptyQuery
	}
	if q.TopK <= 0 {
		q.TopK = defaultTopK
	}
	if maxTopK > 0 && q.TopK > maxTopK {
		q.TopK = maxTopK
	}
	return nil
}

// IsImageURL reports whether the query should be fetched and embedded as an image.
func (q *SearchQuery) IsImageURL() bool {
	return strings.HasPrefix(q.Query, "http://") || strings.HasPrefix(q.Query, "https://")
}
