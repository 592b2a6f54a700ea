package models

// SearchResult is a single hit: the product row and its cosine similarity to the query.
type SearchResult struct {
	Rank       int     `json:"rank"`
	ID         int64   `json:"id"`
	Product    Product `json:"product"`
	Similarity float64 `json:"similarity"`
}

// SearchResponse is the response for a search request.
type SearchResponse struct {
	Results   []*SearchResult `json:"results"`
	Count     int             `json:"count"`
	Query     string          `json:"query"`
	QueryTime int64           `json:"query_time_ms"`
}
