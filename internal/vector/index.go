// Package vector provides exact inner-product vector indexes addressed by insertion position.
package vector

// Index is an append-only exact nearest-neighbor index over inner product.
// Vectors have no ids; a vector is addressed by the position it was inserted at.
type Index interface {
	// Insert appends one vector at position Count().
	Insert(vec []float32) error
	// InsertBatch appends vectors in order. Either all of them are appended or none.
	InsertBatch(vecs [][]float32) error
	// QueryTopK returns up to k hits by descending score, ties by ascending position.
	QueryTopK(query []float32, k int) ([]Hit, error)
	// Reset discards all vectors.
	Reset()
	// Vector returns a copy of the vector at pos.
	Vector(pos int) ([]float32, error)
	Count() int
	Dimensions() int
	Type() string
	Close() error
}

// Hit is a single search hit: the position of the stored vector and its inner product with the query.
type Hit struct {
	Position int
	Score    float64 // Inner product; cosine similarity for normalized vectors
}
