package vector

import (
	"fmt"
	"sort"
	"sync"
)

// MemoryIndex is an in-memory flat index using brute-force inner product search.
// Vectors are stored contiguously in insertion order.
type MemoryIndex struct {
	dimensions int
	data       []float32 // count*dimensions values, row-major
	count      int
	mu         sync.RWMutex
}

// NewMemoryIndex creates an in-memory vector index with the given dimension.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, ErrInvalidDimension
	}
	return &MemoryIndex{dimensions: dimensions}, nil
}

// Type returns the index type identifier.
func (m *MemoryIndex) Type() string {
	return string(IndexTypeMemory)
}

// Dimensions returns the vector dimension of the index.
func (m *MemoryIndex) Dimensions() int {
	return m.dimensions
}

// Insert appends one vector.
func (m *MemoryIndex) Insert(vec []float32) error {
	if err := checkDimension(vec, m.dimensions); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append(m.data, vec...)
	m.count++
	return nil
}

// InsertBatch appends vectors in the given order. All lengths are checked before anything is appended.
func (m *MemoryIndex) InsertBatch(vecs [][]float32) error {
	for i, vec := range vecs {
		if err := checkDimension(vec, m.dimensions); err != nil {
			return fmt.Errorf("batch item %d: %w", i, err)
		}
	}
	if len(vecs) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if need := len(m.data) + len(vecs)*m.dimensions; cap(m.data) < need {
		grown := make([]float32, len(m.data), need)
		copy(grown, m.data)
		m.data = grown
	}
	for _, vec := range vecs {
		m.data = append(m.data, vec...)
	}
	m.count += len(vecs)
	return nil
}

// QueryTopK returns the top-k positions by inner product (assumes normalized vectors = cosine similarity).
func (m *MemoryIndex) QueryTopK(query []float32, k int) ([]Hit, error) {
	if err := checkDimension(query, m.dimensions); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 || m.count == 0 {
		return []Hit{}, nil
	}
	hits := make([]Hit, m.count)
	for i := 0; i < m.count; i++ {
		row := m.data[i*m.dimensions : (i+1)*m.dimensions]
		hits[i] = Hit{Position: i, Score: dot(query, row)}
	}
	sortHits(hits)
	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

// sortHits orders hits by descending score, breaking ties by ascending position.
func sortHits(hits []Hit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Position < hits[j].Position
	})
}

// Reset discards all vectors.
func (m *MemoryIndex) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = nil
	m.count = 0
}

// Vector returns a copy of the vector stored at pos.
func (m *MemoryIndex) Vector(pos int) ([]float32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if pos < 0 || pos >= m.count {
		return nil, fmt.Errorf("position %d out of range [0,%d)", pos, m.count)
	}
	out := make([]float32, m.dimensions)
	copy(out, m.data[pos*m.dimensions:(pos+1)*m.dimensions])
	return out, nil
}

// Count returns the number of vectors in the index.
func (m *MemoryIndex) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.count
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}

// dot is the inner product of two equal-length vectors, accumulated in float64.
func dot(a, b []float32) float64 {
	var sum float64
	for i, v := range a {
		sum += float64(v) * float64(b[i])
	}
	return sum
}
