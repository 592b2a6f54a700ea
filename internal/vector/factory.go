package vector

import "fmt"

// IndexType names a backend for the positional Index contract.
type IndexType string

const (
	// IndexTypeMemory keeps vectors in a Go slice and scores every position per query.
	IndexTypeMemory IndexType = "memory"
	// IndexTypeFAISS stores vectors in a FAISS IndexFlatIP; positions are FAISS
	// labels. Only usable in binaries built with -tags=faiss.
	IndexTypeFAISS IndexType = "faiss"
)

// NewIndex returns an empty exact inner-product index of dimensions width.
// Both backends number vectors 0, 1, 2... in insertion order and return the
// same positions for the same inserts; mapping positions to ids is the
// caller's job. An empty indexType selects IndexTypeMemory.
func NewIndex(indexType string, dimensions int) (Index, error) {
	switch t := IndexType(indexType); t {
	case "", IndexTypeMemory:
		return NewMemoryIndex(dimensions)
	case IndexTypeFAISS:
		return NewFAISSIndex(dimensions)
	default:
		return nil, fmt.Errorf("unknown index type %q, want %q or %q", t, IndexTypeMemory, IndexTypeFAISS)
	}
}

// IsFAISSAvailable reports whether this binary can create IndexTypeFAISS indexes.
func IsFAISSAvailable() bool {
	idx, err := NewFAISSIndex(1)
	if err != nil {
		return false
	}
	_ = idx.Close()
	return true
}
