//go:build !faiss || !cgo
// +build !faiss !cgo

package vector

import (
	"errors"
)

var errFAISSUnavailable = errors.New("FAISS not available")

// FAISSIndex is a stub that returns an error when FAISS is not available.
// Build with -tags=faiss to enable FAISS support.
type FAISSIndex struct{}

// NewFAISSIndex returns an error because FAISS is not available.
func NewFAISSIndex(dimensions int) (*FAISSIndex, error) {
	return nil, errors.New("FAISS not available: build with -tags=faiss and install FAISS library")
}

// Insert is not implemented without FAISS.
func (f *FAISSIndex) Insert(vec []float32) error { return errFAISSUnavailable }

// InsertBatch is not implemented without FAISS.
func (f *FAISSIndex) InsertBatch(vecs [][]float32) error { return errFAISSUnavailable }

// QueryTopK is not implemented without FAISS.
func (f *FAISSIndex) QueryTopK(query []float32, k int) ([]Hit, error) {
	return nil, errFAISSUnavailable
}

// Reset is a no-op without FAISS.
func (f *FAISSIndex) Reset() {}

// Vector is not implemented without FAISS.
func (f *FAISSIndex) Vector(pos int) ([]float32, error) { return nil, errFAISSUnavailable }

// Count returns 0 without FAISS.
func (f *FAISSIndex) Count() int { return 0 }

// Dimensions returns 0 without FAISS.
func (f *FAISSIndex) Dimensions() int { return 0 }

// Close is a no-op without FAISS.
func (f *FAISSIndex) Close() error { return nil }

// Type returns the index type identifier.
func (f *FAISSIndex) Type() string {
	return string(IndexTypeFAISS)
}
