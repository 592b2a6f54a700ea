// Package indexstore pairs a vector index with its id mapping and persists the pair to disk.
package indexstore

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hyperjump/mirip/internal/vector"
)

// Item is one entry of a full rebuild: a product id and its embedding.
type Item struct {
	ID     int64
	Vector []float32
}

// Match is a search hit resolved to a product id.
type Match struct {
	ID       int64
	Position int
	Score    float64
}

var storeGeneration atomic.Uint64

// Store owns one vector index and its mapping. Index count and mapping length
// are equal whenever the lock is not held.
//
// Every store gets a generation at creation and bumps its version on each
// change; together they order snapshots so an older one never overwrites a
// newer one on disk.
type Store struct {
	mu         sync.RWMutex
	index      vector.Index
	mapping    *Mapping
	dim        int
	generation uint64
	version    uint64
	closed     bool
}

// NewStore creates an empty store backed by an index of the given type.
func NewStore(indexType string, dim int) (*Store, error) {
	idx, err := vector.NewIndex(indexType, dim)
	if err != nil {
		return nil, fmt.Errorf("failed to create vector index: %w", err)
	}
	return &Store{
		index:      idx,
		mapping:    NewMapping(nil),
		dim:        dim,
		generation: storeGeneration.Add(1),
	}, nil
}

// Dimensions returns the fixed vector dimension of the store.
func (s *Store) Dimensions() int {
	return s.dim
}

// IndexType returns the backing index type.
func (s *Store) IndexType() string {
	return s.index.Type()
}

// Add inserts vec and records id at the new position.
func (s *Store) Add(id int64, vec []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if err := s.index.Insert(vec); err != nil {
		return err
	}
	s.mapping.Append(id)
	s.version++
	return nil
}

// AddIfAbsent is Add that does nothing and returns false when id is already present.
func (s *Store) AddIfAbsent(id int64, vec []float32) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrStoreClosed
	}
	if s.mapping.Contains(id) {
		return false, nil
	}
	if err := s.index.Insert(vec); err != nil {
		return false, err
	}
	s.mapping.Append(id)
	s.version++
	return true, nil
}

// Rebuild replaces the store contents with items, in order. Dimensions are
// validated before anything is discarded, so a bad item leaves the store untouched.
func (s *Store) Rebuild(items []Item) error {
	vecs, ids, err := s.split(items)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	return s.replace(vecs, ids)
}

// RebuildKeepingTail is Rebuild for a replacement set derived from the first
// tail positions. Entries appended at or after tail since then are kept after
// items, unless their id is exclude or already among items.
func (s *Store) RebuildKeepingTail(items []Item, tail int, exclude int64) error {
	vecs, ids, err := s.split(items)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	for pos := tail; pos < s.mapping.Len(); pos++ {
		id, err := s.mapping.IDAt(pos)
		if err != nil {
			return err
		}
		if _, dup := seen[id]; dup || id == exclude {
			continue
		}
		v, err := s.index.Vector(pos)
		if err != nil {
			return err
		}
		vecs = append(vecs, v)
		ids = append(ids, id)
		seen[id] = struct{}{}
	}
	return s.replace(vecs, ids)
}

// split validates item dimensions before anything is discarded.
func (s *Store) split(items []Item) ([][]float32, []int64, error) {
	vecs := make([][]float32, len(items))
	ids := make([]int64, len(items))
	for i, it := range items {
		if len(it.Vector) != s.dim {
			return nil, nil, fmt.Errorf("item %d (id %d): %w", i, it.ID,
				&vector.DimensionMismatchError{Expected: s.dim, Actual: len(it.Vector)})
		}
		vecs[i] = it.Vector
		ids[i] = it.ID
	}
	return vecs, ids, nil
}

// replace must be called with the write lock held.
func (s *Store) replace(vecs [][]float32, ids []int64) error {
	s.index.Reset()
	s.version++
	if err := s.index.InsertBatch(vecs); err != nil {
		s.mapping.truncate(0)
		return err
	}
	s.mapping = NewMapping(ids)
	return nil
}

// Search returns up to k matches for vec. Positions that do not resolve to an id are skipped.
func (s *Store) Search(vec []float32, k int) ([]Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	hits, err := s.index.QueryTopK(vec, k)
	if err != nil {
		return nil, err
	}
	out := make([]Match, 0, len(hits))
	for _, h := range hits {
		id, err := s.mapping.IDAt(h.Position)
		if err != nil {
			continue
		}
		out = append(out, Match{ID: id, Position: h.Position, Score: h.Score})
	}
	return out, nil
}

// Count returns the number of stored vectors.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mapping.Len()
}

// Contains reports whether id is present.
func (s *Store) Contains(id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mapping.Contains(id)
}

// IDs returns the ids in position order.
func (s *Store) IDs() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mapping.All()
}

// Close releases the backing index. Later calls on the store return
// ErrStoreClosed; closing twice is a no-op.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.index.Close()
}

// snapshot copies the vectors (row-major), the ids and the version under a read lock.
func (s *Store) snapshot() ([]float32, []int64, uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, nil, 0, ErrStoreClosed
	}
	n := s.index.Count()
	flat := make([]float32, 0, n*s.dim)
	for pos := 0; pos < n; pos++ {
		v, err := s.index.Vector(pos)
		if err != nil {
			return nil, nil, 0, err
		}
		flat = append(flat, v...)
	}
	return flat, s.mapping.All(), s.version, nil
}

// restore fills an empty store from a decoded snapshot.
func (s *Store) restore(flat []float32, ids []int64) error {
	vecs := make([][]float32, len(ids))
	for i := range ids {
		vecs[i] = flat[i*s.dim : (i+1)*s.dim]
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.index.InsertBatch(vecs); err != nil {
		return err
	}
	s.mapping = NewMapping(ids)
	s.version++
	return nil
}
