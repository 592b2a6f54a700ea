package indexstore

import "fmt"

// Mapping is the ordered position -> product id table that accompanies a vector index.
// Position i holds the id of the i-th inserted vector. Mapping is not safe for
// concurrent use on its own; Store serializes access.
type Mapping struct {
	ids []int64
}

// NewMapping returns a mapping holding a copy of ids.
func NewMapping(ids []int64) *Mapping {
	m := &Mapping{ids: make([]int64, len(ids))}
	copy(m.ids, ids)
	return m
}

// Append records id at the next position.
func (m *Mapping) Append(id int64) {
	m.ids = append(m.ids, id)
}

// IDAt returns the id stored at pos.
func (m *Mapping) IDAt(pos int) (int64, error) {
	if pos < 0 || pos >= len(m.ids) {
		return 0, fmt.Errorf("%w: %d (len %d)", ErrPositionOutOfRange, pos, len(m.ids))
	}
	return m.ids[pos], nil
}

// PositionsOf returns every position holding id, in ascending order.
func (m *Mapping) PositionsOf(id int64) []int {
	var out []int
	for i, v := range m.ids {
		if v == id {
			out = append(out, i)
		}
	}
	return out
}

// Contains reports whether id appears at any position.
func (m *Mapping) Contains(id int64) bool {
	for _, v := range m.ids {
		if v == id {
			return true
		}
	}
	return false
}

// All returns a copy of the ids in position order.
func (m *Mapping) All() []int64 {
	out := make([]int64, len(m.ids))
	copy(out, m.ids)
	return out
}

// Len returns the number of positions.
func (m *Mapping) Len() int {
	return len(m.ids)
}

func (m *Mapping) truncate(n int) {
	m.ids = m.ids[:n]
}
