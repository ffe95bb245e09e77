package exemgo

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"

	"github.com/hupe1980/exemgo/matrix"
)

// IndexSet is a set of ground-set row indices backed by a bitset. It is
// the compact way to describe candidate sets drawn from the ground set
// itself, as greedy maximization loops do: instead of copying rows into a
// candidate matrix per step, callers toggle indices and materialize once.
//
// IndexSet is not safe for concurrent mutation.
type IndexSet struct {
	bits *bitset.BitSet
}

// NewIndexSet creates an index set containing the given indices.
func NewIndexSet(indices ...int) *IndexSet {
	s := &IndexSet{bits: bitset.New(0)}
	for _, i := range indices {
		s.Add(i)
	}
	return s
}

// Add inserts an index. Negative indices are ignored.
func (s *IndexSet) Add(i int) {
	if i < 0 {
		return
	}
	s.bits.Set(uint(i))
}

// Remove deletes an index if present.
func (s *IndexSet) Remove(i int) {
	if i < 0 {
		return
	}
	s.bits.Clear(uint(i))
}

// Contains reports whether the index is in the set.
func (s *IndexSet) Contains(i int) bool {
	return i >= 0 && s.bits.Test(uint(i))
}

// Len returns the number of indices in the set.
func (s *IndexSet) Len() int {
	return int(s.bits.Count())
}

// Indices returns the member indices in ascending order.
func (s *IndexSet) Indices() []int {
	out := make([]int, 0, s.Len())
	for i, ok := s.bits.NextSet(0); ok; i, ok = s.bits.NextSet(i + 1) {
		out = append(out, int(i))
	}
	return out
}

// Clone returns an independent copy.
func (s *IndexSet) Clone() *IndexSet {
	return &IndexSet{bits: s.bits.Clone()}
}

// Materialize gathers the referenced rows of ground into a candidate
// matrix, in ascending index order. Indices outside [0, ground.Rows())
// are an error.
func (s *IndexSet) Materialize(ground *matrix.Dense) (*matrix.Dense, error) {
	rows := make([]matrix.Vector, 0, s.Len())
	for i, ok := s.bits.NextSet(0); ok; i, ok = s.bits.NextSet(i + 1) {
		if int(i) >= ground.Rows() {
			return nil, fmt.Errorf("index %d out of range for ground set of %d rows", i, ground.Rows())
		}
		rows = append(rows, ground.Row(int(i)))
	}
	if len(rows) == 0 {
		return matrix.NewDense(0, ground.Cols()), nil
	}
	return matrix.FromRows(rows)
}
