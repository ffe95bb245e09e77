package exemgo

import (
	"container/list"
	"encoding/binary"
	"hash/maphash"
	"math"
	"sync"

	"github.com/hupe1980/exemgo/matrix"
)

// DefaultMemoCapacity is the cache size used when Memoize is called with a
// capacity below one.
const DefaultMemoCapacity = 1024

type memoKey struct {
	hash       uint64
	rows, cols int
}

type memoEntry struct {
	key   memoKey
	value float64
}

// Memoized wraps a Function with an LRU cache over evaluation results,
// keyed by the candidate set's exact contents. Optimization loops
// re-evaluate the same incumbent sets many times; memoization turns those
// repeats into lookups without giving the underlying function any hidden
// state of its own.
//
// Keys hash the raw bit patterns of the set's values, so two sets cache
// to the same entry only when they are bitwise identical in the same row
// order. Hash collisions are disambiguated by shape only; the raw values
// are not retained.
//
// Memoized is safe for concurrent use.
type Memoized struct {
	Function

	mu       sync.Mutex
	seed     maphash.Seed
	capacity int
	entries  map[memoKey]*list.Element
	order    *list.List // front = most recently used

	hits, misses uint64
}

// Memoize wraps f with a result cache holding up to capacity entries.
// Capacities below one select DefaultMemoCapacity.
func Memoize(f Function, capacity int) *Memoized {
	if capacity < 1 {
		capacity = DefaultMemoCapacity
	}
	return &Memoized{
		Function: f,
		seed:     maphash.MakeSeed(),
		capacity: capacity,
		entries:  make(map[memoKey]*list.Element, capacity),
		order:    list.New(),
	}
}

// Evaluate returns the cached value for s if present, otherwise delegates
// to the wrapped function and caches the result. Errors are not cached.
func (m *Memoized) Evaluate(s *matrix.Dense) (float64, error) {
	key := m.keyFor(s)

	m.mu.Lock()
	if el, ok := m.entries[key]; ok {
		m.order.MoveToFront(el)
		m.hits++
		v := el.Value.(*memoEntry).value
		m.mu.Unlock()
		return v, nil
	}
	m.misses++
	m.mu.Unlock()

	v, err := m.Function.Evaluate(s)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	if el, ok := m.entries[key]; ok {
		// A concurrent evaluation of the same set won the race.
		m.order.MoveToFront(el)
	} else {
		m.entries[key] = m.order.PushFront(&memoEntry{key: key, value: v})
		if m.order.Len() > m.capacity {
			oldest := m.order.Back()
			m.order.Remove(oldest)
			delete(m.entries, oldest.Value.(*memoEntry).key)
		}
	}
	m.mu.Unlock()

	return v, nil
}

// Stats returns the number of cache hits and misses so far.
func (m *Memoized) Stats() (hits, misses uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits, m.misses
}

// Len returns the number of cached entries.
func (m *Memoized) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}

// Purge drops all cached entries. Hit and miss counters are kept.
func (m *Memoized) Purge() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[memoKey]*list.Element, m.capacity)
	m.order.Init()
}

func (m *Memoized) keyFor(s *matrix.Dense) memoKey {
	var h maphash.Hash
	h.SetSeed(m.seed)

	var buf [8]byte
	for _, v := range s.Data() {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}

	return memoKey{hash: h.Sum64(), rows: s.Rows(), cols: s.Cols()}
}
