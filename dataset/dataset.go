// Package dataset implements the keyed, time-indexed multi-stream store
// used for both raw sensor measurements and factor-graph state variables.
//
// It is a generic reimplementation of the chronological multimap-per-key
// container described by libRSF's DataSet.h, generalized the way the
// teacher repo generalizes its own per-satellite containers (Obs.DatE,
// Nav, ObsE.DatS) into a single reusable shape.
package dataset

import (
	"errors"
	"sort"
)

// Timestamp is a real-valued seconds value. Equality is bit-exact within
// a stream, matching the spec's data model.
type Timestamp = float64

// ErrNotFound is returned by Get when the (key, timestamp, index) triple
// does not resolve to a stored element.
var ErrNotFound = errors.New("dataset: not found")

// stream holds one key's chronologically ordered elements. Duplicates at
// the same timestamp are kept contiguous, in insertion order, so that
// Get(key, t, i) returns the i-th inserted object at that instant.
type stream[V any] struct {
	times []Timestamp
	vals  []V
}

// DataSet is a generic, keyed, time-indexed multi-stream store.
type DataSet[K comparable, V any] struct {
	streams map[K]*stream[V]
	order   []K // first-seen key order, for deterministic KeysAll
}

// New creates an empty DataSet.
func New[K comparable, V any]() *DataSet[K, V] {
	return &DataSet[K, V]{streams: make(map[K]*stream[V])}
}

// upperBound returns the index of the first element with time > t (i.e.
// one past the last element with time == t, or the insertion point for a
// new element at time t appended after any existing duplicates).
func upperBound(times []Timestamp, t Timestamp) int {
	return sort.Search(len(times), func(i int) bool { return times[i] > t })
}

// lowerBound returns the index of the first element with time >= t.
func lowerBound(times []Timestamp, t Timestamp) int {
	return sort.Search(len(times), func(i int) bool { return times[i] >= t })
}

// Add appends an element at (key, timestamp). Duplicates at the same
// timestamp coexist as additional elements, ordered by insertion.
func (d *DataSet[K, V]) Add(key K, t Timestamp, v V) {
	s, ok := d.streams[key]
	if !ok {
		s = &stream[V]{}
		d.streams[key] = s
		d.order = append(d.order, key)
	}
	i := upperBound(s.times, t)
	s.times = append(s.times, 0)
	copy(s.times[i+1:], s.times[i:])
	s.times[i] = t
	var zero V
	s.vals = append(s.vals, zero)
	copy(s.vals[i+1:], s.vals[i:])
	s.vals[i] = v
}

// Remove deletes one element at (key, timestamp, index) when index is
// given, or every element at that timestamp otherwise. The key itself is
// dropped once its stream becomes empty. Returns false if nothing
// matched.
func (d *DataSet[K, V]) Remove(key K, t Timestamp, index ...int) bool {
	s, ok := d.streams[key]
	if !ok {
		return false
	}
	lo := lowerBound(s.times, t)
	hi := upperBound(s.times, t)
	if lo >= hi {
		return false
	}
	if len(index) == 0 {
		s.times = append(s.times[:lo], s.times[hi:]...)
		s.vals = append(s.vals[:lo], s.vals[hi:]...)
	} else {
		n := lo + index[0]
		if n < lo || n >= hi {
			return false
		}
		s.times = append(s.times[:n], s.times[n+1:]...)
		s.vals = append(s.vals[:n], s.vals[n+1:]...)
	}
	if len(s.times) == 0 {
		delete(d.streams, key)
		for i, k := range d.order {
			if k == key {
				d.order = append(d.order[:i], d.order[i+1:]...)
				break
			}
		}
	}
	return true
}

// Count returns the number of elements for key, optionally restricted to
// a single timestamp.
func (d *DataSet[K, V]) Count(key K, t ...Timestamp) int {
	s, ok := d.streams[key]
	if !ok {
		return 0
	}
	if len(t) == 0 {
		return len(s.times)
	}
	return upperBound(s.times, t[0]) - lowerBound(s.times, t[0])
}

// Exists reports whether element index (default 0) exists at (key, t).
func (d *DataSet[K, V]) Exists(key K, t Timestamp, index ...int) bool {
	i := 0
	if len(index) > 0 {
		i = index[0]
	}
	return d.Count(key, t) > i
}

// Get returns the index-th element (default 0) at (key, t), or
// ErrNotFound if absent.
func (d *DataSet[K, V]) Get(key K, t Timestamp, index ...int) (V, error) {
	var zero V
	i := 0
	if len(index) > 0 {
		i = index[0]
	}
	s, ok := d.streams[key]
	if !ok {
		return zero, ErrNotFound
	}
	lo := lowerBound(s.times, t)
	hi := upperBound(s.times, t)
	n := lo + i
	if n < lo || n >= hi {
		return zero, ErrNotFound
	}
	return s.vals[n], nil
}

// Set overwrites the index-th element (default 0) at (key, t). Returns
// false if absent.
func (d *DataSet[K, V]) Set(key K, t Timestamp, v V, index ...int) bool {
	i := 0
	if len(index) > 0 {
		i = index[0]
	}
	s, ok := d.streams[key]
	if !ok {
		return false
	}
	lo := lowerBound(s.times, t)
	hi := upperBound(s.times, t)
	n := lo + i
	if n < lo || n >= hi {
		return false
	}
	s.vals[n] = v
	return true
}

// First returns the earliest timestamp of key.
func (d *DataSet[K, V]) First(key K) (Timestamp, bool) {
	s, ok := d.streams[key]
	if !ok || len(s.times) == 0 {
		return 0, false
	}
	return s.times[0], true
}

// Last returns the latest timestamp of key.
func (d *DataSet[K, V]) Last(key K) (Timestamp, bool) {
	s, ok := d.streams[key]
	if !ok || len(s.times) == 0 {
		return 0, false
	}
	return s.times[len(s.times)-1], true
}

// Next returns the first timestamp strictly after t.
func (d *DataSet[K, V]) Next(key K, t Timestamp) (Timestamp, bool) {
	s, ok := d.streams[key]
	if !ok {
		return 0, false
	}
	i := upperBound(s.times, t)
	if i >= len(s.times) {
		return 0, false
	}
	return s.times[i], true
}

// Prev returns the last timestamp strictly before t.
func (d *DataSet[K, V]) Prev(key K, t Timestamp) (Timestamp, bool) {
	s, ok := d.streams[key]
	if !ok {
		return 0, false
	}
	i := lowerBound(s.times, t)
	if i == 0 {
		return 0, false
	}
	return s.times[i-1], true
}

// Above returns the first timestamp strictly after t (alias of Next).
func (d *DataSet[K, V]) Above(key K, t Timestamp) (Timestamp, bool) {
	return d.Next(key, t)
}

// AboveOrEqual returns the first timestamp >= t.
func (d *DataSet[K, V]) AboveOrEqual(key K, t Timestamp) (Timestamp, bool) {
	s, ok := d.streams[key]
	if !ok {
		return 0, false
	}
	i := lowerBound(s.times, t)
	if i >= len(s.times) {
		return 0, false
	}
	return s.times[i], true
}

// Below returns the last timestamp strictly before t.
func (d *DataSet[K, V]) Below(key K, t Timestamp) (Timestamp, bool) {
	s, ok := d.streams[key]
	if !ok {
		return 0, false
	}
	i := lowerBound(s.times, t)
	if i == 0 {
		return 0, false
	}
	return s.times[i-1], true
}

// BelowOrEqual returns the latest timestamp <= t, preferring the equal
// element when present.
func (d *DataSet[K, V]) BelowOrEqual(key K, t Timestamp) (Timestamp, bool) {
	s, ok := d.streams[key]
	if !ok {
		return 0, false
	}
	i := upperBound(s.times, t)
	if i == 0 {
		return 0, false
	}
	return s.times[i-1], true
}

// Closest returns the timestamp nearest to t, preferring the newer one on
// a tie.
func (d *DataSet[K, V]) Closest(key K, t Timestamp) (Timestamp, bool) {
	s, ok := d.streams[key]
	if !ok || len(s.times) == 0 {
		return 0, false
	}
	i := lowerBound(s.times, t)
	if i < len(s.times) && s.times[i] == t {
		return t, true
	}
	switch {
	case i == 0:
		return s.times[0], true
	case i == len(s.times):
		return s.times[len(s.times)-1], true
	default:
		below := s.times[i-1]
		above := s.times[i]
		if (above - t) <= (t - below) {
			return above, true
		}
		return below, true
	}
}

// ElementsBetween enumerates elements of key in ascending time, over
// [t0, t1] after snapping both ends to the nearest existing timestamps
// inside that range. Returns an empty slice if nothing lies in range.
func (d *DataSet[K, V]) ElementsBetween(key K, t0, t1 Timestamp) []V {
	s, ok := d.streams[key]
	if !ok {
		return nil
	}
	lo := lowerBound(s.times, t0)
	hi := upperBound(s.times, t1)
	if lo >= hi {
		return nil
	}
	out := make([]V, hi-lo)
	copy(out, s.vals[lo:hi])
	return out
}

// TimesOf returns the distinct, ascending timestamps of key.
func (d *DataSet[K, V]) TimesOf(key K) []Timestamp {
	s, ok := d.streams[key]
	if !ok {
		return nil
	}
	out := make([]Timestamp, 0, len(s.times))
	for i, t := range s.times {
		if i == 0 || t != s.times[i-1] {
			out = append(out, t)
		}
	}
	return out
}

// KeysAt returns every key holding at least one element at t.
func (d *DataSet[K, V]) KeysAt(t Timestamp) []K {
	var out []K
	for _, k := range d.order {
		if d.Count(k, t) > 0 {
			out = append(out, k)
		}
	}
	return out
}

// KeysAll returns every key currently holding data, in first-seen order.
func (d *DataSet[K, V]) KeysAll() []K {
	out := make([]K, len(d.order))
	copy(out, d.order)
	return out
}

// Merge appends every element of other into d.
func (d *DataSet[K, V]) Merge(other *DataSet[K, V]) {
	for _, k := range other.order {
		s := other.streams[k]
		for i, t := range s.times {
			d.Add(k, t, s.vals[i])
		}
	}
}
