// Package keyed buffers extracted values in an insertion-ordered key→value
// store ahead of a batch write.
package keyed

import (
	"fmt"
	"strings"
)

const syntheticPrefix = "key_"

// Store maps string keys to values of one semantic type, preserving
// insertion order for iteration. Lookups are O(1).
type Store[T any] struct {
	keys   []string
	values map[string]T
}

// New returns an empty Store.
func New[T any]() *Store[T] {
	return &Store[T]{values: make(map[string]T)}
}

// Ingest assigns synthetic keys key_0..key_{n-1} to items in input order.
// It is a full replace of the synthetic range: synthetic keys from a prior
// Ingest are dropped first; explicit keys are untouched.
func (s *Store[T]) Ingest(items []T) {
	kept := s.keys[:0]
	for _, k := range s.keys {
		if strings.HasPrefix(k, syntheticPrefix) {
			delete(s.values, k)
			continue
		}
		kept = append(kept, k)
	}
	s.keys = kept

	for i, item := range items {
		s.Set(fmt.Sprintf("%s%d", syntheticPrefix, i), item)
	}
}

// Set stores value under an explicit key, appending it to the iteration
// order on first insertion.
func (s *Store[T]) Set(key string, value T) {
	if _, ok := s.values[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.values[key] = value
}

// Get returns the value for key. The boolean is false for absent keys; a
// miss is a normal outcome, not an error.
func (s *Store[T]) Get(key string) (T, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (s *Store[T]) Keys() []string {
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// Values returns the values in insertion order.
func (s *Store[T]) Values() []T {
	out := make([]T, 0, len(s.keys))
	for _, k := range s.keys {
		out = append(out, s.values[k])
	}
	return out
}

// Len returns the number of stored entries.
func (s *Store[T]) Len() int {
	return len(s.keys)
}
