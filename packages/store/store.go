// Package store holds the committed value of every cell.
package store

import (
	"sync"

	"github.com/vogtb/sheetd/packages/cell"
)

// entry is a stored value and the generation of the definition that
// produced it
type entry struct {
	value      cell.Value
	generation uint64
}

// Store maps cell names to their current values. one coarse lock guards the
// map and is only held for the duration of a single read or write.
//
// values written by the command handler carry the generation of the cell
// definition they were computed from. the recompute worker writes with
// Update, which only succeeds while that definition is still the one the
// stored value came from, so a derived value never replaces a newer set.
type Store struct {
	mu      sync.Mutex
	entries map[string]entry
}

func New() *Store {
	return &Store{entries: make(map[string]entry)}
}

// Get returns the value of name, None if it was never set
func (s *Store) Get(name string) cell.Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[name].value
}

// Set overwrites the value of name unconditionally. last write wins.
func (s *Store) Set(name string, value cell.Value) {
	s.mu.Lock()
	s.entries[name] = entry{value: value}
	s.mu.Unlock()
}

// Commit writes the value computed from the definition with the given
// generation. a commit older than the stored generation is dropped.
func (s *Store) Commit(name string, value cell.Value, generation uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, exists := s.entries[name]; exists && current.generation > generation {
		return false
	}
	s.entries[name] = entry{value: value, generation: generation}
	return true
}

// Update replaces the value of name only if it was produced by the
// definition with the given generation
func (s *Store) Update(name string, value cell.Value, generation uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries[name].generation != generation {
		return false
	}
	s.entries[name] = entry{value: value, generation: generation}
	return true
}

// Generation returns the generation of the stored value of name, 0 if it
// was never committed
func (s *Store) Generation(name string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[name].generation
}

// Snapshot returns a copy of every stored value
func (s *Store) Snapshot() map[string]cell.Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]cell.Value, len(s.entries))
	for name, e := range s.entries {
		out[name] = e.value
	}
	return out
}

// Len returns the number of cells that have been set
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
