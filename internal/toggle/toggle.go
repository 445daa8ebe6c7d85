// Package toggle keeps per-device boolean toggle states in process memory.
// States are scoped to the process lifetime and reset on restart.
package toggle

import "sync"

// Store is a synchronized name -> state map.
type Store struct {
	mu     sync.RWMutex
	states map[string]bool
}

// New creates an empty toggle store.
func New() *Store {
	return &Store{states: make(map[string]bool)}
}

// Get returns the state for name and whether it has been set.
func (s *Store) Get(name string) (bool, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.states[name]
	return v, ok
}

// Set records the state for name and returns the previous value.
func (s *Store) Set(name string, on bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.states[name]
	s.states[name] = on
	return prev
}

// Flip inverts the state for name and returns the new value. Unset names
// flip to true.
func (s *Store) Flip(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[name] = !s.states[name]
	return s.states[name]
}

// All returns a copy of every known toggle state.
func (s *Store) All() map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]bool, len(s.states))
	for k, v := range s.states {
		out[k] = v
	}
	return out
}
