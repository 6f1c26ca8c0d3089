package delta

import (
	"math"
	"sync"

	"twinsim/internal/clinical"
)

// Listener is notified synchronously after every mutation with the
// post-mutation snapshot.
type Listener func(Set)

// Store is the single mutable owner of the session's offsets. Writes are
// clamped to the field's bounds; out-of-range input is never an error.
type Store struct {
	mu        sync.RWMutex
	bounds    clinical.Table
	current   Set
	listeners []Listener
}

// NewStore creates a store with all offsets at zero.
func NewStore(bounds clinical.Table) *Store {
	if bounds == nil {
		bounds = clinical.DefaultTable()
	}
	return &Store{bounds: bounds}
}

// Subscribe registers a listener. Listeners run in subscription order.
func (s *Store) Subscribe(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Bounds returns the bounds for f.
func (s *Store) Bounds(f clinical.Field) (clinical.Bounds, bool) {
	b, ok := s.bounds[f]
	return b, ok
}

// Set clamps value into f's bounds and stores it. It returns the stored value
// and whether the set changed anything; unknown fields are ignored.
func (s *Store) Set(f clinical.Field, value float64) (float64, bool) {
	b, ok := s.bounds[f]
	if !ok {
		return 0, false
	}
	return s.mutate(func(cur Set) Set {
		return cur.With(f, b.Clamp(value))
	}, f)
}

// Nudge moves f by steps increments of the field's step, then clamps.
func (s *Store) Nudge(f clinical.Field, steps int) (float64, bool) {
	b, ok := s.bounds[f]
	if !ok || b.Step == 0 {
		return s.Get(f), false
	}
	return s.mutate(func(cur Set) Set {
		next := cur.Get(f) + float64(steps)*b.Step
		// Snap to the step grid so repeated nudges don't accumulate drift.
		next = math.Round(next/b.Step) * b.Step
		return cur.With(f, b.Clamp(next))
	}, f)
}

// Reset zeros every offset.
func (s *Store) Reset() bool {
	_, changed := s.mutate(func(Set) Set { return Set{} }, "")
	return changed
}

// Get returns the current offset for f.
func (s *Store) Get(f clinical.Field) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Get(f)
}

// IsZero reports whether every offset is zero.
func (s *Store) IsZero() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.IsZero()
}

// Snapshot returns a copy of the current offsets.
func (s *Store) Snapshot() Set {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *Store) mutate(fn func(Set) Set, f clinical.Field) (float64, bool) {
	s.mu.Lock()
	next := fn(s.current)
	if next == s.current {
		s.mu.Unlock()
		return next.Get(f), false
	}
	s.current = next
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, l := range listeners {
		l(next)
	}
	return next.Get(f), true
}
