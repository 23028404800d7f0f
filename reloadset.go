package hotswap

import "sync"

// ReloadSet is the set of beans pending invalidation in one context. Adds are
// idempotent and safe for concurrent use; Drain hands out exactly the members
// present at that moment and empties the set.
type ReloadSet struct {
	mu    sync.Mutex
	beans map[*Bean]struct{}
	order []*Bean
}

// Add schedules b and reports whether it was not pending already.
func (s *ReloadSet) Add(b *Bean) bool {
	if b == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.beans == nil {
		s.beans = make(map[*Bean]struct{})
	}
	if _, pending := s.beans[b]; pending {
		return false
	}
	s.beans[b] = struct{}{}
	s.order = append(s.order, b)
	return true
}

func (s *ReloadSet) Contains(b *Bean) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.beans[b]
	return ok
}

func (s *ReloadSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// Drain returns the pending beans in insertion order and clears the set.
func (s *ReloadSet) Drain() []*Bean {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.order) == 0 {
		return nil
	}
	drained := s.order
	s.order = nil
	s.beans = nil
	return drained
}

// AddToReloadSet marks b for invalidation in ctx. It returns false when ctx
// cannot defer invalidation; the caller must then reinject in place.
func AddToReloadSet(ctx Context, b *Bean) bool {
	r, ok := ctx.(Reloadable)
	if !ok {
		return false
	}
	return r.AddToReloadSet(b)
}
