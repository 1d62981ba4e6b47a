package session

import "sync"

// seenSet remembers the most recent mints, forgetting the oldest beyond capacity.
type seenSet struct {
	mu    sync.Mutex
	index map[string]struct{}
	order []string
	head  int
}

func newSeenSet(capacity int) *seenSet {
	if capacity <= 0 {
		capacity = 10000
	}
	return &seenSet{
		index: make(map[string]struct{}, capacity),
		order: make([]string, 0, capacity),
	}
}

// Add records mint and reports whether it was new.
func (s *seenSet) Add(mint string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[mint]; ok {
		return false
	}
	if len(s.order) < cap(s.order) {
		s.order = append(s.order, mint)
	} else {
		delete(s.index, s.order[s.head])
		s.order[s.head] = mint
		s.head = (s.head + 1) % len(s.order)
	}
	s.index[mint] = struct{}{}
	return true
}

func (s *seenSet) Contains(mint string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index[mint]
	return ok
}

func (s *seenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.index)
}
