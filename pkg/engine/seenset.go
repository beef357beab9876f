package engine

// SeenSet is a bounded set of previously accepted event identifiers.
// The feed re-reports events when poll windows overlap, so every
// identifier is checked here before it is counted or displayed. Memory
// is bounded: once the set grows past its capacity it is trimmed down
// to the retain size, dropping the oldest-inserted identifiers first.
// Identifiers inside the retained window are never forgotten by a trim.
//
// Not safe for concurrent use; the owning engine serializes access.
type SeenSet struct {
	capacity int
	retain   int
	ids      map[string]struct{}
	order    []string // insertion order, oldest first
}

// NewSeenSet creates a seen-set that trims from capacity down to
// retain. retain must be positive and less than capacity; callers
// validate before construction.
func NewSeenSet(capacity, retain int) *SeenSet {
	return &SeenSet{
		capacity: capacity,
		retain:   retain,
		ids:      make(map[string]struct{}, capacity),
	}
}

// Accept records id and returns true the first time id is seen.
// Every subsequent call with the same id returns false, as long as id
// is still within the retained window.
func (s *SeenSet) Accept(id string) bool {
	if _, dup := s.ids[id]; dup {
		return false
	}
	s.ids[id] = struct{}{}
	s.order = append(s.order, id)
	if len(s.order) > s.capacity {
		s.trim()
	}
	return true
}

// trim keeps only the retain most recently inserted identifiers.
func (s *SeenSet) trim() {
	keep := s.order[len(s.order)-s.retain:]
	ids := make(map[string]struct{}, s.capacity)
	for _, id := range keep {
		ids[id] = struct{}{}
	}
	s.ids = ids
	s.order = append(make([]string, 0, s.capacity), keep...)
}

// Len returns the number of identifiers currently held.
func (s *SeenSet) Len() int {
	return len(s.ids)
}

// Reset forgets all identifiers.
func (s *SeenSet) Reset() {
	s.ids = make(map[string]struct{}, s.capacity)
	s.order = s.order[:0]
}
