package storage

import "sync"

// Sequence allocates monotonically increasing partition indices for one
// output directory. Writers targeting the same directory must share one
// Sequence so concurrently sealed partitions never collide on a file name.
type Sequence struct {
	mu   sync.Mutex
	next int
}

// NewSequence returns a Sequence starting at index 0.
func NewSequence() *Sequence {
	return &Sequence{}
}

// Next returns the next partition index.
func (s *Sequence) Next() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.next
	s.next++
	return n
}
