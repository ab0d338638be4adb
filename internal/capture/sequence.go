package capture

import "sync/atomic"

// Sequence hands out process-wide, strictly increasing sighting numbers.
type Sequence struct {
	n atomic.Int64
}

// NewSequence returns a counter whose first Next is 1.
func NewSequence() *Sequence {
	return &Sequence{}
}

// Next returns the next sequence number.
func (s *Sequence) Next() int64 {
	return s.n.Add(1)
}

// Last returns the most recently issued number.
func (s *Sequence) Last() int64 {
	return s.n.Load()
}
