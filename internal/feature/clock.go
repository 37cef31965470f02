package feature

import "sync/atomic"

// Clock is a monotonic logical clock stamping every fold and effect of one
// pipeline instance.
//
// Sequence numbers order the journal of a feature instance; wall-clock time
// is never used for ordering.
//
// Thread-safety: Clock is safe for concurrent use. In practice only the fold
// loop and effect emitters call Next.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0. The first call to Next returns 1.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

