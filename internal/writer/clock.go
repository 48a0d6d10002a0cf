package writer

import "sync/atomic"

// Clock hands out the sequence numbers that record mailbox acceptance order.
//
// The worker processes requests in strictly increasing seq order, which is
// what tests and logs use to check FIFO behavior.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last sequence number handed out.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
