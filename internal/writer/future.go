package writer

import (
	"context"

	"github.com/roach88/postd/internal/store"
)

// result is what the worker delivers on a request's reply channel.
type result struct {
	post store.Post
	err  error
}

// Future is the pending outcome of a submitted write.
//
// Waiting is optional: a write that was accepted runs to completion whether
// or not anyone collects the result.
type Future struct {
	id    string
	seq   int64
	reply <-chan result
	ready chan struct{}
	res   result
}

func newFuture(id string, seq int64, reply <-chan result) *Future {
	return &Future{
		id:    id,
		seq:   seq,
		reply: reply,
		ready: make(chan struct{}),
	}
}

// RequestID returns the correlation ID the write was submitted under.
func (f *Future) RequestID() string {
	return f.id
}

// Seq returns the mailbox sequence number, or 0 if the write was rejected.
func (f *Future) Seq() int64 {
	return f.seq
}

// Wait blocks until the write finishes or ctx is done.
//
// If ctx ends first, Wait returns ctx.Err(); the write itself is not
// cancelled. Wait may be called any number of times, from any goroutine.
func (f *Future) Wait(ctx context.Context) (store.Post, error) {
	select {
	case res := <-f.reply:
		// The reply carries exactly one value, so only one waiter gets here.
		f.res = res
		close(f.ready)
	case <-f.ready:
	case <-ctx.Done():
		return store.Post{}, ctx.Err()
	}
	return f.res.post, f.res.err
}
