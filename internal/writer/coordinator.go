package writer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/postd/internal/store"
)

// DefaultCapacity is the default mailbox bound.
const DefaultCapacity = 1024

var (
	errShuttingDown = errors.New("writer is shutting down")
	errMailboxFull  = errors.New("mailbox is full")
)

// Coordinator is the single logical writer in front of a Store.
//
// All writes go through one worker goroutine, which owns the Store for its
// whole lifetime and runs requests one at a time in mailbox order.
//
// Thread-safety model:
//   - Submit(), CreatePost(), Stats(): safe from any goroutine
//   - Start(), Shutdown(): safe to call more than once
//   - the Store: touched only by the worker after New returns
type Coordinator struct {
	store    *store.Store
	mailbox  *mailbox
	ids      RequestIDGenerator
	capacity int

	startOnce sync.Once
	done      chan struct{}

	accepted  atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
	rejected  atomic.Uint64
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithCapacity bounds the mailbox. Writes beyond it are rejected with
// OVERLOADED instead of queueing without limit. Values below 1 mean 1.
func WithCapacity(n int) Option {
	return func(c *Coordinator) {
		c.capacity = n
	}
}

// WithRequestIDs sets the generator used when Submit gets an empty ID.
func WithRequestIDs(gen RequestIDGenerator) Option {
	return func(c *Coordinator) {
		c.ids = gen
	}
}

// Stats is a point-in-time view of the coordinator's counters.
type Stats struct {
	Accepted  uint64 `json:"accepted"`
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
	Rejected  uint64 `json:"rejected"`
	Queued    int    `json:"queued"`
}

// New creates a Coordinator that takes ownership of s. Call Start to begin
// processing; requests submitted before Start wait in the mailbox.
func New(s *store.Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:    s,
		ids:      UUIDv7Generator{},
		capacity: DefaultCapacity,
		done:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.capacity < 1 {
		c.capacity = 1
	}
	c.mailbox = newMailbox(c.capacity)

	return c
}

// Start launches the worker. Only the first call has an effect.
func (c *Coordinator) Start() {
	c.startOnce.Do(func() {
		go c.run()
	})
}

// Submit enqueues a write and returns without waiting for it.
//
// An empty requestID is replaced by a generated one. If the mailbox is full
// or shutdown has begun, the returned Future is already resolved with an
// OVERLOADED or CLOSED error.
func (c *Coordinator) Submit(requestID string, np store.NewPost) *Future {
	if requestID == "" {
		requestID = c.ids.Generate()
	}

	reply := make(chan result, 1)
	r := &request{
		id:        requestID,
		post:      np,
		reply:     reply,
		submitted: time.Now(),
	}

	if err := c.mailbox.Enqueue(r); err != nil {
		c.rejected.Add(1)
		slog.Warn("write rejected",
			"request_id", requestID,
			"code", store.CodeOf(err),
			"queued", c.mailbox.Len(),
		)
		reply <- result{err: err}
		return newFuture(requestID, 0, reply)
	}

	c.accepted.Add(1)
	return newFuture(requestID, r.seq, reply)
}

// CreatePost submits a write and waits for its result.
//
// If ctx ends before the worker gets to the request, CreatePost returns
// ctx.Err() but the write still happens.
func (c *Coordinator) CreatePost(ctx context.Context, np store.NewPost) (store.Post, error) {
	return c.Submit("", np).Wait(ctx)
}

// Shutdown refuses new writes, lets the worker drain every accepted request
// and close the store, and waits for that to finish.
//
// If ctx ends first Shutdown returns ctx.Err(); the worker keeps draining
// and still closes the store when it is done.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mailbox.Close()

	// A coordinator that was never started still owns a store to close.
	c.Start()

	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the worker has drained the mailbox and closed the store.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Stats returns the current counters.
func (c *Coordinator) Stats() Stats {
	return Stats{
		Accepted:  c.accepted.Load(),
		Completed: c.completed.Load(),
		Failed:    c.failed.Load(),
		Rejected:  c.rejected.Load(),
		Queued:    c.mailbox.Len(),
	}
}

// run is the worker loop.
// CRITICAL: the only goroutine that touches c.store.
func (c *Coordinator) run() {
	defer close(c.done)
	defer c.store.Close()

	slog.Info("writer starting", "driver", c.store.Driver(), "capacity", c.capacity)

	for {
		if r, ok := c.mailbox.TryDequeue(); ok {
			c.process(r)
			continue
		}

		// Fires on a new request, or immediately forever once closed.
		<-c.mailbox.Wait()

		if c.mailbox.Closed() && c.mailbox.Len() == 0 {
			slog.Info("writer stopping: mailbox drained",
				"completed", c.completed.Load(),
				"failed", c.failed.Load(),
			)
			return
		}
	}
}

// process runs one request to completion and delivers its result.
// A failed request is reported to its caller; the worker moves on.
func (c *Coordinator) process(r *request) {
	queued := time.Since(r.submitted)
	start := time.Now()

	post, err := c.execute(r)

	if err != nil {
		c.failed.Add(1)
		slog.Error("write failed",
			"request_id", r.id,
			"seq", r.seq,
			"code", store.CodeOf(err),
			"error", err,
		)
	} else {
		c.completed.Add(1)
		slog.Debug("write committed",
			"request_id", r.id,
			"seq", r.seq,
			"post_id", post.ID,
			"user_id", post.UserID,
			"queued", queued,
			"duration", time.Since(start),
		)
	}

	r.reply <- result{post: post, err: err}
}

// execute runs the write detached from any caller's context: once dequeued,
// a transaction is never abandoned halfway.
func (c *Coordinator) execute(r *request) (post store.Post, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = store.NewError(store.ErrCodeStore, "create post", fmt.Errorf("panic: %v", rec))
		}
	}()

	return c.store.CreatePost(context.Background(), r.post)
}
