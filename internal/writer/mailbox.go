package writer

import (
	"sync"
	"time"

	"github.com/roach88/postd/internal/store"
)

// request is one submitted write waiting in the mailbox.
type request struct {
	id        string
	seq       int64
	post      store.NewPost
	reply     chan result // buffered, size 1: the worker never blocks on delivery
	submitted time.Time
}

// mailbox is a bounded, thread-safe FIFO of write requests.
//
// Any goroutine may enqueue; only the Coordinator's worker dequeues.
// The signal channel (buffered, size 1) coalesces wake-ups so the worker can
// wait without polling, and is closed by Close to release it for draining.
type mailbox struct {
	mu       sync.Mutex
	items    []*request
	capacity int
	closed   bool
	clock    *Clock
	signal   chan struct{}
}

// newMailbox creates an empty mailbox holding at most capacity requests.
func newMailbox(capacity int) *mailbox {
	prealloc := capacity
	if prealloc > 64 {
		prealloc = 64
	}
	return &mailbox{
		items:    make([]*request, 0, prealloc),
		capacity: capacity,
		clock:    NewClock(),
		signal:   make(chan struct{}, 1),
	}
}

// Enqueue appends r and stamps it with the next sequence number.
// Stamping happens under the lock, so seq order is acceptance order.
func (m *mailbox) Enqueue(r *request) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return store.NewError(store.ErrCodeClosed, "submit", errShuttingDown)
	}
	if len(m.items) >= m.capacity {
		return store.NewError(store.ErrCodeOverloaded, "submit", errMailboxFull)
	}

	r.seq = m.clock.Next()
	m.items = append(m.items, r)

	select {
	case m.signal <- struct{}{}:
	default:
	}

	return nil
}

// TryDequeue removes and returns the front request without blocking.
func (m *mailbox) TryDequeue() (*request, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.items) == 0 {
		return nil, false
	}

	r := m.items[0]

	// Drop the reference so the request can be collected.
	m.items[0] = nil

	if len(m.items) == 1 {
		m.items = m.items[:0]
	} else {
		m.items = m.items[1:]
	}

	return r, true
}

// Wait returns a channel that signals when requests may be available.
// It is closed once the mailbox is closed.
func (m *mailbox) Wait() <-chan struct{} {
	return m.signal
}

// Len returns the number of queued requests.
func (m *mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Closed reports whether Close has been called.
func (m *mailbox) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Close refuses further requests and wakes the worker. Queued requests
// stay in place for the worker to drain.
func (m *mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	m.closed = true
	close(m.signal)
}
