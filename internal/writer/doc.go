// Package writer serializes all post writes through one worker goroutine.
//
// Callers on any goroutine Submit a write and get a Future; the worker pulls
// requests from a bounded FIFO mailbox and runs each through
// store.CreatePost before starting the next. Mutual exclusion over the
// database connection is structural (one worker, one handle), so contention
// never turns into a storm of BEGIN IMMEDIATE retries.
//
// Failures are per request. A failed write is reported on its Future and the
// worker carries on with the next one.
package writer
