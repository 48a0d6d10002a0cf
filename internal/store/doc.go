// Package store provides the SQLite storage handle for postd.
//
// The store owns exactly one physical connection and exposes:
//   - RunImmediate: an eager-locking transaction envelope
//   - CreatePost: the user-upsert + post-insert write, run inside RunImmediate
//   - Error: the failure taxonomy shared with the writer and the HTTP layer
//
// # Database Configuration
//
//   - WAL mode: readers on other connections never block the writer
//   - synchronous=NORMAL: durable at checkpoints, safe against corruption
//   - foreign_keys=ON: posts.user_id must reference users.id
//   - busy_timeout=10000: bounded wait before BUSY is reported
//   - optimize=0x10002 on open, optimize on close
//
// Both github.com/mattn/go-sqlite3 ("sqlite3") and modernc.org/sqlite
// ("sqlite") are registered; lock contention is classified as BUSY for
// either driver.
//
// # Concurrency
//
// A Store runs one transaction at a time on its pinned connection. It does
// not arbitrate between concurrent callers; that is the job of
// writer.Coordinator, which is the only component that calls it in production.
package store
