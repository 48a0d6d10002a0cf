package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

// Error is a failure surfaced to the caller of a write.
//
// Codes:
//   - BUSY: the write lock was not acquired within the busy timeout (retryable)
//   - NOT_FOUND: the post-upsert user lookup produced no row
//   - STORE_ERROR: any other store failure (constraint, I/O, corruption)
//   - CLOSED: the write arrived after shutdown began
//   - OVERLOADED: the writer's mailbox was full (retryable)
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Op names the step that failed (e.g. "begin", "insert post").
	Op string

	// Err is the underlying driver or runtime error.
	Err error
}

// ErrorCode categorizes store errors.
type ErrorCode string

const (
	// ErrCodeBusy indicates lock contention outlasted the busy timeout.
	ErrCodeBusy ErrorCode = "BUSY"

	// ErrCodeNotFound indicates the user row for the email was missing.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeStore is the catch-all for other store failures.
	ErrCodeStore ErrorCode = "STORE_ERROR"

	// ErrCodeClosed indicates the store or its writer is shutting down.
	ErrCodeClosed ErrorCode = "CLOSED"

	// ErrCodeOverloaded indicates the write was rejected by backpressure.
	ErrCodeOverloaded ErrorCode = "OVERLOADED"
)

var errStoreClosed = errors.New("store is closed")

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" && e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Op, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Op)
	}
	return string(e.Code)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates an Error with the given code.
func NewError(code ErrorCode, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

// CodeOf returns the code of the first *Error in err's chain, or
// ErrCodeStore if there is none.
func CodeOf(err error) ErrorCode {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ErrCodeStore
}

// IsBusy returns true if the error is a lock-contention timeout.
func IsBusy(err error) bool {
	return hasCode(err, ErrCodeBusy)
}

// IsNotFound returns true if the user lookup found no row.
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeNotFound)
}

// IsClosed returns true if the write was refused because of shutdown.
func IsClosed(err error) bool {
	return hasCode(err, ErrCodeClosed)
}

// IsOverloaded returns true if the write was refused by backpressure.
func IsOverloaded(err error) bool {
	return hasCode(err, ErrCodeOverloaded)
}

// IsRetryable returns true for failures a caller may retry unchanged.
func IsRetryable(err error) bool {
	return IsBusy(err) || IsOverloaded(err)
}

func hasCode(err error, code ErrorCode) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// classify wraps a driver error into the store taxonomy.
// Already classified errors pass through unchanged.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var se *Error
	if errors.As(err, &se) {
		return err
	}

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return NewError(ErrCodeNotFound, op, err)
	case isLockContention(err):
		return NewError(ErrCodeBusy, op, err)
	default:
		return NewError(ErrCodeStore, op, err)
	}
}

// isLockContention reports SQLITE_BUSY or SQLITE_LOCKED (including their
// extended codes) from either driver.
func isLockContention(err error) bool {
	var cgoErr sqlite3.Error
	if errors.As(err, &cgoErr) {
		return cgoErr.Code == sqlite3.ErrBusy || cgoErr.Code == sqlite3.ErrLocked
	}

	var pureErr *sqlite.Error
	if errors.As(err, &pureErr) {
		primary := pureErr.Code() & 0xff
		return primary == sqlitelib.SQLITE_BUSY || primary == sqlitelib.SQLITE_LOCKED
	}

	return false
}
