package store

import (
	"context"
	"database/sql"
	"log/slog"
)

// Tx is the handle-scoped access given to an operation run by RunImmediate.
// It is only valid until the operation returns.
type Tx struct {
	store *Store
}

// Exec runs a statement through the prepared-statement cache.
func (tx *Tx) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	stmt, err := tx.store.prepared(ctx, query)
	if err != nil {
		return nil, err
	}
	return stmt.ExecContext(ctx, args...)
}

// QueryRow runs a single-row query through the prepared-statement cache.
// A prepare failure is returned directly; query and scan errors surface
// from Row.Scan.
func (tx *Tx) QueryRow(ctx context.Context, query string, args ...any) (*sql.Row, error) {
	stmt, err := tx.store.prepared(ctx, query)
	if err != nil {
		return nil, err
	}
	return stmt.QueryRowContext(ctx, args...), nil
}

// RunImmediate runs op inside BEGIN IMMEDIATE / COMMIT-or-ROLLBACK on the
// store's pinned connection.
//
// The write lock is taken before op runs, so contention surfaces at BEGIN
// as a BUSY error once the busy timeout elapses. If op fails the transaction
// is rolled back and op's error is returned; rollback failures are only
// logged. If COMMIT fails the transaction is rolled back and the commit
// error is returned. Either way the store is left as it was before BEGIN.
// A panic inside op rolls back before propagating.
func RunImmediate[T any](ctx context.Context, s *Store, op func(ctx context.Context, tx *Tx) (T, error)) (T, error) {
	var zero T

	if s.isClosed() {
		return zero, NewError(ErrCodeClosed, "begin", errStoreClosed)
	}

	if _, err := s.conn.ExecContext(ctx, "BEGIN IMMEDIATE TRANSACTION"); err != nil {
		return zero, classify("begin", err)
	}

	finished := false
	defer func() {
		if !finished {
			s.rollback(ctx)
		}
	}()

	result, err := op(ctx, &Tx{store: s})
	finished = true
	if err != nil {
		s.rollback(ctx)
		return zero, classify("operation", err)
	}

	if _, err := s.conn.ExecContext(ctx, "COMMIT"); err != nil {
		s.rollback(ctx)
		return zero, classify("commit", err)
	}

	return result, nil
}

// rollback aborts the open transaction. Failures are logged only; the
// caller's original error is the one worth reporting.
func (s *Store) rollback(ctx context.Context) {
	if _, err := s.conn.ExecContext(context.WithoutCancel(ctx), "ROLLBACK"); err != nil {
		slog.Error("rollback failed", "error", err)
	}
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
