package store

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
)

func TestError_Format(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"code only", &Error{Code: ErrCodeClosed}, "CLOSED"},
		{"code and op", &Error{Code: ErrCodeOverloaded, Op: "submit"}, "OVERLOADED: submit"},
		{"code and err", &Error{Code: ErrCodeStore, Err: errors.New("disk")}, "STORE_ERROR: disk"},
		{"all", &Error{Code: ErrCodeBusy, Op: "begin", Err: errors.New("locked")}, "BUSY: begin: locked"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestClassify(t *testing.T) {
	busy := sqlite3.Error{Code: sqlite3.ErrBusy}
	locked := sqlite3.Error{Code: sqlite3.ErrLocked}
	constraint := sqlite3.Error{Code: sqlite3.ErrConstraint}

	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"no rows", sql.ErrNoRows, ErrCodeNotFound},
		{"busy", busy, ErrCodeBusy},
		{"wrapped busy", fmt.Errorf("begin: %w", busy), ErrCodeBusy},
		{"locked", locked, ErrCodeBusy},
		{"constraint", constraint, ErrCodeStore},
		{"plain", errors.New("io"), ErrCodeStore},
		{"already classified", NewError(ErrCodeOverloaded, "submit", nil), ErrCodeOverloaded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(classify("op", tt.err)))
		})
	}

	assert.Nil(t, classify("op", nil))
}

func TestErrorHelpers_Wrapped(t *testing.T) {
	err := fmt.Errorf("write: %w", NewError(ErrCodeBusy, "begin", nil))

	assert.True(t, IsBusy(err))
	assert.True(t, IsRetryable(err))
	assert.False(t, IsClosed(err))
	assert.False(t, IsNotFound(err))
	assert.Equal(t, ErrCodeStore, CodeOf(errors.New("unclassified")))
}
