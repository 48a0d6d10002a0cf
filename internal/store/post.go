package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// NewPost is a validated create-post request.
type NewPost struct {
	Content string
	Email   string
}

// Post is a committed post row. Timestamps are epoch milliseconds assigned
// by the store.
type Post struct {
	ID        int64
	UserID    int64
	Content   string
	CreatedAt int64
	UpdatedAt int64
}

const insertUserSQL = `
	INSERT INTO users (email) VALUES (?)
	ON CONFLICT(email) DO NOTHING
`

// The owner is resolved by subquery inside the same statement, so there is
// no window between finding the user and inserting the post.
const insertPostSQL = `
	INSERT INTO posts (content, user_id)
	SELECT ?, id
	FROM users
	WHERE email = ?
	RETURNING id, user_id, content, created_at, updated_at
`

// CreatePost upserts the user for np.Email and inserts a post owned by it,
// atomically, returning the inserted row.
//
// Input is assumed valid. Empty content is rejected by the schema's CHECK
// constraint as a STORE_ERROR. If the user lookup yields no row the
// operation fails with NOT_FOUND instead of inserting an orphan.
func (s *Store) CreatePost(ctx context.Context, np NewPost) (Post, error) {
	return RunImmediate(ctx, s, func(ctx context.Context, tx *Tx) (Post, error) {
		return insertPost(ctx, tx, np)
	})
}

func insertPost(ctx context.Context, tx *Tx, np NewPost) (Post, error) {
	if _, err := tx.Exec(ctx, insertUserSQL, np.Email); err != nil {
		return Post{}, classify("upsert user", err)
	}

	row, err := tx.QueryRow(ctx, insertPostSQL, np.Content, np.Email)
	if err != nil {
		return Post{}, classify("insert post", err)
	}

	var p Post
	err = row.Scan(
		&p.ID,
		&p.UserID,
		&p.Content,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Post{}, NewError(ErrCodeNotFound, "insert post", fmt.Errorf("no user for email %q", np.Email))
	}
	if err != nil {
		return Post{}, classify("insert post", err)
	}

	return p, nil
}
