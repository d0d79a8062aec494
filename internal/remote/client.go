package remote

import (
	"context"
	"errors"
)

// ErrNotFound reports that the backend holds no record for the requested
// key. The gateway turns this into a "not found" result, not an error.
var ErrNotFound = errors.New("record not found")

// Client is the CRUD facade over the remote backend. One implementation per
// backend, selected at construction.
type Client interface {
	SignUp(ctx context.Context, email, password string) (*User, error)
	SignIn(ctx context.Context, email, password string) (*User, error)
	SignOut(ctx context.Context) error

	GetUser(ctx context.Context) (*User, error)
	UpdateUsername(ctx context.Context, userID, username string) error

	UpsertProgress(ctx context.Context, progress ReadingProgress) error
	GetProgress(ctx context.Context, userID, bookID string) (*ReadingProgress, error)
}
