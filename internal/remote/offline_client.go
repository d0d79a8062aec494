package remote

import (
	"context"
)

// OfflineClient is the no-op backend used when the app runs without a remote
// account. Writes succeed silently and reads report nothing stored.
type OfflineClient struct{}

func NewOfflineClient() *OfflineClient {
	return &OfflineClient{}
}

func (c *OfflineClient) SignUp(ctx context.Context, email, password string) (*User, error) {
	return nil, NewValidationError("remote backend is disabled")
}

func (c *OfflineClient) SignIn(ctx context.Context, email, password string) (*User, error) {
	return nil, NewValidationError("remote backend is disabled")
}

func (c *OfflineClient) SignOut(ctx context.Context) error {
	return nil
}

func (c *OfflineClient) GetUser(ctx context.Context) (*User, error) {
	return nil, ErrNotFound
}

func (c *OfflineClient) UpdateUsername(ctx context.Context, userID, username string) error {
	return nil
}

func (c *OfflineClient) UpsertProgress(ctx context.Context, progress ReadingProgress) error {
	return nil
}

func (c *OfflineClient) GetProgress(ctx context.Context, userID, bookID string) (*ReadingProgress, error) {
	return nil, ErrNotFound
}
