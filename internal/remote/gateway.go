package remote

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/ireadorg/readsync/internal/cache"
	"github.com/ireadorg/readsync/internal/logger"
	"github.com/ireadorg/readsync/internal/queue"
	"github.com/ireadorg/readsync/internal/retry"
)

const profileCacheKey = "profile"

// Gateway is the CRUD facade over the remote backend. Every operation
// returns a typed result; raw transport errors never cross this boundary.
// Transient failures are retried with backoff, and persistently failing
// progress writes land in the change queue for a later flush.
type Gateway struct {
	client        Client
	retry         *retry.Executor
	pending       *queue.ChangeQueue[ReadingProgress]
	profileCache  *cache.ResultCache
	progressCache *cache.ResultCache
}

func NewGateway(client Client, retryCfg retry.Config, profileCache, progressCache *cache.ResultCache) *Gateway {
	return &Gateway{
		client:        client,
		retry:         retry.NewExecutor(retryCfg),
		pending:       queue.New[ReadingProgress](),
		profileCache:  profileCache,
		progressCache: progressCache,
	}
}

// SyncProgress validates and upserts a progress record. Validation failures
// surface immediately; a persistent transport failure enqueues the record
// and surfaces the mapped error.
func (g *Gateway) SyncProgress(ctx context.Context, progress ReadingProgress) error {
	err := g.pushProgress(ctx, progress)
	if err != nil && !IsValidation(err) {
		g.pending.Enqueue(progress)
		logger.Log.Warn("progress sync failed, record queued",
			zap.String("book_id", progress.BookID),
			zap.Error(err),
		)
	}
	return err
}

// pushProgress is the queue-safe sync path: it never re-enqueues, so the
// drain loop cannot duplicate records.
func (g *Gateway) pushProgress(ctx context.Context, progress ReadingProgress) error {
	sanitized, err := SanitizeProgress(progress)
	if err != nil {
		return err
	}

	err = g.retry.ExecuteWithRetry(ctx, func(ctx context.Context) error {
		return WithErrorMapping(func() error {
			return g.client.UpsertProgress(ctx, sanitized)
		})
	})
	if err != nil {
		return MapError(err)
	}

	g.progressCache.Put(ProgressKey(sanitized.UserID, sanitized.BookID), sanitized)
	return nil
}

// GetProgress serves a fresh cached record when available, otherwise fetches
// from the backend. A missing backend record is (nil, nil), not an error.
func (g *Gateway) GetProgress(ctx context.Context, userID, bookID string) (*ReadingProgress, error) {
	key := ProgressKey(userID, bookID)
	if v, ok := g.progressCache.Get(key); ok {
		p := v.(ReadingProgress)
		return &p, nil
	}

	progress, err := g.client.GetProgress(ctx, userID, bookID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, MapError(err)
	}

	g.progressCache.Put(key, *progress)
	return progress, nil
}

func (g *Gateway) SignUp(ctx context.Context, email, password string) (*User, error) {
	user, err := g.client.SignUp(ctx, email, password)
	if err != nil {
		return nil, MapError(err)
	}
	g.profileCache.Put(profileCacheKey, *user)
	return user, nil
}

func (g *Gateway) SignIn(ctx context.Context, email, password string) (*User, error) {
	user, err := g.client.SignIn(ctx, email, password)
	if err != nil {
		return nil, MapError(err)
	}
	g.profileCache.Put(profileCacheKey, *user)
	return user, nil
}

// SignOut drops the session and every cached read.
func (g *Gateway) SignOut(ctx context.Context) error {
	g.profileCache.ClearAll()
	g.progressCache.ClearAll()
	if err := g.client.SignOut(ctx); err != nil {
		return MapError(err)
	}
	return nil
}

func (g *Gateway) GetCurrentUser(ctx context.Context) (*User, error) {
	if v, ok := g.profileCache.Get(profileCacheKey); ok {
		u := v.(User)
		return &u, nil
	}

	user, err := g.client.GetUser(ctx)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, MapError(err)
	}

	g.profileCache.Put(profileCacheKey, *user)
	return user, nil
}

func (g *Gateway) UpdateUsername(ctx context.Context, userID, username string) error {
	sanitized, err := SanitizeUsername(username)
	if err != nil {
		return err
	}

	err = g.retry.ExecuteWithRetry(ctx, func(ctx context.Context) error {
		return WithErrorMapping(func() error {
			return g.client.UpdateUsername(ctx, userID, sanitized)
		})
	})
	if err != nil {
		return MapError(err)
	}

	if v, ok := g.profileCache.Get(profileCacheKey); ok {
		u := v.(User)
		u.Username = sanitized
		g.profileCache.Put(profileCacheKey, u)
	}
	return nil
}

// ProcessPendingQueue drains the change queue through the sync path and
// returns the number of records that reached the backend.
func (g *Gateway) ProcessPendingQueue(ctx context.Context) int {
	synced := g.pending.DrainAndProcess(func(p ReadingProgress) error {
		return g.pushProgress(ctx, p)
	})
	if synced > 0 {
		logger.Log.Info("flushed pending progress records", zap.Int("synced", synced))
	}
	return synced
}

func (g *Gateway) PendingCount() int {
	return g.pending.Len()
}
